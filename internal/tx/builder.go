package tx

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/OKaluzny/healthchain-wallet/internal/wallet"
	"github.com/OKaluzny/healthchain-wallet/pkg/models"
)

// BuilderConfig holds configurable parameters for the transaction builder.
type BuilderConfig struct {
	Network models.Network
	Fee     FeeModel
	Sighash SighashMode
}

// Builder constructs and signs P2PKH payment transactions.
type Builder struct {
	cfg    BuilderConfig
	logger *slog.Logger
}

// NewBuilder creates a transaction builder. A nil fee model means DefaultFeeModel.
func NewBuilder(cfg BuilderConfig) *Builder {
	if cfg.Fee == nil {
		cfg.Fee = DefaultFeeModel
	}
	if cfg.Network == "" {
		cfg.Network = models.NetworkMain
	}
	return &Builder{
		cfg:    cfg,
		logger: slog.Default().With("component", "tx_builder"),
	}
}

// Network returns the ledger the builder signs for.
func (b *Builder) Network() models.Network {
	return b.cfg.Network
}

// BuildAndSign spends every utxo (all locked to key) into one payment output
// for recipient and one change output for changeAddress, then signs every
// input. The change value is whatever remains after the fee.
func (b *Builder) BuildAndSign(utxos []models.UnspentOutput, recipient string, amount uint64,
	changeAddress string, key *models.KeyMaterial) (*models.SignedTransaction, error) {

	priv, pub, err := unlockKey(key)
	if err != nil {
		return nil, err
	}
	defer priv.Zero()

	if amount == 0 {
		return nil, fmt.Errorf("%w: amount must be positive", models.ErrInvalidRequest)
	}
	if amount > models.MaxSatoshis {
		return nil, fmt.Errorf("%w: amount %d exceeds the coin supply", models.ErrInvalidRequest, amount)
	}
	if len(utxos) == 0 {
		return nil, models.ErrInsufficientFunds
	}

	payTo, err := wallet.ParseRecipient(recipient, b.cfg.Network)
	if err != nil {
		return nil, err
	}
	changeTo, err := wallet.ParseRecipient(changeAddress, b.cfg.Network)
	if err != nil {
		return nil, fmt.Errorf("change address: %w", err)
	}
	payScript, err := txscript.PayToAddrScript(payTo)
	if err != nil {
		return nil, fmt.Errorf("recipient script: %w", err)
	}
	changeScript, err := txscript.PayToAddrScript(changeTo)
	if err != nil {
		return nil, fmt.Errorf("change script: %w", err)
	}
	ownScript, err := p2pkhScript(pub, b.cfg.Network)
	if err != nil {
		return nil, err
	}

	msgTx := wire.NewMsgTx(1)
	prevOuts := make([]*wire.TxOut, 0, len(utxos))
	var inputTotal uint64
	for _, u := range utxos {
		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, fmt.Errorf("utxo %s:%d: %w", u.TxID, u.Vout, err)
		}
		if u.Value > models.MaxSatoshis || inputTotal+u.Value > models.MaxSatoshis {
			return nil, fmt.Errorf("%w: utxo %s:%d value out of range", models.ErrInvalidRequest, u.TxID, u.Vout)
		}
		msgTx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, u.Vout), nil, nil))
		prevOuts = append(prevOuts, wire.NewTxOut(int64(u.Value), ownScript))
		inputTotal += u.Value
	}

	msgTx.AddTxOut(wire.NewTxOut(int64(amount), payScript))
	change := wire.NewTxOut(0, changeScript)
	msgTx.AddTxOut(change)

	size := msgTx.SerializeSize() + len(msgTx.TxIn)*maxP2PKHScriptSigSize
	fee := b.cfg.Fee.Fee(size)
	if inputTotal < fee || inputTotal-fee < amount {
		return nil, fmt.Errorf("%w: inputs %d < amount %d + fee %d", models.ErrInsufficientFunds, inputTotal, amount, fee)
	}
	changeValue := inputTotal - amount - fee
	change.Value = int64(changeValue)

	all := make([]int, len(msgTx.TxIn))
	for i := range all {
		all[i] = i
	}
	if err := signInputs(b.cfg.Sighash, msgTx, prevOuts, all, priv); err != nil {
		return nil, err
	}

	rawHex, err := serialize(msgTx)
	if err != nil {
		return nil, err
	}

	signed := &models.SignedTransaction{
		RawHex:      rawHex,
		TxID:        msgTx.TxHash().String(),
		Fee:         fee,
		InputTotal:  inputTotal,
		OutputTotal: amount + changeValue,
		Inputs:      append([]models.UnspentOutput(nil), utxos...),
		Outputs: []models.TxOutput{
			{Address: payTo.EncodeAddress(), Satoshis: amount},
			{Address: changeTo.EncodeAddress(), Satoshis: changeValue, Change: true},
		},
	}

	b.logger.Info("transaction signed",
		"txid", signed.TxID,
		"inputs", len(utxos),
		"amount", amount,
		"fee", fee,
		"change", changeValue,
		"sighash", b.cfg.Sighash.String(),
	)
	return signed, nil
}

// unlockKey turns key material into btcec keys, or ErrSigningFailed.
func unlockKey(key *models.KeyMaterial) (*btcec.PrivateKey, *btcec.PublicKey, error) {
	if key == nil || len(key.PrivateKey) != 32 {
		return nil, nil, fmt.Errorf("%w: no private key", models.ErrSigningFailed)
	}
	var s btcec.ModNScalar
	if overflow := s.SetByteSlice(key.PrivateKey); overflow || s.IsZero() {
		return nil, nil, fmt.Errorf("%w: %v", models.ErrSigningFailed, models.ErrInvalidKey)
	}
	priv, pub := btcec.PrivKeyFromBytes(key.PrivateKey)
	return priv, pub, nil
}

// p2pkhScript is the locking script paying to pub's Hash160.
func p2pkhScript(pub *btcec.PublicKey, network models.Network) ([]byte, error) {
	params, err := wallet.Params(network)
	if err != nil {
		return nil, err
	}
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), params)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(addr)
}

// scriptAddress returns the address a standard locking script pays to, or ""
// for non-standard scripts and data carriers.
func scriptAddress(pkScript []byte, network models.Network) string {
	params, err := wallet.Params(network)
	if err != nil {
		return ""
	}
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, params)
	if err != nil || len(addrs) != 1 {
		return ""
	}
	return addrs[0].EncodeAddress()
}

func serialize(msgTx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	buf.Grow(msgTx.SerializeSize())
	if err := msgTx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("serialize tx: %w", err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func deserialize(rawHex string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, fmt.Errorf("%w: decode tx hex: %v", models.ErrInvalidRequest, err)
	}
	var msgTx wire.MsgTx
	if err := msgTx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("%w: deserialize tx: %v", models.ErrInvalidRequest, err)
	}
	return &msgTx, nil
}
