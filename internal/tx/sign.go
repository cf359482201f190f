package tx

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/OKaluzny/healthchain-wallet/pkg/models"
)

// SighashMode selects the signature digest algorithm.
type SighashMode int

const (
	// SighashForkID is SIGHASH_ALL|FORKID over the BIP-143 digest, required
	// by BSV nodes since the chain split.
	SighashForkID SighashMode = iota
	// SighashLegacy is the pre-fork SIGHASH_ALL digest.
	SighashLegacy
)

// sigHashAllForkID is SIGHASH_ALL (0x01) | SIGHASH_FORKID (0x40).
const sigHashAllForkID txscript.SigHashType = 0x41

// maxP2PKHScriptSigSize is the largest P2PKH unlocking script:
// push(73-byte DER sig with hash type) + push(33-byte compressed key).
const maxP2PKHScriptSigSize = 1 + 73 + 1 + 33

// ParseSighashMode maps a config value to a SighashMode.
func ParseSighashMode(s string) (SighashMode, error) {
	switch s {
	case "forkid", "":
		return SighashForkID, nil
	case "legacy":
		return SighashLegacy, nil
	}
	return 0, fmt.Errorf("unknown sighash mode %q", s)
}

func (m SighashMode) String() string {
	if m == SighashLegacy {
		return "legacy"
	}
	return "forkid"
}

// signInputs fills the unlocking script of every input listed in which.
// prevOuts must hold the spent output of every input of msgTx.
func signInputs(mode SighashMode, msgTx *wire.MsgTx, prevOuts []*wire.TxOut, which []int, priv *btcec.PrivateKey) error {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, in := range msgTx.TxIn {
		fetcher.AddPrevOut(in.PreviousOutPoint, prevOuts[i])
	}
	sigHashes := txscript.NewTxSigHashes(msgTx, fetcher)

	for _, i := range which {
		script, err := unlockingScript(mode, msgTx, i, prevOuts[i], sigHashes, priv)
		if err != nil {
			return fmt.Errorf("%w: input %d: %v", models.ErrSigningFailed, i, err)
		}
		msgTx.TxIn[i].SignatureScript = script
	}
	return nil
}

func unlockingScript(mode SighashMode, msgTx *wire.MsgTx, idx int, prevOut *wire.TxOut,
	sigHashes *txscript.TxSigHashes, priv *btcec.PrivateKey) ([]byte, error) {

	if mode == SighashLegacy {
		return txscript.SignatureScript(msgTx, idx, prevOut.PkScript, txscript.SigHashAll, priv, true)
	}

	hash, err := txscript.CalcWitnessSigHash(prevOut.PkScript, sigHashes, sigHashAllForkID, msgTx, idx, prevOut.Value)
	if err != nil {
		return nil, fmt.Errorf("sighash: %w", err)
	}
	sig := ecdsa.Sign(priv, hash)
	sigBytes := append(sig.Serialize(), byte(sigHashAllForkID))

	return txscript.NewScriptBuilder().
		AddData(sigBytes).
		AddData(priv.PubKey().SerializeCompressed()).
		Script()
}
