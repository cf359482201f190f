package tx

import (
	"bytes"
	"context"
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/OKaluzny/healthchain-wallet/pkg/models"
)

// PrevTxFetcher returns the raw hex of a transaction by id.
type PrevTxFetcher interface {
	RawTransaction(ctx context.Context, txid string) (string, error)
}

// SignRaw signs every input of an externally built transaction that spends a
// P2PKH output of key. Inputs locked to other scripts are left untouched.
// It fails with ErrSigningFailed when no input belongs to key.
func (b *Builder) SignRaw(ctx context.Context, rawHex string, key *models.KeyMaterial, prev PrevTxFetcher) (*models.SignedTransaction, error) {
	priv, pub, err := unlockKey(key)
	if err != nil {
		return nil, err
	}
	defer priv.Zero()

	msgTx, err := deserialize(rawHex)
	if err != nil {
		return nil, err
	}
	if len(msgTx.TxIn) == 0 {
		return nil, fmt.Errorf("%w: transaction has no inputs", models.ErrSigningFailed)
	}
	ownScript, err := p2pkhScript(pub, b.cfg.Network)
	if err != nil {
		return nil, err
	}

	parents := make(map[string]*wire.MsgTx)
	prevOuts := make([]*wire.TxOut, len(msgTx.TxIn))
	var (
		mine       []int
		inputTotal uint64
	)
	for i, in := range msgTx.TxIn {
		txid := in.PreviousOutPoint.Hash.String()
		parent, ok := parents[txid]
		if !ok {
			parentHex, err := prev.RawTransaction(ctx, txid)
			if err != nil {
				return nil, fmt.Errorf("fetch input %d parent %s: %w", i, txid, err)
			}
			if parent, err = deserialize(parentHex); err != nil {
				return nil, fmt.Errorf("input %d parent %s: %w", i, txid, err)
			}
			if parent.TxHash() != in.PreviousOutPoint.Hash {
				return nil, fmt.Errorf("input %d: indexer returned a different transaction for %s", i, txid)
			}
			parents[txid] = parent
		}

		vout := in.PreviousOutPoint.Index
		if int(vout) >= len(parent.TxOut) {
			return nil, fmt.Errorf("input %d: %s has no output %d", i, txid, vout)
		}
		prevOuts[i] = parent.TxOut[vout]
		inputTotal += uint64(prevOuts[i].Value)
		if bytes.Equal(prevOuts[i].PkScript, ownScript) {
			mine = append(mine, i)
		}
	}
	if len(mine) == 0 {
		return nil, fmt.Errorf("%w: no input spends this wallet's outputs", models.ErrSigningFailed)
	}

	if err := signInputs(b.cfg.Sighash, msgTx, prevOuts, mine, priv); err != nil {
		return nil, err
	}

	out, err := serialize(msgTx)
	if err != nil {
		return nil, err
	}

	var outputTotal uint64
	outputs := make([]models.TxOutput, 0, len(msgTx.TxOut))
	for _, o := range msgTx.TxOut {
		outputTotal += uint64(o.Value)
		outputs = append(outputs, models.TxOutput{
			Address:  scriptAddress(o.PkScript, b.cfg.Network),
			Satoshis: uint64(o.Value),
			Change:   bytes.Equal(o.PkScript, ownScript),
		})
	}
	var fee uint64
	if inputTotal > outputTotal {
		fee = inputTotal - outputTotal
	}

	b.logger.Info("raw transaction signed",
		"txid", msgTx.TxHash().String(),
		"signed_inputs", len(mine),
		"inputs", len(msgTx.TxIn),
	)
	return &models.SignedTransaction{
		RawHex:      out,
		TxID:        msgTx.TxHash().String(),
		Fee:         fee,
		InputTotal:  inputTotal,
		OutputTotal: outputTotal,
		Outputs:     outputs,
	}, nil
}
