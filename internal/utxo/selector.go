// Package utxo picks unspent outputs to fund a payment.
package utxo

import (
	"fmt"
	"math/bits"
	"sort"

	"github.com/OKaluzny/healthchain-wallet/pkg/models"
)

// Size estimate used during selection, in bytes.
const (
	InputSize    = 180
	OutputSize   = 34
	OutputCount  = 2 // payment + change
	OverheadSize = 10

	// DefaultFeeRate is sat/byte when the caller passes zero.
	DefaultFeeRate = 1
)

// Selection is the result of Select.
type Selection struct {
	Selected     []models.UnspentOutput
	Total        uint64
	EstimatedFee uint64
}

// Strategy orders candidate outputs before the greedy pass.
type Strategy interface {
	Arrange(available []models.UnspentOutput) []models.UnspentOutput
}

type asReceived struct{}

func (asReceived) Arrange(in []models.UnspentOutput) []models.UnspentOutput {
	return append([]models.UnspentOutput(nil), in...)
}

type largestFirst struct{}

func (largestFirst) Arrange(in []models.UnspentOutput) []models.UnspentOutput {
	out := append([]models.UnspentOutput(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	return out
}

type smallestFirst struct{}

func (smallestFirst) Arrange(in []models.UnspentOutput) []models.UnspentOutput {
	out := append([]models.UnspentOutput(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

var (
	// AsReceived keeps the indexer's order.
	AsReceived Strategy = asReceived{}
	// LargestFirst uses fewer inputs and so pays lower fees.
	LargestFirst Strategy = largestFirst{}
	// SmallestFirst consolidates dust.
	SmallestFirst Strategy = smallestFirst{}
)

// ParseStrategy maps a config value to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "as-received", "":
		return AsReceived, nil
	case "largest-first":
		return LargestFirst, nil
	case "smallest-first":
		return SmallestFirst, nil
	}
	return nil, fmt.Errorf("unknown coin selection %q", name)
}

// EstimateSize returns the estimated size of a transaction spending n inputs
// into a payment and a change output.
func EstimateSize(n int) uint64 {
	return uint64(n)*InputSize + OutputCount*OutputSize + OverheadSize
}

// Select picks outputs in AsReceived order.
func Select(available []models.UnspentOutput, target, feeRate uint64) (*Selection, error) {
	return SelectWith(AsReceived, available, target, feeRate)
}

// SelectWith accumulates outputs in the order given by strategy and stops at
// the first prefix whose total covers target plus the estimated fee.
// available is never modified. Amounts above models.MaxSatoshis are rejected
// with models.ErrInvalidRequest.
func SelectWith(strategy Strategy, available []models.UnspentOutput, target, feeRate uint64) (*Selection, error) {
	if target > models.MaxSatoshis {
		return nil, fmt.Errorf("%w: amount %d exceeds the coin supply", models.ErrInvalidRequest, target)
	}
	if feeRate == 0 {
		feeRate = DefaultFeeRate
	}
	if strategy == nil {
		strategy = AsReceived
	}

	var (
		selected []models.UnspentOutput
		total    uint64
	)
	for _, u := range strategy.Arrange(available) {
		if u.Value > models.MaxSatoshis || total+u.Value > models.MaxSatoshis {
			return nil, fmt.Errorf("%w: utxo %s:%d value out of range", models.ErrInvalidRequest, u.TxID, u.Vout)
		}
		selected = append(selected, u)
		total += u.Value
		hi, fee := bits.Mul64(EstimateSize(len(selected)), feeRate)
		if hi != 0 {
			break
		}
		if total >= fee && total-fee >= target {
			return &Selection{Selected: selected, Total: total, EstimatedFee: fee}, nil
		}
	}
	return nil, models.ErrInsufficientFunds
}
