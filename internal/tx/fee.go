package tx

// FeeModel computes the fee for a transaction of size bytes.
type FeeModel interface {
	Fee(size int) uint64
}

// SatoshisPerKilobyte charges Satoshis per 1000 bytes, rounded up.
type SatoshisPerKilobyte struct {
	Satoshis uint64
}

// DefaultFeeModel is the ledger's standard relay rate.
var DefaultFeeModel FeeModel = SatoshisPerKilobyte{Satoshis: 1000}

func (m SatoshisPerKilobyte) Fee(size int) uint64 {
	if size <= 0 {
		return 0
	}
	return (uint64(size)*m.Satoshis + 999) / 1000
}
