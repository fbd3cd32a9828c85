package fees

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FeeDenominator is the basis-point scale: 10000 basis points = 100%.
const FeeDenominator = 10000

// Schedule is an immutable snapshot of the proxy's fee configuration.
// The proxy core owns the mutable copy; everything downstream (calculator,
// reconciler, API) works on snapshots so a concurrent admin update can never
// change the terms of an in-flight payment.
type Schedule struct {
	// FixedFee is the flat fee charged once per positive deposit entry.
	FixedFee *big.Int

	// PercentageFee is the proportional fee in basis points, <= FeeDenominator.
	PercentageFee uint64

	// Recipient receives all collected fees.
	Recipient common.Address
}

// Copy returns a deep copy of the schedule. FixedFee is the only pointer
// field; copying it keeps snapshots independent of later admin mutations.
func (s Schedule) Copy() Schedule {
	out := s
	if s.FixedFee != nil {
		out.FixedFee = new(big.Int).Set(s.FixedFee)
	} else {
		out.FixedFee = new(big.Int)
	}
	return out
}

// fixed returns the fixed fee, treating a nil pointer as zero.
func (s Schedule) fixed() *big.Int {
	if s.FixedFee == nil {
		return new(big.Int)
	}
	return s.FixedFee
}

// CountPositive returns the number of strictly positive entries in amounts.
// Zero-valued entries contribute neither fixed nor percentage fee, so they
// are excluded from the fee count everywhere.
func CountPositive(amounts []*big.Int) uint64 {
	var n uint64
	for _, a := range amounts {
		if a != nil && a.Sign() > 0 {
			n++
		}
	}
	return n
}

// Sum returns the total of amounts. Nil entries count as zero.
func Sum(amounts []*big.Int) *big.Int {
	total := new(big.Int)
	for _, a := range amounts {
		if a != nil {
			total.Add(total, a)
		}
	}
	return total
}
