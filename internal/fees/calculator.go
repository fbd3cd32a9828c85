package fees

import "math/big"

// Fee computation over a Schedule snapshot. All functions are pure and all
// divisions truncate toward zero: a fee is never rounded up.

// DepositFee returns fixedFee*count + floor(totalAmount*percentageFee/10000).
// count must be the number of strictly positive entries being deposited
// (see CountPositive); totalAmount is their sum.
func (s Schedule) DepositFee(count uint64, totalAmount *big.Int) *big.Int {
	fee := new(big.Int).Mul(s.fixed(), new(big.Int).SetUint64(count))
	if totalAmount != nil && totalAmount.Sign() > 0 && s.PercentageFee > 0 {
		pct := new(big.Int).Mul(totalAmount, new(big.Int).SetUint64(s.PercentageFee))
		pct.Div(pct, big.NewInt(FeeDenominator))
		fee.Add(fee, pct)
	}
	return fee
}

// TotalDepositCost returns the total payment required to net `amount` into
// the vault through a single deposit: amount + DepositFee(1, amount).
func (s Schedule) TotalDepositCost(amount *big.Int) *big.Int {
	if amount == nil {
		amount = new(big.Int)
	}
	return new(big.Int).Add(amount, s.DepositFee(1, amount))
}

// TotalCreationCost returns the total payment required for a creation call:
// the vault's own cost plus the proxy fee on the deposited amounts.
func (s Schedule) TotalCreationCost(count uint64, totalAmount, vaultCost *big.Int) *big.Int {
	if vaultCost == nil {
		vaultCost = new(big.Int)
	}
	return new(big.Int).Add(vaultCost, s.DepositFee(count, totalAmount))
}

// InverseDepositAmount solves x + fixedFee + floor(x*percentageFee/10000) = paid
// for the largest x consistent with truncation:
//
//	x = floor((paid - fixedFee) * 10000 / (10000 + percentageFee))
//
// Returns zero when paid does not exceed the fixed fee. This is the only
// inversion in the system: the single-deposit entry point lets the caller
// state the total payment rather than the net deposit amount.
func (s Schedule) InverseDepositAmount(paid *big.Int) *big.Int {
	if paid == nil || paid.Cmp(s.fixed()) <= 0 {
		return new(big.Int)
	}
	net := new(big.Int).Sub(paid, s.fixed())
	net.Mul(net, big.NewInt(FeeDenominator))
	return net.Div(net, new(big.Int).SetUint64(FeeDenominator+s.PercentageFee))
}
