// Package payout computes win amounts and multipliers from round outcomes.
// All monetary arithmetic is integer; no floating-point currency amount ever
// leaves this package.
package payout

import "math/big"

// Binomial returns C(n, k) exactly. Values in play (up to C(25,12)) fit a
// 64-bit integer with room to spare.
func Binomial(n, k int) int64 {
	if k < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	r := int64(1)
	for i := 1; i <= k; i++ {
		r = r * int64(n-k+i) / int64(i)
	}
	return r
}

// Mines returns the payout amount and x100 multiplier for a session with
// mineCount mines and revealed safe cells:
//
//	multiplier = C(25, revealed) / C(25-mineCount, revealed) * (1 - houseEdge)
//	amount     = floor(stake * multiplier)
//
// Zero revealed cells pay zero, closing the instant-cashout exploit.
func Mines(stake int64, mineCount, revealed int, houseEdgeBps int64) (amount int64, multX100 int64) {
	if revealed <= 0 {
		return 0, 0
	}

	num := big.NewInt(Binomial(25, revealed))
	den := big.NewInt(Binomial(25-mineCount, revealed))
	edge := big.NewInt(10_000 - houseEdgeBps)
	scale := big.NewInt(10_000)

	a := new(big.Int).Mul(big.NewInt(stake), num)
	a.Mul(a, edge)
	a.Quo(a, new(big.Int).Mul(den, scale))

	m := new(big.Int).Mul(big.NewInt(100), num)
	m.Mul(m, edge)
	m.Quo(m, new(big.Int).Mul(den, scale))

	return a.Int64(), m.Int64()
}

// Crash returns floor(stake * mult) for a x100 fixed-point multiplier.
func Crash(stake, multX100 int64) int64 {
	a := new(big.Int).Mul(big.NewInt(stake), big.NewInt(multX100))
	return a.Quo(a, big.NewInt(100)).Int64()
}
