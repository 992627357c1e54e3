package game

import (
	"math"
	"math/bits"
)

const (
	BasisPoints = 10000

	// MaxStake keeps the pot of two stakes inside a postgres bigint, the
	// column type of every stored amount.
	MaxStake = math.MaxInt64 / 2
)

// Settle splits a pot into the protocol fee and the winner's payout. The fee
// is floored, so any rounding remainder stays with the payout and
// fee + payout always equals pot. feeBps must not exceed BasisPoints.
func Settle(pot, feeBps uint64) (fee uint64, payout uint64) {
	hi, lo := bits.Mul64(pot, feeBps)
	fee, _ = bits.Div64(hi, lo, BasisPoints)
	return fee, pot - fee
}
