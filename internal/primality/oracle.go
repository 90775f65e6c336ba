// Package primality provides probable-prime oracles for the search.
package primality

import (
	"fmt"
	"math/big"

	"github.com/primorial/fortunate/internal/errors"
)

// Oracle answers probable-primality queries. Implementations must be safe
// for concurrent use and must not retain or modify v.
type Oracle interface {
	IsProbablePrime(v *big.Int, rounds int) (bool, error)
}

// MillerRabin is the in-process oracle. It runs the given number of
// Miller-Rabin rounds with random bases followed by a Baillie-PSW test, as
// implemented by math/big.
type MillerRabin struct{}

// NewMillerRabin returns the in-process oracle.
func NewMillerRabin() *MillerRabin {
	return &MillerRabin{}
}

// IsProbablePrime implements Oracle.
func (MillerRabin) IsProbablePrime(v *big.Int, rounds int) (bool, error) {
	if v == nil {
		return false, errors.NewOracleFailure("nil candidate", nil)
	}
	if rounds < 0 {
		return false, errors.NewOracleFailure("invalid round count", fmt.Errorf("rounds=%d", rounds))
	}
	return v.ProbablyPrime(rounds), nil
}
