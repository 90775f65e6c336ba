package primorial

import (
	"math/big"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_FilterMatchesGCD verifies that the prefilter flags an offset
// exactly when it shares a factor with the primorial.
func TestProperty_FilterMatchesGCD(t *testing.T) {
	provider := NewProvider(64)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("SharesFactor agrees with gcd(primorial, k) > 1", prop.ForAll(
		func(n int, k uint64) bool {
			f, err := provider.Filter(n)
			if err != nil {
				return false
			}
			prim, err := provider.Primorial(n)
			if err != nil {
				return false
			}
			g := new(big.Int).GCD(nil, nil, prim, new(big.Int).SetUint64(k))
			return f.SharesFactor(k) == (g.Cmp(big.NewInt(1)) > 0)
		},
		gen.IntRange(1, 64),
		gen.UInt64Range(2, 1_000_000),
	))

	properties.TestingRun(t)
}

// TestProperty_FilterCoversPrunedPrefix verifies that every offset 2..p_n is
// flagged, which is what makes starting the search at p_{n+1} sound.
func TestProperty_FilterCoversPrunedPrefix(t *testing.T) {
	provider := NewProvider(200)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("offsets up to p_n share a factor", prop.ForAll(
		func(n int) bool {
			f, err := provider.Filter(n)
			if err != nil {
				return false
			}
			pn, _ := provider.NthPrime(n)
			for k := uint64(2); k <= pn; k++ {
				if !f.SharesFactor(k) {
					return false
				}
			}
			next, _ := provider.NthPrime(n + 1)
			return !f.SharesFactor(next)
		},
		gen.IntRange(1, 200),
	))

	properties.TestingRun(t)
}

func TestSmallFactorFilter_Examples(t *testing.T) {
	f := NewSmallFactorFilter([]uint64{2, 3, 5, 7, 11})

	tests := []struct {
		offset uint64
		want   bool
	}{
		{0, false},
		{1, false},
		{2, true},
		{11, true},
		{13, false},
		{14, true},
		{169, false}, // 13*13
		{221, false}, // 13*17
		{143, true},  // 11*13
		{23, false},
	}
	for _, tt := range tests {
		if got := f.SharesFactor(tt.offset); got != tt.want {
			t.Errorf("SharesFactor(%d) = %v, want %v", tt.offset, got, tt.want)
		}
	}
}
