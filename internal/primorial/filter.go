package primorial

// SmallFactorFilter recognizes offsets k for which primorial(n)+k is
// trivially composite: any prime p <= p_n that divides k also divides the
// primorial, so it divides the sum.
type SmallFactorFilter struct {
	primes  []uint64
	largest uint64
}

// NewSmallFactorFilter builds a filter over the given ascending primes.
func NewSmallFactorFilter(primes []uint64) *SmallFactorFilter {
	f := &SmallFactorFilter{primes: primes}
	if len(primes) > 0 {
		f.largest = primes[len(primes)-1]
	}
	return f
}

// SharesFactor reports whether offset shares a prime factor with the
// primorial. Offsets 0 and 1 are never reported.
func (f *SmallFactorFilter) SharesFactor(offset uint64) bool {
	if offset < 2 || len(f.primes) == 0 {
		return false
	}
	// Every 2 <= k <= p_n has a prime factor no larger than itself.
	if offset <= f.largest {
		return true
	}
	for _, p := range f.primes {
		if p*p > offset {
			// offset is prime or has only factors above p_n
			return false
		}
		if offset%p == 0 {
			return true
		}
	}
	return false
}
