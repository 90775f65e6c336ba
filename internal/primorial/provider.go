// Package primorial provides the prime table, primorial products, and the
// small-factor prefilter used by the search.
package primorial

import (
	"math"
	"math/big"
	"sync"

	"github.com/primorial/fortunate/internal/errors"
)

// Provider answers nth-prime and primorial queries for indices up to MaxIndex.
// The sieve is built lazily on first use and shared afterwards; it is safe for
// concurrent use.
type Provider struct {
	maxIndex int

	once   sync.Once
	primes []uint64

	mu    sync.Mutex
	cache map[int]*big.Int
}

// NewProvider creates a provider that accepts indices 1..maxIndex.
func NewProvider(maxIndex int) *Provider {
	if maxIndex < 1 {
		maxIndex = 1
	}
	return &Provider{
		maxIndex: maxIndex,
		cache:    make(map[int]*big.Int),
	}
}

// MaxIndex returns the largest n this provider supports.
func (p *Provider) MaxIndex() int {
	return p.maxIndex
}

// CheckIndex returns an InvalidIndex error if n is outside 1..MaxIndex.
func (p *Provider) CheckIndex(n int) error {
	if n < 1 || n > p.maxIndex {
		return errors.NewInvalidIndex("index out of supported range").WithDetails(map[string]interface{}{
			"n":   n,
			"max": p.maxIndex,
		})
	}
	return nil
}

// NthPrime returns the k-th prime, 1-indexed (NthPrime(1) == 2). The provider
// can answer k up to MaxIndex+1 since the search needs p_{n+1}.
func (p *Provider) NthPrime(k int) (uint64, error) {
	if k < 1 || k > p.maxIndex+1 {
		return 0, errors.NewInvalidIndex("prime index out of supported range").WithDetails(map[string]interface{}{
			"k":   k,
			"max": p.maxIndex + 1,
		})
	}
	return p.table()[k-1], nil
}

// Primes returns the first n primes. The returned slice must not be modified.
func (p *Provider) Primes(n int) ([]uint64, error) {
	if err := p.CheckIndex(n); err != nil {
		return nil, err
	}
	return p.table()[:n:n], nil
}

// Primorial returns the product of the first n primes. Results are cached
// and returned by reference; callers must treat them as read-only.
func (p *Provider) Primorial(n int) (*big.Int, error) {
	if err := p.CheckIndex(n); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if v, ok := p.cache[n]; ok {
		p.mu.Unlock()
		return v, nil
	}
	p.mu.Unlock()

	v := productTree(p.table()[:n])

	p.mu.Lock()
	p.cache[n] = v
	p.mu.Unlock()
	return v, nil
}

// Filter returns the small-factor prefilter for index n.
func (p *Provider) Filter(n int) (*SmallFactorFilter, error) {
	primes, err := p.Primes(n)
	if err != nil {
		return nil, err
	}
	return NewSmallFactorFilter(primes), nil
}

func (p *Provider) table() []uint64 {
	p.once.Do(func() {
		count := p.maxIndex + 1
		p.primes = sieve(count, sieveBound(count))
	})
	return p.primes
}

// productTree multiplies the primes pairwise so the big multiplications stay
// balanced. This is much faster than a running product for large n.
func productTree(primes []uint64) *big.Int {
	switch len(primes) {
	case 0:
		return big.NewInt(1)
	case 1:
		return new(big.Int).SetUint64(primes[0])
	}
	mid := len(primes) / 2
	left := productTree(primes[:mid])
	right := productTree(primes[mid:])
	return left.Mul(left, right)
}

// sieveBound returns an upper bound for the k-th prime (Rosser's theorem
// gives p_k < k(ln k + ln ln k) for k >= 6).
func sieveBound(k int) int {
	if k < 6 {
		return 15
	}
	f := float64(k)
	return int(f*(math.Log(f)+math.Log(math.Log(f)))) + 1
}

// sieve returns the first count primes using an odd-only Eratosthenes sieve
// up to limit.
func sieve(count, limit int) []uint64 {
	primes := make([]uint64, 0, count)
	primes = append(primes, 2)
	if count == 1 {
		return primes
	}

	// composite[i] marks 2i+1.
	composite := make([]bool, limit/2+1)
	for i := 1; 2*i+1 <= limit; i++ {
		if composite[i] {
			continue
		}
		v := 2*i + 1
		primes = append(primes, uint64(v))
		if len(primes) == count {
			break
		}
		for j := v * v; j <= limit; j += 2 * v {
			composite[j/2] = true
		}
	}
	return primes
}
