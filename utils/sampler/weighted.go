package sampler

import (
	"errors"
	"math"
)

var (
	ErrOutOfRange      = errors.New("out of range")
	ErrInsufficientWeight = errors.New("insufficient weight")
)

// uniformSource wraps a Source to provide uniform sampling over a range
type uniformSource struct {
	max    uint64
	source Source
}

// NewUniformSource creates a new uniform source over [0, max)
func NewUniformSource(max uint64, source Source) *uniformSource {
	return &uniformSource{
		max:    max,
		source: source,
	}
}

// Uint64 returns a uniformly distributed value in [0, max)
func (u *uniformSource) Uint64() uint64 {
	return u.source.Uint64() % u.max
}

// weightedWithoutReplacement implements WeightedWithoutReplacement
type weightedWithoutReplacement struct {
	weights []uint64
	totalWeight uint64
	source  Source
}

// NewWeightedWithoutReplacement creates a new weighted sampler without replacement
func NewWeightedWithoutReplacement(source ...Source) WeightedWithoutReplacement {
	var s Source
	if len(source) > 0 {
		s = source[0]
	} else {
		s = NewSource(0)
	}
	return &weightedWithoutReplacement{
		source: s,
	}
}

// Initialize sets the weights
func (w *weightedWithoutReplacement) Initialize(weights []uint64) error {
	w.weights = make([]uint64, len(weights))
	copy(w.weights, weights)
	
	w.totalWeight = 0
	for _, weight := range weights {
		if weight > math.MaxUint64 - w.totalWeight {
			return ErrOutOfRange
		}
		w.totalWeight += weight
	}
	
	return nil
}

// Sample draws size distinct indices without replacement. Each draw
// picks a uniform value against the prefix sum of the remaining pool's
// weights, removes the chosen index from the pool, and renormalizes
// before the next draw — the pool shrinks by one real entry per
// iteration rather than rejecting collisions against the original
// weight space, which can loop indefinitely once few distinct weight
// values remain unused.
func (w *weightedWithoutReplacement) Sample(size int) ([]int, bool) {
	if size == 0 {
		return []int{}, true
	}
	if size > len(w.weights) || w.totalWeight == 0 || uint64(size) > w.totalWeight {
		return nil, false
	}

	pool := make([]int, len(w.weights))
	poolWeights := make([]uint64, len(w.weights))
	for i := range w.weights {
		pool[i] = i
		poolWeights[i] = w.weights[i]
	}
	remaining := w.totalWeight

	indices := make([]int, size)
	for i := 0; i < size; i++ {
		draw := w.source.Uint64() % remaining

		cum := uint64(0)
		chosen := len(pool) - 1
		for j, weight := range poolWeights {
			cum += weight
			if draw < cum {
				chosen = j
				break
			}
		}

		indices[i] = pool[chosen]
		remaining -= poolWeights[chosen]

		pool = append(pool[:chosen], pool[chosen+1:]...)
		poolWeights = append(poolWeights[:chosen], poolWeights[chosen+1:]...)
	}

	return indices, true
}