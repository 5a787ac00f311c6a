package tensor

import (
	"math/rand"
	"sync"
	"time"
)

var (
	dropoutMu   sync.Mutex
	dropoutRand = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// SetDropoutSeed reseeds the package-level generator used when Dropout is
// called without an explicit source.
func SetDropoutSeed(seed int64) {
	dropoutMu.Lock()
	dropoutRand = rand.New(rand.NewSource(seed))
	dropoutMu.Unlock()
}

// Dropout zeroes each element with probability p and scales the survivors by
// 1/(1-p) (inverted dropout). Outside training, or with p == 0, it returns t
// itself unchanged.
//
// rng may be nil, in which case the package-level generator is used.
func (t *Tensor) Dropout(p float32, training bool, rng *rand.Rand) *Tensor {
	if !training || p == 0 {
		return t
	}
	if p < 0 || p >= 1 {
		panic("dropout probability must be in [0, 1)")
	}

	if rng == nil {
		dropoutMu.Lock()
		defer dropoutMu.Unlock()
		rng = dropoutRand
	}

	result := NewTensor(t.Shape)
	keep := 1 / (1 - p)
	for i, v := range t.Data {
		if rng.Float32() >= p {
			result.Data[i] = v * keep
		}
	}
	return result
}
