package nn

import (
	"math"
	"math/rand"

	"seqnet/pkg/tensor"
)

// uniformInit fills t with values drawn from U[-bound, bound].
// A nil rng falls back to the math/rand global source.
func uniformInit(t *tensor.Tensor, bound float64, rng *rand.Rand) {
	next := rand.Float64
	if rng != nil {
		next = rng.Float64
	}
	for i := range t.Data {
		t.Data[i] = float32(next()*2*bound - bound)
	}
}

// fanInBound is the default bound for linear and convolution weights and
// biases: 1/sqrt(fan_in). It equals Kaiming uniform with a = sqrt(5).
func fanInBound(fanIn int) float64 {
	if fanIn <= 0 {
		return 0
	}
	return 1 / math.Sqrt(float64(fanIn))
}
