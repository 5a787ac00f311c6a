package tensor

import "math"

// ReLU applies the rectified linear unit element-wise and returns a new tensor.
//
//	ReLU(x) = max(0, x)
func (t *Tensor) ReLU() *Tensor {
	return t.Clone().ReLUInPlace()
}

// ReLUInPlace zeroes every negative element of t and returns t.
func (t *Tensor) ReLUInPlace() *Tensor {
	for i, v := range t.Data {
		if v < 0 {
			t.Data[i] = 0
		}
	}
	return t
}

// Sigmoid computes the logistic function 1 / (1 + exp(-x)).
func Sigmoid(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(-float64(x))))
}

// Tanh computes the hyperbolic tangent.
func Tanh(x float32) float32 {
	return float32(math.Tanh(float64(x)))
}
