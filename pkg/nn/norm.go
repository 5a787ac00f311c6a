package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"seqnet/pkg/tensor"
)

// BatchNorm1D implements per-channel batch normalization with learnable scale
// and shift and tracked running statistics.
//
// The input is (batch, channels, time) or (batch, channels). Statistics for a
// channel are taken over every batch and time position.
//
// Formula:
//
//	x_norm = (x - mean) / sqrt(var + eps)
//	output = x_norm * Weight + Bias
//
// In training mode mean and var are the biased batch statistics, and the
// running estimates are updated as
//
//	running = (1 - momentum) * running + momentum * batch_stat
//
// where the variance fed into the running estimate is the unbiased one. In
// evaluation mode the running estimates are used and nothing is mutated.
type BatchNorm1D struct {
	NumFeatures int
	Eps         float32
	Momentum    float32

	Weight *tensor.Tensor // (channels,) - gamma
	Bias   *tensor.Tensor // (channels,) - beta

	RunningMean *tensor.Tensor // (channels,)
	RunningVar  *tensor.Tensor // (channels,)

	// NumBatchesTracked counts training-mode forward passes.
	NumBatchesTracked int

	Training bool
}

// NewBatchNorm1D creates a BatchNorm1D layer with scale 1, shift 0, running
// mean 0 and running variance 1. New layers start in training mode.
func NewBatchNorm1D(numFeatures int, eps, momentum float32) *BatchNorm1D {
	return &BatchNorm1D{
		NumFeatures: numFeatures,
		Eps:         eps,
		Momentum:    momentum,
		Weight:      tensor.Full([]int{numFeatures}, 1),
		Bias:        tensor.NewTensor([]int{numFeatures}),
		RunningMean: tensor.NewTensor([]int{numFeatures}),
		RunningVar:  tensor.Full([]int{numFeatures}, 1),
		Training:    true,
	}
}

// SetTraining switches between batch statistics (true) and running
// statistics (false).
func (bn *BatchNorm1D) SetTraining(training bool) {
	bn.Training = training
}

// Forward normalizes x and returns a new tensor of the same shape.
func (bn *BatchNorm1D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 2 && len(x.Shape) != 3 {
		return nil, fmt.Errorf("%w: BatchNorm1D expects 2D or 3D input, got shape %v",
			tensor.ErrShapeMismatch, x.Shape)
	}
	batch, channels := x.Shape[0], x.Shape[1]
	if channels != bn.NumFeatures {
		return nil, fmt.Errorf("%w: input has %d channels, BatchNorm1D expects %d",
			tensor.ErrShapeMismatch, channels, bn.NumFeatures)
	}
	length := 1
	if len(x.Shape) == 3 {
		length = x.Shape[2]
	}

	n := batch * length
	if bn.Training && n < 2 {
		return nil, fmt.Errorf("%w: expected more than 1 value per channel when training, got input shape %v",
			tensor.ErrShapeMismatch, x.Shape)
	}

	result := tensor.NewTensor(x.Shape)
	if n == 0 {
		return result, nil
	}

	values := make([]float64, n)
	for c := 0; c < channels; c++ {
		var mean, variance float64

		if bn.Training {
			i := 0
			for b := 0; b < batch; b++ {
				for _, v := range x.Data[(b*channels+c)*length : (b*channels+c+1)*length] {
					values[i] = float64(v)
					i++
				}
			}
			mean = floats.Sum(values) / float64(n)
			floats.AddConst(-mean, values)
			sumSq := floats.Dot(values, values)
			variance = sumSq / float64(n)

			m := float64(bn.Momentum)
			unbiased := sumSq / float64(n-1)
			bn.RunningMean.Data[c] = float32((1-m)*float64(bn.RunningMean.Data[c]) + m*mean)
			bn.RunningVar.Data[c] = float32((1-m)*float64(bn.RunningVar.Data[c]) + m*unbiased)
		} else {
			mean = float64(bn.RunningMean.Data[c])
			variance = float64(bn.RunningVar.Data[c])
		}

		invStd := 1 / math.Sqrt(variance+float64(bn.Eps))
		scale := float64(bn.Weight.Data[c]) * invStd
		shift := float64(bn.Bias.Data[c]) - mean*scale

		for b := 0; b < batch; b++ {
			off := (b*channels + c) * length
			for t := 0; t < length; t++ {
				result.Data[off+t] = float32(float64(x.Data[off+t])*scale + shift)
			}
		}
	}

	if bn.Training {
		bn.NumBatchesTracked++
	}

	return result, nil
}

// Parameters returns the learnable scale and shift. Running statistics are
// buffers, not parameters.
func (bn *BatchNorm1D) Parameters() []Parameter {
	return []Parameter{
		{Name: "weight", Value: bn.Weight},
		{Name: "bias", Value: bn.Bias},
	}
}
