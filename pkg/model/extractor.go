package model

import (
	"fmt"
	"math/rand"

	"seqnet/pkg/nn"
	"seqnet/pkg/tensor"
)

// ConvBlock is one downsampling stage of the feature extractor:
//
//	Conv1D(k, stride 1, same padding) -> BatchNorm1D -> ReLU -> MaxPool(pool, stride pool)
type ConvBlock struct {
	Conv     *nn.Conv1D
	Norm     *nn.BatchNorm1D
	PoolSize int
}

// Forward runs the block on (batch, in_channels, time) and returns
// (batch, out_channels, time/pool).
func (b *ConvBlock) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	h, err := b.Conv.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("failed to apply convolution: %w", err)
	}

	h, err = b.Norm.Forward(h)
	if err != nil {
		return nil, fmt.Errorf("failed to apply normalization: %w", err)
	}

	h.ReLUInPlace()

	h, err = tensor.MaxPool1D(h, b.PoolSize, b.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to apply pooling: %w", err)
	}

	return h, nil
}

// OutputLength returns the block's output length for an input of length t.
func (b *ConvBlock) OutputLength(t int) int {
	t = b.Conv.OutputLength(t)
	if t < b.PoolSize {
		return 0
	}
	return t / b.PoolSize
}

// TemporalFeatureExtractor downsamples a multi-channel sequence while
// widening its channels. With the default configuration it maps
// (batch, 8, T) to (batch, 128, floor(floor(T/2)/2)).
//
// Sequence lengths that are not divisible by the pool size are truncated:
// each pooling stage drops a trailing partial window. A sequence too short
// for a stage comes out with length zero.
type TemporalFeatureExtractor struct {
	InputSize int
	Blocks    []*ConvBlock
}

// NewTemporalFeatureExtractor builds one ConvBlock per entry of
// config.ConvChannels.
func NewTemporalFeatureExtractor(config Config, rng *rand.Rand) *TemporalFeatureExtractor {
	e := &TemporalFeatureExtractor{
		InputSize: config.InputSize,
		Blocks:    make([]*ConvBlock, len(config.ConvChannels)),
	}

	in := config.InputSize
	for i, out := range config.ConvChannels {
		e.Blocks[i] = &ConvBlock{
			Conv:     nn.NewConv1D(in, out, config.KernelSize, 1, config.KernelSize/2, rng),
			Norm:     nn.NewBatchNorm1D(out, config.NormEps, config.NormMomentum),
			PoolSize: config.PoolSize,
		}
		in = out
	}

	return e
}

// Forward maps (batch, input_size, time) to (batch, features, OutputLength(time)).
//
// In training mode every normalization layer updates its running statistics.
func (e *TemporalFeatureExtractor) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 3 {
		return nil, fmt.Errorf("%w: expected 3D input (batch, channels, time), got shape %v",
			tensor.ErrShapeMismatch, x.Shape)
	}
	if x.Shape[1] != e.InputSize {
		return nil, fmt.Errorf("%w: input has %d channels, feature extractor expects %d",
			tensor.ErrShapeMismatch, x.Shape[1], e.InputSize)
	}

	var err error
	for i, block := range e.Blocks {
		x, err = block.Forward(x)
		if err != nil {
			return nil, fmt.Errorf("failed in conv block %d: %w", i+1, err)
		}
	}
	return x, nil
}

// OutputLength returns the sequence length produced for an input of length t.
func (e *TemporalFeatureExtractor) OutputLength(t int) int {
	for _, block := range e.Blocks {
		t = block.OutputLength(t)
	}
	return t
}

// OutputSize is the channel width of the extracted features.
func (e *TemporalFeatureExtractor) OutputSize() int {
	return e.Blocks[len(e.Blocks)-1].Conv.OutChannels
}

// SetTraining switches every normalization layer between batch and running
// statistics.
func (e *TemporalFeatureExtractor) SetTraining(training bool) {
	for _, block := range e.Blocks {
		block.Norm.SetTraining(training)
	}
}

// Parameters returns "conv<n>.*" and "norm<n>.*" for every block, 1-based.
func (e *TemporalFeatureExtractor) Parameters() []nn.Parameter {
	var params []nn.Parameter
	for i, block := range e.Blocks {
		params = append(params, nn.Prefix(fmt.Sprintf("conv%d", i+1), block.Conv.Parameters())...)
		params = append(params, nn.Prefix(fmt.Sprintf("norm%d", i+1), block.Norm.Parameters())...)
	}
	return params
}
