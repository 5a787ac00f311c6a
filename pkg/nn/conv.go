package nn

import (
	"fmt"
	"math/rand"

	"seqnet/pkg/tensor"
)

// Conv1D is a 1-D convolution over the time axis of (batch, channels, time)
// input. The kernel is applied as an im2col gather followed by one GEMM per
// batch element.
type Conv1D struct {
	InChannels  int
	OutChannels int
	KernelSize  int
	Stride      int
	Padding     int

	Weight *tensor.Tensor // (out_channels, in_channels, kernel_size)
	Bias   *tensor.Tensor // (out_channels,)
}

// NewConv1D creates a convolution whose weights and bias are drawn from
// U[-1/sqrt(fan_in), 1/sqrt(fan_in)] with fan_in = in_channels*kernel_size.
func NewConv1D(in, out, kernel, stride, padding int, rng *rand.Rand) *Conv1D {
	c := &Conv1D{
		InChannels:  in,
		OutChannels: out,
		KernelSize:  kernel,
		Stride:      stride,
		Padding:     padding,
		Weight:      tensor.NewTensor([]int{out, in, kernel}),
		Bias:        tensor.NewTensor([]int{out}),
	}
	bound := fanInBound(in * kernel)
	uniformInit(c.Weight, bound, rng)
	uniformInit(c.Bias, bound, rng)
	return c
}

// OutputLength returns the output time length for an input of length t.
func (c *Conv1D) OutputLength(t int) int {
	span := t + 2*c.Padding - c.KernelSize
	if span < 0 {
		return 0
	}
	return span/c.Stride + 1
}

// Forward convolves x of shape (batch, in_channels, time) and returns
// (batch, out_channels, OutputLength(time)).
func (c *Conv1D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 3 {
		return nil, fmt.Errorf("%w: Conv1D expects 3D input (batch, channels, time), got shape %v",
			tensor.ErrShapeMismatch, x.Shape)
	}
	batch, channels, length := x.Shape[0], x.Shape[1], x.Shape[2]
	if channels != c.InChannels {
		return nil, fmt.Errorf("%w: input has %d channels, Conv1D expects %d",
			tensor.ErrShapeMismatch, channels, c.InChannels)
	}

	outLen := c.OutputLength(length)
	out := tensor.NewTensor([]int{batch, c.OutChannels, outLen})
	if outLen == 0 {
		return out, nil
	}

	k := c.InChannels * c.KernelSize
	cols := make([]float32, k*outLen)
	outStride := c.OutChannels * outLen

	for b := 0; b < batch; b++ {
		src := x.Data[b*channels*length : (b+1)*channels*length]

		// cols[(ch*kernel + j), o] = x[b, ch, o*stride + j - padding]
		for ch := 0; ch < channels; ch++ {
			row := src[ch*length : (ch+1)*length]
			for j := 0; j < c.KernelSize; j++ {
				dst := cols[(ch*c.KernelSize+j)*outLen : (ch*c.KernelSize+j+1)*outLen]
				for o := range dst {
					pos := o*c.Stride + j - c.Padding
					if pos < 0 || pos >= length {
						dst[o] = 0
					} else {
						dst[o] = row[pos]
					}
				}
			}
		}

		res := out.Data[b*outStride : (b+1)*outStride]
		tensor.Gemm(false, false, c.OutChannels, outLen, k, c.Weight.Data, cols, res)

		for oc, bias := range c.Bias.Data {
			row := res[oc*outLen : (oc+1)*outLen]
			for o := range row {
				row[o] += bias
			}
		}
	}

	return out, nil
}

// Parameters returns the kernel and bias.
func (c *Conv1D) Parameters() []Parameter {
	return []Parameter{
		{Name: "weight", Value: c.Weight},
		{Name: "bias", Value: c.Bias},
	}
}
