package nn

import (
	"fmt"
	"math/rand"

	"seqnet/pkg/tensor"
)

// Linear applies an affine projection to the last dimension of its input.
//
//	output = x @ Weight + Bias
//
// The weight is stored as (in, out) so the projection is a plain matmul.
type Linear struct {
	In     int
	Out    int
	Weight *tensor.Tensor // (in, out)
	Bias   *tensor.Tensor // (out,), nil when the layer has no bias
}

// NewLinear creates a Linear layer with weights and bias drawn from
// U[-1/sqrt(in), 1/sqrt(in)].
func NewLinear(in, out int, bias bool, rng *rand.Rand) *Linear {
	l := &Linear{
		In:     in,
		Out:    out,
		Weight: tensor.NewTensor([]int{in, out}),
	}
	bound := fanInBound(in)
	uniformInit(l.Weight, bound, rng)
	if bias {
		l.Bias = tensor.NewTensor([]int{out})
		uniformInit(l.Bias, bound, rng)
	}
	return l
}

// Forward projects x of shape (..., in) to (..., out).
func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) < 2 {
		return nil, fmt.Errorf("%w: Linear expects at least 2D input, got shape %v",
			tensor.ErrShapeMismatch, x.Shape)
	}
	if last := x.Shape[len(x.Shape)-1]; last != l.In {
		return nil, fmt.Errorf("%w: input dimension %d doesn't match Linear input dimension %d",
			tensor.ErrShapeMismatch, last, l.In)
	}

	out, err := tensor.Matmul(x, l.Weight)
	if err != nil {
		return nil, fmt.Errorf("failed to compute projection: %w", err)
	}

	if l.Bias != nil && l.Out > 0 {
		for off := 0; off < len(out.Data); off += l.Out {
			row := out.Data[off : off+l.Out]
			for j, b := range l.Bias.Data {
				row[j] += b
			}
		}
	}

	return out, nil
}

// Parameters returns the weight and, if present, the bias.
func (l *Linear) Parameters() []Parameter {
	params := []Parameter{{Name: "weight", Value: l.Weight}}
	if l.Bias != nil {
		params = append(params, Parameter{Name: "bias", Value: l.Bias})
	}
	return params
}
