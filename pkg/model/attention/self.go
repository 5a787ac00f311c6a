// Package attention implements the scaled dot-product self-attention block
// that re-weights every timestep of a sequence using all other timesteps.
package attention

import (
	"fmt"
	"math"
	"math/rand"

	"seqnet/pkg/nn"
	"seqnet/pkg/tensor"
)

// SelfAttention is single-head, unmasked scaled dot-product attention with
// independent key, query and value projections of width Dim.
//
// Every timestep may attend to every other timestep, in both directions; the
// block is shape-preserving.
type SelfAttention struct {
	Dim   int
	Key   *nn.Linear // (dim, dim)
	Query *nn.Linear // (dim, dim)
	Value *nn.Linear // (dim, dim)
}

// NewSelfAttention creates a self-attention block of the given feature width.
func NewSelfAttention(dim int, rng *rand.Rand) *SelfAttention {
	return &SelfAttention{
		Dim:   dim,
		Key:   nn.NewLinear(dim, dim, true, rng),
		Query: nn.NewLinear(dim, dim, true, rng),
		Value: nn.NewLinear(dim, dim, true, rng),
	}
}

// ForwardWithWeights computes self-attention and also returns the attention
// weights.
//
// Input shape: (batch, seq, dim)
// Output shapes: (batch, seq, dim) and weights (batch, seq, seq)
//
// Steps:
//  1. K, Q, V = x @ Key, x @ Query, x @ Value
//  2. scores = Q @ K^T / sqrt(dim)
//  3. weights = softmax(scores) over the key axis; each row sums to 1
//  4. output = weights @ V
func (a *SelfAttention) ForwardWithWeights(x *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	if len(x.Shape) != 3 {
		return nil, nil, fmt.Errorf("%w: expected 3D input (batch, seq, dim), got shape %v",
			tensor.ErrShapeMismatch, x.Shape)
	}
	if x.Shape[2] != a.Dim {
		return nil, nil, fmt.Errorf("%w: input dimension %d doesn't match attention dimension %d",
			tensor.ErrShapeMismatch, x.Shape[2], a.Dim)
	}

	K, err := a.Key.Forward(x)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute keys: %w", err)
	}
	Q, err := a.Query.Forward(x)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute queries: %w", err)
	}
	V, err := a.Value.Forward(x)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute values: %w", err)
	}

	// scores: (batch, seq, dim) @ (batch, seq, dim)^T -> (batch, seq, seq)
	scores, err := tensor.MatmulTransposed(Q, K)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute attention scores: %w", err)
	}
	norm := float32(math.Sqrt(float64(a.Dim)))
	for i := range scores.Data {
		scores.Data[i] /= norm
	}

	weights, err := tensor.SoftmaxLast(scores)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to apply softmax: %w", err)
	}

	// (batch, seq, seq) @ (batch, seq, dim) -> (batch, seq, dim)
	output, err := tensor.Matmul(weights, V)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute attention output: %w", err)
	}

	return output, weights, nil
}

// Forward computes self-attention and discards the weights.
func (a *SelfAttention) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out, _, err := a.ForwardWithWeights(x)
	return out, err
}

// Parameters returns the key, query and value projections.
func (a *SelfAttention) Parameters() []nn.Parameter {
	var params []nn.Parameter
	params = append(params, nn.Prefix("key", a.Key.Parameters())...)
	params = append(params, nn.Prefix("query", a.Query.Parameters())...)
	params = append(params, nn.Prefix("value", a.Value.Parameters())...)
	return params
}
