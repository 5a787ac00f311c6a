// Package nn implements the learned layers of the sequence model.
//
// Every layer owns its parameters exclusively and exposes them through the
// Module interface. Layers never mutate parameters during a forward pass; the
// only state changed by Forward is the running statistics of BatchNorm1D in
// training mode.
package nn

import (
	"seqnet/pkg/tensor"
)

// Module is a forward-computable layer with learned parameters.
type Module interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []Parameter
}

// Trainable is implemented by modules whose forward pass depends on the
// training/evaluation mode.
type Trainable interface {
	SetTraining(training bool)
}

// Parameter is a named learned tensor. Names are dotted paths relative to the
// module that returned them, e.g. "conv1.weight".
type Parameter struct {
	Name  string
	Value *tensor.Tensor
}

// Prefix returns params with prefix prepended to every name.
func Prefix(prefix string, params []Parameter) []Parameter {
	out := make([]Parameter, len(params))
	for i, p := range params {
		out[i] = Parameter{Name: prefix + "." + p.Name, Value: p.Value}
	}
	return out
}

// CountParameters returns the total number of scalar values in params.
func CountParameters(params []Parameter) int {
	n := 0
	for _, p := range params {
		n += p.Value.Size()
	}
	return n
}
