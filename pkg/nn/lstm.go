package nn

import (
	"fmt"
	"math/rand"

	"seqnet/pkg/tensor"
)

// LSTMConfig holds the shape of a stacked LSTM.
type LSTMConfig struct {
	InputSize     int
	HiddenSize    int
	NumLayers     int
	Bidirectional bool

	// Dropout is applied to the outputs of every layer except the last,
	// in training mode only.
	Dropout float32
}

// Directions returns 2 for a bidirectional LSTM and 1 otherwise.
func (c LSTMConfig) Directions() int {
	if c.Bidirectional {
		return 2
	}
	return 1
}

// OutputSize is the feature width of the per-timestep output.
func (c LSTMConfig) OutputSize() int {
	return c.HiddenSize * c.Directions()
}

// LSTMDirection holds the weights of one layer running in one direction.
// Gates are packed in the order input, forget, cell, output:
//
//	i = σ(x W_i + b_i + h U_i + c_i)
//	f = σ(x W_f + b_f + h U_f + c_f)
//	g = tanh(x W_g + b_g + h U_g + c_g)
//	o = σ(x W_o + b_o + h U_o + c_o)
//	c' = f * c + i * g
//	h' = o * tanh(c')
type LSTMDirection struct {
	WInput  *tensor.Tensor // (input, 4*hidden)
	WHidden *tensor.Tensor // (hidden, 4*hidden)
	BInput  *tensor.Tensor // (4*hidden,)
	BHidden *tensor.Tensor // (4*hidden,)
	Reverse bool
}

// LSTMState is the final hidden and cell state of every layer and direction,
// each shaped (num_layers*directions, batch, hidden). Entry layer*directions+d
// belongs to direction d of that layer, d = 1 being the reverse pass.
type LSTMState struct {
	Hidden *tensor.Tensor
	Cell   *tensor.Tensor
}

// LSTM is a stacked, optionally bidirectional LSTM over batch-first
// sequences (batch, time, features).
type LSTM struct {
	Config   LSTMConfig
	Layers   [][]*LSTMDirection // [layer][direction]
	Training bool

	rng *rand.Rand
}

// NewLSTM creates an LSTM with every weight and bias drawn from
// U[-1/sqrt(hidden), 1/sqrt(hidden)].
func NewLSTM(config LSTMConfig, rng *rand.Rand) *LSTM {
	if config.InputSize <= 0 || config.HiddenSize <= 0 || config.NumLayers <= 0 {
		panic(fmt.Sprintf("invalid LSTM config: %+v", config))
	}

	l := &LSTM{
		Config:   config,
		Layers:   make([][]*LSTMDirection, config.NumLayers),
		Training: true,
		rng:      rng,
	}

	bound := fanInBound(config.HiddenSize)
	gates := 4 * config.HiddenSize
	for layer := range l.Layers {
		in := config.InputSize
		if layer > 0 {
			in = config.OutputSize()
		}
		l.Layers[layer] = make([]*LSTMDirection, config.Directions())
		for d := range l.Layers[layer] {
			dir := &LSTMDirection{
				WInput:  tensor.NewTensor([]int{in, gates}),
				WHidden: tensor.NewTensor([]int{config.HiddenSize, gates}),
				BInput:  tensor.NewTensor([]int{gates}),
				BHidden: tensor.NewTensor([]int{gates}),
				Reverse: d == 1,
			}
			uniformInit(dir.WInput, bound, rng)
			uniformInit(dir.WHidden, bound, rng)
			uniformInit(dir.BInput, bound, rng)
			uniformInit(dir.BHidden, bound, rng)
			l.Layers[layer][d] = dir
		}
	}

	return l
}

// SetTraining enables or disables inter-layer dropout.
func (l *LSTM) SetTraining(training bool) {
	l.Training = training
}

// Forward runs the stack and returns only the per-timestep output
// (batch, time, hidden*directions).
func (l *LSTM) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out, _, err := l.ForwardWithState(x)
	return out, err
}

// ForwardWithState runs the stack from a zero initial state and returns the
// per-timestep output of the last layer together with the final states.
func (l *LSTM) ForwardWithState(x *tensor.Tensor) (*tensor.Tensor, *LSTMState, error) {
	if len(x.Shape) != 3 {
		return nil, nil, fmt.Errorf("%w: LSTM expects 3D input (batch, time, features), got shape %v",
			tensor.ErrShapeMismatch, x.Shape)
	}
	if x.Shape[2] != l.Config.InputSize {
		return nil, nil, fmt.Errorf("%w: input feature size %d doesn't match LSTM input size %d",
			tensor.ErrShapeMismatch, x.Shape[2], l.Config.InputSize)
	}

	batch, hidden := x.Shape[0], l.Config.HiddenSize
	dirs := l.Config.Directions()
	stateShape := []int{l.Config.NumLayers * dirs, batch, hidden}
	state := &LSTMState{
		Hidden: tensor.NewTensor(stateShape),
		Cell:   tensor.NewTensor(stateShape),
	}

	for layer, directions := range l.Layers {
		outputs := make([]*tensor.Tensor, dirs)
		for d, dir := range directions {
			idx := layer*dirs + d
			h := state.Hidden.Data[idx*batch*hidden : (idx+1)*batch*hidden]
			c := state.Cell.Data[idx*batch*hidden : (idx+1)*batch*hidden]

			out, err := dir.run(x, h, c)
			if err != nil {
				return nil, nil, fmt.Errorf("failed in LSTM layer %d direction %d: %w", layer, d, err)
			}
			outputs[d] = out
		}

		next := outputs[0]
		if dirs > 1 {
			var err error
			next, err = tensor.Concatenate(outputs, 2)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to join directions of layer %d: %w", layer, err)
			}
		}

		if layer < len(l.Layers)-1 && l.Config.Dropout > 0 {
			next = next.Dropout(l.Config.Dropout, l.Training, l.rng)
		}
		x = next
	}

	return x, state, nil
}

// run executes one direction over x (batch, time, input). h and c hold the
// initial state on entry and the final state on return, both (batch, hidden).
func (dir *LSTMDirection) run(x *tensor.Tensor, h, c []float32) (*tensor.Tensor, error) {
	batch, steps := x.Shape[0], x.Shape[1]
	hidden := dir.WHidden.Shape[0]
	gates := 4 * hidden

	// Input contributions for every timestep at once: (batch, time, 4*hidden).
	xg, err := tensor.Matmul(x, dir.WInput)
	if err != nil {
		return nil, fmt.Errorf("failed to compute input gates: %w", err)
	}
	for off := 0; off < len(xg.Data); off += gates {
		row := xg.Data[off : off+gates]
		for j := range row {
			row[j] += dir.BInput.Data[j] + dir.BHidden.Data[j]
		}
	}

	out := tensor.NewTensor([]int{batch, steps, hidden})
	hg := make([]float32, batch*gates)

	for step := 0; step < steps; step++ {
		t := step
		if dir.Reverse {
			t = steps - 1 - step
		}

		tensor.Gemm(false, false, batch, gates, hidden, h, dir.WHidden.Data, hg)

		for b := 0; b < batch; b++ {
			g := xg.Data[(b*steps+t)*gates : (b*steps+t+1)*gates]
			r := hg[b*gates : (b+1)*gates]
			hb := h[b*hidden : (b+1)*hidden]
			cb := c[b*hidden : (b+1)*hidden]
			ob := out.Data[(b*steps+t)*hidden : (b*steps+t+1)*hidden]

			for j := 0; j < hidden; j++ {
				i := tensor.Sigmoid(g[j] + r[j])
				f := tensor.Sigmoid(g[hidden+j] + r[hidden+j])
				cand := tensor.Tanh(g[2*hidden+j] + r[2*hidden+j])
				o := tensor.Sigmoid(g[3*hidden+j] + r[3*hidden+j])

				cb[j] = f*cb[j] + i*cand
				hb[j] = o * tensor.Tanh(cb[j])
				ob[j] = hb[j]
			}
		}
	}

	return out, nil
}

// Parameters returns the weights of every layer and direction, named
// "l<layer>.<fwd|bwd>.<w_ih|w_hh|b_ih|b_hh>".
func (l *LSTM) Parameters() []Parameter {
	var params []Parameter
	for layer, directions := range l.Layers {
		for _, dir := range directions {
			name := "fwd"
			if dir.Reverse {
				name = "bwd"
			}
			prefix := fmt.Sprintf("l%d.%s", layer, name)
			params = append(params, Prefix(prefix, []Parameter{
				{Name: "w_ih", Value: dir.WInput},
				{Name: "w_hh", Value: dir.WHidden},
				{Name: "b_ih", Value: dir.BInput},
				{Name: "b_hh", Value: dir.BHidden},
			})...)
		}
	}
	return params
}
