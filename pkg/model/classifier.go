package model

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"seqnet/pkg/model/attention"
	"seqnet/pkg/nn"
	"seqnet/pkg/tensor"
)

// ErrSequenceTooShort is returned when the input cannot survive the
// extractor's downsampling (fewer than 4 steps with the default
// configuration).
var ErrSequenceTooShort = errors.New("sequence too short")

// SequenceClassifier maps a multi-channel time series to per-timestep logits
// over a vocabulary.
//
// Data path and shapes (default configuration, channels-first input):
//  1. (B, 8, T)     -> TemporalFeatureExtractor -> (B, 128, T/4)
//  2. transpose     -> (B, T/4, 128)
//  3. LSTM          -> (B, T/4, 256); final states are discarded
//  4. SelfAttention -> (B, T/4, 256); weights (B, T/4, T/4)
//  5. Linear        -> (B, T/4, V) raw logits, no softmax
type SequenceClassifier struct {
	Config    Config
	Extractor *TemporalFeatureExtractor
	Recurrent *nn.LSTM
	Attention *attention.SelfAttention
	Output    *nn.Linear

	training bool
}

// NewSequenceClassifier creates a classifier with the reference architecture
// for the given vocabulary and input channel count. It panics if either size
// is not positive.
func NewSequenceClassifier(outputSize, inputSize int) *SequenceClassifier {
	config := DefaultConfig(outputSize)
	config.InputSize = inputSize

	m, err := NewSequenceClassifierFromConfig(config)
	if err != nil {
		panic(fmt.Sprintf("invalid config: %v", err))
	}
	return m
}

// NewSequenceClassifierFromConfig creates a classifier from an explicit
// configuration. Parameters are randomly initialized from config.Seed.
// The model starts in training mode.
func NewSequenceClassifierFromConfig(config Config) (*SequenceClassifier, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	extractor := NewTemporalFeatureExtractor(config, rng)
	recurrent := nn.NewLSTM(nn.LSTMConfig{
		InputSize:     extractor.OutputSize(),
		HiddenSize:    config.HiddenSize,
		NumLayers:     config.NumLayers,
		Bidirectional: config.Bidirectional,
		Dropout:       config.RecurrentDropout,
	}, rng)
	width := recurrent.Config.OutputSize()

	m := &SequenceClassifier{
		Config:    config,
		Extractor: extractor,
		Recurrent: recurrent,
		Attention: attention.NewSelfAttention(width, rng),
		Output:    nn.NewLinear(width, config.OutputSize, true, rng),
	}
	m.SetTraining(true)

	return m, nil
}

// SetTraining sets the mode of every stage. Training mode makes the
// normalization layers use and update batch statistics and enables recurrent
// dropout; evaluation mode makes the forward pass a pure function of the input.
func (m *SequenceClassifier) SetTraining(training bool) {
	m.training = training
	m.Extractor.SetTraining(training)
	m.Recurrent.SetTraining(training)
}

// Training reports whether the model is in training mode.
func (m *SequenceClassifier) Training() bool {
	return m.training
}

// OutputLength returns the number of logit timesteps produced for an input of
// length t.
func (m *SequenceClassifier) OutputLength(t int) int {
	return m.Extractor.OutputLength(t)
}

// Forward computes logits of shape (batch, OutputLength(time), output_size).
func (m *SequenceClassifier) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	logits, _, err := m.ForwardWithAttention(x)
	return logits, err
}

// ForwardWithAttention computes the logits and also returns the attention
// weights (batch, steps, steps) for inspection. The weights do not feed the
// logits beyond the attention output itself.
func (m *SequenceClassifier) ForwardWithAttention(x *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	if len(x.Shape) != 3 {
		return nil, nil, fmt.Errorf("%w: expected 3D input, got shape %v", tensor.ErrShapeMismatch, x.Shape)
	}

	if m.Config.InputLayout == LayoutTimeMajor {
		var err error
		x, err = x.Transpose(1, 2)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to permute input to channels-first: %w", err)
		}
	}

	if x.Shape[1] != m.Config.InputSize {
		return nil, nil, fmt.Errorf("%w: input has %d channels, model expects %d",
			tensor.ErrShapeMismatch, x.Shape[1], m.Config.InputSize)
	}
	if steps := m.OutputLength(x.Shape[2]); steps == 0 {
		return nil, nil, fmt.Errorf("%w: %d input steps downsample to zero", ErrSequenceTooShort, x.Shape[2])
	}

	// Step 1: feature extraction, (B, C, T) -> (B, F, T')
	features, err := m.Extractor.Forward(x)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to extract features: %w", err)
	}

	// Step 2: back to time-major for the recurrent stage, (B, T', F)
	features, err = features.Transpose(1, 2)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to permute features: %w", err)
	}

	// Step 3: recurrent context, (B, T', 2H)
	context, err := m.Recurrent.Forward(features)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to run recurrent stage: %w", err)
	}

	// Step 4: self-attention, shape preserving
	attended, weights, err := m.Attention.ForwardWithWeights(context)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to apply attention: %w", err)
	}

	// Step 5: per-timestep projection to the vocabulary
	logits, err := m.Output.Forward(attended)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute output logits: %w", err)
	}

	return logits, weights, nil
}

// Parameters returns every learned tensor with a dotted name rooted at the
// stage that owns it ("extractor", "recurrent", "attention", "output").
func (m *SequenceClassifier) Parameters() []nn.Parameter {
	var params []nn.Parameter
	params = append(params, nn.Prefix("extractor", m.Extractor.Parameters())...)
	params = append(params, nn.Prefix("recurrent", m.Recurrent.Parameters())...)
	params = append(params, nn.Prefix("attention", m.Attention.Parameters())...)
	params = append(params, nn.Prefix("output", m.Output.Parameters())...)
	return params
}

// NumParameters returns the total number of learned scalars.
func (m *SequenceClassifier) NumParameters() int {
	return nn.CountParameters(m.Parameters())
}

// Summary describes every stage with its output shape for the given batch
// size and sequence length, followed by the parameter count.
func (m *SequenceClassifier) Summary(batch, steps int) string {
	var sb strings.Builder

	in := []int{batch, m.Config.InputSize, steps}
	if m.Config.InputLayout == LayoutTimeMajor {
		in = []int{batch, steps, m.Config.InputSize}
	}
	fmt.Fprintf(&sb, "%-28s %v\n", "input ("+string(m.Config.InputLayout)+")", in)

	t := steps
	for i, block := range m.Extractor.Blocks {
		t = block.OutputLength(t)
		name := fmt.Sprintf("conv block %d", i+1)
		fmt.Fprintf(&sb, "%-28s %v\n", name, []int{batch, block.Conv.OutChannels, t})
	}

	width := m.Recurrent.Config.OutputSize()
	lstm := fmt.Sprintf("lstm (%d layers, %d dirs)", m.Config.NumLayers, m.Recurrent.Config.Directions())
	fmt.Fprintf(&sb, "%-28s %v\n", lstm, []int{batch, t, width})
	fmt.Fprintf(&sb, "%-28s %v\n", "attention", []int{batch, t, width})
	fmt.Fprintf(&sb, "%-28s %v\n", "attention weights", []int{batch, t, t})
	fmt.Fprintf(&sb, "%-28s %v\n", "logits", []int{batch, t, m.Config.OutputSize})
	fmt.Fprintf(&sb, "parameters: %d\n", m.NumParameters())

	return sb.String()
}
