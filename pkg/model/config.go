// Package model assembles the sequence classifier: a temporal convolutional
// feature extractor, a stacked bidirectional LSTM, a self-attention block and
// a per-timestep projection to vocabulary logits.
//
// Architecture (default configuration):
//   - Conv1D(8->64, k=3) -> BatchNorm -> ReLU -> MaxPool(2)
//   - Conv1D(64->128, k=3) -> BatchNorm -> ReLU -> MaxPool(2)
//   - 3-layer bidirectional LSTM, 128 hidden units per direction
//   - Scaled dot-product self-attention over the 256-wide LSTM output
//   - Linear(256 -> vocabulary size), raw logits
package model

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// InputLayout names the axis order of the classifier input.
type InputLayout string

const (
	// LayoutChannelsFirst is (batch, channels, time).
	LayoutChannelsFirst InputLayout = "channels_first"
	// LayoutTimeMajor is (batch, time, channels); the classifier swaps the
	// last two axes before the feature extractor.
	LayoutTimeMajor InputLayout = "time_major"
)

// DefaultInputSize is the number of input channels when none is given.
const DefaultInputSize = 8

// Config holds the classifier hyperparameters.
type Config struct {
	// OutputSize is the vocabulary size, the width of the logits. Required.
	OutputSize int `yaml:"output_size"`

	// InputSize is the number of input channels (8 by default).
	InputSize int `yaml:"input_size"`

	// ConvChannels lists the output width of each convolution block
	// ([64, 128] by default). Each block halves the sequence length.
	ConvChannels []int `yaml:"conv_channels"`

	// KernelSize is the convolution width; it must be odd so that
	// padding of KernelSize/2 preserves the length.
	KernelSize int `yaml:"kernel_size"`

	// PoolSize is the max-pooling window and stride.
	PoolSize int `yaml:"pool_size"`

	// HiddenSize is the LSTM width per direction (128).
	HiddenSize int `yaml:"hidden_size"`

	// NumLayers is the number of stacked LSTM layers (3).
	NumLayers int `yaml:"num_layers"`

	Bidirectional bool `yaml:"bidirectional"`

	// RecurrentDropout is applied between LSTM layers in training mode.
	RecurrentDropout float32 `yaml:"recurrent_dropout"`

	NormMomentum float32 `yaml:"norm_momentum"`
	NormEps      float32 `yaml:"norm_eps"`

	InputLayout InputLayout `yaml:"input_layout"`

	// Seed makes parameter initialization reproducible. Zero seeds from
	// the clock.
	Seed int64 `yaml:"seed"`
}

// DefaultConfig returns the reference architecture for the given vocabulary
// size.
func DefaultConfig(outputSize int) Config {
	return Config{
		OutputSize:       outputSize,
		InputSize:        DefaultInputSize,
		ConvChannels:     []int{64, 128},
		KernelSize:       3,
		PoolSize:         2,
		HiddenSize:       128,
		NumLayers:        3,
		Bidirectional:    true,
		RecurrentDropout: 0,
		NormMomentum:     0.1,
		NormEps:          1e-5,
		InputLayout:      LayoutChannelsFirst,
	}
}

// Validate checks if the configuration is valid and consistent.
func (c Config) Validate() error {
	if c.OutputSize <= 0 {
		return fmt.Errorf("output_size must be positive, got %d", c.OutputSize)
	}
	if c.InputSize <= 0 {
		return fmt.Errorf("input_size must be positive, got %d", c.InputSize)
	}
	if len(c.ConvChannels) == 0 {
		return fmt.Errorf("conv_channels must list at least one block")
	}
	for i, ch := range c.ConvChannels {
		if ch <= 0 {
			return fmt.Errorf("conv_channels[%d] must be positive, got %d", i, ch)
		}
	}
	if c.KernelSize <= 0 || c.KernelSize%2 == 0 {
		return fmt.Errorf("kernel_size must be a positive odd number, got %d", c.KernelSize)
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("pool_size must be positive, got %d", c.PoolSize)
	}
	if c.HiddenSize <= 0 {
		return fmt.Errorf("hidden_size must be positive, got %d", c.HiddenSize)
	}
	if c.NumLayers <= 0 {
		return fmt.Errorf("num_layers must be positive, got %d", c.NumLayers)
	}
	if c.RecurrentDropout < 0 || c.RecurrentDropout >= 1 {
		return fmt.Errorf("recurrent_dropout must be in [0, 1), got %v", c.RecurrentDropout)
	}
	if c.NormMomentum < 0 || c.NormMomentum > 1 {
		return fmt.Errorf("norm_momentum must be in [0, 1], got %v", c.NormMomentum)
	}
	if c.NormEps <= 0 {
		return fmt.Errorf("norm_eps must be positive, got %v", c.NormEps)
	}
	switch c.InputLayout {
	case LayoutChannelsFirst, LayoutTimeMajor:
	default:
		return fmt.Errorf("input_layout must be %q or %q, got %q",
			LayoutChannelsFirst, LayoutTimeMajor, c.InputLayout)
	}
	return nil
}

// FeatureSize is the channel width produced by the feature extractor.
func (c Config) FeatureSize() int {
	return c.ConvChannels[len(c.ConvChannels)-1]
}

// RecurrentOutputSize is the LSTM output width, which is also the attention
// width (256 by default).
func (c Config) RecurrentOutputSize() int {
	if c.Bidirectional {
		return 2 * c.HiddenSize
	}
	return c.HiddenSize
}

// LoadConfig reads a YAML configuration. Fields missing from the file keep
// their DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig(0)
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, nil
}

// LoadOrDefault loads config from path, or returns DefaultConfig(outputSize)
// if path is empty or does not exist.
func LoadOrDefault(path string, outputSize int) (*Config, error) {
	if path == "" {
		cfg := DefaultConfig(outputSize)
		return &cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig(outputSize)
		return &cfg, nil
	}
	return LoadConfig(path)
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
