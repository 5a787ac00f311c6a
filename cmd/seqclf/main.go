package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"

	"seqnet/pkg/model"
	"seqnet/pkg/tensor"
)

const defaultVocabSize = 29

func main() {
	log.SetFlags(0)
	log.SetPrefix("[seqclf] ")

	configPath := flag.String("config", "", "YAML model config (defaults are used if empty or missing)")
	vocab := flag.Int("vocab", 0, "Vocabulary size, overrides the config (default 29 without a config)")
	inputSize := flag.Int("input-size", 0, "Input channels, overrides the config")
	layout := flag.String("layout", "", "Input layout, channels_first or time_major, overrides the config")
	batch := flag.Int("batch", 2, "Batch size of the random input")
	seqLen := flag.Int("seq-len", 16, "Number of input timesteps")
	seed := flag.Int64("seed", 0, "Initialization seed, overrides the config (0 keeps it)")
	train := flag.Bool("train", false, "Run the forward pass in training mode")
	saveConfig := flag.String("save-config", "", "Write the effective config to this path and exit")

	flag.Parse()

	config, err := model.LoadOrDefault(*configPath, defaultVocabSize)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *vocab > 0 {
		config.OutputSize = *vocab
	}
	if *inputSize > 0 {
		config.InputSize = *inputSize
	}
	if *layout != "" {
		config.InputLayout = model.InputLayout(*layout)
	}
	if *seed != 0 {
		config.Seed = *seed
	}
	if err := config.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	if *saveConfig != "" {
		if err := config.Save(*saveConfig); err != nil {
			log.Fatalf("failed to save config: %v", err)
		}
		log.Printf("config written to %s", *saveConfig)
		return
	}

	if *batch <= 0 || *seqLen <= 0 {
		log.Fatalf("batch and seq-len must be positive, got %d and %d", *batch, *seqLen)
	}

	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("          Sequence Classifier Forward Pass")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	fmt.Printf("Model Configuration:\n")
	fmt.Printf("  Input Size: %d (%s)\n", config.InputSize, config.InputLayout)
	fmt.Printf("  Conv Channels: %v\n", config.ConvChannels)
	fmt.Printf("  Hidden Size: %d x %d layers, bidirectional=%t\n", config.HiddenSize, config.NumLayers, config.Bidirectional)
	fmt.Printf("  Vocabulary Size: %d\n", config.OutputSize)
	fmt.Println()

	m, err := model.NewSequenceClassifierFromConfig(*config)
	if err != nil {
		log.Fatalf("failed to build model: %v", err)
	}
	m.SetTraining(*train)

	fmt.Print(m.Summary(*batch, *seqLen))
	fmt.Println()

	shape := []int{*batch, config.InputSize, *seqLen}
	if config.InputLayout == model.LayoutTimeMajor {
		shape = []int{*batch, *seqLen, config.InputSize}
	}
	x := tensor.NewTensor(shape)
	rng := rand.New(rand.NewSource(config.Seed + 1))
	for i := range x.Data {
		x.Data[i] = float32(rng.NormFloat64())
	}

	logits, weights, err := m.ForwardWithAttention(x)
	if err != nil {
		log.Printf("forward pass failed: %v", err)
		os.Exit(1)
	}

	fmt.Printf("Logits shape: %v\n", logits.Shape)
	fmt.Printf("Attention weights shape: %v\n", weights.Shape)

	steps := weights.Shape[1]
	for b := 0; b < *batch; b++ {
		sums := make([]string, steps)
		for i := 0; i < steps; i++ {
			var sum float32
			for j := 0; j < steps; j++ {
				sum += weights.Get(b, i, j)
			}
			sums[i] = fmt.Sprintf("%.4f", sum)
		}
		fmt.Printf("  sample %d attention row sums: [%s]\n", b, strings.Join(sums, " "))
	}

	// argmax per step of the first sample, a stand-in for an external decoder
	vocabSize := logits.Shape[2]
	best := make([]int, logits.Shape[1])
	for t := range best {
		row := logits.Data[t*vocabSize : (t+1)*vocabSize]
		for k, v := range row {
			if v > row[best[t]] {
				best[t] = k
			}
		}
	}
	fmt.Printf("  sample 0 argmax per step: %v\n", best)
}
