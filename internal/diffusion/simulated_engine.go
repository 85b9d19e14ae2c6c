package diffusion

import (
	"fmt"
	"strings"
)

// simulatedEngine is a deterministic stand-in for the real model backend.
// It "denoises" in ceil(mask_count/block_length) blocks of steps_per_block
// steps each, appending one "x" per step between the prefix and suffix and
// reporting the text so far on every step; the final text is prefix, one
// "x" per step, then suffix — enough to exercise the coordinator's state
// machine and progress streaming without a GPU.
type simulatedEngine struct {
	loaded    bool
	modelPath string
	device    string
}

func newSimulatedEngine() *simulatedEngine {
	return &simulatedEngine{}
}

func (e *simulatedEngine) LoadModel(path, device string) error {
	if path == "" {
		return fmt.Errorf("model_path is empty")
	}
	if device != "cuda" && device != "cpu" {
		return fmt.Errorf("invalid device '%s', expected 'cuda' or 'cpu'", device)
	}
	e.loaded = true
	e.modelPath = path
	e.device = device
	return nil
}

func (e *simulatedEngine) UnloadModel() error {
	e.loaded = false
	e.modelPath = ""
	return nil
}

func (e *simulatedEngine) IsLoaded() bool {
	return e.loaded
}

func (e *simulatedEngine) Infill(req InfillRequest, onStep func(Progress)) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}

	blocks := (req.MaskCount + req.BlockLength - 1) / req.BlockLength
	if blocks == 0 {
		blocks = 1
	}
	totalSteps := blocks * req.StepsPerBlock

	var revealed strings.Builder
	step := 0
	var final string
	for b := 0; b < blocks; b++ {
		for s := 0; s < req.StepsPerBlock; s++ {
			step++
			revealed.WriteString("x")
			final = req.Prefix + revealed.String() + req.Suffix
			onStep(Progress{Step: step, TotalSteps: totalSteps, CurrentText: final})
		}
	}
	return final, nil
}
