// Package heartmula provides the built-in HeartMuLa checkpoint
// specifications.
package heartmula

import (
	"github.com/heartmula/mula/internal/models"
)

// HeartMuLa7B is the 7 billion parameter music generation model
//
// The larger variant produces better vocal quality and instruction
// following at the cost of VRAM. On hosts below the VRAM requirement it
// should run quantized via the cuda-lite variant.
var HeartMuLa7B = &models.ModelSpec{
	// Checkpoint identification
	ID:       models.ModelIDHeartMuLa7B,
	SourceID: "heartmula/heartmula-7b",

	// Checkpoint metadata
	DisplayName: "HeartMuLa 7B",
	Family:      "heartmula",
	Description: "Larger HeartMuLa music language model for higher quality generation",
	Parameters:  7.0,

	// Serving requirements
	RequiredVRAM:    24,
	SupportsFourBit: true,
	DefaultVariant:  "cuda",

	Capabilities: []string{"music-generation"},
	License:      "Apache-2.0",
	Homepage:     "https://huggingface.co/heartmula/heartmula-7b",
}

func init() {
	models.RegisterModelSpec(HeartMuLa7B)
}
