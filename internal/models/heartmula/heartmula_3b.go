// Package heartmula provides the built-in HeartMuLa checkpoint
// specifications.
package heartmula

import (
	"github.com/heartmula/mula/internal/models"
)

// HeartMuLa3B is the 3 billion parameter music generation model
var HeartMuLa3B = &models.ModelSpec{
	// Checkpoint identification
	ID:       models.ModelIDHeartMuLa3B,
	SourceID: "heartmula/heartmula-3b",

	// Checkpoint metadata
	DisplayName: "HeartMuLa 3B",
	Family:      "heartmula",
	Description: "Music language model generating full songs with vocals from lyrics and style prompts",
	Parameters:  3.0,

	// Serving requirements
	RequiredVRAM:    12,
	SupportsFourBit: true,
	DefaultVariant:  "cuda",

	Capabilities: []string{"music-generation"},
	License:      "Apache-2.0",
	Homepage:     "https://huggingface.co/heartmula/heartmula-3b",
}

func init() {
	models.RegisterModelSpec(HeartMuLa3B)
}
