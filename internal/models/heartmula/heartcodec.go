// Package heartmula provides the built-in HeartMuLa checkpoint
// specifications.
package heartmula

import (
	"github.com/heartmula/mula/internal/models"
)

// HeartCodec is the neural audio codec that turns HeartMuLa token streams
// into waveforms. The generation models require it at serving time, so it
// is pulled alongside them.
var HeartCodec = &models.ModelSpec{
	ID:       models.ModelIDHeartCodec,
	SourceID: "heartmula/heartcodec",

	DisplayName: "HeartCodec",
	Family:      "heartcodec",
	Description: "Neural audio codec decoding HeartMuLa semantic tokens to 48kHz stereo audio",
	Parameters:  0.35,

	// Decoding is light; it fits next to either generation model.
	RequiredVRAM:    4,
	SupportsFourBit: false,
	DefaultVariant:  "cuda",

	Capabilities: []string{"audio-codec"},
	License:      "Apache-2.0",
	Homepage:     "https://huggingface.co/heartmula/heartcodec",
}

func init() {
	models.RegisterModelSpec(HeartCodec)
}
