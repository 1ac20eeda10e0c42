// Package models provides checkpoint specifications and registry.
package models

// Checkpoint IDs for the HeartMuLa model family.
// These IDs are used to identify and reference checkpoints throughout the
// system.
const (
	// ModelIDHeartMuLa3B is the ID for the HeartMuLa 3B generation model
	ModelIDHeartMuLa3B = "heartmula-3b"

	// ModelIDHeartMuLa7B is the ID for the HeartMuLa 7B generation model
	ModelIDHeartMuLa7B = "heartmula-7b"

	// ModelIDHeartCodec is the ID for the HeartCodec audio codec
	ModelIDHeartCodec = "heartcodec"
)
