// Package history persists build and run records in a local SQLite
// database under the data directory. Records are append-mostly: a build is
// written once when it finishes, a run is written when an instance starts
// and updated once when it stops.
package history

import (
	"time"

	"github.com/heartmula/mula/internal/api"
)

// Build record statuses.
const (
	BuildStatusSucceeded = "succeeded"
	BuildStatusFailed    = "failed"
)

// Run record statuses.
const (
	RunStatusRunning = "running"
	RunStatusStopped = "stopped"
	RunStatusError   = "error"
)

// BuildRecord is a persisted image build.
type BuildRecord struct {
	// ID is a generated UUID
	ID string `gorm:"primaryKey"`

	// Variant is the runtime variant that was built
	Variant string `gorm:"index"`

	// Image is the tag the build produced
	Image string

	// Digest holds the pinned base image digests, when pinning was used
	Digest string

	// Status is succeeded or failed
	Status string

	// Duration is the wall-clock build time
	Duration time.Duration

	// Error holds the failure message for failed builds
	Error string

	// CreatedAt is when the build finished
	CreatedAt time.Time `gorm:"index"`
}

// View converts the record to its API representation.
func (r *BuildRecord) View() api.BuildRecordView {
	return api.BuildRecordView{
		ID:        r.ID,
		Variant:   r.Variant,
		Image:     r.Image,
		Digest:    r.Digest,
		Status:    r.Status,
		Duration:  r.Duration.Round(time.Millisecond).String(),
		Error:     r.Error,
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
	}
}

// RunRecord is a persisted instance run.
type RunRecord struct {
	// ID is a generated UUID
	ID string `gorm:"primaryKey"`

	// InstanceID identifies the runtime instance
	InstanceID string `gorm:"index"`

	// Alias is the user-facing instance name
	Alias string `gorm:"index"`

	// ModelID is the model the instance served
	ModelID string

	// Variant is the runtime variant
	Variant string

	// Image is the container image the instance ran
	Image string

	// GPUs is the comma-separated GPU index list, empty on CPU
	GPUs string `gorm:"column:gpus"`

	// Status is running, stopped or error
	Status string

	// StartedAt is when the instance was started
	StartedAt time.Time `gorm:"index"`

	// StoppedAt is when the instance stopped, nil while running
	StoppedAt *time.Time

	// Error holds the failure message for error runs
	Error string
}

// View converts the record to its API representation.
func (r *RunRecord) View() api.RunRecordView {
	view := api.RunRecordView{
		ID:         r.ID,
		InstanceID: r.InstanceID,
		Alias:      r.Alias,
		Model:      r.ModelID,
		Variant:    r.Variant,
		GPUs:       r.GPUs,
		Status:     r.Status,
		StartedAt:  r.StartedAt.Format(time.RFC3339),
		Error:      r.Error,
	}
	if r.StoppedAt != nil {
		view.StoppedAt = r.StoppedAt.Format(time.RFC3339)
	}
	return view
}

// BuildViews converts a slice of build records to API views.
func BuildViews(records []BuildRecord) []api.BuildRecordView {
	views := make([]api.BuildRecordView, len(records))
	for i := range records {
		views[i] = records[i].View()
	}
	return views
}

// RunViews converts a slice of run records to API views.
func RunViews(records []RunRecord) []api.RunRecordView {
	views := make([]api.RunRecordView, len(records))
	for i := range records {
		views[i] = records[i].View()
	}
	return views
}
