package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "db", "mula.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestBuildHistoryOrderAndFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := &BuildRecord{
		Variant:   "cuda",
		Image:     "heartmula/runtime:cuda",
		Status:    BuildStatusSucceeded,
		Duration:  90 * time.Second,
		CreatedAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, store.AppendBuild(ctx, old))

	recent := &BuildRecord{
		Variant: "cpu",
		Image:   "heartmula/runtime:cpu",
		Status:  BuildStatusFailed,
		Error:   "step 7 failed",
	}
	require.NoError(t, store.AppendBuild(ctx, recent))
	assert.NotEmpty(t, recent.ID)
	assert.False(t, recent.CreatedAt.IsZero())

	all, err := store.RecentBuilds(ctx, 0, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "cpu", all[0].Variant, "newest first")
	assert.Equal(t, "cuda", all[1].Variant)

	cuda, err := store.RecentBuilds(ctx, 10, "cuda")
	require.NoError(t, err)
	require.Len(t, cuda, 1)
	assert.Equal(t, "heartmula/runtime:cuda", cuda[0].Image)

	limited, err := store.RecentBuilds(ctx, 1, "")
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRunLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &RunRecord{
		InstanceID: "inst-1",
		Alias:      "muse",
		ModelID:    "heartmula-3b",
		Variant:    "cuda",
		Image:      "heartmula/runtime:cuda",
		GPUs:       "0,1",
	}
	require.NoError(t, store.StartRun(ctx, run))
	assert.Equal(t, RunStatusRunning, run.Status)

	require.NoError(t, store.FinishRun(ctx, "inst-1", RunStatusStopped, ""))

	runs, err := store.RecentRuns(ctx, 0, "muse")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunStatusStopped, runs[0].Status)
	require.NotNil(t, runs[0].StoppedAt)
	assert.Equal(t, "0,1", runs[0].GPUs)

	// The view renders the stop time once it exists.
	view := runs[0].View()
	assert.NotEmpty(t, view.StoppedAt)
	assert.Equal(t, "heartmula-3b", view.Model)
}

func TestFinishRunTouchesOnlyOpenRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &RunRecord{InstanceID: "inst-1", Alias: "muse", ModelID: "heartmula-3b"}
	require.NoError(t, store.StartRun(ctx, first))
	require.NoError(t, store.FinishRun(ctx, "inst-1", RunStatusError, "container exited with code 137"))

	// Restart under the same instance ID opens a second record.
	second := &RunRecord{InstanceID: "inst-1", Alias: "muse", ModelID: "heartmula-3b"}
	require.NoError(t, store.StartRun(ctx, second))
	require.NoError(t, store.FinishRun(ctx, "inst-1", RunStatusStopped, ""))

	runs, err := store.RecentRuns(ctx, 0, "")
	require.NoError(t, err)
	require.Len(t, runs, 2)

	byID := map[string]RunRecord{}
	for _, r := range runs {
		byID[r.ID] = r
	}
	assert.Equal(t, RunStatusError, byID[first.ID].Status)
	assert.Equal(t, "container exited with code 137", byID[first.ID].Error)
	assert.Equal(t, RunStatusStopped, byID[second.ID].Status)
}

func TestPruneKeepsOpenRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	oldTime := time.Now().Add(-48 * time.Hour)

	require.NoError(t, store.AppendBuild(ctx, &BuildRecord{
		Variant:   "cuda",
		Status:    BuildStatusSucceeded,
		CreatedAt: oldTime,
	}))

	stopped := oldTime.Add(time.Minute)
	require.NoError(t, store.StartRun(ctx, &RunRecord{
		InstanceID: "inst-old",
		Alias:      "old",
		StartedAt:  oldTime,
		Status:     RunStatusStopped,
		StoppedAt:  &stopped,
	}))

	// Old but still open: must survive the prune.
	require.NoError(t, store.StartRun(ctx, &RunRecord{
		InstanceID: "inst-open",
		Alias:      "open",
		StartedAt:  oldTime,
	}))

	deleted, err := store.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	builds, err := store.RecentBuilds(ctx, 0, "")
	require.NoError(t, err)
	assert.Empty(t, builds)

	runs, err := store.RecentRuns(ctx, 0, "")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "inst-open", runs[0].InstanceID)
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "mula.db")

	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	assert.FileExists(t, path)
}
