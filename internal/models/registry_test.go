package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmula/mula/internal/api"
)

func testSpec(id, source, family string) *ModelSpec {
	return &ModelSpec{
		ID:       id,
		SourceID: source,
		Family:   family,
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(testSpec("tiny-1b", "acme/tiny-1b", "tiny")))
	assert.Equal(t, 1, r.Count())

	spec, err := r.Get("tiny-1b")
	require.NoError(t, err)
	assert.Equal(t, "acme/tiny-1b", spec.SourceID)

	_, err = r.Get("missing")
	assert.EqualError(t, err, "model missing not found")
}

func TestRegistryRegisterReplacesByID(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(testSpec("tiny-1b", "acme/tiny-1b", "tiny")))
	require.NoError(t, r.Register(&ModelSpec{
		ID:       "tiny-1b",
		SourceID: "mirror/tiny-1b",
		Revision: "v2",
	}))

	spec, err := r.Get("tiny-1b")
	require.NoError(t, err)
	assert.Equal(t, "mirror/tiny-1b", spec.SourceID)
	assert.Equal(t, "v2", spec.Revision)
	assert.Equal(t, 1, r.Count())
}

func TestRegistryRejectsInvalidSpecs(t *testing.T) {
	r := NewRegistry()

	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&ModelSpec{SourceID: "acme/no-id"}))
	assert.Error(t, r.Register(&ModelSpec{ID: "no-source"}))
	assert.Equal(t, 0, r.Count())
}

func TestRegistryLookupBySourceID(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testSpec("tiny-1b", "acme/tiny-1b", "tiny")))

	assert.NotNil(t, r.Lookup("tiny-1b"))
	assert.NotNil(t, r.Lookup("acme/tiny-1b"))
	assert.Nil(t, r.Lookup("acme/other"))
}

func TestRegistryListSortedAndFiltered(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testSpec("b-model", "acme/b", "beta")))
	require.NoError(t, r.Register(testSpec("a-model", "acme/a", "alpha")))
	require.NoError(t, r.Register(testSpec("c-model", "acme/c", "alpha")))

	all := r.List("")
	require.Len(t, all, 3)
	assert.Equal(t, "a-model", all[0].ID)
	assert.Equal(t, "b-model", all[1].ID)
	assert.Equal(t, "c-model", all[2].ID)

	alpha := r.List("alpha")
	require.Len(t, alpha, 2)
	assert.Equal(t, "a-model", alpha[0].ID)
	assert.Equal(t, "c-model", alpha[1].ID)

	assert.Empty(t, r.List("gamma"))
}

func TestEffectiveRevision(t *testing.T) {
	assert.Equal(t, "main", (&ModelSpec{}).EffectiveRevision())
	assert.Equal(t, "v1.2", (&ModelSpec{Revision: "v1.2"}).EffectiveRevision())
}

func TestAPIModelConversion(t *testing.T) {
	spec := &ModelSpec{
		ID:              "tiny-1b",
		SourceID:        "acme/tiny-1b",
		Family:          "tiny",
		Description:     "a tiny model",
		Parameters:      1.0,
		RequiredVRAM:    8,
		SupportsFourBit: true,
		DefaultVariant:  "cuda-lite",
	}

	m := spec.APIModel()
	assert.Equal(t, "tiny-1b", m.Name)
	assert.Equal(t, "acme/tiny-1b", m.Source)
	assert.Equal(t, "main", m.Revision)
	assert.Equal(t, int64(2000000000), m.Size)
	assert.Equal(t, 8, m.MinVRAMGB)
	assert.Equal(t, "cuda-lite", m.DefaultVariant)
	assert.True(t, m.SupportsFourBit)
	assert.Equal(t, api.ModelStatusNotDownloaded, m.Status)
}
