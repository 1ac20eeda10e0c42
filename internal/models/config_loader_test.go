package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadModelsFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	catalog := `models:
  - model_id: test-extra
    model_name: Test Extra
    family: heartmula
    description: catalog-provided checkpoint
    source:
      source_type: huggingface
      source_id: acme/extra
      revision: v2
    parameters: 1.5
    required_vram_gb: 8
    supports_four_bit: true
    default_variant: cuda-lite
`
	require.NoError(t, os.WriteFile(path, []byte(catalog), 0644))

	specs, err := LoadModelsFromConfig(path)
	require.NoError(t, err)
	require.Len(t, specs, 1)

	spec := specs[0]
	assert.Equal(t, "test-extra", spec.ID)
	assert.Equal(t, "acme/extra", spec.SourceID)
	assert.Equal(t, "v2", spec.Revision)
	assert.Equal(t, "Test Extra", spec.DisplayName)
	assert.Equal(t, "heartmula", spec.Family)
	assert.Equal(t, 1.5, spec.Parameters)
	assert.Equal(t, 8, spec.RequiredVRAM)
	assert.True(t, spec.SupportsFourBit)
	assert.Equal(t, "cuda-lite", spec.DefaultVariant)
}

func TestLoadModelsFromConfigMissingFile(t *testing.T) {
	specs, err := LoadModelsFromConfig(filepath.Join(t.TempDir(), "models.yaml"))
	require.NoError(t, err)
	assert.Empty(t, specs)
}

func TestLoadModelsFromConfigRejectsBadSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	catalog := `models:
  - model_id: broken
    source:
      source_type: ftp
      source_id: acme/broken
`
	require.NoError(t, os.WriteFile(path, []byte(catalog), 0644))

	_, err := LoadModelsFromConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid model catalog")
}
