package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEnvOverrides(t *testing.T) {
	env := ParseEnvOverrides([]string{
		"HF_HOME=/cache/hf",
		"log-level=debug",
		"maxTokens=2048",
		"broken",
		"=novalue",
	})

	assert.Equal(t, map[string]string{
		"HF_HOME":    "/cache/hf",
		"LOG_LEVEL":  "debug",
		"MAX_TOKENS": "2048",
	}, env)
}

func TestNormalizeEnvKey(t *testing.T) {
	cases := map[string]string{
		"logLevel":         "LOG_LEVEL",
		"log-level":        "LOG_LEVEL",
		"log_level":        "LOG_LEVEL",
		"HF_HOME":          "HF_HOME",
		"HEARTMULA_4BIT":   "HEARTMULA_4BIT",
		"torchCompileMode": "TORCH_COMPILE_MODE",
	}

	for in, want := range cases {
		assert.Equal(t, want, normalizeEnvKey(in), "key %q", in)
	}
}

func TestEnvMapToSlice(t *testing.T) {
	out := EnvMapToSlice(map[string]string{"A": "1"})
	assert.Equal(t, []string{"A=1"}, out)
}
