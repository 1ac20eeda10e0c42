package runtime

import (
	"strings"

	"github.com/heartmula/mula/internal/logger"
)

// ParseEnvOverrides converts "key=value" pairs into an environment map.
//
// Keys are normalized to environment variable format:
//   - camelCase -> CAMEL_CASE
//   - kebab-case -> KEBAB_CASE
//
// Already uppercase keys (HF_HOME, HEARTMULA_4BIT) pass through
// unchanged. Malformed pairs are logged and skipped.
//
// Example:
//
//	Input: ["HF_HOME=/cache", "log-level=debug"]
//	Output: {"HF_HOME": "/cache", "LOG_LEVEL": "debug"}
func ParseEnvOverrides(pairs []string) map[string]string {
	env := make(map[string]string)

	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			logger.Warn("Invalid env override format (expected key=value): %s", pair)
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if key == "" {
			logger.Warn("Empty key in env override: %s", pair)
			continue
		}

		envKey := normalizeEnvKey(key)
		env[envKey] = value

		logger.Debug("Env override: %s=%s -> %s=%s", key, value, envKey, value)
	}

	return env
}

// normalizeEnvKey converts a key to environment variable format.
//
// Conversion rules:
//  1. camelCase -> snake_case (logLevel -> log_level)
//  2. kebab-case -> snake_case (log-level -> log_level)
//  3. Convert to uppercase (log_level -> LOG_LEVEL)
func normalizeEnvKey(key string) string {
	var result strings.Builder

	for i, ch := range key {
		if ch == '-' {
			result.WriteRune('_')
		} else if ch >= 'A' && ch <= 'Z' {
			// Insert underscore before uppercase letters (except at start
			// or after an existing separator)
			if i > 0 && key[i-1] != '-' && key[i-1] != '_' && !(key[i-1] >= 'A' && key[i-1] <= 'Z') {
				result.WriteRune('_')
			}
			result.WriteRune(ch)
		} else {
			result.WriteRune(ch)
		}
	}

	return strings.ToUpper(result.String())
}

// EnvMapToSlice flattens an environment map into Docker's KEY=value slice
// form with deterministic ordering left to the caller's needs.
func EnvMapToSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
