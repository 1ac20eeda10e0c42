package registry

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsManifestUnknown(t *testing.T) {
	manUnknownErr := &Error{
		Errors: []InnerError{
			{},
			{Code: "MANIFEST_UNKNOWN"},
		},
	}

	assert.False(t, IsManifestUnknown(nil))
	assert.False(t, IsManifestUnknown(&Error{}))
	assert.False(t, IsManifestUnknown(errors.New("plain error")))
	assert.True(t, IsManifestUnknown(manUnknownErr))

	// Wrapped errors still match.
	assert.True(t, IsManifestUnknown(fmt.Errorf("blah: %w", manUnknownErr)))
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "registry error", (&Error{}).Error())

	err := &Error{Errors: []InnerError{
		{Code: "MANIFEST_UNKNOWN", Message: "manifest unknown"},
		{Code: "DENIED"},
	}}
	assert.Equal(t, "MANIFEST_UNKNOWN: manifest unknown; DENIED", err.Error())
}

func TestParseBearerChallenge(t *testing.T) {
	params := parseBearerChallenge(
		`Bearer realm="https://auth.docker.io/token",service="registry.docker.io",scope="repository:library/node:pull"`)

	assert.Equal(t, "https://auth.docker.io/token", params["realm"])
	assert.Equal(t, "registry.docker.io", params["service"])
	assert.Equal(t, "repository:library/node:pull", params["scope"])

	assert.Empty(t, parseBearerChallenge(""))
}
