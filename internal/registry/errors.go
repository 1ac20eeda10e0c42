// Package registry implements a minimal Docker Registry HTTP API v2 client
// used to pin image tags to digests before builds.
//
// Only the manifest endpoints needed for tag resolution are covered. The
// client understands anonymous Bearer token auth (Docker Hub) and the
// structured error body the registry protocol defines.
package registry

import (
	"errors"
	"fmt"
	"strings"
)

// InnerError is one entry of a registry error response body.
type InnerError struct {
	// Code is the machine-readable error code, e.g. "MANIFEST_UNKNOWN".
	Code string `json:"code"`

	// Message is the human-readable description.
	Message string `json:"message"`
}

// Error is the structured error body returned by registries:
//
//	{"errors": [{"code": "...", "message": "..."}]}
type Error struct {
	Errors []InnerError `json:"errors"`
}

// Error makes *Error implement the error interface.
func (e *Error) Error() string {
	if len(e.Errors) == 0 {
		return "registry error"
	}
	parts := make([]string, 0, len(e.Errors))
	for _, inner := range e.Errors {
		if inner.Message != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", inner.Code, inner.Message))
		} else {
			parts = append(parts, inner.Code)
		}
	}
	return strings.Join(parts, "; ")
}

// IsManifestUnknown reports whether err (or an error it wraps) is a registry
// error carrying the MANIFEST_UNKNOWN code, i.e. the requested tag does not
// exist in the repository.
func IsManifestUnknown(err error) bool {
	var regErr *Error
	if !errors.As(err, &regErr) {
		return false
	}
	for _, inner := range regErr.Errors {
		if inner.Code == "MANIFEST_UNKNOWN" {
			return true
		}
	}
	return false
}
