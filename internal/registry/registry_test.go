package registry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient returns a client that talks plain HTTP to the test server.
func newTestClient(t *testing.T) (*Client, string) {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "test-token"})
	})

	mux.HandleFunc("/v2/testorg/app/manifests/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.Header().Set("WWW-Authenticate",
				fmt.Sprintf(`Bearer realm="http://%s/token",service="test-registry"`, r.Host))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		tag := r.URL.Path[len("/v2/testorg/app/manifests/"):]
		switch tag {
		case "v1":
			w.Header().Set("Docker-Content-Digest", "sha256:deadbeef")
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(Error{Errors: []InnerError{
				{Code: "MANIFEST_UNKNOWN", Message: "manifest unknown"},
			}})
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	c := NewClient()
	c.scheme = "http"
	return c, u.Host
}

func TestResolveTagWithTokenAuth(t *testing.T) {
	c, host := newTestClient(t)

	digest, err := c.ResolveTag(host+"/testorg/app", "v1")
	require.NoError(t, err)
	assert.Equal(t, "sha256:deadbeef", digest)

	// Second lookup reuses the cached token (the handler would 401 an
	// unauthenticated request and the single retry budget is spent on
	// fresh clients only).
	digest, err = c.ResolveTag(host+"/testorg/app", "v1")
	require.NoError(t, err)
	assert.Equal(t, "sha256:deadbeef", digest)
}

func TestResolveTagManifestUnknown(t *testing.T) {
	c, host := newTestClient(t)

	_, err := c.ResolveTag(host+"/testorg/app", "nope")
	require.Error(t, err)
	assert.True(t, IsManifestUnknown(err))
}

func TestResolveTagRejectsBadReference(t *testing.T) {
	c := NewClient()

	_, err := c.ResolveTag("UPPER CASE IS INVALID", "latest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid image reference")
}
