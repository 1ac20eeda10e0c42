package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/distribution/reference"

	"github.com/heartmula/mula/internal/logger"
)

// Manifest media types accepted when resolving a tag. Listing the index
// types first makes multi-arch repositories return the index digest, which
// is the reference a FROM line should pin to.
const acceptHeader = "application/vnd.oci.image.index.v1+json, " +
	"application/vnd.docker.distribution.manifest.list.v2+json, " +
	"application/vnd.oci.image.manifest.v1+json, " +
	"application/vnd.docker.distribution.manifest.v2+json"

// requestTimeout bounds a single registry round trip.
const requestTimeout = 30 * time.Second

// Client resolves image tags against Docker registries.
//
// The zero value is not usable; create clients with NewClient. A single
// client may be used concurrently and caches anonymous pull tokens per
// repository.
type Client struct {
	httpClient *http.Client
	scheme     string

	mu     sync.Mutex
	tokens map[string]string // repository -> bearer token
}

// NewClient creates a registry client with sane timeouts.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		scheme:     "https",
		tokens:     make(map[string]string),
	}
}

// ResolveTag resolves image:tag to a manifest digest.
//
// The image may be in short Docker Hub form ("python", "library/python") or
// fully qualified ("ghcr.io/org/app"). Implements the dockerfile.Resolver
// interface used by FROM pinning.
//
// Returns:
//   - Digest string as reported by the registry (e.g., "sha256:...")
//   - *Error for structured registry failures (check IsManifestUnknown)
//   - Other errors for transport or protocol problems
func (c *Client) ResolveTag(image, tag string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return c.ResolveTagContext(ctx, image, tag)
}

// ResolveTagContext is ResolveTag with caller-controlled cancellation.
func (c *Client) ResolveTagContext(ctx context.Context, image, tag string) (string, error) {
	named, err := reference.ParseNormalizedNamed(image)
	if err != nil {
		return "", fmt.Errorf("invalid image reference %q: %w", image, err)
	}

	host := reference.Domain(named)
	repo := reference.Path(named)

	// The Docker Hub registry lives on a different host than the name
	// implies.
	if host == "docker.io" {
		host = "registry-1.docker.io"
	}

	digest, err := c.fetchDigest(ctx, host, repo, tag, true)
	if err != nil {
		return "", err
	}

	logger.Debug("Resolved %s:%s -> %s", image, tag, digest)

	return digest, nil
}

// fetchDigest performs the manifest request, acquiring an anonymous token
// once when the registry asks for auth.
func (c *Client) fetchDigest(ctx context.Context, host, repo, tag string, retryAuth bool) (string, error) {
	url := fmt.Sprintf("%s://%s/v2/%s/manifests/%s", c.scheme, host, repo, tag)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create manifest request: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)

	if token := c.cachedToken(host + "/" + repo); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("manifest request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		digest := resp.Header.Get("Docker-Content-Digest")
		if digest == "" {
			return "", fmt.Errorf("registry %s did not return a manifest digest for %s:%s", host, repo, tag)
		}
		return digest, nil

	case resp.StatusCode == http.StatusUnauthorized && retryAuth:
		token, err := c.fetchToken(ctx, resp.Header.Get("WWW-Authenticate"), repo)
		if err != nil {
			return "", err
		}
		c.storeToken(host+"/"+repo, token)
		return c.fetchDigest(ctx, host, repo, tag, false)

	default:
		return "", readRegistryError(resp, host, repo, tag)
	}
}

// readRegistryError turns a non-OK manifest response into an error,
// preserving the structured registry body when present.
func readRegistryError(resp *http.Response, host, repo, tag string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var regErr Error
	if json.Unmarshal(body, &regErr) == nil && len(regErr.Errors) > 0 {
		return &regErr
	}

	// Some registries answer 404 with an empty or unstructured body. Map
	// it to the protocol code so callers can still use IsManifestUnknown.
	if resp.StatusCode == http.StatusNotFound {
		return &Error{Errors: []InnerError{{
			Code:    "MANIFEST_UNKNOWN",
			Message: fmt.Sprintf("manifest %s:%s not found on %s", repo, tag, host),
		}}}
	}

	return fmt.Errorf("registry %s returned status %d for %s:%s", host, resp.StatusCode, repo, tag)
}

// fetchToken acquires an anonymous pull token from the auth service named
// in the WWW-Authenticate challenge.
//
// Challenge format:
//
//	Bearer realm="https://auth.docker.io/token",service="registry.docker.io",scope="..."
func (c *Client) fetchToken(ctx context.Context, challenge, repo string) (string, error) {
	params := parseBearerChallenge(challenge)
	realm := params["realm"]
	if realm == "" {
		return "", fmt.Errorf("registry auth challenge has no realm: %q", challenge)
	}

	url := realm + "?scope=repository:" + repo + ":pull"
	if service := params["service"]; service != "" {
		url += "&service=" + service
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var tokenResp struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	if tokenResp.Token != "" {
		return tokenResp.Token, nil
	}
	if tokenResp.AccessToken != "" {
		return tokenResp.AccessToken, nil
	}
	return "", fmt.Errorf("token endpoint returned no token")
}

// parseBearerChallenge extracts the key="value" parameters of a Bearer
// auth challenge.
func parseBearerChallenge(challenge string) map[string]string {
	params := make(map[string]string)

	challenge = strings.TrimPrefix(challenge, "Bearer ")
	for _, part := range strings.Split(challenge, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		params[kv[0]] = strings.Trim(kv[1], `"`)
	}

	return params
}

// cachedToken returns the cached token for a repository, if any.
func (c *Client) cachedToken(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens[key]
}

// storeToken caches a token for a repository.
func (c *Client) storeToken(key, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[key] = token
}
