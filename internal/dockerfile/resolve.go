package dockerfile

import (
	"fmt"
	"strings"
)

// Resolver resolves an image tag into a digest.
//
// Implementations typically talk to a Docker registry (see
// internal/registry); tests use a map-backed fake.
type Resolver interface {
	// ResolveTag returns the digest for image:tag, in whatever form the
	// registry reports it (e.g., "sha256:abc...").
	ResolveTag(image, tag string) (digest string, err error)
}

// Resolve rewrites FROM lines in a Dockerfile to use image digests instead
// of floating tags.
//
// Rules applied per FROM line:
//   - "image:tag" is resolved through the resolver and becomes
//     "image@digest"; a missing tag defaults to "latest"
//   - references already pinned with "@" pass through untouched
//   - "scratch" is special-cased: any tag is dropped, nothing is resolved
//   - stage aliases introduced with "AS name" are remembered; a later FROM
//     naming a previous stage is not resolved
//   - ARG interpolation inside FROM is rejected, since the reference is
//     unknowable without build arguments
//
// All other lines (comments, other directives, blank lines) pass through
// byte for byte. FROM lines are re-emitted with fields joined by single
// spaces.
//
// Parameters:
//   - dockerfile: Dockerfile content to rewrite
//   - res: Resolver used for tag lookups
//
// Returns:
//   - Rewritten Dockerfile content
//   - Error annotated with the 1-based line number on failure
func Resolve(dockerfile []byte, res Resolver) ([]byte, error) {
	lines := strings.Split(string(dockerfile), "\n")
	out := make([]string, 0, len(lines))

	// Stage names defined so far, lowercased. Docker matches stage names
	// case-insensitively.
	stages := make(map[string]bool)

	for idx, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 || !strings.EqualFold(fields[0], "FROM") {
			out = append(out, line)
			continue
		}

		resolved, err := resolveFromLine(fields, stages, res)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", idx+1, err)
		}
		out = append(out, resolved)
	}

	return []byte(strings.Join(out, "\n")), nil
}

// resolveFromLine rewrites a single tokenized FROM line.
func resolveFromLine(fields []string, stages map[string]bool, res Resolver) (string, error) {
	// Skip over flags like --platform to find the image reference.
	imgIdx := 1
	for imgIdx < len(fields) && strings.HasPrefix(fields[imgIdx], "--") {
		imgIdx++
	}
	if imgIdx >= len(fields) {
		return "", fmt.Errorf("expecting 'FROM <image>', got only FROM")
	}

	ref := fields[imgIdx]

	// Record the stage alias regardless of how the base resolves, so the
	// alias is known even if a later line errors out first.
	if asIdx := imgIdx + 1; asIdx+1 < len(fields) && strings.EqualFold(fields[asIdx], "AS") {
		stages[strings.ToLower(fields[asIdx+1])] = true
	}

	rewritten, err := rewriteReference(ref, stages, res)
	if err != nil {
		return "", err
	}

	outFields := append([]string{}, fields...)
	outFields[0] = "FROM"
	outFields[imgIdx] = rewritten
	return strings.Join(outFields, " "), nil
}

// rewriteReference pins one image reference, applying the special cases
// documented on Resolve.
func rewriteReference(ref string, stages map[string]bool, res Resolver) (string, error) {
	if strings.ContainsAny(ref, "$") {
		return "", fmt.Errorf("bad FROM reference %q, ARGs in FROM are not supported", ref)
	}

	// Already pinned by digest.
	if strings.Contains(ref, "@") {
		return ref, nil
	}

	image, tag := splitImageTag(ref)

	// The reserved empty base image is never resolved and carries no tag.
	if image == "scratch" {
		return "scratch", nil
	}

	// A previous build stage used as a base.
	if stages[strings.ToLower(image)] && tag == "" {
		return ref, nil
	}

	if tag == "" {
		tag = "latest"
	}

	digest, err := res.ResolveTag(image, tag)
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", image+":"+tag, err)
	}

	return image + "@" + digest, nil
}

// splitImageTag splits "image:tag" respecting registry host ports
// ("host:5000/img" has no tag).
func splitImageTag(ref string) (image, tag string) {
	colon := strings.LastIndex(ref, ":")
	if colon < 0 || colon < strings.LastIndex(ref, "/") {
		return ref, ""
	}
	return ref[:colon], ref[colon+1:]
}
