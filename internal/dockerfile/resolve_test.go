package dockerfile

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapResolver implements Resolver via map.
type mapResolver map[string]string

func (m mapResolver) ResolveTag(image, tag string) (string, error) {
	d, ok := m[fmt.Sprintf("%s:%s", image, tag)]
	if !ok {
		return "", fmt.Errorf("no such tag")
	}
	return d, nil
}

func TestResolvePassThrough(t *testing.T) {
	res := mapResolver{}

	for _, in := range []string{
		``,
		"# Comment\n\nAnd stuff\n\n",
		"\nDIRECTIVE 1\nFROMM 1\n",
	} {
		out, err := Resolve([]byte(in), res)
		require.NoError(t, err)
		assert.Equal(t, in, string(out))
	}
}

func TestResolveRewritesFromLines(t *testing.T) {
	res := mapResolver{
		"img1:tag1":   "res1",
		"img2:latest": "lat",
	}

	call := func(in string) string {
		out, err := Resolve([]byte(in), res)
		require.NoError(t, err)
		return string(out)
	}

	assert.Equal(t, `FROM img1@res1`, call(`FROM img1:tag1`))

	// Fields are re-joined with single spaces, AS clauses and trailing
	// comments survive.
	assert.Equal(t, `FROM img1@res1 AS Blarg # Zzz zz`,
		call(`FROM img1:tag1   AS Blarg #  Zzz  zz`))

	assert.Equal(t, `
FROM img1@res1
FROM imgZ@sha256:already_digest
FROM scratch
FROM img2@lat`,
		call(`
  FROM img1:tag1
  FROM imgZ@sha256:already_digest
  FROM scratch:wat
  FROM img2`))
}

func TestResolveKeepsStageAliases(t *testing.T) {
	res := mapResolver{"img1:tag1": "res1"}

	out, err := Resolve([]byte(`FROM img1:tag1 AS builder
FROM builder AS build1
FROM builder AS build2`), res)
	require.NoError(t, err)

	assert.Equal(t, `FROM img1@res1 AS builder
FROM builder AS build1
FROM builder AS build2`, string(out))
}

func TestResolveErrors(t *testing.T) {
	res := mapResolver{}

	callErr := func(in string) error {
		_, err := Resolve([]byte(in), res)
		require.Error(t, err)
		return err
	}

	assert.EqualError(t, callErr(`from`),
		`line 1: expecting 'FROM <image>', got only FROM`)
	assert.EqualError(t, callErr(`from # blah`),
		`line 1: resolving "#:latest": no such tag`)
	assert.EqualError(t, callErr(`FROM base:${CODE_VERSION}`),
		`line 1: bad FROM reference "base:${CODE_VERSION}", ARGs in FROM are not supported`)

	// Line numbers count from the top of the file.
	assert.EqualError(t, callErr("# fine\nFROM missing:tag"),
		`line 2: resolving "missing:tag": no such tag`)
}

func TestSplitImageTag(t *testing.T) {
	cases := []struct {
		ref   string
		image string
		tag   string
	}{
		{"img", "img", ""},
		{"img:tag", "img", "tag"},
		{"host:5000/img", "host:5000/img", ""},
		{"host:5000/img:tag", "host:5000/img", "tag"},
	}

	for _, tc := range cases {
		image, tag := splitImageTag(tc.ref)
		assert.Equal(t, tc.image, image, "ref %q", tc.ref)
		assert.Equal(t, tc.tag, tag, "ref %q", tc.ref)
	}
}
