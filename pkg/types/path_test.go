package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNormalizePath tests path canonicalization and rejection
func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "simple path", raw: "a/b/c", want: "a/b/c"},
		{name: "leading slash", raw: "/a/b", want: "a/b"},
		{name: "trailing slash", raw: "a/b/", want: "a/b"},
		{name: "both slashes", raw: "/a/", want: "a"},
		{name: "root", raw: "/", want: ""},
		{name: "empty", raw: "", want: ""},
		{name: "dot rejected", raw: "a/./b", wantErr: true},
		{name: "dotdot rejected", raw: "a/../b", wantErr: true},
		{name: "dot in name rejected", raw: "file.fits", wantErr: true},
		{name: "empty segment rejected", raw: "a//b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePath(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestPathFromURI tests node URI to path extraction
func TestPathFromURI(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		want    string
		wantErr bool
	}{
		{name: "vos uri", uri: "vos://icrar.org!vospace/a/b", want: "a/b"},
		{name: "plain path", uri: "/a/b", want: "a/b"},
		{name: "no path", uri: "vos://icrar.org!vospace", wantErr: true},
		{name: "traversal", uri: "vos://icrar.org!vospace/a/../b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PathFromURI(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNodeURI(t *testing.T) {
	assert.Equal(t, "vos://icrar.org!vospace/a/b", NodeURI("icrar.org", "a/b"))
}

func TestParentPath(t *testing.T) {
	tests := []struct {
		path   string
		parent string
		ok     bool
	}{
		{path: "a/b/c", parent: "a/b", ok: true},
		{path: "a", parent: "", ok: true},
		{path: "", parent: "", ok: false},
	}
	for _, tt := range tests {
		parent, ok := ParentPath(tt.path)
		assert.Equal(t, tt.parent, parent)
		assert.Equal(t, tt.ok, ok)
	}
}

func TestAncestors(t *testing.T) {
	assert.Nil(t, Ancestors(""))
	assert.Empty(t, Ancestors("a"))
	assert.Equal(t, []string{"a", "a/b"}, Ancestors("a/b/c"))
}

func TestIsAncestorPath(t *testing.T) {
	assert.True(t, IsAncestorPath("", "a"))
	assert.True(t, IsAncestorPath("a", "a/b"))
	assert.True(t, IsAncestorPath("a/b", "a/b/c"))
	assert.False(t, IsAncestorPath("a", "a"))
	assert.False(t, IsAncestorPath("a", "ab"))
	assert.False(t, IsAncestorPath("a/b", "a"))
}

func TestRewritePrefix(t *testing.T) {
	assert.Equal(t, "x/y", RewritePrefix("a/b", "a/b", "x/y"))
	assert.Equal(t, "x/y/c", RewritePrefix("a/b/c", "a/b", "x/y"))
	assert.Equal(t, "c", RewritePrefix("a/b/c", "a/b", ""))
}
