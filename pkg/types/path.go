package types

import (
	"fmt"
	"net/url"
	"strings"
)

// Paths are slash-separated, normalized sequences of non-empty segments.
// The root container has the empty path. The dot character is forbidden
// anywhere in a path, which rules out "." and ".." traversal outright.

// NormalizePath validates and canonicalizes a raw path. Leading and
// trailing separators are stripped; empty segments are rejected.
func NormalizePath(raw string) (string, error) {
	if strings.Contains(raw, ".") {
		return "", fmt.Errorf("invalid character '.' in path %q", raw)
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "", nil
	}
	for _, seg := range strings.Split(trimmed, "/") {
		if seg == "" {
			return "", fmt.Errorf("empty segment in path %q", raw)
		}
	}
	return trimmed, nil
}

// PathFromURI extracts the node path from a node URI of the form
// vos://<space>!vospace/<path>. Plain paths are accepted as well.
func PathFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse node uri %q: %w", uri, err)
	}
	if u.Path == "" {
		return "", fmt.Errorf("node uri %q has no path", uri)
	}
	return NormalizePath(u.Path)
}

// NodeURI reconstructs the canonical node URI for a path within a space.
func NodeURI(space, path string) string {
	return fmt.Sprintf("vos://%s!vospace/%s", space, path)
}

// ParentPath returns the parent of a non-root path and whether one
// exists. The parent of a top-level node is the root ("").
func ParentPath(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "", true
	}
	return path[:i], true
}

// Ancestors returns the strict ancestors of path from the root down,
// excluding the root itself.
func Ancestors(path string) []string {
	if path == "" {
		return nil
	}
	var out []string
	for i, c := range path {
		if c == '/' {
			out = append(out, path[:i])
		}
	}
	return out
}

// IsAncestorPath reports whether a is a strict ancestor of b. The root
// is an ancestor of every other path.
func IsAncestorPath(a, b string) bool {
	if a == b {
		return false
	}
	if a == "" {
		return b != ""
	}
	return strings.HasPrefix(b, a+"/")
}

// RewritePrefix replaces the src prefix of path with dest. path must be
// src itself or a descendant of src.
func RewritePrefix(path, src, dest string) string {
	if path == src {
		return dest
	}
	rest := strings.TrimPrefix(path, src+"/")
	if dest == "" {
		return rest
	}
	return dest + "/" + rest
}
