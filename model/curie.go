package model

import "github.com/fogfish/curie/v2"

// CurieKey renders a compact hierarchical identifier (curie.IRI's
// "prefix:path/to/thing" convention) down to the plain string a KeyFn stores
// in PK/SK/GSInPK/GSInSK. It is optional: callers whose schema does not need
// curie-style IDs can build Keys from plain strings directly.
func CurieKey(iri curie.IRI) string { return string(iri) }

// NewCurieKey is CurieKey's inverse convenience: build a curie.IRI from a
// prefix and path, for models that want to round-trip through the curie
// helpers instead of hand-formatting "prefix:path" strings.
func NewCurieKey(prefix, path string) curie.IRI {
	if prefix == "" {
		return curie.New(path)
	}
	return curie.New(prefix + ":" + path)
}
