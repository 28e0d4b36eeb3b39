// Package cache provides conditional-read fingerprints and a Redis-backed
// summary cache for diagrams. Fingerprints derive from (id, version), never
// from payload bytes: the write protocol guarantees version uniquely
// identifies content, so any accepted write invalidates implicitly.
package cache

import (
	"fmt"
	"hash/fnv"
)

// Fingerprint returns the opaque ETag for a diagram at a version. The same
// (id, version) always yields the same token.
func Fingerprint(id string, version int64) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s:%d", id, version)
	return fmt.Sprintf(`"%016x"`, h.Sum64())
}

// Match reports whether a client-supplied If-None-Match value matches the
// current fingerprint. A bare "*" matches any current representation.
func Match(ifNoneMatch, current string) bool {
	if ifNoneMatch == "" {
		return false
	}
	if ifNoneMatch == "*" {
		return true
	}
	return ifNoneMatch == current
}
