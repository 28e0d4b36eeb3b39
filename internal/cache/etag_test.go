package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterministicPerVersion(t *testing.T) {
	a := Fingerprint("doc-1", 1)
	require.Equal(t, a, Fingerprint("doc-1", 1))

	// any accepted write changes the version, hence the fingerprint
	require.NotEqual(t, a, Fingerprint("doc-1", 2))
	// different diagrams at the same version do not collide
	require.NotEqual(t, a, Fingerprint("doc-2", 1))

	// rendered as a quoted opaque token suitable for an ETag header
	require.Regexp(t, `^"[0-9a-f]{16}"$`, a)
}

func TestMatch(t *testing.T) {
	cur := Fingerprint("doc-1", 3)
	require.True(t, Match(cur, cur))
	require.True(t, Match("*", cur))
	require.False(t, Match("", cur))
	require.False(t, Match(Fingerprint("doc-1", 2), cur))
}
