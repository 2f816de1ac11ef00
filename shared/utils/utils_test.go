package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashContent(t *testing.T) {
	a := HashContent([]byte("hello"))
	b := HashContent([]byte("hello"))
	c := HashContent([]byte("world"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestSanitizeKey(t *testing.T) {
	t.Run("SafeCharactersPassThrough", func(t *testing.T) {
		key, err := SanitizeKey("abc-123", "node.v2")
		require.NoError(t, err)
		assert.Equal(t, "abc-123_node.v2", key)
	})

	t.Run("UnsafeCharactersEncoded", func(t *testing.T) {
		key, err := SanitizeKey("abc", "1:2")
		require.NoError(t, err)
		assert.Equal(t, "abc_1%3A2", key)
		assert.NotContains(t, key, ":")
	})

	t.Run("EmptyPartsRejected", func(t *testing.T) {
		_, err := SanitizeKey("", "1:2")
		require.Error(t, err)
		_, err = SanitizeKey("abc", "")
		require.Error(t, err)
	})

	t.Run("Deterministic", func(t *testing.T) {
		a, err := SanitizeKey("key/with/slashes", "1:2")
		require.NoError(t, err)
		b, err := SanitizeKey("key/with/slashes", "1:2")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	// Underscores in inputs are encoded, so the part separator can never be
	// forged by a crafted identifier.
	t.Run("CollisionFree", func(t *testing.T) {
		a, err := SanitizeKey("a_b", "c")
		require.NoError(t, err)
		b, err := SanitizeKey("a", "b_c")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}
