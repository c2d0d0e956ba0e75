package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasherHash(t *testing.T) {
	t.Parallel()

	got, err := New().Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", got)
	require.Equal(t, got, Sum([]byte("hello world")))
}

func TestShort(t *testing.T) {
	t.Parallel()

	require.Equal(t, "b94d27b9934d", Short([]byte("hello world"), 12))
	require.Len(t, Short([]byte("x"), 0), 64)
	require.Len(t, Short([]byte("x"), 100), 64)
}
