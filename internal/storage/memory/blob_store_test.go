package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("<html></html>")
	uri, err := store.PutObject(context.Background(), "snapshots/abc/1.html", "text/html", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://snapshots/abc/1.html", uri)

	payload[0] = 'X'
	body, contentType, ok := store.Object("snapshots/abc/1.html")
	require.True(t, ok)
	require.Equal(t, "<html></html>", string(body))
	require.Equal(t, "text/html", contentType)
	require.Equal(t, []string{"snapshots/abc/1.html"}, store.Paths())

	_, _, ok = store.Object("missing")
	require.False(t, ok)
}
