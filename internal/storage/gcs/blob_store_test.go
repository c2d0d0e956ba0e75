package gcs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresClientAndBucket(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "snapshots"})
	require.Error(t, err)
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	got, err := objectName("crawl", "abc/3.html")
	require.NoError(t, err)
	require.Equal(t, "crawl/abc/3.html", got)

	got, err = objectName("", "/abc/3.html")
	require.NoError(t, err)
	require.Equal(t, "abc/3.html", got)

	_, err = objectName("crawl", "  ")
	require.Error(t, err)
}
