package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutObject(t *testing.T) {
	t.Parallel()

	store := New()
	uri, err := store.PutObject(context.Background(), "runs/abc/screenshot.png", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	require.Equal(t, "mem://runs/abc/screenshot.png", uri)

	data, ok := store.Object("runs/abc/screenshot.png")
	require.True(t, ok)
	require.Equal(t, "png-bytes", string(data))
	require.Equal(t, "image/png", store.ContentType("runs/abc/screenshot.png"))
	require.Equal(t, 1, store.Len())
}

func TestObjectMissing(t *testing.T) {
	t.Parallel()

	store := New()
	_, ok := store.Object("nope")
	require.False(t, ok)
}
