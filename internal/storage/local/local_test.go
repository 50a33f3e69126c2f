package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutObject(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := New(root, nil)
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "runs/abc/result.json", "application/json", strings.NewReader(`{"isBook":true}`))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "runs", "abc", "result.json"), uri)

	data, err := os.ReadFile(uri)
	require.NoError(t, err)
	require.JSONEq(t, `{"isBook":true}`, string(data))
}

func TestPutObjectCreatesNestedDirs(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "a/b/c/d.png", "image/png", strings.NewReader("png"))
	require.NoError(t, err)
	require.FileExists(t, uri)
}

func TestPutObjectCancelledContext(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.PutObject(ctx, "runs/abc/x", "text/plain", strings.NewReader("x"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewCreatesRoot(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "artifacts")
	_, err := New(root, nil)
	require.NoError(t, err)
	require.DirExists(t, root)
}
