package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "path/STATION-all.json", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "memory://path/STATION-all.json", uri)

	payload[0] = 'C'
	stored, ok := store.Get("path/STATION-all.json")
	require.True(t, ok)
	assert.Equal(t, "content", string(stored))

	stored[0] = 'X'
	again, _ := store.Get("path/STATION-all.json")
	assert.Equal(t, "content", string(again))
}

func TestBlobStoreExistsAndPaths(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()
	ok, err := store.Exists(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)

	for _, p := range []string{"b", "a"} {
		_, err := store.PutObject(ctx, p, "", bytes.NewBufferString(p))
		require.NoError(t, err)
	}
	ok, err = store.Exists(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, store.Paths())

	_, ok = store.Get("c")
	assert.False(t, ok)
}
