package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileKVRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv, err := NewFileKV(t.TempDir())
	assert.NoError(t, err)

	_, err = kv.Get(ctx, "settings:generation")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, kv.Set(ctx, "settings:generation", []byte(`{"steps":30}`)))

	data, err := kv.Get(ctx, "settings:generation")
	assert.NoError(t, err)
	assert.Equal(t, `{"steps":30}`, string(data))

	// Overwrite, last write wins
	assert.NoError(t, kv.Set(ctx, "settings:generation", []byte(`{"steps":12}`)))
	data, err = kv.Get(ctx, "settings:generation")
	assert.NoError(t, err)
	assert.Equal(t, `{"steps":12}`, string(data))

	assert.NoError(t, kv.Close())
}

func TestFileKVSanitizesKeys(t *testing.T) {
	ctx := context.Background()
	kv, err := NewFileKV(t.TempDir())
	assert.NoError(t, err)

	// Separators and path characters must not break the document path
	key := "settings:model:flux/dev v1.0"
	assert.NoError(t, kv.Set(ctx, key, []byte("x")))

	data, err := kv.Get(ctx, key)
	assert.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestFileKVKeysDoNotCollide(t *testing.T) {
	ctx := context.Background()
	kv, err := NewFileKV(t.TempDir())
	assert.NoError(t, err)

	assert.NoError(t, kv.Set(ctx, "settings:model:a", []byte("1")))
	assert.NoError(t, kv.Set(ctx, "settings:model:b", []byte("2")))

	a, err := kv.Get(ctx, "settings:model:a")
	assert.NoError(t, err)
	b, err := kv.Get(ctx, "settings:model:b")
	assert.NoError(t, err)
	assert.Equal(t, "1", string(a))
	assert.Equal(t, "2", string(b))
}
