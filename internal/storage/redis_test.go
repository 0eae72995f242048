package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
)

func setupTestRedis(t *testing.T) (*RedisKV, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisKVFromClient(client), mr
}

func TestRedisKVRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv, mr := setupTestRedis(t)

	_, err := kv.Get(ctx, "settings:generation")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, kv.Set(ctx, "settings:generation", []byte(`{"provider":"comfyui"}`)))

	data, err := kv.Get(ctx, "settings:generation")
	assert.NoError(t, err)
	assert.Equal(t, `{"provider":"comfyui"}`, string(data))

	// Stored without expiry
	stored, err := mr.Get("settings:generation")
	assert.NoError(t, err)
	assert.Equal(t, `{"provider":"comfyui"}`, stored)
	assert.Equal(t, int64(0), int64(mr.TTL("settings:generation")))
}

func TestRedisKVOverwrite(t *testing.T) {
	ctx := context.Background()
	kv, _ := setupTestRedis(t)

	assert.NoError(t, kv.Set(ctx, "k", []byte("first")))
	assert.NoError(t, kv.Set(ctx, "k", []byte("second")))

	data, err := kv.Get(ctx, "k")
	assert.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestRedisKVConnectionLoss(t *testing.T) {
	ctx := context.Background()
	kv, mr := setupTestRedis(t)

	mr.Close()

	_, err := kv.Get(ctx, "k")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
