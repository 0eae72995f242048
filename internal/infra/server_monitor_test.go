package infra

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"clipforge/internal/models"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	info  models.ServerInfo
	err   error
}

func (f *fakeFetcher) ServerInfo(ctx context.Context, serverID string) (*models.ServerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	info := f.info
	return &info, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestInfoCachesWhileFresh(t *testing.T) {
	fetcher := &fakeFetcher{info: models.ServerInfo{
		IsOnline: true,
		Models:   []string{"flux-dev"},
	}}
	m := NewServerMonitor(fetcher, time.Hour)

	first, err := m.Info(context.Background(), "srv-1")
	assert.NoError(t, err)
	second, err := m.Info(context.Background(), "srv-1")
	assert.NoError(t, err)

	assert.Equal(t, 1, fetcher.callCount())
	assert.Equal(t, first, second)
	assert.True(t, second.IsOnline)
}

func TestInfoRefetchesAfterExpiry(t *testing.T) {
	fetcher := &fakeFetcher{info: models.ServerInfo{IsOnline: true}}
	m := NewServerMonitor(fetcher, 10*time.Millisecond)

	_, err := m.Info(context.Background(), "srv-1")
	assert.NoError(t, err)

	time.Sleep(25 * time.Millisecond)

	_, err = m.Info(context.Background(), "srv-1")
	assert.NoError(t, err)
	assert.Equal(t, 2, fetcher.callCount())
}

func TestInvalidateForcesRefetch(t *testing.T) {
	fetcher := &fakeFetcher{info: models.ServerInfo{IsOnline: true}}
	m := NewServerMonitor(fetcher, time.Hour)

	_, err := m.Info(context.Background(), "srv-1")
	assert.NoError(t, err)

	m.Invalidate("srv-1")

	_, err = m.Info(context.Background(), "srv-1")
	assert.NoError(t, err)
	assert.Equal(t, 2, fetcher.callCount())
}

func TestServersCachedIndependently(t *testing.T) {
	fetcher := &fakeFetcher{info: models.ServerInfo{IsOnline: true}}
	m := NewServerMonitor(fetcher, time.Hour)

	_, _ = m.Info(context.Background(), "srv-1")
	_, _ = m.Info(context.Background(), "srv-2")
	_, _ = m.Info(context.Background(), "srv-1")

	assert.Equal(t, 2, fetcher.callCount())
}

func TestIsOnline(t *testing.T) {
	fetcher := &fakeFetcher{info: models.ServerInfo{IsOnline: false}}
	m := NewServerMonitor(fetcher, time.Hour)

	online, err := m.IsOnline(context.Background(), "srv-1")
	assert.NoError(t, err)
	assert.False(t, online)
}

func TestInfoErrorNotCached(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("backend down")}
	m := NewServerMonitor(fetcher, time.Hour)

	_, err := m.Info(context.Background(), "srv-1")
	assert.Error(t, err)

	// A failed fetch leaves no entry behind; the next access retries
	fetcher.mu.Lock()
	fetcher.err = nil
	fetcher.info = models.ServerInfo{IsOnline: true}
	fetcher.mu.Unlock()

	info, err := m.Info(context.Background(), "srv-1")
	assert.NoError(t, err)
	assert.True(t, info.IsOnline)
	assert.Equal(t, 2, fetcher.callCount())
}

func TestInfoReturnsCopies(t *testing.T) {
	fetcher := &fakeFetcher{info: models.ServerInfo{
		IsOnline: true,
		Models:   []string{"flux-dev", "sdxl"},
	}}
	m := NewServerMonitor(fetcher, time.Hour)

	first, err := m.Info(context.Background(), "srv-1")
	assert.NoError(t, err)
	first.Models[0] = "mutated"

	second, err := m.Info(context.Background(), "srv-1")
	assert.NoError(t, err)
	assert.Equal(t, "flux-dev", second.Models[0])
	assert.Equal(t, 1, fetcher.callCount())
}
