// Package infra watches the ComfyUI server pool through the pipeline
// backend and caches each server's reported state.
package infra

import (
	"context"
	"sync"
	"time"

	"clipforge/internal/models"
)

const defaultRefreshInterval = 30 * time.Second

// InfoFetcher is the slice of the pipeline client the monitor needs
type InfoFetcher interface {
	ServerInfo(ctx context.Context, serverID string) (*models.ServerInfo, error)
}

type serverState struct {
	info      models.ServerInfo
	fetchedAt time.Time
}

// ServerMonitor caches per-server online state and inventory. Entries
// older than the refresh interval are refetched on access.
type ServerMonitor struct {
	fetcher InfoFetcher
	maxAge  time.Duration

	mu      sync.RWMutex
	servers map[string]*serverState
}

func NewServerMonitor(fetcher InfoFetcher, maxAge time.Duration) *ServerMonitor {
	if maxAge <= 0 {
		maxAge = defaultRefreshInterval
	}
	return &ServerMonitor{
		fetcher: fetcher,
		maxAge:  maxAge,
		servers: make(map[string]*serverState),
	}
}

// Info returns the server's report, served from cache while fresh
func (m *ServerMonitor) Info(ctx context.Context, serverID string) (*models.ServerInfo, error) {
	m.mu.RLock()
	state, ok := m.servers[serverID]
	m.mu.RUnlock()

	if ok && time.Since(state.fetchedAt) < m.maxAge {
		return copyInfo(state.info), nil
	}

	info, err := m.fetcher.ServerInfo(ctx, serverID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.servers[serverID] = &serverState{
		info:      *info,
		fetchedAt: time.Now(),
	}
	m.mu.Unlock()

	return copyInfo(*info), nil
}

// IsOnline resolves the online flag the request builder requires
func (m *ServerMonitor) IsOnline(ctx context.Context, serverID string) (bool, error) {
	info, err := m.Info(ctx, serverID)
	if err != nil {
		return false, err
	}
	return info.IsOnline, nil
}

// Invalidate drops one server's cached state so the next access
// refetches
func (m *ServerMonitor) Invalidate(serverID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.servers, serverID)
}

func copyInfo(info models.ServerInfo) *models.ServerInfo {
	copied := info
	copied.Models = append([]string(nil), info.Models...)
	copied.LoRAs = append([]string(nil), info.LoRAs...)
	return &copied
}
