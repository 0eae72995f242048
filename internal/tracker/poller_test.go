package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"clipforge/internal/models"
)

type stubFetcher struct {
	mu    sync.Mutex
	calls int
	resp  *models.JobStatusUpdate
	err   error
}

func (f *stubFetcher) JobStatus(ctx context.Context, jobID string) (*models.JobStatusUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	update := *f.resp
	update.ID = jobID
	return &update, nil
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestPollerAppliesUpdates(t *testing.T) {
	registry := NewRegistry()
	registry.Add(models.TrackedJob{ID: "j1"})

	fetcher := &stubFetcher{resp: &models.JobStatusUpdate{
		Status: models.JobStatusCompleted,
		Result: &models.JobResult{OutputURL: "http://cdn/out.png"},
	}}

	p := NewPoller(registry, fetcher, 20*time.Millisecond, 3)
	p.Start()
	defer p.Stop()

	p.Track("j1")

	assert.Eventually(t, func() bool {
		job, ok := registry.Get("j1")
		return ok && job.Status == models.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	job, _ := registry.Get("j1")
	assert.Equal(t, "http://cdn/out.png", job.Result.OutputURL)
}

func TestPollerMarksFailedAfterRetries(t *testing.T) {
	registry := NewRegistry()
	registry.Add(models.TrackedJob{ID: "j1"})

	fetcher := &stubFetcher{err: errors.New("connection refused")}

	p := NewPoller(registry, fetcher, 20*time.Millisecond, 2)
	p.Start()
	defer p.Stop()

	p.Track("j1")

	assert.Eventually(t, func() bool {
		job, ok := registry.Get("j1")
		return ok && job.Status == models.JobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	job, _ := registry.Get("j1")
	assert.Equal(t, "lost contact with the generation backend", job.Error)
}

func TestPollerTrackBeforeStartNoop(t *testing.T) {
	registry := NewRegistry()
	registry.Add(models.TrackedJob{ID: "j1"})

	fetcher := &stubFetcher{resp: &models.JobStatusUpdate{Status: models.JobStatusProcessing}}

	p := NewPoller(registry, fetcher, 10*time.Millisecond, 3)
	p.Track("j1")

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, fetcher.callCount())
}

func TestPollerStopsPollingTerminalJobs(t *testing.T) {
	registry := NewRegistry()
	registry.Add(models.TrackedJob{ID: "j1"})

	fetcher := &stubFetcher{resp: &models.JobStatusUpdate{Status: models.JobStatusCompleted}}

	p := NewPoller(registry, fetcher, 20*time.Millisecond, 3)
	p.Start()
	defer p.Stop()

	p.Track("j1")

	assert.Eventually(t, func() bool {
		job, _ := registry.Get("j1")
		return job.Status == models.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	// The terminal update untracks the job; once in-flight polls
	// drain, the count stops moving
	time.Sleep(100 * time.Millisecond)
	settled := fetcher.callCount()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, settled, fetcher.callCount())
}
