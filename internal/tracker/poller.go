package tracker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"clipforge/internal/models"
	"clipforge/pkg/logger"
)

// StatusFetcher is the slice of the pipeline client the poller needs
type StatusFetcher interface {
	JobStatus(ctx context.Context, jobID string) (*models.JobStatusUpdate, error)
}

// Poller periodically fetches status for tracked jobs and feeds the
// registry. A job whose polls keep failing past the retry cap is
// marked failed and dropped from the poll set.
type Poller struct {
	registry *Registry
	fetcher  StatusFetcher
	interval time.Duration
	retryMax int

	mu      sync.Mutex
	retries map[string]int

	addChan    chan string
	removeChan chan string
	stopChan   chan struct{}
	running    *atomic.Bool
}

func NewPoller(registry *Registry, fetcher StatusFetcher, interval time.Duration, retryMax int) *Poller {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 5
	}

	p := &Poller{
		registry:   registry,
		fetcher:    fetcher,
		interval:   interval,
		retryMax:   retryMax,
		retries:    make(map[string]int),
		addChan:    make(chan string, 100),
		removeChan: make(chan string, 100),
		stopChan:   make(chan struct{}),
		running:    atomic.NewBool(false),
	}

	// Updates applied from any source (webhook push included) drop
	// finished jobs out of the poll set
	registry.OnUpdate(func(job models.TrackedJob) {
		if job.Status.IsTerminal() {
			p.Untrack(job.ID)
		}
	})

	return p
}

// Track adds a job id to the poll set
func (p *Poller) Track(jobID string) {
	if !p.running.Load() {
		return
	}
	select {
	case p.addChan <- jobID:
	default:
		logger.Log.Warn("poller add queue full, dropping job",
			zap.String("job_id", jobID))
	}
}

// Untrack removes a job id from the poll set
func (p *Poller) Untrack(jobID string) {
	if !p.running.Load() {
		return
	}
	select {
	case p.removeChan <- jobID:
	default:
	}
}

// Start launches the poll loop; safe to call once
func (p *Poller) Start() {
	if !p.running.CAS(false, true) {
		return
	}
	go p.loop()
}

// Stop shuts the poll loop down
func (p *Poller) Stop() {
	if !p.running.CAS(true, false) {
		return
	}
	close(p.stopChan)
}

func (p *Poller) loop() {
	logger.Log.Info("job status poller started",
		zap.Duration("interval", p.interval))

	tracked := make(map[string]struct{})
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case id := <-p.addChan:
			tracked[id] = struct{}{}

		case id := <-p.removeChan:
			delete(tracked, id)
			p.mu.Lock()
			delete(p.retries, id)
			p.mu.Unlock()

		case <-ticker.C:
			for id := range tracked {
				go p.poll(id)
			}

		case <-p.stopChan:
			logger.Log.Info("job status poller stopped")
			return
		}
	}
}

func (p *Poller) poll(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()

	update, err := p.fetcher.JobStatus(ctx, jobID)
	if err != nil {
		p.mu.Lock()
		p.retries[jobID]++
		count := p.retries[jobID]
		p.mu.Unlock()

		logger.Log.Warn("job status poll failed",
			zap.String("job_id", jobID),
			zap.Int("attempt", count),
			zap.Error(err))

		if count > p.retryMax {
			p.registry.ApplyStatusUpdate(models.JobStatusUpdate{
				ID:     jobID,
				Status: models.JobStatusFailed,
				Error:  "lost contact with the generation backend",
			})
			p.Untrack(jobID)
		}
		return
	}

	p.mu.Lock()
	delete(p.retries, jobID)
	p.mu.Unlock()

	p.registry.ApplyStatusUpdate(*update)
}
