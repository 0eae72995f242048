// Package tracker is the process-wide registry of in-flight and
// completed generation jobs. The registry performs no I/O of its own;
// status changes arrive through ApplyStatusUpdate from whichever
// source observes them (poller, webhook push).
package tracker

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"clipforge/internal/models"
	"clipforge/pkg/logger"
)

// Registry tracks generation jobs by server-assigned id
type Registry struct {
	jobs map[string]*models.TrackedJob
	mu   sync.RWMutex

	subMu       sync.RWMutex
	subscribers []func(models.TrackedJob)
}

func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[string]*models.TrackedJob),
	}
}

// OnUpdate registers a callback invoked after every applied change.
// Callbacks run outside the registry lock and receive a copy.
func (r *Registry) OnUpdate(fn func(models.TrackedJob)) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

// Add inserts a job as pending. A duplicate id overwrites the previous
// record, last write wins.
func (r *Registry) Add(job models.TrackedJob) {
	now := time.Now()
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	job.CreatedAt = now
	job.UpdatedAt = now

	r.mu.Lock()
	if _, exists := r.jobs[job.ID]; exists {
		logger.Log.Warn("tracked job id collision, overwriting",
			zap.String("job_id", job.ID))
	}
	stored := job
	r.jobs[job.ID] = &stored
	r.mu.Unlock()

	r.notify(job)
}

// ApplyStatusUpdate is the single entry point for status changes.
// Updates for unknown ids are ignored; the last applied update wins.
func (r *Registry) ApplyStatusUpdate(update models.JobStatusUpdate) {
	r.mu.Lock()
	job, ok := r.jobs[update.ID]
	if !ok {
		r.mu.Unlock()
		logger.Log.Debug("status update for unknown job ignored",
			zap.String("job_id", update.ID))
		return
	}

	job.Status = update.Status
	if update.Progress != nil {
		job.Progress = *update.Progress
	}
	if update.Result != nil {
		result := *update.Result
		job.Result = &result
	}
	if update.Error != "" {
		job.Error = update.Error
	}
	job.UpdatedAt = time.Now()

	changed := *job
	r.mu.Unlock()

	r.notify(changed)
}

// Get returns a copy of one job
func (r *Registry) Get(id string) (models.TrackedJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return models.TrackedJob{}, false
	}
	return *job, true
}

// Active returns jobs still pending or processing, oldest first
func (r *Registry) Active() []models.TrackedJob {
	return r.filter(func(j *models.TrackedJob) bool {
		return !j.Status.IsTerminal()
	})
}

// Completed returns jobs in a terminal state, oldest first
func (r *Registry) Completed() []models.TrackedJob {
	return r.filter(func(j *models.TrackedJob) bool {
		return j.Status.IsTerminal()
	})
}

// Snapshot returns all tracked jobs, oldest first
func (r *Registry) Snapshot() []models.TrackedJob {
	return r.filter(func(*models.TrackedJob) bool { return true })
}

// Dismiss removes one job from the completed set. Active or unknown
// ids are silently ignored.
func (r *Registry) Dismiss(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || !job.Status.IsTerminal() {
		return
	}
	delete(r.jobs, id)
}

// DismissAll clears every completed job; active jobs are untouched
func (r *Registry) DismissAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, job := range r.jobs {
		if job.Status.IsTerminal() {
			delete(r.jobs, id)
		}
	}
}

func (r *Registry) filter(keep func(*models.TrackedJob) bool) []models.TrackedJob {
	r.mu.RLock()
	jobs := make([]models.TrackedJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		if keep(job) {
			jobs = append(jobs, *job)
		}
	}
	r.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs
}

func (r *Registry) notify(job models.TrackedJob) {
	r.subMu.RLock()
	subs := make([]func(models.TrackedJob), len(r.subscribers))
	copy(subs, r.subscribers)
	r.subMu.RUnlock()

	for _, fn := range subs {
		fn(job)
	}
}
