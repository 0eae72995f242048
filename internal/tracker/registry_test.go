package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"clipforge/internal/models"
)

func intPtr(v int) *int { return &v }

func TestAddAndGet(t *testing.T) {
	r := NewRegistry()

	r.Add(models.TrackedJob{
		ID:     "job-1",
		ClipID: "clip-1",
		Params: models.TrackedJobParams{Model: "flux-dev", Prompt: "a lighthouse"},
	})

	job, ok := r.Get("job-1")
	assert.True(t, ok)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, "flux-dev", job.Params.Model)
	assert.False(t, job.CreatedAt.IsZero())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestAddCollisionLastWriteWins(t *testing.T) {
	r := NewRegistry()

	r.Add(models.TrackedJob{ID: "job-1", Params: models.TrackedJobParams{Model: "first"}})
	r.Add(models.TrackedJob{ID: "job-1", Params: models.TrackedJobParams{Model: "second"}})

	job, ok := r.Get("job-1")
	assert.True(t, ok)
	assert.Equal(t, "second", job.Params.Model)
	assert.Len(t, r.Snapshot(), 1)
}

func TestApplyStatusUpdateUnknownIgnored(t *testing.T) {
	r := NewRegistry()
	notified := 0
	r.OnUpdate(func(models.TrackedJob) { notified++ })

	r.ApplyStatusUpdate(models.JobStatusUpdate{ID: "ghost", Status: models.JobStatusCompleted})

	assert.Empty(t, r.Snapshot())
	assert.Zero(t, notified)
}

func TestLifecycleTransitions(t *testing.T) {
	r := NewRegistry()
	r.Add(models.TrackedJob{ID: "job-1"})

	r.ApplyStatusUpdate(models.JobStatusUpdate{
		ID:       "job-1",
		Status:   models.JobStatusProcessing,
		Progress: intPtr(40),
	})

	job, _ := r.Get("job-1")
	assert.Equal(t, models.JobStatusProcessing, job.Status)
	assert.Equal(t, 40, job.Progress)
	assert.Len(t, r.Active(), 1)
	assert.Empty(t, r.Completed())

	// Progress is kept when an update omits it
	r.ApplyStatusUpdate(models.JobStatusUpdate{ID: "job-1", Status: models.JobStatusProcessing})
	job, _ = r.Get("job-1")
	assert.Equal(t, 40, job.Progress)

	r.ApplyStatusUpdate(models.JobStatusUpdate{
		ID:     "job-1",
		Status: models.JobStatusCompleted,
		Result: &models.JobResult{OutputURL: "http://cdn/out.png", Seed: 7},
	})

	job, _ = r.Get("job-1")
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, "http://cdn/out.png", job.Result.OutputURL)
	assert.Empty(t, r.Active())
	assert.Len(t, r.Completed(), 1)
}

func TestApplyStatusUpdateCopiesResult(t *testing.T) {
	r := NewRegistry()
	r.Add(models.TrackedJob{ID: "job-1"})

	result := &models.JobResult{OutputURL: "http://cdn/a.png"}
	r.ApplyStatusUpdate(models.JobStatusUpdate{
		ID:     "job-1",
		Status: models.JobStatusCompleted,
		Result: result,
	})

	// Mutating the caller's result does not reach the registry
	result.OutputURL = "mutated"
	job, _ := r.Get("job-1")
	assert.Equal(t, "http://cdn/a.png", job.Result.OutputURL)
}

func TestDismissRules(t *testing.T) {
	r := NewRegistry()
	r.Add(models.TrackedJob{ID: "active"})
	r.Add(models.TrackedJob{ID: "done"})
	r.ApplyStatusUpdate(models.JobStatusUpdate{ID: "done", Status: models.JobStatusCompleted})

	// Active jobs cannot be dismissed
	r.Dismiss("active")
	_, ok := r.Get("active")
	assert.True(t, ok)

	// Unknown ids are a silent no-op
	r.Dismiss("ghost")

	r.Dismiss("done")
	_, ok = r.Get("done")
	assert.False(t, ok)
}

func TestDismissAllKeepsActive(t *testing.T) {
	r := NewRegistry()
	r.Add(models.TrackedJob{ID: "a"})
	r.Add(models.TrackedJob{ID: "b"})
	r.Add(models.TrackedJob{ID: "c"})
	r.ApplyStatusUpdate(models.JobStatusUpdate{ID: "b", Status: models.JobStatusFailed})
	r.ApplyStatusUpdate(models.JobStatusUpdate{ID: "c", Status: models.JobStatusCancelled})

	r.DismissAll()

	snapshot := r.Snapshot()
	assert.Len(t, snapshot, 1)
	assert.Equal(t, "a", snapshot[0].ID)
}

func TestSnapshotOrderedByCreation(t *testing.T) {
	r := NewRegistry()
	r.Add(models.TrackedJob{ID: "a"})
	r.Add(models.TrackedJob{ID: "b"})
	r.Add(models.TrackedJob{ID: "c"})

	snapshot := r.Snapshot()
	ids := []string{snapshot[0].ID, snapshot[1].ID, snapshot[2].ID}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestSubscribersReceiveEveryChange(t *testing.T) {
	r := NewRegistry()

	var seen []models.TrackedJob
	r.OnUpdate(func(job models.TrackedJob) {
		seen = append(seen, job)
	})

	r.Add(models.TrackedJob{ID: "job-1"})
	r.ApplyStatusUpdate(models.JobStatusUpdate{ID: "job-1", Status: models.JobStatusProcessing})
	r.ApplyStatusUpdate(models.JobStatusUpdate{ID: "job-1", Status: models.JobStatusCompleted})

	assert.Len(t, seen, 3)
	assert.Equal(t, models.JobStatusPending, seen[0].Status)
	assert.Equal(t, models.JobStatusProcessing, seen[1].Status)
	assert.Equal(t, models.JobStatusCompleted, seen[2].Status)
}

func TestSubscriberMayReadRegistry(t *testing.T) {
	r := NewRegistry()

	// Callbacks run outside the registry lock, so reading back must not
	// deadlock
	var status models.JobStatus
	r.OnUpdate(func(job models.TrackedJob) {
		got, _ := r.Get(job.ID)
		status = got.Status
	})

	r.Add(models.TrackedJob{ID: "job-1"})
	assert.Equal(t, models.JobStatusPending, status)
}

func TestSnapshotReturnsCopies(t *testing.T) {
	r := NewRegistry()
	r.Add(models.TrackedJob{ID: "job-1", Params: models.TrackedJobParams{Model: "flux"}})

	snapshot := r.Snapshot()
	snapshot[0].Params.Model = "mutated"

	job, _ := r.Get("job-1")
	assert.Equal(t, "flux", job.Params.Model)
}
