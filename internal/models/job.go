package models

import (
	"time"

	"gorm.io/gorm"
)

// JobStatus is the lifecycle state of a tracked generation job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether the status ends the job lifecycle
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// JobResult carries the output of a completed job
type JobResult struct {
	OutputURL    string `json:"output_url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Seed         int64  `json:"seed"`
}

// TrackedJobParams is the display subset kept alongside a tracked job
type TrackedJobParams struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// TrackedJob is the in-memory registry record mirroring one server-side
// generation task
type TrackedJob struct {
	ID             string           `json:"id"`
	ClipID         string           `json:"clip_id"`
	GenerationType GenerationType   `json:"generation_type"`
	Status         JobStatus        `json:"status"`
	Progress       int              `json:"progress"`
	Params         TrackedJobParams `json:"params"`
	Result         *JobResult       `json:"result,omitempty"`
	Error          string           `json:"error,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// DisplayProgress derives the progress shown for the job's state when
// no explicit progress was reported: pending 0, processing midpoint,
// completed 100, failed/cancelled 0
func (j TrackedJob) DisplayProgress() int {
	switch j.Status {
	case JobStatusCompleted:
		return 100
	case JobStatusProcessing:
		if j.Progress > 0 {
			return j.Progress
		}
		return 50
	case JobStatusPending:
		if j.Progress > 0 {
			return j.Progress
		}
		return 0
	}
	return 0
}

// JobStatusUpdate is the message applied to the registry by any update
// source (poller, webhook push). Progress is a pointer so an absent
// value is distinguishable from an explicit zero.
type JobStatusUpdate struct {
	ID       string     `json:"id"`
	Status   JobStatus  `json:"status"`
	Progress *int       `json:"progress,omitempty"`
	Result   *JobResult `json:"result,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// NewJobRecord converts a terminal tracked job into its history row
func NewJobRecord(job TrackedJob) JobRecord {
	record := JobRecord{
		ID:             job.ID,
		ClipID:         job.ClipID,
		GenerationType: string(job.GenerationType),
		Model:          job.Params.Model,
		Prompt:         job.Params.Prompt,
		Status:         string(job.Status),
		ErrorMessage:   job.Error,
		CreatedAt:      job.CreatedAt,
		CompletedAt:    job.UpdatedAt,
	}
	if job.Result != nil {
		record.OutputURL = job.Result.OutputURL
		record.ThumbnailURL = job.Result.ThumbnailURL
		record.Seed = job.Result.Seed
	}
	return record
}

// JobRecord is the persisted history row written when a job reaches a
// terminal state; source data for the studio gallery
type JobRecord struct {
	ID             string         `gorm:"primaryKey" json:"id"`
	ClipID         string         `gorm:"index;size:64" json:"clip_id"`
	GenerationType string         `gorm:"size:16" json:"generation_type"`
	Model          string         `gorm:"size:128" json:"model"`
	Prompt         string         `gorm:"type:text" json:"prompt"`
	Status         string         `gorm:"size:32" json:"status"` // "completed", "failed", "cancelled"
	OutputURL      string         `gorm:"size:512" json:"output_url"`
	ThumbnailURL   string         `gorm:"size:512" json:"thumbnail_url"`
	Seed           int64          `json:"seed"`
	ErrorMessage   string         `gorm:"type:text" json:"error_message"`
	CreatedAt      time.Time      `json:"created_at"`
	CompletedAt    time.Time      `json:"completed_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}
