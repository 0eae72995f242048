package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJobStatusIsTerminal(t *testing.T) {
	assert.False(t, JobStatusPending.IsTerminal())
	assert.False(t, JobStatusProcessing.IsTerminal())
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.True(t, JobStatusCancelled.IsTerminal())
}

func TestDisplayProgress(t *testing.T) {
	tests := []struct {
		name     string
		status   JobStatus
		progress int
		expected int
	}{
		{"pending without progress", JobStatusPending, 0, 0},
		{"pending with reported progress", JobStatusPending, 10, 10},
		{"processing without progress shows midpoint", JobStatusProcessing, 0, 50},
		{"processing with reported progress", JobStatusProcessing, 83, 83},
		{"completed always full", JobStatusCompleted, 40, 100},
		{"failed resets to zero", JobStatusFailed, 70, 0},
		{"cancelled resets to zero", JobStatusCancelled, 35, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := TrackedJob{Status: tt.status, Progress: tt.progress}
			assert.Equal(t, tt.expected, job.DisplayProgress())
		})
	}
}

func TestNewJobRecord(t *testing.T) {
	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	updated := created.Add(90 * time.Second)

	job := TrackedJob{
		ID:             "job-1",
		ClipID:         "clip-1",
		GenerationType: GenerationTypeVideo,
		Status:         JobStatusCompleted,
		Params: TrackedJobParams{
			Model:  "wan-2.1",
			Prompt: "a storm over the harbor",
		},
		Result: &JobResult{
			OutputURL:    "http://cdn/out.mp4",
			ThumbnailURL: "http://cdn/thumb.jpg",
			Seed:         998877,
		},
		CreatedAt: created,
		UpdatedAt: updated,
	}

	record := NewJobRecord(job)
	assert.Equal(t, "job-1", record.ID)
	assert.Equal(t, "clip-1", record.ClipID)
	assert.Equal(t, "video", record.GenerationType)
	assert.Equal(t, "wan-2.1", record.Model)
	assert.Equal(t, "a storm over the harbor", record.Prompt)
	assert.Equal(t, "completed", record.Status)
	assert.Equal(t, "http://cdn/out.mp4", record.OutputURL)
	assert.Equal(t, "http://cdn/thumb.jpg", record.ThumbnailURL)
	assert.Equal(t, int64(998877), record.Seed)
	assert.Equal(t, created, record.CreatedAt)
	assert.Equal(t, updated, record.CompletedAt)
}

func TestNewJobRecordWithoutResult(t *testing.T) {
	job := TrackedJob{
		ID:     "job-2",
		Status: JobStatusFailed,
		Error:  "lost contact with the generation backend",
	}

	record := NewJobRecord(job)
	assert.Equal(t, "failed", record.Status)
	assert.Equal(t, "lost contact with the generation backend", record.ErrorMessage)
	assert.Empty(t, record.OutputURL)
	assert.Zero(t, record.Seed)
}

func TestDefaultGenerationSettings(t *testing.T) {
	s := DefaultGenerationSettings()

	assert.Equal(t, GenerationTypeImage, s.ActiveTab)
	assert.Equal(t, ProviderComfyUI, s.Provider)
	assert.Equal(t, PresetFast, s.SelectedPreset)
	assert.Equal(t, 30, s.GenerationParams.Steps)
	assert.Equal(t, 7.0, s.GenerationParams.CfgScale)
	assert.Equal(t, 1024, s.GenerationParams.Width)
	assert.Equal(t, 1024, s.GenerationParams.Height)
	assert.Equal(t, int64(-1), s.GenerationParams.Seed)
	assert.NotNil(t, s.LoRAs)
	assert.Empty(t, s.LoRAs)
	assert.False(t, s.UseMultipleModels)
}
