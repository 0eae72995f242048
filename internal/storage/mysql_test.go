package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"clipforge/internal/models"
)

func setupTestStore(t *testing.T) *MySQLStore {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	db.Migrator().DropTable(&models.JobRecord{})
	store, err := NewMySQLStoreFromDB(db)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return store
}

func record(id, clipID string, completedAt time.Time) *models.JobRecord {
	return &models.JobRecord{
		ID:             id,
		ClipID:         clipID,
		GenerationType: "image",
		Model:          "flux-dev",
		Prompt:         "a lighthouse at dusk",
		Status:         "completed",
		OutputURL:      "http://cdn/" + id + ".png",
		Seed:           42,
		CreatedAt:      completedAt.Add(-time.Minute),
		CompletedAt:    completedAt,
	}
}

func TestSaveJobRecordUpsert(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	rec := record("job-1", "clip-1", time.Now())
	assert.NoError(t, store.SaveJobRecord(ctx, rec))

	// Saving the same id again must not create a second row
	rec.Status = "failed"
	assert.NoError(t, store.SaveJobRecord(ctx, rec))

	records, err := store.ListJobRecords(ctx, 10, 0)
	assert.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, "failed", records[0].Status)
}

func TestListJobRecordsOrderAndPaging(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	base := time.Now().Add(-time.Hour)
	assert.NoError(t, store.SaveJobRecord(ctx, record("job-old", "clip-1", base)))
	assert.NoError(t, store.SaveJobRecord(ctx, record("job-mid", "clip-1", base.Add(10*time.Minute))))
	assert.NoError(t, store.SaveJobRecord(ctx, record("job-new", "clip-2", base.Add(20*time.Minute))))

	records, err := store.ListJobRecords(ctx, 10, 0)
	assert.NoError(t, err)
	assert.Len(t, records, 3)
	// Newest completion first
	assert.Equal(t, "job-new", records[0].ID)
	assert.Equal(t, "job-old", records[2].ID)

	page, err := store.ListJobRecords(ctx, 1, 1)
	assert.NoError(t, err)
	assert.Len(t, page, 1)
	assert.Equal(t, "job-mid", page[0].ID)
}

func TestListJobRecordsByClip(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	now := time.Now()
	assert.NoError(t, store.SaveJobRecord(ctx, record("job-1", "clip-a", now)))
	assert.NoError(t, store.SaveJobRecord(ctx, record("job-2", "clip-b", now)))
	assert.NoError(t, store.SaveJobRecord(ctx, record("job-3", "clip-a", now)))

	records, err := store.ListJobRecordsByClip(ctx, "clip-a", 10)
	assert.NoError(t, err)
	assert.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, "clip-a", r.ClipID)
	}
}
