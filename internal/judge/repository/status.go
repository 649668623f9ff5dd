package repository

import (
	"context"
	"encoding/json"
	"time"

	"arbiter/internal/common/cache"
	"arbiter/internal/judge/model"
	appErr "arbiter/pkg/errors"
)

const statusKeyPrefix = "judge:status:"
const defaultStatusTTL = 30 * time.Minute

// StatusUpdate carries live judging progress for one submission.
type StatusUpdate struct {
	SubmissionID string                 `json:"submission_id"`
	Status       model.SubmissionStatus `json:"status"`
	TotalTests   int                    `json:"total_tests"`
	DoneTests    int                    `json:"done_tests"`
	UpdatedAt    int64                  `json:"updated_at"`
}

// StatusRepository keeps intermediate judging status in redis so pollers can
// observe progress without touching the database.
type StatusRepository struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewStatusRepository creates a status repository.
func NewStatusRepository(cacheClient cache.Cache, ttl time.Duration) *StatusRepository {
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	return &StatusRepository{cache: cacheClient, ttl: ttl}
}

// Save stores or overwrites the status for one submission.
func (r *StatusRepository) Save(ctx context.Context, update StatusUpdate) error {
	if update.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if update.UpdatedAt == 0 {
		update.UpdatedAt = time.Now().Unix()
	}
	data, err := json.Marshal(update)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "marshal status failed")
	}
	if err := r.cache.Set(ctx, statusKey(update.SubmissionID), string(data), r.ttl); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "store status failed")
	}
	return nil
}

// Get returns the live status for one submission.
func (r *StatusRepository) Get(ctx context.Context, submissionID string) (StatusUpdate, error) {
	if submissionID == "" {
		return StatusUpdate{}, appErr.ValidationError("submission_id", "required")
	}
	raw, err := r.cache.Get(ctx, statusKey(submissionID))
	if err != nil {
		return StatusUpdate{}, appErr.Wrapf(err, appErr.CacheError, "get status failed")
	}
	if raw == "" {
		return StatusUpdate{}, appErr.New(appErr.NotFound).WithMessage("submission status not found")
	}
	var update StatusUpdate
	if err := json.Unmarshal([]byte(raw), &update); err != nil {
		return StatusUpdate{}, appErr.Wrapf(err, appErr.CacheError, "decode status failed")
	}
	return update, nil
}

func statusKey(submissionID string) string {
	return statusKeyPrefix + submissionID
}
