package repository

import (
	"context"
	"time"

	"arbiter/internal/common/cache"
	appErr "arbiter/pkg/errors"
)

const cancelKeyPrefix = "judge:cancel:"
const defaultCancelTTL = time.Hour

// CancelFlagRepository marks submissions whose judging should stop. The
// coordinator polls the flag between testcase executions, never mid-run.
type CancelFlagRepository struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewCancelFlagRepository creates a cancel flag repository.
func NewCancelFlagRepository(cacheClient cache.Cache) *CancelFlagRepository {
	return &CancelFlagRepository{cache: cacheClient, ttl: defaultCancelTTL}
}

// Mark requests cancellation of a queued or running judging attempt.
func (r *CancelFlagRepository) Mark(ctx context.Context, submissionID string) error {
	if submissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if err := r.cache.Set(ctx, cancelKey(submissionID), "1", r.ttl); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "mark cancel failed")
	}
	return nil
}

// IsMarked reports whether cancellation was requested. Cache errors are
// treated as not-cancelled so a flaky redis cannot abort healthy runs.
func (r *CancelFlagRepository) IsMarked(ctx context.Context, submissionID string) bool {
	raw, err := r.cache.Get(ctx, cancelKey(submissionID))
	if err != nil {
		return false
	}
	return raw != ""
}

// Clear removes the flag after the attempt reaches a terminal state.
func (r *CancelFlagRepository) Clear(ctx context.Context, submissionID string) error {
	return r.cache.Del(ctx, cancelKey(submissionID))
}

func cancelKey(submissionID string) string {
	return cancelKeyPrefix + submissionID
}
