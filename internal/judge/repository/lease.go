package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"arbiter/internal/common/cache"
	appErr "arbiter/pkg/errors"
)

const leaseKeyPrefix = "judge:lease:"

// LeaseRepository grants time-bounded ownership of one submission's judging
// run. The token guards release and extension so an expired holder can never
// disturb the next claimant. Expiry itself is redis TTL, so a crashed worker
// is reclaimed without operator action.
type LeaseRepository struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewLeaseRepository creates a lease repository with the given lease TTL.
func NewLeaseRepository(cacheClient cache.Cache, ttl time.Duration) *LeaseRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &LeaseRepository{cache: cacheClient, ttl: ttl}
}

// Acquire attempts to claim the submission. When another worker holds the
// lease it returns ok=false without error.
func (r *LeaseRepository) Acquire(ctx context.Context, submissionID string) (string, bool, error) {
	if submissionID == "" {
		return "", false, appErr.ValidationError("submission_id", "required")
	}
	token := uuid.NewString()
	ok, err := r.cache.TryLock(ctx, leaseKey(submissionID), token, r.ttl)
	if err != nil {
		return "", false, appErr.Wrapf(err, appErr.LockFailed, "acquire lease failed")
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Extend renews the lease while judging is still in progress.
func (r *LeaseRepository) Extend(ctx context.Context, submissionID, token string) error {
	if err := r.cache.ExtendLock(ctx, leaseKey(submissionID), token, r.ttl); err != nil {
		return appErr.Wrapf(err, appErr.LockFailed, "extend lease failed")
	}
	return nil
}

// Release gives up the lease. Releasing a lease held by someone else is a
// no-op inside the unlock script.
func (r *LeaseRepository) Release(ctx context.Context, submissionID, token string) error {
	if err := r.cache.Unlock(ctx, leaseKey(submissionID), token); err != nil {
		return appErr.Wrapf(err, appErr.LockFailed, "release lease failed")
	}
	return nil
}

// IsHeld reports whether any node currently holds the lease. Used by the
// reclaim sweep to tell a crashed claim from a live one.
func (r *LeaseRepository) IsHeld(ctx context.Context, submissionID string) (bool, error) {
	n, err := r.cache.Exists(ctx, leaseKey(submissionID))
	if err != nil {
		return false, appErr.Wrapf(err, appErr.CacheError, "check lease failed")
	}
	return n > 0, nil
}

// TTL returns the configured lease duration.
func (r *LeaseRepository) TTL() time.Duration {
	return r.ttl
}

func leaseKey(submissionID string) string {
	return leaseKeyPrefix + submissionID
}
