package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"arbiter/internal/common/cache"
	"arbiter/internal/judge/model"
	appErr "arbiter/pkg/errors"
)

func newTestCache(t *testing.T) (cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisCache, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("init cache: %v", err)
	}
	return redisCache, mr
}

func TestLeaseAcquireIsExclusive(t *testing.T) {
	c, _ := newTestCache(t)
	repo := NewLeaseRepository(c, time.Minute)
	ctx := context.Background()

	token, ok, err := repo.Acquire(ctx, "sub-1")
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if token == "" {
		t.Fatal("expected a non-empty token")
	}

	_, ok, err = repo.Acquire(ctx, "sub-1")
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("expected second acquire to be rejected")
	}

	// a different submission is independent
	if _, ok, err := repo.Acquire(ctx, "sub-2"); err != nil || !ok {
		t.Fatalf("acquire other submission: ok=%v err=%v", ok, err)
	}
}

func TestLeaseReleaseRequiresToken(t *testing.T) {
	c, _ := newTestCache(t)
	repo := NewLeaseRepository(c, time.Minute)
	ctx := context.Background()

	token, ok, err := repo.Acquire(ctx, "sub-1")
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}

	// a stale token must not free the lease
	if err := repo.Release(ctx, "sub-1", "not-the-token"); err != nil {
		t.Fatalf("release with wrong token: %v", err)
	}
	if _, ok, _ := repo.Acquire(ctx, "sub-1"); ok {
		t.Fatal("lease was freed by a stranger's release")
	}

	if err := repo.Release(ctx, "sub-1", token); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, err := repo.Acquire(ctx, "sub-1"); err != nil || !ok {
		t.Fatalf("reacquire after release: ok=%v err=%v", ok, err)
	}
}

func TestLeaseExtend(t *testing.T) {
	c, mr := newTestCache(t)
	repo := NewLeaseRepository(c, time.Minute)
	ctx := context.Background()

	token, ok, err := repo.Acquire(ctx, "sub-1")
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	if err := repo.Extend(ctx, "sub-1", token); err != nil {
		t.Fatalf("extend: %v", err)
	}
	if err := repo.Extend(ctx, "sub-1", "not-the-token"); err == nil {
		t.Fatal("expected extend with wrong token to fail")
	}

	// after expiry the lease is gone and extension by the old holder fails
	mr.FastForward(2 * time.Minute)
	if err := repo.Extend(ctx, "sub-1", token); err == nil {
		t.Fatal("expected extend of expired lease to fail")
	}
	if _, ok, err := repo.Acquire(ctx, "sub-1"); err != nil || !ok {
		t.Fatalf("reacquire expired lease: ok=%v err=%v", ok, err)
	}
}

func TestLeaseIsHeld(t *testing.T) {
	c, mr := newTestCache(t)
	repo := NewLeaseRepository(c, time.Minute)
	ctx := context.Background()

	held, err := repo.IsHeld(ctx, "sub-1")
	if err != nil || held {
		t.Fatalf("unclaimed lease: held=%v err=%v", held, err)
	}

	if _, ok, err := repo.Acquire(ctx, "sub-1"); err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	held, err = repo.IsHeld(ctx, "sub-1")
	if err != nil || !held {
		t.Fatalf("claimed lease: held=%v err=%v", held, err)
	}

	mr.FastForward(2 * time.Minute)
	held, err = repo.IsHeld(ctx, "sub-1")
	if err != nil || held {
		t.Fatalf("expired lease: held=%v err=%v", held, err)
	}
}

func TestLeaseAcquireValidatesID(t *testing.T) {
	c, _ := newTestCache(t)
	repo := NewLeaseRepository(c, time.Minute)

	_, _, err := repo.Acquire(context.Background(), "")
	if appErr.GetCode(err) != appErr.ValidationFailed {
		t.Fatalf("expected validation failure, got %v", err)
	}
}

func TestStatusSaveGetRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	repo := NewStatusRepository(c, time.Minute)
	ctx := context.Background()

	update := StatusUpdate{
		SubmissionID: "sub-1",
		Status:       model.StatusRunning,
		TotalTests:   10,
		DoneTests:    4,
	}
	if err := repo.Save(ctx, update); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.Get(ctx, "sub-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusRunning || got.TotalTests != 10 || got.DoneTests != 4 {
		t.Fatalf("unexpected status: %+v", got)
	}
	if got.UpdatedAt == 0 {
		t.Fatal("expected UpdatedAt to be filled in")
	}
}

func TestStatusGetMissing(t *testing.T) {
	c, _ := newTestCache(t)
	repo := NewStatusRepository(c, time.Minute)

	_, err := repo.Get(context.Background(), "nope")
	if appErr.GetCode(err) != appErr.NotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStatusExpires(t *testing.T) {
	c, mr := newTestCache(t)
	repo := NewStatusRepository(c, time.Minute)
	ctx := context.Background()

	if err := repo.Save(ctx, StatusUpdate{SubmissionID: "sub-1", Status: model.StatusCompiling}); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := repo.Get(ctx, "sub-1"); appErr.GetCode(err) != appErr.NotFound {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestCancelFlagLifecycle(t *testing.T) {
	c, _ := newTestCache(t)
	repo := NewCancelFlagRepository(c)
	ctx := context.Background()

	if repo.IsMarked(ctx, "sub-1") {
		t.Fatal("fresh submission must not be marked")
	}
	if err := repo.Mark(ctx, "sub-1"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if !repo.IsMarked(ctx, "sub-1") {
		t.Fatal("expected flag after mark")
	}
	repo.Clear(ctx, "sub-1")
	if repo.IsMarked(ctx, "sub-1") {
		t.Fatal("expected flag cleared")
	}
}
