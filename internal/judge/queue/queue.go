// Package queue schedules judging work: a bounded FIFO of submission ids
// drained by a fixed worker pool, with retry and backpressure semantics.
package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"arbiter/internal/judge/repository"
	"arbiter/internal/judge/sandbox"
	appErr "arbiter/pkg/errors"
	"arbiter/pkg/utils/logger"
)

// SubmitOutcome reports what happened to a submit request.
type SubmitOutcome int

const (
	// OutcomeEnqueued means the submission was accepted into the queue.
	OutcomeEnqueued SubmitOutcome = iota
	// OutcomeAlreadyActive means the submission is queued or running and the
	// duplicate request was dropped.
	OutcomeAlreadyActive
	// OutcomeQueueFull means the bounded queue rejected the request.
	OutcomeQueueFull
)

func (o SubmitOutcome) String() string {
	switch o {
	case OutcomeEnqueued:
		return "enqueued"
	case OutcomeAlreadyActive:
		return "already_active"
	case OutcomeQueueFull:
		return "queue_full"
	}
	return "unknown"
}

// Coordinator is the judging entry point the queue drives.
type Coordinator interface {
	Judge(ctx context.Context, submissionID string) error
	FinalizeInternalError(ctx context.Context, submissionID string) error
}

// Config controls queue sizing and retry behavior.
type Config struct {
	Capacity       int           `yaml:"capacity"`
	Workers        int           `yaml:"workers"`
	MaxAttempts    int           `yaml:"maxAttempts"`
	RetryBaseDelay time.Duration `yaml:"retryBaseDelay"`
	RetryMaxDelay  time.Duration `yaml:"retryMaxDelay"`
}

// DefaultConfig returns queue settings suitable for a single judge node.
func DefaultConfig() Config {
	return Config{
		Capacity:       256,
		Workers:        4,
		MaxAttempts:    3,
		RetryBaseDelay: 500 * time.Millisecond,
		RetryMaxDelay:  10 * time.Second,
	}
}

// Queue is the scheduler. One instance per process.
type Queue struct {
	cfg         Config
	coord       Coordinator
	submissions repository.SubmissionRepository
	lease       *repository.LeaseRepository
	cancels     *repository.CancelFlagRepository
	runner      sandbox.Runner

	tasks chan string

	mu     sync.Mutex
	active map[string]struct{}

	wg      sync.WaitGroup
	stopped chan struct{}
	once    sync.Once
}

// New creates a queue. Start must be called before submissions are drained.
func New(cfg Config, coord Coordinator, submissions repository.SubmissionRepository, lease *repository.LeaseRepository, cancels *repository.CancelFlagRepository, runner sandbox.Runner) *Queue {
	def := DefaultConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = def.RetryBaseDelay
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = def.RetryMaxDelay
	}
	return &Queue{
		cfg:         cfg,
		coord:       coord,
		submissions: submissions,
		lease:       lease,
		cancels:     cancels,
		runner:      runner,
		tasks:       make(chan string, cfg.Capacity),
		active:      make(map[string]struct{}),
		stopped:     make(chan struct{}),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled and the
// queue has drained its in-flight work.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.workerLoop(ctx, i)
	}
}

// Stop waits for all workers to finish their current submission.
func (q *Queue) Stop() {
	q.once.Do(func() { close(q.stopped) })
	q.wg.Wait()
}

// Submit enqueues a submission for judging. Duplicate ids are dropped while
// the earlier request is still queued or running.
func (q *Queue) Submit(ctx context.Context, submissionID string) (SubmitOutcome, error) {
	if submissionID == "" {
		return OutcomeQueueFull, appErr.New(appErr.InvalidParams).WithMessage("submission id is required")
	}

	q.mu.Lock()
	if _, ok := q.active[submissionID]; ok {
		q.mu.Unlock()
		return OutcomeAlreadyActive, nil
	}
	q.active[submissionID] = struct{}{}
	q.mu.Unlock()

	select {
	case q.tasks <- submissionID:
		logger.Info(ctx, "submission enqueued", zap.String("submission_id", submissionID), zap.Int("depth", len(q.tasks)))
		return OutcomeEnqueued, nil
	default:
		q.deactivate(submissionID)
		return OutcomeQueueFull, appErr.New(appErr.JudgeQueueFull).WithMessage("judge queue is full")
	}
}

// Rejudge resets a finished submission back to pending and queues it again.
// Earlier testcase rows stay in place until the new attempt supersedes them.
func (q *Queue) Rejudge(ctx context.Context, submissionID string) (SubmitOutcome, error) {
	sub, err := q.submissions.GetByID(ctx, nil, submissionID)
	if err != nil {
		return OutcomeQueueFull, err
	}
	if !sub.Status.IsTerminal() {
		return OutcomeAlreadyActive, appErr.New(appErr.InvalidParams).WithMessage("submission is still being judged")
	}
	if err := q.submissions.ResetForRejudge(ctx, nil, submissionID); err != nil {
		return OutcomeQueueFull, err
	}
	return q.Submit(ctx, submissionID)
}

// Cancel requests termination of a queued or running submission. A running
// attempt observes the flag between testcases; in-flight sandbox processes
// are killed immediately.
func (q *Queue) Cancel(ctx context.Context, submissionID string) error {
	if err := q.cancels.Mark(ctx, submissionID); err != nil {
		return err
	}
	if q.runner != nil {
		if err := q.runner.Kill(ctx, submissionID); err != nil {
			logger.Warn(ctx, "kill submission processes failed", zap.String("submission_id", submissionID), zap.Error(err))
		}
	}
	return nil
}

// Depth reports how many submissions are waiting in the queue.
func (q *Queue) Depth() int {
	return len(q.tasks)
}

// ActiveCount reports how many submissions are queued or running.
func (q *Queue) ActiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

func (q *Queue) workerLoop(ctx context.Context, id int) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopped:
			return
		case submissionID := <-q.tasks:
			q.process(ctx, submissionID)
		}
	}
}

// process drives one submission through the coordinator, retrying transient
// faults with exponential backoff and recording a terminal internal error
// when attempts are exhausted.
func (q *Queue) process(ctx context.Context, submissionID string) {
	defer q.deactivate(submissionID)

	var lastErr error
	for attempt := 0; attempt < q.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt-1, q.cfg.RetryBaseDelay, q.cfg.RetryMaxDelay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			logger.Warn(ctx, "retrying submission",
				zap.String("submission_id", submissionID),
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr))
		}

		err := q.coord.Judge(ctx, submissionID)
		if err == nil {
			return
		}
		lastErr = err
		if ctx.Err() != nil {
			return
		}
		if !appErr.IsRetryable(err) {
			break
		}
	}

	// Another node holds the lease, so the submission is being judged there.
	// Finalizing here would clobber that live run.
	if appErr.GetCode(lastErr) == appErr.LeaseConflict {
		logger.Info(ctx, "submission already claimed by another node", zap.String("submission_id", submissionID))
		return
	}

	logger.Error(ctx, "submission attempts exhausted", zap.String("submission_id", submissionID), zap.Error(lastErr))
	if err := q.coord.FinalizeInternalError(ctx, submissionID); err != nil {
		logger.Error(ctx, "record internal error verdict failed", zap.String("submission_id", submissionID), zap.Error(err))
	}
}

func (q *Queue) deactivate(submissionID string) {
	q.mu.Lock()
	delete(q.active, submissionID)
	q.mu.Unlock()
}

// ReclaimStale requeues submissions that were claimed by a crashed node and
// left non-terminal past the lease horizon. Submissions whose lease is still
// live in redis are being judged elsewhere and are left alone.
func (q *Queue) ReclaimStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	stale, err := q.submissions.FindClaimedNonTerminal(ctx, olderThan, limit)
	if err != nil {
		return 0, err
	}
	requeued := 0
	for _, id := range stale {
		if q.lease != nil {
			held, err := q.lease.IsHeld(ctx, id)
			if err != nil {
				logger.Warn(ctx, "check lease during reclaim failed", zap.String("submission_id", id), zap.Error(err))
				continue
			}
			if held {
				continue
			}
		}
		outcome, err := q.Submit(ctx, id)
		if err != nil && outcome == OutcomeQueueFull {
			break
		}
		if outcome == OutcomeEnqueued {
			requeued++
		}
	}
	return requeued, nil
}

func backoffDelay(retryCount int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < retryCount; i++ {
		if max > 0 && delay >= max/2 {
			return max
		}
		delay *= 2
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}
