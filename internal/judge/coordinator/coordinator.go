// Package coordinator owns the lifecycle of one submission: claim, compile
// once, fan out testcase executions, aggregate verdicts and persist results
// exactly once.
package coordinator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"arbiter/internal/common/db"
	"arbiter/internal/judge/events"
	"arbiter/internal/judge/executor"
	"arbiter/internal/judge/model"
	"arbiter/internal/judge/repository"
	"arbiter/internal/judge/sandbox"
	appErr "arbiter/pkg/errors"
	"arbiter/pkg/utils/logger"
)

// Config controls per-submission judging behavior.
type Config struct {
	// TestcaseConcurrency bounds concurrent testcase runs per submission.
	TestcaseConcurrency int `yaml:"testcaseConcurrency"`
	// ClaimWait bounds how long claiming the lease may take before the
	// attempt is given back to the queue for retry.
	ClaimWait time.Duration `yaml:"claimWait"`
	// SlotWait bounds waiting for a global sandbox slot.
	SlotWait time.Duration `yaml:"slotWait"`
	// TeardownGrace pads the per-run deadline over the wall ceiling.
	TeardownGrace time.Duration `yaml:"teardownGrace"`
}

// DefaultConfig returns conservative per-submission settings.
func DefaultConfig() Config {
	return Config{
		TestcaseConcurrency: 4,
		ClaimWait:           2 * time.Second,
		SlotWait:            30 * time.Second,
		TeardownGrace:       10 * time.Second,
	}
}

// Coordinator judges one submission at a time per call. Instances are safe
// for concurrent use by multiple queue workers.
type Coordinator struct {
	cfg Config

	database    db.Database
	lease       *repository.LeaseRepository
	snapshots   *repository.SnapshotLoader
	submissions repository.SubmissionRepository
	rows        repository.SubmissionTestcaseRepository
	problems    repository.ProblemRepository
	status      *repository.StatusRepository
	cancels     *repository.CancelFlagRepository
	publisher   events.Publisher

	runner   sandbox.Runner
	exec     *executor.Executor
	workRoot string

	// slots caps simultaneous sandbox processes system-wide, independent of
	// per-submission fan-out.
	slots chan struct{}
}

// Deps bundles the coordinator's collaborators.
type Deps struct {
	Database     db.Database
	Lease        *repository.LeaseRepository
	Snapshots    *repository.SnapshotLoader
	Submissions  repository.SubmissionRepository
	Rows         repository.SubmissionTestcaseRepository
	Problems     repository.ProblemRepository
	Status       *repository.StatusRepository
	Cancels      *repository.CancelFlagRepository
	Publisher    events.Publisher
	Runner       sandbox.Runner
	Executor     *executor.Executor
	WorkRoot     string
	SandboxSlots chan struct{}
}

// New creates a coordinator.
func New(cfg Config, deps Deps) *Coordinator {
	if cfg.TestcaseConcurrency <= 0 {
		cfg.TestcaseConcurrency = DefaultConfig().TestcaseConcurrency
	}
	if cfg.ClaimWait <= 0 {
		cfg.ClaimWait = DefaultConfig().ClaimWait
	}
	if cfg.SlotWait <= 0 {
		cfg.SlotWait = DefaultConfig().SlotWait
	}
	if cfg.TeardownGrace <= 0 {
		cfg.TeardownGrace = DefaultConfig().TeardownGrace
	}
	return &Coordinator{
		cfg:         cfg,
		database:    deps.Database,
		lease:       deps.Lease,
		snapshots:   deps.Snapshots,
		submissions: deps.Submissions,
		rows:        deps.Rows,
		problems:    deps.Problems,
		status:      deps.Status,
		cancels:     deps.Cancels,
		publisher:   deps.Publisher,
		runner:      deps.Runner,
		exec:        deps.Executor,
		workRoot:    deps.WorkRoot,
		slots:       deps.SandboxSlots,
	}
}

// Judge runs the full state machine for one submission. A returned error is
// always an infrastructure fault the queue may retry; every code-caused
// outcome is persisted as a terminal verdict and returns nil.
func (c *Coordinator) Judge(ctx context.Context, submissionID string) error {
	token, err := c.claim(ctx, submissionID)
	if err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.lease.Release(releaseCtx, submissionID, token); err != nil {
			logger.Warn(ctx, "release lease failed", zap.String("submission_id", submissionID), zap.Error(err))
		}
	}()

	heartbeatStop := c.startHeartbeat(ctx, submissionID, token)
	defer heartbeatStop()

	return c.judgeClaimed(ctx, submissionID)
}

// claim acquires the per-submission lease within the bounded claim wait.
func (c *Coordinator) claim(ctx context.Context, submissionID string) (string, error) {
	deadline := time.Now().Add(c.cfg.ClaimWait)
	for {
		token, ok, err := c.lease.Acquire(ctx, submissionID)
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		if time.Now().After(deadline) {
			return "", appErr.New(appErr.LeaseConflict).WithMessage("claim wait exceeded")
		}
		select {
		case <-ctx.Done():
			return "", appErr.Wrapf(ctx.Err(), appErr.Timeout, "claim interrupted")
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (c *Coordinator) startHeartbeat(ctx context.Context, submissionID, token string) func() {
	interval := c.lease.TTL() / 3
	if interval <= 0 {
		interval = time.Minute
	}
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.lease.Extend(ctx, submissionID, token); err != nil {
					logger.Warn(ctx, "extend lease failed", zap.String("submission_id", submissionID), zap.Error(err))
				}
			}
		}
	}()
	return func() { close(stop) }
}

func (c *Coordinator) judgeClaimed(ctx context.Context, submissionID string) error {
	spec, err := c.snapshots.Load(ctx, submissionID)
	if err != nil {
		switch appErr.GetCode(err) {
		case appErr.SubmissionDeleted:
			return c.finalizeCancelled(ctx, submissionID)
		case appErr.ValidationFailed, appErr.InvalidParams, appErr.LanguageNotSupported, appErr.TestcaseInvalid:
			// malformed configuration is rejected at claim time, never
			// attempted against the sandbox
			logger.Error(ctx, "judging spec rejected", zap.String("submission_id", submissionID), zap.Error(err))
			return c.FinalizeInternalError(ctx, submissionID)
		}
		return err
	}
	if spec.Submission.Status.IsTerminal() {
		// reclaimed attempts restart from pending; anything terminal was
		// already finished by another worker
		return nil
	}
	if err := sandbox.ValidateTemplates(spec.Profile); err != nil {
		logger.Error(ctx, "command template rejected", zap.String("submission_id", submissionID), zap.Error(err))
		return c.FinalizeInternalError(ctx, submissionID)
	}

	// a reclaimed submission may sit in compiling/running; reset so the
	// guarded transitions below line up
	if spec.Submission.Status != model.StatusPending {
		if err := c.submissions.ResetForRejudge(ctx, nil, submissionID); err != nil {
			return err
		}
		spec.Submission.Status = model.StatusPending
	}

	if c.cancels.IsMarked(ctx, submissionID) {
		return c.finalizeCancelled(ctx, submissionID)
	}

	if err := c.submissions.UpdateStatus(ctx, nil, submissionID, model.StatusPending, model.StatusCompiling); err != nil {
		return err
	}
	c.reportStatus(ctx, submissionID, model.StatusCompiling, len(spec.Testcases), 0)

	workspace, err := sandbox.NewWorkspace(c.workRoot, spec.Profile, spec.Submission.SourceCode)
	if err != nil {
		return err
	}
	defer workspace.Close()

	compileRes, err := c.compile(ctx, spec, workspace)
	if err != nil {
		return err
	}
	if !compileRes.OK {
		return c.finalizeCompileError(ctx, spec)
	}

	if err := c.submissions.UpdateStatus(ctx, nil, submissionID, model.StatusCompiling, model.StatusRunning); err != nil {
		return err
	}
	c.reportStatus(ctx, submissionID, model.StatusRunning, len(spec.Testcases), 0)

	results, cancelled, err := c.fanOut(ctx, spec, workspace)
	if err != nil {
		return err
	}
	if cancelled {
		_ = c.runner.Kill(ctx, submissionID)
		return c.finalizeCancelled(ctx, submissionID)
	}

	return c.finalizeVerdict(ctx, spec, results)
}

func (c *Coordinator) compile(ctx context.Context, spec *model.JudgingSpec, workspace *sandbox.Workspace) (sandbox.CompileResult, error) {
	if !spec.Profile.HasCompile() {
		return sandbox.CompileResult{OK: true}, nil
	}
	release, err := c.acquireSlot(ctx)
	if err != nil {
		return sandbox.CompileResult{}, err
	}
	defer release()

	return c.runner.Compile(ctx, sandbox.CompileRequest{
		SubmissionID: spec.Submission.ID,
		Profile:      spec.Profile,
		Workspace:    workspace,
	})
}

// fanOut executes all testcases with bounded concurrency. Results are
// collected positionally so aggregation order is the testcase priority
// order, independent of physical completion order.
func (c *Coordinator) fanOut(ctx context.Context, spec *model.JudgingSpec, workspace *sandbox.Workspace) ([]executor.Result, bool, error) {
	total := len(spec.Testcases)
	results := make([]executor.Result, total)
	errs := make([]error, total)
	done := make(chan int, total)

	sem := make(chan struct{}, c.cfg.TestcaseConcurrency)
	dispatched := 0
	cancelled := false

	for i, tc := range spec.Testcases {
		// cancellation is observed between testcase executions, never
		// mid-testcase
		if c.cancels.IsMarked(ctx, spec.Submission.ID) {
			cancelled = true
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			cancelled = true
		}
		if cancelled {
			break
		}

		dispatched++
		go func(idx int, tc *model.Testcase) {
			defer func() { <-sem }()
			results[idx], errs[idx] = c.runOne(ctx, spec, workspace, tc)
			done <- idx
		}(i, tc)
	}

	finished := 0
	for finished < dispatched {
		<-done
		finished++
		c.reportStatus(ctx, spec.Submission.ID, model.StatusRunning, total, finished)
	}

	if cancelled {
		return nil, true, nil
	}
	for _, err := range errs {
		if err != nil {
			return nil, false, err
		}
	}
	return results, false, nil
}

func (c *Coordinator) runOne(ctx context.Context, spec *model.JudgingSpec, workspace *sandbox.Workspace, tc *model.Testcase) (executor.Result, error) {
	release, err := c.acquireSlot(ctx)
	if err != nil {
		return executor.Result{}, err
	}
	defer release()

	deadline := time.Duration(spec.Limits.WallTimeMs)*time.Millisecond + c.cfg.TeardownGrace
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	return c.exec.JudgeOne(runCtx, spec, workspace, tc)
}

// acquireSlot takes one global sandbox slot within the bounded slot wait.
func (c *Coordinator) acquireSlot(ctx context.Context) (func(), error) {
	if c.slots == nil {
		return func() {}, nil
	}
	select {
	case c.slots <- struct{}{}:
		return func() { <-c.slots }, nil
	case <-ctx.Done():
		return nil, appErr.Wrapf(ctx.Err(), appErr.Timeout, "sandbox slot wait interrupted")
	case <-time.After(c.cfg.SlotWait):
		return nil, appErr.New(appErr.Timeout).WithMessage("sandbox slot wait exceeded")
	}
}

func (c *Coordinator) reportStatus(ctx context.Context, submissionID string, status model.SubmissionStatus, total, doneCount int) {
	if c.status == nil {
		return
	}
	if err := c.status.Save(ctx, repository.StatusUpdate{
		SubmissionID: submissionID,
		Status:       status,
		TotalTests:   total,
		DoneTests:    doneCount,
	}); err != nil {
		logger.Warn(ctx, "save status failed", zap.String("submission_id", submissionID), zap.Error(err))
	}
}
