package coordinator

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"arbiter/internal/common/cache"
	"arbiter/internal/common/db"
	"arbiter/internal/judge/events"
	"arbiter/internal/judge/executor"
	"arbiter/internal/judge/limiter"
	"arbiter/internal/judge/model"
	"arbiter/internal/judge/repository"
	"arbiter/internal/judge/sandbox"
	appErr "arbiter/pkg/errors"
)

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func nullTimeNow() sql.NullTime {
	return sql.NullTime{Time: time.Now(), Valid: true}
}

type fakeDB struct{}

func (f *fakeDB) Query(ctx context.Context, query string, args ...interface{}) (db.Rows, error) {
	return nil, nil
}
func (f *fakeDB) QueryRow(ctx context.Context, query string, args ...interface{}) db.Row {
	return nil
}
func (f *fakeDB) Exec(ctx context.Context, query string, args ...interface{}) (db.Result, error) {
	return nil, nil
}
func (f *fakeDB) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	return fn(nil)
}
func (f *fakeDB) BeginTx(ctx context.Context, opts *db.TxOptions) (db.Transaction, error) {
	return nil, nil
}
func (f *fakeDB) Ping(ctx context.Context) error { return nil }
func (f *fakeDB) Close() error                   { return nil }

type fakeSubmissions struct {
	mu         sync.Mutex
	submission *model.Submission

	terminalStatus model.SubmissionStatus
	terminalTimeMs int64
	terminalMemKB  int64
	terminalScore  int
	terminalCalls  int
}

func (f *fakeSubmissions) GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submission == nil || f.submission.ID != submissionID {
		return nil, appErr.New(appErr.SubmissionNotFound)
	}
	copied := *f.submission
	return &copied, nil
}

func (f *fakeSubmissions) UpdateStatus(ctx context.Context, tx db.Transaction, submissionID string, from, to model.SubmissionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submission.Status != from {
		return appErr.New(appErr.TransactionFailed)
	}
	if !model.ValidTransition(from, to) {
		return appErr.New(appErr.TransactionFailed)
	}
	f.submission.Status = to
	return nil
}

func (f *fakeSubmissions) MarkTerminal(ctx context.Context, tx db.Transaction, submissionID string, status model.SubmissionStatus, timeMs, memoryKB int64, score int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submission.Status = status
	f.terminalStatus = status
	f.terminalTimeMs = timeMs
	f.terminalMemKB = memoryKB
	f.terminalScore = score
	f.terminalCalls++
	return nil
}

func (f *fakeSubmissions) ResetForRejudge(ctx context.Context, tx db.Transaction, submissionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submission.Status = model.StatusPending
	return nil
}

func (f *fakeSubmissions) FindClaimedNonTerminal(ctx context.Context, olderThan time.Duration, limit int) ([]string, error) {
	return nil, nil
}

type fakeRows struct {
	mu   sync.Mutex
	rows []*model.SubmissionTestcase
}

func (f *fakeRows) ReplaceForSubmission(ctx context.Context, tx db.Transaction, submissionID string, rows []*model.SubmissionTestcase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = rows
	return nil
}

func (f *fakeRows) ListBySubmission(ctx context.Context, submissionID string) ([]*model.SubmissionTestcase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows, nil
}

type fakeProblems struct {
	mu            sync.Mutex
	problem       *model.Problem
	totalIncr     int
	acceptedIncr  int
	counterEvents int
}

func (f *fakeProblems) GetByID(ctx context.Context, tx db.Transaction, problemID int64) (*model.Problem, error) {
	return f.problem, nil
}

func (f *fakeProblems) GetOverride(ctx context.Context, tx db.Transaction, problemID, languageID int64) (*model.ProblemLanguage, error) {
	return nil, nil
}

func (f *fakeProblems) IncrementCounters(ctx context.Context, tx db.Transaction, problemID int64, accepted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.totalIncr++
	if accepted {
		f.acceptedIncr++
	}
	f.counterEvents++
	return nil
}

type fakeLanguages struct {
	language *model.Language
}

func (f *fakeLanguages) GetByID(ctx context.Context, tx db.Transaction, languageID int64) (*model.Language, error) {
	return f.language, nil
}

type fakeTestcases struct {
	testcases []*model.Testcase
}

func (f *fakeTestcases) ListByProblem(ctx context.Context, tx db.Transaction, problemID int64) ([]*model.Testcase, error) {
	return f.testcases, nil
}

// scriptedRunner returns a scripted measurement per test id, optionally
// delaying some runs to shuffle physical completion order.
type scriptedRunner struct {
	mu           sync.Mutex
	measurements map[string]limiter.Measurement
	delays       map[string]time.Duration
	executed     []string
	compileOK    bool
	compileErr   error
}

func (r *scriptedRunner) Compile(ctx context.Context, req sandbox.CompileRequest) (sandbox.CompileResult, error) {
	if r.compileErr != nil {
		return sandbox.CompileResult{}, r.compileErr
	}
	return sandbox.CompileResult{OK: r.compileOK, Log: "gcc: exit"}, nil
}

func (r *scriptedRunner) Execute(ctx context.Context, req sandbox.ExecuteRequest) (limiter.Measurement, error) {
	if d, ok := r.delays[req.TestID]; ok {
		time.Sleep(d)
	}
	r.mu.Lock()
	r.executed = append(r.executed, req.TestID)
	r.mu.Unlock()
	if m, ok := r.measurements[req.TestID]; ok {
		return m, nil
	}
	return limiter.Measurement{ExitCode: 0, Stdout: "ok\n"}, nil
}

func (r *scriptedRunner) Kill(ctx context.Context, submissionID string) error { return nil }

type capturingPublisher struct {
	mu     sync.Mutex
	events []events.TerminalEvent
}

func (p *capturingPublisher) PublishTerminal(ctx context.Context, event events.TerminalEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

type fixture struct {
	coord       *Coordinator
	submissions *fakeSubmissions
	rows        *fakeRows
	problems    *fakeProblems
	runner      *scriptedRunner
	publisher   *capturingPublisher
	cancels     *repository.CancelFlagRepository
}

func newFixture(t *testing.T, testcaseCount int, runner *scriptedRunner) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	redisCache, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("init cache: %v", err)
	}

	submissions := &fakeSubmissions{submission: &model.Submission{
		ID:         "sub-1",
		UserID:     9,
		ProblemID:  1,
		LanguageID: 2,
		SourceCode: "print(input())",
		Status:     model.StatusPending,
	}}
	problems := &fakeProblems{problem: &model.Problem{ID: 1, TimeLimitMs: 1000, MemoryLimitMB: 256}}
	languages := &fakeLanguages{language: &model.Language{
		ID:         2,
		Name:       "python3",
		SourceExt:  ".py",
		RunCommand: "python3 {src}",
		IsActive:   true,
	}}

	testcases := make([]*model.Testcase, 0, testcaseCount)
	for i := 1; i <= testcaseCount; i++ {
		testcases = append(testcases, &model.Testcase{
			ID:        int64(i),
			ProblemID: 1,
			Input:     []byte("in"),
			Expected:  []byte("ok\n"),
			Points:    10,
		})
	}

	rows := &fakeRows{}
	publisher := &capturingPublisher{}
	cancels := repository.NewCancelFlagRepository(redisCache)
	snapshots := repository.NewSnapshotLoader(submissions, problems, languages, &fakeTestcases{testcases: testcases}, nil)

	coord := New(Config{TestcaseConcurrency: 3, ClaimWait: time.Second, SlotWait: time.Second}, Deps{
		Database:     &fakeDB{},
		Lease:        repository.NewLeaseRepository(redisCache, time.Minute),
		Snapshots:    snapshots,
		Submissions:  submissions,
		Rows:         rows,
		Problems:     problems,
		Status:       repository.NewStatusRepository(redisCache, time.Minute),
		Cancels:      cancels,
		Publisher:    publisher,
		Runner:       runner,
		Executor:     executor.New(executor.DefaultConfig(), runner),
		WorkRoot:     t.TempDir(),
		SandboxSlots: make(chan struct{}, 4),
	})

	return &fixture{
		coord:       coord,
		submissions: submissions,
		rows:        rows,
		problems:    problems,
		runner:      runner,
		publisher:   publisher,
		cancels:     cancels,
	}
}

func TestJudgeAllAccepted(t *testing.T) {
	runner := &scriptedRunner{compileOK: true}
	f := newFixture(t, 3, runner)

	if err := f.coord.Judge(context.Background(), "sub-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.submissions.terminalStatus != model.StatusAccepted {
		t.Fatalf("expected accepted, got %s", f.submissions.terminalStatus)
	}
	if f.submissions.terminalScore != 30 {
		t.Fatalf("expected score 30, got %d", f.submissions.terminalScore)
	}
	if len(f.rows.rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(f.rows.rows))
	}
	if f.problems.totalIncr != 1 || f.problems.acceptedIncr != 1 {
		t.Fatalf("expected counters 1/1, got %d/%d", f.problems.totalIncr, f.problems.acceptedIncr)
	}
	if len(f.publisher.events) != 1 {
		t.Fatalf("expected one terminal event, got %d", len(f.publisher.events))
	}
}

func TestJudgeFirstFailureInPriorityOrderWins(t *testing.T) {
	// testcase 1 is wrong but finishes last; testcase 2 times out quickly.
	// The verdict must follow testcase id order, not completion order.
	runner := &scriptedRunner{
		compileOK: true,
		measurements: map[string]limiter.Measurement{
			"tc-1": {ExitCode: 0, Stdout: "nope\n"},
			"tc-2": {TimedOut: true, ExitCode: -1},
		},
		delays: map[string]time.Duration{
			"tc-1": 50 * time.Millisecond,
		},
	}
	f := newFixture(t, 3, runner)

	if err := f.coord.Judge(context.Background(), "sub-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.submissions.terminalStatus != model.StatusWrongAnswer {
		t.Fatalf("expected wrong_answer from first failing testcase, got %s", f.submissions.terminalStatus)
	}
	if len(f.rows.rows) != 3 {
		t.Fatalf("expected all rows persisted, got %d", len(f.rows.rows))
	}
	if f.rows.rows[1].Status != model.VerdictTimeLimitExceeded {
		t.Fatalf("expected tc-2 row to keep its own verdict, got %s", f.rows.rows[1].Status)
	}
	if f.problems.acceptedIncr != 0 {
		t.Fatalf("expected no accepted increment, got %d", f.problems.acceptedIncr)
	}
}

func TestJudgeAggregatesMaxTimeAndMemory(t *testing.T) {
	runner := &scriptedRunner{
		compileOK: true,
		measurements: map[string]limiter.Measurement{
			"tc-1": {ExitCode: 0, Stdout: "ok\n", CPUTimeMs: 120, MemoryKB: 2048},
			"tc-2": {ExitCode: 0, Stdout: "ok\n", CPUTimeMs: 300, MemoryKB: 1024},
			"tc-3": {ExitCode: 0, Stdout: "ok\n", CPUTimeMs: 80, MemoryKB: 4096},
		},
	}
	f := newFixture(t, 3, runner)

	if err := f.coord.Judge(context.Background(), "sub-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.submissions.terminalTimeMs != 300 {
		t.Fatalf("expected max time 300, got %d", f.submissions.terminalTimeMs)
	}
	if f.submissions.terminalMemKB != 4096 {
		t.Fatalf("expected max memory 4096, got %d", f.submissions.terminalMemKB)
	}
}

func TestJudgeCompileError(t *testing.T) {
	runner := &scriptedRunner{compileOK: false}
	f := newFixture(t, 3, runner)
	f.submissions.submission.LanguageID = 2

	// give the language a compile step
	langRepo := &fakeLanguages{language: &model.Language{
		ID:             2,
		Name:           "cpp",
		SourceExt:      ".cpp",
		CompileCommand: nullString("g++ -O2 -o {bin} {src}"),
		RunCommand:     "./{bin}",
		IsActive:       true,
	}}
	f.coord.snapshots = repository.NewSnapshotLoader(
		f.submissions, f.problems, langRepo,
		&fakeTestcases{testcases: []*model.Testcase{{ID: 1, ProblemID: 1, Input: []byte("in"), Expected: []byte("ok\n"), Points: 10}}},
		nil,
	)

	if err := f.coord.Judge(context.Background(), "sub-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.submissions.terminalStatus != model.StatusCompileError {
		t.Fatalf("expected compile_error, got %s", f.submissions.terminalStatus)
	}
	if len(f.rows.rows) != 0 {
		t.Fatalf("expected no testcase rows on compile error, got %d", len(f.rows.rows))
	}
	if len(runner.executed) != 0 {
		t.Fatalf("expected no testcase executions, got %d", len(runner.executed))
	}
	if f.problems.totalIncr != 1 || f.problems.acceptedIncr != 0 {
		t.Fatalf("expected counters 1/0, got %d/%d", f.problems.totalIncr, f.problems.acceptedIncr)
	}
}

func TestJudgeCancelledBeforeStart(t *testing.T) {
	runner := &scriptedRunner{compileOK: true}
	f := newFixture(t, 3, runner)

	if err := f.cancels.Mark(context.Background(), "sub-1"); err != nil {
		t.Fatalf("mark cancel: %v", err)
	}
	if err := f.coord.Judge(context.Background(), "sub-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.submissions.terminalStatus != model.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", f.submissions.terminalStatus)
	}
	if len(runner.executed) != 0 {
		t.Fatalf("expected no executions after cancel, got %d", len(runner.executed))
	}
	if f.problems.counterEvents != 0 {
		t.Fatal("cancelled submissions must not touch problem counters")
	}
	if f.cancels.IsMarked(context.Background(), "sub-1") {
		t.Fatal("expected cancel flag cleared after terminal transition")
	}
}

func TestJudgeInfraErrorBubblesForRetry(t *testing.T) {
	runner := &scriptedRunner{compileOK: true, compileErr: appErr.New(appErr.JudgeSystemError)}
	f := newFixture(t, 1, runner)

	langRepo := &fakeLanguages{language: &model.Language{
		ID:             2,
		Name:           "cpp",
		SourceExt:      ".cpp",
		CompileCommand: nullString("g++ -O2 -o {bin} {src}"),
		RunCommand:     "./{bin}",
		IsActive:       true,
	}}
	f.coord.snapshots = repository.NewSnapshotLoader(
		f.submissions, f.problems, langRepo,
		&fakeTestcases{testcases: []*model.Testcase{{ID: 1, ProblemID: 1, Input: []byte("in"), Expected: []byte("ok\n"), Points: 10}}},
		nil,
	)

	err := f.coord.Judge(context.Background(), "sub-1")
	if err == nil {
		t.Fatal("expected infrastructure error to bubble up")
	}
	if !appErr.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if f.submissions.terminalCalls != 0 {
		t.Fatal("infra fault must not record a terminal verdict")
	}
}

func TestFinalizeInternalError(t *testing.T) {
	runner := &scriptedRunner{compileOK: true}
	f := newFixture(t, 1, runner)

	if err := f.coord.FinalizeInternalError(context.Background(), "sub-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.submissions.terminalStatus != model.StatusInternalError {
		t.Fatalf("expected internal_error, got %s", f.submissions.terminalStatus)
	}
	if f.problems.counterEvents != 0 {
		t.Fatal("internal errors must not touch problem counters")
	}
}

func TestJudgeLeaseConflict(t *testing.T) {
	runner := &scriptedRunner{compileOK: true}
	f := newFixture(t, 1, runner)
	f.coord.cfg.ClaimWait = 150 * time.Millisecond

	// hold the lease as if another worker owned the submission
	if _, ok, err := f.coord.lease.Acquire(context.Background(), "sub-1"); err != nil || !ok {
		t.Fatalf("pre-acquire lease: ok=%v err=%v", ok, err)
	}

	err := f.coord.Judge(context.Background(), "sub-1")
	if err == nil {
		t.Fatal("expected lease conflict")
	}
	if appErr.GetCode(err) != appErr.LeaseConflict {
		t.Fatalf("expected lease conflict code, got %v", appErr.GetCode(err))
	}
}

func TestJudgeDeletedSubmissionIsCancelled(t *testing.T) {
	runner := &scriptedRunner{compileOK: true}
	f := newFixture(t, 1, runner)
	f.submissions.submission.DeletedAt = nullTimeNow()

	if err := f.coord.Judge(context.Background(), "sub-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.submissions.terminalStatus != model.StatusCancelled {
		t.Fatalf("expected cancelled for deleted submission, got %s", f.submissions.terminalStatus)
	}
}

func TestJudgeCompileLogNotPersistedAsRow(t *testing.T) {
	runner := &scriptedRunner{compileOK: true}
	f := newFixture(t, 2, runner)

	if err := f.coord.Judge(context.Background(), "sub-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, row := range f.rows.rows {
		if strings.Contains(string(row.Stdout), "gcc") {
			t.Fatal("compile output must never leak into testcase rows")
		}
	}
}
