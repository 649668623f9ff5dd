package coordinator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"arbiter/internal/common/db"
	"arbiter/internal/judge/events"
	"arbiter/internal/judge/executor"
	"arbiter/internal/judge/model"
	appErr "arbiter/pkg/errors"
	"arbiter/pkg/utils/logger"
)

// finalizeVerdict reduces per-testcase results into the submission verdict
// and persists everything in one transaction. Results arrive in testcase
// priority order; the first failing testcase decides the verdict.
func (c *Coordinator) finalizeVerdict(ctx context.Context, spec *model.JudgingSpec, results []executor.Result) error {
	status := model.StatusAccepted
	var maxTimeMs, maxMemoryKB int64
	score := 0
	rows := make([]*model.SubmissionTestcase, 0, len(results))
	outcomes := make([]events.TestcaseOutcome, 0, len(results))

	for _, res := range results {
		if res.Verdict != model.VerdictAccepted && status == model.StatusAccepted {
			status = res.Verdict.SubmissionStatus()
		}
		if res.TimeMs > maxTimeMs {
			maxTimeMs = res.TimeMs
		}
		if res.MemoryKB > maxMemoryKB {
			maxMemoryKB = res.MemoryKB
		}
		score += res.Points
		rows = append(rows, &model.SubmissionTestcase{
			SubmissionID: spec.Submission.ID,
			TestcaseID:   res.TestcaseID,
			Status:       res.Verdict,
			Stdout:       res.Stdout,
			Truncated:    res.Truncated,
			TimeMs:       res.TimeMs,
			MemoryKB:     res.MemoryKB,
		})
		outcomes = append(outcomes, events.TestcaseOutcome{
			TestcaseID: res.TestcaseID,
			Status:     res.Verdict,
			TimeMs:     res.TimeMs,
			MemoryKB:   res.MemoryKB,
		})
	}

	err := c.database.Transaction(ctx, func(tx db.Transaction) error {
		if err := c.submissions.MarkTerminal(ctx, tx, spec.Submission.ID, status, maxTimeMs, maxMemoryKB, score); err != nil {
			return err
		}
		if err := c.rows.ReplaceForSubmission(ctx, tx, spec.Submission.ID, rows); err != nil {
			return err
		}
		return c.problems.IncrementCounters(ctx, tx, spec.Submission.ProblemID, status == model.StatusAccepted)
	})
	if err != nil {
		return appErr.Wrapf(err, appErr.TransactionFailed, "finalize submission %s", spec.Submission.ID)
	}

	c.afterTerminal(ctx, events.TerminalEvent{
		SubmissionID: spec.Submission.ID,
		Status:       status,
		TimeMs:       maxTimeMs,
		MemoryKB:     maxMemoryKB,
		Score:        score,
		Testcases:    outcomes,
	}, len(results), len(results))
	return nil
}

// finalizeCompileError records the terminal compile failure. No testcases
// ran, so the row set is emptied and the aggregates stay zero. The attempt
// still counts toward the problem's totals.
func (c *Coordinator) finalizeCompileError(ctx context.Context, spec *model.JudgingSpec) error {
	err := c.database.Transaction(ctx, func(tx db.Transaction) error {
		if err := c.submissions.MarkTerminal(ctx, tx, spec.Submission.ID, model.StatusCompileError, 0, 0, 0); err != nil {
			return err
		}
		if err := c.rows.ReplaceForSubmission(ctx, tx, spec.Submission.ID, nil); err != nil {
			return err
		}
		return c.problems.IncrementCounters(ctx, tx, spec.Submission.ProblemID, false)
	})
	if err != nil {
		return appErr.Wrapf(err, appErr.TransactionFailed, "finalize compile error for submission %s", spec.Submission.ID)
	}

	c.afterTerminal(ctx, events.TerminalEvent{
		SubmissionID: spec.Submission.ID,
		Status:       model.StatusCompileError,
	}, 0, 0)
	return nil
}

// finalizeCancelled ends a cancelled attempt. Cancellation is operator
// action, not a property of the code, so problem counters are untouched.
func (c *Coordinator) finalizeCancelled(ctx context.Context, submissionID string) error {
	if err := c.markAborted(ctx, submissionID, model.StatusCancelled); err != nil {
		return err
	}
	c.afterTerminal(ctx, events.TerminalEvent{
		SubmissionID: submissionID,
		Status:       model.StatusCancelled,
	}, 0, 0)
	return nil
}

// FinalizeInternalError marks a submission terminally failed after the
// queue has exhausted its retries. Counters stay untouched, mirroring
// cancellation.
func (c *Coordinator) FinalizeInternalError(ctx context.Context, submissionID string) error {
	if err := c.markAborted(ctx, submissionID, model.StatusInternalError); err != nil {
		return err
	}
	c.afterTerminal(ctx, events.TerminalEvent{
		SubmissionID: submissionID,
		Status:       model.StatusInternalError,
	}, 0, 0)
	return nil
}

func (c *Coordinator) markAborted(ctx context.Context, submissionID string, status model.SubmissionStatus) error {
	err := c.database.Transaction(ctx, func(tx db.Transaction) error {
		if err := c.submissions.MarkTerminal(ctx, tx, submissionID, status, 0, 0, 0); err != nil {
			return err
		}
		return c.rows.ReplaceForSubmission(ctx, tx, submissionID, nil)
	})
	if err != nil {
		return appErr.Wrapf(err, appErr.TransactionFailed, "abort submission %s", submissionID)
	}
	return nil
}

// afterTerminal performs the best-effort side effects of a terminal
// transition. Failures here never undo the persisted verdict.
func (c *Coordinator) afterTerminal(ctx context.Context, event events.TerminalEvent, total, doneCount int) {
	event.CreatedAt = time.Now().Unix()

	c.reportStatus(ctx, event.SubmissionID, event.Status, total, doneCount)

	if err := c.cancels.Clear(ctx, event.SubmissionID); err != nil {
		logger.Warn(ctx, "clear cancel flag failed", zap.String("submission_id", event.SubmissionID), zap.Error(err))
	}
	if c.publisher != nil {
		if err := c.publisher.PublishTerminal(ctx, event); err != nil {
			logger.Warn(ctx, "publish terminal event failed",
				zap.String("submission_id", event.SubmissionID),
				zap.String("status", string(event.Status)),
				zap.Error(err))
		}
	}
	logger.Info(ctx, "submission judged",
		zap.String("submission_id", event.SubmissionID),
		zap.String("status", string(event.Status)),
		zap.Int("score", event.Score))
}
