package queue

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"arbiter/internal/common/mq"
	appErr "arbiter/pkg/errors"
	"arbiter/pkg/utils/logger"
)

// Task actions accepted on the intake topic.
const (
	ActionJudge   = "judge"
	ActionRejudge = "rejudge"
	ActionCancel  = "cancel"
)

// Task is the intake message payload.
type Task struct {
	SubmissionID string `json:"submission_id"`
	Action       string `json:"action,omitempty"`
}

// HandleMessage is the mq handler for the intake topic. A full queue returns
// a retryable error so the consumer redelivers with backoff; duplicates are
// acknowledged silently.
func (q *Queue) HandleMessage(ctx context.Context, msg *mq.Message) error {
	if msg == nil {
		return appErr.New(appErr.InvalidParams).WithMessage("message is nil")
	}
	var task Task
	if err := json.Unmarshal(msg.Body, &task); err != nil {
		return appErr.Wrapf(err, appErr.InvalidParams, "decode judge task failed")
	}
	if task.SubmissionID == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("task missing submission id")
	}

	switch task.Action {
	case ActionCancel:
		return q.Cancel(ctx, task.SubmissionID)
	case ActionRejudge:
		outcome, err := q.Rejudge(ctx, task.SubmissionID)
		return q.ackOutcome(ctx, task, outcome, err)
	case "", ActionJudge:
		outcome, err := q.Submit(ctx, task.SubmissionID)
		return q.ackOutcome(ctx, task, outcome, err)
	default:
		return appErr.Newf(appErr.InvalidParams, "unknown task action %q", task.Action)
	}
}

func (q *Queue) ackOutcome(ctx context.Context, task Task, outcome SubmitOutcome, err error) error {
	switch outcome {
	case OutcomeAlreadyActive:
		logger.Info(ctx, "duplicate judge task dropped", zap.String("submission_id", task.SubmissionID))
		return nil
	case OutcomeQueueFull:
		// retryable, the consumer redelivers after backoff
		return err
	}
	return err
}
