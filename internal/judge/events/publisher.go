// Package events publishes judging lifecycle events for downstream
// consumers (notifications, UI push, statistics).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"arbiter/internal/common/mq"
	"arbiter/internal/judge/model"
	appErr "arbiter/pkg/errors"
)

// TestcaseOutcome is one per-testcase result inside a terminal event.
type TestcaseOutcome struct {
	TestcaseID int64         `json:"testcase_id"`
	Status     model.Verdict `json:"status"`
	TimeMs     int64         `json:"time_ms"`
	MemoryKB   int64         `json:"memory_kb"`
}

// TerminalEvent is emitted exactly once per terminal transition.
type TerminalEvent struct {
	SubmissionID string                 `json:"submission_id"`
	Status       model.SubmissionStatus `json:"status"`
	TimeMs       int64                  `json:"time_ms"`
	MemoryKB     int64                  `json:"memory_kb"`
	Score        int                    `json:"score"`
	Testcases    []TestcaseOutcome      `json:"testcases"`
	CreatedAt    int64                  `json:"created_at"`
}

// Publisher emits terminal events.
type Publisher interface {
	PublishTerminal(ctx context.Context, event TerminalEvent) error
}

// MQPublisher publishes terminal events to a message queue topic.
type MQPublisher struct {
	queue mq.MessageQueue
	topic string
}

// NewMQPublisher creates a terminal event publisher.
func NewMQPublisher(queue mq.MessageQueue, topic string) *MQPublisher {
	return &MQPublisher{queue: queue, topic: topic}
}

func (p *MQPublisher) PublishTerminal(ctx context.Context, event TerminalEvent) error {
	if p == nil || p.queue == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("event publisher is not configured")
	}
	if p.topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("event topic is required")
	}
	if event.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if event.CreatedAt == 0 {
		event.CreatedAt = time.Now().Unix()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal terminal event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = event.SubmissionID
	if err := p.queue.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "publish terminal event failed")
	}
	return nil
}
