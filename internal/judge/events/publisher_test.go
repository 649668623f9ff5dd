package events

import (
	"context"
	"encoding/json"
	"testing"

	"arbiter/internal/common/mq"
	"arbiter/internal/judge/model"
	appErr "arbiter/pkg/errors"
)

type fakeQueue struct {
	published map[string][]*mq.Message
	err       error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{published: make(map[string][]*mq.Message)}
}

func (f *fakeQueue) Publish(ctx context.Context, topic string, message *mq.Message) error {
	if f.err != nil {
		return f.err
	}
	f.published[topic] = append(f.published[topic], message)
	return nil
}

func (f *fakeQueue) PublishBatch(ctx context.Context, topic string, messages []*mq.Message) error {
	for _, m := range messages {
		if err := f.Publish(ctx, topic, m); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeQueue) Subscribe(ctx context.Context, topic string, handler mq.HandlerFunc) error {
	return nil
}

func (f *fakeQueue) SubscribeWithOptions(ctx context.Context, topic string, handler mq.HandlerFunc, opts *mq.SubscribeOptions) error {
	return nil
}

func (f *fakeQueue) Start() error                   { return nil }
func (f *fakeQueue) Stop() error                    { return nil }
func (f *fakeQueue) Ping(ctx context.Context) error { return nil }
func (f *fakeQueue) Close() error                   { return nil }

func TestPublishTerminal(t *testing.T) {
	queue := newFakeQueue()
	pub := NewMQPublisher(queue, "judge.results")

	event := TerminalEvent{
		SubmissionID: "sub-1",
		Status:       model.StatusAccepted,
		TimeMs:       120,
		MemoryKB:     2048,
		Score:        100,
		Testcases: []TestcaseOutcome{
			{TestcaseID: 1, Status: model.VerdictAccepted, TimeMs: 120, MemoryKB: 2048},
		},
	}
	if err := pub.PublishTerminal(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msgs := queue.published["judge.results"]
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(msgs))
	}
	if msgs[0].ID != "sub-1" {
		t.Fatalf("expected message keyed by submission id, got %s", msgs[0].ID)
	}

	var decoded TerminalEvent
	if err := json.Unmarshal(msgs[0].Body, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.Status != model.StatusAccepted || decoded.Score != 100 {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
	if decoded.CreatedAt == 0 {
		t.Fatal("expected CreatedAt to be filled in")
	}
	if len(decoded.Testcases) != 1 || decoded.Testcases[0].TestcaseID != 1 {
		t.Fatalf("unexpected testcase outcomes: %+v", decoded.Testcases)
	}
}

func TestPublishTerminalValidation(t *testing.T) {
	queue := newFakeQueue()

	if err := NewMQPublisher(queue, "").PublishTerminal(context.Background(), TerminalEvent{SubmissionID: "s"}); appErr.GetCode(err) != appErr.InvalidParams {
		t.Fatalf("expected invalid params for missing topic, got %v", err)
	}
	if err := NewMQPublisher(queue, "t").PublishTerminal(context.Background(), TerminalEvent{}); appErr.GetCode(err) != appErr.ValidationFailed {
		t.Fatalf("expected validation failure for missing id, got %v", err)
	}

	var nilPub *MQPublisher
	if err := nilPub.PublishTerminal(context.Background(), TerminalEvent{SubmissionID: "s"}); appErr.GetCode(err) != appErr.ServiceUnavailable {
		t.Fatalf("expected service unavailable for nil publisher, got %v", err)
	}
}

func TestPublishTerminalWrapsQueueError(t *testing.T) {
	queue := newFakeQueue()
	queue.err = appErr.New(appErr.ServiceUnavailable)
	pub := NewMQPublisher(queue, "judge.results")

	err := pub.PublishTerminal(context.Background(), TerminalEvent{SubmissionID: "sub-1"})
	if !appErr.IsRetryable(err) {
		t.Fatalf("expected retryable publish error, got %v", err)
	}
}
