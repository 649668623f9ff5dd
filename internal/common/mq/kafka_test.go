package mq

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestKafkaMessageCodecRoundTrip(t *testing.T) {
	original := &Message{
		ID:   "msg-1",
		Body: []byte(`{"submission_id":"sub-1"}`),
		Headers: map[string]string{
			"trace_id": "abc",
		},
		Timestamp:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		RetryCount: 2,
		MaxRetries: 5,
		Expiration: 30 * time.Second,
	}

	km := toKafkaMessage("judge.tasks", original)
	if km.Topic != "judge.tasks" {
		t.Fatalf("expected topic judge.tasks, got %s", km.Topic)
	}
	if string(km.Key) != "msg-1" {
		t.Fatalf("expected key msg-1, got %s", km.Key)
	}

	decoded := fromKafkaMessage(km)
	if decoded.ID != original.ID {
		t.Fatalf("expected id %s, got %s", original.ID, decoded.ID)
	}
	if string(decoded.Body) != string(original.Body) {
		t.Fatalf("body mismatch: %s", decoded.Body)
	}
	if decoded.Headers["trace_id"] != "abc" {
		t.Fatalf("expected custom header preserved, got %v", decoded.Headers)
	}
	if !decoded.Timestamp.Equal(original.Timestamp) {
		t.Fatalf("expected timestamp %v, got %v", original.Timestamp, decoded.Timestamp)
	}
	if decoded.RetryCount != 2 || decoded.MaxRetries != 5 {
		t.Fatalf("retry fields mismatch: %d/%d", decoded.RetryCount, decoded.MaxRetries)
	}
	if decoded.Expiration != 30*time.Second {
		t.Fatalf("expected expiration 30s, got %v", decoded.Expiration)
	}
}

func TestFromKafkaMessageFallsBackToKey(t *testing.T) {
	decoded := fromKafkaMessage(kafka.Message{
		Key:   []byte("key-as-id"),
		Value: []byte("payload"),
		Time:  time.Now(),
	})
	if decoded.ID != "key-as-id" {
		t.Fatalf("expected key used as id, got %s", decoded.ID)
	}
	if len(decoded.Headers) != 0 {
		t.Fatalf("expected no headers, got %v", decoded.Headers)
	}
}

func TestFromKafkaMessageIgnoresMalformedMeta(t *testing.T) {
	now := time.Now()
	decoded := fromKafkaMessage(kafka.Message{
		Key:   []byte("id"),
		Value: []byte("x"),
		Time:  now,
		Headers: []kafka.Header{
			{Key: headerRetryCount, Value: []byte("not-a-number")},
			{Key: headerExpiration, Value: []byte("-5")},
			{Key: headerTimestamp, Value: []byte("garbage")},
		},
	})
	if decoded.RetryCount != 0 {
		t.Fatalf("expected malformed retry count ignored, got %d", decoded.RetryCount)
	}
	if decoded.Expiration != 0 {
		t.Fatalf("expected negative expiration ignored, got %v", decoded.Expiration)
	}
	if !decoded.Timestamp.Equal(now) {
		t.Fatalf("expected kafka time kept when header is garbage, got %v", decoded.Timestamp)
	}
}
