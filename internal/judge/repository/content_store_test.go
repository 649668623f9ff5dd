package repository

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sync"
	"testing"

	"arbiter/internal/common/storage"
	appErr "arbiter/pkg/errors"
)

// memStorage is an in-memory ObjectStorage keyed by bucket/key.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    int
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string][]byte)}
}

func (m *memStorage) GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	data, ok := m.objects[bucket+"/"+objectKey]
	if !ok {
		return nil, appErr.New(appErr.ObjectNotFound).WithMessage("no such object")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+objectKey] = data
	return nil
}

func (m *memStorage) StatObject(ctx context.Context, bucket, objectKey string) (storage.ObjectStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+objectKey]
	if !ok {
		return storage.ObjectStat{}, appErr.New(appErr.ObjectNotFound).WithMessage("no such object")
	}
	return storage.ObjectStat{SizeBytes: int64(len(data))}, nil
}

func (m *memStorage) Ping(ctx context.Context) error { return nil }

func (m *memStorage) getCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}

func TestContentStoreRoundTrip(t *testing.T) {
	mem := newMemStorage()
	store := NewContentStore(mem, "testcases", 8)
	ctx := context.Background()

	payload := []byte("1 2 3\n4 5 6\n")
	checksum, err := store.Store(ctx, "problem-1/tc-1.in", payload)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	expected := sha256.Sum256(payload)
	if checksum != hex.EncodeToString(expected[:]) {
		t.Fatalf("unexpected checksum %s", checksum)
	}

	// the stored object is compressed, not the raw payload
	raw := mem.objects["testcases/problem-1/tc-1.in"]
	if bytes.Equal(raw, payload) {
		t.Fatal("expected compressed bytes in object storage")
	}

	got, err := store.Fetch(ctx, "problem-1/tc-1.in", checksum)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestContentStoreChecksumMismatch(t *testing.T) {
	mem := newMemStorage()
	store := NewContentStore(mem, "testcases", 8)
	ctx := context.Background()

	if _, err := store.Store(ctx, "k", []byte("data")); err != nil {
		t.Fatalf("store: %v", err)
	}
	// drop the cache so Fetch goes back to storage and verifies
	store.entries = make(map[string][]byte)
	store.lruKeys = nil

	_, err := store.Fetch(ctx, "k", "deadbeef")
	if appErr.GetCode(err) != appErr.ChecksumMismatch {
		t.Fatalf("expected checksum mismatch, got %v", err)
	}
}

func TestContentStoreCachesFetches(t *testing.T) {
	mem := newMemStorage()
	store := NewContentStore(mem, "testcases", 8)
	ctx := context.Background()

	if _, err := store.Store(ctx, "k", []byte("data")); err != nil {
		t.Fatalf("store: %v", err)
	}
	store.entries = make(map[string][]byte)
	store.lruKeys = nil

	for i := 0; i < 3; i++ {
		if _, err := store.Fetch(ctx, "k", ""); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if mem.getCount() != 1 {
		t.Fatalf("expected a single download, got %d", mem.getCount())
	}
}

func TestContentStoreLRUEviction(t *testing.T) {
	mem := newMemStorage()
	store := NewContentStore(mem, "testcases", 2)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		if _, err := store.Store(ctx, key, []byte(key)); err != nil {
			t.Fatalf("store %s: %v", key, err)
		}
	}
	if len(store.entries) != 2 {
		t.Fatalf("expected 2 cached entries, got %d", len(store.entries))
	}
	if _, ok := store.entries["a"]; ok {
		t.Fatal("expected oldest entry evicted")
	}
	if _, ok := store.entries["c"]; !ok {
		t.Fatal("expected newest entry cached")
	}
}

func TestContentStoreMissingObject(t *testing.T) {
	store := NewContentStore(newMemStorage(), "testcases", 8)

	_, err := store.Fetch(context.Background(), "ghost", "")
	if appErr.GetCode(err) != appErr.StorageError {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestContentStoreValidatesKey(t *testing.T) {
	store := NewContentStore(newMemStorage(), "testcases", 8)

	if _, err := store.Fetch(context.Background(), "", ""); appErr.GetCode(err) != appErr.ValidationFailed {
		t.Fatalf("expected validation failure, got %v", err)
	}
	if _, err := store.Store(context.Background(), "", nil); appErr.GetCode(err) != appErr.ValidationFailed {
		t.Fatalf("expected validation failure, got %v", err)
	}
}
