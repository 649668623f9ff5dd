package repository

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"arbiter/internal/common/storage"
	appErr "arbiter/pkg/errors"
)

// ContentStore keeps large testcase blobs in object storage, compressed with
// zstd and addressed by key. Fetched blobs are verified against a sha256
// checksum and cached in memory with LRU eviction so repeated judging of the
// same problem does not re-download its testcases.
type ContentStore struct {
	storage    storage.ObjectStorage
	bucket     string
	maxEntries int

	mu      sync.Mutex
	entries map[string][]byte
	lruKeys []string
}

// NewContentStore creates a content store over the given bucket.
func NewContentStore(storageClient storage.ObjectStorage, bucket string, maxEntries int) *ContentStore {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &ContentStore{
		storage:    storageClient,
		bucket:     bucket,
		maxEntries: maxEntries,
		entries:    make(map[string][]byte),
	}
}

// Fetch downloads, decompresses and verifies one blob.
func (s *ContentStore) Fetch(ctx context.Context, key, checksum string) ([]byte, error) {
	if key == "" {
		return nil, appErr.ValidationError("object_key", "required")
	}
	if s.storage == nil {
		return nil, appErr.New(appErr.StorageError).WithMessage("storage client is not initialized")
	}
	if data, ok := s.hit(key); ok {
		return data, nil
	}

	reader, err := s.storage.GetObject(ctx, s.bucket, key)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.StorageError, "download testcase blob failed")
	}
	defer reader.Close()

	zstdReader, err := zstd.NewReader(reader)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.StorageError, "create zstd reader failed")
	}
	defer zstdReader.Close()

	data, err := io.ReadAll(zstdReader)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.StorageError, "decompress testcase blob failed")
	}

	if checksum != "" {
		sum := sha256.Sum256(data)
		if !strings.EqualFold(hex.EncodeToString(sum[:]), checksum) {
			return nil, appErr.New(appErr.ChecksumMismatch).WithMessage("testcase blob checksum mismatch")
		}
	}

	s.add(key, data)
	return data, nil
}

// Store compresses and uploads one blob, returning its sha256 checksum.
func (s *ContentStore) Store(ctx context.Context, key string, data []byte) (string, error) {
	if key == "" {
		return "", appErr.ValidationError("object_key", "required")
	}
	if s.storage == nil {
		return "", appErr.New(appErr.StorageError).WithMessage("storage client is not initialized")
	}

	var buf bytes.Buffer
	writer, err := zstd.NewWriter(&buf)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "create zstd writer failed")
	}
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return "", appErr.Wrapf(err, appErr.StorageError, "compress testcase blob failed")
	}
	if err := writer.Close(); err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "compress testcase blob failed")
	}

	if err := s.storage.PutObject(ctx, s.bucket, key, &buf, int64(buf.Len()), "application/zstd"); err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "upload testcase blob failed")
	}

	sum := sha256.Sum256(data)
	s.add(key, data)
	return hex.EncodeToString(sum[:]), nil
}

func (s *ContentStore) hit(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	s.touchLocked(key)
	return data, true
}

func (s *ContentStore) add(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = data
	s.touchLocked(key)
	for len(s.entries) > s.maxEntries && len(s.lruKeys) > 0 {
		oldest := s.lruKeys[0]
		s.lruKeys = s.lruKeys[1:]
		delete(s.entries, oldest)
	}
}

func (s *ContentStore) touchLocked(key string) {
	for i, k := range s.lruKeys {
		if k == key {
			s.lruKeys = append(s.lruKeys[:i], s.lruKeys[i+1:]...)
			break
		}
	}
	s.lruKeys = append(s.lruKeys, key)
}
