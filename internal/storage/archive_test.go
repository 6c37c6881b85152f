package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/bulkgen/internal/domain"
)

type memoryStorage struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if m.err != nil {
		return m.err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func TestJobArchiver_WritesSnapshotWithoutToken(t *testing.T) {
	store := newMemoryStorage()
	a := NewJobArchiver(store, "")

	job := &domain.BulkJob{
		ID:             "job-1",
		StoreID:        "store-1",
		ShopDomain:     "demo.myshopify.com",
		AccessToken:    "shpat_secret",
		Status:         domain.JobStatusCompleted,
		ProcessedCount: 7,
		FailedCount:    1,
	}
	require.NoError(t, a.Archive(context.Background(), job))

	data, ok := store.objects["bulk-jobs/store-1/job-1.json"]
	require.True(t, ok)
	assert.Equal(t, "application/json", store.types["bulk-jobs/store-1/job-1.json"])
	assert.NotContains(t, string(data), "shpat_secret")

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "completed", doc["status"])
	assert.EqualValues(t, 7, doc["processedCount"])
	assert.Contains(t, doc, "archivedAt")
}

func TestJobArchiver_UploadError(t *testing.T) {
	store := newMemoryStorage()
	store.err = errors.New("bucket gone")

	err := NewJobArchiver(store, "archive").Archive(context.Background(), &domain.BulkJob{ID: "j", StoreID: "s"})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.err)
}

func TestS3Storage_UploadPathStyle(t *testing.T) {
	var mu sync.Mutex
	var method, path, contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		method, path, contentType = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := NewStorage(&S3Config{
		Endpoint:  srv.URL,
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "archive",
	})
	require.NoError(t, err)
	assert.Equal(t, StorageTypeS3Compatible, s.storeType)

	payload := []byte(`{"id":"job-1"}`)
	require.NoError(t, s.Upload(context.Background(), "bulk-jobs/s/job-1.json", bytes.NewReader(payload), int64(len(payload)), "application/json"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/archive/bulk-jobs/s/job-1.json", path)
	assert.Equal(t, "application/json", contentType)
}

func TestDetectStorageType(t *testing.T) {
	assert.Equal(t, StorageTypeS3, detectStorageType(""))
	assert.Equal(t, StorageTypeS3, detectStorageType("https://s3.eu-west-1.amazonaws.com"))
	assert.Equal(t, StorageTypeR2, detectStorageType("https://acc.r2.cloudflarestorage.com"))
	assert.Equal(t, StorageTypeS3Compatible, detectStorageType("minio:9000"))
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "minio:9000", normalizeEndpoint("http://minio:9000/"))
	assert.Equal(t, "host", normalizeEndpoint("https://host/path"))
}
