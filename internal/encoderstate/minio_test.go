package encoderstate

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/errors"
)

// s3Error answers every request with a fixed S3 error document.
func s3Error(status int, code string, requests *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(status)
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>%s</Code><Message>%s</Message><Resource>%s</Resource><RequestId>test</RequestId></Error>`,
			code, code, r.URL.Path)
	}
}

func newStubbedMinIOStore(t *testing.T, handler http.Handler) *MinIOStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := minio.New(strings.TrimPrefix(srv.URL, "http://"), &minio.Options{
		Creds:  credentials.NewStaticV4("access", "secret", ""),
		Region: "us-east-1",
	})
	require.NoError(t, err)
	return NewMinIOStore(client, "hybridsearch", "state")
}

func TestMinIOStoreMissingObject(t *testing.T) {
	var requests atomic.Int32
	store := newStubbedMinIOStore(t, s3Error(http.StatusNotFound, "NoSuchKey", &requests))

	_, err := store.Get(context.Background(), "bm25.hsts")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Contains(t, err.Error(), "hybridsearch/state/bm25.hsts")
	assert.Positive(t, requests.Load())

	_, err = Load(context.Background(), store, "bm25.hsts")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMinIOStoreOtherErrorsAreNotMissing(t *testing.T) {
	var requests atomic.Int32
	store := newStubbedMinIOStore(t, s3Error(http.StatusForbidden, "AccessDenied", &requests))

	_, err := store.Get(context.Background(), "bm25.hsts")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrNotFound)
	assert.Contains(t, err.Error(), "AccessDenied")
}

func TestMinIOStoreObjectKey(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	store := newStubbedMinIOStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := store.Get(context.Background(), "bm25.hsts")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, paths)
	assert.Equal(t, "/hybridsearch/state/bm25.hsts", paths[0])
}
