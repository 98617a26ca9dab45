package prefetch

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_FetchesMissingThumbnails(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprintf(w, "png bytes for %s", r.URL.Path)
	}))
	defer server.Close()

	cacheDir := t.TempDir()
	svc := NewService(cacheDir, func(name string) string {
		return server.URL + "/thumbnails/" + name + ".png"
	}, nil, zerolog.New(zerolog.NewTestWriter(t)), 0)

	// One thumbnail is already cached and must be skipped.
	thumbDir := filepath.Join(cacheDir, "thumbnails")
	require.NoError(t, os.MkdirAll(thumbDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(thumbDir, "Cached.png"), []byte("old"), 0o644))

	svc.Start([]string{"Cached", "Fresh1", "Fresh2"})
	svc.Wait()

	assert.Equal(t, int32(2), requests.Load())

	data, err := os.ReadFile(svc.ThumbnailPath("Fresh1"))
	require.NoError(t, err)
	assert.Equal(t, "png bytes for /thumbnails/Fresh1.png", string(data))

	data, err = os.ReadFile(svc.ThumbnailPath("Cached"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(data), "cached thumbnail must be untouched")
}

func TestService_SkipsFailedFetches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cacheDir := t.TempDir()
	svc := NewService(cacheDir, func(name string) string {
		return server.URL + "/thumbnails/" + name + ".png"
	}, nil, zerolog.New(zerolog.NewTestWriter(t)), 2)

	svc.Start([]string{"Missing"})
	svc.Wait()

	_, err := os.Stat(svc.ThumbnailPath("Missing"))
	assert.True(t, os.IsNotExist(err), "failed fetch must not leave a file behind")
}
