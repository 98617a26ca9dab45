// Package prefetch warms the local thumbnail cache. Thumbnails are small,
// so the pool runs with a higher concurrency limit than map downloads and
// keeps no per-item status: a missing thumbnail just shows a placeholder
// until the next prefetch pass.
package prefetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

const defaultConcurrency = 8

// URLBuilder turns a map name into its thumbnail address.
type URLBuilder func(name string) string

// Broadcaster pushes prefetch events to connected UI clients.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// Service fetches missing thumbnails into the cache directory.
type Service struct {
	cacheDir string
	urlFor   URLBuilder
	client   *http.Client
	hub      Broadcaster
	logger   zerolog.Logger
	limit    int64

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a prefetch service. concurrency <= 0 uses the
// default of 8.
func NewService(cacheDir string, urlFor URLBuilder, hub Broadcaster, logger zerolog.Logger, concurrency int) *Service {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Service{
		cacheDir: cacheDir,
		urlFor:   urlFor,
		client:   &http.Client{},
		hub:      hub,
		logger:   logger.With().Str("component", "prefetch").Logger(),
		limit:    int64(concurrency),
	}
}

// SetClient overrides the HTTP client used for thumbnail fetches.
func (s *Service) SetClient(client *http.Client) {
	s.client = client
}

// ThumbnailPath returns the cache path for a map name.
func (s *Service) ThumbnailPath(name string) string {
	return filepath.Join(s.cacheDir, "thumbnails", name+".png")
}

// Start begins prefetching thumbnails for the given map names and
// returns immediately. Names whose thumbnail is already cached are
// skipped without a network call. A previous prefetch run is cancelled.
func (s *Service) Start(names []string) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	thumbDir := filepath.Join(s.cacheDir, "thumbnails")
	if err := os.MkdirAll(thumbDir, 0o755); err != nil {
		s.logger.Error().Err(err).Str("dir", thumbDir).Msg("failed to create thumbnail directory")
		return
	}

	s.logger.Debug().Int("count", len(names)).Msg("starting thumbnail prefetch")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, names)
	}()
}

// Cancel stops an in-flight prefetch run.
func (s *Service) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Wait blocks until the current prefetch run has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) run(ctx context.Context, names []string) {
	sem := semaphore.NewWeighted(s.limit)
	var wg sync.WaitGroup
	var mu sync.Mutex
	fetched := 0

	for _, name := range names {
		if _, err := os.Stat(s.ThumbnailPath(name)); err == nil {
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			defer sem.Release(1)

			if err := s.fetch(ctx, name); err != nil {
				s.logger.Debug().Err(err).Str("map", name).Msg("thumbnail fetch failed")
				return
			}
			mu.Lock()
			fetched++
			mu.Unlock()
		}(name)
	}

	wg.Wait()

	s.logger.Debug().Int("fetched", fetched).Msg("thumbnail prefetch finished")
	if s.hub != nil && fetched > 0 {
		_ = s.hub.Broadcast("thumbnails:refreshed", map[string]int{"fetched": fetched})
	}
}

func (s *Service) fetch(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.urlFor(name), nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return os.WriteFile(s.ThumbnailPath(name), data, 0o644)
}
