// Package catalog maintains the local map catalog: it mirrors the remote
// manifest into SQLite, constructs download URLs and destinations, and
// resolves catalog ids into download tasks.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/mapstream/mapstream/internal/download"
)

const versionKey = "manifest_version"

// Broadcaster pushes catalog events to connected UI clients.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// Config holds the catalog's remote endpoints and local paths.
type Config struct {
	ManifestURL     string
	MapsBaseURL     string
	PreviewsBaseURL string
	DownloadDir     string
}

// Service provides catalog management.
type Service struct {
	db     *sql.DB
	cfg    Config
	client *http.Client
	hub    Broadcaster
	logger zerolog.Logger
}

// NewService creates a new catalog service.
func NewService(db *sql.DB, cfg Config, hub Broadcaster, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		cfg:    cfg,
		client: &http.Client{},
		hub:    hub,
		logger: logger.With().Str("component", "catalog").Logger(),
	}
}

// SetClient overrides the HTTP client used for manifest fetches.
func (s *Service) SetClient(client *http.Client) {
	s.client = client
}

// MapURL builds the download address for a map:
// <base>/<category>/<stars>star/<name>.map
func (s *Service) MapURL(m *Map) string {
	return fmt.Sprintf("%s/%s/%dstar/%s.map", s.cfg.MapsBaseURL, m.Category, m.Stars, m.Name)
}

// ThumbnailURL builds the thumbnail address for a map name.
func (s *Service) ThumbnailURL(name string) string {
	return fmt.Sprintf("%s/thumbnails/%s.png", s.cfg.PreviewsBaseURL, name)
}

// DestinationFor returns the local file path a map is downloaded to.
func (s *Service) DestinationFor(name string) string {
	return filepath.Join(s.cfg.DownloadDir, name+".map")
}

// List returns all maps ordered by name.
func (s *Service) List(ctx context.Context) ([]*Map, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, category, stars, points, author, release_date, size, downloaded, local_path
		 FROM maps ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var maps []*Map
	for rows.Next() {
		m, err := scanMap(rows)
		if err != nil {
			return nil, err
		}
		maps = append(maps, m)
	}
	return maps, rows.Err()
}

// Get returns one map by id.
func (s *Service) Get(ctx context.Context, id int64) (*Map, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, category, stars, points, author, release_date, size, downloaded, local_path
		 FROM maps WHERE id = ?`, id)
	return scanMap(row)
}

// Names returns all map names, used by the thumbnail prefetcher.
func (s *Service) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM maps ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Count returns the number of catalog entries.
func (s *Service) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM maps`).Scan(&count)
	return count, err
}

// Import upserts manifest entries by name, preserving download status.
func (s *Service) Import(ctx context.Context, maps []ManifestMap) (int, error) {
	imported := 0
	for _, m := range maps {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO maps (name, category, stars, points, author, release_date, size)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(name) DO UPDATE SET
			    category = excluded.category,
			    stars = excluded.stars,
			    points = excluded.points,
			    author = excluded.author,
			    release_date = excluded.release_date,
			    size = excluded.size`,
			m.Name, m.Category, m.Stars, m.Points, m.Author, m.ReleaseDate, m.Size)
		if err != nil {
			s.logger.Error().Err(err).Str("map", m.Name).Msg("failed to import map")
			continue
		}
		imported++
	}

	s.logger.Debug().Int("imported", imported).Int("total", len(maps)).Msg("maps imported")
	return imported, nil
}

// MarkDownloaded records a completed download for a map.
func (s *Service) MarkDownloaded(ctx context.Context, id int64, localPath string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE maps SET downloaded = 1, local_path = ? WHERE id = ?`, localPath, id)
	return err
}

// TasksFor resolves catalog ids into download tasks in the given order.
// Ids no longer present in the catalog are silently dropped.
func (s *Service) TasksFor(ctx context.Context, ids []int64, skipIfExists bool) ([]download.Task, error) {
	tasks := make([]download.Task, 0, len(ids))
	for _, id := range ids {
		m, err := s.Get(ctx, id)
		if err == sql.ErrNoRows {
			s.logger.Warn().Int64("id", id).Msg("task id not in catalog, dropping")
			continue
		}
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, download.Task{
			ID:           m.ID,
			URL:          s.MapURL(m),
			Destination:  s.DestinationFor(m.Name),
			ExpectedSize: m.Size,
			SkipIfExists: skipIfExists,
		})
	}
	return tasks, nil
}

// Version returns the stored manifest version, empty if none.
func (s *Service) Version(ctx context.Context) (string, error) {
	var version string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM metadata WHERE key = ?`, versionKey).Scan(&version)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return version, err
}

// SetVersion stores the manifest version.
func (s *Service) SetVersion(ctx context.Context, version string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, versionKey, version)
	return err
}

// GetSetting returns a setting value, empty if unset.
func (s *Service) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetSetting stores a setting value.
func (s *Service) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Refresh fetches the remote manifest and re-imports the catalog when
// the version or map count changed. Already-imported entries keep their
// downloaded flag via the upsert.
func (s *Service) Refresh(ctx context.Context) (*RefreshResult, error) {
	s.logger.Debug().Str("url", s.cfg.ManifestURL).Msg("fetching manifest")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.ManifestURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch manifest: HTTP %d", resp.StatusCode)
	}

	var manifest Manifest
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	currentVersion, err := s.Version(ctx)
	if err != nil {
		return nil, err
	}
	currentCount, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}

	if manifest.Version == currentVersion && manifest.MapCount == currentCount {
		s.logger.Debug().Str("version", currentVersion).Msg("catalog is up to date")
		return &RefreshResult{Version: currentVersion, Changed: false}, nil
	}

	newMaps, err := s.newMapNames(ctx, manifest.Maps)
	if err != nil {
		return nil, err
	}

	imported, err := s.Import(ctx, manifest.Maps)
	if err != nil {
		return nil, err
	}
	if err := s.SetVersion(ctx, manifest.Version); err != nil {
		return nil, err
	}

	result := &RefreshResult{
		Version:  manifest.Version,
		Imported: imported,
		Changed:  true,
		NewMaps:  newMaps,
	}

	s.logger.Info().
		Str("version", manifest.Version).
		Int("total", imported).
		Int("new", len(newMaps)).
		Msg("catalog updated")

	if s.hub != nil {
		_ = s.hub.Broadcast("catalog:updated", result)
	}
	return result, nil
}

// newMapNames returns manifest names not yet present in the catalog.
func (s *Service) newMapNames(ctx context.Context, maps []ManifestMap) ([]string, error) {
	existing, err := s.Names(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(existing))
	for _, name := range existing {
		known[name] = true
	}

	var fresh []string
	for _, m := range maps {
		if !known[m.Name] {
			fresh = append(fresh, m.Name)
		}
	}
	return fresh, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanMap.
type scanner interface {
	Scan(dest ...any) error
}

func scanMap(row scanner) (*Map, error) {
	var m Map
	var downloaded int
	var localPath sql.NullString
	err := row.Scan(&m.ID, &m.Name, &m.Category, &m.Stars, &m.Points,
		&m.Author, &m.ReleaseDate, &m.Size, &downloaded, &localPath)
	if err != nil {
		return nil, err
	}
	m.Downloaded = downloaded != 0
	if localPath.Valid {
		m.LocalPath = localPath.String
	}
	return &m, nil
}
