package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapstream/mapstream/internal/catalog"
	"github.com/mapstream/mapstream/internal/testutil"
)

func newTestService(t *testing.T, cfg catalog.Config) *catalog.Service {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	return catalog.NewService(tdb.Conn, cfg, nil, tdb.Logger)
}

func sampleManifest() []catalog.ManifestMap {
	return []catalog.ManifestMap{
		{Name: "Aip-Gores", Category: "Main", Stars: 3, Points: 12, Author: "Aip", ReleaseDate: "2019-04-01", Size: 120000},
		{Name: "Baluvera", Category: "Main", Stars: 1, Points: 4, Author: "Bal", ReleaseDate: "2020-01-15", Size: 80000},
		{Name: "claustrophobia", Category: "Extra", Stars: 5, Points: 30, Author: "Clau", ReleaseDate: "2021-06-30", Size: 250000},
	}
}

func TestService_ImportAndList(t *testing.T) {
	svc := newTestService(t, catalog.Config{})
	ctx := context.Background()

	imported, err := svc.Import(ctx, sampleManifest())
	require.NoError(t, err)
	assert.Equal(t, 3, imported)

	maps, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, maps, 3)

	// Case-insensitive name order.
	assert.Equal(t, "Aip-Gores", maps[0].Name)
	assert.Equal(t, "Baluvera", maps[1].Name)
	assert.Equal(t, "claustrophobia", maps[2].Name)
	assert.Equal(t, 3, maps[0].Stars)
	assert.False(t, maps[0].Downloaded)
}

func TestService_ImportUpsertKeepsDownloadedFlag(t *testing.T) {
	svc := newTestService(t, catalog.Config{})
	ctx := context.Background()

	_, err := svc.Import(ctx, sampleManifest())
	require.NoError(t, err)

	maps, err := svc.List(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.MarkDownloaded(ctx, maps[0].ID, "/data/maps/Aip-Gores.map"))

	// Re-import with updated metadata for the same map.
	updated := sampleManifest()
	updated[0].Stars = 4
	_, err = svc.Import(ctx, updated)
	require.NoError(t, err)

	m, err := svc.Get(ctx, maps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 4, m.Stars)
	assert.True(t, m.Downloaded, "upsert must not reset the downloaded flag")
	assert.Equal(t, "/data/maps/Aip-Gores.map", m.LocalPath)

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count, "re-import must not duplicate rows")
}

func TestService_URLsAndDestination(t *testing.T) {
	svc := newTestService(t, catalog.Config{
		MapsBaseURL:     "https://maps.example.com/maps",
		PreviewsBaseURL: "https://previews.example.com",
		DownloadDir:     "/data/maps",
	})

	m := &catalog.Map{Name: "Aip-Gores", Category: "Main", Stars: 3}
	assert.Equal(t, "https://maps.example.com/maps/Main/3star/Aip-Gores.map", svc.MapURL(m))
	assert.Equal(t, "https://previews.example.com/thumbnails/Aip-Gores.png", svc.ThumbnailURL("Aip-Gores"))
	assert.Equal(t, "/data/maps/Aip-Gores.map", svc.DestinationFor("Aip-Gores"))
}

func TestService_TasksFor(t *testing.T) {
	svc := newTestService(t, catalog.Config{
		MapsBaseURL: "https://maps.example.com/maps",
		DownloadDir: "/data/maps",
	})
	ctx := context.Background()

	_, err := svc.Import(ctx, sampleManifest())
	require.NoError(t, err)

	maps, err := svc.List(ctx)
	require.NoError(t, err)

	// Request in reverse order with one unknown id in the middle.
	ids := []int64{maps[2].ID, 9999, maps[0].ID}
	tasks, err := svc.TasksFor(ctx, ids, true)
	require.NoError(t, err)
	require.Len(t, tasks, 2, "unknown ids are dropped")

	assert.Equal(t, maps[2].ID, tasks[0].ID)
	assert.Equal(t, maps[0].ID, tasks[1].ID)
	assert.Equal(t, "https://maps.example.com/maps/Extra/5star/claustrophobia.map", tasks[0].URL)
	assert.Equal(t, "/data/maps/claustrophobia.map", tasks[0].Destination)
	assert.Equal(t, int64(250000), tasks[0].ExpectedSize)
	assert.True(t, tasks[0].SkipIfExists)

	tasks, err = svc.TasksFor(ctx, []int64{maps[0].ID}, false)
	require.NoError(t, err)
	assert.False(t, tasks[0].SkipIfExists)
}

func TestService_Refresh(t *testing.T) {
	manifest := catalog.Manifest{
		Version:  "2026-08-01",
		MapCount: 3,
		Maps:     sampleManifest(),
	}
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		_ = json.NewEncoder(w).Encode(manifest)
	}))
	defer server.Close()

	svc := newTestService(t, catalog.Config{ManifestURL: server.URL})
	ctx := context.Background()

	result, err := svc.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, "2026-08-01", result.Version)
	assert.Equal(t, 3, result.Imported)
	assert.Len(t, result.NewMaps, 3)

	version, err := svc.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-01", version)

	// Same version and count: no re-import.
	result, err = svc.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Empty(t, result.NewMaps)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestService_RefreshDetectsNewMaps(t *testing.T) {
	maps := sampleManifest()
	manifest := catalog.Manifest{Version: "v1", MapCount: len(maps), Maps: maps}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(manifest)
	}))
	defer server.Close()

	svc := newTestService(t, catalog.Config{ManifestURL: server.URL})
	ctx := context.Background()

	_, err := svc.Refresh(ctx)
	require.NoError(t, err)

	manifest.Version = "v2"
	manifest.Maps = append(manifest.Maps, catalog.ManifestMap{
		Name: "Darkvine", Category: "Main", Stars: 2, Points: 8, Author: "Dar", Size: 64000,
	})
	manifest.MapCount = len(manifest.Maps)

	result, err := svc.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, []string{"Darkvine"}, result.NewMaps)
}

func TestService_RefreshHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	svc := newTestService(t, catalog.Config{ManifestURL: server.URL})
	_, err := svc.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 503")
}

func TestService_Settings(t *testing.T) {
	svc := newTestService(t, catalog.Config{})
	ctx := context.Background()

	value, err := svc.GetSetting(ctx, "theme")
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, svc.SetSetting(ctx, "theme", "dark"))
	require.NoError(t, svc.SetSetting(ctx, "theme", "light"))

	value, err = svc.GetSetting(ctx, "theme")
	require.NoError(t, err)
	assert.Equal(t, "light", value)
}
