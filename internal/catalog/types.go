package catalog

// Map is one catalog entry, as stored in the database.
type Map struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Stars       int    `json:"stars"`
	Points      int    `json:"points"`
	Author      string `json:"author"`
	ReleaseDate string `json:"releaseDate"`
	Size        int64  `json:"size"`
	Downloaded  bool   `json:"downloaded"`
	LocalPath   string `json:"localPath,omitempty"`
}

// Manifest is the remote catalog index.
type Manifest struct {
	Version  string        `json:"version"`
	MapCount int           `json:"count"`
	Maps     []ManifestMap `json:"maps"`
}

// ManifestMap is one entry in the remote manifest.
type ManifestMap struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Stars       int    `json:"stars"`
	Points      int    `json:"points"`
	Author      string `json:"author"`
	ReleaseDate string `json:"release_date"`
	Size        int64  `json:"size"`
}

// RefreshResult summarizes a manifest refresh.
type RefreshResult struct {
	Version  string   `json:"version"`
	Imported int      `json:"imported"`
	Changed  bool     `json:"changed"`
	NewMaps  []string `json:"newMaps,omitempty"`
}
