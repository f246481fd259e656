package metadata

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Artifact kinds recorded in a run manifest.
const (
	KindBenchmarkCSV   = "benchmark_csv"
	KindLatencyParquet = "latency_parquet"
	KindLatencyPlot    = "latency_plot"
	KindMbpJSON        = "mbp_json"
	KindMbpParquet     = "mbp_parquet"
	KindVisualization  = "visualization"
)

// ManifestFile is the manifest name inside the artifacts root.
const ManifestFile = "manifest.json"

// Artifact describes a single file produced by a run.
type Artifact struct {
	Path        string            `json:"path"`
	Kind        string            `json:"kind"`
	FileSize    int64             `json:"file_size_in_bytes"`
	RecordCount int64             `json:"record_count,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// RunManifest lists the inputs and artifacts of one run.
type RunManifest struct {
	FormatVersion int        `json:"format-version"`
	RunID         string     `json:"run-id"`
	Name          string     `json:"name"`
	Version       string     `json:"version"`
	Location      string     `json:"location,omitempty"`
	StartedAt     time.Time  `json:"started-at"`
	FinishedAt    time.Time  `json:"finished-at"`
	Inputs        []string   `json:"inputs"`
	Artifacts     []Artifact `json:"artifacts"`
}

// Generator accumulates artifacts for a run rooted at basePath. It is safe
// for concurrent use.
type Generator struct {
	mu       sync.Mutex
	basePath string
	manifest RunManifest
	now      func() time.Time
}

// NewGenerator starts a run manifest with a fresh run id.
func NewGenerator(basePath, name, version string) *Generator {
	g := &Generator{basePath: basePath, now: time.Now}
	g.manifest = RunManifest{
		FormatVersion: 1,
		RunID:         uuid.NewString(),
		Name:          name,
		Version:       version,
		StartedAt:     g.now().UTC(),
		Inputs:        []string{},
		Artifacts:     []Artifact{},
	}
	return g
}

// RunID identifies the run.
func (g *Generator) RunID() string { return g.manifest.RunID }

// SetLocation records where the artifacts were uploaded.
func (g *Generator) SetLocation(loc string) {
	g.mu.Lock()
	g.manifest.Location = loc
	g.mu.Unlock()
}

// AddInput records an input file.
func (g *Generator) AddInput(path string) {
	g.mu.Lock()
	g.manifest.Inputs = append(g.manifest.Inputs, path)
	g.mu.Unlock()
}

// AddFile records an artifact. Paths under the base path are stored
// relative to it.
func (g *Generator) AddFile(kind, path string, records int64, labels map[string]string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat artifact: %w", err)
	}
	rel := path
	if r, err := filepath.Rel(g.basePath, path); err == nil && !filepath.IsAbs(r) && r != ".." && !hasParentPrefix(r) {
		rel = filepath.ToSlash(r)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.manifest.Artifacts = append(g.manifest.Artifacts, Artifact{
		Path:        rel,
		Kind:        kind,
		FileSize:    info.Size(),
		RecordCount: records,
		Labels:      labels,
	})
	return nil
}

// AddFiles records several artifacts of the same kind.
func (g *Generator) AddFiles(kind string, paths []string) error {
	for _, p := range paths {
		if err := g.AddFile(kind, p, 0, nil); err != nil {
			return err
		}
	}
	return nil
}

// AddDir records every regular file under dir. A missing dir adds nothing.
func (g *Generator) AddDir(kind, dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return g.AddFile(kind, p, 0, nil)
	})
}

func hasParentPrefix(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}

// Manifest returns a copy of the current manifest.
func (g *Generator) Manifest() RunManifest {
	g.mu.Lock()
	defer g.mu.Unlock()
	m := g.manifest
	m.Inputs = append([]string(nil), g.manifest.Inputs...)
	m.Artifacts = append([]Artifact(nil), g.manifest.Artifacts...)
	return m
}

// Write stamps the finish time and writes the manifest into the base path.
func (g *Generator) Write() (string, error) {
	g.mu.Lock()
	g.manifest.FinishedAt = g.now().UTC()
	sort.SliceStable(g.manifest.Artifacts, func(i, j int) bool {
		return g.manifest.Artifacts[i].Path < g.manifest.Artifacts[j].Path
	})
	b, err := json.MarshalIndent(g.manifest, "", "  ")
	g.mu.Unlock()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(g.basePath, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(g.basePath, ManifestFile)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// WriteCatalogEntry creates a catalog entry pointing at the run manifest.
func (g *Generator) WriteCatalogEntry(catalogDir string) error {
	m := g.Manifest()
	entry := map[string]any{
		"name":              m.Name,
		"run_id":            m.RunID,
		"manifest_location": filepath.Join(g.basePath, ManifestFile),
		"location":          m.Location,
		"artifacts":         len(m.Artifacts),
		"finished_at":       m.FinishedAt,
	}
	if err := os.MkdirAll(catalogDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(catalogDir, fmt.Sprintf("%s.json", m.RunID))
	b, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
