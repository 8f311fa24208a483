// Package study manages on-disk study workspaces: the registered survey
// datasets and the results database that analyses write to.
package study

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/KaramelBytes/ckmtox/internal/survey"
	"github.com/KaramelBytes/ckmtox/internal/utils"
	"github.com/google/uuid"
)

const resultsDBName = "results.db"

// Study is a workspace persisted as study.json.
type Study struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Datasets    map[string]*Dataset `json:"datasets"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`

	rootDir string
}

// New constructs an in-memory study. Call Save to persist.
func New(name, description, rootDir string) *Study {
	now := time.Now()
	return &Study{
		Name:        name,
		Description: description,
		Datasets:    make(map[string]*Dataset),
		CreatedAt:   now,
		UpdatedAt:   now,
		rootDir:     rootDir,
	}
}

// Load reads study.json from dir.
func Load(dir string) (*Study, error) {
	path := filepath.Join(dir, utils.StudyFileName)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("study not found at %s: %w", path, err)
		}
		return nil, fmt.Errorf("read study: %w", err)
	}
	var s Study
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse study: %w", err)
	}
	if s.Datasets == nil {
		s.Datasets = make(map[string]*Dataset)
	}
	s.rootDir = dir
	return &s, nil
}

// RootDir returns the on-disk study directory.
func (s *Study) RootDir() string { return s.rootDir }

// ResultsDBPath is the sqlite file analyses record their runs in.
func (s *Study) ResultsDBPath() string { return filepath.Join(s.rootDir, resultsDBName) }

// Save writes study.json atomically.
func (s *Study) Save() error {
	if s.rootDir == "" {
		return errors.New("study root directory not set")
	}
	if err := utils.EnsureDir(s.rootDir); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	s.UpdatedAt = time.Now()
	data, err := utils.PrettyJSON(s)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(filepath.Join(s.rootDir, utils.StudyFileName), data)
}

// AddDataset reads the CSV header and row count and registers the file.
func (s *Study) AddDataset(path, description string) (*Dataset, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	t, err := survey.ReadCSV(abs, survey.Options{})
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat dataset: %w", err)
	}
	d := &Dataset{
		ID:          uuid.NewString(),
		Path:        abs,
		Name:        filepath.Base(abs),
		Description: strings.TrimSpace(description),
		Rows:        t.Rows(),
		Columns:     t.Columns(),
		AddedAt:     info.ModTime(),
	}
	if s.Datasets == nil {
		s.Datasets = make(map[string]*Dataset)
	}
	s.Datasets[d.ID] = d
	s.UpdatedAt = time.Now()
	return d, nil
}

// Dataset finds a dataset by id, id prefix or file name.
func (s *Study) Dataset(ref string) (*Dataset, error) {
	if d, ok := s.Datasets[ref]; ok {
		return d, nil
	}
	var hits []*Dataset
	for _, d := range s.Datasets {
		if d.Name == ref || strings.HasPrefix(d.ID, ref) {
			hits = append(hits, d)
		}
	}
	switch len(hits) {
	case 0:
		return nil, fmt.Errorf("dataset %q not found in study %s", ref, s.Name)
	case 1:
		return hits[0], nil
	}
	return nil, fmt.Errorf("dataset reference %q is ambiguous (%d matches)", ref, len(hits))
}

// List returns datasets ordered by name then id.
func (s *Study) List() []*Dataset {
	out := make([]*Dataset, 0, len(s.Datasets))
	for _, d := range s.Datasets {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}
