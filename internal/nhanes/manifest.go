package nhanes

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/KaramelBytes/ckmtox/internal/utils"
	"go.uber.org/zap"
)

// ManifestFile is kept in the data directory and records every download.
const ManifestFile = "fetch_manifest.json"

// Entry describes the last download of one table.
type Entry struct {
	SHA256       string    `json:"sha256"`
	Bytes        int64     `json:"bytes"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// Manifest maps table names to their last download.
type Manifest struct {
	LastCheck time.Time        `json:"last_check,omitempty"`
	Tables    map[string]Entry `json:"tables"`
}

// LoadManifest reads the manifest in dir. A missing file yields an empty one.
func LoadManifest(dir string) (*Manifest, error) {
	m := &Manifest{Tables: map[string]Entry{}}
	b, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(b, m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Tables == nil {
		m.Tables = map[string]Entry{}
	}
	return m, nil
}

// Save writes the manifest into dir atomically.
func (m *Manifest) Save(dir string) error {
	b, err := utils.PrettyJSON(m)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(filepath.Join(dir, ManifestFile), b)
}

func newEntry(body []byte, h http.Header) Entry {
	sum := sha256.Sum256(body)
	return Entry{
		SHA256:       hex.EncodeToString(sum[:]),
		Bytes:        int64(len(body)),
		ETag:         h.Get("ETag"),
		LastModified: h.Get("Last-Modified"),
		FetchedAt:    time.Now().UTC(),
	}
}

func recordEntry(dir, table string, e Entry) error {
	m, err := LoadManifest(dir)
	if err != nil {
		return err
	}
	m.Tables[table] = e
	return m.Save(dir)
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Check statuses.
const (
	StatusNew       = "new"
	StatusChanged   = "changed"
	StatusUnchanged = "unchanged"
)

// CheckResult is the update status of one table.
type CheckResult struct {
	Table  string
	Status string
	Reason string
	Err    error
}

// NeedsFetch reports whether the table should be downloaded again.
func (c CheckResult) NeedsFetch() bool {
	return c.Err == nil && (c.Status == StatusNew || c.Status == StatusChanged)
}

// Check compares each table in dir against the manifest and the server. A
// table is new when its file is missing and changed when the file no longer
// matches the recorded hash or the server reports a different ETag or
// Last-Modified. The server is asked with a single HEAD request per table.
func (f *Fetcher) Check(ctx context.Context, tables []string, dir string) ([]CheckResult, error) {
	m, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}
	out := make([]CheckResult, 0, len(tables))
	var errs []error
	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res := f.check(ctx, strings.ToUpper(strings.TrimSpace(t)), dir, m)
		if res.Err != nil {
			errs = append(errs, res.Err)
			f.log().Warn("update check failed", zap.String("table", res.Table), zap.Error(res.Err))
		}
		out = append(out, res)
	}
	if _, err := os.Stat(dir); err == nil {
		m.LastCheck = time.Now().UTC()
		if err := m.Save(dir); err != nil {
			errs = append(errs, err)
		}
	}
	return out, errors.Join(errs...)
}

func (f *Fetcher) check(ctx context.Context, table, dir string, m *Manifest) CheckResult {
	res := CheckResult{Table: table}
	if !tableName.MatchString(table) {
		res.Err = fmt.Errorf("invalid table name %q", table)
		return res
	}
	path := filepath.Join(dir, table+".xpt")
	sum, err := fileSHA256(path)
	if errors.Is(err, os.ErrNotExist) {
		res.Status, res.Reason = StatusNew, "not downloaded"
		return res
	}
	if err != nil {
		res.Err = err
		return res
	}
	entry, ok := m.Tables[table]
	switch {
	case !ok:
		res.Status, res.Reason = StatusChanged, "no recorded download"
		return res
	case entry.SHA256 != sum:
		res.Status, res.Reason = StatusChanged, "local file differs from recorded download"
		return res
	}

	resp, err := f.do(ctx, http.MethodHead, table)
	if err != nil {
		res.Err = err
		return res
	}
	resp.Body.Close()
	etag, modified := resp.Header.Get("ETag"), resp.Header.Get("Last-Modified")
	switch {
	case entry.ETag != "" && etag != "" && etag != entry.ETag:
		res.Status, res.Reason = StatusChanged, "server ETag changed"
	case entry.LastModified != "" && modified != "" && modified != entry.LastModified:
		res.Status, res.Reason = StatusChanged, "server Last-Modified changed"
	default:
		res.Status = StatusUnchanged
	}
	return res
}
