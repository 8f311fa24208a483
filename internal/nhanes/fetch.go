// Package nhanes downloads NHANES public-release data files.
package nhanes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/KaramelBytes/ckmtox/internal/utils"
	"go.uber.org/zap"
)

// DefaultBaseURL is the 2021-2023 cycle data file directory.
const DefaultBaseURL = "https://wwwn.cdc.gov/Nchs/Data/Nhanes/Public/2021/DataFiles/"

// DefaultTables are the files the CKM analysis merges.
var DefaultTables = []string{"PBCD_L", "DEMO_L", "BPXO_L", "BMX_L", "HDL_L", "TRIGLY_L", "GHB_L", "MCQ_L"}

// maxFileBytes caps a single download.
const maxFileBytes = 512 << 20

var tableName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Fetcher downloads <BaseURL><TABLE>.xpt files.
type Fetcher struct {
	Client  *http.Client
	BaseURL string
	Logger  *zap.Logger
}

// NewFetcher returns a Fetcher with the given timeout; zero selects 120s.
func NewFetcher(baseURL string, timeout time.Duration, logger *zap.Logger) *Fetcher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{Client: &http.Client{Timeout: timeout}, BaseURL: baseURL, Logger: logger}
}

// Result describes one table download.
type Result struct {
	Table   string
	Path    string
	Bytes   int64
	Skipped bool
	Err     error
}

// Fetch downloads one table into dir. An existing file is left untouched
// and reported as skipped.
func (f *Fetcher) Fetch(ctx context.Context, table, dir string) (Result, error) {
	return f.fetch(ctx, table, dir, false)
}

// Refetch downloads one table into dir, replacing any existing file.
func (f *Fetcher) Refetch(ctx context.Context, table, dir string) (Result, error) {
	return f.fetch(ctx, table, dir, true)
}

func (f *Fetcher) fetch(ctx context.Context, table, dir string, replace bool) (Result, error) {
	table = strings.ToUpper(strings.TrimSpace(table))
	res := Result{Table: table}
	if !tableName.MatchString(table) {
		return res, fmt.Errorf("invalid table name %q", table)
	}
	res.Path = filepath.Join(dir, table+".xpt")
	if st, err := os.Stat(res.Path); err == nil && !replace {
		res.Skipped, res.Bytes = true, st.Size()
		f.log().Debug("file exists, skipping", zap.String("table", table), zap.String("path", res.Path))
		return res, nil
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return res, fmt.Errorf("stat %s: %w", res.Path, err)
	}
	if err := utils.EnsureDir(dir); err != nil {
		return res, fmt.Errorf("create data dir: %w", err)
	}

	resp, err := f.do(ctx, http.MethodGet, table)
	if err != nil {
		return res, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFileBytes+1))
	if err != nil {
		return res, fmt.Errorf("read %s: %w", table, err)
	}
	if len(body) > maxFileBytes {
		return res, fmt.Errorf("download %s: exceeds %d bytes", table, maxFileBytes)
	}
	if err := utils.SafeWriteFile(res.Path, body); err != nil {
		return res, err
	}
	res.Bytes = int64(len(body))
	f.log().Info("saved", zap.String("table", table), zap.Int64("bytes", res.Bytes))

	entry := newEntry(body, resp.Header)
	if err := recordEntry(dir, table, entry); err != nil {
		return res, err
	}
	return res, nil
}

// do issues one request for table and fails on a non-2xx status. The caller
// closes the body.
func (f *Fetcher) do(ctx context.Context, method, table string) (*http.Response, error) {
	url := strings.TrimRight(f.BaseURL, "/") + "/" + table + ".xpt"
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	f.log().Info("request", zap.String("method", method), zap.String("table", table), zap.String("url", url))
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", strings.ToLower(method), table, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: http %d", strings.ToLower(method), table, resp.StatusCode)
	}
	return resp, nil
}

// FetchAll downloads each table in turn. A failed table is recorded on its
// result and the rest still run; the returned error joins every failure.
func (f *Fetcher) FetchAll(ctx context.Context, tables []string, dir string) ([]Result, error) {
	out := make([]Result, 0, len(tables))
	var errs []error
	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := f.Fetch(ctx, t, dir)
		if err != nil {
			res.Err = err
			errs = append(errs, err)
			f.log().Warn("download failed", zap.String("table", res.Table), zap.Error(err))
		}
		out = append(out, res)
	}
	return out, errors.Join(errs...)
}

func (f *Fetcher) log() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}
