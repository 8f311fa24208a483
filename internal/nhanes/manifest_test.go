package nhanes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// xptServer serves body for every table with the current etag and counts
// requests by method.
type xptServer struct {
	body  atomic.Value
	etag  atomic.Value
	gets  atomic.Int32
	heads atomic.Int32
}

func newXPTServer(t *testing.T, body, etag string) (*xptServer, *httptest.Server) {
	t.Helper()
	s := &xptServer{}
	s.body.Store(body)
	s.etag.Store(etag)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", s.etag.Load().(string))
		w.Header().Set("Last-Modified", "Tue, 01 Oct 2024 00:00:00 GMT")
		switch r.Method {
		case http.MethodHead:
			s.heads.Add(1)
		case http.MethodGet:
			s.gets.Add(1)
			_, _ = w.Write([]byte(s.body.Load().(string)))
		}
	}))
	t.Cleanup(srv.Close)
	return s, srv
}

func TestFetchRecordsManifestEntry(t *testing.T) {
	_, srv := newXPTServer(t, "HEADER RECORD v1", `"v1"`)
	dir := t.TempDir()
	_, err := NewFetcher(srv.URL, time.Second, nil).Fetch(context.Background(), "DEMO_L", dir)
	require.NoError(t, err)

	m, err := LoadManifest(dir)
	require.NoError(t, err)
	e, ok := m.Tables["DEMO_L"]
	require.True(t, ok, "manifest entry missing")
	assert.Equal(t, int64(len("HEADER RECORD v1")), e.Bytes)
	assert.Equal(t, `"v1"`, e.ETag)
	assert.Equal(t, "Tue, 01 Oct 2024 00:00:00 GMT", e.LastModified)
	sum, err := fileSHA256(filepath.Join(dir, "DEMO_L.xpt"))
	require.NoError(t, err)
	assert.Equal(t, sum, e.SHA256)
	assert.False(t, e.FetchedAt.IsZero())
}

func TestLoadManifestMissingIsEmpty(t *testing.T) {
	m, err := LoadManifest(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, m.Tables)
}

func TestCheckReportsStatuses(t *testing.T) {
	s, srv := newXPTServer(t, "HEADER RECORD v1", `"v1"`)
	dir := t.TempDir()
	f := NewFetcher(srv.URL, time.Second, nil)
	ctx := context.Background()
	_, err := f.FetchAll(ctx, []string{"DEMO_L", "BMX_L"}, dir)
	require.NoError(t, err)

	checks, err := f.Check(ctx, []string{"DEMO_L", "BMX_L", "GHB_L"}, dir)
	require.NoError(t, err)
	require.Len(t, checks, 3)
	assert.Equal(t, StatusUnchanged, checks[0].Status)
	assert.Equal(t, StatusUnchanged, checks[1].Status)
	assert.Equal(t, StatusNew, checks[2].Status)
	assert.True(t, checks[2].NeedsFetch())
	assert.Equal(t, int32(2), s.heads.Load())

	// Server publishes a new release; BMX_L is edited locally.
	s.etag.Store(`"v2"`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "BMX_L.xpt"), []byte("edited"), 0o644))
	checks, err = f.Check(ctx, []string{"DEMO_L", "BMX_L"}, dir)
	require.NoError(t, err)
	assert.Equal(t, StatusChanged, checks[0].Status)
	assert.Contains(t, checks[0].Reason, "ETag")
	assert.Equal(t, StatusChanged, checks[1].Status)
	assert.Contains(t, checks[1].Reason, "local file")
	assert.Equal(t, int32(2), s.gets.Load(), "check must not download")

	m, err := LoadManifest(dir)
	require.NoError(t, err)
	assert.False(t, m.LastCheck.IsZero())
}

func TestCheckUnrecordedFileIsChanged(t *testing.T) {
	_, srv := newXPTServer(t, "x", `"v1"`)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "PBCD_L.xpt"), []byte("manual copy"), 0o644))
	checks, err := NewFetcher(srv.URL, time.Second, nil).Check(context.Background(), []string{"PBCD_L"}, dir)
	require.NoError(t, err)
	assert.Equal(t, StatusChanged, checks[0].Status)
	assert.True(t, checks[0].NeedsFetch())
}

func TestCheckHTTPErrorIsReported(t *testing.T) {
	_, srv := newXPTServer(t, "v1", `"v1"`)
	dir := t.TempDir()
	_, err := NewFetcher(srv.URL, time.Second, nil).Fetch(context.Background(), "DEMO_L", dir)
	require.NoError(t, err)
	srv.Close()

	checks, err := NewFetcher(srv.URL, time.Second, nil).Check(context.Background(), []string{"DEMO_L"}, dir)
	require.Error(t, err)
	require.Len(t, checks, 1)
	assert.Error(t, checks[0].Err)
	assert.False(t, checks[0].NeedsFetch())
}

func TestRefetchReplacesFileAndManifest(t *testing.T) {
	s, srv := newXPTServer(t, "HEADER RECORD v1", `"v1"`)
	dir := t.TempDir()
	f := NewFetcher(srv.URL, time.Second, nil)
	ctx := context.Background()
	_, err := f.Fetch(ctx, "DEMO_L", dir)
	require.NoError(t, err)

	s.body.Store("HEADER RECORD v2 with more rows")
	s.etag.Store(`"v2"`)
	res, err := f.Fetch(ctx, "DEMO_L", dir)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	res, err = f.Refetch(ctx, "DEMO_L", dir)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	b, err := os.ReadFile(filepath.Join(dir, "DEMO_L.xpt"))
	require.NoError(t, err)
	assert.Equal(t, "HEADER RECORD v2 with more rows", string(b))

	checks, err := f.Check(ctx, []string{"DEMO_L"}, dir)
	require.NoError(t, err)
	assert.Equal(t, StatusUnchanged, checks[0].Status)
}
