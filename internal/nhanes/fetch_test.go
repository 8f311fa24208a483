package nhanes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetchWritesFileAndSkipsExisting(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.Method != http.MethodGet || r.URL.Path != "/files/PBCD_L.xpt" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("HEADER RECORD*******LIBRARY"))
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "raw")
	f := NewFetcher(srv.URL+"/files/", 2*time.Second, nil)
	res, err := f.Fetch(context.Background(), "pbcd_l", dir)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Skipped || res.Bytes != 27 || res.Table != "PBCD_L" {
		t.Fatalf("unexpected result %+v", res)
	}
	b, err := os.ReadFile(filepath.Join(dir, "PBCD_L.xpt"))
	if err != nil || !strings.HasPrefix(string(b), "HEADER RECORD") {
		t.Fatalf("file content %q err=%v", b, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "PBCD_L.xpt.tmp")); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind")
	}

	res, err = f.Fetch(context.Background(), "PBCD_L", dir)
	if err != nil || !res.Skipped {
		t.Fatalf("second fetch should skip: %+v err=%v", res, err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("expected 1 request, got %d", n)
	}
}

func TestFetchHTTPErrorLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	dir := t.TempDir()
	_, err := NewFetcher(srv.URL, time.Second, nil).Fetch(context.Background(), "DEMO_L", dir)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "DEMO_L.xpt")); !os.IsNotExist(err) {
		t.Fatalf("file should not exist")
	}
}

func TestFetchRejectsBadTableName(t *testing.T) {
	_, err := NewFetcher("http://127.0.0.1:1/", time.Second, nil).Fetch(context.Background(), "../etc/passwd", t.TempDir())
	if err == nil {
		t.Fatal("expected invalid table name error")
	}
}

func TestFetchAllContinuesPastFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/BAD.xpt") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	results, err := NewFetcher(srv.URL+"/", time.Second, nil).FetchAll(context.Background(), []string{"A", "BAD", "C"}, t.TempDir())
	if err == nil {
		t.Fatal("expected joined error")
	}
	if len(results) != 3 {
		t.Fatalf("results %+v", results)
	}
	if results[0].Err != nil || results[1].Err == nil || results[2].Err != nil {
		t.Fatalf("unexpected per-table errors %+v", results)
	}
}
