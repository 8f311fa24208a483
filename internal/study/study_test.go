package study_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/KaramelBytes/ckmtox/internal/study"
)

func TestStudySaveLoadWithDatasets(t *testing.T) {
	tdir := t.TempDir()
	csv := filepath.Join(tdir, "merged.csv")
	if err := os.WriteFile(csv, []byte("SEQN,LBXBPB\n1,1.2\n2,3.4\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := study.New("lead", "lead and CKM", filepath.Join(tdir, "lead"))
	d, err := s.AddDataset(csv, " merged cycle ")
	if err != nil {
		t.Fatalf("add dataset: %v", err)
	}
	if d.Rows != 2 || len(d.Columns) != 2 || d.Description != "merged cycle" {
		t.Fatalf("unexpected dataset %+v", d)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := study.Load(s.RootDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Name != "lead" || len(loaded.Datasets) != 1 {
		t.Fatalf("loaded %+v", loaded)
	}
	byName, err := loaded.Dataset("merged.csv")
	if err != nil || byName.ID != d.ID {
		t.Fatalf("lookup by name: %v", err)
	}
	byPrefix, err := loaded.Dataset(d.ID[:8])
	if err != nil || byPrefix.ID != d.ID {
		t.Fatalf("lookup by prefix: %v", err)
	}
	if _, err := loaded.Dataset("nope"); err == nil {
		t.Fatal("expected not found")
	}
	if got := loaded.ResultsDBPath(); got != filepath.Join(tdir, "lead", "results.db") {
		t.Fatalf("results db path %s", got)
	}
}

func TestLoadMissingStudy(t *testing.T) {
	if _, err := study.Load(t.TempDir()); err == nil {
		t.Fatal("expected error for missing study.json")
	}
}

func TestAddDatasetRejectsMissingFile(t *testing.T) {
	s := study.New("x", "", t.TempDir())
	if _, err := s.AddDataset(filepath.Join(t.TempDir(), "none.csv"), ""); err == nil {
		t.Fatal("expected error")
	}
}
