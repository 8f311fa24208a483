package cmd

import (
	"bytes"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/KaramelBytes/ckmtox/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// resetFlags restores every flag to its default so package-level flag
// variables do not leak between invocations.
func resetFlags(c *cobra.Command) {
	reset := func(fl *pflag.Flag) {
		if sv, ok := fl.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = fl.Value.Set(fl.DefValue)
		}
		fl.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCmd is a helper to execute the root command with args; it returns stdout.
func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execCmd(args...)
	if err != nil {
		t.Fatalf("command %v failed: %v\n%s", args, err, out)
	}
	return out
}

func execCmd(args ...string) (string, error) {
	resetFlags(rootCmd)
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	rootCmd.SetOut(nil)
	rootCmd.SetErr(nil)
	return buf.String(), err
}

// useTempHome isolates config and studies under a fresh HOME.
func useTempHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

// writeSurvey writes n synthetic subjects where lead raises TyG and both
// raise the risk score.
func writeSurvey(t *testing.T, path string, n int) {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	var b strings.Builder
	b.WriteString("SEQN,LBXBPB,TyG_Index,CKM_Risk_Score\n")
	for i := 0; i < n; i++ {
		lead := rng.Float64() * 10
		tyg := 8 + 0.1*lead + rng.NormFloat64()*0.2
		risk := 0.2*lead + 1.5*(tyg-8) + rng.NormFloat64()*0.3
		if i%25 == 0 {
			fmt.Fprintf(&b, "%d,,%.4f,%.4f\n", i+1, tyg, risk)
			continue
		}
		fmt.Fprintf(&b, "%d,%.4f,%.4f,%.4f\n", i+1, lead, tyg, risk)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write survey: %v", err)
	}
}

func TestCLI_StudyWorkflow(t *testing.T) {
	home := useTempHome(t)
	csvPath := filepath.Join(home, "merged.csv")
	writeSurvey(t, csvPath, 200)

	runCmd(t, "init", "lead", "-d", "integration test")
	if _, err := execCmd("init", "lead"); err == nil {
		t.Fatal("expected error re-initializing an existing study")
	}
	runCmd(t, "add", "-s", "lead", csvPath, "--desc", "synthetic")

	out := runCmd(t, "list", "--studies")
	if !strings.Contains(out, "- lead") {
		t.Fatalf("list --studies output:\n%s", out)
	}
	out = runCmd(t, "list", "--datasets", "-s", "lead")
	if !strings.Contains(out, "merged.csv") || !strings.Contains(out, "200 rows") {
		t.Fatalf("list --datasets output:\n%s", out)
	}

	out = runCmd(t, "mediate", "merged.csv", "-s", "lead", "--label", "lead-tyg-risk")
	for _, want := range []string{"[MEDIATION MODEL]", "Observations: 192 (8 incomplete rows dropped)", "[EFFECT DECOMPOSITION]", "Recorded run"} {
		if !strings.Contains(out, want) {
			t.Fatalf("mediate output missing %q:\n%s", want, out)
		}
	}

	out = runCmd(t, "dose-response", "--exposures", "0,5,10", "--workers", "2", "-s", "lead")
	if !strings.Contains(out, "[DOSE-RESPONSE]") || strings.Contains(out, "failed") {
		t.Fatalf("dose-response output:\n%s", out)
	}

	dir, err := resolveStudyDirByName("lead")
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.Open(filepath.Join(dir, "results.db"))
	if err != nil {
		t.Fatal(err)
	}
	runs, err := st.ListRuns("")
	st.Close()
	if err != nil || len(runs) != 2 {
		t.Fatalf("runs=%v err=%v", runs, err)
	}

	out = runCmd(t, "runs", "-s", "lead")
	if !strings.Contains(out, "lead-tyg-risk") || !strings.Contains(out, "(3 points, 0 failed)") {
		t.Fatalf("runs output:\n%s", out)
	}
	for _, r := range runs {
		out = runCmd(t, "runs", "show", r.ID[:8], "-s", "lead")
		if !strings.Contains(out, r.ID) {
			t.Fatalf("runs show output:\n%s", out)
		}
		if r.Kind == store.KindMediation && !strings.Contains(out, "proportion mediated=") {
			t.Fatalf("mediation run output:\n%s", out)
		}
	}
}

func TestCLI_MediateInsufficientData(t *testing.T) {
	home := useTempHome(t)
	csvPath := filepath.Join(home, "small.csv")
	writeSurvey(t, csvPath, 50)
	out, err := execCmd("mediate", csvPath)
	if err == nil || !strings.Contains(err.Error(), "insufficient") {
		t.Fatalf("expected insufficient data error, got %v\n%s", err, out)
	}
	// lowering the threshold lets the same table through
	out = runCmd(t, "mediate", csvPath, "--min-obs", "10", "--json")
	if !strings.Contains(out, `"path_a"`) || !strings.Contains(out, `"ratio_defined": true`) {
		t.Fatalf("json output:\n%s", out)
	}
}

func TestCLI_SimulateWritesTrajectoryCSV(t *testing.T) {
	home := useTempHome(t)
	csvOut := filepath.Join(home, "traj.csv")
	out := runCmd(t, "simulate", "-e", "10", "--steps", "25", "--csv", csvOut)
	if !strings.Contains(out, "[FINAL STATE]") || !strings.Contains(out, "25 samples") {
		t.Fatalf("simulate output:\n%s", out)
	}
	b, err := os.ReadFile(csvOut)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 26 || !strings.HasPrefix(lines[0], "t,Exposure,") {
		t.Fatalf("trajectory csv has %d lines, header %q", len(lines), lines[0])
	}

	if _, err := execCmd("simulate", "--set", "k_bogus=1"); err == nil {
		t.Fatal("expected unknown parameter error")
	}
	if _, err := execCmd("simulate", "--t0", "5", "--t1", "1"); err == nil {
		t.Fatal("expected invalid span error")
	}
	if _, err := execCmd("simulate", "-e", "-50"); err == nil {
		t.Fatal("expected negative exposure error")
	}
	if _, err := execCmd("dose-response", "--exposures", "1,nan"); err == nil || !strings.Contains(err.Error(), "finite") {
		t.Fatalf("expected non-finite exposure error, got %v", err)
	}
}

func TestCLI_SensitivityAndParamsFile(t *testing.T) {
	home := useTempHome(t)
	params := filepath.Join(home, "params.yaml")
	if err := os.WriteFile(params, []byte("k_tone_bp: 0.2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := runCmd(t, "sensitivity", "--param", "k_bp_relax", "--values", "0.05,0.1", "--params", params, "--csv", "-")
	if !strings.Contains(out, "Parameter: k_bp_relax") || !strings.Contains(out, "k_bp_relax,final_bp,error") {
		t.Fatalf("sensitivity output:\n%s", out)
	}
	if _, err := execCmd("sensitivity", "--param", "nope", "--values", "1"); err == nil {
		t.Fatal("expected unknown parameter error")
	}
}

func TestCLI_MergeDeriveDescribeCorrelate(t *testing.T) {
	home := useTempHome(t)
	lead := filepath.Join(home, "pbcd.csv")
	exam := filepath.Join(home, "exam.csv")
	merged := filepath.Join(home, "merged.csv")
	derived := filepath.Join(home, "derived.csv")
	if err := os.WriteFile(lead, []byte("SEQN,LBXBPB\n1,1.2\n2,4.0\n3,7.5\n4,12\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	examBody := strings.Join([]string{
		"SEQN,RIAGENDR,BMXWAIST,LBXTLG,LBDHDD,BPXOSY1,BPXODI1,LBXGH,MCQ010,MCQ160A,MCQ160B,MCQ160C,MCQ160D",
		"1,1,85,100,45,120,80,5.0,2,2,2,2,2",
		"2,2,75,160,55,125,80,5.8,2,2,2,2,2",
		"3,1,95,180,45,140,90,6.1,1,2,2,2,2",
		"4,2,99,210,40,150,95,6.8,1,1,2,2,2",
	}, "\n") + "\n"
	if err := os.WriteFile(exam, []byte(examBody), 0o644); err != nil {
		t.Fatal(err)
	}
	runCmd(t, "merge", lead, exam, "-o", merged)
	runCmd(t, "derive", merged, "-o", derived)

	out := runCmd(t, "describe", derived, "--vars", "LBXBPB,MetS_Score", "--group-by", "LBXBPB", "--outcome", "MetS_Score")
	if !strings.Contains(out, "LBXBPB (n=4)") || !strings.Contains(out, "| >10 | 1 |") {
		t.Fatalf("describe output:\n%s", out)
	}
	out = runCmd(t, "correlate", derived)
	if !strings.Contains(out, "LBXBPB ~ MetS_Score: ρ=1.000") {
		t.Fatalf("correlate output:\n%s", out)
	}
}

func TestCLI_ConfigSetAndShow(t *testing.T) {
	useTempHome(t)
	runCmd(t, "config", "set", "sim_steps", "50")
	out := runCmd(t, "config", "show")
	if !strings.Contains(out, "sim_steps: 50") {
		t.Fatalf("config show output:\n%s", out)
	}
	if _, err := execCmd("config", "set", "unknown_key", "1"); err == nil {
		t.Fatal("expected unknown key error")
	}
}

func TestCLI_MetricsFile(t *testing.T) {
	home := useTempHome(t)
	path := filepath.Join(home, "ckmtox.prom")
	runCmd(t, "dose-response", "--exposures", "1,2", "--workers", "1", "--metrics-file", path)
	if err := flushMetrics(); err != nil {
		t.Fatalf("flushMetrics: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `ckmtox_simulations_total{outcome="ok"}`) {
		t.Fatalf("metrics file:\n%s", b)
	}
}

func TestCLI_EnclosingStudyIsDefault(t *testing.T) {
	home := useTempHome(t)
	csvPath := filepath.Join(home, "cohort.csv")
	writeSurvey(t, csvPath, 150)
	runCmd(t, "init", "cwd")
	dir, err := resolveStudyDirByName("cwd")
	if err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(dir, "notes")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	t.Chdir(nested)

	runCmd(t, "add", csvPath)
	out := runCmd(t, "mediate", "cohort.csv")
	if !strings.Contains(out, "Recorded run") {
		t.Fatalf("mediate inside a study should record:\n%s", out)
	}
	out = runCmd(t, "runs")
	if !strings.Contains(out, store.KindMediation) {
		t.Fatalf("runs output:\n%s", out)
	}

	t.Chdir(home)
	if _, err := execCmd("runs"); err == nil {
		t.Fatal("expected --study error outside a study")
	}
}

func TestCLI_FetchCheckAndUpdate(t *testing.T) {
	home := useTempHome(t)
	var etag atomic.Value
	etag.Store(`"v1"`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", etag.Load().(string))
		if r.Method == http.MethodGet {
			_, _ = fmt.Fprintf(w, "HEADER RECORD %s", etag.Load())
		}
	}))
	defer srv.Close()
	runCmd(t, "config", "set", "nhanes_base_url", srv.URL+"/")
	dir := filepath.Join(home, "raw")

	runCmd(t, "fetch", "DEMO_L", "--dir", dir)
	out := runCmd(t, "fetch", "DEMO_L", "BMX_L", "--dir", dir, "--check")
	if !strings.Contains(out, "DEMO_L: unchanged") || !strings.Contains(out, "BMX_L: new") {
		t.Fatalf("check output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "BMX_L.xpt")); !os.IsNotExist(err) {
		t.Fatal("--check must not download")
	}

	etag.Store(`"v2"`)
	out = runCmd(t, "fetch", "DEMO_L", "--dir", dir, "--update")
	if !strings.Contains(out, "DEMO_L: changed") || !strings.Contains(out, "✓ DEMO_L") {
		t.Fatalf("update output:\n%s", out)
	}
	b, err := os.ReadFile(filepath.Join(dir, "DEMO_L.xpt"))
	if err != nil || string(b) != `HEADER RECORD "v2"` {
		t.Fatalf("DEMO_L.xpt = %q err=%v", b, err)
	}
}
