package report

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/KaramelBytes/ckmtox/internal/cellsim"
	"github.com/KaramelBytes/ckmtox/internal/mediation"
	"github.com/KaramelBytes/ckmtox/internal/survey"
)

func TestMediationMarkdown(t *testing.T) {
	r := &mediation.Result{
		N:             300,
		Dropped:       4,
		PathA:         mediation.SimpleFit{Slope: 0.2, StdErr: 0.01, P: 1e-9, R: 0.6},
		PathB:         mediation.MultipleFit{B: 1.5, StdErrB: 0.1, PB: 0.002, Direct: 0.1, R2: 0.4},
		PathC:         mediation.SimpleFit{Slope: 0.4, StdErr: 0.05, P: 0.03},
		Decomposition: mediation.Decompose(0.2, 1.5, 0.4, 0.1, 0),
	}
	md := Mediation(Variables{X: "LBXBPB", M: "TyG_Index", Y: "CKM_Risk_Score"}, r)
	for _, want := range []string{
		"[MEDIATION MODEL]", "[PATHS]", "[EFFECT DECOMPOSITION]",
		"4 incomplete rows dropped", "p=<0.0001", "p=0.0300",
		"Indirect (a×b): 0.3", "Proportion mediated: 75.00%",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("missing %q in:\n%s", want, md)
		}
	}

	r.Decomposition = mediation.Decompose(0.2, 1.5, 0, 0.1, 0)
	md = Mediation(Variables{X: "x", M: "m", Y: "y"}, r)
	if !strings.Contains(md, "Proportion mediated: undefined") {
		t.Fatalf("undefined ratio not reported:\n%s", md)
	}
}

func TestDoseResponseMarkdownMarksFailures(t *testing.T) {
	pts := []cellsim.DosePoint{
		{Exposure: 1, FinalBP: 121.25},
		{Exposure: 2, FinalBP: math.NaN(), Err: errors.New("integration failed")},
	}
	md := DoseResponse(pts)
	if !strings.Contains(md, "| 1 | 121.25 |") || !strings.Contains(md, "| 2 | failed |") {
		t.Fatalf("unexpected table:\n%s", md)
	}
	if !strings.Contains(md, "[FAILED RUNS] 1 of 2") || !strings.Contains(md, "exposure 2: integration failed") {
		t.Fatalf("failures not listed:\n%s", md)
	}
}

func TestSensitivityMarkdown(t *testing.T) {
	md := Sensitivity("k_tone_bp", 10, []cellsim.SensitivityPoint{{Value: 0.1, FinalBP: 130}})
	if !strings.Contains(md, "Parameter: k_tone_bp") || strings.Contains(md, "[FAILED RUNS]") {
		t.Fatalf("unexpected output:\n%s", md)
	}
}

func TestSurveyBlocks(t *testing.T) {
	md := Correlations([]survey.Correlation{{X: "LBXBPB", Y: "TyG_Index", Rho: 0.123, P: 0.5, N: 40}})
	if !strings.Contains(md, "LBXBPB ~ TyG_Index: ρ=0.123, p=0.5000, n=40") {
		t.Fatalf("correlations:\n%s", md)
	}
	md = Groups("CKM_Risk_Score", []survey.Group{{Label: "<3", Count: 0, Mean: math.NaN(), Std: math.NaN()}})
	if !strings.Contains(md, "| <3 | 0 | NaN | NaN |") {
		t.Fatalf("groups:\n%s", md)
	}
	md = Summaries([]survey.Summary{survey.Describe("lead", []float64{1, 2, 3})})
	if !strings.Contains(md, "lead (n=3): mean 2, median 2") {
		t.Fatalf("summaries:\n%s", md)
	}
}

func TestWriteTrajectoryCSV(t *testing.T) {
	tr, err := cellsim.Integrate(cellsim.DefaultState(1), cellsim.DefaultParams(), cellsim.Span{T0: 0, T1: 1, Steps: 3})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := WriteTrajectoryCSV(&buf, tr); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "t,Exposure,ROS,") || !strings.HasSuffix(lines[0], ",BloodPressure") {
		t.Fatalf("header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "0,1,1,100,") {
		t.Fatalf("first row %q", lines[1])
	}
}

func TestWriteDoseCSVEmptyForFailed(t *testing.T) {
	var buf bytes.Buffer
	err := WriteDoseCSV(&buf, []cellsim.DosePoint{
		{Exposure: 0, FinalBP: 120},
		{Exposure: 5, FinalBP: math.NaN(), Err: errors.New("x")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "exposure,final_bp,error\n0,120,\n5,,x\n" {
		t.Fatalf("csv %q", got)
	}
}
