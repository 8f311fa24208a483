package survey

import (
	"fmt"
	"math"
)

// Derived column names added by DeriveCKM.
const (
	ColHighWaist   = "High_Waist"
	ColHighTG      = "High_TG"
	ColLowHDL      = "Low_HDL"
	ColHighBP      = "High_BP"
	ColHighGlucose = "High_Glucose"
	ColMetS        = "MetS_Score"
	ColTyG         = "TyG_Index"
	ColRiskScore   = "CKM_Risk_Score"
	ColStage       = "CKM_Stage"
)

// CKMColumns names the source columns DeriveCKM reads. Empty names are
// treated as all-missing.
type CKMColumns struct {
	Gender        string `yaml:"gender" json:"gender"`
	Waist         string `yaml:"waist" json:"waist"`
	Triglycerides string `yaml:"triglycerides" json:"triglycerides"`
	HDL           string `yaml:"hdl" json:"hdl"`
	SBP           string `yaml:"sbp" json:"sbp"`
	DBP           string `yaml:"dbp" json:"dbp"`
	HbA1c         string `yaml:"hba1c" json:"hba1c"`
	Diabetes      string `yaml:"diabetes" json:"diabetes"`
	Hypertension  string `yaml:"hypertension" json:"hypertension"`
	HeartDisease  string `yaml:"heart_disease" json:"heart_disease"`
	KidneyDisease string `yaml:"kidney_disease" json:"kidney_disease"`
	Stroke        string `yaml:"stroke" json:"stroke"`
}

// NHANESColumns maps the 2021-2023 public release variable names.
func NHANESColumns() CKMColumns {
	return CKMColumns{
		Gender:        "RIAGENDR",
		Waist:         "BMXWAIST",
		Triglycerides: "LBXTLG",
		HDL:           "LBDHDD",
		SBP:           "BPXOSY1",
		DBP:           "BPXODI1",
		HbA1c:         "LBXGH",
		Diabetes:      "MCQ010",
		Hypertension:  "MCQ160A",
		HeartDisease:  "MCQ160B",
		KidneyDisease: "MCQ160C",
		Stroke:        "MCQ160D",
	}
}

// Exposure and subject columns in the NHANES release.
const (
	NHANESKey       = "SEQN"
	NHANESBloodLead = "LBXBPB"
)

const female = 2

// DeriveCKM adds the metabolic-syndrome indicators, the triglyceride-glucose
// index and the CKM risk score and stage to t.
//
// Indicators are 1 when the criterion holds and 0 otherwise, including when
// the measurement is missing. Questionnaire answers count only when coded 1.
// TyG_Index is NaN when either input is missing or non-positive.
func DeriveCKM(t *Table, c CKMColumns) error {
	col := func(name string) ([]float64, error) {
		if name == "" {
			return nanColumn(t.Rows()), nil
		}
		return t.Column(name)
	}
	get := func(names ...string) ([][]float64, error) {
		out := make([][]float64, len(names))
		for i, n := range names {
			v, err := col(n)
			if err != nil {
				return nil, fmt.Errorf("derive ckm: %w", err)
			}
			out[i] = v
		}
		return out, nil
	}
	src, err := get(c.Gender, c.Waist, c.Triglycerides, c.HDL, c.SBP, c.DBP, c.HbA1c,
		c.Diabetes, c.Hypertension, c.HeartDisease, c.KidneyDisease, c.Stroke)
	if err != nil {
		return err
	}
	gender, waist, tg, hdl, sbp, dbp, a1c := src[0], src[1], src[2], src[3], src[4], src[5], src[6]
	dm, htn, heart, kidney, stroke := src[7], src[8], src[9], src[10], src[11]

	n := t.Rows()
	highWaist := make([]float64, n)
	highTG := make([]float64, n)
	lowHDL := make([]float64, n)
	highBP := make([]float64, n)
	highGlu := make([]float64, n)
	mets := make([]float64, n)
	tyg := make([]float64, n)
	risk := make([]float64, n)
	stage := make([]float64, n)

	for i := 0; i < n; i++ {
		isFemale := gender[i] == female
		if isFemale {
			highWaist[i] = indicator(waist[i] > 80)
			lowHDL[i] = indicator(hdl[i] < 50)
		} else {
			highWaist[i] = indicator(waist[i] > 90)
			lowHDL[i] = indicator(hdl[i] < 40)
		}
		highTG[i] = indicator(tg[i] >= 150)
		highBP[i] = indicator(sbp[i] >= 130 || dbp[i] >= 85)
		highGlu[i] = indicator(a1c[i] >= 5.7)
		mets[i] = highWaist[i] + highTG[i] + lowHDL[i] + highBP[i] + highGlu[i]
		tyg[i] = tygIndex(tg[i], a1c[i])

		d := answeredYes(dm[i])
		h := answeredYes(htn[i])
		hd := answeredYes(heart[i])
		kd := answeredYes(kidney[i])
		st := answeredYes(stroke[i])
		risk[i] = indicator(h) + indicator(d) + indicator(hd) + indicator(kd) + mets[i]
		stage[i] = float64(ckmStage(mets[i], d, h, hd, kd, st))
	}

	for _, add := range []struct {
		name string
		vals []float64
	}{
		{ColHighWaist, highWaist},
		{ColHighTG, highTG},
		{ColLowHDL, lowHDL},
		{ColHighBP, highBP},
		{ColHighGlucose, highGlu},
		{ColMetS, mets},
		{ColTyG, tyg},
		{ColRiskScore, risk},
		{ColStage, stage},
	} {
		if err := t.AddColumn(add.name, add.vals); err != nil {
			return err
		}
	}
	return nil
}

// ckmStage assigns the AHA cardiovascular-kidney-metabolic stage:
// 4 clinical CVD/CKD, 3 hypertension with diabetes, 2 diabetes or three
// metabolic criteria, 1 any metabolic criterion, else 0.
func ckmStage(mets float64, diabetes, hypertension, heart, kidney, stroke bool) int {
	switch {
	case heart || kidney || stroke:
		return 4
	case hypertension && diabetes:
		return 3
	case diabetes || mets >= 3:
		return 2
	case mets >= 1:
		return 1
	}
	return 0
}

func tygIndex(tg, a1c float64) float64 {
	if !(tg > 0) || !(a1c > 0) || math.IsInf(tg, 0) || math.IsInf(a1c, 0) {
		return math.NaN()
	}
	return math.Log(tg * a1c / 2)
}

func answeredYes(v float64) bool { return v == 1 }

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func nanColumn(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
