package report

import (
	"encoding/csv"
	"io"

	"github.com/KaramelBytes/ckmtox/internal/cellsim"
	"github.com/KaramelBytes/ckmtox/internal/survey"
)

// WriteTrajectoryCSV writes one row per sample: t then every compartment.
func WriteTrajectoryCSV(w io.Writer, tr cellsim.Trajectory) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"t"}, cellsim.CompartmentNames()...)); err != nil {
		return err
	}
	rec := make([]string, 1+int(cellsim.NumCompartments))
	for _, s := range tr {
		rec[0] = survey.FormatValue(s.T)
		for c := range s.State {
			rec[c+1] = survey.FormatValue(s.State[c])
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteDoseCSV writes exposure, final_bp, error rows. Failed runs have an
// empty final_bp.
func WriteDoseCSV(w io.Writer, pts []cellsim.DosePoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"exposure", "final_bp", "error"}); err != nil {
		return err
	}
	for _, p := range pts {
		if err := cw.Write([]string{survey.FormatValue(p.Exposure), survey.FormatValue(p.FinalBP), errString(p.Err)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSensitivityCSV writes value, final_bp, error rows.
func WriteSensitivityCSV(w io.Writer, param string, pts []cellsim.SensitivityPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{param, "final_bp", "error"}); err != nil {
		return err
	}
	for _, p := range pts {
		if err := cw.Write([]string{survey.FormatValue(p.Value), survey.FormatValue(p.FinalBP), errString(p.Err)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
