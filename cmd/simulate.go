package cmd

import (
	"fmt"
	"io"

	"github.com/KaramelBytes/ckmtox/internal/cellsim"
	"github.com/KaramelBytes/ckmtox/internal/report"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	simExposure float64
	simCSV      string
	simOpts     simFlags
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Integrate the endothelial compartment model for one exposure level",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		p, err := simOpts.params()
		if err != nil {
			return err
		}
		span := simOpts.span(cmd.Flags().Changed)
		logger.Debug("simulate",
			zap.Float64("exposure", simExposure),
			zap.Float64("t0", span.T0), zap.Float64("t1", span.T1), zap.Int("steps", span.Steps))

		tr, err := newSimulator().Integrate(cellsim.DefaultState(simExposure), p, span)
		if err != nil {
			return err
		}
		fmt.Fprint(out, report.Trajectory(tr))
		if simCSV != "" {
			if err := writeTo(out, simCSV, func(w io.Writer) error { return report.WriteTrajectoryCSV(w, tr) }); err != nil {
				return err
			}
			if simCSV != "-" {
				fmt.Fprintf(out, "\n✓ Trajectory written: %s\n", simCSV)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().Float64VarP(&simExposure, "exposure", "e", 0, "lead exposure level (held constant)")
	simulateCmd.Flags().StringVar(&simCSV, "csv", "", "write the full trajectory as CSV to this path (- for stdout)")
	addSimFlags(simulateCmd, &simOpts)
}
