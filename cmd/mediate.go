package cmd

import (
	"errors"
	"fmt"

	"github.com/KaramelBytes/ckmtox/internal/mediation"
	"github.com/KaramelBytes/ckmtox/internal/report"
	"github.com/KaramelBytes/ckmtox/internal/survey"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	medX      string
	medM      string
	medY      string
	medMinObs int
	medStudy  string
	medLabel  string
	medJSON   bool
)

var mediateCmd = &cobra.Command{
	Use:   "mediate <csv|dataset>",
	Short: "Estimate exposure → mediator → outcome mediation (paths a, b, c)",
	Long: `Fit the three regressions of a single-mediator model and decompose the total
effect into indirect (a×b) and direct parts. Rows with a missing value in any of
the three columns are dropped; more than --min-obs complete rows are required.

With --study the input may name a registered dataset and the result is recorded
in the study's results database.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		t, err := readTable(args[0], medStudy)
		if err != nil {
			return err
		}
		cols, err := t.Select(medX, medM, medY)
		if err != nil {
			return err
		}
		opt := mediation.DefaultOptions()
		if cfg != nil {
			opt.MinObservations, opt.Epsilon = cfg.MinObservations, cfg.RatioEpsilon
		}
		if cmd.Flags().Changed("min-obs") {
			opt.MinObservations = medMinObs
		}

		res, err := mediation.Analyze(cols[0], cols[1], cols[2], opt)
		recorder.ObserveMediation(err)
		if err != nil {
			var ide *mediation.InsufficientDataError
			if errors.As(err, &ide) {
				logger.Warn("mediation skipped", zap.Int("have", ide.Have), zap.Int("need", ide.Need))
			}
			return fmt.Errorf("mediation %s → %s → %s: %w", medX, medM, medY, err)
		}

		if medJSON {
			if err := printJSON(out, res); err != nil {
				return err
			}
		} else {
			fmt.Fprint(out, report.Mediation(report.Variables{X: medX, M: medM, Y: medY}, res))
		}

		st, err := openStudyStore(medStudy)
		if err != nil || st == nil {
			return err
		}
		defer st.Close()
		label := medLabel
		if label == "" {
			label = fmt.Sprintf("%s→%s→%s", medX, medM, medY)
		}
		id, err := st.SaveMediation(label, res)
		if err != nil {
			return err
		}
		if !medJSON {
			fmt.Fprintf(out, "\n✓ Recorded run %s\n", id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mediateCmd)
	mediateCmd.Flags().StringVar(&medX, "x", survey.NHANESBloodLead, "exposure column")
	mediateCmd.Flags().StringVar(&medM, "m", survey.ColTyG, "mediator column")
	mediateCmd.Flags().StringVar(&medY, "y", survey.ColRiskScore, "outcome column")
	mediateCmd.Flags().IntVar(&medMinObs, "min-obs", mediation.DefaultMinObservations, "complete rows required (strictly more than)")
	mediateCmd.Flags().StringVarP(&medStudy, "study", "s", "", "study whose dataset and results database to use (default: the enclosing study, if any)")
	mediateCmd.Flags().StringVar(&medLabel, "label", "", "label for the recorded run")
	mediateCmd.Flags().BoolVar(&medJSON, "json", false, "print JSON instead of markdown")
}
