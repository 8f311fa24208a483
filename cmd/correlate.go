package cmd

import (
	"fmt"

	"github.com/KaramelBytes/ckmtox/internal/report"
	"github.com/KaramelBytes/ckmtox/internal/survey"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	corrX     string
	corrY     string
	corrStudy string
	corrJSON  bool
)

var correlateCmd = &cobra.Command{
	Use:   "correlate <csv|dataset>",
	Short: "Spearman rank correlations between an exposure and outcomes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		ys := splitList(corrY)
		if len(ys) == 0 {
			return fmt.Errorf("--y requires at least one column")
		}
		t, err := readTable(args[0], corrStudy)
		if err != nil {
			return err
		}
		x, err := t.Column(corrX)
		if err != nil {
			return err
		}
		var cs []survey.Correlation
		for _, name := range ys {
			y, err := t.Column(name)
			if err != nil {
				return err
			}
			rho, p, n, err := survey.Spearman(x, y)
			if err != nil {
				logger.Warn("correlation skipped", zap.String("y", name), zap.Error(err))
				fmt.Fprintf(out, "⚠ %s ~ %s: %v\n", corrX, name, err)
				continue
			}
			cs = append(cs, survey.Correlation{X: corrX, Y: name, Rho: rho, P: p, N: n})
		}
		if corrJSON {
			return printJSON(out, cs)
		}
		fmt.Fprint(out, report.Correlations(cs))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(correlateCmd)
	correlateCmd.Flags().StringVar(&corrX, "x", survey.NHANESBloodLead, "exposure column")
	correlateCmd.Flags().StringVar(&corrY, "y", survey.ColMetS+","+survey.ColRiskScore+","+survey.ColTyG, "comma-separated outcome columns")
	correlateCmd.Flags().StringVarP(&corrStudy, "study", "s", "", "resolve the input as a dataset of this study")
	correlateCmd.Flags().BoolVar(&corrJSON, "json", false, "print JSON instead of markdown")
}
