package cmd

import (
	"fmt"

	"github.com/KaramelBytes/ckmtox/internal/report"
	"github.com/KaramelBytes/ckmtox/internal/survey"
	"github.com/spf13/cobra"
)

var (
	describeVars    string
	describeGroupBy string
	describeOutcome string
	describeStudy   string
)

var describeCmd = &cobra.Command{
	Use:   "describe <csv|dataset>",
	Short: "Descriptive statistics, optionally grouped by blood-lead bins",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		t, err := readTable(args[0], describeStudy)
		if err != nil {
			return err
		}
		names := splitList(describeVars)
		if len(names) == 0 {
			names = t.Columns()
		}
		summaries := make([]survey.Summary, 0, len(names))
		for _, n := range names {
			col, err := t.Column(n)
			if err != nil {
				return err
			}
			summaries = append(summaries, survey.Describe(n, col))
		}

		var groups []survey.Group
		if describeGroupBy != "" {
			if describeOutcome == "" {
				return fmt.Errorf("--outcome is required with --group-by")
			}
			exp, err := t.Column(describeGroupBy)
			if err != nil {
				return err
			}
			outcome, err := t.Column(describeOutcome)
			if err != nil {
				return err
			}
			if groups, err = survey.GroupBy(exp, outcome, survey.LeadBins()); err != nil {
				return err
			}
		}

		fmt.Fprint(out, report.Summaries(summaries))
		if groups != nil {
			fmt.Fprintln(out)
			fmt.Fprint(out, report.Groups(describeOutcome, groups))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
	describeCmd.Flags().StringVar(&describeVars, "vars", "", "comma-separated columns to describe (default all)")
	describeCmd.Flags().StringVar(&describeGroupBy, "group-by", "", "exposure column to bin (<3, 3-5, 5-10, >10)")
	describeCmd.Flags().StringVar(&describeOutcome, "outcome", "", "outcome column summarized per bin")
	describeCmd.Flags().StringVarP(&describeStudy, "study", "s", "", "resolve the input as a dataset of this study")
}
