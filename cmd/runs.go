package cmd

import (
	"fmt"
	"math"
	"strings"

	"github.com/KaramelBytes/ckmtox/internal/store"
	"github.com/spf13/cobra"
)

var (
	runsStudy string
	runsKind  string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List analyses recorded in a study's results database",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		st, err := requireStudyStore()
		if err != nil {
			return err
		}
		defer st.Close()
		runs, err := st.ListRuns(runsKind)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "(no runs)")
			return nil
		}
		for _, r := range runs {
			fmt.Fprintf(out, "- %s  %-13s  %s  %s", r.ID[:8], r.Kind, r.CreatedAt.Format("2006-01-02 15:04"), r.Label)
			if r.Kind != store.KindMediation {
				fmt.Fprintf(out, " (%d points, %d failed)", r.Points, r.Failed)
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the stored results of one run (id or unique prefix)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		st, err := requireStudyStore()
		if err != nil {
			return err
		}
		defer st.Close()
		run, err := findRun(st, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "[RUN] %s\nKind: %s\nLabel: %s\nCreated: %s\n\n",
			run.ID, run.Kind, run.Label, run.CreatedAt.Format("2006-01-02 15:04:05"))
		if run.Kind == store.KindMediation {
			m, err := st.Mediation(run.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "n=%d (dropped %d)\n", m.N, m.Dropped)
			fmt.Fprintf(out, "a=%.4g (p=%.4g)  b=%.4g (p=%.4g)  c=%.4g (p=%.4g)\n", m.A, m.AP, m.B, m.BP, m.C, m.CP)
			fmt.Fprintf(out, "indirect=%.4g direct=%.4g\n", m.Indirect, m.Direct)
			if m.Ratio != nil {
				fmt.Fprintf(out, "proportion mediated=%.2f%%\n", *m.Ratio*100)
			} else {
				fmt.Fprintln(out, "proportion mediated=undefined")
			}
			return nil
		}
		pts, err := st.Points(run.ID)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "| x | Final BP (mmHg) |\n|---:|---:|")
		for _, p := range pts {
			if math.IsNaN(p.FinalBP) {
				fmt.Fprintf(out, "| %g | failed: %s |\n", p.X, p.Error)
				continue
			}
			fmt.Fprintf(out, "| %g | %.2f |\n", p.X, p.FinalBP)
		}
		return nil
	},
}

func requireStudyStore() (*store.Store, error) {
	st, err := openStudyStore(runsStudy)
	if err == nil && st == nil {
		err = fmt.Errorf("--study is required outside a study directory")
	}
	return st, err
}

func findRun(st *store.Store, ref string) (*store.Run, error) {
	runs, err := st.ListRuns("")
	if err != nil {
		return nil, err
	}
	var match *store.Run
	for i := range runs {
		if runs[i].ID == ref {
			return &runs[i], nil
		}
		if strings.HasPrefix(runs[i].ID, ref) {
			if match != nil {
				return nil, fmt.Errorf("run id %q is ambiguous", ref)
			}
			match = &runs[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("run %q not found", ref)
	}
	return match, nil
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.PersistentFlags().StringVarP(&runsStudy, "study", "s", "", "study name (default: the study enclosing the working directory)")
	runsCmd.Flags().StringVar(&runsKind, "kind", "", "filter by kind (mediation, dose_response, sensitivity)")
}
