package cmd

import (
	"fmt"

	"github.com/KaramelBytes/ckmtox/internal/survey"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	mergeOut string
	mergeKey string
)

var mergeCmd = &cobra.Command{
	Use:   "merge <base.csv> <other.csv>...",
	Short: "Left-join survey tables on the subject id",
	Long: `Merge CSV survey tables. Every row of the first table is kept; columns from the
following tables are joined on --key (SEQN by default). Subjects missing from a
joined table get empty cells.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		opt, err := tableOptions()
		if err != nil {
			return err
		}
		merged, err := survey.ReadCSV(args[0], opt)
		if err != nil {
			return err
		}
		for _, p := range args[1:] {
			right, err := survey.ReadCSV(p, opt)
			if err != nil {
				return err
			}
			if merged, err = survey.Merge(merged, right, mergeKey); err != nil {
				return fmt.Errorf("merge %s: %w", p, err)
			}
			logger.Debug("merged", zap.String("table", p), zap.Int("columns", len(merged.Columns())))
		}
		if err := writeTo(cmd.OutOrStdout(), mergeOut, merged.WriteCSV); err != nil {
			return err
		}
		if mergeOut != "" && mergeOut != "-" {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Merged %d tables: %d rows, %d columns -> %s\n",
				len(args), merged.Rows(), len(merged.Columns()), mergeOut)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd)
	mergeCmd.Flags().StringVarP(&mergeOut, "output", "o", "", "output CSV path (default stdout)")
	mergeCmd.Flags().StringVar(&mergeKey, "key", survey.NHANESKey, "join key column")
}
