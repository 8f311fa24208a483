package cmd

import (
	"fmt"
	"os"

	"github.com/KaramelBytes/ckmtox/internal/survey"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	deriveOut     string
	deriveColumns string
	deriveStudy   string
)

var deriveCmd = &cobra.Command{
	Use:   "derive <csv|dataset>",
	Short: "Add metabolic-syndrome indicators and CKM risk scores to a table",
	Long: `Derive High_Waist, High_TG, Low_HDL, High_BP, High_Glucose, MetS_Score,
TyG_Index, CKM_Risk_Score and CKM_Stage. Source columns default to the NHANES
variable names; --columns points to a yaml file overriding any of them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := readTable(args[0], deriveStudy)
		if err != nil {
			return err
		}
		cols := survey.NHANESColumns()
		if deriveColumns != "" {
			b, err := os.ReadFile(deriveColumns)
			if err != nil {
				return fmt.Errorf("read column mapping: %w", err)
			}
			if err := yaml.Unmarshal(b, &cols); err != nil {
				return fmt.Errorf("parse column mapping: %w", err)
			}
		}
		if err := survey.DeriveCKM(t, cols); err != nil {
			return err
		}
		if err := writeTo(cmd.OutOrStdout(), deriveOut, t.WriteCSV); err != nil {
			return err
		}
		if deriveOut != "" && deriveOut != "-" {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Derived CKM columns for %d rows -> %s\n", t.Rows(), deriveOut)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deriveCmd)
	deriveCmd.Flags().StringVarP(&deriveOut, "output", "o", "", "output CSV path (default stdout)")
	deriveCmd.Flags().StringVar(&deriveColumns, "columns", "", "yaml file mapping source columns")
	deriveCmd.Flags().StringVarP(&deriveStudy, "study", "s", "", "resolve the input as a dataset of this study")
}
