package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
)

var (
	addStudyName string
	addDesc      string
	addQuiet     bool
)

var addCmd = &cobra.Command{
	Use:   "add <csv|glob>...",
	Short: "Register survey tables with a study",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		files := expandInputs(args)
		if len(files) == 0 {
			return fmt.Errorf("no input files matched")
		}
		s, err := resolveStudy(addStudyName)
		if err != nil {
			return err
		}
		if s == nil {
			return fmt.Errorf("--study is required outside a study directory")
		}
		total := len(files)
		for i, path := range files {
			if !addQuiet && total > 1 {
				fmt.Fprintf(out, "[%d/%d] Adding %s...\n", i+1, total, filepath.Base(path))
			}
			d, err := s.AddDataset(path, addDesc)
			if err != nil {
				return err
			}
			if !addQuiet {
				fmt.Fprintf(out, "✓ Dataset added: %s (%s, %d rows)\n", d.Name, d.ID[:8], d.Rows)
			}
		}
		return s.Save()
	},
}

// expandInputs resolves glob patterns, keeps literal paths that exist and
// drops duplicates. The result is sorted.
func expandInputs(args []string) []string {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringVarP(&addStudyName, "study", "s", "", "study name (default: the study enclosing the working directory)")
	addCmd.Flags().StringVar(&addDesc, "desc", "", "dataset description")
	addCmd.Flags().BoolVar(&addQuiet, "quiet", false, "suppress progress and non-essential output")
}
