package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/KaramelBytes/ckmtox/internal/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	listStudies   bool
	listDatasets  bool
	listStudyName string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List studies or the datasets of a study",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if listStudies == listDatasets { // either both true or both false
			return fmt.Errorf("specify exactly one of --studies or --datasets")
		}
		if listStudies {
			return listAllStudies(out)
		}
		if listStudyName == "" {
			return fmt.Errorf("--study is required when using --datasets")
		}
		s, err := loadStudy(listStudyName)
		if err != nil {
			return err
		}
		ds := s.List()
		if len(ds) == 0 {
			fmt.Fprintln(out, "(no datasets)")
			return nil
		}
		for _, d := range ds {
			fmt.Fprintf(out, "- %s: %s (%d rows, %d columns)", d.ID, d.Name, d.Rows, len(d.Columns))
			if d.Description != "" {
				fmt.Fprintf(out, " %s", d.Description)
			}
			fmt.Fprintln(out)
			logger.Debug("dataset", zap.String("id", d.ID), zap.Strings("columns", d.Columns))
		}
		return nil
	},
}

func listAllStudies(out io.Writer) error {
	root, err := defaultStudiesDir()
	if err != nil {
		return err
	}
	dirs, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	found := false
	for _, e := range dirs {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(root, e.Name(), utils.StudyFileName)); err == nil {
			fmt.Fprintf(out, "- %s\n", e.Name())
			found = true
		}
	}
	if !found {
		fmt.Fprintln(out, "(no studies)")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listStudies, "studies", false, "list studies")
	listCmd.Flags().BoolVar(&listDatasets, "datasets", false, "list datasets in a study")
	listCmd.Flags().StringVarP(&listStudyName, "study", "s", "", "study name for --datasets")
}
