package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/KaramelBytes/ckmtox/internal/nhanes"
	"github.com/spf13/cobra"
)

var (
	fetchDir    string
	fetchCheck  bool
	fetchUpdate bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [table...]",
	Short: "Download NHANES data files (.xpt)",
	Long: `Download NHANES public-release files into the data directory.
With no arguments the tables listed under nhanes_tables in the config are fetched.
Files already present are skipped. The files are SAS transport (.xpt) and must be
converted to CSV before they can be merged.

Every download is recorded with its SHA-256, ETag and Last-Modified in
fetch_manifest.json in the data directory. --check compares the local files and
the server against it without downloading; --update also re-downloads tables
reported as new or changed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		tables := args
		baseURL, dir, timeout := nhanes.DefaultBaseURL, "", 120
		if cfg != nil {
			baseURL, dir, timeout = cfg.NHANESBaseURL, cfg.DataDir, cfg.HTTPTimeoutSec
			if len(tables) == 0 {
				tables = cfg.NHANESTables
			}
		}
		if len(tables) == 0 {
			tables = nhanes.DefaultTables
		}
		if fetchDir != "" {
			dir = fetchDir
		}
		if dir == "" {
			return fmt.Errorf("no data directory; pass --dir or set data_dir")
		}
		dir, err := expandHome(dir)
		if err != nil {
			return err
		}
		f := nhanes.NewFetcher(baseURL, time.Duration(timeout)*time.Second, logger)
		if fetchCheck || fetchUpdate {
			return runFetchCheck(cmd, f, tables, dir)
		}
		results, err := f.FetchAll(cmd.Context(), tables, dir)
		for _, r := range results {
			switch {
			case r.Err != nil:
				fmt.Fprintf(out, "✗ %s: %v\n", r.Table, r.Err)
			case r.Skipped:
				fmt.Fprintf(out, "- %s: already present (%d bytes)\n", r.Table, r.Bytes)
			default:
				fmt.Fprintf(out, "✓ %s: %d bytes -> %s\n", r.Table, r.Bytes, r.Path)
			}
		}
		return err
	},
}

func runFetchCheck(cmd *cobra.Command, f *nhanes.Fetcher, tables []string, dir string) error {
	out := cmd.OutOrStdout()
	checks, checkErr := f.Check(cmd.Context(), tables, dir)
	var errs []error
	if checkErr != nil {
		errs = append(errs, checkErr)
	}
	for _, c := range checks {
		switch {
		case c.Err != nil:
			fmt.Fprintf(out, "✗ %s: %v\n", c.Table, c.Err)
			continue
		case c.Status == nhanes.StatusUnchanged:
			fmt.Fprintf(out, "- %s: unchanged\n", c.Table)
			continue
		}
		fmt.Fprintf(out, "! %s: %s (%s)\n", c.Table, c.Status, c.Reason)
		if !fetchUpdate || !c.NeedsFetch() {
			continue
		}
		r, err := f.Refetch(cmd.Context(), c.Table, dir)
		if err != nil {
			errs = append(errs, err)
			fmt.Fprintf(out, "✗ %s: %v\n", c.Table, err)
			continue
		}
		fmt.Fprintf(out, "✓ %s: %d bytes -> %s\n", r.Table, r.Bytes, r.Path)
	}
	return errors.Join(errs...)
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringVar(&fetchDir, "dir", "", "download directory (defaults to data_dir)")
	fetchCmd.Flags().BoolVar(&fetchCheck, "check", false, "report new or changed tables without downloading")
	fetchCmd.Flags().BoolVar(&fetchUpdate, "update", false, "re-download tables that are new or changed")
}
