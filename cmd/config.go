package cmd

import (
	"fmt"
	"strconv"
	"strings"

	cfgpkg "github.com/KaramelBytes/ckmtox/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set ckmtox configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if cfg == nil {
			fmt.Fprintln(out, "No config loaded")
			return nil
		}
		fmt.Fprintf(out, "data_dir: %s\n", cfg.DataDir)
		fmt.Fprintf(out, "studies_dir: %s\n", cfg.StudiesDir)
		fmt.Fprintf(out, "nhanes_base_url: %s\n", cfg.NHANESBaseURL)
		fmt.Fprintf(out, "nhanes_tables: %s\n", strings.Join(cfg.NHANESTables, ","))
		fmt.Fprintf(out, "http_timeout_sec: %d\n", cfg.HTTPTimeoutSec)
		fmt.Fprintf(out, "min_observations: %d\n", cfg.MinObservations)
		fmt.Fprintf(out, "ratio_epsilon: %g\n", cfg.RatioEpsilon)
		fmt.Fprintf(out, "sim_t0: %g\n", cfg.SimT0)
		fmt.Fprintf(out, "sim_t1: %g\n", cfg.SimT1)
		fmt.Fprintf(out, "sim_steps: %d\n", cfg.SimSteps)
		fmt.Fprintf(out, "sim_workers: %d\n", cfg.SimWorkers)
		if cfg.SimParamsFile != "" {
			fmt.Fprintf(out, "sim_params_file: %s\n", cfg.SimParamsFile)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		next := *cfg
		if err := applyConfigValue(&next, key, val); err != nil {
			return err
		}
		if err := cfgpkg.Save(&next, cfgFile); err != nil {
			return err
		}
		cfg = &next
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func applyConfigValue(c *cfgpkg.Global, key, val string) error {
	posInt := func() (int, error) {
		i, err := strconv.Atoi(val)
		if err != nil || i <= 0 {
			return 0, fmt.Errorf("invalid positive int for %s: %v", key, val)
		}
		return i, nil
	}
	float := func() (float64, error) {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid float for %s: %w", key, err)
		}
		return f, nil
	}
	var err error
	switch key {
	case "data_dir":
		c.DataDir = val
	case "studies_dir":
		c.StudiesDir = val
	case "nhanes_base_url":
		c.NHANESBaseURL = val
	case "nhanes_tables":
		c.NHANESTables = splitList(val)
	case "http_timeout_sec":
		c.HTTPTimeoutSec, err = posInt()
	case "min_observations":
		c.MinObservations, err = posInt()
	case "ratio_epsilon":
		var f float64
		if f, err = float(); err == nil && f <= 0 {
			err = fmt.Errorf("ratio_epsilon must be > 0")
		}
		c.RatioEpsilon = f
	case "sim_t0":
		c.SimT0, err = float()
	case "sim_t1":
		c.SimT1, err = float()
	case "sim_steps":
		c.SimSteps, err = posInt()
	case "sim_workers":
		c.SimWorkers, err = posInt()
	case "sim_params_file":
		c.SimParamsFile = val
	default:
		return fmt.Errorf("unknown key: %s (valid: %s)", key, strings.Join(cfgpkg.Keys, ", "))
	}
	return err
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
