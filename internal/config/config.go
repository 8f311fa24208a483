package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	DataDir    string `mapstructure:"data_dir" yaml:"data_dir"`
	StudiesDir string `mapstructure:"studies_dir" yaml:"studies_dir"`

	// NHANES downloads
	NHANESBaseURL  string   `mapstructure:"nhanes_base_url" yaml:"nhanes_base_url"`
	NHANESTables   []string `mapstructure:"nhanes_tables" yaml:"nhanes_tables"`
	HTTPTimeoutSec int      `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`

	// Mediation
	MinObservations int     `mapstructure:"min_observations" yaml:"min_observations"`
	RatioEpsilon    float64 `mapstructure:"ratio_epsilon" yaml:"ratio_epsilon"`

	// Simulation
	SimT0         float64 `mapstructure:"sim_t0" yaml:"sim_t0"`
	SimT1         float64 `mapstructure:"sim_t1" yaml:"sim_t1"`
	SimSteps      int     `mapstructure:"sim_steps" yaml:"sim_steps"`
	SimWorkers    int     `mapstructure:"sim_workers" yaml:"sim_workers"`
	SimParamsFile string  `mapstructure:"sim_params_file" yaml:"sim_params_file"`
}

// Keys lists the settable configuration keys in display order.
var Keys = []string{
	"data_dir", "studies_dir",
	"nhanes_base_url", "nhanes_tables", "http_timeout_sec",
	"min_observations", "ratio_epsilon",
	"sim_t0", "sim_t1", "sim_steps", "sim_workers", "sim_params_file",
}

func homeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".ckmtox"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.ckmtox/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := homeDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("CKMTOX")
	v.AutomaticEnv()

	v.SetDefault("data_dir", "")
	v.SetDefault("studies_dir", "")
	v.SetDefault("nhanes_base_url", "https://wwwn.cdc.gov/Nchs/Data/Nhanes/Public/2021/DataFiles/")
	v.SetDefault("nhanes_tables", []string{"PBCD_L", "DEMO_L", "BPXO_L", "BMX_L", "HDL_L", "TRIGLY_L", "GHB_L", "MCQ_L"})
	v.SetDefault("http_timeout_sec", 120)
	v.SetDefault("min_observations", 100)
	v.SetDefault("ratio_epsilon", 1e-10)
	v.SetDefault("sim_t0", 0.0)
	v.SetDefault("sim_t1", 24.0)
	v.SetDefault("sim_steps", 100)
	v.SetDefault("sim_workers", 4)
	v.SetDefault("sim_params_file", "")

	dir, err := homeDir()
	if err != nil {
		return nil, err
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		_ = os.MkdirAll(dir, 0o755)
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.DataDir == "" {
		c.DataDir = filepath.Join(dir, "nhanes_data")
	}
	if c.StudiesDir == "" {
		c.StudiesDir = filepath.Join(dir, "studies")
	}
	return &c, nil
}
