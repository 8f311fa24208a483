package cmd

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/KaramelBytes/ckmtox/internal/cellsim"
	"github.com/KaramelBytes/ckmtox/internal/store"
	"github.com/KaramelBytes/ckmtox/internal/study"
	"github.com/KaramelBytes/ckmtox/internal/survey"
	"github.com/KaramelBytes/ckmtox/internal/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseFloatList(s string) ([]float64, error) {
	parts := splitList(s)
	if len(parts) == 0 {
		return nil, errors.New("empty value list")
	}
	out := make([]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", p, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("invalid number %q: must be finite", p)
		}
		out[i] = f
	}
	return out, nil
}

func expandHome(dir string) (string, error) {
	if !strings.HasPrefix(dir, "~") {
		return filepath.Clean(dir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	dir = strings.TrimPrefix(dir, "~")
	dir = strings.TrimPrefix(dir, string(os.PathSeparator))
	dir = strings.TrimPrefix(dir, "/")
	return filepath.Join(home, dir), nil
}

func defaultStudiesDir() (string, error) {
	dir := ""
	if cfg != nil {
		dir = cfg.StudiesDir
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dir = filepath.Join(home, ".ckmtox", "studies")
	}
	dir, err := expandHome(dir)
	if err != nil {
		return "", err
	}
	if err := utils.EnsureDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}

func resolveStudyDirByName(name string) (string, error) {
	if name == "" {
		return "", errors.New("study name is required")
	}
	root, err := defaultStudiesDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, name), nil
}

func loadStudy(name string) (*study.Study, error) {
	dir, err := resolveStudyDirByName(name)
	if err != nil {
		return nil, err
	}
	return study.Load(dir)
}

// resolveStudy loads the named study or, when name is empty, the study
// enclosing the working directory. It returns nil when there is neither.
func resolveStudy(name string) (*study.Study, error) {
	if name != "" {
		return loadStudy(name)
	}
	root, err := utils.FindStudyRoot("")
	if errors.Is(err, utils.ErrNoStudyRoot) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	logger.Debug("using enclosing study", zap.String("dir", root))
	return study.Load(root)
}

// openStudyStore opens the results database of the named or enclosing
// study. Without either, results are not recorded and the store is nil.
func openStudyStore(name string) (*store.Store, error) {
	s, err := resolveStudy(name)
	if err != nil || s == nil {
		return nil, err
	}
	return store.Open(s.ResultsDBPath())
}

// readTable loads ref as a CSV path or, when ref is not a file, as a dataset
// of the named or enclosing study.
func readTable(ref, studyName string) (*survey.Table, error) {
	path := ref
	if _, err := os.Stat(ref); err != nil {
		s, lerr := resolveStudy(studyName)
		if lerr != nil {
			return nil, lerr
		}
		if s == nil {
			return nil, fmt.Errorf("%s: %w", ref, err)
		}
		d, derr := s.Dataset(ref)
		if derr != nil {
			return nil, derr
		}
		path = d.Path
	}
	opt, err := tableOptions()
	if err != nil {
		return nil, err
	}
	t, err := survey.ReadCSV(path, opt)
	if err != nil {
		return nil, err
	}
	logger.Debug("table loaded", zap.String("path", path), zap.Int("rows", t.Rows()), zap.Int("columns", len(t.Columns())))
	return t, nil
}

// tableOptions builds CSV parse options from the global --delimiter,
// --decimal and --thousands flags. Empty flags leave detection automatic.
func tableOptions() (survey.Options, error) {
	var opt survey.Options
	switch flagDelimiter {
	case "":
	case ",":
		opt.Delimiter = ','
	case "\t", "tab":
		opt.Delimiter = '\t'
	case ";":
		opt.Delimiter = ';'
	default:
		return opt, fmt.Errorf("unsupported --delimiter: %s", flagDelimiter)
	}
	switch strings.ToLower(strings.TrimSpace(flagDecimal)) {
	case ",", "comma":
		opt.DecimalSeparator = ','
	case ".", "dot":
		opt.DecimalSeparator = '.'
	case "":
	default:
		return opt, fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", flagDecimal)
	}
	switch strings.ToLower(strings.TrimSpace(flagThousands)) {
	case ",":
		opt.ThousandsSeparator = ','
	case ".":
		opt.ThousandsSeparator = '.'
	case "space", " ":
		opt.ThousandsSeparator = ' '
	case "":
	default:
		return opt, fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", flagThousands)
	}
	return opt, nil
}

// writeTo writes via fn to path, or to w when path is empty or "-".
func writeTo(w io.Writer, path string, fn func(io.Writer) error) error {
	if path == "" || path == "-" {
		return fn(w)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printJSON(w io.Writer, v any) error {
	b, err := utils.PrettyJSON(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// simFlags are shared by the simulation commands.
type simFlags struct {
	paramsFile string
	sets       []string
	t0, t1     float64
	steps      int
}

func (f *simFlags) span(changed func(string) bool) cellsim.Span {
	sp := cellsim.DefaultSpan()
	if cfg != nil {
		sp = cellsim.Span{T0: cfg.SimT0, T1: cfg.SimT1, Steps: cfg.SimSteps}
	}
	if changed("t0") {
		sp.T0 = f.t0
	}
	if changed("t1") {
		sp.T1 = f.t1
	}
	if changed("steps") {
		sp.Steps = f.steps
	}
	return sp
}

func (f *simFlags) params() (cellsim.Params, error) {
	p := cellsim.DefaultParams()
	path := f.paramsFile
	if path == "" && cfg != nil {
		path = cfg.SimParamsFile
	}
	if path != "" {
		var err error
		if path, err = expandHome(path); err != nil {
			return p, err
		}
		if p, err = cellsim.LoadParams(path); err != nil {
			return p, err
		}
	}
	for _, kv := range f.sets {
		name, val, ok := strings.Cut(kv, "=")
		if !ok {
			return p, fmt.Errorf("invalid --set %q (want name=value)", kv)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return p, fmt.Errorf("invalid --set %q: %w", kv, err)
		}
		if err := p.Set(strings.TrimSpace(name), v); err != nil {
			return p, err
		}
	}
	return p, p.Validate()
}

func newSimulator() *cellsim.Simulator {
	sim := cellsim.New(logger)
	sim.Observer = recorder
	return sim
}

func addSimFlags(c *cobra.Command, f *simFlags) {
	c.Flags().StringVar(&f.paramsFile, "params", "", "yaml file of rate constants (overrides sim_params_file)")
	c.Flags().StringArrayVar(&f.sets, "set", nil, "override one rate constant, name=value (repeatable)")
	c.Flags().Float64Var(&f.t0, "t0", 0, "start time (default sim_t0)")
	c.Flags().Float64Var(&f.t1, "t1", 24, "end time (default sim_t1)")
	c.Flags().IntVar(&f.steps, "steps", 100, "number of output samples (default sim_steps)")
}
