// Package cellsim is a compartment model of lead-induced endothelial injury:
// exposure drives reactive oxygen species (ROS), which consume antioxidant
// enzymes and inhibit eNOS, while exposure-activated ACE feeds angiotensin II,
// vascular tone and finally blood pressure.
//
// The exposure compartment is a forcing parameter held constant for the
// lifetime of a run; every other compartment follows first-order mass-action
// kinetics. Runs are pure functions of (initial state, parameters, span).
package cellsim

import (
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Compartment indexes a State.
type Compartment int

const (
	Exposure Compartment = iota
	ROS
	SOD
	CAT
	GPx
	NOS3
	NO
	ACE
	AngII
	VascularTone
	BloodPressure

	NumCompartments
)

var compartmentNames = [NumCompartments]string{
	"Exposure", "ROS", "SOD", "CAT", "GPx", "NOS3", "NO", "ACE", "AngII", "VascularTone", "BloodPressure",
}

func (c Compartment) String() string {
	if c < 0 || c >= NumCompartments {
		return fmt.Sprintf("Compartment(%d)", int(c))
	}
	return compartmentNames[c]
}

// CompartmentNames returns the compartment labels in state order.
func CompartmentNames() []string {
	return append([]string(nil), compartmentNames[:]...)
}

// State holds one value per compartment in the fixed order above.
type State [NumCompartments]float64

// DefaultState returns the resting endothelial state at the given exposure.
func DefaultState(exposure float64) State {
	return State{
		Exposure:      exposure,
		ROS:           1,
		SOD:           100,
		CAT:           100,
		GPx:           80,
		NOS3:          100,
		NO:            10,
		ACE:           50,
		AngII:         1,
		VascularTone:  10,
		BloodPressure: 120,
	}
}

// Validate rejects non-finite values and negative concentrations. Blood
// pressure only has to be finite.
func (s State) Validate() error {
	for c, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("initial %s must be finite, got %v", Compartment(c), v)
		}
		if v < 0 && Compartment(c) != BloodPressure {
			return fmt.Errorf("initial %s must be non-negative, got %v", Compartment(c), v)
		}
	}
	return nil
}

// Params are the rate constants of the model. All values must be finite and non-negative.
type Params struct {
	ExpROS    float64 `yaml:"k_exp_ros" json:"k_exp_ros"`
	ROSSOD    float64 `yaml:"k_ros_sod" json:"k_ros_sod"`
	ROSCAT    float64 `yaml:"k_ros_cat" json:"k_ros_cat"`
	ROSGPx    float64 `yaml:"k_ros_gpx" json:"k_ros_gpx"`
	NOSROS    float64 `yaml:"k_nos_ros" json:"k_nos_ros"`
	NOSNO     float64 `yaml:"k_nos_no" json:"k_nos_no"`
	ExpACE    float64 `yaml:"k_exp_ace" json:"k_exp_ace"`
	ACEAngII  float64 `yaml:"k_ace_angii" json:"k_ace_angii"`
	AngIITone float64 `yaml:"k_angii_tone" json:"k_angii_tone"`
	ToneBP    float64 `yaml:"k_tone_bp" json:"k_tone_bp"`

	NODecay    float64 `yaml:"k_no_decay" json:"k_no_decay"`
	BPRelax    float64 `yaml:"k_bp_relax" json:"k_bp_relax"`
	BPBaseline float64 `yaml:"bp_baseline" json:"bp_baseline"`
}

// DefaultParams returns illustrative constants. The oxidative-stress and NO
// constants are the literature placeholders; the renin-angiotensin chain is
// scaled down so that ACE, AngII and vascular tone stay bounded over a 24 h run.
func DefaultParams() Params {
	return Params{
		ExpROS:     0.1,
		ROSSOD:     0.01,
		ROSCAT:     0.01,
		ROSGPx:     0.015,
		NOSROS:     0.05,
		NOSNO:      0.1,
		ExpACE:     0.002,
		ACEAngII:   1e-4,
		AngIITone:  0.01,
		ToneBP:     0.1,
		NODecay:    0.01,
		BPRelax:    0.1,
		BPBaseline: 120,
	}
}

func (p *Params) fields() map[string]*float64 {
	return map[string]*float64{
		"k_exp_ros":    &p.ExpROS,
		"k_ros_sod":    &p.ROSSOD,
		"k_ros_cat":    &p.ROSCAT,
		"k_ros_gpx":    &p.ROSGPx,
		"k_nos_ros":    &p.NOSROS,
		"k_nos_no":     &p.NOSNO,
		"k_exp_ace":    &p.ExpACE,
		"k_ace_angii":  &p.ACEAngII,
		"k_angii_tone": &p.AngIITone,
		"k_tone_bp":    &p.ToneBP,
		"k_no_decay":   &p.NODecay,
		"k_bp_relax":   &p.BPRelax,
		"bp_baseline":  &p.BPBaseline,
	}
}

// ParamNames lists the settable parameter names, sorted.
func ParamNames() []string {
	var p Params
	names := make([]string, 0, 13)
	for k := range p.fields() {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Get returns the named parameter.
func (p Params) Get(name string) (float64, error) {
	f, ok := p.fields()[name]
	if !ok {
		return 0, fmt.Errorf("unknown parameter %q", name)
	}
	return *f, nil
}

// Set assigns the named parameter.
func (p *Params) Set(name string, v float64) error {
	f, ok := p.fields()[name]
	if !ok {
		return fmt.Errorf("unknown parameter %q", name)
	}
	*f = v
	return nil
}

// Validate rejects negative or non-finite constants.
func (p Params) Validate() error {
	fields := p.fields()
	for _, name := range ParamNames() {
		v := *fields[name]
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("parameter %s must be finite and non-negative, got %v", name, v)
		}
	}
	return nil
}

// Derivative writes d(state)/dt into dy. Exposure is held constant.
func (p Params) Derivative(y, dy []float64) {
	e := y[Exposure]
	ros := y[ROS]
	sod := y[SOD]
	cat := y[CAT]
	gpx := y[GPx]
	nos := y[NOS3]
	no := y[NO]
	ace := y[ACE]
	ang := y[AngII]
	tone := y[VascularTone]
	bp := y[BloodPressure]

	sodLoss := p.ROSSOD * ros * sod
	catLoss := p.ROSCAT * ros * cat
	gpxLoss := p.ROSGPx * ros * gpx

	dy[Exposure] = 0
	dy[ROS] = p.ExpROS*e - sodLoss - catLoss - gpxLoss
	dy[SOD] = -sodLoss
	dy[CAT] = -catLoss
	dy[GPx] = -gpxLoss
	dy[NOS3] = -p.NOSROS * nos * ros
	dy[NO] = p.NOSNO*nos - p.NODecay*no
	dy[ACE] = p.ExpACE * e * ace
	dy[AngII] = p.ACEAngII * ace * ang
	dy[VascularTone] = p.AngIITone * ang * tone
	dy[BloodPressure] = p.ToneBP*tone - p.BPRelax*(bp-p.BPBaseline)
}

// LoadParams reads a YAML parameter file on top of DefaultParams, so a file
// may override only some constants.
func LoadParams(path string) (Params, error) {
	p := DefaultParams()
	b, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("read params: %w", err)
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return Params{}, fmt.Errorf("parse params: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// SaveParams writes p as YAML.
func SaveParams(p Params, path string) error {
	b, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write params: %w", err)
	}
	return nil
}
