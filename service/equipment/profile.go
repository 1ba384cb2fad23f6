package equipment

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/Go-routine-4595/edge-iot-sim/model"
)

// Profile holds the per-unit baselines fixed at creation.
type Profile struct {
	Vibration   float64 `yaml:"Vibration" json:"vibration"`
	Temperature float64 `yaml:"Temperature" json:"temperature"`
	Pressure    float64 `yaml:"Pressure" json:"pressure"`
	Current     float64 `yaml:"Current" json:"current"`
	WearRate    float64 `yaml:"WearRate" json:"wear_rate"`
}

type span struct{ lo, hi float64 }

type profileRange struct {
	vibration, temperature, pressure, current, wear span
}

var defaultRange = profileRange{
	vibration:   span{0.1, 0.3},
	temperature: span{65, 85},
	pressure:    span{45, 55},
	current:     span{8, 12},
	wear:        span{0.001, 0.005},
}

// typeRanges lets a type override the generic baseline ranges.
var typeRanges = map[model.EquipmentType]profileRange{
	model.CNC:        defaultRange,
	model.Pump:       defaultRange,
	model.Motor:      defaultRange,
	model.Compressor: defaultRange,
}

// RandomProfile draws baselines for t from its type range.
func RandomProfile(t model.EquipmentType, rng *rand.Rand) Profile {
	r, ok := typeRanges[t]
	if !ok {
		r = defaultRange
	}
	return Profile{
		Vibration:   uniform(rng, r.vibration.lo, r.vibration.hi),
		Temperature: uniform(rng, r.temperature.lo, r.temperature.hi),
		Pressure:    uniform(rng, r.pressure.lo, r.pressure.hi),
		Current:     uniform(rng, r.current.lo, r.current.hi),
		WearRate:    uniform(rng, r.wear.lo, r.wear.hi),
	}
}

func (p Profile) Validate() error {
	if p.Vibration <= 0 || p.Current <= 0 {
		return fmt.Errorf("vibration and current baselines must be positive (got %v, %v)", p.Vibration, p.Current)
	}
	if p.WearRate < 0 {
		return errors.New("wear rate must not be negative")
	}
	return nil
}

// Options tunes reading generation. The zero value of SpikeProbability and
// NoiseScale is meaningful (disabled), so start from DefaultOptions.
type Options struct {
	BufferSize       int           `yaml:"BufferSize"`
	SpikeProbability float64       `yaml:"SpikeProbability"`
	NoiseScale       float64       `yaml:"NoiseScale"`
	CNCPeriod        time.Duration `yaml:"CNCPeriod"`
	HoursPerTick     float64       `yaml:"HoursPerTick"`
}

func DefaultOptions() Options {
	return Options{
		BufferSize:       1000,
		SpikeProbability: 0.05,
		NoiseScale:       1,
		CNCPeriod:        30 * time.Second,
		HoursPerTick:     0.1,
	}
}

func (o *Options) applyDefaults() {
	d := DefaultOptions()
	if o.BufferSize <= 0 {
		o.BufferSize = d.BufferSize
	}
	if o.CNCPeriod <= 0 {
		o.CNCPeriod = d.CNCPeriod
	}
	if o.HoursPerTick <= 0 {
		o.HoursPerTick = d.HoursPerTick
	}
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*rng.Float64()
}
