package equipment

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/Go-routine-4595/edge-iot-sim/model"
	"github.com/Go-routine-4595/edge-iot-sim/service/ring"
	"gonum.org/v1/gonum/stat"
)

const (
	minHealthSamples = 10
	healthWindow     = 50
	trendWindow      = 20

	healthyThreshold  = 80.0
	criticalThreshold = 50.0
	failureThreshold  = 30.0
	declineSlope      = -0.5
	criticalLead      = 7 * 24 * time.Hour
)

// Unit is one simulated asset. It is not safe for concurrent use; the
// monitoring loop owns it.
type Unit struct {
	id       string
	eqType   model.EquipmentType
	location string
	profile  Profile
	opts     Options
	rng      *rand.Rand

	degradation float64

	vibration   *ring.Buffer[float64]
	temperature *ring.Buffer[float64]
	pressure    *ring.Buffer[float64]
	current     *ring.Buffer[float64]

	healthScore      float64
	operatingHours   float64
	maintenanceDue   bool
	anomalyDetected  bool
	predictedFailure *time.Time
}

func NewUnit(id string, t model.EquipmentType, location string, p Profile, opts Options, rng *rand.Rand) (*Unit, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	opts.applyDefaults()

	return &Unit{
		id:          id,
		eqType:      t,
		location:    location,
		profile:     p,
		opts:        opts,
		rng:         rng,
		degradation: 1.0,
		vibration:   ring.New[float64](opts.BufferSize),
		temperature: ring.New[float64](opts.BufferSize),
		pressure:    ring.New[float64](opts.BufferSize),
		current:     ring.New[float64](opts.BufferSize),
		healthScore: 100.0,
	}, nil
}

func (u *Unit) ID() string {
	return u.id
}

func (u *Unit) Type() model.EquipmentType {
	return u.eqType
}

func (u *Unit) Location() string {
	return u.location
}

func (u *Unit) Profile() Profile {
	return u.profile
}

func (u *Unit) Degradation() float64 {
	return u.degradation
}

func (u *Unit) HealthScore() float64 {
	return u.healthScore
}

func (u *Unit) OperatingHours() float64 {
	return u.operatingHours
}

func (u *Unit) MaintenanceDue() bool {
	return u.maintenanceDue
}

func (u *Unit) AnomalyDetected() bool {
	return u.anomalyDetected
}

func (u *Unit) PredictedFailure() *time.Time {
	return u.predictedFailure
}

func (u *Unit) Samples() int {
	return u.vibration.Len()
}

func (u *Unit) SetAnomalyDetected(v bool) {
	u.anomalyDetected = v
}

// GenerateReading advances wear by one tick and produces a reading stamped now.
func (u *Unit) GenerateReading(now time.Time) model.Reading {
	var (
		p                     = u.profile
		d                     float64
		vib, temp, pres, curr float64
	)

	u.operatingHours += u.opts.HoursPerTick
	u.degradation += p.WearRate * uniform(u.rng, 0.5, 2.0)
	d = u.degradation

	vib = p.Vibration*d + u.noise(0.02)
	temp = p.Temperature + (d-1)*20 + u.noise(1)
	pres = p.Pressure - (d-1)*5 + u.noise(0.5)
	curr = p.Current*d + u.noise(0.3)

	if u.opts.SpikeProbability > 0 && u.rng.Float64() < u.opts.SpikeProbability {
		vib *= uniform(u.rng, 1.5, 3.0)
		temp += uniform(u.rng, 10, 25)
	}

	switch u.eqType {
	case model.CNC:
		vib += 0.1 * math.Sin(2*math.Pi*cyclePhase(now, u.opts.CNCPeriod))
	case model.Pump:
		pres = p.Pressure + (curr-p.Current)*2
	case model.Motor:
		temp = p.Temperature + (curr-p.Current)*5
	}

	r := model.Reading{
		Timestamp:   now,
		Vibration:   math.Max(0, vib),
		Temperature: math.Max(0, temp),
		Pressure:    math.Max(0, pres),
		Current:     math.Max(0, curr),
	}
	u.Append(r)
	return r
}

// Append stores r in the series buffers without touching wear state.
func (u *Unit) Append(r model.Reading) {
	u.vibration.Push(r.Vibration)
	u.temperature.Push(r.Temperature)
	u.pressure.Push(r.Pressure)
	u.current.Push(r.Current)
}

// CalculateHealthScore recomputes the cached score from the recent window.
// Below minHealthSamples the cached value is returned untouched.
func (u *Unit) CalculateHealthScore() float64 {
	if u.vibration.Len() < minHealthSamples {
		return u.healthScore
	}

	var (
		p    = u.profile
		vib  = stat.Mean(u.vibration.Tail(healthWindow), nil)
		temp = stat.Mean(u.temperature.Tail(healthWindow), nil)
		pres = stat.Mean(u.pressure.Tail(healthWindow), nil)
		curr = stat.Mean(u.current.Tail(healthWindow), nil)
	)

	factors := []float64{
		clampHealth(100 - (vib/p.Vibration-1)*50),
		clampHealth(100 - math.Abs(temp-p.Temperature)*2),
		clampHealth(100 - math.Abs(pres-p.Pressure)*3),
		clampHealth(100 - math.Abs(curr/p.Current-1)*60),
	}
	u.healthScore = stat.Mean(factors, nil)
	return u.healthScore
}

// PredictMaintenance updates the maintenance flag and failure projection from
// the cached health score.
func (u *Unit) PredictMaintenance(now time.Time) (bool, *time.Time) {
	switch {
	case u.healthScore > healthyThreshold:
		u.maintenanceDue = false
		u.predictedFailure = nil
	case u.healthScore > criticalThreshold:
		if slope, ok := u.vibrationHealthTrend(); ok && slope < declineSlope {
			days := (u.healthScore - failureThreshold) / math.Abs(slope)
			at := now.Add(time.Duration(days * float64(24*time.Hour)))
			u.predictedFailure = &at
			u.maintenanceDue = true
		}
	default:
		at := now.Add(criticalLead)
		u.predictedFailure = &at
		u.maintenanceDue = true
	}
	return u.maintenanceDue, u.predictedFailure
}

// vibrationHealthTrend returns the least-squares slope, per sample, of the
// vibration-only health reconstructed from the last trendWindow readings.
func (u *Unit) vibrationHealthTrend() (float64, bool) {
	if u.vibration.Len() < trendWindow {
		return 0, false
	}

	var (
		recent = u.vibration.Tail(trendWindow)
		xs     = make([]float64, len(recent))
		ys     = make([]float64, len(recent))
	)
	for i, v := range recent {
		xs[i] = float64(i)
		ys[i] = math.Max(0, 100-(v/u.profile.Vibration-1)*50)
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	return slope, true
}

// Latest returns the most recent values of each series, zero before the
// first reading.
func (u *Unit) Latest() model.SensorValues {
	var s model.SensorValues
	s.Vibration, _ = u.vibration.Last()
	s.Temperature, _ = u.temperature.Last()
	s.Pressure, _ = u.pressure.Last()
	s.Current, _ = u.current.Last()
	return s
}

// History copies up to limit of the most recent samples per series.
func (u *Unit) History(limit int) model.History {
	return model.History{
		Vibration:   u.vibration.Tail(limit),
		Temperature: u.temperature.Tail(limit),
		Pressure:    u.pressure.Tail(limit),
		Current:     u.current.Tail(limit),
	}
}

func (u *Unit) Status() model.UnitStatus {
	var predicted *time.Time
	if u.predictedFailure != nil {
		at := *u.predictedFailure
		predicted = &at
	}
	return model.UnitStatus{
		EquipmentType:        u.eqType,
		Location:             u.location,
		HealthScore:          round1(u.healthScore),
		OperatingHours:       round1(u.operatingHours),
		MaintenanceDue:       u.maintenanceDue,
		AnomalyDetected:      u.anomalyDetected,
		PredictedFailureDate: predicted,
		CurrentReadings:      u.Latest(),
	}
}

func (u *Unit) noise(sigma float64) float64 {
	if u.opts.NoiseScale == 0 {
		return 0
	}
	return u.rng.NormFloat64() * sigma * u.opts.NoiseScale
}

func cyclePhase(now time.Time, period time.Duration) float64 {
	return float64(now.UnixNano()%int64(period)) / float64(period)
}

func clampHealth(v float64) float64 {
	return math.Min(100, math.Max(0, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
