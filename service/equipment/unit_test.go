package equipment

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/Go-routine-4595/edge-iot-sim/model"
)

func newRNG() *rand.Rand {
	return rand.New(rand.NewPCG(42, 7))
}

func quietOptions() Options {
	opts := DefaultOptions()
	opts.SpikeProbability = 0
	opts.NoiseScale = 0
	return opts
}

func steadyProfile() Profile {
	return Profile{Vibration: 0.2, Temperature: 75, Pressure: 50, Current: 10}
}

func mustUnit(t *testing.T, eqType model.EquipmentType, p Profile, opts Options) *Unit {
	t.Helper()
	u, err := NewUnit("UNIT_1", eqType, "Line A", p, opts, newRNG())
	if err != nil {
		t.Fatalf("new unit: %v", err)
	}
	return u
}

func TestInvariantsHoldOverManyTicks(t *testing.T) {
	rng := newRNG()
	p := RandomProfile(model.Motor, rng)
	p.WearRate = 0.05
	u, err := NewUnit("MOTOR_1", model.Motor, "Conveyor", p, DefaultOptions(), rng)
	if err != nil {
		t.Fatalf("new unit: %v", err)
	}

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := u.Degradation()
	for i := 0; i < 1500; i++ {
		now = now.Add(2 * time.Second)
		u.GenerateReading(now)
		score := u.CalculateHealthScore()
		due, predicted := u.PredictMaintenance(now)

		if score < 0 || score > 100 {
			t.Fatalf("tick %d: health score %f out of range", i, score)
		}
		if u.Degradation() < prev {
			t.Fatalf("tick %d: degradation decreased from %f to %f", i, prev, u.Degradation())
		}
		prev = u.Degradation()
		if u.Samples() > 1000 {
			t.Fatalf("tick %d: buffer grew to %d", i, u.Samples())
		}
		if predicted != nil && !due {
			t.Fatalf("tick %d: failure predicted without maintenance due", i)
		}
	}
	if u.Samples() != 1000 {
		t.Fatalf("expected full buffer of 1000, got %d", u.Samples())
	}
	if math.Abs(u.OperatingHours()-150) > 1e-6 {
		t.Fatalf("expected 150 operating hours, got %f", u.OperatingHours())
	}
}

func TestReadingsAreNonNegative(t *testing.T) {
	p := Profile{Vibration: 0.01, Temperature: 0.5, Pressure: 0.2, Current: 0.1, WearRate: 0}
	opts := DefaultOptions()
	opts.NoiseScale = 50
	u := mustUnit(t, model.Compressor, p, opts)

	now := time.Now()
	for i := 0; i < 200; i++ {
		r := u.GenerateReading(now)
		if r.Vibration < 0 || r.Temperature < 0 || r.Pressure < 0 || r.Current < 0 {
			t.Fatalf("negative reading %+v", r)
		}
	}
}

func TestHealthScoreColdStart(t *testing.T) {
	u := mustUnit(t, model.Compressor, steadyProfile(), quietOptions())

	for i := 0; i < 9; i++ {
		u.Append(model.Reading{Vibration: 5, Temperature: 200, Pressure: 0, Current: 40})
		if got := u.CalculateHealthScore(); got != 100 {
			t.Fatalf("sample %d: expected cached score 100, got %f", i+1, got)
		}
	}

	u.Append(model.Reading{Vibration: 5, Temperature: 200, Pressure: 0, Current: 40})
	if got := u.CalculateHealthScore(); got >= 100 {
		t.Fatalf("expected score to drop once 10 samples exist, got %f", got)
	}
}

func TestHealthScoreFormula(t *testing.T) {
	u := mustUnit(t, model.Compressor, steadyProfile(), quietOptions())
	for i := 0; i < 10; i++ {
		// vibration ratio 1.2 -> 90, temp +5 -> 90, pressure -5 -> 85, current ratio 1.1 -> 94
		u.Append(model.Reading{Vibration: 0.24, Temperature: 80, Pressure: 45, Current: 11})
	}

	want := (90.0 + 90 + 85 + 94) / 4
	if got := u.CalculateHealthScore(); math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %f, got %f", want, got)
	}
}

func TestSteadyUnitStaysHealthy(t *testing.T) {
	u := mustUnit(t, model.Compressor, steadyProfile(), quietOptions())

	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		now = now.Add(2 * time.Second)
		u.GenerateReading(now)
		score := u.CalculateHealthScore()
		due, predicted := u.PredictMaintenance(now)

		if math.Abs(score-100) > 1e-6 {
			t.Fatalf("tick %d: expected health 100, got %f", i, score)
		}
		if due || predicted != nil {
			t.Fatalf("tick %d: expected no maintenance, got due=%v predicted=%v", i, due, predicted)
		}
	}
	if u.Degradation() != 1.0 {
		t.Fatalf("expected degradation to stay at 1.0, got %f", u.Degradation())
	}
}

func TestPredictMaintenanceDecliningHealth(t *testing.T) {
	p := steadyProfile()
	u := mustUnit(t, model.Compressor, p, quietOptions())

	var (
		now       = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
		becameDue = false
	)
	for k := 0; k < 250; k++ {
		now = now.Add(time.Minute)
		fk := float64(k)
		u.Append(model.Reading{
			Vibration:   p.Vibration * (1 + 0.04*fk),
			Temperature: p.Temperature + 0.5*fk,
			Pressure:    p.Pressure - 0.2*fk,
			Current:     p.Current,
		})
		score := u.CalculateHealthScore()
		due, predicted := u.PredictMaintenance(now)

		if score > 80 && (due || predicted != nil) {
			t.Fatalf("reading %d: health %f above 80 but due=%v predicted=%v", k, score, due, predicted)
		}
		if predicted != nil && !due {
			t.Fatalf("reading %d: prediction without due flag", k)
		}
		if due && !becameDue {
			becameDue = true
			if predicted == nil || !predicted.After(now) {
				t.Fatalf("reading %d: expected future failure date when becoming due, got %v", k, predicted)
			}
			if score <= 50 {
				t.Fatalf("reading %d: expected trend-based prediction in the 50-80 band, health %f", k, score)
			}
		}
	}

	if !becameDue {
		t.Fatalf("expected maintenance to become due")
	}
	if u.HealthScore() > 50 {
		t.Fatalf("expected health to reach the critical band, got %f", u.HealthScore())
	}
	if want := now.Add(7 * 24 * time.Hour); u.PredictedFailure() == nil || !u.PredictedFailure().Equal(want) {
		t.Fatalf("expected failure date %v, got %v", want, u.PredictedFailure())
	}
}

func TestPredictMaintenanceCriticalIsSevenDays(t *testing.T) {
	u := mustUnit(t, model.Pump, steadyProfile(), quietOptions())
	u.healthScore = 30

	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	due, predicted := u.PredictMaintenance(now)

	if !due {
		t.Fatalf("expected maintenance due at health 30")
	}
	if predicted == nil || !predicted.Equal(now.Add(7*24*time.Hour)) {
		t.Fatalf("expected failure exactly 7 days out, got %v", predicted)
	}
}

func TestPredictMaintenanceBandKeepsPriorState(t *testing.T) {
	u := mustUnit(t, model.Compressor, steadyProfile(), quietOptions())
	for i := 0; i < 30; i++ {
		u.Append(model.Reading{Vibration: 0.2, Temperature: 75, Pressure: 50, Current: 10})
	}
	u.healthScore = 70

	if due, predicted := u.PredictMaintenance(time.Now()); due || predicted != nil {
		t.Fatalf("flat trend must not trigger maintenance, got due=%v predicted=%v", due, predicted)
	}

	earlier := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	u.maintenanceDue = true
	u.predictedFailure = &earlier
	due, predicted := u.PredictMaintenance(time.Now())
	if !due || predicted == nil || !predicted.Equal(earlier) {
		t.Fatalf("expected prior state to be kept, got due=%v predicted=%v", due, predicted)
	}
}

func TestTypeCoupling(t *testing.T) {
	p := steadyProfile()
	now := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

	pump := mustUnit(t, model.Pump, p, quietOptions())
	if r := pump.GenerateReading(now); r.Pressure != p.Pressure {
		t.Fatalf("pump pressure should follow current, got %f", r.Pressure)
	}

	opts := quietOptions()
	opts.NoiseScale = 1
	motor := mustUnit(t, model.Motor, p, opts)
	r := motor.GenerateReading(now)
	if want := p.Temperature + (r.Current-p.Current)*5; math.Abs(r.Temperature-math.Max(0, want)) > 1e-9 {
		t.Fatalf("motor temperature %f should track current (want %f)", r.Temperature, want)
	}

	cnc := mustUnit(t, model.CNC, p, quietOptions())
	quarter := now.Add(7500 * time.Millisecond) // 1/4 of a 30s cycle from a cycle boundary
	if r := cnc.GenerateReading(quarter); math.Abs(r.Vibration-(p.Vibration+0.1)) > 1e-9 {
		t.Fatalf("expected cnc vibration at peak of cycle, got %f", r.Vibration)
	}
}

func TestSpikeInjection(t *testing.T) {
	opts := quietOptions()
	opts.SpikeProbability = 1
	p := steadyProfile()
	u := mustUnit(t, model.Compressor, p, opts)

	r := u.GenerateReading(time.Now())
	if r.Vibration < p.Vibration*1.5 {
		t.Fatalf("expected amplified vibration, got %f", r.Vibration)
	}
	if r.Temperature < p.Temperature+10 {
		t.Fatalf("expected raised temperature, got %f", r.Temperature)
	}
}

func TestStatusAndHistory(t *testing.T) {
	u := mustUnit(t, model.Compressor, steadyProfile(), quietOptions())

	st := u.Status()
	if st.CurrentReadings != (model.SensorValues{}) {
		t.Fatalf("expected zero readings before first sample, got %+v", st.CurrentReadings)
	}

	for i := 0; i < 150; i++ {
		u.Append(model.Reading{Vibration: float64(i), Temperature: 1, Pressure: 2, Current: 3})
	}
	h := u.History(100)
	if len(h.Vibration) != 100 || h.Vibration[0] != 50 || h.Vibration[99] != 149 {
		t.Fatalf("unexpected history window: len=%d first=%f last=%f", len(h.Vibration), h.Vibration[0], h.Vibration[99])
	}
	if got := u.Status().CurrentReadings.Vibration; got != 149 {
		t.Fatalf("expected latest vibration 149, got %f", got)
	}
}

func TestNewUnitRejectsBadProfile(t *testing.T) {
	if _, err := NewUnit("X", model.CNC, "", Profile{}, DefaultOptions(), newRNG()); err == nil {
		t.Fatalf("expected zero baselines to be rejected")
	}
}
