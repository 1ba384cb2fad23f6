package service

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/Go-routine-4595/edge-iot-sim/model"
	"github.com/Go-routine-4595/edge-iot-sim/service/anomaly"
	"github.com/Go-routine-4595/edge-iot-sim/service/equipment"
)

const DefaultUnitSaving = 10000

// Fleet is the fixed roster of units. Collect feeds every reading into the
// detector's per-type corpus.
type Fleet struct {
	ids        []string
	units      map[string]*equipment.Unit
	types      []model.EquipmentType
	detector   *anomaly.Detector
	unitSaving int
}

func NewFleet(roster []EquipmentDefinition, opts equipment.Options, detector *anomaly.Detector, unitSaving int, rng *rand.Rand) (*Fleet, error) {
	if len(roster) == 0 {
		return nil, fmt.Errorf("fleet roster is empty")
	}

	f := &Fleet{
		units:      make(map[string]*equipment.Unit, len(roster)),
		detector:   detector,
		unitSaving: unitSaving,
	}
	seen := make(map[model.EquipmentType]bool)

	for _, def := range roster {
		if _, dup := f.units[def.EquipmentID]; dup {
			return nil, fmt.Errorf("duplicate equipment id %q", def.EquipmentID)
		}
		p := equipment.RandomProfile(def.EquipmentType, rng)
		if def.Profile != nil {
			p = *def.Profile
		}
		u, err := equipment.NewUnit(def.EquipmentID, def.EquipmentType, def.Location, p, opts, rng)
		if err != nil {
			return nil, fmt.Errorf("equipment %s: %w", def.EquipmentID, err)
		}
		f.ids = append(f.ids, def.EquipmentID)
		f.units[def.EquipmentID] = u
		if !seen[def.EquipmentType] {
			seen[def.EquipmentType] = true
			f.types = append(f.types, def.EquipmentType)
		}
	}
	return f, nil
}

func (f *Fleet) Unit(id string) (*equipment.Unit, bool) {
	u, ok := f.units[id]
	return u, ok
}

// Units returns the units in roster order.
func (f *Fleet) Units() []*equipment.Unit {
	out := make([]*equipment.Unit, len(f.ids))
	for i, id := range f.ids {
		out[i] = f.units[id]
	}
	return out
}

// Types returns the equipment types in order of first appearance.
func (f *Fleet) Types() []model.EquipmentType {
	return f.types
}

func (f *Fleet) UnitsOfType(t model.EquipmentType) []*equipment.Unit {
	var out []*equipment.Unit
	for _, id := range f.ids {
		if u := f.units[id]; u.Type() == t {
			out = append(out, u)
		}
	}
	return out
}

// Collect generates one reading per unit for the shared timestamp.
func (f *Fleet) Collect(now time.Time) map[string]model.Reading {
	readings := make(map[string]model.Reading, len(f.ids))
	for _, id := range f.ids {
		u := f.units[id]
		r := u.GenerateReading(now)
		readings[id] = r
		f.detector.Record(u.Type(), r.Features())
	}
	return readings
}

// RecomputeAndAggregate refreshes health and maintenance state of every unit
// and tallies the fleet counters.
func (f *Fleet) RecomputeAndAggregate(now time.Time) model.FleetStats {
	for _, id := range f.ids {
		u := f.units[id]
		u.CalculateHealthScore()
		u.PredictMaintenance(now)
	}
	return f.Aggregate()
}

// Aggregate counts from the current unit states only.
func (f *Fleet) Aggregate() model.FleetStats {
	stats := model.FleetStats{TotalEquipment: len(f.ids)}
	for _, id := range f.ids {
		u := f.units[id]
		if u.HealthScore() > 80 {
			stats.HealthyEquipment++
		}
		if u.MaintenanceDue() {
			stats.MaintenanceNeeded++
		}
		if u.AnomalyDetected() {
			stats.AnomaliesDetected++
		}
	}
	stats.CostSavings = max(0, stats.MaintenanceNeeded-stats.AnomaliesDetected) * f.unitSaving
	return stats
}

func (f *Fleet) Status() map[string]model.UnitStatus {
	status := make(map[string]model.UnitStatus, len(f.ids))
	for _, id := range f.ids {
		status[id] = f.units[id].Status()
	}
	return status
}
