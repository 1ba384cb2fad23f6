package model

import (
	"errors"
	"time"
)

var (
	ErrEquipmentNotFound = errors.New("equipment not found")
	ErrInsufficientData  = errors.New("insufficient data")
	ErrDegenerateData    = errors.New("degenerate data")
)

type EquipmentType string

const (
	CNC        EquipmentType = "CNC"
	Pump       EquipmentType = "Pump"
	Motor      EquipmentType = "Motor"
	Compressor EquipmentType = "Compressor"
)

// Reading is one synthetic multi-sensor sample.
type Reading struct {
	Timestamp   time.Time `json:"timestamp"`
	Vibration   float64   `json:"vibration"`
	Temperature float64   `json:"temperature"`
	Pressure    float64   `json:"pressure"`
	Current     float64   `json:"current"`
}

// Features returns the reading as a 4-dimensional feature vector.
func (r Reading) Features() []float64 {
	return []float64{r.Vibration, r.Temperature, r.Pressure, r.Current}
}

type SensorValues struct {
	Vibration   float64 `json:"vibration"`
	Temperature float64 `json:"temperature"`
	Pressure    float64 `json:"pressure"`
	Current     float64 `json:"current"`
}

type AnomalyRecord struct {
	ID            string        `json:"id"`
	EquipmentID   string        `json:"equipment_id"`
	EquipmentType EquipmentType `json:"equipment_type"`
	Location      string        `json:"location"`
	AnomalyScore  float64       `json:"anomaly_score"`
	Timestamp     time.Time     `json:"timestamp"`
	SensorValues  SensorValues  `json:"sensor_values"`
}

// MaintenanceEvent is one change of a unit's maintenance-due flag.
type MaintenanceEvent struct {
	EquipmentID      string     `json:"equipment_id"`
	Timestamp        time.Time  `json:"timestamp"`
	MaintenanceDue   bool       `json:"maintenance_due"`
	HealthScore      float64    `json:"health_score"`
	PredictedFailure *time.Time `json:"predicted_failure_date"`
}

type FleetStats struct {
	TotalEquipment    int `json:"total_equipment"`
	HealthyEquipment  int `json:"healthy_equipment"`
	MaintenanceNeeded int `json:"equipment_needing_maintenance"`
	AnomaliesDetected int `json:"anomalies_detected"`
	CostSavings       int `json:"cost_savings"`
}

type UnitStatus struct {
	EquipmentType        EquipmentType `json:"equipment_type"`
	Location             string        `json:"location"`
	HealthScore          float64       `json:"health_score"`
	OperatingHours       float64       `json:"operating_hours"`
	MaintenanceDue       bool          `json:"maintenance_due"`
	AnomalyDetected      bool          `json:"anomaly_detected"`
	PredictedFailureDate *time.Time    `json:"predicted_failure_date"`
	CurrentReadings      SensorValues  `json:"current_readings"`
}

type History struct {
	Vibration   []float64 `json:"vibration"`
	Temperature []float64 `json:"temperature"`
	Pressure    []float64 `json:"pressure"`
	Current     []float64 `json:"current"`
}

// Snapshot is the immutable per-tick view of the fleet. It must not be
// mutated once published.
type Snapshot struct {
	Sequence        uint64                `json:"sequence"`
	Timestamp       time.Time             `json:"timestamp"`
	Readings        map[string]Reading    `json:"readings,omitempty"`
	Anomalies       []AnomalyRecord       `json:"anomalies"`
	Stats           FleetStats            `json:"stats"`
	EquipmentStatus map[string]UnitStatus `json:"equipment_status"`
}

// IPublisher delivers snapshots to an external transport or store.
type IPublisher interface {
	SendSnapshot(s Snapshot) error
	Name() string
}
