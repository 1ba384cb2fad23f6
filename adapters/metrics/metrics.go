package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Go-routine-4595/edge-iot-sim/model"
)

// Metrics exports the fleet state of each snapshot and the monitoring loop
// timings as prometheus series.
type Metrics struct {
	HealthScore       *prometheus.GaugeVec
	MaintenanceDue    *prometheus.GaugeVec
	AnomalyDetected   *prometheus.GaugeVec
	HealthyEquipment  prometheus.Gauge
	MaintenanceNeeded prometheus.Gauge
	Anomalies         prometheus.Gauge
	CostSavings       prometheus.Gauge
	AnomaliesTotal    *prometheus.CounterVec
	TickFailures      prometheus.Counter
	TickDuration      prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	unitLabels := []string{"equipment_id", "equipment_type"}

	return &Metrics{
		HealthScore: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "equipment_health_score",
			Help: "Current health score (0-100) per unit",
		}, unitLabels),
		MaintenanceDue: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "equipment_maintenance_due",
			Help: "1 when the unit needs maintenance",
		}, unitLabels),
		AnomalyDetected: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "equipment_anomaly_detected",
			Help: "1 when the unit's latest reading was scored anomalous",
		}, unitLabels),
		HealthyEquipment: f.NewGauge(prometheus.GaugeOpts{
			Name: "fleet_healthy_equipment",
			Help: "Number of units with health above 80",
		}),
		MaintenanceNeeded: f.NewGauge(prometheus.GaugeOpts{
			Name: "fleet_maintenance_needed",
			Help: "Number of units needing maintenance",
		}),
		Anomalies: f.NewGauge(prometheus.GaugeOpts{
			Name: "fleet_anomalies",
			Help: "Number of units currently flagged anomalous",
		}),
		CostSavings: f.NewGauge(prometheus.GaugeOpts{
			Name: "fleet_cost_savings_dollars",
			Help: "Estimated savings from predicted maintenance",
		}),
		AnomaliesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "anomalies_detected_total",
			Help: "Total number of anomaly records produced",
		}, []string{"equipment_id"}),
		TickFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "monitor_tick_failures_total",
			Help: "Total number of failed monitoring ticks",
		}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "monitor_tick_duration_seconds",
			Help:    "Monitoring tick duration in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
	}
}

func (m *Metrics) Name() string { return "metrics" }

func (m *Metrics) SendSnapshot(snap model.Snapshot) error {
	for id, st := range snap.EquipmentStatus {
		labels := prometheus.Labels{"equipment_id": id, "equipment_type": string(st.EquipmentType)}
		m.HealthScore.With(labels).Set(st.HealthScore)
		m.MaintenanceDue.With(labels).Set(boolGauge(st.MaintenanceDue))
		m.AnomalyDetected.With(labels).Set(boolGauge(st.AnomalyDetected))
	}

	m.HealthyEquipment.Set(float64(snap.Stats.HealthyEquipment))
	m.MaintenanceNeeded.Set(float64(snap.Stats.MaintenanceNeeded))
	m.Anomalies.Set(float64(snap.Stats.AnomaliesDetected))
	m.CostSavings.Set(float64(snap.Stats.CostSavings))

	for _, a := range snap.Anomalies {
		m.AnomaliesTotal.WithLabelValues(a.EquipmentID).Inc()
	}
	return nil
}

func (m *Metrics) ObserveTick(elapsed time.Duration, err error) {
	m.TickDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.TickFailures.Inc()
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
