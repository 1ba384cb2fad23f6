package sqlite

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Go-routine-4595/edge-iot-sim/model"
)

type SQLiteConfig struct {
	Path string `yaml:"Path"`
}

// Journal persists anomaly records and maintenance flag transitions.
type Journal struct {
	conn *sql.DB

	mu      sync.Mutex
	lastDue map[string]bool
}

func NewJournal(conf SQLiteConfig) (*Journal, error) {
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", conf.Path)

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single writer
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	j := &Journal{conn: conn, lastDue: make(map[string]bool)}
	if err := j.initialize(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return j, nil
}

func (j *Journal) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS anomalies (
		id TEXT PRIMARY KEY,
		equipment_id TEXT NOT NULL,
		equipment_type TEXT NOT NULL,
		location TEXT NOT NULL,
		anomaly_score REAL NOT NULL,
		timestamp DATETIME NOT NULL,
		vibration REAL NOT NULL,
		temperature REAL NOT NULL,
		pressure REAL NOT NULL,
		current REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS maintenance_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		equipment_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		maintenance_due INTEGER NOT NULL,
		health_score REAL NOT NULL,
		predicted_failure DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_anomalies_equipment_ts ON anomalies(equipment_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_maintenance_equipment_ts ON maintenance_events(equipment_id, timestamp);
	`
	_, err := j.conn.Exec(schema)
	return err
}

func (j *Journal) Name() string { return "sqlite" }

// SendSnapshot stores the snapshot's anomaly records and one maintenance
// event for every unit whose due flag changed since the previous snapshot.
func (j *Journal) SendSnapshot(snap model.Snapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	anomalyStmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO anomalies
		(id, equipment_id, equipment_type, location, anomaly_score, timestamp,
		 vibration, temperature, pressure, current)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare anomalies: %w", err)
	}
	defer anomalyStmt.Close()

	for _, a := range snap.Anomalies {
		_, err = anomalyStmt.Exec(
			a.ID, a.EquipmentID, string(a.EquipmentType), a.Location, a.AnomalyScore, a.Timestamp.UTC(),
			a.SensorValues.Vibration, a.SensorValues.Temperature, a.SensorValues.Pressure, a.SensorValues.Current,
		)
		if err != nil {
			return fmt.Errorf("insert anomaly %s: %w", a.ID, err)
		}
	}

	changed := make(map[string]bool)
	for id, st := range snap.EquipmentStatus {
		if j.lastDue[id] == st.MaintenanceDue {
			continue
		}
		var predicted any
		if st.PredictedFailureDate != nil {
			predicted = st.PredictedFailureDate.UTC()
		}
		_, err = tx.Exec(`
			INSERT INTO maintenance_events
			(equipment_id, timestamp, maintenance_due, health_score, predicted_failure)
			VALUES (?, ?, ?, ?, ?)
		`, id, snap.Timestamp.UTC(), st.MaintenanceDue, st.HealthScore, predicted)
		if err != nil {
			return fmt.Errorf("insert maintenance event %s: %w", id, err)
		}
		changed[id] = st.MaintenanceDue
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	for id, due := range changed {
		j.lastDue[id] = due
	}
	return nil
}

// Anomalies returns up to limit stored records for the unit, newest first.
// An empty id matches every unit.
func (j *Journal) Anomalies(equipmentID string, limit int) ([]model.AnomalyRecord, error) {
	query := `
		SELECT id, equipment_id, equipment_type, location, anomaly_score, timestamp,
		       vibration, temperature, pressure, current
		FROM anomalies
		WHERE (? = '' OR equipment_id = ?)
		ORDER BY timestamp DESC
		LIMIT ?
	`
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.conn.Query(query, equipmentID, equipmentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query anomalies: %w", err)
	}
	defer rows.Close()

	var out []model.AnomalyRecord
	for rows.Next() {
		var (
			a      model.AnomalyRecord
			eqType string
		)
		err = rows.Scan(&a.ID, &a.EquipmentID, &eqType, &a.Location, &a.AnomalyScore, &a.Timestamp,
			&a.SensorValues.Vibration, &a.SensorValues.Temperature, &a.SensorValues.Pressure, &a.SensorValues.Current)
		if err != nil {
			return nil, err
		}
		a.EquipmentType = model.EquipmentType(eqType)
		out = append(out, a)
	}
	return out, rows.Err()
}

// MaintenanceEvents returns the unit's due-flag transitions, oldest first.
func (j *Journal) MaintenanceEvents(equipmentID string) ([]model.MaintenanceEvent, error) {
	rows, err := j.conn.Query(`
		SELECT equipment_id, timestamp, maintenance_due, health_score, predicted_failure
		FROM maintenance_events
		WHERE equipment_id = ?
		ORDER BY id
	`, equipmentID)
	if err != nil {
		return nil, fmt.Errorf("query maintenance events: %w", err)
	}
	defer rows.Close()

	var out []model.MaintenanceEvent
	for rows.Next() {
		var (
			e         model.MaintenanceEvent
			predicted sql.NullTime
		)
		if err := rows.Scan(&e.EquipmentID, &e.Timestamp, &e.MaintenanceDue, &e.HealthScore, &predicted); err != nil {
			return nil, err
		}
		if predicted.Valid {
			at := predicted.Time
			e.PredictedFailure = &at
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *Journal) Close() error {
	return j.conn.Close()
}
