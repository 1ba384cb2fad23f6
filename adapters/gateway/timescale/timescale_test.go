package timescale

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/Go-routine-4595/edge-iot-sim/model"
)

func TestSinkSendSnapshot(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewSink(db, "readings")
	ts := time.Now()

	snap := model.Snapshot{
		Readings: map[string]model.Reading{
			"PUMP_002": {Timestamp: ts, Vibration: 0.3, Temperature: 65, Pressure: 80, Current: 15},
			"CNC_001":  {Timestamp: ts, Vibration: 0.5, Temperature: 70, Pressure: 50, Current: 10},
		},
	}

	expectedQuery := regexp.QuoteMeta("INSERT INTO readings (equipment_id, ts, vibration, temperature, pressure, current) VALUES ($1,$2,$3,$4,$5,$6),($7,$8,$9,$10,$11,$12) ON CONFLICT (equipment_id, ts) DO NOTHING")
	mock.ExpectExec(expectedQuery).
		WithArgs("CNC_001", ts, 0.5, 70.0, 50.0, 10.0, "PUMP_002", ts, 0.3, 65.0, 80.0, 15.0).
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := sink.SendSnapshot(snap); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSinkSendSnapshotNoReadings(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	if err := NewSink(db, "").SendSnapshot(model.Snapshot{}); err != nil {
		t.Fatalf("expected nil error for empty snapshot, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSinkSurfacesExecError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	boom := errors.New("hypertable missing")
	mock.ExpectExec("INSERT INTO equipment_readings").WillReturnError(boom)

	snap := model.Snapshot{Readings: map[string]model.Reading{"M": {Timestamp: time.Now()}}}
	if err := NewSink(db, "").SendSnapshot(snap); !errors.Is(err, boom) {
		t.Fatalf("expected exec error, got %v", err)
	}
}

func TestSinkName(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer db.Close()

	if name := NewSink(db, "readings").Name(); name != "timescaledb" {
		t.Fatalf("expected sink name timescaledb, got %s", name)
	}
}
