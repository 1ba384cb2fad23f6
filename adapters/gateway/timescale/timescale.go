package timescale

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "github.com/lib/pq"

	"github.com/Go-routine-4595/edge-iot-sim/model"
)

const defaultTable = "equipment_readings"

type TimescaleConfig struct {
	DSN   string `yaml:"DSN"`
	Table string `yaml:"Table"`
}

// Sink writes every snapshot's raw readings to a hypertable in one statement.
type Sink struct {
	db        *sql.DB
	tableName string
}

// Open connects through lib/pq.
func Open(conf TimescaleConfig) (*Sink, error) {
	db, err := sql.Open("postgres", conf.DSN)
	if err != nil {
		return nil, fmt.Errorf("open timescale: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping timescale: %w", err)
	}
	return NewSink(db, conf.Table), nil
}

func NewSink(db *sql.DB, table string) *Sink {
	if table == "" {
		table = defaultTable
	}
	return &Sink{db: db, tableName: table}
}

func (s *Sink) Name() string { return "timescaledb" }

// SendSnapshot inserts the readings ordered by equipment id. Replays of the
// same (equipment_id, ts) are ignored.
func (s *Sink) SendSnapshot(snap model.Snapshot) error {
	if len(snap.Readings) == 0 {
		return nil
	}

	ids := make([]string, 0, len(snap.Readings))
	for id := range snap.Readings {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(s.tableName)
	b.WriteString(" (equipment_id, ts, vibration, temperature, pressure, current) VALUES ")

	args := make([]any, 0, len(ids)*6)
	for i, id := range ids {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d)",
			len(args)+1, len(args)+2, len(args)+3, len(args)+4, len(args)+5, len(args)+6))

		r := snap.Readings[id]
		args = append(args, id, r.Timestamp, r.Vibration, r.Temperature, r.Pressure, r.Current)
	}
	b.WriteString(" ON CONFLICT (equipment_id, ts) DO NOTHING")

	if _, err := s.db.Exec(b.String(), args...); err != nil {
		return fmt.Errorf("insert readings: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	return s.db.Close()
}

var _ model.IPublisher = (*Sink)(nil)
