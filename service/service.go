package service

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Go-routine-4595/edge-iot-sim/model"
	"github.com/Go-routine-4595/edge-iot-sim/service/anomaly"
	"github.com/Go-routine-4595/edge-iot-sim/service/equipment"
)

const DefaultHistoryLimit = 100

type Config struct {
	Equipment  equipment.Options `yaml:"Equipment"`
	Anomaly    anomaly.Config    `yaml:"Anomaly"`
	UnitSaving int               `yaml:"UnitSaving"`
	Seed       uint64            `yaml:"Seed"`
}

func DefaultConfig() Config {
	return Config{
		Equipment:  equipment.DefaultOptions(),
		Anomaly:    anomaly.DefaultConfig(),
		UnitSaving: DefaultUnitSaving,
	}
}

type Option func(*Service)

func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithModelFactory(factory anomaly.ModelFactory) Option {
	return func(s *Service) { s.factory = factory }
}

// Service owns the fleet and the detector. Only Tick (and the Collect /
// Detect / Update steps) mutate them; readers get the last published snapshot
// or a read-locked history copy.
type Service struct {
	mu       sync.RWMutex
	fleet    *Fleet
	detector *anomaly.Detector
	factory  anomaly.ModelFactory
	clock    func() time.Time
	logger   zerolog.Logger
	latest   atomic.Pointer[model.Snapshot]
	seq      uint64
}

func NewService(cfg Config, roster []EquipmentDefinition, opts ...Option) (*Service, error) {
	var (
		s   *Service
		rng *rand.Rand
		err error
	)

	s = &Service{
		clock:  time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng = rand.New(rand.NewPCG(seed, seed>>1|1))

	if cfg.UnitSaving <= 0 {
		cfg.UnitSaving = DefaultUnitSaving
	}

	s.detector = anomaly.NewDetector(cfg.Anomaly, s.factory)
	s.fleet, err = NewFleet(roster, cfg.Equipment, s.detector, cfg.UnitSaving, rng)
	if err != nil {
		return nil, errors.Join(err, errors.New("build fleet"))
	}

	now := s.clock()
	s.latest.Store(&model.Snapshot{
		Timestamp:       now,
		Anomalies:       []model.AnomalyRecord{},
		Stats:           s.fleet.Aggregate(),
		EquipmentStatus: s.fleet.Status(),
	})
	return s, nil
}

// Tick runs one collect -> detect -> recompute cycle and publishes the
// resulting snapshot. A panic aborts the tick and no snapshot is stored.
func (s *Service) Tick() (snap model.Snapshot, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick aborted: %v", r)
			snap = model.Snapshot{}
		}
	}()

	readings, now := s.collect()
	anomalies := s.detect(now)
	stats := s.fleet.RecomputeAndAggregate(now)

	s.seq++
	snap = model.Snapshot{
		Sequence:        s.seq,
		Timestamp:       now,
		Readings:        readings,
		Anomalies:       anomalies,
		Stats:           stats,
		EquipmentStatus: s.fleet.Status(),
	}
	s.latest.Store(&snap)
	return snap, nil
}

// CollectSensorData generates one reading per unit and feeds the corpora.
func (s *Service) CollectSensorData() (map[string]model.Reading, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect()
}

// DetectAnomalies retrains every ready type and scores its units' latest
// readings.
func (s *Service) DetectAnomalies() []model.AnomalyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detect(s.clock())
}

// UpdateSystemStats recomputes health and maintenance state and returns the
// fleet counters.
func (s *Service) UpdateSystemStats() model.FleetStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fleet.RecomputeAndAggregate(s.clock())
}

func (s *Service) collect() (map[string]model.Reading, time.Time) {
	now := s.clock()
	return s.fleet.Collect(now), now
}

func (s *Service) detect(now time.Time) []model.AnomalyRecord {
	anomalies := []model.AnomalyRecord{}

	for _, t := range s.fleet.Types() {
		if !s.detector.Ready(t) {
			continue
		}
		if err := s.detector.Retrain(t); err != nil {
			s.logger.Warn().Err(err).Str("equipment_type", string(t)).Msg("anomaly model fit failed, keeping previous flags")
			continue
		}

		for _, u := range s.fleet.UnitsOfType(t) {
			if u.Samples() == 0 {
				continue
			}
			latest := u.Latest()
			isAnomaly, score, err := s.detector.Score(t, []float64{latest.Vibration, latest.Temperature, latest.Pressure, latest.Current})
			if err != nil {
				s.logger.Warn().Err(err).Str("equipment_id", u.ID()).Msg("anomaly scoring failed, keeping previous flag")
				continue
			}
			u.SetAnomalyDetected(isAnomaly)
			if !isAnomaly {
				continue
			}
			anomalies = append(anomalies, model.AnomalyRecord{
				ID:            uuid.NewString(),
				EquipmentID:   u.ID(),
				EquipmentType: t,
				Location:      u.Location(),
				AnomalyScore:  score,
				Timestamp:     now,
				SensorValues:  latest,
			})
		}
	}
	return anomalies
}

// Latest returns the last published snapshot, or the initial one built from
// the roster before the first tick.
func (s *Service) Latest() model.Snapshot {
	return *s.latest.Load()
}

func (s *Service) EquipmentStatus() map[string]model.UnitStatus {
	return s.Latest().EquipmentStatus
}

func (s *Service) EquipmentStatusByID(id string) (model.UnitStatus, error) {
	st, ok := s.Latest().EquipmentStatus[id]
	if !ok {
		return model.UnitStatus{}, errors.Join(model.ErrEquipmentNotFound, fmt.Errorf("equipment %q", id))
	}
	return st, nil
}

// EquipmentHistory copies up to limit of the most recent samples of each
// series; limit <= 0 means DefaultHistoryLimit.
func (s *Service) EquipmentHistory(id string, limit int) (model.History, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.fleet.Unit(id)
	if !ok {
		return model.History{}, errors.Join(model.ErrEquipmentNotFound, fmt.Errorf("equipment %q", id))
	}
	return u.History(limit), nil
}
