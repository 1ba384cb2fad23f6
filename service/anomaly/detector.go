package anomaly

import (
	"errors"
	"fmt"

	"github.com/Go-routine-4595/edge-iot-sim/model"
	"github.com/Go-routine-4595/edge-iot-sim/service/ring"
)

type Config struct {
	CorpusSize    int     `yaml:"CorpusSize"`
	MinCorpus     int     `yaml:"MinCorpus"`
	Contamination float64 `yaml:"Contamination"`
	Seed          uint64  `yaml:"Seed"`
}

func DefaultConfig() Config {
	return Config{
		CorpusSize:    200,
		MinCorpus:     50,
		Contamination: 0.1,
		Seed:          42,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.CorpusSize <= 0 {
		c.CorpusSize = d.CorpusSize
	}
	if c.MinCorpus <= 0 {
		c.MinCorpus = d.MinCorpus
	}
	if c.Contamination <= 0 {
		c.Contamination = d.Contamination
	}
}

// ModelFactory builds the outlier model used for one equipment type.
type ModelFactory func(t model.EquipmentType) Model

// IsolationForestFactory returns a factory building seeded isolation forests.
func IsolationForestFactory(cfg Config) ModelFactory {
	return func(model.EquipmentType) Model {
		return NewIsolationForest(cfg.Contamination, cfg.Seed)
	}
}

// typeScorer is the fitted state kept for one equipment type.
type typeScorer struct {
	corpus     *ring.Buffer[[]float64]
	normalizer Normalizer
	model      Model
	fitted     bool
}

// Detector keeps one scorer per equipment type. It is not safe for concurrent
// use; the monitoring loop owns it.
type Detector struct {
	cfg     Config
	factory ModelFactory
	scorers map[model.EquipmentType]*typeScorer
}

func NewDetector(cfg Config, factory ModelFactory) *Detector {
	cfg.applyDefaults()
	if factory == nil {
		factory = IsolationForestFactory(cfg)
	}
	return &Detector{
		cfg:     cfg,
		factory: factory,
		scorers: make(map[model.EquipmentType]*typeScorer),
	}
}

func (d *Detector) scorer(t model.EquipmentType) *typeScorer {
	s, ok := d.scorers[t]
	if !ok {
		s = &typeScorer{
			corpus: ring.New[[]float64](d.cfg.CorpusSize),
			model:  d.factory(t),
		}
		d.scorers[t] = s
	}
	return s
}

// Record appends a feature vector to the type's training corpus, evicting the
// oldest entry beyond CorpusSize.
func (d *Detector) Record(t model.EquipmentType, features []float64) {
	v := make([]float64, len(features))
	copy(v, features)
	d.scorer(t).corpus.Push(v)
}

func (d *Detector) CorpusSize(t model.EquipmentType) int {
	s, ok := d.scorers[t]
	if !ok {
		return 0
	}
	return s.corpus.Len()
}

// Ready reports whether the type's corpus is past the cold-start threshold.
func (d *Detector) Ready(t model.EquipmentType) bool {
	return d.CorpusSize(t) > d.cfg.MinCorpus
}

// Retrain fits the type's normalizer and model on its current corpus. A
// failed fit leaves the scorer unfitted until the next successful call.
func (d *Detector) Retrain(t model.EquipmentType) (err error) {
	if !d.Ready(t) {
		return model.ErrInsufficientData
	}
	s := d.scorers[t]
	s.fitted = false

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fit %s model panicked: %v", t, r)
		}
	}()

	corpus := s.corpus.Tail(0)
	norm, err := FitNormalizer(corpus)
	if err != nil {
		return errors.Join(err, fmt.Errorf("fit %s normalizer", t))
	}
	scaled, err := norm.TransformAll(corpus)
	if err != nil {
		return err
	}
	if err = s.model.Fit(scaled); err != nil {
		return errors.Join(err, fmt.Errorf("fit %s model", t))
	}
	s.normalizer = norm
	s.fitted = true
	return nil
}

// Score normalises x with the last fitted normalizer and asks the model for
// a decision. It fails if the last Retrain for t did not succeed.
func (d *Detector) Score(t model.EquipmentType, x []float64) (isAnomaly bool, score float64, err error) {
	s, ok := d.scorers[t]
	if !ok || !s.fitted {
		return false, 0, fmt.Errorf("%s scorer is not fitted", t)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("score %s model panicked: %v", t, r)
		}
	}()

	scaled, err := s.normalizer.Transform(x)
	if err != nil {
		return false, 0, err
	}
	score, isAnomaly, err = s.model.Decision(scaled)
	return isAnomaly, score, err
}

// RetrainAndScore retrains the type's scorer on its corpus, then scores x.
func (d *Detector) RetrainAndScore(t model.EquipmentType, x []float64) (bool, float64, error) {
	if err := d.Retrain(t); err != nil {
		return false, 0, err
	}
	return d.Score(t, x)
}
