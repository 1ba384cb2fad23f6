package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Go-routine-4595/edge-iot-sim/adapters/api"
	"github.com/Go-routine-4595/edge-iot-sim/adapters/controller"
	"github.com/Go-routine-4595/edge-iot-sim/adapters/gateway/event-hub"
	"github.com/Go-routine-4595/edge-iot-sim/adapters/gateway/mqtt"
	"github.com/Go-routine-4595/edge-iot-sim/adapters/gateway/rabbitmq"
	"github.com/Go-routine-4595/edge-iot-sim/adapters/gateway/redis"
	"github.com/Go-routine-4595/edge-iot-sim/adapters/gateway/sqlite"
	"github.com/Go-routine-4595/edge-iot-sim/adapters/gateway/timescale"
	"github.com/Go-routine-4595/edge-iot-sim/service"
	"github.com/Go-routine-4595/edge-iot-sim/service/anomaly"
	"github.com/Go-routine-4595/edge-iot-sim/service/equipment"
)

// Config is the root of config.yaml. A gateway is enabled when its
// connection field is set.
type Config struct {
	controller.ControllerConfig `yaml:"ControllerConfig"`
	SimulationConfig            `yaml:"SimulationConfig"`
	mqtt.MqttConf               `yaml:"MqttConfig"`
	rabbitmq.RabbitMQConfig     `yaml:"RabbitConfig"`
	event_hub.EventHubConfig    `yaml:"EventHubConfig"`
	redis.RedisConfig           `yaml:"RedisConfig"`
	sqlite.SQLiteConfig         `yaml:"SQLiteConfig"`
	timescale.TimescaleConfig   `yaml:"TimescaleConfig"`
	api.APIConfig               `yaml:"APIConfig"`
	Display                     bool `yaml:"Display"`
}

type SimulationConfig struct {
	SpikeProbability float64       `yaml:"SpikeProbability"`
	NoiseScale       float64       `yaml:"NoiseScale"`
	CNCPeriod        time.Duration `yaml:"CNCPeriod"`
	HoursPerTick     float64       `yaml:"HoursPerTick"`
	BufferSize       int           `yaml:"BufferSize"`
	CorpusSize       int           `yaml:"CorpusSize"`
	MinCorpus        int           `yaml:"MinCorpus"`
	Contamination    float64       `yaml:"Contamination"`
	UnitSaving       int           `yaml:"UnitSaving"`
}

func defaultConfig() Config {
	var (
		eq = equipment.DefaultOptions()
		an = anomaly.DefaultConfig()
		c  Config
	)
	c.SimulationConfig = SimulationConfig{
		SpikeProbability: eq.SpikeProbability,
		NoiseScale:       eq.NoiseScale,
		CNCPeriod:        eq.CNCPeriod,
		HoursPerTick:     eq.HoursPerTick,
		BufferSize:       eq.BufferSize,
		CorpusSize:       an.CorpusSize,
		MinCorpus:        an.MinCorpus,
		Contamination:    an.Contamination,
		UnitSaving:       service.DefaultUnitSaving,
	}
	c.applyDefaults()
	return c
}

// openConfigFile decodes s over the defaults, so keys absent from the file
// keep their default value.
func openConfigFile(s string) (Config, error) {
	if s == "" {
		s = "config.yaml"
	}

	f, err := os.Open(s)
	if err != nil {
		return Config{}, errors.Join(err, errors.New("open config.yaml file"))
	}
	defer f.Close()

	config := defaultConfig()
	decoder := yaml.NewDecoder(f)
	if err = decoder.Decode(&config); err != nil {
		return Config{}, errors.Join(err, fmt.Errorf("decode %s", s))
	}

	config.applyDefaults()
	if err = config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c *Config) applyDefaults() {
	c.ControllerConfig.ApplyDefaults()

	d := equipment.DefaultOptions()
	if c.CNCPeriod <= 0 {
		c.CNCPeriod = d.CNCPeriod
	}
	if c.HoursPerTick <= 0 {
		c.HoursPerTick = d.HoursPerTick
	}
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	if c.UnitSaving <= 0 {
		c.UnitSaving = service.DefaultUnitSaving
	}
}

func (c *Config) validate() error {
	s := c.SimulationConfig
	if s.SpikeProbability < 0 || s.SpikeProbability > 1 {
		return fmt.Errorf("SimulationConfig.SpikeProbability must be in [0, 1], got %v", s.SpikeProbability)
	}
	if s.NoiseScale < 0 {
		return fmt.Errorf("SimulationConfig.NoiseScale must not be negative")
	}
	if s.Contamination <= 0 || s.Contamination >= 0.5 {
		return fmt.Errorf("SimulationConfig.Contamination must be in (0, 0.5), got %v", s.Contamination)
	}
	if s.MinCorpus <= 0 || s.CorpusSize <= s.MinCorpus {
		return fmt.Errorf("SimulationConfig.CorpusSize (%d) must exceed MinCorpus (%d)", s.CorpusSize, s.MinCorpus)
	}
	if c.MqttConf.Connection != "" && c.MqttConf.Topic == "" {
		return fmt.Errorf("MqttConfig.Topic is required when Connection is set")
	}
	if c.RabbitMQConfig.ConnectionString != "" && c.RabbitMQConfig.QueueName == "" {
		return fmt.Errorf("RabbitConfig.QueueName is required when ConnectionString is set")
	}
	return nil
}

func (c Config) serviceConfig() service.Config {
	cfg := service.DefaultConfig()
	cfg.Seed = c.ControllerConfig.Seed
	cfg.UnitSaving = c.UnitSaving
	cfg.Equipment = equipment.Options{
		BufferSize:       c.BufferSize,
		SpikeProbability: c.SpikeProbability,
		NoiseScale:       c.NoiseScale,
		CNCPeriod:        c.CNCPeriod,
		HoursPerTick:     c.HoursPerTick,
	}
	cfg.Anomaly.CorpusSize = c.CorpusSize
	cfg.Anomaly.MinCorpus = c.MinCorpus
	cfg.Anomaly.Contamination = c.Contamination
	return cfg
}
