package controller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Go-routine-4595/edge-iot-sim/model"
)

const (
	DefaultTickPeriod   = 2 * time.Second
	DefaultErrorBackoff = 5 * time.Second
	DefaultQueueSize    = 16
)

type ControllerConfig struct {
	TickPeriod   time.Duration `yaml:"TickPeriod"`
	ErrorBackoff time.Duration `yaml:"ErrorBackoff"`
	QueueSize    int           `yaml:"QueueSize"`
	Roster       string        `yaml:"Roster"`
	Seed         uint64        `yaml:"Seed"`
	LogLevel     int           `yaml:"LogLevel"`
}

func (c *ControllerConfig) ApplyDefaults() {
	if c.TickPeriod <= 0 {
		c.TickPeriod = DefaultTickPeriod
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = DefaultErrorBackoff
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
}

// ITicker runs one monitoring cycle.
type ITicker interface {
	Tick() (model.Snapshot, error)
}

// IObserver is told the outcome of every cycle.
type IObserver interface {
	ObserveTick(elapsed time.Duration, err error)
}

// Controller drives the monitoring loop: tick, publish, sleep.
type Controller struct {
	period   time.Duration
	backoff  time.Duration
	ticker   ITicker
	out      chan<- model.Snapshot
	observer IObserver
	logger   zerolog.Logger
	done     chan struct{}
}

func NewController(conf ControllerConfig, t ITicker, out chan<- model.Snapshot, obs IObserver, logger zerolog.Logger) *Controller {
	conf.ApplyDefaults()
	return &Controller{
		period:   conf.TickPeriod,
		backoff:  conf.ErrorBackoff,
		ticker:   t,
		out:      out,
		observer: obs,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start runs the loop in its own goroutine until ctx is cancelled.
func (c *Controller) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(c.done)
		c.run(ctx)
		c.logger.Info().Msg("Controller: context received signal, shutting down...")
	}()
}

// Done is closed once the loop has returned.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) run(ctx context.Context) {
	for {
		wait := c.period
		if err := c.step(); err != nil {
			c.logger.Error().Err(err).Dur("backoff", c.backoff).Msg("monitoring tick failed")
			wait = c.backoff
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (c *Controller) step() error {
	start := time.Now()
	snap, err := c.ticker.Tick()
	if c.observer != nil {
		c.observer.ObserveTick(time.Since(start), err)
	}
	if err != nil {
		return err
	}

	select {
	case c.out <- snap:
	default:
		c.logger.Warn().Uint64("sequence", snap.Sequence).Msg("publish queue full, dropping snapshot")
	}
	return nil
}
