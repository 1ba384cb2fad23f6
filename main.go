package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Go-routine-4595/edge-iot-sim/adapters/api"
	"github.com/Go-routine-4595/edge-iot-sim/adapters/controller"
	"github.com/Go-routine-4595/edge-iot-sim/adapters/gateway/display"
	"github.com/Go-routine-4595/edge-iot-sim/adapters/gateway/event-hub"
	"github.com/Go-routine-4595/edge-iot-sim/adapters/gateway/fanout"
	"github.com/Go-routine-4595/edge-iot-sim/adapters/gateway/mqtt"
	"github.com/Go-routine-4595/edge-iot-sim/adapters/gateway/rabbitmq"
	"github.com/Go-routine-4595/edge-iot-sim/adapters/gateway/redis"
	"github.com/Go-routine-4595/edge-iot-sim/adapters/gateway/sqlite"
	"github.com/Go-routine-4595/edge-iot-sim/adapters/gateway/timescale"
	"github.com/Go-routine-4595/edge-iot-sim/adapters/metrics"
	"github.com/Go-routine-4595/edge-iot-sim/model"
	"github.com/Go-routine-4595/edge-iot-sim/service"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "edge-iot-sim",
		Short: "Edge IoT equipment simulator with health scoring and anomaly detection",
		Long: `Simulates a fleet of industrial units, scores their health, predicts
maintenance and flags anomalous readings every tick. Snapshots are published
to the configured gateways and served over HTTP.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(simulateCmd())

	if err := rootCmd.Execute(); err != nil {
		processError(err)
	}
}

func runCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the monitoring loop and publish snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := openConfigFile(cfgPath)
			if err != nil {
				return err
			}
			return run(conf)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "config.yaml", "Path to configuration file")
	return cmd
}

func validateCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a configuration file and its roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := openConfigFile(cfgPath)
			if err != nil {
				return err
			}
			roster, err := service.LoadRoster(conf.Roster)
			if err != nil {
				return err
			}
			if _, err = service.NewService(conf.serviceConfig(), roster); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config %s looks good (%d units)\n", cfgPath, len(roster))
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "config.yaml", "Path to configuration file to validate")
	return cmd
}

func simulateCmd() *cobra.Command {
	var (
		cfgPath string
		ticks   int
		seed    uint64
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a number of ticks offline and print the final snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := defaultConfig()
			if cfgPath != "" {
				var err error
				if conf, err = openConfigFile(cfgPath); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("seed") {
				conf.ControllerConfig.Seed = seed
			}
			return simulate(conf, ticks, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Optional configuration file")
	cmd.Flags().IntVarP(&ticks, "ticks", "n", 100, "Number of ticks to run")
	cmd.Flags().Uint64VarP(&seed, "seed", "s", 0, "Simulation seed (0 picks a random one)")
	return cmd
}

func run(conf Config) error {
	var (
		logger    zerolog.Logger
		svc       *service.Service
		roster    []service.EquipmentDefinition
		ctrl      *controller.Controller
		fan       *fanout.Fanout
		reg       *prometheus.Registry
		mtr       *metrics.Metrics
		snapshots chan model.Snapshot
		closers   []io.Closer
		journal   *sqlite.Journal
		ctx       context.Context
		cancel    context.CancelFunc
		sig       chan os.Signal
		wg        *sync.WaitGroup
		err       error
	)

	logger = createLogger(conf.LogLevel)
	wg = &sync.WaitGroup{}
	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()

	roster, err = service.LoadRoster(conf.Roster)
	if err != nil {
		return err
	}
	svc, err = service.NewService(conf.serviceConfig(), roster, service.WithLogger(logger))
	if err != nil {
		return err
	}

	reg = prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mtr = metrics.New(reg)

	snapshots = make(chan model.Snapshot, conf.QueueSize)
	fan = fanout.NewFanout(snapshots, logger, mtr)
	closers, journal = openGateways(ctx, wg, conf, logger, fan)
	logger.Info().Strs("publishers", fan.Publishers()).Int("units", len(roster)).Msg("gateways ready")

	// subscribers get the pre-tick view once before the loop starts
	fan.Dispatch(svc.Latest())
	fan.Start(ctx, wg)

	if conf.APIConfig.Addr != "" {
		srv := api.NewServer(svc, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), logger)
		if journal != nil {
			srv.WithJournal(journal)
		}
		srv.Start(ctx, wg, conf.APIConfig.Addr)
	}

	ctrl = controller.NewController(conf.ControllerConfig, svc, snapshots, mtr, logger)
	ctrl.Start(ctx, wg)

	sig = make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()
	wg.Wait()

	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close gateway")
		}
	}
	return nil
}

// openGateways registers every configured gateway on fan. A gateway that
// fails to start is logged and skipped. The sqlite journal, when open, is also
// returned so the API can serve its history.
func openGateways(ctx context.Context, wg *sync.WaitGroup, conf Config, logger zerolog.Logger, fan *fanout.Fanout) ([]io.Closer, *sqlite.Journal) {
	var (
		closers []io.Closer
		journal *sqlite.Journal
	)

	if conf.Display {
		fan.Add(display.NewDisplay())
	}
	if conf.MqttConf.Connection != "" {
		m, err := mqtt.NewMqtt(conf.MqttConf, logger, ctx, wg)
		if err != nil {
			logger.Error().Err(err).Msg("mqtt gateway disabled")
		} else {
			fan.Add(m)
		}
	}
	if conf.RabbitMQConfig.ConnectionString != "" {
		r := rabbitmq.NewRabbitMQ(conf.RabbitMQConfig, logger)
		if err := r.Start(ctx, wg); err != nil {
			logger.Error().Err(err).Msg("rabbitmq gateway disabled")
		} else {
			fan.Add(r)
		}
	}
	if conf.EventHubConfig.Connection != "" {
		eh, err := event_hub.NewEventHub(ctx, wg, conf.EventHubConfig, logger)
		if err != nil {
			logger.Error().Err(err).Msg("event hub gateway disabled")
		} else {
			fan.Add(eh)
		}
	}
	if conf.RedisConfig.Addr != "" {
		r, err := redis.NewRedis(conf.RedisConfig)
		if err != nil {
			logger.Error().Err(err).Msg("redis gateway disabled")
		} else {
			fan.Add(r)
			closers = append(closers, r)
		}
	}
	if conf.SQLiteConfig.Path != "" {
		j, err := sqlite.NewJournal(conf.SQLiteConfig)
		if err != nil {
			logger.Error().Err(err).Msg("sqlite journal disabled")
		} else {
			fan.Add(j)
			closers = append(closers, j)
			journal = j
		}
	}
	if conf.TimescaleConfig.DSN != "" {
		ts, err := timescale.Open(conf.TimescaleConfig)
		if err != nil {
			logger.Error().Err(err).Msg("timescale sink disabled")
		} else {
			fan.Add(ts)
			closers = append(closers, ts)
		}
	}
	return closers, journal
}

// simulate runs ticks cycles back to back and prints the final snapshot.
func simulate(conf Config, ticks int, out io.Writer) error {
	if ticks <= 0 {
		return errors.New("ticks must be positive")
	}
	roster, err := service.LoadRoster(conf.Roster)
	if err != nil {
		return err
	}

	// simulated time advances one tick period per cycle
	now := time.Now().UTC()
	clock := func() time.Time {
		now = now.Add(conf.TickPeriod)
		return now
	}
	svc, err := service.NewService(conf.serviceConfig(), roster, service.WithClock(clock))
	if err != nil {
		return err
	}

	var snap model.Snapshot
	for i := 0; i < ticks; i++ {
		if snap, err = svc.Tick(); err != nil {
			return errors.Join(err, fmt.Errorf("tick %d", i+1))
		}
	}
	return display.NewDisplayTo(out, true).SendSnapshot(snap)
}

// createLogger initializes a zerolog.Logger with standard settings.
func createLogger(logLevel int) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		Level(zerolog.InfoLevel+zerolog.Level(logLevel)).
		With().Timestamp().Int("pid", os.Getpid()).Logger()
}

func processError(err error) {
	fmt.Println(err)
	os.Exit(2)
}
