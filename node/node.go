// Package node runs the full index exchange on every rank of a partitioned line:
// remote index bootstrap, optional sync, interface build and both communicators.
package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/spacemeshos/go-parindex/config"
	"github.com/spacemeshos/go-parindex/log"
	"github.com/spacemeshos/go-parindex/metrics"
	"github.com/spacemeshos/go-parindex/transport"
	"github.com/spacemeshos/go-parindex/transport/memory"
	"github.com/spacemeshos/go-parindex/transport/p2p"
)

// Logger names.
const (
	AppLogger           = "app"
	TransportLogger     = "transport"
	RemoteIndicesLogger = "remoteindices"
	SyncerLogger        = "syncer"
	InterfaceLogger     = "iface"
	CommunicatorLogger  = "communicator"
	MetricsLogger       = "metrics"
)

// Opt is a type to configure the app.
type Opt func(app *App)

// WithConfig overrides the default configuration.
func WithConfig(conf *config.Config) Opt {
	return func(app *App) {
		app.Config = conf
	}
}

// WithLog configures the base logger. Component loggers are derived from it and can
// only raise its level.
func WithLog(logger *zap.Logger) Opt {
	return func(app *App) {
		app.log = logger
	}
}

// WithClock overrides the wall clock used for periodic work.
func WithClock(clock clockwork.Clock) Opt {
	return func(app *App) {
		app.clock = clock
	}
}

// App runs all ranks of one configuration in this process.
type App struct {
	Config *config.Config
	log    *zap.Logger
	clock  clockwork.Clock
}

// New creates an app with the default configuration.
func New(opts ...Opt) *App {
	defaultConfig := config.DefaultConfig()
	app := &App{
		Config: &defaultConfig,
		log:    log.NewNop(),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

func (app *App) getLevel(name string) zapcore.Level {
	var level string
	switch name {
	case TransportLogger:
		level = app.Config.Logging.TransportLoggerLevel
	case RemoteIndicesLogger:
		level = app.Config.Logging.RemoteIndicesLoggerLevel
	case SyncerLogger:
		level = app.Config.Logging.SyncerLoggerLevel
	case InterfaceLogger:
		level = app.Config.Logging.InterfaceLoggerLevel
	case CommunicatorLogger:
		level = app.Config.Logging.CommunicatorLoggerLevel
	case MetricsLogger:
		level = app.Config.Logging.MetricsLoggerLevel
	default:
		level = app.Config.Logging.AppLoggerLevel
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		app.log.Error("invalid log level, using info", zap.String("module", name), zap.String("level", level))
		return zapcore.InfoLevel
	}
	return lvl
}

func (app *App) addLogger(name string) *zap.Logger {
	return app.log.Named(name).WithOptions(zap.IncreaseLevel(app.getLevel(name)))
}

// Start runs every rank until the exchange is done or ctx is cancelled and returns the
// report of each rank in rank order.
func (app *App) Start(ctx context.Context) ([]Report, error) {
	if err := app.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	metricsCtx, stopMetrics := context.WithCancel(ctx)
	wait := app.startMetrics(metricsCtx)
	defer func() {
		stopMetrics()
		wait()
	}()

	n := app.Config.Ranks
	reports := make([]Report, n)
	run := func(ctx context.Context, t transport.Transport) error {
		r, err := app.runRank(ctx, t)
		if err != nil {
			return fmt.Errorf("rank %d: %w", t.Rank(), err)
		}
		reports[t.Rank()] = r
		return nil
	}

	var errs []error
	switch app.Config.Transport.Kind {
	case config.MemoryTransport:
		errs = memory.Run(ctx, n, run, memory.WithLogger(app.addLogger(TransportLogger)))
	case config.P2PTransport:
		cluster, err := p2p.StartCluster(ctx, n, app.Config.Transport.Listen,
			p2p.WithLog(app.addLogger(TransportLogger)),
			p2p.WithConfig(app.Config.Transport.P2P),
		)
		if err != nil {
			return nil, fmt.Errorf("start p2p cluster: %w", err)
		}
		defer cluster.Close()
		errs = runCluster(ctx, n, cluster, run)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	app.addLogger(AppLogger).Info("exchange finished", zap.Int("ranks", n), zap.String("transport", app.Config.Transport.Kind))
	return reports, nil
}

// runCluster runs fn for every rank of cluster. The first failure cancels the others.
func runCluster(ctx context.Context, n int, cluster *p2p.Cluster, fn func(context.Context, transport.Transport) error) []error {
	errs := make([]error, n)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var eg errgroup.Group
	for rank := range n {
		eg.Go(func() error {
			if errs[rank] = fn(ctx, cluster.Transport(rank)); errs[rank] != nil {
				cancel()
			}
			return nil
		})
	}
	eg.Wait()
	return errs
}

// startMetrics serves and pushes metrics until ctx is done. The returned function waits
// for the final push.
func (app *App) startMetrics(ctx context.Context) (wait func()) {
	logger := app.addLogger(MetricsLogger)
	var eg errgroup.Group
	if app.Config.Metrics.Enabled {
		eg.Go(func() error {
			if err := metrics.Serve(ctx, logger, app.Config.Metrics.Port); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
			return nil
		})
	}
	if app.Config.Metrics.Push != "" {
		instance := app.Config.Metrics.Instance
		if instance == "" {
			instance = uuid.NewString()
		}
		logger.Info("pushing metrics", zap.String("url", app.Config.Metrics.Push), zap.String("instance", instance))
		eg.Go(func() error {
			metrics.Push(ctx, logger, app.clock, app.Config.Metrics.Push, app.Config.Metrics.PushPeriod, instance)
			return nil
		})
	}
	return func() { eg.Wait() }
}
