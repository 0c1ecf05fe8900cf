package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"datapipe/internal/config"
	"datapipe/internal/etl"
	"datapipe/internal/etl/sources"
	"datapipe/internal/service"
	"datapipe/internal/storage"
)

var version = "dev"

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	logLevel   string
}

func main() {
	app := kingpin.New("datapipe", "Declarative data pipelines with typed field metadata.")
	app.Version(version)
	app.HelpFlag.Short('h')

	var flags globalFlags
	app.Flag("config", "Path to the configuration file.").Short('c').Default("datapipe.yaml").Envar("DATAPIPE_CONFIG").StringVar(&flags.configPath)
	app.Flag("log.level", "Log level (debug, info, warn, error). Overrides the configuration file.").EnumVar(&flags.logLevel, "debug", "info", "warn", "error")

	addDescribeCommand(app, &flags)
	addPlanCommand(app, &flags)
	addRunCommand(app, &flags)
	addServeCommand(app, &flags)
	addMCPCommand(app, &flags)

	kingpin.MustParse(app.Parse(os.Args[1:]))
}

func newLogger(lvl string) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = level.NewFilter(logger, level.Allow(level.ParseDefault(lvl, level.InfoValue())))
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}

// runtime holds everything a command needs once the configuration is loaded.
type runtime struct {
	cfg         *config.Config
	logger      log.Logger
	db          *storage.DB
	registry    *prometheus.Registry
	connections *service.ConnectionRegistry
	pipelines   *service.PipelineService
}

// setup loads the configuration, opens the catalog and applies the declared
// pipelines. Triggers stay armed only when watch is set.
func setup(ctx context.Context, flags *globalFlags, watch bool) (*runtime, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	lvl := cfg.LogLevel
	if flags.logLevel != "" {
		lvl = flags.logLevel
	}
	logger := newLogger(lvl)

	connections, err := service.NewConnectionRegistry(cfg.Connections, logger)
	if err != nil {
		return nil, err
	}
	sources.SetDBProvider(connections)

	db, err := storage.New(cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	dest := &etl.TableWriter{Connections: connections, Logger: logger}
	pipelines := service.NewPipelineService(
		storage.NewPipelineStore(db),
		dest,
		service.LogEmitter{Logger: log.With(logger, "component", "events")},
		logger,
		service.NewMetrics(reg),
	)
	if err := pipelines.Apply(ctx, cfg.Pipelines); err != nil {
		db.Close()
		return nil, err
	}
	if !watch {
		pipelines.Stop()
	}
	level.Debug(logger).Log("msg", "configuration loaded", "config", flags.configPath,
		"connections", len(cfg.Connections), "pipelines", len(cfg.Pipelines))

	return &runtime{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		registry:    reg,
		connections: connections,
		pipelines:   pipelines,
	}, nil
}

func (r *runtime) Close() {
	r.pipelines.Stop()
	if err := r.db.Close(); err != nil {
		level.Warn(r.logger).Log("msg", "failed to close catalog", "err", err)
	}
}
