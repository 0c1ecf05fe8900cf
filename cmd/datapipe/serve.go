package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// serveCommand keeps the scheduled and file-watched pipelines running and
// exposes metrics until interrupted.
type serveCommand struct {
	flags           *globalFlags
	listen          string
	shutdownTimeout time.Duration
}

func (cmd *serveCommand) run(_ *kingpin.ParseContext) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := setup(ctx, cmd.flags, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	addr := cmd.listen
	if addr == "" {
		addr = rt.cfg.Listen
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{Registry: rt.registry}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() {
		level.Info(rt.logger).Log("msg", "serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return err
	}

	level.Info(rt.logger).Log("msg", "shutting down", "running", len(rt.pipelines.Running()))
	rt.pipelines.Stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cmd.shutdownTimeout)
	defer cancelShutdown()
	rt.pipelines.WaitRunning(shutdownCtx)
	return srv.Shutdown(shutdownCtx)
}

func addServeCommand(app *kingpin.Application, flags *globalFlags) {
	cmd := &serveCommand{flags: flags}
	c := app.Command("serve", "Run scheduled and file-watched pipelines and expose metrics.").Action(cmd.run)
	c.Flag("listen", "Metrics listen address. Overrides the configuration file.").StringVar(&cmd.listen)
	c.Flag("shutdown-timeout", "How long to wait for running pipelines on shutdown.").Default("30s").DurationVar(&cmd.shutdownTimeout)
}
