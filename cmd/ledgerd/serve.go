package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/germanamz/ledgerd/pkg/control/wsbridge"
	"github.com/germanamz/ledgerd/pkg/devicetools"
	"github.com/germanamz/ledgerd/pkg/engine"
	"github.com/germanamz/ledgerd/pkg/tools/toolbox"
)

const shutdownTimeout = 5 * time.Second

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var cf commonFlags
	cf.register(fs)
	listen := fs.String("listen", "", "control listen address (overrides control.listen)")
	_ = fs.Parse(args)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eng, log, err := startEngine(cf, *listen)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	go func() { _ = eng.Run(ctx) }()

	return serveHTTP(ctx, eng.Config().Control.Listen, newHandler(eng, newBridge(eng, log)), log)
}

// startEngine loads configuration, builds the logger and the engine.
func startEngine(cf commonFlags, listen string) (*engine.Engine, *slog.Logger, error) {
	cfg, err := cf.load()
	if err != nil {
		return nil, nil, err
	}
	if listen != "" {
		cfg.Control.Listen = listen
	}

	log, err := engine.NewLogger(os.Stderr, cfg.Log)
	if err != nil {
		return nil, nil, err
	}

	eng, err := engine.New(cfg, engine.Options{Logger: log})
	if err != nil {
		return nil, nil, err
	}

	return eng, log, nil
}

func newBridge(eng *engine.Engine, log *slog.Logger) *wsbridge.Server {
	return wsbridge.NewServer(eng.Control(), wsbridge.ServerOptions{
		Logger: log.With("component", "wsbridge"),
	})
}

// newHandler mounts the control bridge at /control and the device tools at
// /tools/. With manual discovery, /device/attach and /device/detach drive
// presence.
func newHandler(eng *engine.Engine, bridge *wsbridge.Server) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/control", bridge)
	mux.Handle("/tools/", http.StripPrefix("/tools", toolbox.NewHTTPHandler(devicetools.New(eng).Tools())))

	if m := eng.Manual(); m != nil {
		mux.HandleFunc("POST /device/attach", func(w http.ResponseWriter, _ *http.Request) {
			m.Attach()
			w.WriteHeader(http.StatusNoContent)
		})
		mux.HandleFunc("POST /device/detach", func(w http.ResponseWriter, _ *http.Request) {
			m.Detach()
			w.WriteHeader(http.StatusNoContent)
		})
	}

	return mux
}

// serveHTTP runs an HTTP server on addr until ctx is done.
func serveHTTP(ctx context.Context, addr string, h http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	log.Info("ledgerd: control listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
