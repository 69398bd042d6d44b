package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/germanamz/ledgerd/pkg/devicetools"
	"github.com/germanamz/ledgerd/pkg/tools/mcpserver"
)

const mcpInstructions = "Tools for a hardware signing device. Call select_seed to activate a seed; " +
	"it blocks while the user connects the device and opens the signing application. " +
	"Use abort to cancel a pending selection and device_status to inspect progress."

func runMCP(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	var cf commonFlags
	cf.register(fs)
	listen := fs.String("listen", "", "control listen address (overrides control.listen)")
	noControl := fs.Bool("no-control", false, "do not serve the websocket control endpoint")
	_ = fs.Parse(args)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Logs go to stderr; stdout carries the protocol.
	eng, log, err := startEngine(cf, *listen)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	go func() { _ = eng.Run(ctx) }()

	if !*noControl {
		go func() {
			if err := serveHTTP(ctx, eng.Config().Control.Listen, newHandler(eng, newBridge(eng, log)), log); err != nil {
				log.Error("ledgerd: control server", "error", err)
			}
		}()
	}

	srv := mcpserver.New("ledgerd", version, devicetools.New(eng).Tools(), mcpserver.Options{
		Instructions: mcpInstructions,
		Logger:       log.With("component", "mcpserver"),
	})

	return srv.Serve(ctx, os.Stdin, os.Stdout)
}
