package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"
	"github.com/tcriess/lightspeed-signal/config"
	"github.com/tcriess/lightspeed-signal/globals"
	"github.com/tcriess/lightspeed-signal/room"
	"github.com/tcriess/lightspeed-signal/server"
	"github.com/tcriess/lightspeed-signal/ws"
)

var configPath = pflag.StringP("config", "c", "", "path to config file or directory")

func main() {
	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	cfg, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		globals.AppLogger.Error("could not read configuration", "error", err)
		os.Exit(1)
	}
	level := hclog.LevelFromString(cfg.LogLevel)
	if level == hclog.NoLevel {
		globals.AppLogger.Warn("unknown log level, keeping INFO", "log_level", cfg.LogLevel)
	} else {
		globals.AppLogger.SetLevel(level)
	}

	registry := room.NewRegistry()
	hub := ws.NewHub(registry, cfg, globals.AppLogger.Named("hub"))
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.New(hub, registry, cfg, globals.AppLogger.Named("server")).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		globals.AppLogger.Info("start listening", "addr", cfg.Addr, "tls", cfg.SSLCert != "")
		var err error
		if cfg.SSLCert != "" && cfg.SSLKey != "" {
			err = srv.ListenAndServeTLS(cfg.SSLCert, cfg.SSLKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			globals.AppLogger.Error("stopped listening", "error", err)
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				return srv.Shutdown(ctx)
			},
			// closes every session, clients receive a close frame
			"hub": func(ctx context.Context) error {
				stopHub()
				select {
				case <-hub.Done():
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		},
	)
	exitCode := <-wait
	globals.AppLogger.Info("shutdown complete", "exit_code", exitCode)
	os.Exit(exitCode)
}
