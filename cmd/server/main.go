package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/andy6609/tcp-line-server/internal/admin"
	"github.com/andy6609/tcp-line-server/internal/config"
	"github.com/andy6609/tcp-line-server/internal/lineserver"
	"github.com/andy6609/tcp-line-server/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	port := flag.Int("port", 0, "line server listen port (overrides config)")
	adminAddr := flag.String("admin-addr", "", "admin/metrics listen address (overrides config)")
	maxClients := flag.Int("max-clients", 0, "maximum concurrent clients, 0 for no cap (overrides config)")
	relay := flag.Bool("relay", false, "rebroadcast each received line to the other clients")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "admin-addr":
			cfg.AdminAddr = *adminAddr
		case "max-clients":
			cfg.MaxClients = *maxClients
		case "relay":
			cfg.Relay = *relay
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := lineserver.NewServer(lineserver.Options{
		MaxClients: cfg.MaxClients,
		Registerer: reg,
	}, logger)
	newApp(srv, logger, cfg.Relay).attach()

	if err := srv.Start(cfg.Port); err != nil {
		logger.Error("failed to start server", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	var adm *admin.Server
	if cfg.AdminAddr != "" {
		adm = admin.New(cfg.AdminAddr, srv, reg, logger)
		g.Go(adm.ListenAndServe)
	}

	g.Go(func() error {
		srv.Wait()
		if gctx.Err() == nil {
			return errors.New("line server stopped")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		srv.Close()
		if adm == nil {
			return nil
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return adm.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if err != nil {
		logger.Error("server exited", "error", err)
		return err
	}
	logger.Info("exited cleanly")
	return nil
}
