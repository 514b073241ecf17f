package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/dataplex/internal/collector"
	"github.com/danmuck/dataplex/internal/config"
	"github.com/danmuck/dataplex/internal/observability"
	"github.com/danmuck/dataplex/internal/server"
	"github.com/danmuck/dataplex/internal/sinks"
)

func main() {
	path := flag.String("config", "cmd/dataplexd/config.toml", "daemon config path")
	flag.Parse()

	if err := run(*path); err != nil {
		fmt.Fprintf(os.Stderr, "dataplexd: %v\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	observability.InitLogger("dataplexd")

	cfg, err := loadServiceConfig(path)
	if err != nil {
		return err
	}
	stationPath := cfg.StationPath
	if !filepath.IsAbs(stationPath) {
		stationPath = filepath.Join(filepath.Dir(path), stationPath)
	}
	station, err := config.LoadStationConfig(stationPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out, err := sinks.Open(ctx, station)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			log.Warn().Err(err).Msg("dataplexd sink close")
		}
	}()

	col, err := collector.New(cfg, station, out, collector.SerialDialer(cfg.Serial))
	if err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	if cfg.StatusAddr != "" {
		srv := server.New(station.Station, cfg.StatusAddr, col, cfg.CORSOrigins)
		go func() {
			serverErr <- srv.Serve(ctx)
		}()
	}

	log.Info().
		Str("station", station.Station).
		Str("device", cfg.Serial.Device).
		Int("fields", len(station.Fields)).
		Int("sinks", len(station.Sinks)).
		Dur("poll_interval", cfg.PollInterval).
		Msg("dataplexd starting")

	runErr := make(chan error, 1)
	go func() {
		runErr <- col.Run(ctx)
	}()

	select {
	case err := <-runErr:
		return err
	case err := <-serverErr:
		stop()
		<-runErr
		if err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	}
}
