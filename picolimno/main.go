package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/itohio/picolimno/pkg/config"
	"github.com/itohio/picolimno/pkg/logger"
	"github.com/itohio/picolimno/pkg/sensor"
	"github.com/itohio/picolimno/pkg/station"
)

// buildDate is set with -ldflags "-X main.buildDate=YYYY-MM-DD". A clock
// before this date is considered unsynchronised.
var buildDate = "2018-05-23"

func main() {
	var (
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		envFlag    = flag.String("env", ".env", "Dotenv file with secrets")
		portFlag   = flag.String("p", "", "Sensor board serial port override (e.g. /dev/ttyACM0)")
		mockFlag   = flag.Bool("mock", false, "Use the simulated sensor board")
		hostFlag   = flag.Bool("host", false, "Use the host network instead of the cellular modem")
		saveFlag   = flag.Bool("save-config", false, "Write the effective configuration and exit")
		portsFlag  = flag.Bool("list-ports", false, "List serial ports and exit")
	)
	flag.Parse()

	if *portsFlag {
		ports, err := sensor.Ports()
		if err != nil {
			log.Fatalf("Failed to list ports: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p.Name)
		}
		return
	}

	if err := config.LoadEnvFile(*envFlag); err != nil {
		log.Fatalf("Failed to load environment: %v", err)
	}
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *portFlag != "" {
		cfg.Sensor.Port = *portFlag
		cfg.Sensor.Kind = "serial"
	}
	if *mockFlag {
		cfg.Sensor.Kind = "mock"
	}
	if *hostFlag {
		cfg.Modem.Kind = "host"
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	if *saveFlag {
		if err := cfg.Save(*configFlag); err != nil {
			log.Fatalf("Failed to save configuration: %v", err)
		}
		return
	}

	lg, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	built, err := time.Parse(time.DateOnly, buildDate)
	if err != nil {
		lg.WithError(err).Warn("invalid build date")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := wire(ctx, cfg, lg, built)
	if err != nil {
		lg.WithError(err).Fatal("failed to start")
	}
	defer w.Close()

	lg.WithFields(logrus.Fields{
		"sensor":    cfg.Sensor.Kind,
		"modem":     cfg.Modem.Kind,
		"transport": cfg.Transport.Kind,
		"server":    cfg.Server.URL,
	}).Info("picolimno starting")

	if err := station.New(w.app).Run(ctx); err != nil {
		if errors.Is(err, station.ErrFatalStartup) {
			lg.WithError(err).Error("halted")
			w.Close()
			os.Exit(1)
		}
		if !errors.Is(err, context.Canceled) {
			lg.WithError(err).Error("station stopped")
		}
	}
}
