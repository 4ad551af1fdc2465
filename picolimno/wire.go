package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/itohio/picolimno/pkg/alert"
	"github.com/itohio/picolimno/pkg/batch"
	"github.com/itohio/picolimno/pkg/cellular"
	"github.com/itohio/picolimno/pkg/clock"
	"github.com/itohio/picolimno/pkg/config"
	"github.com/itohio/picolimno/pkg/metrics"
	"github.com/itohio/picolimno/pkg/params"
	"github.com/itohio/picolimno/pkg/remote"
	"github.com/itohio/picolimno/pkg/sample"
	"github.com/itohio/picolimno/pkg/schedule"
	"github.com/itohio/picolimno/pkg/sensor"
	"github.com/itohio/picolimno/pkg/station"
	"github.com/itohio/picolimno/pkg/transport"
	"github.com/itohio/picolimno/pkg/watchdog"
)

// wiring owns the application context and everything that must be closed.
type wiring struct {
	app     *station.App
	closers []func()
}

func (w *wiring) Close() {
	for i := len(w.closers) - 1; i >= 0; i-- {
		w.closers[i]()
	}
	w.closers = nil
}

// wire builds the application context from the configuration.
func wire(ctx context.Context, cfg *config.Config, log *logrus.Logger, built time.Time) (*wiring, error) {
	w := &wiring{}
	prom := metrics.NewProm()

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := prom.Serve(ctx, cfg.Metrics.Addr, log); err != nil {
				log.WithError(err).Error("metrics listener stopped")
			}
		}()
	}

	tr, err := newTransport(cfg, log, w)
	if err != nil {
		w.Close()
		return nil, err
	}

	resetMinute, err := schedule.ParseReset(cfg.Schedule.Reset)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("schedule: %w", err)
	}
	sched := &schedule.Config{
		Tick:             cfg.Schedule.Tick,
		SampleInterval:   cfg.Schedule.SampleInterval,
		TransmitInterval: cfg.Schedule.TransmitInterval,
		StartHour:        cfg.Schedule.StartHour,
		StopHour:         cfg.Schedule.StopHour,
		ResetMinute:      resetMinute,
	}

	clk := clock.NewOffset()
	api := remote.New(tr, log)
	alert1 := newAlert(cfg.Alerts.Alert1)
	alert2 := newAlert(cfg.Alerts.Alert2)
	restarter := station.NewExitRestarter(log)

	wd, err := newWatchdog(cfg, log, restarter)
	if err != nil {
		w.Close()
		return nil, err
	}

	w.app = &station.App{
		Clock:        clk,
		Schedule:     sched,
		Sensors:      newSensors(cfg, log, w),
		Modem:        newModem(cfg, log, w),
		Uplink:       api,
		Batch:        batch.New(api, cfg.Batch.Capacity, log, prom),
		Refresher:    params.NewRefresher(api, clk, alert1, alert2, sched, log, prom),
		Median:       sample.NewMedian(cfg.Sampling.MinValid, cfg.Sampling.MaxAttempts),
		Alert1:       alert1,
		Alert2:       alert2,
		Restarter:    restarter,
		BuildDate:    built,
		ClockRetries: cfg.Startup.ClockRetries,
		StopTimeout:  cfg.Startup.StopTimeout,
		Log:          log,
		Obs:          prom,
	}
	if wd != nil {
		w.app.Watchdog = wd
		w.closers = append(w.closers, func() { wd.Close() })
	}
	return w, nil
}

func newAlert(c config.AlertConfig) *alert.Alert {
	a := alert.NewWithState(c.InitialAbove)
	a.Configure(c.Threshold, c.Hysteresis)
	return a
}

func newTransport(cfg *config.Config, log *logrus.Logger, w *wiring) (transport.Transport, error) {
	switch cfg.Transport.Kind {
	case "mqtt":
		m, err := transport.DialMQTT(transport.MQTTConfig{
			Broker:   cfg.Transport.MQTT.Broker,
			ClientID: cfg.Transport.MQTT.ClientID,
			Username: cfg.Transport.MQTT.Username,
			Password: cfg.Transport.MQTT.Password,
			QoS:      cfg.Transport.MQTT.QoS,
			Timeout:  cfg.Server.Timeout,
		}, log)
		if err != nil {
			return nil, err
		}
		w.closers = append(w.closers, m.Close)
		return m, nil
	default:
		return transport.NewHTTP(transport.HTTPConfig{
			BaseURL:      cfg.Server.URL,
			Timeout:      cfg.Server.Timeout,
			Attempts:     cfg.Server.Attempts,
			AttemptDelay: cfg.Server.AttemptDelay,
		}, log), nil
	}
}

func newSensors(cfg *config.Config, log *logrus.Logger, w *wiring) sensor.Sensors {
	if cfg.Sensor.Kind == "mock" {
		return sensor.NewMock(&cfg.Sensor.Mock, uint64(time.Now().UnixNano()))
	}
	s := sensor.New(cfg.Sensor.Port, cfg.Sensor.BaudRate, log)
	w.closers = append(w.closers, func() { s.Close() })
	return s
}

func newModem(cfg *config.Config, log *logrus.Logger, w *wiring) cellular.Modem {
	if cfg.Modem.Kind == "host" {
		return cellular.NewHostModem(cfg.Modem.IMEI)
	}
	m := cellular.NewATModem(cellular.ATConfig{
		Port:        cfg.Modem.Port,
		BaudRate:    cfg.Modem.BaudRate,
		APN:         cfg.Modem.APN,
		User:        cfg.Modem.APNUser,
		Password:    cfg.Modem.APNPassword,
		Retries:     cfg.Modem.ConnectRetries,
		RetryDelay:  cellular.DefaultRetryDelay,
		RestartWait: 5 * time.Second,
	}, log)
	w.closers = append(w.closers, func() { m.Close() })
	return m
}

func newWatchdog(cfg *config.Config, log *logrus.Logger, r station.Restarter) (watchdog.Watchdog, error) {
	if cfg.Watchdog.Device != "" {
		return watchdog.OpenDevice(cfg.Watchdog.Device)
	}
	if cfg.Watchdog.Timeout == 0 {
		return nil, nil
	}
	return watchdog.NewSoftware(cfg.Watchdog.Timeout, func() { r.Restart("watchdog") }, log), nil
}
