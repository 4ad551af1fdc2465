// Package logger builds the station logrus logger.
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	RotateMaxAge   = 30 // days
	RotateCompress = true
)

// Config describes where and how much to log.
type Config struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	Out        io.Writer // defaults to stdout
}

// New creates a logger writing to Out and, when File is set, to a rotated
// log file.
func New(cfg Config) (*logrus.Logger, error) {
	level := logrus.InfoLevel
	if cfg.Level != "" {
		l, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = l
	}

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	if cfg.File != "" {
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxAge:     RotateMaxAge,
			MaxBackups: cfg.MaxBackups,
			Compress:   RotateCompress,
		})
	}

	log := logrus.New()
	log.SetLevel(level)
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return log, nil
}

// Component returns an entry tagged with the component name.
func Component(log logrus.FieldLogger, name string) logrus.FieldLogger {
	if log == nil {
		log = Discard()
	}
	return log.WithField("component", name)
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
