package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps a logrus logger writing to both a rotated file and stdout.
type Logger struct {
	log *logrus.Logger
}

// New creates a Logger that writes to dir/console.log (rotated) and stdout.
func New(dir, level string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "console.log"),
		MaxSize:    20, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
	}

	log := logrus.New()
	log.SetLevel(lvl)
	log.SetOutput(io.MultiWriter(rotator, os.Stdout))
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	return &Logger{log: log}, nil
}

// NewNop returns a Logger that discards all output, for tests.
func NewNop() *Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Logger{log: log}
}

func (l *Logger) Debugf(msg string, args ...interface{}) {
	l.log.Debugf(msg, args...)
}

func (l *Logger) Infof(msg string, args ...interface{}) {
	l.log.Infof(msg, args...)
}

func (l *Logger) Warnf(msg string, args ...interface{}) {
	l.log.Warnf(msg, args...)
}

func (l *Logger) Errorf(msg string, args ...interface{}) {
	l.log.Errorf(msg, args...)
}
