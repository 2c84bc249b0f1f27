package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New creates a logger instance configured for structured JSON output.
func New() *logrus.Logger {
	log := logrus.New()

	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "time",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "msg",
		},
	})

	log.SetOutput(os.Stdout)

	level := os.Getenv("LOG_LEVEL")
	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// NewWithLevel creates a logger with an explicit level, falling back to info
// when the level string is not recognized.
func NewWithLevel(level string) *logrus.Logger {
	log := New()

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("Unknown log level, using info")
		return log
	}

	log.SetLevel(parsed)
	return log
}

// WithComponent returns an entry tagged with the owning component name.
func WithComponent(log *logrus.Logger, component string) *logrus.Entry {
	return log.WithField("component", component)
}
