package obs

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	loggerOnce sync.Once
	logger     *logrus.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *logrus.Logger {
	loggerOnce.Do(func() {
		logger = logrus.New()
		logger.SetOutput(os.Stdout)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "ts",
			},
		})
		logger.SetLevel(logrus.InfoLevel)
	})
	return logger
}

// SetLevel adjusts the shared logger level. Unknown levels keep the current one.
func SetLevel(level string) {
	level = strings.TrimSpace(level)
	if level == "" {
		return
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		Logger().WithField("level", level).Warn("unknown log level, keeping current")
		return
	}
	Logger().SetLevel(lvl)
}

// LogRequest emits a structured request line with common HTTP fields.
func LogRequest(fields logrus.Fields) {
	Logger().WithFields(fields).Info("request_complete")
}
