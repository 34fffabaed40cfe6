// internal/logger/logger.go
package logger

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu      sync.Mutex
	loggers []*logrus.Logger
)

// NewLogger returns a logrus logger configured from LOG_LEVEL and LOG_FORMAT.
// Every package keeps its own instance as a package-level customLog.
func NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	configure(log)

	mu.Lock()
	loggers = append(loggers, log)
	mu.Unlock()
	return log
}

// Refresh re-reads LOG_LEVEL and LOG_FORMAT into every logger created so far.
// Call it once the environment is final, e.g. after a .env file is loaded.
func Refresh() {
	mu.Lock()
	defer mu.Unlock()
	for _, log := range loggers {
		configure(log)
	}
}

func configure(log *logrus.Logger) {
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
}
