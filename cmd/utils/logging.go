package utils

import (
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	loggersMu sync.Mutex
	loggers   []*logrus.Logger
)

// NewLogger creates the text logger used by all commands. Its level follows SetLogLevel.
func NewLogger(level int) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.Level(level))
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	loggersMu.Lock()
	loggers = append(loggers, logger)
	loggersMu.Unlock()

	return logger
}

// SetLogLevel changes the level of every logger created by NewLogger. It reports whether any level changed.
func SetLogLevel(level logrus.Level) bool {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	changed := false
	for _, l := range loggers {
		if l.GetLevel() != level {
			l.SetLevel(level)
			changed = true
		}
	}
	return changed
}
