package main

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// InitializeGlobalLogger sets the logrus level and formatter for the daemon.
// Unknown levels fall back to info.
func InitializeGlobalLogger(logLevel string) {
	level, err := logrus.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		level = logrus.InfoLevel
		logrus.WithError(err).WithField("log_level", logLevel).Warn("Failed to parse log level, defaulting to info")
	}

	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		ForceColors:   true,
	})

	logrus.WithField("log_level", level.String()).Info("Global logger initialized")
}
