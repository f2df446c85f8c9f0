package utils

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// ConfigureLogging Set the level and output format of the logger. Debug mode always logs at debug level.
func ConfigureLogging(config LogConfig, debug bool) error {
	level, err := log.ParseLevel(config.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", config.Level, err)
	}
	if debug {
		level = log.DebugLevel
	}
	log.SetLevel(level)

	switch config.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("invalid log format %q", config.Format)
	}
	return nil
}
