package conf

import (
	"fmt"
	"slices"

	"meshtun/internal/flog"
)

// Log configures the process-wide logger.
type Log struct {
	Level string `yaml:"level"`
}

var validLogLevels = map[string]flog.Level{
	"debug": flog.Debug,
	"info":  flog.Info,
	"warn":  flog.Warn,
	"error": flog.Error,
	"none":  flog.None,
}

func (l *Log) setDefaults() {
	if l.Level == "" {
		l.Level = "info"
	}
}

func (l *Log) validate() []error {
	var errors []error
	if _, ok := validLogLevels[l.Level]; !ok {
		keys := make([]string, 0, len(validLogLevels))
		for k := range validLogLevels {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		errors = append(errors, fmt.Errorf("log level must be one of: %v", keys))
	}
	return errors
}

// Apply wires the configured level into the global logger.
func (l *Log) Apply() {
	flog.SetLevel(int(validLogLevels[l.Level]))
}
