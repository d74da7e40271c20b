// Package telemetry provides scoped leveled loggers for Aeternum components,
// built on the same logging facility the teacher stack uses at its
// transport edge (github.com/pion/logging) rather than a hand-rolled logger.
package telemetry

import "github.com/pion/logging"

// Scope returns a leveled logger for the given component name
// (e.g. "aeternum/storage", "aeternum/pqrr", "aeternum/wire"). If factory is
// nil, a no-op logger is returned so components remain usable without a
// caller-supplied logging setup.
func Scope(factory logging.LoggerFactory, name string) logging.LeveledLogger {
	if factory == nil {
		factory = logging.NewDefaultLoggerFactory()
		factory.DefaultLogLevel = logging.LogLevelDisabled
	}
	return factory.NewLogger(name)
}
