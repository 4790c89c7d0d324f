// Package lglog is the structured-logging façade used across the
// lockstep binaries and packages, replacing the teacher's colored
// package-level logger (pkg/logger) with a logrus.Entry carrying a
// per-process run tag (spec.md §6's "ambient stack" requirement).
package lglog

import (
	"os"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

// New builds the base logger for a binary: text output to stderr, level
// parsed from levelName (defaulting to info on a bad value), tagged with
// a fresh run id so concurrent server runs are distinguishable in
// aggregated log output.
func New(component, levelName string) *logrus.Entry {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	return base.WithFields(logrus.Fields{
		"component": component,
		"run":       xid.New().String(),
	})
}
