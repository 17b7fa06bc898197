// Package xfslog is the logging seam the xfs decoder writes structural
// events through (the mount summary, v5 checksum mismatches).
// It never configures levels, sinks, or formats itself — that belongs to
// whatever embeds the decoder.
package xfslog

import (
	"github.com/sirupsen/logrus"
)

// Logger is the narrow interface the core depends on. Callers that don't
// want log output can pass Nop.
type Logger interface {
	Debugf(format string, x ...interface{})
	Errorf(format string, x ...interface{})
	Infof(format string, x ...interface{})
	Warnf(format string, x ...interface{})
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

// CLI is a logrus-backed Logger. IsDebug/IsVerbose gate Debugf/Infof the same
// way the adapter's own log-level flags would.
type CLI struct {
	IsDebug   bool
	IsVerbose bool
}

func (log *CLI) Debugf(format string, x ...interface{}) {
	if log.IsDebug {
		logrus.Tracef(format, x...)
	}
}

func (log *CLI) Errorf(format string, x ...interface{}) {
	logrus.Errorf(format, x...)
}

func (log *CLI) Infof(format string, x ...interface{}) {
	if log.IsVerbose {
		logrus.Debugf(format, x...)
	}
}

func (log *CLI) Warnf(format string, x ...interface{}) {
	logrus.Warnf(format, x...)
}

func (log *CLI) IsDebugEnabled() bool {
	return logrus.IsLevelEnabled(logrus.DebugLevel)
}

func (log *CLI) IsInfoEnabled() bool {
	return logrus.IsLevelEnabled(logrus.InfoLevel)
}

type nopLogger struct{}

func (nopLogger) Debugf(format string, x ...interface{}) {}
func (nopLogger) Errorf(format string, x ...interface{}) {}
func (nopLogger) Infof(format string, x ...interface{})  {}
func (nopLogger) Warnf(format string, x ...interface{})  {}
func (nopLogger) IsDebugEnabled() bool                   { return false }
func (nopLogger) IsInfoEnabled() bool                    { return false }

// Nop discards everything. It is the default logger for a mounted
// filesystem that doesn't supply its own.
var Nop Logger = nopLogger{}
