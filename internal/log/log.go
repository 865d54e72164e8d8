// Copyright 2024 The gosbfl Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package log wraps logrus so the rest of gosbfl logs through one
// narrow interface instead of depending on logrus directly.
package log

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Fields aliases logrus.Fields.
type Fields = logrus.Fields

// Entry aliases logrus.Entry.
type Entry = logrus.Entry

// Logger is the logging interface used throughout gosbfl.
type Logger interface {
	Debug(...interface{})
	Debugf(string, ...interface{})

	Info(...interface{})
	Infof(string, ...interface{})

	Warn(...interface{})
	Warnf(string, ...interface{})

	Error(...interface{})
	Errorf(string, ...interface{})

	WithField(key string, value interface{}) *Entry
	WithFields(Fields) *Entry

	SetLevel(string) error
	SetOutput(io.Writer)
}

type logger struct {
	entry *logrus.Entry
}

// New creates a standalone logger, used by tests that want to assert
// on log output without touching the global logger.
func New() Logger {
	l := logrus.New()
	return logger{entry: logrus.NewEntry(l)}
}

func (l logger) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l logger) Debugf(format string, args ...interface{})  { l.entry.Debugf(format, args...) }
func (l logger) Info(args ...interface{})                  { l.entry.Info(args...) }
func (l logger) Infof(format string, args ...interface{})   { l.entry.Infof(format, args...) }
func (l logger) Warn(args ...interface{})                  { l.entry.Warn(args...) }
func (l logger) Warnf(format string, args ...interface{})   { l.entry.Warnf(format, args...) }
func (l logger) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l logger) Errorf(format string, args ...interface{})  { l.entry.Errorf(format, args...) }

func (l logger) WithField(key string, value interface{}) *Entry {
	return l.entry.WithField(key, value)
}

func (l logger) WithFields(fields Fields) *Entry {
	return l.entry.WithFields(fields)
}

func (l logger) SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.entry.Logger.SetLevel(lvl)
	return nil
}

func (l logger) SetOutput(w io.Writer) {
	l.entry.Logger.SetOutput(w)
}

var globalLogger = logger{entry: logrus.NewEntry(logrus.New())}

// Global returns the package-wide default logger.
func Global() Logger { return globalLogger }

func Debug(args ...interface{})                { globalLogger.entry.Debug(args...) }
func Debugf(format string, args ...interface{}) { globalLogger.entry.Debugf(format, args...) }
func Info(args ...interface{})                  { globalLogger.entry.Info(args...) }
func Infof(format string, args ...interface{})  { globalLogger.entry.Infof(format, args...) }
func Warn(args ...interface{})                  { globalLogger.entry.Warn(args...) }
func Warnf(format string, args ...interface{})  { globalLogger.entry.Warnf(format, args...) }
func Error(args ...interface{})                 { globalLogger.entry.Error(args...) }
func Errorf(format string, args ...interface{}) { globalLogger.entry.Errorf(format, args...) }

// SetLevel sets the level of the global logger.
func SetLevel(level string) error { return globalLogger.SetLevel(level) }
