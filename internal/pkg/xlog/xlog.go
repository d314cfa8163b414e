// Copyright (c) 2024, xbuild contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package xlog is a thin package-level wrapper over logrus, called the
// way the teacher's sylog package is called from build.go and
// stage.go: a bare function per level, no logger value threaded
// through call sites.
package xlog

import (
	"github.com/sirupsen/logrus"
)

var std = logrus.New()

// SetLevel sets the process-wide log level by name (debug, info,
// warn, error).
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	std.SetLevel(lvl)
}

func Debugf(format string, args ...any) { std.Debugf(format, args...) }
func Infof(format string, args ...any)  { std.Infof(format, args...) }
func Warnf(format string, args ...any)  { std.Warnf(format, args...) }
func Errorf(format string, args ...any) { std.Errorf(format, args...) }

// WithField returns an entry pre-populated with a field, for call
// sites that want to tag every subsequent line with e.g. a build id.
func WithField(key string, value any) *logrus.Entry {
	return std.WithField(key, value)
}
