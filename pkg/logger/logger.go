/*
Copyright © 2022 - 2024 SUSE LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package logger backs types.Logger with logrus, the teacher's own logging
// library.
package logger

import (
	"github.com/sanity-io/litter"
	"github.com/sirupsen/logrus"

	"github.com/aosc-dev/deploykit/pkg/types"
)

// Logrus wraps a *logrus.Logger to satisfy types.Logger.
type Logrus struct {
	l *logrus.Logger
}

// New returns a Logger writing to stderr at info level, matching the
// teacher's default.
func New() *Logrus {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	return &Logrus{l: l}
}

func (g *Logrus) Debug(args ...interface{}) { g.l.Debug(args...) }
func (g *Logrus) Info(args ...interface{})  { g.l.Info(args...) }
func (g *Logrus) Warn(args ...interface{})  { g.l.Warn(args...) }
func (g *Logrus) Error(args ...interface{}) { g.l.Error(args...) }

func (g *Logrus) Debugf(format string, args ...interface{}) { g.l.Debugf(format, args...) }
func (g *Logrus) Infof(format string, args ...interface{})  { g.l.Infof(format, args...) }
func (g *Logrus) Warnf(format string, args ...interface{})  { g.l.Warnf(format, args...) }
func (g *Logrus) Errorf(format string, args ...interface{}) { g.l.Errorf(format, args...) }

// SetLevel accepts a logrus level name ("debug", "info", ...); an unknown
// name is ignored and the current level is kept.
func (g *Logrus) SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return
	}
	g.l.SetLevel(lvl)
}

// DumpPlan renders v (typically an *types.InstallPlan) with litter, the
// library the teacher's ecosystem reaches for when a log line needs to show
// a whole Go value rather than a one-line summary, and logs it at debug
// level.
func (g *Logrus) DumpPlan(label string, v interface{}) {
	g.l.Debugf("%s:\n%s", label, litter.Sdump(v))
}

var _ types.Logger = (*Logrus)(nil)
