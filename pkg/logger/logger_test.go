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

package logger

import (
	"github.com/sirupsen/logrus"
	"testing"
)

func TestNewDefaultsToInfoLevel(t *testing.T) {
	l := New()
	if l.l.GetLevel() != logrus.InfoLevel {
		t.Fatalf("level = %v, want InfoLevel", l.l.GetLevel())
	}
}

func TestSetLevelValid(t *testing.T) {
	l := New()
	l.SetLevel("debug")
	if l.l.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level = %v, want DebugLevel", l.l.GetLevel())
	}
}

func TestSetLevelInvalidIsIgnored(t *testing.T) {
	l := New()
	l.SetLevel("not-a-level")
	if l.l.GetLevel() != logrus.InfoLevel {
		t.Fatalf("level = %v, want unchanged InfoLevel", l.l.GetLevel())
	}
}
