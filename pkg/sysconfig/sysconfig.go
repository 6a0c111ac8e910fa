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

package sysconfig

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aosc-dev/deploykit/pkg/constants"
	"github.com/aosc-dev/deploykit/pkg/types"
)

// Configurator is the concrete implementation of C9. Its filesystem and
// command operations are rooted at the chroot's "/" by the caller having
// already entered the chroot (see pkg/chroot), except GenerateFstab and
// WriteFstab, which run on the host before the chroot is entered;
// WriteFstab takes the target root as an argument. Configurator itself
// holds no path prefix.
type Configurator struct {
	cfg types.Config
}

// New returns a Configurator.
func New(cfg types.Config) *Configurator {
	return &Configurator{cfg: cfg}
}

// hostnamePattern matches the POSIX-ish hostname grammar spec.md §4.4
// requires: starts with an alphanumeric, then alphanumerics and hyphens.
var hostnamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]*$`)

// usernamePattern mirrors useradd's own default NAME_REGEX: lowercase
// letter or underscore, then lowercase letters, digits, underscores,
// hyphens, optionally trailing '$'.
var usernamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_-]*\$?$`)

// SetTimezone symlinks /etc/localtime to the zoneinfo file for tz, remapping
// any name constants.TimezoneRemap carries an override for (e.g. the
// "Asia/Beijing" alias this distribution's installer accepts but glibc's
// zoneinfo tree files under "Asia/Shanghai").
func (c *Configurator) SetTimezone(tz string) error {
	if remap, ok := constants.TimezoneRemap[tz]; ok {
		tz = remap
	}

	target := constants.ZoneinfoDir + "/" + tz
	if _, err := c.cfg.FS.Stat(target); err != nil {
		return types.NewTaggedError(types.TagConfigureZoneinfo, "zoneinfo file not found", tz, err)
	}

	_ = c.cfg.FS.Remove(constants.LocaltimePath)
	if err := c.cfg.FS.Symlink(target, constants.LocaltimePath); err != nil {
		return types.NewTaggedError(types.TagConfigureZoneinfo, "symlinking localtime", tz, err)
	}
	return nil
}

// SetHwclock reads /etc/adjtime's third line (the field hwclock(8) itself
// uses to record whether the RTC runs in UTC or local time) and, unless the
// host already wants UTC and the RTC is already set to UTC, runs
// `hwclock -wu` or `hwclock -wl` to bring it in line with localTime.
func (c *Configurator) SetHwclock(localTime bool) error {
	if !localTime {
		if mode, err := c.adjtimeMode(); err == nil && mode == "UTC" {
			return nil
		}
	}

	flag := "-wu"
	if localTime {
		flag = "-wl"
	}
	if _, err := c.cfg.Runner.Run("hwclock", flag); err != nil {
		return types.NewTaggedError(types.TagConfigureHwclock, "hwclock", flag, err)
	}
	return nil
}

// adjtimeMode returns /etc/adjtime's third line ("UTC" or "LOCAL"), the
// field hwclock(8) reads to know how the RTC is currently set.
func (c *Configurator) adjtimeMode() (string, error) {
	data, err := c.cfg.FS.ReadFile(constants.AdjtimePath)
	if err != nil {
		return "", err
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) < 3 {
		return "", types.NewTaggedError(types.TagConfigureHwclock, "adjtime missing line 3", constants.AdjtimePath, nil)
	}
	return strings.TrimSpace(lines[2]), nil
}

// SetHostname validates and writes /etc/hostname.
func (c *Configurator) SetHostname(hostname string) error {
	if !hostnamePattern.MatchString(hostname) {
		return types.NewTaggedError(types.TagConfigureHostname, "invalid hostname", hostname, nil)
	}
	if err := c.cfg.FS.WriteFile(constants.HostnamePath, []byte(hostname+"\n"), 0o644); err != nil {
		return types.NewTaggedError(types.TagConfigureHostname, "writing hostname", hostname, err)
	}
	return nil
}

// SetLocale writes /etc/locale.conf.
func (c *Configurator) SetLocale(locale string) error {
	contents := fmt.Sprintf("LANG=%s\n", locale)
	if err := c.cfg.FS.WriteFile(constants.LocaleConfPath, []byte(contents), 0o644); err != nil {
		return types.NewTaggedError(types.TagConfigureLocale, "writing locale.conf", locale, err)
	}
	return nil
}

// AddUser creates the account with useradd, sets its password with
// chpasswd, and (if set) the root password the same way.
func (c *Configurator) AddUser(user types.User) error {
	if !usernamePattern.MatchString(user.Username) {
		return types.NewTaggedError(types.TagConfigureAddUser, "invalid username", user.Username, nil)
	}

	args := []string{"-m", "-s", constants.DefaultShell, "-G", constants.DefaultGroups, user.Username}

	if _, err := c.cfg.Runner.Run("useradd", args...); err != nil {
		return types.NewTaggedError(types.TagConfigureAddUser, "useradd", user.Username, err)
	}

	if err := c.setPassword(user.Username, user.Password); err != nil {
		return err
	}

	if user.FullName != "" {
		if err := c.SetFullName(user.Username, user.FullName); err != nil {
			return err
		}
	}

	if user.RootPassword != "" {
		if err := c.setPassword("root", user.RootPassword); err != nil {
			return err
		}
	}

	return nil
}

func (c *Configurator) setPassword(username, password string) error {
	input := fmt.Sprintf("%s:%s\n", username, password)
	if _, err := c.cfg.Runner.RunStdin(input, "chpasswd"); err != nil {
		return types.NewTaggedError(types.TagConfigureAddUser, "chpasswd", username, err)
	}
	return nil
}
