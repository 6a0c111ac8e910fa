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
	"strings"

	"github.com/mauromorales/xpasswd/pkg/passwd"

	"github.com/aosc-dev/deploykit/pkg/constants"
	"github.com/aosc-dev/deploykit/pkg/types"
)

// SetFullName rewrites username's GECOS field in /etc/passwd to fullName.
// A colon or newline in fullName would corrupt the passwd file's line
// format, so both are rejected outright rather than escaped.
func (c *Configurator) SetFullName(username, fullName string) error {
	if strings.ContainsAny(fullName, ":\n") {
		return types.NewTaggedError(types.TagConfigureFullName, "full name contains an invalid character", fullName, nil)
	}

	raw, err := c.cfg.FS.ReadFile(constants.PasswdPath)
	if err != nil {
		return types.NewTaggedError(types.TagConfigureFullName, "reading passwd", username, err)
	}

	db, err := passwd.Unmarshal(raw)
	if err != nil {
		return types.NewTaggedError(types.TagConfigureFullName, "parsing passwd", username, err)
	}

	found := false
	for i, entry := range db.Entries {
		if entry.Username == username {
			db.Entries[i].GECOS = fullName
			found = true
			break
		}
	}
	if !found {
		return types.NewTaggedError(types.TagConfigureFullName, "user not found in passwd", username, nil)
	}

	out, err := db.Marshal()
	if err != nil {
		return types.NewTaggedError(types.TagConfigureFullName, "serializing passwd", username, err)
	}

	if err := c.cfg.FS.WriteFile(constants.PasswdPath, out, 0o644); err != nil {
		return types.NewTaggedError(types.TagConfigureFullName, "writing passwd", username, err)
	}
	return nil
}
