// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"github.com/xykasumi/grbld/cmd/grbld/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		commands.Exit("%v", err)
	}
}
