// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later
package commands

import (
	"errors"

	"github.com/manifoldco/promptui"
)

var errNoSerialPorts = errors.New("no serial ports found")

// promptSelectPort asks the user to pick one of several candidate serial
// ports, grounded on the teacher pack's promptui.Select usage for
// interactive terminal selection.
func promptSelectPort(ports []string) (string, error) {
	prompt := promptui.Select{
		Label: "Select serial port",
		Items: ports,
		Size:  10,
	}
	_, result, err := prompt.Run()
	if err != nil {
		return "", err
	}
	return result, nil
}
