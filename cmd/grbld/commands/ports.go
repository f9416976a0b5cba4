// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later
package commands

import (
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.bug.st/serial"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List available serial ports",
	RunE:  runPorts,
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := serial.GetPortsList()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		cmd.Println("no serial ports found")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Port"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	for _, p := range ports {
		table.Append([]string{p})
	}
	table.Render()
	return nil
}

// selectPort prompts the user to pick one of the available serial ports,
// used by serve when --port is not given and more than one port is present.
func selectPort() (string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return "", err
	}
	if len(ports) == 0 {
		return "", errNoSerialPorts
	}
	if len(ports) == 1 {
		return ports[0], nil
	}
	return promptSelectPort(ports)
}
