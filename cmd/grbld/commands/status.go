// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later
package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running grbld server's machine status",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "http://localhost:9000", "grbld HTTP API base address")
}

type statusResponse struct {
	Mode          string     `json:"mode"`
	MachinePos    [3]float64 `json:"machine_pos"`
	WorkingPos    [3]float64 `json:"working_pos"`
	FeedCurrent   float64    `json:"feed_current"`
	RxFillPercent int        `json:"rx_fill_percent"`
	HasPendingJob bool       `json:"has_pending_job"`
	RunningJobID  string     `json:"running_job_id,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Post(statusAddr+"/status", "application/json", bytes.NewReader([]byte("{}")))
	if err != nil {
		return fmt.Errorf("failed to reach grbld at %s: %w", statusAddr, err)
	}
	defer resp.Body.Close()

	var st statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return fmt.Errorf("failed to decode status response: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator(":")
	table.SetRowSeparator("")
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	table.Append([]string{"Mode", st.Mode})
	table.Append([]string{"Machine pos", fmt.Sprintf("%.3f, %.3f, %.3f", st.MachinePos[0], st.MachinePos[1], st.MachinePos[2])})
	table.Append([]string{"Working pos", fmt.Sprintf("%.3f, %.3f, %.3f", st.WorkingPos[0], st.WorkingPos[1], st.WorkingPos[2])})
	table.Append([]string{"Feed", fmt.Sprintf("%.1f", st.FeedCurrent)})
	table.Append([]string{"Rx buffer", fmt.Sprintf("%d%%", st.RxFillPercent)})
	if st.HasPendingJob {
		table.Append([]string{"Running job", st.RunningJobID})
	} else {
		table.Append([]string{"Running job", "none"})
	}
	table.Render()
	return nil
}
