// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later
package grbl

// Event is a tagged-variant dispatched to the embedder's Handler, one variant
// per §6 event name. Replaces the dynamic-callback/variadic-payload pattern
// the original driver used, per the re-architecture notes in SPEC_FULL.md §9.
type Event interface {
	// Name returns the on_* event name, for embedders that prefer to dispatch
	// on a string rather than a type switch.
	Name() string
}

type BootEvent struct{ Version string }

func (BootEvent) Name() string { return "on_boot" }

type DisconnectedEvent struct{}

func (DisconnectedEvent) Name() string { return "on_disconnected" }

type LogEvent struct{ Text string }

func (LogEvent) Name() string { return "on_log" }

type ReadEvent struct{ Line string }

func (ReadEvent) Name() string { return "on_read" }

type WriteEvent struct{ Bytes []byte }

func (WriteEvent) Name() string { return "on_write" }

type StateUpdateEvent struct {
	Mode MachineMode
	MPos Position
	WPos Position
}

func (StateUpdateEvent) Name() string { return "on_stateupdate" }

type HashStateUpdateEvent struct{ Offsets map[string][]float64 }

func (HashStateUpdateEvent) Name() string { return "on_hash_stateupdate" }

type GcodeParserStateUpdateEvent struct{ Modes []string }

func (GcodeParserStateUpdateEvent) Name() string { return "on_gcode_parser_stateupdate" }

type SettingsDownloadedEvent struct{ Settings map[int]Setting }

func (SettingsDownloadedEvent) Name() string { return "on_settings_downloaded" }

type FeedChangeEvent struct{ Feed float64 }

func (FeedChangeEvent) Name() string { return "on_feed_change" }

type MovementEvent struct{}

func (MovementEvent) Name() string { return "on_movement" }

type StandstillEvent struct{}

func (StandstillEvent) Name() string { return "on_standstill" }

type LineSentEvent struct {
	Index int
	Text  string
}

func (LineSentEvent) Name() string { return "on_line_sent" }

type ProcessedCommandEvent struct {
	Index int
	Text  string
}

func (ProcessedCommandEvent) Name() string { return "on_processed_command" }

type ProgressPercentEvent struct{ Percent int }

func (ProgressPercentEvent) Name() string { return "on_progress_percent" }

type RxBufferPercentEvent struct{ Percent int }

func (RxBufferPercentEvent) Name() string { return "on_rx_buffer_percent" }

type BufsizeChangeEvent struct{ Size int }

func (BufsizeChangeEvent) Name() string { return "on_bufsize_change" }

type VarsChangeEvent struct{ Vars map[string]string }

func (VarsChangeEvent) Name() string { return "on_vars_change" }

type JobCompletedEvent struct{}

func (JobCompletedEvent) Name() string { return "on_job_completed" }

type AlarmEvent struct{ Code string }

func (AlarmEvent) Name() string { return "on_alarm" }

type ErrorEvent struct {
	Index int
	Text  string
	Code  string
}

func (ErrorEvent) Name() string { return "on_error" }

type ProbeEvent struct{ Position Position }

func (ProbeEvent) Name() string { return "on_probe" }

// Handler receives dispatched events. Invocations are serialized (P5): the
// orchestrator never calls Handler concurrently with itself. A Handler must
// not block for long, since it runs on the single dispatcher goroutine.
type Handler func(Event)
