// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later
package grbl

import "sync"

// StreamMode selects how the flow controller paces outbound lines.
type StreamMode int

const (
	// CharacterCounting tracks the byte budget of grbl's 128-byte receive
	// buffer and only sends a line once it is known to fit (P1).
	CharacterCounting StreamMode = iota
	// Incremental sends one line per `ok`, ignoring byte accounting. Safe
	// for firmwares with a deep receive buffer, simpler to reason about.
	Incremental
)

// FlowState is the flow controller's own state machine, independent of
// FirmwareState.Mode (which mirrors the firmware's own reported state).
type FlowState int

const (
	FlowIdle FlowState = iota
	FlowStreaming
	FlowPaused
	FlowHalted
	FlowDraining
)

// defaultRxCapacity is grbl's classic serial receive-buffer size (RX_BUFFER_SIZE).
const defaultRxCapacity = 128

// inflightItem is one line the flow controller has written to the wire and
// is waiting to see acknowledged by a matching ok/error.
type inflightItem struct {
	index int
	text  string
	len   int // bytes charged against the receive-buffer budget, line + '\n'
}

// FlowController implements the StreamQueue/PriorityQueue/InflightLog model
// and the byte-budget accounting described in SPEC_FULL.md §4.6. It owns no
// I/O itself; the orchestrator takes lines to write with Next and feeds parsed
// acks back in with AckOldest.
//
// Grounded on comm/comm.go's feedCommand (okToSend counter gating a
// commandCh) and serial.go's feedCommand (maxFillRate-bounded queue-depth
// accounting), generalized from grblHAL's explicit queue-depth protocol and
// the teacher's custom p-state protocol to grbl's character-counting
// byte-budget protocol, which is ack-driven rather than query-driven.
type FlowController struct {
	mu sync.Mutex

	mode  StreamMode
	state FlowState

	capacity int // C, fixed for the session
	fill     int // F, bytes currently charged against capacity

	queue    []string // StreamQueue: FIFO of not-yet-sent lines
	priority []string // PriorityQueue: jogs/overrides, drained before queue
	inflight []inflightItem

	nextIndex int

	stash       []string // unsent StreamQueue tail, saved across Halt
	stashCursor int

	dryRun        bool
	dryRunPending int // synthetic oks owed, one per dry-run write
}

// NewFlowController returns a controller in FlowIdle with grbl's default
// receive-buffer capacity.
func NewFlowController(mode StreamMode) *FlowController {
	return &FlowController{
		mode:      mode,
		state:     FlowIdle,
		capacity:  defaultRxCapacity,
		nextIndex: 1,
	}
}

// SetMode switches between Incremental and CharacterCounting pacing, per
// SPEC_FULL.md §6's `set_streaming_mode`. Takes effect on the next send
// opportunity; already-inflight lines are unaffected.
func (fc *FlowController) SetMode(mode StreamMode) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.mode = mode
}

// SetDryRun toggles synthesized acks in place of a real device. Per
// SPEC_FULL.md §4.6, dry-run synthesizes `ok` internally at a fixed cadence
// instead of waiting on the wire.
func (fc *FlowController) SetDryRun(on bool) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.dryRun = on
}

// Enqueue appends a line to the StreamQueue for streaming.
func (fc *FlowController) Enqueue(line string) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.queue = append(fc.queue, line)
	if fc.state == FlowIdle {
		fc.state = FlowStreaming
	}
}

// EnqueuePriority appends a line to the PriorityQueue, drained ahead of the
// StreamQueue (jogs, feed-hold recovery commands).
func (fc *FlowController) EnqueuePriority(line string) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.priority = append(fc.priority, line)
}

// Next returns the next line ready to be written to the wire and charges its
// length against the fill budget, or ok=false if nothing can be sent right
// now (queues empty, controller paused/halted, or insufficient budget per
// P1). The caller (Orchestrator) is responsible for the actual write; the
// line is already recorded in the InflightLog when Next returns, and stays
// there if the write fails.
func (fc *FlowController) Next() (text string, index int, ok bool) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if fc.state != FlowStreaming {
		return "", 0, false
	}

	// Incremental mode is the classic send-and-wait protocol: never more
	// than one unacknowledged line outstanding, independent of byte budget.
	if fc.mode == Incremental && len(fc.inflight) > 0 {
		return "", 0, false
	}

	src := &fc.priority
	if len(*src) == 0 {
		src = &fc.queue
	}
	if len(*src) == 0 {
		return "", 0, false
	}

	line := (*src)[0]
	cost := len(line) + 1 // + '\n'

	if fc.mode == CharacterCounting && fc.fill+cost > fc.capacity {
		return "", 0, false // P1: would overflow the mirrored receive buffer
	}

	*src = (*src)[1:]
	idx := fc.nextIndex
	fc.nextIndex++
	fc.fill += cost
	fc.inflight = append(fc.inflight, inflightItem{index: idx, text: line, len: cost})

	if fc.dryRun {
		fc.dryRunPending++
	}

	return line, idx, true
}

// AckOldest pops the oldest inflight item on a received ok/error, releasing
// its byte budget. ok=false means there was nothing inflight to ack.
func (fc *FlowController) AckOldest() (item inflightItem, ok bool) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if len(fc.inflight) == 0 {
		return inflightItem{}, false
	}
	item = fc.inflight[0]
	fc.inflight = fc.inflight[1:]
	fc.fill -= item.len
	if fc.fill < 0 {
		fc.fill = 0
	}
	return item, true
}

// Pending reports whether the flow controller still has anything in flight
// or queued; JobCompleted should not fire while this is true.
func (fc *FlowController) Pending() bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return len(fc.queue) > 0 || len(fc.priority) > 0 || len(fc.inflight) > 0
}

// State returns the current FlowState.
func (fc *FlowController) State() FlowState {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.state
}

// Pause moves FlowStreaming -> FlowPaused without discarding any queue or
// inflight state; a feed-hold real-time byte is expected to follow
// separately as it bypasses this controller entirely.
func (fc *FlowController) Pause() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.state == FlowStreaming {
		fc.state = FlowPaused
	}
}

// Resume moves FlowPaused -> FlowStreaming.
func (fc *FlowController) Resume() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.state == FlowPaused {
		fc.state = FlowStreaming
	}
}

// Stash saves the unsent StreamQueue tail and moves to FlowHalted. Per
// SPEC_FULL.md §9's Open Question decision, InflightLog is deliberately left
// to drain on its own rather than stashed.
func (fc *FlowController) Stash() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.stash = fc.queue
	fc.stashCursor = 0
	fc.queue = nil
	fc.priority = nil
	fc.state = FlowHalted
}

// Unstash restores a previously stashed StreamQueue tail and returns to
// FlowStreaming.
func (fc *FlowController) Unstash() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.queue = fc.stash
	fc.stash = nil
	fc.stashCursor = 0
	if len(fc.queue) > 0 {
		fc.state = FlowStreaming
	} else {
		fc.state = FlowIdle
	}
}

// SoftReset clears all queues, inflight accounting, and the byte budget, as
// grbl's own soft reset (Ctrl-X) does on the firmware side.
func (fc *FlowController) SoftReset() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.queue = nil
	fc.priority = nil
	fc.inflight = nil
	fc.stash = nil
	fc.stashCursor = 0
	fc.fill = 0
	fc.dryRunPending = 0
	fc.state = FlowIdle
}

// FillPercent reports the controller's own view of receive-buffer fill, 0-100.
func (fc *FlowController) FillPercent() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.capacity == 0 {
		return 0
	}
	return fc.fill * 100 / fc.capacity
}

// TakeDryRunAck consumes one pending synthetic ack if one is owed, for the
// orchestrator's dry-run ticker to drive AckOldest without a real device.
func (fc *FlowController) TakeDryRunAck() bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.dryRunPending == 0 {
		return false
	}
	fc.dryRunPending--
	return true
}
