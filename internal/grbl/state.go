// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later
package grbl

import "sync"

// MachineMode mirrors grbl's reported machine state.
type MachineMode string

const (
	ModeUnknown MachineMode = ""
	ModeIdle    MachineMode = "Idle"
	ModeRun     MachineMode = "Run"
	ModeHold    MachineMode = "Hold"
	ModeQueue   MachineMode = "Queue"
	ModeAlarm   MachineMode = "Alarm"
	ModeCheck   MachineMode = "Check"
	ModeHome    MachineMode = "Home"
)

// Position is a 3-axis coordinate, in the units grbl reports (usually mm).
type Position struct {
	X, Y, Z float64
}

// Setting is a single `$N=V (comment)` grbl setting.
type Setting struct {
	Value   string
	Comment string
}

// FirmwareState is the host's mirror of grbl's asynchronous state. It is
// updated only from parsed inbound events, on the dispatcher goroutine.
type FirmwareState struct {
	Mode            MachineMode
	MachinePosition Position
	WorkingPosition Position
	Settings        map[int]Setting
	ParserModes     []string
	HashOffsets     map[string][]float64
	FeedCurrent     float64
	RxFillPercent   int
}

func newFirmwareState() FirmwareState {
	return FirmwareState{
		Mode:        ModeUnknown,
		Settings:    make(map[int]Setting),
		HashOffsets: make(map[string][]float64),
	}
}

// clone returns a deep copy safe to hand to a caller outside the writer goroutine.
func (fs FirmwareState) clone() FirmwareState {
	out := fs
	out.Settings = make(map[int]Setting, len(fs.Settings))
	for k, v := range fs.Settings {
		out.Settings[k] = v
	}
	out.HashOffsets = make(map[string][]float64, len(fs.HashOffsets))
	for k, v := range fs.HashOffsets {
		cp := make([]float64, len(v))
		copy(cp, v)
		out.HashOffsets[k] = cp
	}
	out.ParserModes = append([]string(nil), fs.ParserModes...)
	return out
}

// stateMirror is the single-writer, multi-reader holder of FirmwareState.
// Only the dispatcher goroutine calls the mutating methods; any goroutine may
// call Snapshot.
type stateMirror struct {
	mu    sync.RWMutex
	state FirmwareState
}

func newStateMirror() *stateMirror {
	return &stateMirror{state: newFirmwareState()}
}

func (m *stateMirror) Snapshot() FirmwareState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// reset clears all state back to zero value, e.g. on boot detection.
func (m *stateMirror) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = newFirmwareState()
}

// applyStatus updates mode/positions/feed/buffer percent, returning the
// previous feed value so callers can detect a FeedChange.
func (m *stateMirror) applyStatus(mode MachineMode, mpos, wpos Position, feed float64, hasFeed bool, rxFillPercent int) (prevMode MachineMode, prevFeed float64, feedKnown bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prevMode = m.state.Mode
	prevFeed = m.state.FeedCurrent
	feedKnown = hasFeed

	m.state.Mode = mode
	m.state.MachinePosition = mpos
	m.state.WorkingPosition = wpos
	if hasFeed {
		m.state.FeedCurrent = feed
	}
	m.state.RxFillPercent = rxFillPercent
	return
}

func (m *stateMirror) applySettings(settings map[int]Setting) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Settings = settings
}

func (m *stateMirror) applyHashState(offsets map[string][]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.HashOffsets = offsets
}

func (m *stateMirror) applyParserState(modes []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.ParserModes = modes
}

func (m *stateMirror) setMode(mode MachineMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Mode = mode
}
