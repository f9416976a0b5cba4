// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later
package grbl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrNotConnected is returned by command-surface methods called before
// Connect or after Disconnect.
var ErrNotConnected = errors.New("grbl: not connected")

// Driver owns the transport, parser, state mirror and flow controller for one
// grbl connection, and dispatches every inbound event to a single registered
// Handler on its own dispatcher goroutine (P5: serialized invocation).
//
// Grounded on comm/comm.go's InitComm/Close lifecycle and its CommHandler
// callback interface, re-architected into a tagged-variant Event type
// instead of a three-method interface carrying untyped payloads.
type Driver struct {
	transport Transport
	parser    *Parser
	state     *stateMirror
	flow      *FlowController
	preproc   Preprocessor

	mu      sync.Mutex
	handler Handler
	events  chan Event

	cancel context.CancelFunc
	wg     sync.WaitGroup

	feedOverrideEnabled bool
	feedOverrideValue   float64
}

// Option configures a Driver at construction time.
type Option func(*Driver)

// WithPreprocessor overrides the default comment-stripping preprocessor.
func WithPreprocessor(p Preprocessor) Option {
	return func(d *Driver) { d.preproc = p }
}

// WithStreamMode selects character-counting vs incremental pacing.
func WithStreamMode(mode StreamMode) Option {
	return func(d *Driver) { d.flow = NewFlowController(mode) }
}

// NewDriver builds a Driver around transport. Connect must be called before
// any command-surface method will do anything.
func NewDriver(transport Transport, handler Handler, opts ...Option) *Driver {
	d := &Driver{
		transport: transport,
		parser:    NewParser(),
		state:     newStateMirror(),
		flow:      NewFlowController(CharacterCounting),
		preproc:   DefaultPreprocessor{},
		handler:   handler,
		events:    make(chan Event, 256),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Connect opens the transport and starts the three long-lived goroutines:
// line reader, poller (owned by the transport itself), and event dispatcher.
func (d *Driver) Connect() error {
	if err := d.transport.Open(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	d.wg.Add(2)
	go d.readLoop(ctx)
	go d.dispatchLoop(ctx)

	return nil
}

// Disconnect stops all goroutines and closes the transport.
func (d *Driver) Disconnect() error {
	if d.cancel != nil {
		d.cancel()
	}
	err := d.transport.Close()
	d.wg.Wait()
	d.emit(DisconnectedEvent{})
	return err
}

// Events returns a channel mirroring dispatched Events, for callers that
// prefer to select on a channel instead of registering a Handler. The channel
// holds 256 events; while it is full, further events are dropped from it
// (with a warning) but still reach the Handler.
func (d *Driver) Events() <-chan Event { return d.events }

// SetHandler replaces the registered Handler. Safe to call before or after
// Connect; emit() reads the handler under mu on every dispatch.
func (d *Driver) SetHandler(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

// Snapshot returns a deep copy of the current FirmwareState mirror.
func (d *Driver) Snapshot() FirmwareState { return d.state.Snapshot() }

// readLoop pulls classified lines off the transport and feeds them to the
// dispatcher via the internal events channel, tagged by source.
func (d *Driver) readLoop(ctx context.Context) {
	defer d.wg.Done()
	lines := d.transport.Lines()
	errs := d.transport.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			d.emit(ReadEvent{Line: line})
			d.handleLine(line)
		case err, ok := <-errs:
			if !ok {
				return
			}
			d.emit(LogEvent{Text: err.Error()})
		}
	}
}

// dispatchLoop drives the dry-run synthetic ack ticker and the feed-budget
// write attempts; it is the single goroutine allowed to call Handler.
func (d *Driver) dispatchLoop(ctx context.Context) {
	defer d.wg.Done()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			d.pump()
		}
	}
}

// pump drains one dry-run ack (if owed) and attempts to write the next
// ready line; called from the dispatcher goroutine only.
func (d *Driver) pump() {
	if d.flow.TakeDryRunAck() {
		if item, ok := d.flow.AckOldest(); ok {
			d.emit(ProcessedCommandEvent{Index: item.index, Text: item.text})
			d.maybeJobCompleted()
		}
	}
	for {
		line, idx, ok := d.flow.Next()
		if !ok {
			return
		}
		d.flow.mu.Lock()
		dryRun := d.flow.dryRun
		d.flow.mu.Unlock()
		if !dryRun {
			if err := d.transport.WriteLine(line); err != nil {
				d.emit(LogEvent{Text: err.Error()})
				return
			}
		}
		d.emit(WriteEvent{Bytes: []byte(line)})
		d.emit(LineSentEvent{Index: idx, Text: line})
	}
}

// handleLine classifies one inbound line and updates state/dispatches events
// accordingly. Runs on the readLoop goroutine but only ever touches shared
// state through stateMirror/flow, which are themselves safe for concurrent
// use; event emission always goes through the single events channel so
// Handler invocation still happens from one place.
func (d *Driver) handleLine(line string) {
	switch ev := d.parser.Feed(line).(type) {
	case okReceived:
		d.handleAck(nil)
	case errorReceived:
		d.handleAck(&ev.code)
	case alarmReceived:
		d.emit(AlarmEvent{Code: ev.code})
	case bootReceived:
		d.state.reset()
		d.state.setMode(ModeIdle)
		d.flow.SoftReset()
		d.emit(BootEvent{Version: ev.version})
		// Per SPEC_FULL.md §4.4 rule 4 / §4.5, a boot line implicitly triggers
		// a settings and hash-state re-download.
		if err := d.RequestSettings(); err != nil {
			d.emit(LogEvent{Text: err.Error()})
		}
		if err := d.RequestHashState(); err != nil {
			d.emit(LogEvent{Text: err.Error()})
		}
	case statusUpdate:
		rxFillPercent := d.flow.FillPercent()
		prevMode, prevFeed, feedKnown := d.state.applyStatus(ev.mode, ev.mpos, ev.wpos, ev.feed, ev.hasFeed, rxFillPercent)
		d.emit(StateUpdateEvent{Mode: ev.mode, MPos: ev.mpos, WPos: ev.wpos})
		d.emit(RxBufferPercentEvent{Percent: rxFillPercent})
		if feedKnown && ev.feed != prevFeed {
			d.emit(FeedChangeEvent{Feed: ev.feed})
		}
		if prevMode != ev.mode {
			if ev.mode == ModeRun {
				d.emit(MovementEvent{})
			} else if prevMode == ModeRun {
				d.emit(StandstillEvent{})
			}
		}
	case settingsDownloaded:
		d.state.applySettings(ev.settings)
		d.emit(SettingsDownloadedEvent{Settings: ev.settings})
	case hashStateUpdate:
		d.state.applyHashState(ev.offsets)
		d.emit(HashStateUpdateEvent{Offsets: ev.offsets})
		if prb, ok := ev.offsets["PRB"]; ok && len(prb) >= 3 {
			d.emit(ProbeEvent{Position: Position{X: prb[0], Y: prb[1], Z: prb[2]}})
		}
	case gcodeParserStateUpdate:
		d.state.applyParserState(ev.modes)
		d.emit(GcodeParserStateUpdateEvent{Modes: ev.modes})
	case unknownLine:
		d.emit(LogEvent{Text: "unrecognized line: " + ev.text})
	case noParsedEvent:
		// swallowed: part of an in-progress settings/hash-state accumulation
	}
}

// handleAck processes one ok/error line against the oldest inflight item.
// errCode is nil for ok, non-nil for error:N.
func (d *Driver) handleAck(errCode *string) {
	item, ok := d.flow.AckOldest()
	if !ok {
		return // ack with nothing inflight: a real-time query reply or stray ok
	}
	if errCode != nil {
		d.emit(ErrorEvent{Index: item.index, Text: item.text, Code: *errCode})
	} else {
		d.emit(ProcessedCommandEvent{Index: item.index, Text: item.text})
	}
	d.maybeJobCompleted()
}

// maybeJobCompleted emits JobCompleted once the flow controller has nothing
// left queued or inflight. Per SPEC_FULL.md §9's Open Question decision,
// this check runs only after the triggering ProcessedCommand/Error has
// already been emitted, so JobCompleted is always the later of the two.
func (d *Driver) maybeJobCompleted() {
	if !d.flow.Pending() {
		d.emit(JobCompletedEvent{})
	}
}

func (d *Driver) emit(ev Event) {
	select {
	case d.events <- ev:
	default:
		slog.Warn("grbl: event channel full, dropping event", "event", ev.Name())
	}
	d.mu.Lock()
	h := d.handler
	d.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// --- Public command surface, per SPEC_FULL.md §6 ---

// Stream enqueues lines for streaming, running each through the active
// Preprocessor first; empty results (comment-only lines) are dropped.
func (d *Driver) Stream(lines []string) {
	ctx := d.preprocessContext()
	for _, l := range lines {
		if out := d.preproc.Process(l, ctx); out != "" {
			d.flow.Enqueue(out)
		}
	}
}

// SendJog enqueues a single line on the PriorityQueue, ahead of any
// in-progress stream.
func (d *Driver) SendJog(line string) {
	ctx := d.preprocessContext()
	if out := d.preproc.Process(line, ctx); out != "" {
		d.flow.EnqueuePriority(out)
	}
}

func (d *Driver) preprocessContext() PreprocessContext {
	d.mu.Lock()
	defer d.mu.Unlock()
	return PreprocessContext{
		FeedOverrideEnabled: d.feedOverrideEnabled,
		FeedOverrideValue:   d.feedOverrideValue,
	}
}

// SetFeedOverride enables or disables the feed override; while enabled, every
// F-word in a subsequently preprocessed line is rewritten to the value set by
// RequestFeed. Per SPEC_FULL.md §6's `set_feed_override(bool)`.
func (d *Driver) SetFeedOverride(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.feedOverrideEnabled = enabled
}

// RequestFeed sets the absolute feed value substituted into F-words while
// the feed override is enabled. Per SPEC_FULL.md §6's `request_feed(value)`.
func (d *Driver) RequestFeed(value float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.feedOverrideValue = value
}

// SetStreamingMode switches the flow controller between Incremental and
// CharacterCounting pacing. Per SPEC_FULL.md §6's `set_streaming_mode`.
func (d *Driver) SetStreamingMode(mode StreamMode) {
	d.flow.SetMode(mode)
}

// Pause issues a feed-hold: the real-time `!` byte plus pausing the flow
// controller so no further queued lines are written while held.
func (d *Driver) Pause() error {
	d.flow.Pause()
	return d.transport.WriteRealtime(rtFeedHold)
}

// Resume issues cycle-start: the real-time `~` byte plus resuming the flow
// controller.
func (d *Driver) Resume() error {
	d.flow.Resume()
	return d.transport.WriteRealtime(rtCycleStart)
}

// Halt stashes the unsent StreamQueue tail and issues a feed-hold, leaving
// InflightLog to drain per the stash-scope decision in SPEC_FULL.md §9.
func (d *Driver) Halt() error {
	d.flow.Stash()
	return d.transport.WriteRealtime(rtFeedHold)
}

// Unstash restores a previously halted stream and issues cycle-start.
func (d *Driver) Unstash() error {
	d.flow.Unstash()
	return d.transport.WriteRealtime(rtCycleStart)
}

// SoftReset issues grbl's Ctrl-X soft reset and clears all local queue and
// inflight state to match.
func (d *Driver) SoftReset() error {
	d.flow.SoftReset()
	return d.transport.WriteRealtime(rtSoftReset)
}

// RequestStatus issues an immediate `?` status query outside the poller's
// own cadence.
func (d *Driver) RequestStatus() error {
	return d.transport.WriteRealtime(rtStatusQuery)
}

// RequestSettings issues `$$`, which grbl answers with a `$N=V` dump
// terminated by `ok`; the parser accumulates it into a SettingsDownloaded event.
func (d *Driver) RequestSettings() error {
	return d.transport.WriteLine("$$")
}

// RequestHashState issues `$#`, which grbl answers with `[G54:...]`..`[PRB:...]`
// bracket lines terminated by the `[PRB:...]` line.
func (d *Driver) RequestHashState() error {
	return d.transport.WriteLine("$#")
}

// RequestParserState issues `$G`, answered with a single `[G0 G54 ...]` line.
func (d *Driver) RequestParserState() error {
	return d.transport.WriteLine("$G")
}

// SetDryRun toggles dry-run streaming, where acks are synthesized internally
// instead of waited on from the wire.
func (d *Driver) SetDryRun(on bool) {
	d.flow.SetDryRun(on)
}
