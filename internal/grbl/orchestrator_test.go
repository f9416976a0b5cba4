// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later
package grbl

import (
	"sync"
	"testing"
	"time"
)

// fakeTransport is an in-memory Transport stand-in so orchestrator tests
// never touch a real serial port.
type fakeTransport struct {
	mu      sync.Mutex
	written []string
	rt      []byte

	lines chan string
	errs  chan error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		lines: make(chan string, 64),
		errs:  make(chan error, 8),
	}
}

func (f *fakeTransport) Open() error  { return nil }
func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) WriteLine(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, line)
	return nil
}

func (f *fakeTransport) WriteRealtime(b byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rt = append(f.rt, b)
	return nil
}

func (f *fakeTransport) Lines() <-chan string { return f.lines }
func (f *fakeTransport) Errors() <-chan error { return f.errs }

func (f *fakeTransport) Push(line string) { f.lines <- line }

func (f *fakeTransport) Written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestDriverStreamsAndAcksDriveWrite(t *testing.T) {
	tr := newFakeTransport()
	var mu sync.Mutex
	var events []Event
	d := NewDriver(tr, func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	}, WithStreamMode(Incremental))

	if err := d.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer d.Disconnect()

	d.Stream([]string{"G1 X1 ; comment", "G1 X2"})

	waitFor(t, time.Second, func() bool { return len(tr.Written()) == 1 })
	if got := tr.Written()[0]; got != "G1 X1" {
		t.Fatalf("expected comment stripped, got %q", got)
	}

	tr.Push("ok")
	waitFor(t, time.Second, func() bool { return len(tr.Written()) == 2 })
	if got := tr.Written()[1]; got != "G1 X2" {
		t.Fatalf("expected second line sent after ack, got %q", got)
	}

	tr.Push("ok")
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, ev := range events {
			if ev.Name() == "on_job_completed" {
				return true
			}
		}
		return false
	})
}

func TestDriverStatusUpdateUpdatesSnapshot(t *testing.T) {
	tr := newFakeTransport()
	d := NewDriver(tr, nil)
	if err := d.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer d.Disconnect()

	tr.Push("<Run,MPos:1.000,2.000,3.000,WPos:0.000,0.000,0.000>")
	waitFor(t, time.Second, func() bool {
		return d.Snapshot().Mode == ModeRun
	})
	if got := d.Snapshot().MachinePosition; got != (Position{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("unexpected machine position: %+v", got)
	}
}

func TestDriverFeedOverrideRewritesWireLine(t *testing.T) {
	tr := newFakeTransport()
	d := NewDriver(tr, nil, WithStreamMode(Incremental))
	if err := d.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer d.Disconnect()

	d.SetFeedOverride(true)
	d.RequestFeed(800)
	d.Stream([]string{"F100 G1 X210"})

	waitFor(t, time.Second, func() bool { return len(tr.Written()) == 1 })
	if got := tr.Written()[0]; got != "F800 G1 X210" {
		t.Fatalf("expected F800 G1 X210 on the wire, got %q", got)
	}
}

func TestDriverHaltStashesQueueAndSendsFeedHold(t *testing.T) {
	tr := newFakeTransport()
	d := NewDriver(tr, nil, WithStreamMode(Incremental))
	if err := d.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer d.Disconnect()

	d.Stream([]string{"G1 X1"})
	waitFor(t, time.Second, func() bool { return len(tr.Written()) == 1 })

	if err := d.Halt(); err != nil {
		t.Fatalf("Halt: %v", err)
	}
	if d.flow.State() != FlowHalted {
		t.Fatalf("expected FlowHalted after Halt, got %v", d.flow.State())
	}
	if len(tr.rt) == 0 || tr.rt[len(tr.rt)-1] != rtFeedHold {
		t.Fatalf("expected feed-hold byte written, got %v", tr.rt)
	}
}
