// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later
package grbl

import "testing"

func TestParserOk(t *testing.T) {
	p := NewParser()
	ev := p.Feed("ok")
	if _, ok := ev.(okReceived); !ok {
		t.Fatalf("expected okReceived, got %T", ev)
	}
}

func TestParserError(t *testing.T) {
	p := NewParser()
	ev := p.Feed("error:9")
	e, ok := ev.(errorReceived)
	if !ok {
		t.Fatalf("expected errorReceived, got %T", ev)
	}
	if e.code != "9" {
		t.Fatalf("expected code 9, got %s", e.code)
	}
}

func TestParserAlarm(t *testing.T) {
	p := NewParser()
	ev := p.Feed("ALARM:1")
	a, ok := ev.(alarmReceived)
	if !ok {
		t.Fatalf("expected alarmReceived, got %T", ev)
	}
	if a.code != "1" {
		t.Fatalf("expected code 1, got %s", a.code)
	}
}

func TestParserBoot(t *testing.T) {
	p := NewParser()
	ev := p.Feed("Grbl 1.1h ['$' for help]")
	b, ok := ev.(bootReceived)
	if !ok {
		t.Fatalf("expected bootReceived, got %T", ev)
	}
	if b.version != "1.1h ['$' for help]" {
		t.Fatalf("unexpected version: %q", b.version)
	}
}

func TestParserStatusLine(t *testing.T) {
	p := NewParser()
	ev := p.Feed("<Run,MPos:1.000,2.000,3.000,WPos:0.500,1.500,2.500,F:400.0,Bf:10,128>")
	s, ok := ev.(statusUpdate)
	if !ok {
		t.Fatalf("expected statusUpdate, got %T", ev)
	}
	if s.mode != ModeRun {
		t.Fatalf("expected Run mode, got %v", s.mode)
	}
	if s.mpos != (Position{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("unexpected mpos: %+v", s.mpos)
	}
	if s.wpos != (Position{X: 0.5, Y: 1.5, Z: 2.5}) {
		t.Fatalf("unexpected wpos: %+v", s.wpos)
	}
	if !s.hasFeed || s.feed != 400.0 {
		t.Fatalf("unexpected feed: %+v", s)
	}
	// Bf:10,128 -> (128-10)/128 = 92%
	if s.rxFillPercent != 92 {
		t.Fatalf("expected 92%% fill, got %d", s.rxFillPercent)
	}
}

func TestParserStatusLineUnknownMode(t *testing.T) {
	p := NewParser()
	ev := p.Feed("<Jog,MPos:0.000,0.000,0.000>")
	s, ok := ev.(statusUpdate)
	if !ok {
		t.Fatalf("expected statusUpdate, got %T", ev)
	}
	if s.mode != ModeUnknown {
		t.Fatalf("expected unknown mode for unrecognized tag, got %v", s.mode)
	}
}

func TestParserSettingsAccumulateUntilOk(t *testing.T) {
	p := NewParser()
	if _, ok := p.Feed("$0=10 (step pulse, usec)").(noParsedEvent); !ok {
		t.Fatalf("expected setting line to be swallowed")
	}
	if _, ok := p.Feed("$1=25 (step idle delay, msec)").(noParsedEvent); !ok {
		t.Fatalf("expected setting line to be swallowed")
	}
	ev := p.Feed("ok")
	done, ok := ev.(settingsDownloaded)
	if !ok {
		t.Fatalf("expected settingsDownloaded after ok, got %T", ev)
	}
	if len(done.settings) != 2 {
		t.Fatalf("expected 2 settings, got %d", len(done.settings))
	}
	if done.settings[0].Value != "10" || done.settings[0].Comment != "step pulse, usec" {
		t.Fatalf("unexpected setting 0: %+v", done.settings[0])
	}

	// Subsequent bare ok (no new settings pending) is a normal ack again.
	if _, ok := p.Feed("ok").(okReceived); !ok {
		t.Fatalf("expected plain okReceived after settings dump drains")
	}
}

func TestParserHashStateAccumulateUntilPRB(t *testing.T) {
	p := NewParser()
	if _, ok := p.Feed("[G54:0.000,0.000,0.000]").(noParsedEvent); !ok {
		t.Fatalf("expected G54 line to be swallowed")
	}
	if _, ok := p.Feed("[TLO:1.500]").(noParsedEvent); !ok {
		t.Fatalf("expected TLO line to be swallowed")
	}
	ev := p.Feed("[PRB:0.000,0.000,1.000:1]")
	done, ok := ev.(hashStateUpdate)
	if !ok {
		t.Fatalf("expected hashStateUpdate on PRB line, got %T", ev)
	}
	if len(done.offsets) != 3 {
		t.Fatalf("expected 3 accumulated offsets, got %d", len(done.offsets))
	}
	if len(done.offsets["PRB"]) != 4 {
		t.Fatalf("expected PRB offset to include the trailing success flag, got %v", done.offsets["PRB"])
	}
}

func TestParserGcodeParserState(t *testing.T) {
	p := NewParser()
	ev := p.Feed("[G0 G54 G17 G21 G90 G94 M0 M5 M9 T0 F0 S0]")
	g, ok := ev.(gcodeParserStateUpdate)
	if !ok {
		t.Fatalf("expected gcodeParserStateUpdate, got %T", ev)
	}
	if len(g.modes) != 12 {
		t.Fatalf("expected 12 modal tokens, got %d", len(g.modes))
	}
	if g.modes[0] != "0" || g.modes[11] != "0" {
		t.Fatalf("unexpected modes: %v", g.modes)
	}
}

func TestParserUnknownLine(t *testing.T) {
	p := NewParser()
	ev := p.Feed("garbage input")
	if _, ok := ev.(unknownLine); !ok {
		t.Fatalf("expected unknownLine, got %T", ev)
	}
}
