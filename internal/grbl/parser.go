// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later
package grbl

import (
	"strconv"
	"strings"
)

// hashPrefixes lists the 11 coordinate-system tags grbl's `$#` reports.
// Ground: SPEC_FULL.md §3 FirmwareState.hash_offsets enumeration.
var hashPrefixes = map[string]bool{
	"G54": true, "G55": true, "G56": true, "G57": true, "G58": true, "G59": true,
	"G28": true, "G30": true, "G92": true, "TLO": true, "PRB": true,
}

// ParsedEvent is the parser's output: exactly one per inbound line, per
// SPEC_FULL.md §4.4. Multi-line responses (settings, hash-state) are
// accumulated internally by Parser and surfaced only once complete.
type ParsedEvent interface {
	parsedEvent()
}

type okReceived struct{}

func (okReceived) parsedEvent() {}

type errorReceived struct{ code string }

func (errorReceived) parsedEvent() {}

type alarmReceived struct{ code string }

func (alarmReceived) parsedEvent() {}

type bootReceived struct{ version string }

func (bootReceived) parsedEvent() {}

type statusUpdate struct {
	mode          MachineMode
	mpos, wpos    Position
	feed          float64
	hasFeed       bool
	rxFillPercent int
}

func (statusUpdate) parsedEvent() {}

type settingsDownloaded struct{ settings map[int]Setting }

func (settingsDownloaded) parsedEvent() {}

type hashStateUpdate struct{ offsets map[string][]float64 }

func (hashStateUpdate) parsedEvent() {}

type gcodeParserStateUpdate struct{ modes []string }

func (gcodeParserStateUpdate) parsedEvent() {}

type unknownLine struct{ text string }

func (unknownLine) parsedEvent() {}

// noParsedEvent means the line was consumed into accumulator state with
// nothing yet to surface (e.g. a `$N=V` line before the dump completes).
type noParsedEvent struct{}

func (noParsedEvent) parsedEvent() {}

// settingLineMatcher matches `$N=V (comment)` without pulling in regexp for a
// format this simple and fully anchored.
type settingLineMatcher struct{}

func (settingLineMatcher) match(line string) (id int, value, comment string, ok bool) {
	if !strings.HasPrefix(line, "$") {
		return 0, "", "", false
	}
	rest := line[1:]
	eq := strings.IndexByte(rest, '=')
	if eq < 0 {
		return 0, "", "", false
	}
	idStr := rest[:eq]
	n, err := strconv.Atoi(idStr)
	if err != nil {
		return 0, "", "", false
	}
	rest = rest[eq+1:]

	if open := strings.IndexByte(rest, '('); open >= 0 {
		value = strings.TrimSpace(rest[:open])
		close := strings.LastIndexByte(rest, ')')
		if close > open {
			comment = rest[open+1 : close]
		}
	} else {
		value = strings.TrimSpace(rest)
	}
	return n, value, comment, true
}

// Parser classifies inbound lines per the ordered rules in SPEC_FULL.md §4.4,
// accumulating the two multi-line responses (settings, hash-state) across
// calls. Grounded on comm/pstate.go's tokenize-then-accumulate shape, adapted
// from bracket-delimited `<tag k:v ...>` p-state syntax to grbl's line
// grammars.
type Parser struct {
	pendingSettings   map[int]Setting
	collectingSetting bool

	pendingHash   map[string][]float64
	collectingHash bool
}

// NewParser returns a Parser ready to classify the first inbound line.
func NewParser() *Parser {
	return &Parser{}
}

// Feed classifies one inbound line, returning exactly one ParsedEvent. A
// malformed line never returns an error; it becomes unknownLine.
func (p *Parser) Feed(line string) ParsedEvent {
	switch {
	case line == "ok":
		return p.feedOk()
	case strings.HasPrefix(line, "error:"):
		return errorReceived{code: strings.TrimPrefix(line, "error:")}
	case strings.HasPrefix(line, "ALARM:"):
		return alarmReceived{code: strings.TrimPrefix(line, "ALARM:")}
	case strings.HasPrefix(line, "Grbl "):
		return bootReceived{version: strings.TrimPrefix(line, "Grbl ")}
	case strings.HasPrefix(line, "<") && strings.HasSuffix(line, ">"):
		return p.parseStatusLine(line)
	case isSettingLine(line):
		return p.feedSettingLine(line)
	case strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]"):
		return p.parseBracketLine(line)
	default:
		return unknownLine{text: line}
	}
}

func isSettingLine(line string) bool {
	if !strings.HasPrefix(line, "$") {
		return false
	}
	_, _, _, ok := settingLineMatcher{}.match(line)
	return ok
}

func (p *Parser) feedOk() ParsedEvent {
	if p.collectingSetting && len(p.pendingSettings) > 0 {
		settings := p.pendingSettings
		p.pendingSettings = nil
		p.collectingSetting = false
		return settingsDownloaded{settings: settings}
	}
	return okReceived{}
}

func (p *Parser) feedSettingLine(line string) ParsedEvent {
	id, value, comment, ok := settingLineMatcher{}.match(line)
	if !ok {
		return unknownLine{text: line}
	}
	if p.pendingSettings == nil {
		p.pendingSettings = make(map[int]Setting)
	}
	p.pendingSettings[id] = Setting{Value: value, Comment: comment}
	p.collectingSetting = true
	return noParsedEvent{}
}

// parseStatusLine parses `<Mode,MPos:x,y,z,WPos:x,y,z,F:f,Bf:a,b,Ln:n>`.
// Fields are comma-separated, but MPos/WPos themselves contain embedded
// commas, so tokens are walked sequentially: a token with a ':' starts a new
// field, any token without one is a continuation value of the current field.
func (p *Parser) parseStatusLine(line string) ParsedEvent {
	body := strings.TrimSuffix(strings.TrimPrefix(line, "<"), ">")
	toks := strings.Split(body, ",")
	if len(toks) == 0 {
		return unknownLine{text: line}
	}

	mode := parseMode(toks[0])
	fields := map[string][]string{}
	var curKey string
	for _, tok := range toks[1:] {
		if idx := strings.IndexByte(tok, ':'); idx >= 0 {
			curKey = tok[:idx]
			fields[curKey] = append(fields[curKey], tok[idx+1:])
		} else if curKey != "" {
			fields[curKey] = append(fields[curKey], tok)
		}
	}

	mpos, _ := parsePosition(fields["MPos"])
	wpos, _ := parsePosition(fields["WPos"])

	var feed float64
	hasFeed := false
	if fs, ok := fields["F"]; ok && len(fs) > 0 {
		if v, err := strconv.ParseFloat(fs[0], 64); err == nil {
			feed = v
			hasFeed = true
		}
	}

	rxFillPercent := 0
	if bf, ok := fields["Bf"]; ok && len(bf) == 2 {
		avail, errA := strconv.ParseFloat(bf[0], 64)
		cap, errB := strconv.ParseFloat(bf[1], 64)
		if errA == nil && errB == nil && cap > 0 {
			used := cap - avail
			rxFillPercent = int(used / cap * 100)
		}
	}

	return statusUpdate{
		mode: mode, mpos: mpos, wpos: wpos,
		feed: feed, hasFeed: hasFeed,
		rxFillPercent: rxFillPercent,
	}
}

func parseMode(tok string) MachineMode {
	switch strings.Split(tok, ":")[0] {
	case "Idle":
		return ModeIdle
	case "Run":
		return ModeRun
	case "Hold":
		return ModeHold
	case "Queue":
		return ModeQueue
	case "Alarm":
		return ModeAlarm
	case "Check":
		return ModeCheck
	case "Home":
		return ModeHome
	default:
		return ModeUnknown
	}
}

func parsePosition(vals []string) (Position, bool) {
	if len(vals) < 3 {
		return Position{}, false
	}
	x, errX := strconv.ParseFloat(vals[0], 64)
	y, errY := strconv.ParseFloat(vals[1], 64)
	z, errZ := strconv.ParseFloat(vals[2], 64)
	if errX != nil || errY != nil || errZ != nil {
		return Position{}, false
	}
	return Position{X: x, Y: y, Z: z}, true
}

// parseBracketLine handles both `[PREFIX:f,f,f]` hash-state lines and
// `[G0 G54 G17 ...]` parser-state lines.
func (p *Parser) parseBracketLine(line string) ParsedEvent {
	body := strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")

	if idx := strings.IndexByte(body, ':'); idx >= 0 && !strings.Contains(body[:idx], " ") {
		prefix := body[:idx]
		if hashPrefixes[prefix] {
			return p.feedHashLine(prefix, body[idx+1:])
		}
	}

	toks := strings.Fields(body)
	if len(toks) == 12 {
		modes := make([]string, len(toks))
		for i, tok := range toks {
			modes[i] = stripModeLetter(tok)
		}
		return gcodeParserStateUpdate{modes: modes}
	}
	return unknownLine{text: line}
}

// stripModeLetter strips a leading G/M/T/F/S/P prefix letter off a modal
// token, per SPEC_FULL.md §4.4 rule 8: modes are bare indices, not the raw
// `G0`/`M5`-style tokens grbl reports them as.
func stripModeLetter(tok string) string {
	if len(tok) > 0 && strings.ContainsRune("GMTFSP", rune(tok[0])) {
		return tok[1:]
	}
	return tok
}

func (p *Parser) feedHashLine(prefix, payload string) ParsedEvent {
	// PRB carries a trailing `:1`/`:0` probe-success flag after its x,y,z
	// triple; every other prefix is a plain comma-separated float tuple.
	// Flattening every ':'- and ','-delimited component keeps both shapes
	// in one pass.
	var floats []float64
	for _, part := range strings.Split(payload, ":") {
		for _, v := range strings.Split(part, ",") {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				continue
			}
			floats = append(floats, f)
		}
	}

	if p.pendingHash == nil {
		p.pendingHash = make(map[string][]float64)
	}
	p.pendingHash[prefix] = floats
	p.collectingHash = true

	if prefix == "PRB" {
		offsets := p.pendingHash
		p.pendingHash = nil
		p.collectingHash = false
		return hashStateUpdate{offsets: offsets}
	}
	return noParsedEvent{}
}
