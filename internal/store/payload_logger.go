// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later
package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"
)

// PayloadLogger appends every wire transcript line to a dated, per-session
// log file under logDir, flushing to disk once a second.
//
// Grounded on payload_logger.go, adapted to log a line number alongside
// direction/payload (matching how serve.go's event recorder calls it) and kept on the
// same session-numbered filename scheme.
type PayloadLogger struct {
	file    *os.File
	mu      sync.Mutex
	isDirty bool
	done    chan struct{}
}

func NewPayloadLogger(logDir string) *PayloadLogger {
	pl := &PayloadLogger{done: make(chan struct{})}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		slog.Error("failed to create log directory", "dir", logDir, "error", err)
		return pl
	}

	now := time.Now()
	filename := pl.findNextFileName(logDir, now)
	if filename == "" {
		slog.Error("failed to read log directory, continuing without log file", "dir", logDir)
		return pl
	}

	logPath := filepath.Join(logDir, filename)
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		slog.Error("failed to create log file", "path", logPath, "error", err)
		return pl
	}

	pl.file = file
	slog.Info("created log file", "path", logPath)

	go pl.flushLoop()
	return pl
}

func (pl *PayloadLogger) findNextFileName(logDir string, now time.Time) string {
	today := now.Format("2006-01-02")

	entries, err := os.ReadDir(logDir)
	if err != nil {
		return ""
	}
	pattern := regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})-sess(\d+)-grbl\.txt$`)
	maxSession := -1

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matches := pattern.FindStringSubmatch(entry.Name())
		if len(matches) != 3 {
			continue
		}
		if matches[1] != today {
			continue
		}
		if n, err := strconv.Atoi(matches[2]); err == nil && n > maxSession {
			maxSession = n
		}
	}

	return fmt.Sprintf("%s-sess%d-grbl.txt", today, maxSession+1)
}

func (pl *PayloadLogger) flushLoop() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			pl.mu.Lock()
			if pl.isDirty && pl.file != nil {
				pl.file.Sync()
				pl.isDirty = false
			}
			pl.mu.Unlock()
		case <-pl.done:
			return
		}
	}
}

// AddLine records one transcript line. A no-op if the log file failed to open.
func (pl *PayloadLogger) AddLine(lineNum int, dir string, payload string) {
	if pl.file == nil {
		return
	}

	pl.mu.Lock()
	defer pl.mu.Unlock()

	logLine := fmt.Sprintf("%s %d %s %s\n", FormatTime(time.Now()), lineNum, dir, payload)
	if _, err := pl.file.WriteString(logLine); err != nil {
		slog.Error("failed to write to log file", "error", err)
		return
	}
	pl.isDirty = true
}

func (pl *PayloadLogger) Close() {
	if pl.file == nil {
		return
	}
	close(pl.done)

	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.isDirty {
		pl.file.Sync()
	}
	pl.file.Close()
	pl.file = nil
}
