// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later
package store

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// ReadInitLines loads the G-code lines streamed automatically right after
// the connection is opened (homing cycle, default modal state, etc). The
// file is created empty if missing so a fresh install has something to edit.
//
// Grounded on init_file.go, kept essentially verbatim.
func ReadInitLines(filePath string) ([]string, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		if err := os.WriteFile(filePath, []byte(""), 0644); err != nil {
			return nil, fmt.Errorf("create init file: %w", err)
		}
		slog.Info("created empty init file", "path", filePath)
	} else if err != nil {
		return nil, fmt.Errorf("stat init file: %w", err)
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read init file: %w", err)
	}

	var lines []string
	for _, line := range strings.Split(string(content), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// WriteInitLines persists lines as the new init file content.
func WriteInitLines(filePath string, lines []string) error {
	if err := os.WriteFile(filePath, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		return fmt.Errorf("write init file: %w", err)
	}
	return nil
}
