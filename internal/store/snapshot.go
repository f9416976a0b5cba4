// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later
package store

import (
	"slices"
	"sync"
	"time"

	"github.com/xykasumi/grbld/internal/grbl"
)

// StateSnapshot pairs a FirmwareState copy with the time it was captured.
type StateSnapshot struct {
	State grbl.FirmwareState
	Time  time.Time
}

// StateDB keeps an ordered-by-time history of FirmwareState snapshots, one
// series per tag (e.g. "status", "settings", "hash"), so a client can later
// ask "what did the state look like around time T".
//
// Grounded on ps_db.go's PSDB, generalized from `comm.PState` to
// `grbl.FirmwareState` and renamed for the domain.
type StateDB struct {
	mu   sync.RWMutex
	data map[string][]StateSnapshot
}

func NewStateDB() *StateDB {
	return &StateDB{data: make(map[string][]StateSnapshot)}
}

// Add records one snapshot under tag. tm should be monotonically increasing
// per tag; out-of-order inserts are still placed correctly but cost O(N).
func (db *StateDB) Add(tag string, state grbl.FirmwareState, tm time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()

	entries := db.data[tag]
	n := len(entries)
	snap := StateSnapshot{State: state, Time: tm}
	if n == 0 || tm.After(entries[n-1].Time) {
		db.data[tag] = append(entries, snap)
		return
	}

	i, _ := slices.BinarySearchFunc(entries, tm, func(e StateSnapshot, t time.Time) int {
		switch {
		case e.Time.Before(t):
			return -1
		case e.Time.After(t):
			return 1
		default:
			return 0
		}
	})
	db.data[tag] = slices.Insert(entries, i, snap)
}

// Latest returns at most n of the newest snapshots under tag, newest first.
func (db *StateDB) Latest(tag string, n int) []StateSnapshot {
	db.mu.RLock()
	defer db.mu.RUnlock()

	entries, ok := db.data[tag]
	if !ok || len(entries) == 0 {
		return nil
	}
	if n > len(entries) {
		n = len(entries)
	}
	ret := slices.Clone(entries[len(entries)-n:])
	slices.Reverse(ret)
	return ret
}
