// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later
package grbl

import "testing"

func TestDecodeWellKnownSettings(t *testing.T) {
	raw := map[int]Setting{
		100: {Value: "80.000", Comment: "x, step/mm"},
		101: {Value: "80.000", Comment: "y, step/mm"},
		110: {Value: "500.000", Comment: "x max rate, mm/min"},
		21:  {Value: "1", Comment: "hard limits, bool"},
		22:  {Value: "0", Comment: "homing cycle, bool"},
		999: {Value: "unused", Comment: "unknown number, ignored"},
	}

	out, err := DecodeWellKnownSettings(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.XStepsPerMM != 80 {
		t.Fatalf("XStepsPerMM = %v, want 80", out.XStepsPerMM)
	}
	if out.XMaxRate != 500 {
		t.Fatalf("XMaxRate = %v, want 500", out.XMaxRate)
	}
	if !out.HardLimitsEnable {
		t.Fatalf("HardLimitsEnable = false, want true")
	}
	if out.HomingCycleEnable {
		t.Fatalf("HomingCycleEnable = true, want false")
	}
}

func TestDecodeWellKnownSettingsEmpty(t *testing.T) {
	out, err := DecodeWellKnownSettings(nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.XStepsPerMM != 0 {
		t.Fatalf("expected zero value for empty settings, got %v", out.XStepsPerMM)
	}
}
