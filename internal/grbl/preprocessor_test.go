// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later
package grbl

import "testing"

// TestDefaultPreprocessorFeedOverride exercises SPEC_FULL.md §8 scenario 5:
// with the override enabled and a target feed of 800, the wire line reflects
// F800, not the line's own F100.
func TestDefaultPreprocessorFeedOverride(t *testing.T) {
	p := DefaultPreprocessor{}

	out := p.Process("F100 G1 X210", PreprocessContext{FeedOverrideEnabled: true, FeedOverrideValue: 800})
	if out != "F800 G1 X210" {
		t.Fatalf("expected F800 G1 X210, got %q", out)
	}
}

func TestDefaultPreprocessorFeedOverrideDisabled(t *testing.T) {
	p := DefaultPreprocessor{}

	out := p.Process("F100 G1 X210", PreprocessContext{FeedOverrideEnabled: false, FeedOverrideValue: 800})
	if out != "F100 G1 X210" {
		t.Fatalf("expected line unchanged when override disabled, got %q", out)
	}
}

func TestDefaultPreprocessorFeedOverrideNoFWord(t *testing.T) {
	p := DefaultPreprocessor{}

	out := p.Process("G1 X210", PreprocessContext{FeedOverrideEnabled: true, FeedOverrideValue: 800})
	if out != "G1 X210" {
		t.Fatalf("expected line unchanged when no F word present, got %q", out)
	}
}
