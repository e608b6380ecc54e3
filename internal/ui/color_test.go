package ui

import (
	"strings"
	"testing"
)

func TestFieldKeepsText(t *testing.T) {
	got := Field("  Run: ", "abc123")
	if !strings.Contains(got, "Run:") || !strings.Contains(got, "abc123") {
		t.Errorf("Field = %q, want label and value", got)
	}
}

func TestJobStateDiffersByState(t *testing.T) {
	running := JobState(true, "Backing up...")
	idle := JobState(false, "Backing up...")
	if !strings.Contains(running, "Backing up...") || !strings.Contains(idle, "Backing up...") {
		t.Fatalf("JobState dropped the text: %q / %q", running, idle)
	}
	if running == idle {
		t.Errorf("running and idle render the same: %q", running)
	}
}
