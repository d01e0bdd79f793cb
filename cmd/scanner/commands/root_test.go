package commands

import (
	"errors"
	"fmt"
	"testing"

	"github.com/tibiamarket/tracker/internal/models"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"success", nil, 0},
		{"safety abort", fmt.Errorf("scan item 12: %w", models.ErrSafetyAbort), 2},
		{"market unavailable", fmt.Errorf("open market: %w", models.ErrMarketUnavailable), 1},
		{"other failure", errors.New("config missing"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.expected {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.expected)
			}
		})
	}
}

func TestRunRecoveredSwallowsPanic(t *testing.T) {
	err := runRecovered(func() error { panic("boom") })
	if err != nil {
		t.Errorf("runRecovered() = %v, want nil after panic", err)
	}

	want := errors.New("fatal")
	if err := runRecovered(func() error { return want }); !errors.Is(err, want) {
		t.Errorf("runRecovered() = %v, want %v", err, want)
	}
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"scan", "fetch-items", "schedule"} {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered: %v", name, err)
		}
	}
}
