package main

import (
	"bytes"
	"strings"
	"testing"
)

// TestNewRootCmd tests root command construction.
func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()

	if cmd.Use != "exitprobe" {
		t.Errorf("expected Use %q, got %q", "exitprobe", cmd.Use)
	}
	if !cmd.SilenceUsage {
		t.Error("expected SilenceUsage to be true")
	}
	if !cmd.SilenceErrors {
		t.Error("expected SilenceErrors to be true")
	}

	wantSubcommands := []string{"run", "check", "version"}
	for _, name := range wantSubcommands {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected subcommand %q to be registered", name)
		}
	}

	if cmd.PersistentFlags().Lookup("verbose") == nil {
		t.Error("expected persistent verbose flag")
	}
}

// TestRootCmdHelp tests that help output renders without error.
func TestRootCmdHelp(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "exitprobe") {
		t.Error("help output does not mention the command name")
	}
	if !strings.Contains(out.String(), "torsocks") {
		t.Error("help output does not describe the wrapper")
	}
}
