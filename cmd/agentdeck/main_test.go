package main

import (
	"testing"

	"github.com/f9-o/agentdeck/internal/cli/commands"
)

func TestBuildMetadataDefaults(t *testing.T) {
	if version != "dev" {
		t.Errorf("version = %q, want dev for an unstamped build", version)
	}
	info := commands.CurrentVersion()
	if info.GoVersion == "" || info.Platform == "" {
		t.Errorf("incomplete version info: %+v", info)
	}
}
