package userdir

import (
	"flag"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("userdir", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("USERDIR_PORT", "9000")

	fs := flag.NewFlagSet("userdir", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 9000 {
		t.Fatalf("expected env port 9000, got %d", cfg.Port)
	}

	fs = flag.NewFlagSet("userdir", flag.ContinueOnError)
	cfg, err = ParseConfig(fs, []string{"-port", "9100"})
	if err != nil {
		t.Fatalf("parse config with flags: %v", err)
	}
	if cfg.Port != 9100 {
		t.Fatalf("expected flag port 9100, got %d", cfg.Port)
	}
}
