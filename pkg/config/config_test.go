package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"minic/pkg/limits"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDefaultsWithoutFiles(t *testing.T) {
	c, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if c.Limits != limits.Default() {
		t.Errorf("expected default limits, got %+v", c.Limits)
	}
	if d, _ := c.TokenDuration(); d != time.Hour {
		t.Errorf("expected 1h token ttl, got %s", d)
	}
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, FileName, `
[limits]
code = 512
stack = 64

[device]
fs_root = "data"
virtual_time = true

[console]
listen = ":9000"
token_ttl = "15m"
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if c.Limits.Code != 512 || c.Limits.Stack != 64 {
		t.Errorf("limits not decoded: %+v", c.Limits)
	}
	if c.Limits.Frames != limits.Default().Frames {
		t.Errorf("unset limit lost its default: %d", c.Limits.Frames)
	}
	if c.Device.FSRoot != filepath.Join(c.Dir, "data") || !c.Device.VirtualTime {
		t.Errorf("device not decoded: %+v", c.Device)
	}
	if c.Console.Listen != ":9000" {
		t.Errorf("console not decoded: %+v", c.Console)
	}
	if d, _ := c.TokenDuration(); d != 15*time.Minute {
		t.Errorf("wrong token ttl %s", d)
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, FileName, "[console]\nlisten = \":9000\"\n")
	writeFile(t, dir, EnvFile, "MINIC_CONSOLE_LISTEN=:7000\nMINIC_CONSOLE_SECRET=s3cret\nMINIC_LOG_VERBOSITY=2\n")

	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if c.Console.Listen != ":7000" {
		t.Errorf(".env did not override the file: %q", c.Console.Listen)
	}
	if c.Console.Secret != "s3cret" {
		t.Errorf("secret not read: %q", c.Console.Secret)
	}
	if c.Log.Verbosity != 2 {
		t.Errorf("verbosity not read: %d", c.Log.Verbosity)
	}

	t.Setenv("MINIC_CONSOLE_LISTEN", ":6000")
	c, err = Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if c.Console.Listen != ":6000" {
		t.Errorf("process environment did not win: %q", c.Console.Listen)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		toml string
		env  string
	}{
		{"bad toml", "[limits\n", ""},
		{"non-positive limit", "[limits]\ncode = 0\n", ""},
		{"array beyond value capacity", "[limits]\narray = 17\n", ""},
		{"bad ttl", "[console]\ntoken_ttl = \"soon\"\n", ""},
		{"bad verbosity", "", "MINIC_LOG_VERBOSITY=loud\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.toml != "" {
				writeFile(t, dir, FileName, tt.toml)
			}
			if tt.env != "" {
				writeFile(t, dir, EnvFile, tt.env)
			}
			if _, err := Load(dir); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestCheckSource(t *testing.T) {
	if err := CheckSource([]byte(strings.Repeat("x", MaxSourceSize))); err != nil {
		t.Errorf("source at the limit rejected: %s", err)
	}
	err := CheckSource([]byte(strings.Repeat("x", MaxSourceSize+1)))
	if !errors.Is(err, ErrSourceTooLarge) {
		t.Errorf("expected ErrSourceTooLarge, got %v", err)
	}
}
