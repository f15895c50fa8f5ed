// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Barrier Contributors

package xdg

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigDir_EnvVar(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	got, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error = %v", err)
	}
	want := "/custom/config/barrier"
	if got != want {
		t.Errorf("ConfigDir() = %q, want %q", got, want)
	}
}

func TestConfigDir_Default(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/home/testuser")
	got, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error = %v", err)
	}
	want := "/home/testuser/.config/barrier"
	if got != want {
		t.Errorf("ConfigDir() = %q, want %q", got, want)
	}
}

func TestStateDir_NoHome(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", "")
	if _, err := StateDir(); err == nil {
		t.Fatal("StateDir() expected error without HOME")
	}
}

func TestCredentialsFile(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/custom/state")
	got, err := CredentialsFile()
	if err != nil {
		t.Fatalf("CredentialsFile() error = %v", err)
	}
	want := "/custom/state/barrier/credentials.yaml"
	if got != want {
		t.Errorf("CredentialsFile() = %q, want %q", got, want)
	}
}

func TestCredentialsDB_Default(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", "/home/testuser")
	got, err := CredentialsDB()
	if err != nil {
		t.Fatalf("CredentialsDB() error = %v", err)
	}
	want := "/home/testuser/.local/share/barrier/credentials.db"
	if got != want {
		t.Errorf("CredentialsDB() = %q, want %q", got, want)
	}
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	got, err := ConfigFile()
	if err != nil {
		t.Fatalf("ConfigFile() error = %v", err)
	}
	if got != "/custom/config/barrier/config.yaml" {
		t.Errorf("ConfigFile() = %q", got)
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o700 {
		t.Errorf("perm = %o, want 700", perm)
	}
}
