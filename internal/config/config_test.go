package config

import (
	"os"
	"testing"
	"time"
)

func TestDefaultEngineUsesEnvOverrides(t *testing.T) {
	testEnvVars := map[string]string{
		"KOSMOKOPY_BUFFER_SIZE_KB":      "128",
		"KOSMOKOPY_CONTROL_PERSIST_SEC": "90",
		"KOSMOKOPY_KILL_GRACE_SEC":      "10",
		"KOSMOKOPY_TMPDIR":              "/tmp/kosmokopy-test",
		"KOSMOKOPY_SSH_TIMEOUT_SEC":     "30",
	}
	for key, value := range testEnvVars {
		os.Setenv(key, value)
		defer os.Unsetenv(key)
	}

	e := Default()

	if e.BufferSize != 128*1024 {
		t.Errorf("BufferSize = %d, want %d", e.BufferSize, 128*1024)
	}
	if e.ControlPersistSec != 90 {
		t.Errorf("ControlPersistSec = %d, want 90", e.ControlPersistSec)
	}
	if e.KillGraceSec != 10 {
		t.Errorf("KillGraceSec = %d, want 10", e.KillGraceSec)
	}
	if e.TempDir != "/tmp/kosmokopy-test" {
		t.Errorf("TempDir = %q, want %q", e.TempDir, "/tmp/kosmokopy-test")
	}
	if e.SSHTimeoutSec != 30 {
		t.Errorf("SSHTimeoutSec = %d, want 30", e.SSHTimeoutSec)
	}

	if got, want := e.ControlPersist(), 90*time.Second; got != want {
		t.Errorf("ControlPersist() = %v, want %v", got, want)
	}
	if got, want := e.KillGrace(), 10*time.Second; got != want {
		t.Errorf("KillGrace() = %v, want %v", got, want)
	}
}

func TestDefaultEngineFallsBackWithoutEnv(t *testing.T) {
	for _, key := range []string{
		"KOSMOKOPY_BUFFER_SIZE_KB",
		"KOSMOKOPY_CONTROL_PERSIST_SEC",
		"KOSMOKOPY_KILL_GRACE_SEC",
		"KOSMOKOPY_SSH_TIMEOUT_SEC",
	} {
		os.Unsetenv(key)
	}

	e := Default()

	if e.BufferSize != 64*1024 {
		t.Errorf("BufferSize = %d, want default %d", e.BufferSize, 64*1024)
	}
	if e.ControlPersistSec != 60 {
		t.Errorf("ControlPersistSec = %d, want default 60", e.ControlPersistSec)
	}
	if e.KillGraceSec != 5 {
		t.Errorf("KillGraceSec = %d, want default 5", e.KillGraceSec)
	}
}

func TestLoadSSHConfig(t *testing.T) {
	testEnvVars := map[string]string{
		"KOSMOKOPY_SSH_USER":            "deploy",
		"KOSMOKOPY_SSH_PORT":            "2222",
		"KOSMOKOPY_SSH_STRICT_HOST_KEY": "true",
		"KOSMOKOPY_SSH_KNOWN_HOSTS":     "/home/deploy/.ssh/known_hosts",
	}
	for key, value := range testEnvVars {
		os.Setenv(key, value)
		defer os.Unsetenv(key)
	}

	cfg := LoadSSHConfig()

	if cfg.User != "deploy" {
		t.Errorf("User = %q, want %q", cfg.User, "deploy")
	}
	if cfg.Port != "2222" {
		t.Errorf("Port = %q, want %q", cfg.Port, "2222")
	}
	if !cfg.StrictHostKeyCheck {
		t.Error("StrictHostKeyCheck = false, want true")
	}
	if cfg.KnownHostsFile != "/home/deploy/.ssh/known_hosts" {
		t.Errorf("KnownHostsFile = %q, want %q", cfg.KnownHostsFile, "/home/deploy/.ssh/known_hosts")
	}
}

func TestLoadSSHConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"KOSMOKOPY_SSH_USER",
		"KOSMOKOPY_SSH_PORT",
		"KOSMOKOPY_SSH_STRICT_HOST_KEY",
		"KOSMOKOPY_SSH_KNOWN_HOSTS",
	} {
		os.Unsetenv(key)
	}

	cfg := LoadSSHConfig()

	if cfg.Port != "22" {
		t.Errorf("Port = %q, want default %q", cfg.Port, "22")
	}
	if cfg.StrictHostKeyCheck {
		t.Error("StrictHostKeyCheck = true, want default false")
	}
}
