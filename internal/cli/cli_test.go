package cli

import (
	"testing"

	"github.com/CrispStrobe/filen-cli/internal/config"
)

func useTempHome(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
}

func runCommand(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestAllCommandsRegistered(t *testing.T) {
	rootCmd := NewRootCmd()
	AddCommands(rootCmd)

	want := []string{
		"login", "logout", "whoami",
		"ls", "mkdir", "mv", "cp", "rename", "trash", "delete-path",
		"list-trash", "restore-uuid", "restore-path",
		"resolve", "search", "find", "tree",
		"upload", "download", "download-path", "verify", "batches",
		"webdav-start", "webdav-stop", "webdav-status", "webdav-test",
		"webdav-mount", "webdav-config", "mount", "config",
	}
	registered := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		registered[cmd.Name()] = true
	}
	for _, name := range want {
		if !registered[name] {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestWebDAVConfigPersistsChanges(t *testing.T) {
	useTempHome(t)

	if err := runCommand(t, "webdav-config", "--port", "9443", "--protocol", "https"); err != nil {
		t.Fatalf("webdav-config failed: %v", err)
	}

	cfg, err := config.LoadWebDAVConfig()
	if err != nil {
		t.Fatalf("LoadWebDAVConfig failed: %v", err)
	}
	if cfg.Port != 9443 || cfg.Protocol != "https" {
		t.Errorf("config = %d/%s, want 9443/https", cfg.Port, cfg.Protocol)
	}
	// Untouched fields keep their defaults.
	if cfg.Username != config.DefaultWebDAVUser {
		t.Errorf("username = %q, changed unexpectedly", cfg.Username)
	}
}

func TestWebDAVConfigRejectsBadProtocol(t *testing.T) {
	useTempHome(t)
	if err := runCommand(t, "webdav-config", "--protocol", "ftp"); err == nil {
		t.Error("bad protocol accepted")
	}
}

func TestConfigPersistsSettings(t *testing.T) {
	useTempHome(t)

	if err := runCommand(t, "config", "--log-level", "debug"); err != nil {
		t.Fatalf("config failed: %v", err)
	}
	settings, err := config.LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if settings.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug", settings.LogLevel)
	}
	if settings.GatewayURL != config.DefaultGatewayURL {
		t.Errorf("gateway = %q, changed unexpectedly", settings.GatewayURL)
	}
}

func TestCommandsRequireLogin(t *testing.T) {
	useTempHome(t)
	if err := runCommand(t, "ls", "/"); err == nil {
		t.Error("ls without a session succeeded")
	}
}
