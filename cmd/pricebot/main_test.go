package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, int) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	code := execute(cmd)
	return out.String(), code
}

func TestVersionCommand(t *testing.T) {
	out, code := run(t, "version")
	if code != 0 || !strings.HasPrefix(out, "pricebot dev") {
		t.Fatalf("version = %q (exit %d)", out, code)
	}
}

func TestHelpListsCommands(t *testing.T) {
	out, code := run(t, "--help")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	for _, name := range []string{"serve", "migrate", "version", "--config"} {
		if !strings.Contains(out, name) {
			t.Fatalf("help missing %q:\n%s", name, out)
		}
	}
}

func TestMigrateRefusesMemoryStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "telegram:\n  token: \"1:x\"\nstorage:\n  driver: memory\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, code := run(t, "migrate", "--config", path)
	if code == 0 || !strings.Contains(out, "migrations need postgres") {
		t.Fatalf("migrate = %q (exit %d)", out, code)
	}
}

func TestMissingConfigFails(t *testing.T) {
	out, code := run(t, "migrate", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	if code == 0 || !strings.Contains(out, "failed to read config file") {
		t.Fatalf("migrate = %q (exit %d)", out, code)
	}
}
