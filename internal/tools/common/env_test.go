package common

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadEnvFileKeepsExistingValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := strings.Join([]string{
		"# comment",
		"SHOOTER_TEST_A=plain",
		`export SHOOTER_TEST_B="quoted value"`,
		"SHOOTER_TEST_C='single'",
		"SHOOTER_TEST_KEEP=from-file",
		"not a pair",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("SHOOTER_TEST_KEEP", "from-env")
	for _, k := range []string{"SHOOTER_TEST_A", "SHOOTER_TEST_B", "SHOOTER_TEST_C"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	want := map[string]string{
		"SHOOTER_TEST_A":    "plain",
		"SHOOTER_TEST_B":    "quoted value",
		"SHOOTER_TEST_C":    "single",
		"SHOOTER_TEST_KEEP": "from-env",
	}
	for k, v := range want {
		if got := os.Getenv(k); got != v {
			t.Fatalf("%s: expected %q, got %q", k, v, got)
		}
	}
}

func TestLoadEnvFileMissingIsNotAnError(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("expected nil for missing file, got %v", err)
	}
	if err := LoadEnvFile(""); err != nil {
		t.Fatalf("expected nil for empty path, got %v", err)
	}
}

func TestWriteCIResult(t *testing.T) {
	var buf bytes.Buffer
	WriteCIResult(&buf, false, "migrate up", []string{"step"}, errors.New("db down"))
	out := buf.String()
	if !strings.Contains(out, `"ok": false`) || !strings.Contains(out, `"error": "db down"`) {
		t.Fatalf("unexpected ci output %s", out)
	}
}
