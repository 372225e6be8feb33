package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	fp := filepath.Join(dir, "config.json")
	if err := os.WriteFile(fp, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return fp
}

func TestInitFull(t *testing.T) {
	fp := writeConfig(t, `{
		"listen": {"tcp": {"port": 31337}, "udp": {"port": 31337}},
		"pool": {"max": 50},
		"db": {"driver": "sqlite3", "dsn": "./var/dmtp.db"},
		"log": {"level": "debug"}
	}`)

	if err := Init(fp, ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if Keys.Listen.TCP.Port != 31337 {
		t.Errorf("wrong tcp port\ngot: %d\nwant: 31337", Keys.Listen.TCP.Port)
	}
	if Keys.Pool.Max != 50 {
		t.Errorf("wrong pool.max\ngot: %d\nwant: 50", Keys.Pool.Max)
	}
	if Keys.DB.Driver != "sqlite3" {
		t.Errorf("wrong db.driver\ngot: %s\nwant: sqlite3", Keys.DB.Driver)
	}
}

func TestInitMissingFileUsesDefaults(t *testing.T) {
	if err := Init(filepath.Join(t.TempDir(), "missing.json"), ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if Keys.Pool.Max != Default().Pool.Max {
		t.Errorf("expected default pool.max, got %d", Keys.Pool.Max)
	}
}

func TestInitRejectsBadDriver(t *testing.T) {
	fp := writeConfig(t, `{"db": {"driver": "postgres"}}`)
	if err := Init(fp, ""); err == nil {
		t.Fatal("expected validation error for unsupported db.driver")
	}
}

func TestInitLoadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("DMTP_TEST_VAR=present\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	fp := writeConfig(t, `{}`)

	if err := Init(fp, envFile); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if os.Getenv("DMTP_TEST_VAR") != "present" {
		t.Errorf("expected .env overlay to set DMTP_TEST_VAR")
	}
}
