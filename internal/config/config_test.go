package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir string, body string) string {
	t.Helper()
	path := filepath.Join(dir, "freeflow.conf")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return path
}

const validBody = `
# comment line
bind_addr = 0.0.0.0
bind_port = 2055
threads = 4
queue_size = 10000
sourcetype = netflow:v5
hec_server = splunk1.example.com:8088;splunk2.example.com:8088
hec_token = token-one;token-two
log_file = /tmp/freeflow.log
ssl_enabled = 1
debug = 0
`

func TestLoadValid(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, validBody)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.BindAddr != "0.0.0.0" || cfg.BindPort != 2055 {
		t.Errorf("unexpected bind: %s:%d", cfg.BindAddr, cfg.BindPort)
	}
	if cfg.Threads != 4 {
		t.Errorf("threads = %d, want 4", cfg.Threads)
	}
	if cfg.QueueSize != 10000 {
		t.Errorf("queue_size = %d, want 10000", cfg.QueueSize)
	}
	if cfg.SourceType != "netflow:v5" {
		t.Errorf("sourcetype = %q", cfg.SourceType)
	}
	if !cfg.TLSEnabled {
		t.Error("expected TLS enabled")
	}
	if len(cfg.Endpoints) != 2 {
		t.Fatalf("expected 2 endpoints, got %d", len(cfg.Endpoints))
	}
	if cfg.Endpoints[0].Host != "splunk1.example.com" || cfg.Endpoints[0].Port != 8088 || cfg.Endpoints[0].Token != "token-one" {
		t.Errorf("unexpected endpoint[0]: %+v", cfg.Endpoints[0])
	}
	if cfg.Endpoints[1].Token != "token-two" {
		t.Errorf("unexpected endpoint[1]: %+v", cfg.Endpoints[1])
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.conf")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestLoadMismatchedEndpointLists(t *testing.T) {
	dir := t.TempDir()
	body := `
bind_addr = 0.0.0.0
bind_port = 2055
threads = 1
queue_size = 100
sourcetype = netflow:v5
hec_server = a.example.com:8088;b.example.com:8088
hec_token = only-one-token
log_file = /tmp/freeflow.log
`
	path := writeConfig(t, dir, body)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for mismatched hec_server/hec_token lengths")
	}
}

func TestLoadInvalidThreads(t *testing.T) {
	dir := t.TempDir()
	body := `
bind_addr = 0.0.0.0
bind_port = 2055
threads = 65
queue_size = 100
sourcetype = netflow:v5
hec_server = a.example.com:8088
hec_token = tok
log_file = /tmp/freeflow.log
`
	path := writeConfig(t, dir, body)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for threads out of range")
	}
}

func TestLoadUnrecognizedKey(t *testing.T) {
	dir := t.TempDir()
	body := validBody + "\nbogus_key = 1\n"
	path := writeConfig(t, dir, body)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unrecognized key")
	}
}

func TestLoadTokenFromEnv(t *testing.T) {
	dir := t.TempDir()
	body := `
bind_addr = 0.0.0.0
bind_port = 2055
threads = 1
queue_size = 100
sourcetype = netflow:v5
hec_server = a.example.com:8088
hec_token = $FREEFLOW_TEST_TOKEN
log_file = /tmp/freeflow.log
`
	path := writeConfig(t, dir, body)

	t.Setenv("FREEFLOW_TEST_TOKEN", "secret-from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Endpoints[0].Token != "secret-from-env" {
		t.Errorf("token = %q, want resolved from env", cfg.Endpoints[0].Token)
	}
}

func TestLoadDotEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("FREEFLOW_TEST_TOKEN2=from-dotenv\n"), 0600); err != nil {
		t.Fatalf("writing .env: %v", err)
	}

	body := `
bind_addr = 0.0.0.0
bind_port = 2055
threads = 1
queue_size = 100
sourcetype = netflow:v5
hec_server = a.example.com:8088
hec_token = $FREEFLOW_TEST_TOKEN2
log_file = /tmp/freeflow.log
`
	path := writeConfig(t, dir, body)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Endpoints[0].Token != "from-dotenv" {
		t.Errorf("token = %q, want from-dotenv", cfg.Endpoints[0].Token)
	}
}
