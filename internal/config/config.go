// Package config loads and validates the freeflow Configuration record.
//
// Per spec.md §1, the configuration-file parser is an external
// collaborator, out of the pipeline's hard-part scope — only its
// produced record (this package's Configuration type) and the text
// format in spec.md §6.3 are binding. This package implements that flat
// "key = value" format, not the teacher's YAML: a structured-document
// library like yaml.v3 doesn't fit a line-oriented key=value grammar,
// so this loader is intentionally hand-rolled. See DESIGN.md.
package config

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/Christopher-Costa/freeflow/internal/hecsession"
)

const (
	// MinWorkers and MaxWorkers bound the "threads" configuration key.
	MinWorkers = 1
	MaxWorkers = 64
)

// Configuration is the shared, read-only record every pipeline
// component reads from. It is built once at startup and never mutated.
type Configuration struct {
	BindAddr   string
	BindPort   int
	Threads    int
	QueueSize  int
	SourceType string
	Endpoints  []hecsession.Endpoint
	TLSEnabled bool
	LogFile    string
	Debug      bool
}

// Load reads, parses, and validates the configuration file at path.
// Any validation failure is a fatal ConfigError: the caller is expected
// to print it and exit nonzero without ever starting the pipeline.
//
// Before parsing, Load optionally overlays a sibling ".env" file (same
// directory as the config file) via godotenv, so operators can inject
// secrets such as FREEFLOW_HEC_TOKEN without committing them to the
// config file. A hec_token entry whose value is "$NAME" is resolved
// against the environment (post-overlay) instead of taken literally.
func Load(path string) (*Configuration, error) {
	if path == "" {
		return nil, fmt.Errorf("config: file path is required")
	}

	envPath := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("config: loading %s: %w", envPath, err)
		}
	}

	raw, err := parseFile(path)
	if err != nil {
		return nil, err
	}

	return build(raw)
}

// rawConfig holds the parsed-but-unvalidated key/value pairs.
type rawConfig struct {
	bindAddr   string
	bindPort   string
	threads    string
	queueSize  string
	sourceType string
	hecServer  string
	hecToken   string
	logFile    string
	sslEnabled string
	debug      string
}

func parseFile(path string) (rawConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return rawConfig{}, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	var raw rawConfig
	scanner := bufio.NewScanner(f)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return rawConfig{}, fmt.Errorf("config: %s:%d: expected key=value, got %q", path, lineNo, line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "bind_addr":
			raw.bindAddr = value
		case "bind_port":
			raw.bindPort = value
		case "threads":
			raw.threads = value
		case "queue_size":
			raw.queueSize = value
		case "sourcetype":
			raw.sourceType = value
		case "hec_server":
			raw.hecServer = value
		case "hec_token":
			raw.hecToken = value
		case "log_file":
			raw.logFile = value
		case "ssl_enabled":
			raw.sslEnabled = value
		case "debug":
			raw.debug = value
		default:
			return rawConfig{}, fmt.Errorf("config: %s:%d: unrecognized key %q", path, lineNo, key)
		}
	}
	if err := scanner.Err(); err != nil {
		return rawConfig{}, fmt.Errorf("config: %s: %w", path, err)
	}

	return raw, nil
}

func build(raw rawConfig) (*Configuration, error) {
	cfg := &Configuration{}

	if net.ParseIP(raw.bindAddr) == nil || strings.Contains(raw.bindAddr, ":") {
		return nil, fmt.Errorf("config: bind_addr %q is not a valid IPv4 address", raw.bindAddr)
	}
	cfg.BindAddr = raw.bindAddr

	port, err := strconv.Atoi(raw.bindPort)
	if err != nil || port < 1 || port > 65535 {
		return nil, fmt.Errorf("config: bind_port %q must be 1..65535", raw.bindPort)
	}
	cfg.BindPort = port

	threads, err := strconv.Atoi(raw.threads)
	if err != nil || threads < MinWorkers || threads > MaxWorkers {
		return nil, fmt.Errorf("config: threads %q must be %d..%d", raw.threads, MinWorkers, MaxWorkers)
	}
	cfg.Threads = threads

	queueSize, err := strconv.Atoi(raw.queueSize)
	if err != nil || queueSize < 1 {
		return nil, fmt.Errorf("config: queue_size %q must be >= 1", raw.queueSize)
	}
	cfg.QueueSize = queueSize

	if raw.sourceType == "" {
		return nil, fmt.Errorf("config: sourcetype is required")
	}
	cfg.SourceType = raw.sourceType

	if raw.logFile == "" {
		return nil, fmt.Errorf("config: log_file is required")
	}
	cfg.LogFile = raw.logFile

	endpoints, err := buildEndpoints(raw.hecServer, raw.hecToken)
	if err != nil {
		return nil, err
	}
	cfg.Endpoints = endpoints

	if raw.sslEnabled != "" {
		v, err := strconv.Atoi(raw.sslEnabled)
		if err != nil {
			return nil, fmt.Errorf("config: ssl_enabled must be 0 or 1")
		}
		cfg.TLSEnabled = v != 0
	}

	if raw.debug != "" {
		v, err := strconv.Atoi(raw.debug)
		if err != nil {
			return nil, fmt.Errorf("config: debug must be 0 or 1")
		}
		cfg.Debug = v != 0
	}

	return cfg, nil
}

func buildEndpoints(hecServer, hecToken string) ([]hecsession.Endpoint, error) {
	if hecServer == "" {
		return nil, fmt.Errorf("config: hec_server is required")
	}

	servers := splitNonEmpty(hecServer)
	tokens := splitNonEmpty(hecToken)

	if len(tokens) > 0 && len(tokens) != len(servers) {
		return nil, fmt.Errorf("config: hec_server and hec_token lists must be the same length (%d vs %d)", len(servers), len(tokens))
	}

	endpoints := make([]hecsession.Endpoint, 0, len(servers))
	for i, s := range servers {
		host, portStr, err := net.SplitHostPort(s)
		if err != nil {
			return nil, fmt.Errorf("config: hec_server entry %q: %w", s, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("config: hec_server entry %q: port must be 1..65535", s)
		}

		token := ""
		if i < len(tokens) {
			token = resolveToken(tokens[i])
		}

		endpoints = append(endpoints, hecsession.Endpoint{Host: host, Port: port, Token: token})
	}

	if len(endpoints) == 0 {
		return nil, fmt.Errorf("config: at least one hec_server entry is required")
	}

	return endpoints, nil
}

// resolveToken honors the "$NAME" environment indirection described in
// the package doc comment; any other value, and a "$NAME" whose variable
// is not set, is taken literally.
func resolveToken(token string) string {
	if name, ok := strings.CutPrefix(token, "$"); ok {
		if v, found := os.LookupEnv(name); found {
			return v
		}
	}
	return token
}

// Template returns an annotated example configuration file in the
// key=value format this package parses, for the `freeflow template`
// subcommand.
func Template() string {
	return `# freeflow configuration file
# key = value, one per line; lines starting with # are comments.

# UDP listen address and port for incoming NetFlow v5 datagrams.
bind_addr = 0.0.0.0
bind_port = 2055

# Number of HEC-shipping worker goroutines (1..64). Each worker is
# permanently assigned to hec_server[index mod N].
threads = 4

# Packet Queue capacity, in items.
queue_size = 10000

# Splunk sourcetype tag copied into every emitted JSON event.
sourcetype = netflow:v5

# One or more HEC endpoints, ';'-separated, paired positionally with
# hec_token. host:port form; hostnames and IPv4 addresses both work.
hec_server = splunk.example.com:8088

# One token per hec_server entry, ';'-separated. A value of "$NAME"
# resolves against the environment instead of being taken literally.
hec_token = $FREEFLOW_HEC_TOKEN

# Path to the Logger Sink's output file.
log_file = /var/log/freeflow/freeflow.log

# Optional: wrap each HEC connection in TLS 1.2 client mode.
ssl_enabled = 0

# Optional: emit an extra DEBUG line per shipped packet.
debug = 0
`
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
