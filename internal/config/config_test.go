package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// loadFromString writes yaml to a temp file and loads it, failing the test
// on error.
func loadFromString(t *testing.T, yaml string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, yaml)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func loadStringErr(t *testing.T, yaml string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}

func TestLoad_Valid(t *testing.T) {
	yaml := `
server:
  ws_host: "0.0.0.0"
  ws_port: 7000
  http_port: 7001
log:
  level: debug
worker:
  type: remote
  modality: audio
  endpoint: "http://localhost:9000/infer"
  timeout: 3s
  auth:
    mode: apikey
    key_env: MODALHUB_API_KEY
audio:
  default_rate: 24000
`
	cfg := loadFromString(t, yaml)

	if cfg.Server.WSHost != "0.0.0.0" {
		t.Errorf("ws_host: got %q", cfg.Server.WSHost)
	}
	if cfg.Server.WSPort != 7000 {
		t.Errorf("ws_port: got %d", cfg.Server.WSPort)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level: got %q", cfg.Log.Level)
	}
	if cfg.Worker.Type != "remote" {
		t.Errorf("worker type: got %q", cfg.Worker.Type)
	}
	if cfg.Worker.Endpoint != "http://localhost:9000/infer" {
		t.Errorf("worker endpoint: got %q", cfg.Worker.Endpoint)
	}
	if cfg.Worker.Timeout != 3*time.Second {
		t.Errorf("worker timeout: got %v", cfg.Worker.Timeout)
	}
	if cfg.Audio.DefaultRate != 24000 {
		t.Errorf("default_rate: got %d", cfg.Audio.DefaultRate)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, `{}`)

	if cfg.Server.WSPort != DefaultWSPort {
		t.Errorf("default ws_port: got %d, want %d", cfg.Server.WSPort, DefaultWSPort)
	}
	if cfg.Server.HTTPPort != DefaultHTTPPort {
		t.Errorf("default http_port: got %d, want %d", cfg.Server.HTTPPort, DefaultHTTPPort)
	}
	if cfg.Worker.Type != "echo" {
		t.Errorf("default worker type: got %q, want echo", cfg.Worker.Type)
	}
	if cfg.Worker.Modality != "audio" {
		t.Errorf("default modality: got %q, want audio", cfg.Worker.Modality)
	}
	if cfg.Worker.Timeout != DefaultWorkerTimeout {
		t.Errorf("default worker timeout: got %v", cfg.Worker.Timeout)
	}
	if cfg.Audio.DefaultRate != DefaultSampleRate {
		t.Errorf("default sample rate: got %d, want %d", cfg.Audio.DefaultRate, DefaultSampleRate)
	}
	if cfg.Video.MaxFPS != DefaultMaxFPS {
		t.Errorf("default max_fps: got %d, want %d", cfg.Video.MaxFPS, DefaultMaxFPS)
	}
	if cfg.Bridge.Channel != DefaultBridgeChannel {
		t.Errorf("default bridge channel: got %q", cfg.Bridge.Channel)
	}
}

func TestLoad_UnknownWorkerType(t *testing.T) {
	yaml := `
worker:
  type: quantum
`
	if _, err := loadStringErr(t, yaml); err == nil {
		t.Fatal("expected error for unknown worker type, got nil")
	}
}

func TestLoad_RemoteRequiresEndpoint(t *testing.T) {
	yaml := `
worker:
  type: remote
`
	if _, err := loadStringErr(t, yaml); err == nil {
		t.Fatal("expected error for remote worker without endpoint, got nil")
	}
}

func TestLoad_UnknownLogLevel(t *testing.T) {
	yaml := `
log:
  level: loud
`
	if _, err := loadStringErr(t, yaml); err == nil {
		t.Fatal("expected error for unknown log level, got nil")
	}
}

func TestLoad_BridgeRequiresAddr(t *testing.T) {
	yaml := `
bridge:
  enabled: true
`
	if _, err := loadStringErr(t, yaml); err == nil {
		t.Fatal("expected error for enabled bridge without addr, got nil")
	}
}

func TestLoad_PortOutOfRange(t *testing.T) {
	yaml := `
server:
  ws_port: 70000
`
	if _, err := loadStringErr(t, yaml); err == nil {
		t.Fatal("expected error for out-of-range port, got nil")
	}
}

func TestAuthConfig_Key(t *testing.T) {
	t.Setenv("TEST_MODALHUB_KEY", "supersecret")
	a := AuthConfig{Mode: "apikey", KeyEnv: "TEST_MODALHUB_KEY"}
	if got := a.Key(); got != "supersecret" {
		t.Errorf("Key: got %q", got)
	}
	if got := (AuthConfig{}).Key(); got != "" {
		t.Errorf("Key without env: got %q, want empty", got)
	}
}

func TestAuthConfig_EffectiveHeader(t *testing.T) {
	if got := (AuthConfig{}).EffectiveHeader(); got != "x-api-key" {
		t.Errorf("default header: got %q", got)
	}
	if got := (AuthConfig{Header: "x-token"}).EffectiveHeader(); got != "x-token" {
		t.Errorf("explicit header: got %q", got)
	}
}

// startWatch runs Watch against a temp config file and returns the file
// path plus a channel carrying each reloaded Config.
func startWatch(t *testing.T, initial string) (string, <-chan *Config) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(initial), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	got := make(chan *Config, 4)
	go func() {
		if err := Watch(ctx, path, func(cfg *Config) { got <- cfg }); err != nil {
			t.Errorf("Watch: %v", err)
		}
	}()
	// Give the watcher a moment to attach before the test rewrites the file.
	time.Sleep(100 * time.Millisecond)
	return path, got
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path, got := startWatch(t, "log:\n  level: info\n")

	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-got:
		if cfg.Log.Level != "debug" {
			t.Errorf("reloaded level: got %q, want debug", cfg.Log.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed after write")
	}
}

func TestWatch_KeepsConfigOnBadReload(t *testing.T) {
	path, got := startWatch(t, "log:\n  level: info\n")

	// An invalid level fails validation; onChange must not fire for it.
	if err := os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	// A later valid write still gets through.
	time.Sleep(300 * time.Millisecond)
	if err := os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-got:
		if cfg.Log.Level != "warn" {
			t.Errorf("first delivered config has level %q, want warn (invalid reload must be skipped)", cfg.Log.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed after valid write")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"unknown": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q): got %v, want %v", in, got, want)
		}
	}
}
