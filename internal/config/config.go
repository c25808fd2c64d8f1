package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultWSPort        = 6790
	DefaultHTTPPort      = 6791
	DefaultWorkerTimeout = 10 * time.Second
	DefaultSampleRate    = 16000
	DefaultMaxFPS        = 30
	DefaultSessionTTL    = 5 * time.Minute
	DefaultBridgeChannel = "modalhub:broadcast"
)

// Config is the top-level configuration for the modalhub server binary.
// It is constructed once in main and passed by reference into the hub and
// the connection processor — there is no process-wide config state.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Worker WorkerConfig `yaml:"worker"`
	Audio  AudioConfig  `yaml:"audio"`
	Video  VideoConfig  `yaml:"video"`
	Bridge BridgeConfig `yaml:"bridge"`
}

// ServerConfig holds the listen addresses for the two server surfaces.
type ServerConfig struct {
	// WSHost/WSPort is where the WebSocket hub accepts client connections
	// (default localhost:6790).
	WSHost string `yaml:"ws_host"`
	WSPort int    `yaml:"ws_port"`

	// HTTPHost/HTTPPort is where the HTTP collaborator (callback endpoint,
	// health check, metrics, session listing) listens (default localhost:6791).
	HTTPHost string `yaml:"http_host"`
	HTTPPort int    `yaml:"http_port"`

	// SessionTTL is how long a finished session remains visible in the
	// session listing after its connection closed. Default: 5m.
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	// Level is one of: debug | info | warn | error. Reloadable at runtime
	// via the config watcher.
	Level string `yaml:"level"`
}

// WorkerConfig selects and configures the per-connection worker. The type is
// resolved into a factory exactly once at startup.
type WorkerConfig struct {
	// Type is one of: echo | remote.
	Type string `yaml:"type"`

	// Modality is one of: audio | video. Selects the stream adapter bound
	// to each connection.
	Modality string `yaml:"modality"`

	// Endpoint is the inference backend URL for the remote worker.
	Endpoint string `yaml:"endpoint"`

	// Timeout bounds each backend call (connect + read). Default: 10s.
	Timeout time.Duration `yaml:"timeout"`

	// Auth configures how the remote worker authenticates to the backend.
	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig controls outbound authentication for the remote worker.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable holding the API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the header name the key is sent in. Defaults to "x-api-key".
	Header string `yaml:"header"`
}

// Key returns the API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// AudioConfig controls the audio stream adapter.
type AudioConfig struct {
	// DefaultRate is the sample rate assumed for legacy binary frames that
	// carry no rate metadata. Default: 16000 Hz.
	DefaultRate int `yaml:"default_rate"`
}

// VideoConfig controls the video stream adapter.
type VideoConfig struct {
	// MaxFPS caps inbound frames per connection; frames above the cap are
	// dropped. Zero disables the cap. Default: 30.
	MaxFPS int `yaml:"max_fps"`
}

// BridgeConfig controls the optional Redis broadcast bridge. When enabled,
// broadcasts published on the channel by any instance are delivered to this
// instance's connections as well.
type BridgeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}

// Load reads and parses the config file at path. Missing fields are filled
// with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			WSHost:     "localhost",
			WSPort:     DefaultWSPort,
			HTTPHost:   "localhost",
			HTTPPort:   DefaultHTTPPort,
			SessionTTL: DefaultSessionTTL,
		},
		Log: LogConfig{Level: "info"},
		Worker: WorkerConfig{
			Type:     "echo",
			Modality: "audio",
			Timeout:  DefaultWorkerTimeout,
		},
		Audio: AudioConfig{DefaultRate: DefaultSampleRate},
		Video: VideoConfig{MaxFPS: DefaultMaxFPS},
		Bridge: BridgeConfig{
			Channel: DefaultBridgeChannel,
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.WSPort <= 0 || cfg.Server.WSPort > 65535 {
		return fmt.Errorf("server.ws_port %d is out of range [1, 65535]", cfg.Server.WSPort)
	}
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q unknown: want debug|info|warn|error", cfg.Log.Level)
	}
	switch cfg.Worker.Type {
	case "echo", "remote":
	default:
		return fmt.Errorf("worker.type %q unknown: want echo|remote", cfg.Worker.Type)
	}
	switch cfg.Worker.Modality {
	case "audio", "video":
	default:
		return fmt.Errorf("worker.modality %q unknown: want audio|video", cfg.Worker.Modality)
	}
	if cfg.Worker.Type == "remote" && cfg.Worker.Endpoint == "" {
		return fmt.Errorf("worker.endpoint is required when worker.type is remote")
	}
	switch cfg.Worker.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("worker.auth.mode %q unknown: want apikey|none", cfg.Worker.Auth.Mode)
	}
	if cfg.Audio.DefaultRate <= 0 {
		return fmt.Errorf("audio.default_rate must be positive")
	}
	if cfg.Video.MaxFPS < 0 {
		return fmt.Errorf("video.max_fps must not be negative")
	}
	if cfg.Bridge.Enabled && cfg.Bridge.Addr == "" {
		return fmt.Errorf("bridge.addr is required when bridge.enabled is true")
	}
	return nil
}
