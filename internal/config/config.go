package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds nerapp configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Model     ModelConfig     `yaml:"model"`
	UI        UIConfig        `yaml:"ui"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Addr                string        `yaml:"addr"` // HTTP listen address, e.g. ":8501"
	ReadHeaderTimeout   time.Duration `yaml:"read_header_timeout"`
	ReadTimeout         time.Duration `yaml:"read_timeout"`
	WriteTimeout        time.Duration `yaml:"write_timeout"`
	IdleTimeout         time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout     time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBodyBytes int64         `yaml:"max_request_body_bytes"`
	MaxTextBytes        int           `yaml:"max_text_bytes"`
	MaxInFlightRequests int           `yaml:"max_in_flight_requests"`
	RateLimitRPS        float64       `yaml:"rate_limit_rps"` // 0 disables rate limiting
	RateLimitBurst      int           `yaml:"rate_limit_burst"`
}

// ModelConfig selects the pretrained pipeline. Name is resolved to
// <models_dir>/<name>, which holds an ONNX token-classification export.
type ModelConfig struct {
	Name              string        `yaml:"name"`
	ModelsDir         string        `yaml:"models_dir"`
	SeqLen            int           `yaml:"seq_len"`
	PoolSize          int           `yaml:"pool_size"`
	IntraThreads      int           `yaml:"intra_threads"`
	InterThreads      int           `yaml:"inter_threads"`
	MinScore          float64       `yaml:"min_score"`
	InferenceTimeout  time.Duration `yaml:"inference_timeout"`
	RequireML         bool          `yaml:"require_ml"`
	AllowRuleFallback bool          `yaml:"allow_rule_fallback"`
	GazetteerPath     string        `yaml:"gazetteer_path"`
	ManifestPublicKey string        `yaml:"manifest_public_key"` // base64 ed25519, optional
}

type UIConfig struct {
	Title        string        `yaml:"title"`
	DefaultText  string        `yaml:"default_text"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	CacheEntries int           `yaml:"cache_entries"`
}

type LoggingConfig struct {
	TextPreview string `yaml:"text_preview"` // none | redacted | full
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"` // grpc | http
	Service  string `yaml:"service"`
}

const (
	DefaultModelName   = "en_core_web_sm"
	DefaultTitle       = "Name Entity Recognition App"
	DefaultText        = "Enter Text Here"
	defaultModelsDir   = "models"
	envModelsDir       = "NERAPP_MODELS_DIR"
	defaultServiceName = "nerapp"
)

// Load reads configuration from a YAML file.
// If the file doesn't exist, it returns a default config and no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := defaultConfig()
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)

	return &cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Model.AllowRuleFallback = true
	return cfg
}

func applyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.Addr == "" {
		s.Addr = ":8501"
	}
	if s.ReadHeaderTimeout == 0 {
		s.ReadHeaderTimeout = 5 * time.Second
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = 15 * time.Second
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = 30 * time.Second
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = 60 * time.Second
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 10 * time.Second
	}
	if s.MaxRequestBodyBytes == 0 {
		s.MaxRequestBodyBytes = 256 * 1024
	}
	if s.MaxTextBytes == 0 {
		s.MaxTextBytes = 64 * 1024
	}
	if s.MaxInFlightRequests == 0 {
		s.MaxInFlightRequests = 32
	}
	if s.RateLimitRPS > 0 && s.RateLimitBurst == 0 {
		s.RateLimitBurst = int(s.RateLimitRPS) + 1
	}

	m := &cfg.Model
	if m.Name == "" {
		m.Name = DefaultModelName
	}
	if m.ModelsDir == "" {
		m.ModelsDir = defaultModelsDir
	}
	if m.SeqLen == 0 {
		m.SeqLen = 256
	}
	if m.PoolSize == 0 {
		m.PoolSize = 1
	}
	if m.InferenceTimeout == 0 {
		m.InferenceTimeout = 5 * time.Second
	}

	if cfg.UI.Title == "" {
		cfg.UI.Title = DefaultTitle
	}
	if cfg.UI.DefaultText == "" {
		cfg.UI.DefaultText = DefaultText
	}
	if cfg.UI.CacheTTL == 0 {
		cfg.UI.CacheTTL = 10 * time.Minute
	}
	if cfg.UI.CacheEntries == 0 {
		cfg.UI.CacheEntries = 256
	}

	if cfg.Logging.TextPreview == "" {
		cfg.Logging.TextPreview = "none"
	}

	if cfg.Telemetry.Service == "" {
		cfg.Telemetry.Service = defaultServiceName
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(envModelsDir)); v != "" {
		cfg.Model.ModelsDir = v
	}
}
