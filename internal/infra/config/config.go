package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Agent   AgentConfig   `yaml:"agent"`
	LLM     LLMConfig     `yaml:"llm"`
	GitHub  GitHubConfig  `yaml:"github"`
	Store   StoreConfig   `yaml:"store"`
	Logger  LoggerConfig  `yaml:"logger"`
	Tracer  TracerConfig  `yaml:"tracer"`
	Gateway GatewayConfig `yaml:"gateway"`
}

// AgentConfig holds turn dispatcher settings.
type AgentConfig struct {
	// SystemPrompt replaces the built-in prompt when non-empty.
	SystemPrompt   string        `yaml:"system_prompt,omitempty"`
	TurnTimeout    time.Duration `yaml:"turn_timeout"`
	MaxCorpusBytes int64         `yaml:"max_corpus_bytes"` // 0 = unlimited
}

// LLMConfig holds settings for the language model provider.
type LLMConfig struct {
	Provider       string               `yaml:"provider"`
	APIKey         string               `yaml:"api_key"`
	Model          string               `yaml:"model"`
	BaseURL        string               `yaml:"base_url,omitempty"`
	ConnTimeout    time.Duration        `yaml:"conn_timeout"`
	RespTimeout    time.Duration        `yaml:"resp_timeout"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker settings for the LLM provider.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// GitHubConfig holds repository provider settings. Token and UserID identify
// the local user for the CLI front ends.
type GitHubConfig struct {
	Token             string        `yaml:"token"`
	UserID            string        `yaml:"user_id"`
	BaseURL           string        `yaml:"base_url,omitempty"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	ListCacheTTL      time.Duration `yaml:"list_cache_ttl"`
	PerPage           int           `yaml:"per_page"`
}

// StoreConfig selects the chat persistence backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "memory"
	Path   string `yaml:"path"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// GatewayConfig holds the WebSocket gateway settings.
type GatewayConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Addr      string          `yaml:"addr"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// AuthConfig holds gateway authentication settings.
type AuthConfig struct {
	Tokens []TokenConfig `yaml:"tokens,omitempty"`
}

// TokenConfig maps a gateway bearer token to a user and their GitHub token.
type TokenConfig struct {
	Token       string `yaml:"token"`
	Name        string `yaml:"name"`
	UserID      string `yaml:"user_id"`
	GitHubToken string `yaml:"github_token"`
}

// RateLimitConfig holds per-IP request limits for the gateway.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// defaultDataDir returns the persistent data directory under $HOME/.repochat/data.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".repochat", "data")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			TurnTimeout: 5 * time.Minute,
		},
		LLM: LLMConfig{
			Provider:    "gemini",
			Model:       "gemini-1.5-pro",
			ConnTimeout: 10 * time.Second,
			RespTimeout: 120 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		GitHub: GitHubConfig{
			RequestsPerSecond: 10,
			Burst:             20,
			ListCacheTTL:      time.Minute,
			PerPage:           100,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   filepath.Join(defaultDataDir(), "chats.db"),
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "noop",
		},
		Gateway: GatewayConfig{
			Addr: "127.0.0.1:8780",
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 5,
				Burst:             10,
			},
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := validatePermissions(path); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("REPOCHAT_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps REPOCHAT_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REPOCHAT_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("REPOCHAT_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("REPOCHAT_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("REPOCHAT_GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}
	if v := os.Getenv("REPOCHAT_GITHUB_USER_ID"); v != "" {
		cfg.GitHub.UserID = v
	}
	if v := os.Getenv("REPOCHAT_GITHUB_BASE_URL"); v != "" {
		cfg.GitHub.BaseURL = v
	}
	if v := os.Getenv("REPOCHAT_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("REPOCHAT_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("REPOCHAT_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("REPOCHAT_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("REPOCHAT_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("REPOCHAT_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("REPOCHAT_GATEWAY_ENABLED"); v == "true" {
		cfg.Gateway.Enabled = true
	}
	if v := os.Getenv("REPOCHAT_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("REPOCHAT_AGENT_TURN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Agent.TurnTimeout = d
		}
	}
	if v := os.Getenv("REPOCHAT_AGENT_MAX_CORPUS_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Agent.MaxCorpusBytes = n
		}
	}
}

// decryptSecrets finds "enc:..." values in secret fields and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	fields := map[string]*string{
		"llm.api_key":  &cfg.LLM.APIKey,
		"github.token": &cfg.GitHub.Token,
	}
	for i := range cfg.Gateway.Auth.Tokens {
		tok := &cfg.Gateway.Auth.Tokens[i]
		fields[fmt.Sprintf("gateway token %s", tok.Name)] = &tok.Token
		fields[fmt.Sprintf("gateway token %s github_token", tok.Name)] = &tok.GitHubToken
	}

	for name, fp := range fields {
		if !strings.HasPrefix(*fp, "enc:") {
			continue
		}
		decrypted, err := DecryptValue(strings.TrimPrefix(*fp, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*fp = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	// Argon2id, 32-byte key.
	key := argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// validatePermissions rejects config files that are group or world writable.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	if mode := info.Mode().Perm(); mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
