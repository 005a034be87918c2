// Package config loads application configuration from an optional YAML file
// and MERGEBRIDGE_ environment variables.
package config

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Defaults applied when neither the file nor the environment sets a value.
const (
	DefaultListenAddr       = "127.0.0.1:8080"
	DefaultDBPath           = "mergebridge.db"
	DefaultFetchConcurrency = 8
	DefaultSessionTTL       = 30 * time.Minute
	DefaultLogLevel         = "info"

	secretKeyBytes = 32
)

// Config holds the resolved application configuration.
type Config struct {
	ListenAddr string
	DBPath     string
	// SecretKey is the AES-256 key for the secret store. Nil disables the
	// store; the env GitHub token is then the only credential.
	SecretKey   []byte
	GitHubToken string

	JiraBaseURL string
	JiraEmail   string
	JiraToken   string

	WebhookSecret    string
	RepoInclude      []string
	FetchConcurrency int
	SessionTTL       time.Duration

	LogLevel string
	LogFile  string
}

// HasJira reports whether issue tracker credentials were supplied.
func (c *Config) HasJira() bool {
	return c.JiraBaseURL != "" && c.JiraToken != ""
}

// fileConfig mirrors Config in the YAML file. Durations and the key stay
// strings until validated.
type fileConfig struct {
	ListenAddr       string   `yaml:"listen_addr"`
	DBPath           string   `yaml:"db_path"`
	SecretKey        string   `yaml:"secret_key"`
	GitHubToken      string   `yaml:"github_token"`
	JiraBaseURL      string   `yaml:"jira_base_url"`
	JiraEmail        string   `yaml:"jira_email"`
	JiraToken        string   `yaml:"jira_token"`
	WebhookSecret    string   `yaml:"webhook_secret"`
	RepoInclude      []string `yaml:"repo_include"`
	FetchConcurrency int      `yaml:"fetch_concurrency"`
	SessionTTL       string   `yaml:"session_ttl"`
	LogLevel         string   `yaml:"log_level"`
	LogFile          string   `yaml:"log_file"`
}

// Load resolves configuration in four steps: the YAML file named by
// MERGEBRIDGE_CONFIG (if any), MERGEBRIDGE_* environment overrides, defaults
// for anything still unset, then validation.
//
// Every credential is optional. Without a GitHub token the server starts and
// answers auth_missing until one is stored; without Jira settings issue
// lookups and webhook transitions are disabled.
func Load() (*Config, error) {
	var fc fileConfig
	if path := os.Getenv("MERGEBRIDGE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	overrideString(&fc.ListenAddr, "MERGEBRIDGE_LISTEN_ADDR")
	overrideString(&fc.DBPath, "MERGEBRIDGE_DB_PATH")
	overrideString(&fc.SecretKey, "MERGEBRIDGE_SECRET_KEY")
	overrideString(&fc.GitHubToken, "MERGEBRIDGE_GITHUB_TOKEN")
	overrideString(&fc.JiraBaseURL, "MERGEBRIDGE_JIRA_BASE_URL")
	overrideString(&fc.JiraEmail, "MERGEBRIDGE_JIRA_EMAIL")
	overrideString(&fc.JiraToken, "MERGEBRIDGE_JIRA_TOKEN")
	overrideString(&fc.WebhookSecret, "MERGEBRIDGE_WEBHOOK_SECRET")
	overrideString(&fc.SessionTTL, "MERGEBRIDGE_SESSION_TTL")
	overrideString(&fc.LogLevel, "MERGEBRIDGE_LOG_LEVEL")
	overrideString(&fc.LogFile, "MERGEBRIDGE_LOG_FILE")

	if v, ok := os.LookupEnv("MERGEBRIDGE_REPO_INCLUDE"); ok {
		fc.RepoInclude = splitList(v)
	}
	if v, ok := os.LookupEnv("MERGEBRIDGE_FETCH_CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("MERGEBRIDGE_FETCH_CONCURRENCY has invalid integer %q: %w", v, err)
		}
		fc.FetchConcurrency = n
	}

	return fc.resolve()
}

func (fc fileConfig) resolve() (*Config, error) {
	cfg := &Config{
		ListenAddr:       withDefault(fc.ListenAddr, DefaultListenAddr),
		DBPath:           withDefault(fc.DBPath, DefaultDBPath),
		GitHubToken:      fc.GitHubToken,
		JiraBaseURL:      strings.TrimRight(fc.JiraBaseURL, "/"),
		JiraEmail:        fc.JiraEmail,
		JiraToken:        fc.JiraToken,
		WebhookSecret:    fc.WebhookSecret,
		RepoInclude:      fc.RepoInclude,
		FetchConcurrency: fc.FetchConcurrency,
		SessionTTL:       DefaultSessionTTL,
		LogLevel:         strings.ToLower(withDefault(fc.LogLevel, DefaultLogLevel)),
		LogFile:          fc.LogFile,
	}

	if cfg.FetchConcurrency == 0 {
		cfg.FetchConcurrency = DefaultFetchConcurrency
	}
	if cfg.RepoInclude == nil {
		cfg.RepoInclude = []string{}
	}

	if fc.SessionTTL != "" {
		ttl, err := time.ParseDuration(fc.SessionTTL)
		if err != nil {
			return nil, fmt.Errorf("session_ttl has invalid duration %q: %w", fc.SessionTTL, err)
		}
		cfg.SessionTTL = ttl
	}

	if fc.SecretKey != "" {
		key, err := decodeSecretKey(fc.SecretKey)
		if err != nil {
			return nil, err
		}
		cfg.SecretKey = key
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	if c.FetchConcurrency < 1 {
		errs = append(errs, fmt.Errorf("fetch_concurrency must be at least 1, got %d", c.FetchConcurrency))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("session_ttl must be positive, got %s", c.SessionTTL))
	}

	for _, pattern := range c.RepoInclude {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, fmt.Errorf("repo_include pattern %q is malformed", pattern))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel))
	}

	if c.JiraBaseURL != "" {
		u, err := url.Parse(c.JiraBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("jira_base_url must be an absolute http(s) URL, got %q", c.JiraBaseURL))
		}
		if c.JiraToken == "" {
			errs = append(errs, errors.New("jira_token is required when jira_base_url is set"))
		}
	}

	return errors.Join(errs...)
}

// decodeSecretKey accepts a 32-byte key as 64 hex characters or standard
// base64.
func decodeSecretKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)

	if len(raw) == hex.EncodedLen(secretKeyBytes) {
		if key, err := hex.DecodeString(raw); err == nil {
			return key, nil
		}
	}

	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("secret_key must be hex or base64: %w", err)
	}
	if len(key) != secretKeyBytes {
		return nil, fmt.Errorf("secret_key must decode to %d bytes, got %d", secretKeyBytes, len(key))
	}
	return key, nil
}

func overrideString(dst *string, env string) {
	if v, ok := os.LookupEnv(env); ok {
		*dst = v
	}
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func splitList(v string) []string {
	out := []string{}
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
