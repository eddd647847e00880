package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Runtime kinds.
const (
	RuntimeEmbedded = "embedded"
	RuntimeExec     = "exec"
	RuntimeHTTP     = "http"
)

// Config represents the complete ipfsbridge configuration.
type Config struct {
	Service  ServiceConfig            `yaml:"service"`
	Runtime  RuntimeConfig            `yaml:"runtime"`
	Timeouts map[string]time.Duration `yaml:"timeouts,omitempty"`
	History  HistoryConfig            `yaml:"history"`
	API      APIConfig                `yaml:"api,omitempty"`
	Include  []string                 `yaml:"include,omitempty"`

	// SourceFiles holds the parsed documents this config was loaded from,
	// keyed by absolute path. Root is the file passed to Load.
	SourceFiles map[string]*yaml.Node `yaml:"-"`
	Root        string                `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// PIDFile guards "system serve" against a second instance.
	PIDFile string `yaml:"pid_file,omitempty"`
}

// RuntimeConfig selects and tunes the runtime calls are handed to.
type RuntimeConfig struct {
	Kind        string            `yaml:"kind"`
	Binary      string            `yaml:"binary,omitempty"`
	Repo        string            `yaml:"repo,omitempty"`
	APIURL      string            `yaml:"api_url,omitempty"`
	Env         map[string]string `yaml:"env,omitempty"`
	Timeout     time.Duration     `yaml:"timeout"`
	GracePeriod time.Duration     `yaml:"grace_period"`
	MaxOutput   int               `yaml:"max_output"`
	Reentrant   bool              `yaml:"reentrant"`
	LockFile    string            `yaml:"lock_file,omitempty"`
}

// HistoryConfig defines the dispatch log.
type HistoryConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Listen      string        `yaml:"listen"`
	EventBuffer int           `yaml:"event_buffer,omitempty"`
	Auth        APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is a single bearer token with full access.
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// Defaults returns a Config with default values.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "ipfsbridge",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Runtime: RuntimeConfig{
			Kind:        RuntimeExec,
			Binary:      "ipfs",
			APIURL:      "http://127.0.0.1:5001",
			Timeout:     60 * time.Second,
			GracePeriod: 5 * time.Second,
			MaxOutput:   64 * 1024,
		},
		Timeouts: map[string]time.Duration{
			"daemon":  0,
			"add":     10 * time.Minute,
			"get":     10 * time.Minute,
			"repo_gc": 10 * time.Minute,
		},
		History: HistoryConfig{
			Enabled:   true,
			Path:      "./data/history.db",
			Retention: 30 * 24 * time.Hour,
		},
		API: APIConfig{
			Enabled:     false,
			Listen:      "127.0.0.1:8088",
			EventBuffer: 256,
		},
	}
}
