package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/ipfsbridge/pkg/op"
)

// EnvConfig names the environment variable that points at a config file.
const EnvConfig = "IPFSBRIDGE_CONFIG"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file or a directory holding
// config.yaml. Files listed under include are decoded on top of the root in
// order; later files win key by key and lists are replaced.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	loadDotEnv(filepath.Dir(absPath))

	cfg := Defaults()
	cfg.Root = absPath
	cfg.SourceFiles = make(map[string]*yaml.Node)

	visited := map[string]bool{}
	if err := decodeFile(cfg, absPath, visited); err != nil {
		return nil, err
	}

	applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads the discovered config file, or returns validated
// defaults when none exists.
func LoadOrDefault(flagPath string) (*Config, error) {
	path, err := Discover(flagPath)
	if err != nil {
		return nil, err
	}
	if path != "" {
		return Load(path)
	}

	loadDotEnv("")
	cfg := Defaults()
	applyConfigDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Discover finds the config file to use.
// Priority order: --config flag, $IPFSBRIDGE_CONFIG, ~/.config/ipfsbridge/config.yaml,
// /etc/ipfsbridge/config.yaml. An empty path with a nil error means none was
// found and defaults apply.
func Discover(flagPath string) (string, error) {
	if flagPath != "" {
		if _, err := os.Stat(flagPath); err != nil {
			return "", fmt.Errorf("config %s: %w", flagPath, err)
		}
		return flagPath, nil
	}

	if p := os.Getenv(EnvConfig); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("$%s=%s: %w", EnvConfig, p, err)
		}
		return p, nil
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "ipfsbridge", "config.yaml")
		if fileExists(userConfig) {
			return userConfig, nil
		}
	}

	if systemConfig := "/etc/ipfsbridge/config.yaml"; fileExists(systemConfig) {
		return systemConfig, nil
	}

	return "", nil
}

// OpTimeouts resolves the timeouts section to operation IDs. Names have
// been checked by validate.
func (c *Config) OpTimeouts() map[op.ID]time.Duration {
	out := make(map[op.ID]time.Duration, len(c.Timeouts))
	for name, d := range c.Timeouts {
		if desc, err := op.Lookup(name); err == nil {
			out[desc.ID] = d
		}
	}
	return out
}

// loadDotEnv loads .env files without overriding variables already set.
func loadDotEnv(configDir string) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
	if configDir != "" {
		_ = godotenv.Load(filepath.Join(configDir, ".env"))
	}
}

func decodeFile(cfg *Config, path string, visited map[string]bool) error {
	if visited[path] {
		return fmt.Errorf("include cycle at %s", path)
	}
	visited[path] = true

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// The raw document is kept so edits never persist interpolated secrets.
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.SourceFiles[path] = &node

	interpolated := []byte(interpolateEnv(string(data)))

	// Includes are resolved per file so nested includes stay relative to
	// their parent.
	before := cfg.Include
	cfg.Include = nil

	dec := yaml.NewDecoder(bytes.NewReader(interpolated))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}

	includes := cfg.Include
	cfg.Include = append(before, includes...)

	baseDir := filepath.Dir(path)
	for i, inc := range includes {
		resolved := inc
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(baseDir, resolved)
		}
		resolved = filepath.Clean(resolved)
		if !fileExists(resolved) {
			return fmt.Errorf("%s: include[%d]: file not found: %s", path, i, resolved)
		}
		if err := decodeFile(cfg, resolved, visited); err != nil {
			return err
		}
	}
	return nil
}

func applyConfigDefaults(cfg *Config) {
	def := Defaults()
	if cfg.Service.Name == "" {
		cfg.Service.Name = def.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = def.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = def.Service.LogFormat
	}
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	if cfg.Runtime.Kind == "" {
		cfg.Runtime.Kind = def.Runtime.Kind
	}
	if cfg.Runtime.Binary == "" {
		cfg.Runtime.Binary = def.Runtime.Binary
	}
	if cfg.Runtime.GracePeriod == 0 {
		cfg.Runtime.GracePeriod = def.Runtime.GracePeriod
	}
	if cfg.Runtime.MaxOutput == 0 {
		cfg.Runtime.MaxOutput = def.Runtime.MaxOutput
	}
	if cfg.API.EventBuffer == 0 {
		cfg.API.EventBuffer = def.API.EventBuffer
	}

	cfg.Runtime.Repo = expandHome(cfg.Runtime.Repo)
	cfg.Runtime.LockFile = expandHome(cfg.Runtime.LockFile)
	cfg.History.Path = expandHome(cfg.History.Path)
	cfg.Service.PIDFile = expandHome(cfg.Service.PIDFile)
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Unset variables are left in place and caught by validation where it
// matters.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	rt := cfg.Runtime
	switch rt.Kind {
	case RuntimeEmbedded:
	case RuntimeExec:
		if rt.Binary == "" {
			return fmt.Errorf("runtime.binary is required for kind %q", rt.Kind)
		}
	case RuntimeHTTP:
		u, err := url.Parse(rt.APIURL)
		if rt.APIURL == "" || err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("runtime.api_url must be an absolute URL for kind %q (got %q)", rt.Kind, rt.APIURL)
		}
	default:
		return fmt.Errorf("runtime.kind must be one of: embedded, exec, http (got %q)", rt.Kind)
	}
	if rt.Timeout < 0 {
		return fmt.Errorf("runtime.timeout must not be negative")
	}
	if rt.GracePeriod < 0 {
		return fmt.Errorf("runtime.grace_period must not be negative")
	}
	if rt.MaxOutput < 0 {
		return fmt.Errorf("runtime.max_output must not be negative")
	}
	for k, v := range rt.Env {
		if k == "" || strings.Contains(k, "=") {
			return fmt.Errorf("runtime.env: invalid variable name %q", k)
		}
		if err := unresolved("runtime.env."+k, v); err != nil {
			return err
		}
	}

	for name, d := range cfg.Timeouts {
		if _, err := op.Lookup(name); err != nil {
			return fmt.Errorf("timeouts.%s: %w", name, err)
		}
		if d < 0 {
			return fmt.Errorf("timeouts.%s must not be negative", name)
		}
	}

	if cfg.History.Enabled {
		if cfg.History.Path == "" {
			return fmt.Errorf("history.path is required when history is enabled")
		}
		if cfg.History.Retention < 0 {
			return fmt.Errorf("history.retention must not be negative")
		}
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when the API is enabled")
		}
		if cfg.API.Auth.APIKey == "" && len(cfg.API.Auth.Tokens) == 0 {
			return fmt.Errorf("api.auth: api_key or tokens required when the API is enabled")
		}
		if err := unresolved("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
			return err
		}
		for i, tok := range cfg.API.Auth.Tokens {
			if tok.Token == "" {
				return fmt.Errorf("api.auth.tokens[%d].token is required", i)
			}
			if err := unresolved(fmt.Sprintf("api.auth.tokens[%d].token", i), tok.Token); err != nil {
				return err
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("api.auth.tokens[%d].scopes must be non-empty", i)
			}
		}
	}

	return nil
}

func unresolved(field, value string) error {
	if m := envVarPattern.FindStringSubmatch(value); len(m) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, m[1])
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
