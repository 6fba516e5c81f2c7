package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// DefaultMaxBodySize is used when max_body_size is empty.
const DefaultMaxBodySize = 1048576 // 1 MB

// Environment variables recognised by Load. They take precedence over the
// config file.
const (
	EnvDebug            = "DEBUG"
	EnvLogLevel         = "LOG_LEVEL"
	EnvSecret           = "SECRET"
	EnvHashlibBlacklist = "HASHLIB_BLACKLIST"
	EnvListen           = "LISTEN"
	EnvMaxBodySize      = "MAX_BODY_SIZE"
	EnvBackend          = "BACKEND"
	EnvRegion           = "S3_REGION"
	EnvSNSEndpoint      = "SNS_ENDPOINT"
	EnvNATSURL          = "NATS_URL"
	EnvNATSCreds        = "NATS_CREDS"
	EnvNATSPrefix       = "NATS_SUBJECT_PREFIX"
)

// Load builds the configuration from defaults, an optional YAML file, a .env
// file in the working directory (if present) and the process environment.
// An empty configPath skips the file.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if configPath != "" {
		if err := loadFile(cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	applyEnv(cfg, os.LookupEnv)

	if err := finalize(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	expanded := interpolateEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	return nil
}

// applyEnv overlays environment values onto cfg.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDebug); ok {
		cfg.Service.Debug = parseBool(v)
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.Service.LogLevel = v
	}
	if v, ok := lookup(EnvSecret); ok {
		cfg.Signature.Secret = v
	}
	if v, ok := lookup(EnvHashlibBlacklist); ok {
		cfg.Signature.HashlibBlacklist = v
	}
	if v, ok := lookup(EnvListen); ok && v != "" {
		cfg.HTTP.Listen = v
	}
	if v, ok := lookup(EnvMaxBodySize); ok && v != "" {
		cfg.HTTP.MaxBodySize = v
	}
	if v, ok := lookup(EnvBackend); ok && v != "" {
		cfg.Backend.Kind = v
	}
	if v, ok := lookup(EnvRegion); ok && v != "" {
		cfg.Backend.SNS.Region = v
	}
	if v, ok := lookup(EnvSNSEndpoint); ok {
		cfg.Backend.SNS.Endpoint = v
	}
	if v, ok := lookup(EnvNATSURL); ok && v != "" {
		cfg.Backend.JetStream.URL = v
	}
	if v, ok := lookup(EnvNATSCreds); ok {
		cfg.Backend.JetStream.CredsFile = v
	}
	if v, ok := lookup(EnvNATSPrefix); ok && v != "" {
		cfg.Backend.JetStream.SubjectPrefix = v
	}
}

// finalize derives parsed fields and validates the result.
func finalize(cfg *Config) error {
	cfg.Backend.Kind = strings.ToLower(strings.TrimSpace(cfg.Backend.Kind))
	cfg.Signature.Blacklist = ParseBlacklist(cfg.Signature.HashlibBlacklist)

	size, err := parseMaxBodySize(cfg.HTTP.MaxBodySize)
	if err != nil {
		return fmt.Errorf("max_body_size %q: %w", cfg.HTTP.MaxBodySize, err)
	}
	cfg.HTTP.MaxBodyBytes = size

	return validate(cfg)
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	switch cfg.Backend.Kind {
	case BackendSNS:
		if cfg.Backend.SNS.Region == "" {
			return fmt.Errorf("backend.sns.region is required")
		}
	case BackendJetStream:
		if cfg.Backend.JetStream.URL == "" {
			return fmt.Errorf("backend.jetstream.url is required")
		}
		if cfg.Backend.JetStream.SubjectPrefix == "" {
			return fmt.Errorf("backend.jetstream.subject_prefix is required")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q (want %s, %s or %s)",
			cfg.Backend.Kind, BackendSNS, BackendJetStream, BackendMemory)
	}

	if cfg.HTTP.Listen == "" {
		return fmt.Errorf("http.listen is required")
	}

	return nil
}

// ParseBlacklist splits a comma-separated algorithm list into a set of
// lower-cased, whitespace-trimmed names. Empty entries are dropped.
func ParseBlacklist(list string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, entry := range strings.Split(list, ",") {
		name := strings.ToLower(strings.TrimSpace(entry))
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	return set
}

// SortedBlacklist returns the blacklist entries in lexical order.
func (c *Config) SortedBlacklist() []string {
	names := make([]string, 0, len(c.Signature.Blacklist))
	for name := range c.Signature.Blacklist {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// parseBool accepts the truthy spellings used by deployment tooling.
func parseBool(v string) bool {
	switch strings.TrimSpace(v) {
	case "1", "true", "True", "TRUE", "yes":
		return true
	}
	return false
}

// parseMaxBodySize parses size strings like "1MB", "2048576", "512KB" to bytes.
// Returns DefaultMaxBodySize if empty.
func parseMaxBodySize(size string) (int64, error) {
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	upper := strings.ToUpper(strings.TrimSpace(size))
	multiplier := int64(1)

	switch {
	case strings.HasSuffix(upper, "KB"):
		multiplier = 1024
		upper = strings.TrimSuffix(upper, "KB")
	case strings.HasSuffix(upper, "MB"):
		multiplier = 1024 * 1024
		upper = strings.TrimSuffix(upper, "MB")
	case strings.HasSuffix(upper, "GB"):
		multiplier = 1024 * 1024 * 1024
		upper = strings.TrimSuffix(upper, "GB")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	result := value * multiplier
	if result/multiplier != value {
		return 0, fmt.Errorf("size too large")
	}
	return result, nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}
