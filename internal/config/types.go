package config

// Config represents the complete hookrelay configuration.
//
// A Config is built once at startup by Load and treated as read-only
// afterwards. Components receive the values they need explicitly.
type Config struct {
	Service   ServiceConfig   `yaml:"service" json:"service"`
	Signature SignatureConfig `yaml:"signature" json:"signature"`
	HTTP      HTTPConfig      `yaml:"http" json:"http"`
	Backend   BackendConfig   `yaml:"backend" json:"backend"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name" json:"name"`
	Debug    bool   `yaml:"debug" json:"debug"`
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// SignatureConfig defines webhook signature verification settings.
type SignatureConfig struct {
	// Secret is the shared HMAC key. Empty disables verification.
	Secret string `yaml:"secret,omitempty" json:"secret,omitempty"`

	// HashlibBlacklist is the comma-separated list of rejected digest
	// algorithms as configured (e.g. "CRC32,CRC32C,MD4,MD5,MDC2").
	HashlibBlacklist string `yaml:"hashlib_blacklist" json:"hashlib_blacklist"`

	// Blacklist is the parsed, lower-cased form of HashlibBlacklist.
	Blacklist map[string]struct{} `yaml:"-" json:"-"`
}

// HTTPConfig defines the inbound webhook listener.
type HTTPConfig struct {
	Listen string `yaml:"listen" json:"listen"`

	// MaxBodySize accepts plain byte counts or KB/MB/GB suffixes.
	MaxBodySize  string `yaml:"max_body_size" json:"max_body_size"`
	MaxBodyBytes int64  `yaml:"-" json:"-"`
}

// BackendConfig selects and configures the publish/subscribe backend.
type BackendConfig struct {
	Kind      string          `yaml:"kind" json:"kind"` // sns, jetstream or memory
	SNS       SNSConfig       `yaml:"sns" json:"sns"`
	JetStream JetStreamConfig `yaml:"jetstream" json:"jetstream"`
}

// SNSConfig defines Amazon SNS settings.
type SNSConfig struct {
	Region string `yaml:"region" json:"region"`

	// Endpoint overrides the service endpoint (LocalStack, etc.)
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`

	// Static credentials. When empty the SDK default chain is used.
	AccessKeyID     string `yaml:"access_key_id,omitempty" json:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" json:"secret_access_key,omitempty"`
}

// JetStreamConfig defines NATS JetStream settings.
type JetStreamConfig struct {
	URL           string `yaml:"url" json:"url"`
	CredsFile     string `yaml:"creds_file,omitempty" json:"creds_file,omitempty"`
	SubjectPrefix string `yaml:"subject_prefix" json:"subject_prefix"`
}

// Backend kinds.
const (
	BackendSNS       = "sns"
	BackendJetStream = "jetstream"
	BackendMemory    = "memory"
)

// DefaultHashlibBlacklist lists digest algorithms rejected unless overridden.
const DefaultHashlibBlacklist = "CRC32,CRC32C,MD4,MD5,MDC2"

// Defaults returns a Config with all default values applied.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "hookrelay",
			LogLevel: "info",
		},
		Signature: SignatureConfig{
			HashlibBlacklist: DefaultHashlibBlacklist,
		},
		HTTP: HTTPConfig{
			Listen:      "127.0.0.1:8080",
			MaxBodySize: "1MB",
		},
		Backend: BackendConfig{
			Kind: BackendSNS,
			SNS: SNSConfig{
				Region: "eu-west-1",
			},
			JetStream: JetStreamConfig{
				URL:           "nats://127.0.0.1:4222",
				SubjectPrefix: "hookrelay",
			},
		},
	}
}

// SecretConfigured reports whether signature verification is enabled.
func (c *Config) SecretConfigured() bool {
	return c.Signature.Secret != ""
}

// EffectiveLogLevel returns DEBUG when the debug flag is set, otherwise the
// configured log level.
func (c *Config) EffectiveLogLevel() string {
	if c.Service.Debug {
		return "debug"
	}
	return c.Service.LogLevel
}

// Redacted returns a copy safe to print, with credentials masked.
func (c *Config) Redacted() Config {
	out := *c
	if out.Signature.Secret != "" {
		out.Signature.Secret = "********"
	}
	if out.Backend.SNS.SecretAccessKey != "" {
		out.Backend.SNS.SecretAccessKey = "********"
	}
	return out
}
