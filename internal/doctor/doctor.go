// Package doctor validates hookrelay configuration beyond what Load enforces.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/mattjoyce/hookrelay/internal/config"
	"github.com/mattjoyce/hookrelay/internal/signature"
)

// minSecretLength is the shortest secret accepted without a warning.
const minSecretLength = 16

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg *config.Config
}

// New creates a Doctor for cfg.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateService(r)
	d.validateHTTP(r)
	d.validateSignature(r)
	d.validateBackend(r)
	d.warnUnresolvedEnvVars(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateService(r *Result) {
	switch strings.ToUpper(strings.TrimSpace(d.cfg.Service.LogLevel)) {
	case "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
	default:
		d.addWarning(r, "service", "service.log_level",
			fmt.Sprintf("unknown log level %q, INFO will be used", d.cfg.Service.LogLevel))
	}
}

func (d *Doctor) validateHTTP(r *Result) {
	if _, _, err := net.SplitHostPort(d.cfg.HTTP.Listen); err != nil {
		d.addError(r, "http", "http.listen",
			fmt.Sprintf("listen address %q is not host:port", d.cfg.HTTP.Listen))
	}
	if d.cfg.HTTP.MaxBodyBytes > 0 && d.cfg.HTTP.MaxBodyBytes < 1024 {
		d.addWarning(r, "http", "http.max_body_size",
			fmt.Sprintf("max body size of %d bytes will reject most webhook payloads", d.cfg.HTTP.MaxBodyBytes))
	}
}

// validateSignature checks the secret and the digest blacklist.
func (d *Doctor) validateSignature(r *Result) {
	sig := d.cfg.Signature

	if sig.Secret == "" {
		d.addWarning(r, "signature", "signature.secret",
			"no secret configured; webhook signatures will not be verified")
	} else if len(sig.Secret) < minSecretLength {
		d.addWarning(r, "signature", "signature.secret",
			fmt.Sprintf("secret is shorter than %d characters", minSecretLength))
	}

	defaults := config.ParseBlacklist(config.DefaultHashlibBlacklist)
	for _, name := range d.cfg.SortedBlacklist() {
		if _, isDefault := defaults[name]; isDefault {
			continue
		}
		if _, _, ok := signature.Lookup(name); !ok {
			d.addWarning(r, "signature", "signature.hashlib_blacklist",
				fmt.Sprintf("blacklisted algorithm %q is not supported anyway", name))
		}
	}

	if sig.Secret == "" {
		return
	}
	v := signature.NewValidator(sig.Secret, sig.Blacklist)
	for _, name := range signature.Algorithms() {
		if v.Allowed(name) {
			return
		}
	}
	d.addError(r, "signature", "signature.hashlib_blacklist",
		"every supported algorithm is blacklisted; no signed delivery can be accepted")
}

func (d *Doctor) validateBackend(r *Result) {
	b := d.cfg.Backend

	switch b.Kind {
	case config.BackendSNS:
		if (b.SNS.AccessKeyID == "") != (b.SNS.SecretAccessKey == "") {
			d.addError(r, "backend", "backend.sns",
				"access_key_id and secret_access_key must be set together")
		}
		if b.SNS.Endpoint != "" && !strings.HasPrefix(b.SNS.Endpoint, "http") {
			d.addError(r, "backend", "backend.sns.endpoint",
				fmt.Sprintf("endpoint %q must be an http(s) URL", b.SNS.Endpoint))
		}
	case config.BackendJetStream:
		if !strings.HasPrefix(b.JetStream.URL, "nats://") && !strings.HasPrefix(b.JetStream.URL, "tls://") {
			d.addWarning(r, "backend", "backend.jetstream.url",
				fmt.Sprintf("url %q has no nats:// or tls:// scheme", b.JetStream.URL))
		}
		if strings.ContainsAny(b.JetStream.SubjectPrefix, "*> \t") {
			d.addError(r, "backend", "backend.jetstream.subject_prefix",
				fmt.Sprintf("subject prefix %q must not contain wildcards or whitespace", b.JetStream.SubjectPrefix))
		}
	case config.BackendMemory:
		d.addWarning(r, "backend", "backend.kind",
			"memory backend keeps messages in process; nothing is delivered to subscribers")
	}
}

// warnUnresolvedEnvVars warns about ${VAR} references left in values, which
// happens when the variable was unset at load time.
func (d *Doctor) warnUnresolvedEnvVars(r *Result) {
	envVarRe := regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

	fields := []struct{ name, value string }{
		{"signature.secret", d.cfg.Signature.Secret},
		{"backend.sns.access_key_id", d.cfg.Backend.SNS.AccessKeyID},
		{"backend.sns.secret_access_key", d.cfg.Backend.SNS.SecretAccessKey},
		{"backend.jetstream.url", d.cfg.Backend.JetStream.URL},
		{"backend.jetstream.creds_file", d.cfg.Backend.JetStream.CredsFile},
	}
	for _, f := range fields {
		for _, m := range envVarRe.FindAllStringSubmatch(f.value, -1) {
			d.addWarning(r, "env_vars", f.name,
				fmt.Sprintf("environment variable ${%s} not set", m[1]))
		}
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
