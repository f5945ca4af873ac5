// Package config provides centralized configuration management for the notekeeper server.
// Values come from CLI flags, environment variables and optional .env files, in that order
// of precedence, and are validated before the server starts.
//
// Every flag has a matching environment variable: the flag name upper-cased with dashes
// replaced by underscores (--listen-addr becomes LISTEN_ADDR).
package config

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kuitang/notekeeper/internal/db"
	"github.com/kuitang/notekeeper/internal/obs"
	"github.com/kuitang/notekeeper/internal/ratelimit"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag and viper keys.
const (
	KeyListenAddr       = "listen-addr"
	KeyDatabaseURL      = "database-url"
	KeyDatabaseKey      = "database-key"
	KeyLogLevel         = "log-level"
	KeyCORSOrigins      = "cors-origins"
	KeyRateLimitRPS     = "rate-limit-rps"
	KeyRateLimitBurst   = "rate-limit-burst"
	KeyRateLimitCleanup = "rate-limit-cleanup-interval"
	KeyMCP              = "mcp"
	KeyNoS3             = "no-s3"
	KeyTest             = "test"
	KeyShutdownTimeout  = "shutdown-timeout"

	KeyAWSEndpoint  = "aws-endpoint-url-s3"
	KeyAWSRegion    = "aws-region"
	KeyAWSAccessKey = "aws-access-key-id"
	KeyAWSSecretKey = "aws-secret-access-key"
	KeyBucketName   = "bucket-name"
)

const (
	defaultListenAddr  = ":8080"
	defaultDatabaseURL = "sqlite:///notes.db"
	defaultRegion      = "auto"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	ListenAddr      string
	CORSOrigins     []string
	MCPEnabled      bool
	ShutdownTimeout time.Duration
	LogLevel        string

	// Durable store
	DatabaseURL string
	DatabaseKey string // empty, or 64 hex characters (32 bytes)

	// Rate limiting
	RateLimitConfig ratelimit.Config

	// NoS3 serves exports from an in-memory bucket (--no-s3, implied by --test).
	NoS3 bool

	// S3 export target
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY
	AWSBucketName      string // BUCKET_NAME
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// RegisterFlags adds every configuration flag to cmd.
func RegisterFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String(KeyListenAddr, defaultListenAddr, "Address the HTTP server listens on")
	flags.String(KeyDatabaseURL, defaultDatabaseURL, "Durable store location (sqlite:///path, a bare path, or :memory:)")
	flags.String(KeyDatabaseKey, "", "Optional 64 hex character SQLCipher key for the durable store")
	flags.String(KeyLogLevel, "info", "Log level (debug, info, warn, error)")
	flags.String(KeyCORSOrigins, "*", "Comma-separated list of allowed CORS origins")
	flags.Float64(KeyRateLimitRPS, ratelimit.DefaultConfig.RPS, "Requests per second per client IP (0 disables rate limiting)")
	flags.Int(KeyRateLimitBurst, ratelimit.DefaultConfig.Burst, "Burst size per client IP")
	flags.Duration(KeyRateLimitCleanup, ratelimit.DefaultConfig.CleanupInterval, "How often idle rate limiters are dropped")
	flags.Bool(KeyMCP, true, "Serve the MCP tool endpoint at /mcp")
	flags.Bool(KeyNoS3, false, "Use in-memory object storage for exports")
	flags.Bool(KeyTest, false, "Shorthand for --no-s3")
	flags.Duration(KeyShutdownTimeout, 10*time.Second, "Grace period for in-flight requests on shutdown")

	flags.String(KeyAWSEndpoint, "", "S3 endpoint for exports")
	flags.String(KeyAWSRegion, defaultRegion, "S3 region")
	flags.String(KeyAWSAccessKey, "", "S3 access key id")
	flags.String(KeyAWSSecretKey, "", "S3 secret access key")
	flags.String(KeyBucketName, "", "S3 bucket exports are written to")
}

// LoadEnvFiles loads .env and .env.local when present. Variables already set in the
// environment win.
func LoadEnvFiles() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
}

// NewViper returns a viper instance bound to cmd's flags and the environment.
func NewViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv(KeyMCP, "MCP_ENABLED"); err != nil {
		return nil, err
	}
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	return v, nil
}

// Load reads configuration from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		ListenAddr:      strings.TrimSpace(v.GetString(KeyListenAddr)),
		CORSOrigins:     splitList(v.GetString(KeyCORSOrigins)),
		MCPEnabled:      v.GetBool(KeyMCP),
		ShutdownTimeout: v.GetDuration(KeyShutdownTimeout),
		LogLevel:        strings.TrimSpace(v.GetString(KeyLogLevel)),

		DatabaseURL: strings.TrimSpace(v.GetString(KeyDatabaseURL)),
		DatabaseKey: strings.TrimSpace(v.GetString(KeyDatabaseKey)),

		RateLimitConfig: ratelimit.Config{
			RPS:             v.GetFloat64(KeyRateLimitRPS),
			Burst:           v.GetInt(KeyRateLimitBurst),
			CleanupInterval: v.GetDuration(KeyRateLimitCleanup),
		},

		NoS3: v.GetBool(KeyNoS3) || v.GetBool(KeyTest),

		AWSEndpointS3:      strings.TrimSpace(v.GetString(KeyAWSEndpoint)),
		AWSRegion:          strings.TrimSpace(v.GetString(KeyAWSRegion)),
		AWSAccessKeyID:     strings.TrimSpace(v.GetString(KeyAWSAccessKey)),
		AWSSecretAccessKey: strings.TrimSpace(v.GetString(KeyAWSSecretKey)),
		AWSBucketName:      strings.TrimSpace(v.GetString(KeyBucketName)),
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if cfg.AWSRegion == "" {
		cfg.AWSRegion = defaultRegion
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all configuration values are usable.
func (c *Config) Validate() error {
	var errs []string

	if _, err := db.ParseDatabaseURL(c.DatabaseURL); err != nil {
		errs = append(errs, fmt.Sprintf("DATABASE_URL is invalid: %v", err))
	}
	if c.DatabaseKey != "" {
		if key, err := hex.DecodeString(c.DatabaseKey); err != nil || len(key) != db.KeySize {
			errs = append(errs, "DATABASE_KEY must be 64 hex characters (generate with: openssl rand -hex 32)")
		}
	}

	if _, err := obs.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel))
	}

	if c.RateLimitConfig.RPS < 0 {
		errs = append(errs, "RATE_LIMIT_RPS must not be negative")
	}
	if c.RateLimitConfig.RPS > 0 && c.RateLimitConfig.Burst <= 0 {
		errs = append(errs, "RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}

	// S3: endpoint and bucket go together unless --no-s3
	if !c.NoS3 && (c.AWSEndpointS3 == "") != (c.AWSBucketName == "") {
		errs = append(errs, "AWS_ENDPOINT_URL_S3 and BUCKET_NAME must be set together (or use --no-s3)")
	}

	if c.ShutdownTimeout < 0 {
		errs = append(errs, "SHUTDOWN_TIMEOUT must not be negative")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// DatabaseKeyBytes returns the decoded SQLCipher key, or nil when none is configured.
func (c *Config) DatabaseKeyBytes() []byte {
	if c.DatabaseKey == "" {
		return nil
	}
	key, err := hex.DecodeString(c.DatabaseKey)
	if err != nil {
		return nil
	}
	return key
}

// S3Configured reports whether exports go to a real S3 bucket.
func (c *Config) S3Configured() bool {
	return !c.NoS3 && c.AWSEndpointS3 != "" && c.AWSBucketName != ""
}

// PrintStartupSummary prints a human-readable summary of the configuration to w.
func (c *Config) PrintStartupSummary(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "notekeeper server starting...")

	fmt.Fprintf(w, "  Store:   %s\n", c.DatabaseURL)
	if c.DatabaseKey != "" {
		fmt.Fprintln(w, "  Cipher:  From DATABASE_KEY")
	}

	switch {
	case c.NoS3:
		fmt.Fprintln(w, "  Export:  In-memory S3 (--no-s3)")
	case c.S3Configured():
		fmt.Fprintf(w, "  Export:  S3 (endpoint: %s, bucket: %s)\n", c.AWSEndpointS3, c.AWSBucketName)
	default:
		fmt.Fprintln(w, "  Export:  Disabled")
	}

	if c.RateLimitConfig.Enabled() {
		fmt.Fprintf(w, "  Limit:   %g rps, burst %d\n", c.RateLimitConfig.RPS, c.RateLimitConfig.Burst)
	} else {
		fmt.Fprintln(w, "  Limit:   Disabled")
	}
	if c.MCPEnabled {
		fmt.Fprintln(w, "  MCP:     /mcp")
	}

	fmt.Fprintf(w, "  Listen:  %s\n", c.ListenAddr)
	fmt.Fprintln(w, "")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
