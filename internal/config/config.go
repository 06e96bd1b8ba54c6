package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sir_venger/mediarelay/internal/models"
	"gopkg.in/yaml.v3"
)

// Defaults. DefaultUploadToken is a placeholder and must be overridden in production.
const (
	DefaultPort            = "3000"
	DefaultUploadToken     = "change-me-upload-token"
	DefaultMaxFileSize     = int64(100 << 20)
	DefaultUploadDir       = "./uploads"
	DefaultServiceName     = "mediarelay"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultPartialTTL      = 24 * time.Hour
	DefaultSweepInterval   = 30 * time.Minute
	DefaultShutdownTimeout = 15 * time.Second

	// MaxFileSizeCeiling (1 PiB) caps MaxFileSize so that limit arithmetic cannot overflow.
	MaxFileSizeCeiling = int64(1) << 50
)

type Config struct {
	Port            string        `yaml:"port" json:"port"`
	UploadToken     string        `yaml:"upload_token" json:"-"`
	MaxFileSize     int64         `yaml:"max_file_size" json:"max_file_size"`
	UploadDir       string        `yaml:"upload_dir" json:"upload_dir"`
	ServiceName     string        `yaml:"service_name" json:"service_name"`
	TrustProxy      bool          `yaml:"trust_proxy" json:"trust_proxy"`
	CORSOrigins     []string      `yaml:"cors_origins" json:"cors_origins"`
	LogLevel        string        `yaml:"log_level" json:"log_level"`
	LogFormat       string        `yaml:"log_format" json:"log_format"`
	PartialTTL      time.Duration `yaml:"partial_ttl" json:"partial_ttl"`
	SweepInterval   time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Port:            DefaultPort,
		UploadToken:     DefaultUploadToken,
		MaxFileSize:     DefaultMaxFileSize,
		UploadDir:       DefaultUploadDir,
		ServiceName:     DefaultServiceName,
		CORSOrigins:     []string{"*"},
		LogLevel:        DefaultLogLevel,
		LogFormat:       DefaultLogFormat,
		PartialTTL:      DefaultPartialTTL,
		SweepInterval:   DefaultSweepInterval,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// Load reads .env (if present), applies the optional YAML file named by CONFIG_PATH
// and then environment overrides.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c := Default()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err = yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	c.normalize()

	return c, nil
}

// Addr is the listen address derived from Port.
func (c *Config) Addr() string {
	return ":" + strings.TrimPrefix(c.Port, ":")
}

// MaxFileSizeMB renders the size limit in MiB for user-facing messages.
func (c *Config) MaxFileSizeMB() string {
	return models.FormatMB(c.MaxFileSize)
}

// InsecureToken reports whether the placeholder upload token is still in use.
func (c *Config) InsecureToken() bool {
	return c.UploadToken == DefaultUploadToken
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("UPLOAD_TOKEN"); v != "" {
		c.UploadToken = v
	}
	if v := os.Getenv("MAX_FILE_SIZE"); v != "" {
		// Unparsable values fall back to the default rather than failing startup.
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && n > 0 {
			c.MaxFileSize = n
		} else {
			c.MaxFileSize = DefaultMaxFileSize
		}
	}
	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		c.UploadDir = v
	}
	if v := os.Getenv("SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv("TRUST_PROXY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TRUST_PROXY: %w", err)
		}
		c.TrustProxy = b
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitComma(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"PARTIAL_TTL", &c.PartialTTL},
		{"SWEEP_INTERVAL", &c.SweepInterval},
		{"SHUTDOWN_TIMEOUT", &c.ShutdownTimeout},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	return nil
}

func (c *Config) normalize() {
	if c.Port == "" {
		c.Port = DefaultPort
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.MaxFileSize > MaxFileSizeCeiling {
		c.MaxFileSize = MaxFileSizeCeiling
	}
	if c.UploadDir == "" {
		c.UploadDir = DefaultUploadDir
	}
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
}

func splitComma(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}

	return out
}
