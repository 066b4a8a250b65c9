package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default configuration file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DatabaseURL string `yaml:"databaseURL"`

	MinioEndpoint        string `yaml:"minioEndpoint"`
	MinioAccessKey       string `yaml:"minioAccessKey"`
	MinioSecretKey       string `yaml:"minioSecretKey"`
	MinioUseSSL          bool   `yaml:"minioUseSSL"`
	ReportsBucket        string `yaml:"reportsBucket"`
	StoragePublicBaseURL string `yaml:"storagePublicBaseURL"`

	AuthURL       string `yaml:"authURL"`
	AuthAnonKey   string `yaml:"authAnonKey"`
	AuthJWTSecret string `yaml:"authJwtSecret"`

	AllowedEmails  []string `yaml:"allowedEmails"`
	AllowedDomains []string `yaml:"allowedDomains"`

	RedisAddr                 string `yaml:"redisAddr"`
	RedisPassword             string `yaml:"redisPassword"`
	CleanupQueueStream        string `yaml:"cleanupQueueStream"`
	ContactRateLimitPerMinute int    `yaml:"contactRateLimitPerMinute"`

	MailEndpoint string `yaml:"mailEndpoint"`
	MailAPIKey   string `yaml:"mailApiKey"`
	MailFrom     string `yaml:"mailFrom"`
	MailTo       string `yaml:"mailTo"`

	MaxUploadBytes    int64    `yaml:"maxUploadBytes"`
	TrustedProxyCIDRs []string `yaml:"trustedProxyCidrs"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("REPORTS_BUCKET"); v != "" {
		cfg.ReportsBucket = v
	}
	if v := os.Getenv("STORAGE_PUBLIC_BASE_URL"); v != "" {
		cfg.StoragePublicBaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("AUTH_URL"); v != "" {
		cfg.AuthURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("AUTH_ANON_KEY"); v != "" {
		cfg.AuthAnonKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("AUTH_JWT_SECRET"); v != "" {
		cfg.AuthJWTSecret = strings.TrimSpace(v)
	}
	if v := os.Getenv("SYSTEM_ALLOWED_EMAILS"); v != "" {
		cfg.AllowedEmails = splitCSV(v)
	}
	if v := os.Getenv("SYSTEM_ALLOWED_DOMAINS"); v != "" {
		cfg.AllowedDomains = splitCSV(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("CONTACT_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ContactRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("MAIL_ENDPOINT"); v != "" {
		cfg.MailEndpoint = strings.TrimSpace(v)
	}
	if v := os.Getenv("MAIL_API_KEY"); v != "" {
		cfg.MailAPIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("MAIL_FROM"); v != "" {
		cfg.MailFrom = strings.TrimSpace(v)
	}
	if v := os.Getenv("MAIL_TO"); v != "" {
		cfg.MailTo = strings.TrimSpace(v)
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.MinioEndpoint == "" {
		return errors.New("config: minioEndpoint is required (set in config.yaml)")
	}
	if cfg.MinioAccessKey == "" {
		return errors.New("config: minioAccessKey is required (set in config.yaml)")
	}
	if cfg.MinioSecretKey == "" {
		return errors.New("config: minioSecretKey is required (set in config.yaml)")
	}
	if cfg.ReportsBucket == "" {
		return errors.New("config: reportsBucket is required (set in config.yaml or REPORTS_BUCKET)")
	}
	if strings.TrimSpace(cfg.AuthURL) == "" {
		return errors.New("config: authURL is required (set in config.yaml or AUTH_URL)")
	}
	if strings.TrimSpace(cfg.AuthAnonKey) == "" {
		return errors.New("config: authAnonKey is required (set in config.yaml or AUTH_ANON_KEY)")
	}
	if cfg.ContactRateLimitPerMinute < 0 {
		return errors.New("config: contactRateLimitPerMinute must be >= 0")
	}
	if cfg.ContactRateLimitPerMinute > 0 && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required when contact rate limiting is enabled")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
