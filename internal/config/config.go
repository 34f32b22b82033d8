package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr         string `yaml:"addr"`
	DataDir      string `yaml:"data_dir"`
	DBPath       string `yaml:"db_path"`
	ConfigDir    string `yaml:"config_dir"`
	SettingsPath string `yaml:"settings_path"`
	CORSOrigin   string `yaml:"cors_origin"`
	LogMode      string `yaml:"log_mode"`
	LogRedact    bool   `yaml:"log_redact"`

	// Remote backend. Cloud mode is unavailable when RemoteDatabaseURL is empty.
	RemoteDatabaseURL string `yaml:"remote_database_url"`
	S3Endpoint        string `yaml:"s3_endpoint"`
	S3AccessKey       string `yaml:"s3_access_key"`
	S3SecretKey       string `yaml:"s3_secret_key"`
	S3UseSSL          bool   `yaml:"s3_use_ssl"`
	S3PublicURL       string `yaml:"s3_public_url"`
	MeiliURL          string `yaml:"meili_url"`
	MeiliMasterKey    string `yaml:"meili_master_key"`
	RedisURL          string `yaml:"redis_url"`

	JWTSecret  string        `yaml:"jwt_secret"`
	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`

	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     string `yaml:"smtp_port"`
	SMTPUsername string `yaml:"smtp_username"`
	SMTPPassword string `yaml:"smtp_password"`
	SMTPFrom     string `yaml:"smtp_from"`
	SMTPFromName string `yaml:"smtp_from_name"`

	// AppURL prefixes links in outgoing mail.
	AppURL string `yaml:"app_url"`

	// SearchReindexInterval re-pushes cloud assets to Meilisearch so AI
	// results written outside the API reach the index. Zero disables it.
	SearchReindexInterval time.Duration `yaml:"search_reindex_interval"`
}

// RemoteConfigured reports whether cloud mode has a database to talk to.
func (c Config) RemoteConfigured() bool {
	return strings.TrimSpace(c.RemoteDatabaseURL) != ""
}

// Load reads the optional YAML file named by CANVASVAULT_CONFIG and then
// applies environment variables on top of it.
func Load() (Config, error) {
	var file Config
	if path := strings.TrimSpace(os.Getenv("CANVASVAULT_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	dataDir := getenv("CANVASVAULT_DATA_DIR", firstNonBlank(file.DataDir, "./data"))
	configDir := getenv("CANVASVAULT_APP_CONFIG_DIR", firstNonBlank(file.ConfigDir, dataDir))

	cfg := Config{
		Addr:         getenv("API_ADDR", firstNonBlank(file.Addr, "127.0.0.1:8787")),
		DataDir:      dataDir,
		DBPath:       getenv("CANVASVAULT_DB_PATH", firstNonBlank(file.DBPath, filepath.Join(dataDir, "canvasvault.sqlite3"))),
		ConfigDir:    configDir,
		SettingsPath: getenv("CANVASVAULT_SETTINGS_PATH", firstNonBlank(file.SettingsPath, filepath.Join(configDir, "settings.json"))),
		CORSOrigin:   getenv("CANVASVAULT_CORS_ORIGIN", firstNonBlank(file.CORSOrigin, "*")),
		LogMode:      getenv("LOG_MODE", firstNonBlank(file.LogMode, "dev")),
		LogRedact:    getenvBool("LOG_REDACT", true),

		RemoteDatabaseURL: getenv("REMOTE_DATABASE_URL", file.RemoteDatabaseURL),
		S3Endpoint:        getenv("S3_ENDPOINT", file.S3Endpoint),
		S3AccessKey:       getenv("S3_ACCESS_KEY", file.S3AccessKey),
		S3SecretKey:       getenv("S3_SECRET_KEY", file.S3SecretKey),
		S3UseSSL:          getenvBool("S3_USE_SSL", file.S3UseSSL),
		S3PublicURL:       getenv("S3_PUBLIC_URL", file.S3PublicURL),
		MeiliURL:          getenv("MEILI_URL", file.MeiliURL),
		MeiliMasterKey:    getenv("MEILI_MASTER_KEY", file.MeiliMasterKey),
		RedisURL:          getenv("REDIS_URL", file.RedisURL),

		JWTSecret:  getenv("CANVASVAULT_JWT_SECRET", firstNonBlank(file.JWTSecret, "canvasvault-dev-secret")),
		AccessTTL:  time.Duration(getenvInt("CANVASVAULT_ACCESS_TTL_SECONDS", 3600)) * time.Second,
		RefreshTTL: time.Duration(getenvInt("CANVASVAULT_REFRESH_TTL_SECONDS", 2592000)) * time.Second,

		SMTPHost:     getenv("SMTP_HOST", file.SMTPHost),
		SMTPPort:     getenv("SMTP_PORT", firstNonBlank(file.SMTPPort, "587")),
		SMTPUsername: getenv("SMTP_USERNAME", file.SMTPUsername),
		SMTPPassword: getenv("SMTP_PASSWORD", file.SMTPPassword),
		SMTPFrom:     getenv("SMTP_FROM", file.SMTPFrom),
		SMTPFromName: getenv("SMTP_FROM_NAME", firstNonBlank(file.SMTPFromName, "canvasvault")),
		AppURL:       getenv("CANVASVAULT_APP_URL", firstNonBlank(file.AppURL, "http://localhost:3000")),

		SearchReindexInterval: time.Duration(getenvInt("CANVASVAULT_SEARCH_REINDEX_SECONDS", 900)) * time.Second,
	}
	if os.Getenv("CANVASVAULT_ACCESS_TTL_SECONDS") == "" && file.AccessTTL > 0 {
		cfg.AccessTTL = file.AccessTTL
	}
	if os.Getenv("CANVASVAULT_REFRESH_TTL_SECONDS") == "" && file.RefreshTTL > 0 {
		cfg.RefreshTTL = file.RefreshTTL
	}
	if os.Getenv("CANVASVAULT_SEARCH_REINDEX_SECONDS") == "" && file.SearchReindexInterval > 0 {
		cfg.SearchReindexInterval = file.SearchReindexInterval
	}
	if cfg.SearchReindexInterval < 0 {
		cfg.SearchReindexInterval = 0
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
