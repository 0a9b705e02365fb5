// Package config loads the service configuration from YAML, fills defaults and applies
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type ServerConfig struct {
	Port        int      `yaml:"port"`
	Mode        string   `yaml:"mode"` // gin mode: debug, release, test
	CORSOrigins []string `yaml:"corsOrigins"`
}

type G2BConfig struct {
	BaseURL     string        `yaml:"baseURL"`
	ServiceKey  string        `yaml:"serviceKey"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"maxAttempts"`
	BackoffStep time.Duration `yaml:"backoffStep"`
}

type DownloadConfig struct {
	Dir           string        `yaml:"dir"`
	BatchSize     int           `yaml:"batchSize"`
	BatchDelay    time.Duration `yaml:"batchDelay"`
	MaxAttempts   int           `yaml:"maxAttempts"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxFileSizeMB int64         `yaml:"maxFileSizeMB"`
	MaxZipMB      int64         `yaml:"maxZipMB"`
}

type CacheConfig struct {
	MaxEntries int           `yaml:"maxEntries"`
	TTL        time.Duration `yaml:"ttl"`
}

type MongoConfig struct {
	Host       string `yaml:"host"`
	DBName     string `yaml:"dbname"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	AuthSource string `yaml:"authSource"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	UseSSL    bool   `yaml:"useSSL"`
}

type CleanupConfig struct {
	Enabled       *bool  `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	OlderThanDays int    `yaml:"olderThanDays"`
}

// On reports whether the maintenance job runs; it is on unless disabled explicitly.
func (c CleanupConfig) On() bool {
	return c.Enabled == nil || *c.Enabled
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development *bool  `yaml:"development"`
}

// IsDevelopment defaults to true.
func (c LogConfig) IsDevelopment() bool {
	return c.Development == nil || *c.Development
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	G2B      G2BConfig      `yaml:"g2b"`
	Download DownloadConfig `yaml:"download"`
	Cache    CacheConfig    `yaml:"cache"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Minio    MinioConfig    `yaml:"minio"`
	Cleanup  CleanupConfig  `yaml:"cleanup"`
	Log      LogConfig      `yaml:"log"`
}

// LoadConfig reads path, applies defaults, then environment overrides. A missing file is not
// an error.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	setDefault(&c.Server.Port, 8080)
	setDefault(&c.Server.Mode, "debug")
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}

	setDefault(&c.G2B.BaseURL, "http://apis.data.go.kr/1230000/BidPublicInfoService")
	setDefault(&c.G2B.Timeout, 30*time.Second)
	setDefault(&c.G2B.MaxAttempts, 5)
	setDefault(&c.G2B.BackoffStep, time.Second)

	setDefault(&c.Download.Dir, "downloads")
	setDefault(&c.Download.BatchSize, 5)
	setDefault(&c.Download.BatchDelay, 500*time.Millisecond)
	setDefault(&c.Download.MaxAttempts, 3)
	setDefault(&c.Download.RetryDelay, time.Second)
	setDefault(&c.Download.Timeout, 60*time.Second)
	setDefault(&c.Download.MaxFileSizeMB, 100)
	setDefault(&c.Download.MaxZipMB, 500)

	setDefault(&c.Cache.MaxEntries, 100)
	setDefault(&c.Cache.TTL, 24*time.Hour)

	setDefault(&c.Mongo.DBName, "bid_fetch")
	setDefault(&c.Mongo.AuthSource, "admin")

	setDefault(&c.Minio.Bucket, "bid-attachments")

	setDefault(&c.Cleanup.Schedule, "@every 6h")
	setDefault(&c.Cleanup.OlderThanDays, 7)

	setDefault(&c.Log.Level, "info")
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"G2B_SERVICE_KEY":  &c.G2B.ServiceKey,
		"G2B_BASE_URL":     &c.G2B.BaseURL,
		"DOWNLOADS_DIR":    &c.Download.Dir,
		"GIN_MODE":         &c.Server.Mode,
		"MONGO_HOST":       &c.Mongo.Host,
		"MONGO_DB":         &c.Mongo.DBName,
		"MONGO_USERNAME":   &c.Mongo.Username,
		"MONGO_PASSWORD":   &c.Mongo.Password,
		"MINIO_ENDPOINT":   &c.Minio.Endpoint,
		"MINIO_ACCESS_KEY": &c.Minio.AccessKey,
		"MINIO_SECRET_KEY": &c.Minio.SecretKey,
		"MINIO_BUCKET":     &c.Minio.Bucket,
		"LOG_LEVEL":        &c.Log.Level,
	}
	for key, field := range str {
		if v, ok := lookup(key); ok && v != "" {
			*field = v
		}
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid PORT %q", v)
		}
		c.Server.Port = port
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}
