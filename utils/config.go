package utils

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	mysqldriver "github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v2"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// EnvPrefix is prepended to every environment variable read into the Config.
const EnvPrefix = "LABELAPI_"

type ServerConfig struct {
	Port        string   `yaml:"port" env:"PORT"`
	// PublicURL is where clients reach this server, used to build signed blob URLs.
	PublicURL   string   `yaml:"public_url" env:"PUBLIC_URL"`
	Debug       bool     `yaml:"debug" env:"DEBUG"`
	CorsOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver" env:"DRIVER"`
	Filename string `yaml:"filename" env:"FILENAME"`
	Host     string `yaml:"host" env:"HOST"`
	Port     string `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	Name     string `yaml:"name" env:"NAME"`
}

type StorageConfig struct {
	Root              string `yaml:"root" env:"ROOT"`
	SigningKey        string `yaml:"signing_key" env:"SIGNING_KEY"`
	ImageSetContainer string `yaml:"imageset_container" env:"IMAGESET_CONTAINER"`
	ImageSetFolder    string `yaml:"imageset_folder" env:"IMAGESET_FOLDER"`
	ImageReadTTLDays  int    `yaml:"image_read_ttl_days" env:"IMAGE_READ_TTL_DAYS"`
	UploadTTLDays     int    `yaml:"upload_ttl_days" env:"UPLOAD_TTL_DAYS"`
}

type ExportConfig struct {
	Root string `yaml:"root" env:"ROOT"`
}

type JobsConfig struct {
	Workers   int `yaml:"workers" env:"WORKERS"`
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
	Database DatabaseConfig `yaml:"database" envPrefix:"DATABASE_"`
	Storage  StorageConfig  `yaml:"storage" envPrefix:"STORAGE_"`
	Export   ExportConfig   `yaml:"export" envPrefix:"EXPORT_"`
	Jobs     JobsConfig     `yaml:"jobs" envPrefix:"JOBS_"`
	Log      LogConfig      `yaml:"log" envPrefix:"LOG_"`
}

// DefaultConfig Settings used for everything the config file and environment leave out
func DefaultConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080", PublicURL: "http://localhost:8080", CorsOrigins: []string{"*"}},
		Database: DatabaseConfig{Driver: "sqlite", Filename: "labelapi.db", Port: "3306"},
		Storage: StorageConfig{
			Root:              "data/blobs",
			ImageSetContainer: "images",
			ImageSetFolder:    "uploads",
			ImageReadTTLDays:  7,
			UploadTTLDays:     7,
		},
		Export: ExportConfig{Root: "data/datasets"},
		Jobs:   JobsConfig{Workers: 2, QueueSize: 64},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// NewConfig Build the config from the defaults, the YAML file at configPath when given,
// and LABELAPI_ environment variables, in that order.
func NewConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config: %w", err)
		}
		defer file.Close()

		if err := yaml.NewDecoder(file).Decode(config); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config %s: %w", configPath, err)
		}
	}

	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if config.Storage.SigningKey == "" {
		return nil, errors.New("storage.signing_key must be set")
	}
	return config, nil
}

// ImageReadTTL Lifetime of signed image download URLs
func (s StorageConfig) ImageReadTTL() time.Duration {
	return time.Duration(s.ImageReadTTLDays) * 24 * time.Hour
}

// UploadTTL Lifetime of signed dropbox URLs
func (s StorageConfig) UploadTTL() time.Duration {
	return time.Duration(s.UploadTTLDays) * 24 * time.Hour
}

// DSN Data source name for the mysql driver
func (d DatabaseConfig) DSN() string {
	cfg := mysqldriver.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(d.Host, d.Port)
	cfg.DBName = d.Name
	cfg.ParseTime = true
	// Status changes compare affected rows, which must count matched rows.
	cfg.ClientFoundRows = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// Dialector Open the configured database driver
func (d DatabaseConfig) Dialector() (gorm.Dialector, error) {
	switch d.Driver {
	case "", "sqlite":
		return sqlite.Open(d.Filename), nil
	case "mysql":
		return mysql.Open(d.DSN()), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", d.Driver)
	}
}
