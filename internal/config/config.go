package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Constants for default values
const (
	defaultPort            = 3002
	defaultSQLitePath      = "/data/cloudshare.db"
	defaultShareBaseURL    = "https://cloudshare.example/s/"
	defaultStorageLimit    = 1 << 30 // 1 GiB
	defaultUploadFolder    = "uploads"
	defaultCleanupInterval = 60
)

// Asset host drivers
const (
	DriverCloudinary = "cloudinary"
	DriverS3         = "s3"
)

// Config represents the application configuration
type Config struct {
	Port            int       `mapstructure:"port"`
	BaseURL         string    `mapstructure:"base_url"`            // Public base URL of the API
	ShareBaseURL    string    `mapstructure:"share_base_url"`      // Prefix for generated share links
	SQLitePath      string    `mapstructure:"sqlite_path"`         // Metadata store location
	MaxSize         float64   `mapstructure:"max_size_mib"`        // Maximum upload size in MiB
	StorageLimit    int64     `mapstructure:"storage_limit_bytes"` // Per-user quota reported by stats
	CleanupEnabled  bool      `mapstructure:"cleanup_enabled"`     // Whether the global sweep runs
	CleanupInterval int       `mapstructure:"cleanup_interval_min"`
	JWTSecret       string    `mapstructure:"jwt_secret"` // HS256 secret shared with the identity provider
	AdminToken      string    `mapstructure:"admin_token"`
	AssetHost       AssetHost `mapstructure:"asset_host"`
}

// AssetHost configures the binary storage backend
type AssetHost struct {
	Driver       string `mapstructure:"driver"`
	CloudName    string `mapstructure:"cloud_name"`
	APIKey       string `mapstructure:"api_key"`
	APISecret    string `mapstructure:"api_secret"`
	UploadPreset string `mapstructure:"upload_preset"`
	Folder       string `mapstructure:"folder"`
	APIBase      string `mapstructure:"api_base"`
	DeliveryBase string `mapstructure:"delivery_base"`
	S3           S3     `mapstructure:"s3"`
}

// S3 holds settings for the S3-compatible driver
type S3 struct {
	Region        string `mapstructure:"region"`
	Endpoint      string `mapstructure:"endpoint"`
	Bucket        string `mapstructure:"bucket"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", defaultPort)
	v.SetDefault("base_url", "http://localhost:3002/")
	v.SetDefault("share_base_url", defaultShareBaseURL)
	v.SetDefault("sqlite_path", defaultSQLitePath)
	v.SetDefault("max_size_mib", 100.0)
	v.SetDefault("storage_limit_bytes", defaultStorageLimit)
	v.SetDefault("cleanup_enabled", true)
	v.SetDefault("cleanup_interval_min", defaultCleanupInterval)
	v.SetDefault("asset_host.driver", DriverCloudinary)
	v.SetDefault("asset_host.folder", defaultUploadFolder)
	v.SetDefault("asset_host.api_base", "https://api.cloudinary.com")
	v.SetDefault("asset_host.delivery_base", "https://res.cloudinary.com")
	v.SetDefault("asset_host.s3.region", "us-east-1")

	// Registered so CLOUDSHARE_* variables reach Unmarshal without a file entry
	for _, key := range []string{
		"jwt_secret", "admin_token",
		"asset_host.cloud_name", "asset_host.api_key", "asset_host.api_secret", "asset_host.upload_preset",
		"asset_host.s3.endpoint", "asset_host.s3.bucket", "asset_host.s3.access_key",
		"asset_host.s3.secret_key", "asset_host.s3.public_base_url",
	} {
		v.SetDefault(key, "")
	}
}

// LoadConfig loads a configuration from the YAML file at path. Values can be
// overridden with CLOUDSHARE_* environment variables.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("cloudshare")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the values that cannot be defaulted
func (c *Config) Validate() error {
	if c.MaxSize <= 0 {
		return errors.New("max_size_mib must be greater than 0")
	}
	if c.CleanupEnabled && c.CleanupInterval <= 0 {
		return errors.New("cleanup_interval_min must be greater than 0")
	}
	switch c.AssetHost.Driver {
	case DriverCloudinary, DriverS3:
	default:
		return fmt.Errorf("unknown asset_host.driver %q", c.AssetHost.Driver)
	}
	return nil
}

func (c *Config) MaxSizeToBytes() int64 {
	return int64(c.MaxSize * 1024 * 1024)
}

func (c *Config) CleanupIntervalDuration() time.Duration {
	return time.Duration(c.CleanupInterval) * time.Minute
}
