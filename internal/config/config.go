package config

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	EncryptionKey     string        `mapstructure:"ENCRYPTION_KEY"`
	JWTSigningKey     string        `mapstructure:"JWT_SIGNING_KEY"`
	ExtractorURL      string        `mapstructure:"EXTRACTOR_URL"`
	ExtractionTimeout time.Duration `mapstructure:"EXTRACTION_TIMEOUT"`
	AuditQueueSize    int           `mapstructure:"AUDIT_QUEUE_SIZE"`
	RollingSectionCap int           `mapstructure:"ROLLING_SECTION_CAP"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("EXTRACTOR_URL", "http://localhost:9009/extract")
	v.SetDefault("EXTRACTION_TIMEOUT", "15s")
	v.SetDefault("AUDIT_QUEUE_SIZE", 512)
	v.SetDefault("ROLLING_SECTION_CAP", 10)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("ENCRYPTION_KEY")
	v.BindEnv("JWT_SIGNING_KEY")
	v.BindEnv("EXTRACTOR_URL")
	v.BindEnv("EXTRACTION_TIMEOUT")
	v.BindEnv("AUDIT_QUEUE_SIZE")
	v.BindEnv("ROLLING_SECTION_CAP")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. The encryption key
// protects every clinical field at rest, so outside development it is
// mandatory and must decode to exactly 32 bytes.
func (c *Config) Validate() error {
	if !c.IsDev() && c.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required outside development")
	}
	if c.EncryptionKey != "" {
		keyBytes, err := hex.DecodeString(c.EncryptionKey)
		if err != nil {
			return fmt.Errorf("ENCRYPTION_KEY is not valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("ENCRYPTION_KEY must decode to 32 bytes (64 hex characters), got %d", len(keyBytes))
		}
	}
	if !c.IsDev() && c.JWTSigningKey == "" {
		return fmt.Errorf("JWT_SIGNING_KEY is required outside development")
	}
	if c.ExtractorURL == "" {
		return fmt.Errorf("EXTRACTOR_URL is required")
	}
	if c.ExtractionTimeout <= 0 {
		return fmt.Errorf("EXTRACTION_TIMEOUT must be positive, got %s", c.ExtractionTimeout)
	}
	if c.RollingSectionCap <= 0 {
		return fmt.Errorf("ROLLING_SECTION_CAP must be positive, got %d", c.RollingSectionCap)
	}
	return nil
}

// EncryptionKeyBytes decodes the hex-encoded key for the encryptor.
func (c *Config) EncryptionKeyBytes() ([]byte, error) {
	keyBytes, err := hex.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("decode ENCRYPTION_KEY: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must decode to 32 bytes, got %d", len(keyBytes))
	}
	return keyBytes, nil
}
