// Package config provides XML-based configuration with environment
// overrides, auto-created with defaults on first run.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// AppConfig is the root configuration structure.
type AppConfig struct {
	XMLName xml.Name `xml:"CSVTransformer"`

	Server     ServerConfig     `xml:"Server"`
	Storage    StorageConfig    `xml:"Storage"`
	Processing ProcessingConfig `xml:"Processing"`
	Redis      RedisConfig      `xml:"Redis"`
	Logging    LoggingConfig    `xml:"Logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains data directory and database file settings.
type StorageConfig struct {
	DataDirectory       string `xml:"DataDirectory"`
	UploadsDirectory    string `xml:"UploadsDirectory"`
	MetadataFile        string `xml:"MetadataFile"`
	ContentFile         string `xml:"ContentFile"`
	ValidationRulesFile string `xml:"ValidationRulesFile"`
}

// ProcessingConfig bounds the ingestion pipeline and the preview cache.
type ProcessingConfig struct {
	MaxAttempts            int `xml:"MaxAttempts"`
	RetryDelaySeconds      int `xml:"RetryDelaySeconds"`
	ProgressRowInterval    int `xml:"ProgressRowInterval"`
	PreviewCacheTTLMinutes int `xml:"PreviewCacheTTLMinutes"`
	CleanupIntervalMinutes int `xml:"CleanupIntervalMinutes"`
	LookupTimeoutSeconds   int `xml:"LookupTimeoutSeconds"`
}

// RedisConfig selects the status store backend. An empty host keeps the
// in-memory store.
type RedisConfig struct {
	Host string `xml:"Host"`
	Port int    `xml:"Port"`
	DB   int    `xml:"DB"`
}

// LoggingConfig contains log settings.
type LoggingConfig struct {
	Level                string `xml:"Level"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8080,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "128M",
		},
		Storage: StorageConfig{
			DataDirectory:       "./data",
			UploadsDirectory:    "./data/uploads",
			MetadataFile:        "./data/transformer.db",
			ContentFile:         "./data/content.duckdb",
			ValidationRulesFile: "./data/upload-rules.yaml",
		},
		Processing: ProcessingConfig{
			MaxAttempts:            3,
			RetryDelaySeconds:      60,
			ProgressRowInterval:    1000,
			PreviewCacheTTLMinutes: 15,
			CleanupIntervalMinutes: 5,
			LookupTimeoutSeconds:   30,
		},
		Redis: RedisConfig{
			Host: "",
			Port: 6379,
			DB:   3,
		},
		Logging: LoggingConfig{
			Level:                "info",
			EnableRequestLogging: true,
		},
	}
}

// LoadConfig loads the configuration from an XML file, creating it with
// defaults when absent.
func LoadConfig(configPath string) (*AppConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("creating default config: %w", err)
		}
		cfg.applyEnvironmentOverrides()
		cfg.resolvePaths(filepath.Dir(configPath))
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &AppConfig{}
	if err := xml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.resolvePaths(filepath.Dir(configPath))

	return cfg, nil
}

// Save writes the configuration as XML.
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- CSV Transformer Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	if err := os.WriteFile(configPath, append(header, output...), 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// applyEnvironmentOverrides lets environment variables override file
// values.
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		c.Redis.Host = host
	}
	if port := os.Getenv("REDIS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Redis.Port = p
		}
	}
}

// resolvePaths converts relative paths to absolute based on the config
// file location.
func (c *AppConfig) resolvePaths(configDir string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
	resolve(&c.Storage.DataDirectory)
	resolve(&c.Storage.UploadsDirectory)
	resolve(&c.Storage.MetadataFile)
	resolve(&c.Storage.ContentFile)
	resolve(&c.Storage.ValidationRulesFile)
}

// GetServerAddr returns the server bind address.
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// RedisAddr returns the Redis address, empty when Redis is disabled.
func (c *AppConfig) RedisAddr() string {
	if c.Redis.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// EnsureDirectories creates all necessary directories.
func (c *AppConfig) EnsureDirectories() error {
	for _, dir := range []string{c.Storage.DataDirectory, c.Storage.UploadsDirectory} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	return nil
}
