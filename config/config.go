package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Sandbox SandboxConfig `mapstructure:"sandbox"`
	Policy  PolicyConfig  `mapstructure:"policy"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// SandboxConfig holds sandbox execution configuration
type SandboxConfig struct {
	Engine         string `mapstructure:"engine"`
	BaseDir        string `mapstructure:"base_dir"`
	MountPath      string `mapstructure:"mount_path"`
	Image          string `mapstructure:"image"`
	ImageTag       string `mapstructure:"image_tag"`
	RunAsUser      string `mapstructure:"run_as_user"`
	MemoryMB       int    `mapstructure:"memory_mb"`
	CPUQuota       int    `mapstructure:"cpu_quota"`
	TimeoutSec     int    `mapstructure:"timeout_sec"`
	TmpfsSizeMB    int    `mapstructure:"tmpfs_size_mb"`
	NetworkEnabled bool   `mapstructure:"network_enabled"`
}

// PolicyConfig holds import policy configuration.
//
// Modules maps a top-level module name to whether importing it is permitted.
// Entries override or extend the built-in allow-list, so a deployment can
// both grant extra modules and revoke default ones from the config file.
type PolicyConfig struct {
	Modules        map[string]bool `mapstructure:"modules"`
	RejectRelative bool            `mapstructure:"reject_relative"`
}

// FullImage returns the image reference including its tag
func (c *SandboxConfig) FullImage() string {
	return fmt.Sprintf("%s:%s", c.Image, c.ImageTag)
}

// New loads and validates the application configuration
func New() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set default values
	viper.SetDefault("server.transport", "stdio")
	viper.SetDefault("server.http_port", 8080)

	viper.SetDefault("logging.mode", "production")
	viper.SetDefault("logging.level", "info")

	viper.SetDefault("sandbox.engine", "docker")
	viper.SetDefault("sandbox.base_dir", "/tmp/sandboxes")
	viper.SetDefault("sandbox.mount_path", "/sandbox")
	viper.SetDefault("sandbox.image", "pybox-python-sandbox")
	viper.SetDefault("sandbox.image_tag", "latest")
	viper.SetDefault("sandbox.run_as_user", "sandbox")
	viper.SetDefault("sandbox.memory_mb", 512)
	viper.SetDefault("sandbox.cpu_quota", 100000)
	viper.SetDefault("sandbox.timeout_sec", 30)
	viper.SetDefault("sandbox.tmpfs_size_mb", 100)
	viper.SetDefault("sandbox.network_enabled", false)

	viper.SetDefault("policy.reject_relative", true)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// Validate ensures the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Sandbox.Engine != "docker" && c.Sandbox.Engine != "podman" {
		return fmt.Errorf("unsupported sandbox.engine: %s, must be 'docker' or 'podman'", c.Sandbox.Engine)
	}

	if c.Sandbox.BaseDir == "" {
		return fmt.Errorf("sandbox.base_dir must not be empty")
	}

	if c.Sandbox.MountPath == "" {
		return fmt.Errorf("sandbox.mount_path must not be empty")
	}

	if c.Sandbox.Image == "" {
		return fmt.Errorf("sandbox.image must not be empty")
	}

	if c.Sandbox.MemoryMB <= 0 {
		return fmt.Errorf("sandbox.memory_mb must be positive, got: %d", c.Sandbox.MemoryMB)
	}

	if c.Sandbox.CPUQuota <= 0 {
		return fmt.Errorf("sandbox.cpu_quota must be positive, got: %d", c.Sandbox.CPUQuota)
	}

	if c.Sandbox.TimeoutSec <= 0 {
		return fmt.Errorf("sandbox.timeout_sec must be positive, got: %d", c.Sandbox.TimeoutSec)
	}

	if c.Sandbox.TmpfsSizeMB <= 0 {
		return fmt.Errorf("sandbox.tmpfs_size_mb must be positive, got: %d", c.Sandbox.TmpfsSizeMB)
	}

	return nil
}

// GetTimeout returns the execution timeout as a duration
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutSec) * time.Second
}
