package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds all node configuration.
type Config struct {
	// Server Configuration
	HTTPPort string

	// CometBFT Configuration
	CometHome string

	// Database Configuration
	DatabaseHost string
	DatabasePort string
	DatabaseUser string
	DatabasePass string
	DatabaseName string

	// Initial admin user written at chain initialization
	AdminName    string
	AdminAddress string
}

// LoadConfig loads configuration from environment variables with defaults.
func LoadConfig() *Config {
	v := viper.New()
	v.SetEnvPrefix("FRESACHAIN")
	v.AutomaticEnv()

	v.SetDefault("HTTP_PORT", "5000")
	v.SetDefault("CMT_HOME", "./node-config/node0")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASS", "postgrespassword")
	v.SetDefault("DB_NAME", "fresachain")
	v.SetDefault("ADMIN_NAME", "Administrador")
	v.SetDefault("ADMIN_ADDRESS", "0x0000000000000000000000000000000000000001")

	return &Config{
		HTTPPort:     v.GetString("HTTP_PORT"),
		CometHome:    v.GetString("CMT_HOME"),
		DatabaseHost: v.GetString("DB_HOST"),
		DatabasePort: v.GetString("DB_PORT"),
		DatabaseUser: v.GetString("DB_USER"),
		DatabasePass: v.GetString("DB_PASS"),
		DatabaseName: v.GetString("DB_NAME"),
		AdminName:    v.GetString("ADMIN_NAME"),
		AdminAddress: v.GetString("ADMIN_ADDRESS"),
	}
}

// GetDSN returns the PostgreSQL connection string.
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DatabaseHost,
		c.DatabasePort,
		c.DatabaseUser,
		c.DatabasePass,
		c.DatabaseName,
	)
}

// Validate checks if required configuration is present.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("FRESACHAIN_HTTP_PORT is required")
	}
	if c.CometHome == "" {
		return fmt.Errorf("FRESACHAIN_CMT_HOME is required")
	}
	if c.AdminAddress == "" {
		return fmt.Errorf("FRESACHAIN_ADMIN_ADDRESS is required")
	}
	return nil
}
