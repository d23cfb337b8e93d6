// internal/config/config.go
package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	APIPort        string `mapstructure:"API_PORT"`
	GinMode        string `mapstructure:"GIN_MODE"`
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`

	JWTSecret     string        `mapstructure:"JWT_SECRET"`
	JWTExpiration time.Duration `mapstructure:"JWT_EXPIRATION_MINUTES"`

	// Seed account created at startup when the user store is empty.
	AdminUser     string `mapstructure:"ADMIN_USER"`
	AdminPassword string `mapstructure:"ADMIN_PASSWORD"`

	// SSH transport timeouts. Command timeout bounds one remote execution;
	// probe timeout bounds liveness checks and the post-connect verification.
	SSHConnectTimeout time.Duration `mapstructure:"SSH_CONNECT_TIMEOUT_SECONDS"`
	SSHCommandTimeout time.Duration `mapstructure:"SSH_COMMAND_TIMEOUT_SECONDS"`
	SSHProbeTimeout   time.Duration `mapstructure:"SSH_PROBE_TIMEOUT_SECONDS"`

	// Inactivity sweep for idle SSH sessions.
	SessionSweepInterval time.Duration `mapstructure:"SESSION_SWEEP_INTERVAL_SECONDS"`
	SessionIdleTimeout   time.Duration `mapstructure:"SESSION_IDLE_TIMEOUT_MINUTES"`

	// StoreBackend selects the persistence implementation: "memory" or "sqlite".
	StoreBackend string `mapstructure:"STORE_BACKEND"`
	SQLitePath   string `mapstructure:"SQLITE_PATH"`

	// Optional YAML file with extra dangerous-command patterns.
	DenyListFile string `mapstructure:"DENYLIST_FILE"`

	// Auto-approve low-risk read-only steps at submission, recorded with
	// "system" as the approver.
	AutoApproveSafeSteps bool `mapstructure:"AUTO_APPROVE_SAFE_STEPS"`

	// --- TLS ---
	TLSEnable   bool   `mapstructure:"TLS_ENABLE"`
	TLSCertFile string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile  string `mapstructure:"TLS_KEY_FILE"`
}

var AppConfig Config

func LoadConfig() error {
	viper.SetConfigFile(".env") // Look for .env file
	viper.AutomaticEnv()        // Read from environment variables as fallback/override

	// --- Set Defaults ---
	viper.SetDefault("API_PORT", "8080")
	viper.SetDefault("GIN_MODE", "release")
	viper.SetDefault("TRUSTED_PROXIES", "nil")
	viper.SetDefault("LOG_LEVEL", "info")

	viper.SetDefault("JWT_SECRET", "default_secret_change_me")
	viper.SetDefault("JWT_EXPIRATION_MINUTES", 60)

	viper.SetDefault("ADMIN_USER", "admin")
	viper.SetDefault("ADMIN_PASSWORD", "")

	viper.SetDefault("SSH_CONNECT_TIMEOUT_SECONDS", 10)
	viper.SetDefault("SSH_COMMAND_TIMEOUT_SECONDS", 300)
	viper.SetDefault("SSH_PROBE_TIMEOUT_SECONDS", 5)

	viper.SetDefault("SESSION_SWEEP_INTERVAL_SECONDS", 60)
	viper.SetDefault("SESSION_IDLE_TIMEOUT_MINUTES", 60)

	viper.SetDefault("STORE_BACKEND", "memory")
	viper.SetDefault("SQLITE_PATH", "ops-agent.db")
	viper.SetDefault("DENYLIST_FILE", "")
	viper.SetDefault("AUTO_APPROVE_SAFE_STEPS", true)

	viper.SetDefault("TLS_ENABLE", false)
	viper.SetDefault("TLS_CERT_FILE", "")
	viper.SetDefault("TLS_KEY_FILE", "")

	err := viper.ReadInConfig()
	// Ignore if .env file not found, rely on defaults/env vars
	if _, ok := err.(viper.ConfigFileNotFoundError); !ok && err != nil {
		return err
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return err
	}

	// Convert plain numbers to durations
	AppConfig.JWTExpiration = AppConfig.JWTExpiration * time.Minute
	AppConfig.SSHConnectTimeout = AppConfig.SSHConnectTimeout * time.Second
	AppConfig.SSHCommandTimeout = AppConfig.SSHCommandTimeout * time.Second
	AppConfig.SSHProbeTimeout = AppConfig.SSHProbeTimeout * time.Second
	AppConfig.SessionSweepInterval = AppConfig.SessionSweepInterval * time.Second
	AppConfig.SessionIdleTimeout = AppConfig.SessionIdleTimeout * time.Minute

	return nil
}
