// Package config handles centralized configuration management for the proxy.
package config

import (
	"time"
)

// Config holds the entire configuration for the proxy.
type Config struct {
	Proxy         ProxyConfig         `yaml:"proxy" mapstructure:"proxy"`
	Backends      []BackendConfig     `yaml:"backends" mapstructure:"backends"`
	Auth          AuthConfig          `yaml:"auth" mapstructure:"auth"`
	Logging       LoggingConfig       `yaml:"logging" mapstructure:"logging"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Audit         AuditConfig         `yaml:"audit" mapstructure:"audit"`
}

// ProxyConfig holds listener-level configuration.
type ProxyConfig struct {
	Name            string        `yaml:"name" mapstructure:"name"`
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// BackendConfig describes one MySQL backend server the proxy fronts.
type BackendConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
}

// AuthConfig holds the user catalog configuration.
type AuthConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`

	// SkipPermissionChecks disables the sanity queries against the mysql
	// grant tables before the first load.
	SkipPermissionChecks bool `yaml:"skip_permission_checks" mapstructure:"skip_permission_checks"`
	// StripDbEsc removes escape characters from database names read from
	// mysql.db, where literal wildcard characters are stored escaped.
	StripDbEsc bool `yaml:"strip_db_esc" mapstructure:"strip_db_esc"`
	// EnableRoot includes the root account in the loaded user set.
	EnableRoot bool `yaml:"enable_root" mapstructure:"enable_root"`
	// UsersFromAll unions users from every backend instead of stopping at
	// the first server that returned any.
	UsersFromAll bool `yaml:"users_from_all" mapstructure:"users_from_all"`
	// HostnameFallback enables the reverse-DNS retry when a client address
	// does not match any numeric or wildcard host pattern.
	HostnameFallback bool `yaml:"hostname_fallback" mapstructure:"hostname_fallback"`
	// DNSCacheSize bounds the reverse-DNS cache. The listener builds no cache
	// when it is zero, but ApplyDefaults replaces zero with the default size.
	DNSCacheSize int `yaml:"dns_cache_size" mapstructure:"dns_cache_size"`

	RefreshInterval time.Duration `yaml:"refresh_interval" mapstructure:"refresh_interval"`
	SnapshotPath    string        `yaml:"snapshot_path" mapstructure:"snapshot_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json, text
}

// ObservabilityConfig holds metrics/health endpoint configuration.
type ObservabilityConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	Address     string `yaml:"address" mapstructure:"address"`
	MetricsPath string `yaml:"metrics_path" mapstructure:"metrics_path"`
	EnablePprof bool   `yaml:"enable_pprof" mapstructure:"enable_pprof"`
}

// AuditConfig holds audit logging configuration.
type AuditConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	FilePath string `yaml:"file_path" mapstructure:"file_path"`
	Async    bool   `yaml:"async" mapstructure:"async"`
}

// Validate validates the entire configuration.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Proxy.Validate(); err != nil {
		errs = append(errs, err)
	}
	for i := range c.Backends {
		if err := c.Backends[i].Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.Auth.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}
