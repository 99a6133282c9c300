package config

import (
	"time"

	"github.com/turtacn/guomen/common/constants"
)

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		Proxy: ProxyConfig{
			Name:            "default",
			Host:            "0.0.0.0",
			Port:            4006,
			ShutdownTimeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			ConnectTimeout:       constants.DefaultConnectTimeout,
			ReadTimeout:          constants.DefaultReadTimeout,
			WriteTimeout:         constants.DefaultWriteTimeout,
			SkipPermissionChecks: false,
			StripDbEsc:           true,
			EnableRoot:           false,
			UsersFromAll:         false,
			HostnameFallback:     true,
			DNSCacheSize:         constants.DefaultDNSCacheSize,
			RefreshInterval:      constants.DefaultRefreshInterval,
			SnapshotPath:         constants.DefaultSnapshotPath,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Observability: ObservabilityConfig{
			Enabled:     true,
			Address:     constants.DefaultObservabilityAddress,
			MetricsPath: constants.DefaultMetricsPath,
			EnablePprof: false,
		},
		Audit: AuditConfig{
			Enabled:  false,
			FilePath: "./audit.log",
			Async:    true,
		},
	}
}

// ApplyDefaults fills in missing configuration values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := Default()

	if c.Proxy.Name == "" {
		c.Proxy.Name = defaults.Proxy.Name
	}
	if c.Proxy.Host == "" {
		c.Proxy.Host = defaults.Proxy.Host
	}
	if c.Proxy.Port == 0 {
		c.Proxy.Port = defaults.Proxy.Port
	}
	if c.Proxy.ShutdownTimeout == 0 {
		c.Proxy.ShutdownTimeout = defaults.Proxy.ShutdownTimeout
	}

	for i := range c.Backends {
		if c.Backends[i].Port == 0 {
			c.Backends[i].Port = constants.DefaultMySQLPort
		}
	}

	if c.Auth.ConnectTimeout == 0 {
		c.Auth.ConnectTimeout = defaults.Auth.ConnectTimeout
	}
	if c.Auth.ReadTimeout == 0 {
		c.Auth.ReadTimeout = defaults.Auth.ReadTimeout
	}
	if c.Auth.WriteTimeout == 0 {
		c.Auth.WriteTimeout = defaults.Auth.WriteTimeout
	}
	if c.Auth.RefreshInterval == 0 {
		c.Auth.RefreshInterval = defaults.Auth.RefreshInterval
	}
	if c.Auth.SnapshotPath == "" {
		c.Auth.SnapshotPath = defaults.Auth.SnapshotPath
	}
	if c.Auth.DNSCacheSize == 0 {
		c.Auth.DNSCacheSize = defaults.Auth.DNSCacheSize
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
	}

	if c.Observability.Address == "" {
		c.Observability.Address = defaults.Observability.Address
	}
	if c.Observability.MetricsPath == "" {
		c.Observability.MetricsPath = defaults.Observability.MetricsPath
	}

	if c.Audit.FilePath == "" {
		c.Audit.FilePath = defaults.Audit.FilePath
	}
}
