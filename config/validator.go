package config

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// ValidationError holds multiple validation errors.
type ValidationError struct {
	Errors []error
}

func (e *ValidationError) Error() string {
	var msgs []string
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return "config validation failed:\n  - " + strings.Join(msgs, "\n  - ")
}

// Validate validates ProxyConfig.
func (c *ProxyConfig) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("proxy.port: must be between 1 and 65535, got %d", c.Port))
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// Validate validates BackendConfig.
func (c *BackendConfig) Validate() error {
	var errs []error

	if c.Host == "" {
		errs = append(errs, fmt.Errorf("backends.host: must not be empty"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("backends.port: must be between 1 and 65535, got %d", c.Port))
	}
	if c.User == "" {
		errs = append(errs, fmt.Errorf("backends.user: must not be empty"))
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// Validate validates AuthConfig.
func (c *AuthConfig) Validate() error {
	var errs []error

	if c.ConnectTimeout < 0 {
		errs = append(errs, fmt.Errorf("auth.connect_timeout: must be non-negative, got %v", c.ConnectTimeout))
	}
	if c.ReadTimeout < 0 {
		errs = append(errs, fmt.Errorf("auth.read_timeout: must be non-negative, got %v", c.ReadTimeout))
	}
	if c.WriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("auth.write_timeout: must be non-negative, got %v", c.WriteTimeout))
	}
	if c.RefreshInterval < 0 {
		errs = append(errs, fmt.Errorf("auth.refresh_interval: must be non-negative, got %v", c.RefreshInterval))
	}
	if c.DNSCacheSize < 0 {
		errs = append(errs, fmt.Errorf("auth.dns_cache_size: must be non-negative, got %d", c.DNSCacheSize))
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// Validate validates LoggingConfig.
func (c *LoggingConfig) Validate() error {
	var errs []error

	if c.Level != "" {
		if _, err := logrus.ParseLevel(c.Level); err != nil {
			errs = append(errs, fmt.Errorf("logging.level: %q is not a valid level", c.Level))
		}
	}
	if c.Format != "" && c.Format != "json" && c.Format != "text" {
		errs = append(errs, fmt.Errorf("logging.format: must be json or text, got %q", c.Format))
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}
