package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	yaml "gopkg.in/yaml.v2"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix("GUOMEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Bind all possible env vars so viper knows to look for them
	v.BindEnv("proxy.host")
	v.BindEnv("proxy.port")
	v.BindEnv("auth.snapshot_path")
	v.BindEnv("auth.refresh_interval")
	v.BindEnv("logging.level")
	v.BindEnv("logging.format")
	v.BindEnv("observability.address")

	return &Loader{v: v}
}

// Load loads configuration from file and environment variables.
func (l *Loader) Load(configPath string) (*Config, error) {
	// Load from config file if specified
	if configPath != "" {
		if err := l.loadFile(configPath); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	} else {
		// Try default locations
		l.tryDefaultLocations()
	}

	// Start from the defaults so keys absent from every source keep their
	// default values, including booleans that default to true
	cfg := Default()

	// Unmarshal to config struct (environment variables override file)
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Fill in defaults for any missing values
	cfg.ApplyDefaults()

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads a specific config file.
func (l *Loader) loadFile(path string) error {
	l.v.SetConfigFile(path)
	return l.v.ReadInConfig()
}

// tryDefaultLocations attempts to load config from default locations.
func (l *Loader) tryDefaultLocations() {
	l.v.SetConfigName("guomen")
	l.v.SetConfigType("yaml")
	l.v.AddConfigPath(".")
	l.v.AddConfigPath("./configs")
	l.v.AddConfigPath("/etc/guomen")
	l.v.AddConfigPath("$HOME/.guomen")
	// Ignore errors - use defaults if no config file found
	l.v.ReadInConfig()
}

// BindFlags binds command-line flags to viper keys.
func (l *Loader) BindFlags(flags *pflag.FlagSet) {
	if flags == nil {
		return
	}

	if f := flags.Lookup("port"); f != nil {
		l.v.BindPFlag("proxy.port", f)
	}
	if f := flags.Lookup("host"); f != nil {
		l.v.BindPFlag("proxy.host", f)
	}
	if f := flags.Lookup("snapshot"); f != nil {
		l.v.BindPFlag("auth.snapshot_path", f)
	}
	if f := flags.Lookup("log-level"); f != nil {
		l.v.BindPFlag("logging.level", f)
	}
	if f := flags.Lookup("metrics"); f != nil {
		l.v.BindPFlag("observability.enabled", f)
	}
}

// LoadWithFlags loads configuration and applies command-line flags.
func LoadWithFlags(configPath string, flags *pflag.FlagSet) (*Config, error) {
	loader := NewLoader()
	loader.BindFlags(flags)
	return loader.Load(configPath)
}

// WriteDefault writes a starter configuration file with default values.
// Existing files are not overwritten.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}

	out, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	return os.WriteFile(path, out, 0644)
}
