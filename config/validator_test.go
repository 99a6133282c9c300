package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidatePort(t *testing.T) {
	tests := []struct {
		name    string
		port    int
		wantErr bool
	}{
		{"valid port 4006", 4006, false},
		{"valid port 1", 1, false},
		{"valid port 65535", 65535, false},
		{"invalid port 0", 0, true},
		{"invalid port -1", -1, true},
		{"invalid port 70000", 70000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := ProxyConfig{Port: tt.port}
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateBackend(t *testing.T) {
	cfg := BackendConfig{Host: "db1", Port: 3306, User: "svc"}
	require.NoError(t, cfg.Validate())

	cfg.User = ""
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "backends.user")
}

func TestValidateAuthTimeouts(t *testing.T) {
	cfg := AuthConfig{ConnectTimeout: -1}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "connect_timeout")
}

func TestValidateLogging(t *testing.T) {
	cfg := LoggingConfig{Level: "verbose"}
	require.Error(t, cfg.Validate())

	cfg = LoggingConfig{Level: "debug", Format: "xml"}
	require.Error(t, cfg.Validate())

	cfg = LoggingConfig{Level: "debug", Format: "json"}
	require.NoError(t, cfg.Validate())
}
