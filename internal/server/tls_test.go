// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"testing"

	"codeberg.org/oliverandrich/qr-registration/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withPorts(t *testing.T, available bool) {
	t.Helper()
	orig := portCheck
	portCheck = func(int) bool { return available }
	t.Cleanup(func() { portCheck = orig })
}

func TestResolveTLSMode(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		mode     string
		certFile string
		email    string
		ports    bool
		expected TLSMode
	}{
		{"explicit off", "example.com", "off", "", "", true, TLSModeOff},
		{"explicit acme", "localhost", "acme", "", "", true, TLSModeACME},
		{"explicit manual", "localhost", "MANUAL", "", "", true, TLSModeManual},
		{"auto localhost", "localhost", "auto", "", "a@example.com", true, TLSModeOff},
		{"auto cert files", "example.com", "", "cert.pem", "", true, TLSModeManual},
		{"auto acme", "example.com", "auto", "", "a@example.com", true, TLSModeACME},
		{"auto ip address", "10.0.0.1", "auto", "", "a@example.com", true, TLSModeOff},
		{"auto no email", "example.com", "auto", "", "", true, TLSModeOff},
		{"auto ports busy", "example.com", "auto", "", "a@example.com", false, TLSModeOff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withPorts(t, tt.ports)
			cfg := &config.Config{
				Server: config.ServerConfig{Host: tt.host},
				TLS: config.TLSConfig{
					Mode:     tt.mode,
					CertFile: tt.certFile,
					KeyFile:  tt.certFile,
					Email:    tt.email,
				},
			}
			assert.Equal(t, tt.expected, resolveTLSMode(cfg))
		})
	}
}

func TestSetupTLS_Off(t *testing.T) {
	result, err := SetupTLS(&config.Config{TLS: config.TLSConfig{Mode: "off"}})

	require.NoError(t, err)
	assert.Equal(t, TLSModeOff, result.Mode)
	assert.Nil(t, result.TLSConfig)
}

func TestSetupTLS_ACMERequiresEmail(t *testing.T) {
	withPorts(t, true)

	_, err := SetupTLS(&config.Config{
		Server: config.ServerConfig{Host: "example.com", Port: 443},
		TLS:    config.TLSConfig{Mode: "acme"},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "TLS_EMAIL")
}

func TestSetupTLS_ACMEPortsBusy(t *testing.T) {
	withPorts(t, false)

	_, err := SetupTLS(&config.Config{
		Server: config.ServerConfig{Host: "example.com", Port: 443},
		TLS:    config.TLSConfig{Mode: "acme", Email: "a@example.com"},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "port 80")
}

func TestSetupTLS_ACME(t *testing.T) {
	withPorts(t, true)

	result, err := SetupTLS(&config.Config{
		Server: config.ServerConfig{Host: "example.com", Port: 443},
		TLS:    config.TLSConfig{Mode: "acme", Email: "a@example.com", CertDir: t.TempDir()},
	})

	require.NoError(t, err)
	assert.Equal(t, TLSModeACME, result.Mode)
	assert.NotNil(t, result.CertManager)
	assert.NotNil(t, result.HTTPHandler)
	assert.NotNil(t, result.TLSConfig)
}

func TestSetupTLS_ManualMissingFiles(t *testing.T) {
	_, err := SetupTLS(&config.Config{TLS: config.TLSConfig{Mode: "manual"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cert-file and key-file")

	_, err = SetupTLS(&config.Config{TLS: config.TLSConfig{
		Mode:     "manual",
		CertFile: "/nonexistent/cert.pem",
		KeyFile:  "/nonexistent/key.pem",
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load certificate")
}
