package resolver

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSFTPConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  SFTPConfig
		wantErr bool
	}{
		{
			name:   "password auth",
			config: SFTPConfig{Host: "manifests.internal", User: "reef", Password: "secret"},
		},
		{
			name:   "key auth",
			config: SFTPConfig{Host: "manifests.internal", User: "reef", PrivateKeyPath: "/etc/reef/id_ed25519"},
		},
		{
			name:    "missing host",
			config:  SFTPConfig{User: "reef", Password: "secret"},
			wantErr: true,
		},
		{
			name:    "missing user",
			config:  SFTPConfig{Host: "manifests.internal", Password: "secret"},
			wantErr: true,
		},
		{
			name:    "missing auth",
			config:  SFTPConfig{Host: "manifests.internal", User: "reef"},
			wantErr: true,
		},
		{
			name:    "invalid port",
			config:  SFTPConfig{Host: "manifests.internal", User: "reef", Password: "secret", Port: 70000},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSFTPConfigAddress(t *testing.T) {
	c := SFTPConfig{Host: "manifests.internal"}
	if got := c.Address(); got != "manifests.internal:22" {
		t.Errorf("Address() = %q, want default port 22", got)
	}

	c.Port = 2222
	if got := c.Address(); got != "manifests.internal:2222" {
		t.Errorf("Address() = %q", got)
	}
}

func TestSFTPConfigBuildClientConfig(t *testing.T) {
	c := SFTPConfig{
		Host:           "manifests.internal",
		User:           "reef",
		Password:       "secret",
		ConnectTimeout: 3 * time.Second,
	}

	clientConfig, err := c.buildClientConfig()
	if err != nil {
		t.Fatalf("buildClientConfig: %v", err)
	}
	if clientConfig.User != "reef" {
		t.Errorf("user = %q", clientConfig.User)
	}
	if len(clientConfig.Auth) != 1 {
		t.Errorf("auth methods = %d, want 1", len(clientConfig.Auth))
	}
	if clientConfig.Timeout != 3*time.Second {
		t.Errorf("timeout = %v", clientConfig.Timeout)
	}
}

func TestSFTPRemotePath(t *testing.T) {
	r, err := NewSFTPResolver(&SFTPConfig{
		Host:     "manifests.internal",
		User:     "reef",
		Password: "secret",
		Root:     "/srv/manifests",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSFTPResolver: %v", err)
	}

	got, err := r.remotePath("sftp://apps/web.cue")
	if err != nil {
		t.Fatalf("remotePath: %v", err)
	}
	if got != "/srv/manifests/apps/web.cue" {
		t.Errorf("remotePath = %q", got)
	}

	// Paths are anchored under the root even with traversal segments.
	got, err = r.remotePath("sftp://../escape.cue")
	if err != nil {
		t.Fatalf("remotePath: %v", err)
	}
	if got != "/srv/manifests/escape.cue" {
		t.Errorf("remotePath = %q, traversal not neutralized", got)
	}

	if _, err := r.remotePath("cue://apps/web.cue"); err == nil {
		t.Error("expected error for foreign scheme")
	}
}

func TestNewSFTPResolverRejectsInvalidConfig(t *testing.T) {
	if _, err := NewSFTPResolver(&SFTPConfig{Host: "h"}, zerolog.Nop()); err == nil {
		t.Fatal("expected error for incomplete config")
	}
}
