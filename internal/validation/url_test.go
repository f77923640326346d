package validation

import (
	"strings"
	"testing"
)

func TestValidateServerURL_Schemes(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr string
	}{
		{"https allowed", "https://lunar.example.com", ""},
		{"http allowed", "http://lunar.example.com", ""},
		{"ftp rejected", "ftp://lunar.example.com", "invalid URL scheme"},
		{"file rejected", "file:///etc/passwd", "invalid URL scheme"},
		{"empty", "", "URL cannot be empty"},
		{"no hostname", "https://", "hostname"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServerURL(tt.url)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateServerURL(%q) = %v, want nil", tt.url, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateServerURL(%q) = %v, want error containing %q", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestValidateServerURL_BlocksLocalhost(t *testing.T) {
	SetAllowPrivate(false)
	t.Cleanup(func() { SetAllowPrivate(false) })

	urls := []string{
		"http://localhost:8080",
		"http://127.0.0.1",
		"http://[::1]:3000",
		"http://app.localhost",
	}
	for _, u := range urls {
		if err := ValidateServerURL(u); err == nil {
			t.Errorf("ValidateServerURL(%q) = nil, want localhost rejection", u)
		}
	}
}

func TestValidateServerURL_AllowPrivateEnablesLocalhost(t *testing.T) {
	SetAllowPrivate(true)
	t.Cleanup(func() { SetAllowPrivate(false) })

	if err := ValidateServerURL("http://127.0.0.1:8080"); err != nil {
		t.Errorf("ValidateServerURL with AllowPrivate = %v, want nil", err)
	}
	if err := ValidateServerURL("http://192.168.1.10"); err != nil {
		t.Errorf("ValidateServerURL private IP with AllowPrivate = %v, want nil", err)
	}
}

func TestValidateServerURL_PrivateIPs(t *testing.T) {
	SetAllowPrivate(false)
	t.Cleanup(func() { SetAllowPrivate(false) })

	urls := []string{
		"http://10.0.0.1",
		"http://172.16.0.1",
		"http://192.168.1.1",
		"http://169.254.1.1",
	}
	for _, u := range urls {
		if err := ValidateServerURL(u); err == nil {
			t.Errorf("ValidateServerURL(%q) = nil, want private IP rejection", u)
		}
	}
}

func TestValidateServerURL_CloudMetadataAlwaysBlocked(t *testing.T) {
	SetAllowPrivate(true)
	t.Cleanup(func() { SetAllowPrivate(false) })

	urls := []string{
		"http://169.254.169.254/latest/meta-data",
		"http://metadata.google.internal/computeMetadata/v1",
		"http://metadata",
		"http://instance-data",
	}
	for _, u := range urls {
		if err := ValidateServerURL(u); err == nil {
			t.Errorf("ValidateServerURL(%q) = nil, want metadata rejection even with AllowPrivate", u)
		}
	}
}

func TestAllowPrivateEnabled(t *testing.T) {
	SetAllowPrivate(true)
	if !AllowPrivateEnabled() {
		t.Error("AllowPrivateEnabled() = false after SetAllowPrivate(true)")
	}
	SetAllowPrivate(false)
	if AllowPrivateEnabled() {
		t.Error("AllowPrivateEnabled() = true after SetAllowPrivate(false)")
	}
}
