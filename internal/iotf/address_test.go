package iotf

import (
	"errors"
	"testing"
)

func TestResolveBrokerAddress(t *testing.T) {
	tests := []struct {
		name      string
		domain    string
		orgID     string
		brokerURL string
		want      string
		wantErr   bool
	}{
		{
			name:   "composed from org and domain",
			domain: "x.com",
			orgID:  "org1",
			want:   "org1.messaging.x.com",
		},
		{
			name:      "explicit URL ignores org and domain",
			domain:    "x.com",
			orgID:     "org1",
			brokerURL: "broker.example.net",
			want:      "broker.example.net",
		},
		{
			name:      "explicit URL alone",
			brokerURL: "localhost",
			want:      "localhost",
		},
		{
			name:    "neither",
			wantErr: true,
		},
		{
			name:    "domain without org",
			domain:  "x.com",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveBrokerAddress(tt.domain, tt.orgID, tt.brokerURL)
			if tt.wantErr {
				if !errors.Is(err, ErrConfiguration) {
					t.Fatalf("error = %v, want ConfigurationInvalid", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveBrokerAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsLegacyAddress(t *testing.T) {
	if !IsLegacyAddress("org1.messaging.internetofthings.ibmcloud.com") {
		t.Error("legacy address not detected")
	}
	if IsLegacyAddress("org1.messaging.x.com") {
		t.Error("non-legacy address detected as legacy")
	}
}

func TestResolveCredentials(t *testing.T) {
	tests := []struct {
		method  string
		want    Credentials
		wantErr bool
	}{
		{method: "", want: Credentials{}},
		{method: "token", want: Credentials{Username: TokenAuthUsername, Password: "tok"}},
		{method: "apikey", want: Credentials{Username: "a-org1-key", Password: "tok"}},
		{method: "kerberos", wantErr: true},
	}

	for _, tt := range tests {
		t.Run("method="+tt.method, func(t *testing.T) {
			got, err := ResolveCredentials(tt.method, "a-org1-key", "tok")
			if tt.wantErr {
				var e *Error
				if !errors.As(err, &e) || e.Kind != UnsupportedAuthMethod || e.Method != tt.method {
					t.Fatalf("error = %v, want UnsupportedAuthMethod for %q", err, tt.method)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveCredentials() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
