package iotf

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
)

// TLSVersion is one of the protocol versions the client can pin.
type TLSVersion uint16

// Supported TLS versions.
const (
	TLSv10 TLSVersion = tls.VersionTLS10
	TLSv11 TLSVersion = tls.VersionTLS11
	TLSv12 TLSVersion = tls.VersionTLS12
	TLSv13 TLSVersion = tls.VersionTLS13
)

// DefaultTLSVersion is used when no version is configured.
const DefaultTLSVersion = TLSv12

var tlsVersionNames = map[string]TLSVersion{
	"tlsv1":            TLSv10,
	"tlsv1.0":          TLSv10,
	"1.0":              TLSv10,
	"protocol_tlsv1":   TLSv10,
	"tlsv1.1":          TLSv11,
	"1.1":              TLSv11,
	"protocol_tlsv1_1": TLSv11,
	"tlsv1.2":          TLSv12,
	"1.2":              TLSv12,
	"protocol_tlsv1_2": TLSv12,
	"tlsv1.3":          TLSv13,
	"1.3":              TLSv13,
	"protocol_tlsv1_3": TLSv13,
}

// ParseTLSVersion maps a configured version name to a TLSVersion.
//
// Accepted forms are "TLSv1.2", "1.2" and "PROTOCOL_TLSv1_2" (case
// insensitive) for 1.0 through 1.3. An empty name selects
// DefaultTLSVersion. Anything else is a ConfigurationInvalid error.
func ParseTLSVersion(name string) (TLSVersion, error) {
	if name == "" {
		return DefaultTLSVersion, nil
	}
	v, ok := tlsVersionNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, &Error{
			Kind:   ConfigurationInvalid,
			Reason: fmt.Sprintf("unsupported TLS version %q (supported: TLSv1, TLSv1.1, TLSv1.2, TLSv1.3)", name),
		}
	}
	return v, nil
}

// String returns the canonical name, e.g. "TLSv1.2".
func (v TLSVersion) String() string {
	switch v {
	case TLSv10:
		return "TLSv1"
	case TLSv11:
		return "TLSv1.1"
	case TLSv12:
		return "TLSv1.2"
	case TLSv13:
		return "TLSv1.3"
	default:
		return fmt.Sprintf("TLSVersion(%#04x)", uint16(v))
	}
}

// NewTLSConfig builds the client TLS configuration for address.
//
// The handshake is pinned to version. When address is under LegacyDomain
// and caFile is set, the CA bundle is loaded from caFile and used as the
// only trust root; otherwise the system roots apply.
func NewTLSConfig(address string, version TLSVersion, caFile string) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion: uint16(version),
		MaxVersion: uint16(version),
	}

	if caFile == "" || !IsLegacyAddress(address) {
		return cfg, nil
	}

	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, &Error{
			Kind:        ConfigurationInvalid,
			Reason:      fmt.Sprintf("reading CA file %s: %v", caFile, err),
			NestedError: err,
		}
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, &Error{
			Kind:   ConfigurationInvalid,
			Reason: fmt.Sprintf("CA file %s contains no PEM certificates", caFile),
		}
	}
	cfg.RootCAs = pool

	return cfg, nil
}
