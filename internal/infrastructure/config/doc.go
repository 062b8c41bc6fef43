// Package config handles loading and validating the IoT client configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with IOTF_* environment variables
//   - Validation of required fields
//   - Default value handling (30s connect timeout, TLS 1.2, QoS 1)
//
// Security Considerations:
//   - Auth tokens should be set via IOTF_AUTH_TOKEN rather than the file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/device.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Platform.OrgID)
package config
