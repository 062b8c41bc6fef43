package iotf

import (
	"fmt"
	"strings"
)

// LegacyDomain is the original platform domain. Brokers under it are the
// only ones verified against the configured platform CA bundle.
const LegacyDomain = "internetofthings.ibmcloud.com"

// ResolveBrokerAddress returns the host the MQTT client should dial.
//
// An explicit brokerURL wins and orgID/domain are ignored. Otherwise the
// address is "{orgID}.messaging.{domain}". With neither available a
// ConfigurationInvalid error is returned.
//
// Example: ResolveBrokerAddress("x.com", "org1", "") returns
// "org1.messaging.x.com".
func ResolveBrokerAddress(domain, orgID, brokerURL string) (string, error) {
	if brokerURL != "" {
		return brokerURL, nil
	}
	if domain == "" || orgID == "" {
		return "", &Error{
			Kind:   ConfigurationInvalid,
			Reason: "No full broker URL given, so both domain and organisation must be specified",
		}
	}
	return fmt.Sprintf("%s.messaging.%s", orgID, domain), nil
}

// IsLegacyAddress reports whether address belongs to LegacyDomain.
func IsLegacyAddress(address string) bool {
	return strings.Contains(address, LegacyDomain)
}
