package iotf

// Authentication methods understood by the platform.
const (
	AuthMethodToken  = "token"
	AuthMethodAPIKey = "apikey"
)

// TokenAuthUsername is the fixed MQTT username for device token auth.
const TokenAuthUsername = "use-token-auth"

// Credentials is the username/password pair handed to the transport.
type Credentials struct {
	Username string
	Password string
}

// Anonymous reports whether no username is set.
func (c Credentials) Anonymous() bool {
	return c.Username == ""
}

// ResolveCredentials maps an auth method to transport credentials.
//
//   - "token": devices and gateways; username is TokenAuthUsername, password is token
//   - "apikey": applications; username is key, password is token
//   - "": anonymous (quickstart organisation)
//
// Any other method yields an UnsupportedAuthMethod error.
func ResolveCredentials(method, key, token string) (Credentials, error) {
	switch method {
	case "":
		return Credentials{}, nil
	case AuthMethodToken:
		return Credentials{Username: TokenAuthUsername, Password: token}, nil
	case AuthMethodAPIKey:
		return Credentials{Username: key, Password: token}, nil
	default:
		return Credentials{}, &Error{Kind: UnsupportedAuthMethod, Method: method}
	}
}
