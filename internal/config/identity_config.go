package config

type IdentityConfig interface {
	GetIdentityIssuerURL() string
	GetIdentityClientID() string
	GetCredentialPath() string
}

type Identity struct{}

var _ IdentityConfig = Identity{}

// GetIdentityIssuerURL is the OIDC issuer of the identity service, used for discovery.
func (Identity) GetIdentityIssuerURL() string {
	return GetEnv("IDENTITY_ISSUER_URL", "http://localhost:8080")
}

func (Identity) GetIdentityClientID() string {
	return GetEnv("IDENTITY_CLIENT_ID", "admin-dashboard")
}

// GetCredentialPath is relative to the issuer URL.
func (Identity) GetCredentialPath() string {
	return GetEnv("IDENTITY_CREDENTIAL_PATH", "/user")
}
