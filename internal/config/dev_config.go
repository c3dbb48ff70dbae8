package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	devPortKey            = "dev_port"
	devSigningSecretKey   = "dev_signing_secret"
	devAccessTokenTTLKey  = "dev_access_token_ttl"
	devRefreshTokenTTLKey = "dev_refresh_token_ttl"
	devAdminEmailsKey     = "dev_admin_emails"
)

type DevBackendConfig interface {
	GetDevPort() string
	GetDevSigningSecret() string
	GetDevAccessTokenTTL() time.Duration
	GetDevRefreshTokenTTL() time.Duration
	GetDevAdminEmails() []string
}

type DevBackend struct {
	v *viper.Viper
}

var _ DevBackendConfig = DevBackend{}

func (d DevBackend) GetDevPort() string {
	port := d.v.GetString(devPortKey)
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (d DevBackend) GetDevSigningSecret() string {
	return d.v.GetString(devSigningSecretKey)
}

func (d DevBackend) GetDevAccessTokenTTL() time.Duration {
	return d.v.GetDuration(devAccessTokenTTLKey)
}

func (d DevBackend) GetDevRefreshTokenTTL() time.Duration {
	return d.v.GetDuration(devRefreshTokenTTLKey)
}

// GetDevAdminEmails lists accounts the dev backend marks as admins. Accepts a
// YAML list or a comma separated env value.
func (d DevBackend) GetDevAdminEmails() []string {
	var emails []string
	for _, entry := range d.v.GetStringSlice(devAdminEmailsKey) {
		for _, e := range strings.Split(entry, ",") {
			if e = strings.TrimSpace(e); e != "" {
				emails = append(emails, e)
			}
		}
	}
	return emails
}
