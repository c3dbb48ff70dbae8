package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	apiBaseURLKey = "api_base_url"
	apiTimeoutKey = "api_timeout"
)

type Backend struct {
	v *viper.Viper
}

var _ BackendConfig = Backend{}

// GetAPIBaseURL returns the identity backend root without a trailing slash.
func (b Backend) GetAPIBaseURL() string {
	return strings.TrimRight(b.v.GetString(apiBaseURLKey), "/")
}

func (b Backend) GetAPITimeout() time.Duration {
	timeout := b.v.GetDuration(apiTimeoutKey)
	if timeout <= 0 {
		return 10 * time.Second
	}
	return timeout
}
