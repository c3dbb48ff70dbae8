package config

import "github.com/spf13/viper"

const googleClientIDKey = "google_client_id"

type GoogleConfig interface {
	GetGoogleClientID() string
}

type Google struct {
	v *viper.Viper
}

var _ GoogleConfig = Google{}

// GetGoogleClientID is the OAuth client the app's Google ID tokens are issued
// for. Local verification is skipped when it is empty.
func (g Google) GetGoogleClientID() string {
	return g.v.GetString(googleClientIDKey)
}
