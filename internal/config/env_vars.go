package config

import "github.com/spf13/viper"

const (
	envKey        = "env"
	appNameKey    = "app_name"
	dataFolderKey = "data_folder"
)

type EnvVars struct {
	v *viper.Viper
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetEnv() string {
	return e.v.GetString(envKey)
}

func (e EnvVars) GetAppName() string {
	return e.v.GetString(appNameKey)
}

// GetDataFolder is where durable client state (the token file) lives.
func (e EnvVars) GetDataFolder() string {
	return e.v.GetString(dataFolderKey)
}
