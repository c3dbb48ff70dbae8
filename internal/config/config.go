package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "FARM"

type Config interface {
	EnvConfig
	BackendConfig
	StoreConfig
	GoogleConfig
	DevBackendConfig
}

type EnvConfig interface {
	GetEnv() string
	GetAppName() string
	GetDataFolder() string
}

type BackendConfig interface {
	GetAPIBaseURL() string
	GetAPITimeout() time.Duration
}

type mainConfig struct {
	EnvVars
	Backend
	Store
	Google
	DevBackend
}

// New loads configuration from FARM_* environment variables and an optional
// farm.yaml in the working directory or ./config.
func New() (Config, error) {
	v := viper.New()
	v.SetConfigName("farm")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("[config.New] read config file: %w", err)
		}
	}
	return FromViper(v), nil
}

// FromViper wires an existing viper instance, applying env binding and defaults.
func FromViper(v *viper.Viper) Config {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	return mainConfig{
		EnvVars:    EnvVars{v: v},
		Backend:    Backend{v: v},
		Store:      Store{v: v},
		Google:     Google{v: v},
		DevBackend: DevBackend{v: v},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(envKey, "DEV")
	v.SetDefault(appNameKey, "Farm Monitor")
	v.SetDefault(dataFolderKey, "./data")

	v.SetDefault(apiBaseURLKey, "http://localhost:8000")
	v.SetDefault(apiTimeoutKey, "10s")

	v.SetDefault(storeKindKey, StoreKindFile)
	v.SetDefault(redisAddrKey, "127.0.0.1:6379")
	v.SetDefault(redisDBKey, 0)

	v.SetDefault(devPortKey, "8000")
	v.SetDefault(devAccessTokenTTLKey, "15m")
	v.SetDefault(devRefreshTokenTTLKey, "168h") // 7 days
}
