package config

import "github.com/spf13/viper"

const (
	storeKindKey       = "store"
	storePassphraseKey = "store_passphrase"
	redisAddrKey       = "redis_addr"
	redisPasswordKey   = "redis_password"
	redisDBKey         = "redis_db"
)

const (
	StoreKindFile  = "file"
	StoreKindRedis = "redis"
)

type StoreConfig interface {
	GetStoreKind() string
	GetStorePassphrase() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

type Store struct {
	v *viper.Viper
}

var _ StoreConfig = Store{}

func (s Store) GetStoreKind() string {
	return s.v.GetString(storeKindKey)
}

// GetStorePassphrase enables sealing of the token file when non-empty.
func (s Store) GetStorePassphrase() string {
	return s.v.GetString(storePassphraseKey)
}

func (s Store) GetRedisAddr() string {
	return s.v.GetString(redisAddrKey)
}

func (s Store) GetRedisPassword() string {
	return s.v.GetString(redisPasswordKey)
}

func (s Store) GetRedisDB() int {
	return s.v.GetInt(redisDBKey)
}
