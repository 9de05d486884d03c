package config

import "time"

type Config interface {
	EnvConfig
	SessionConfig
	StorageConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetAPIBaseURL() string
	GetRequestTimeout() time.Duration
	GetLogLevel() string
}

type mainConfig struct {
	EnvVars
	Session
	Storage
}

var _ Config = mainConfig{}

// New returns a Config built from defaults only.
func New() Config {
	return newMainConfig(defaultValues())
}

func newMainConfig(v *Values) mainConfig {
	return mainConfig{
		EnvVars: EnvVars{v: v},
		Session: Session{v: v},
		Storage: Storage{v: v},
	}
}
