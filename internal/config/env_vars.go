package config

import "time"

type EnvVars struct {
	v *Values
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.v.AppName
}

func (e EnvVars) GetEnv() string {
	if e.v.Env == "" {
		return "DEV"
	}
	return e.v.Env
}

// GetAPIBaseURL returns the base URL the Auth Service endpoints hang off
// (e.g. "https://inventory.example.com/api/v1"), without a trailing slash.
func (e EnvVars) GetAPIBaseURL() string {
	return e.v.APIBaseURL
}

func (e EnvVars) GetRequestTimeout() time.Duration {
	return e.v.RequestTimeout
}

func (e EnvVars) GetLogLevel() string {
	return e.v.LogLevel
}
