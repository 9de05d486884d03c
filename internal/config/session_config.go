package config

import "time"

type SessionConfig interface {
	GetRenewalThreshold() time.Duration
	GetMinRenewalDelay() time.Duration
	GetSafetyCheckInterval() time.Duration
	GetLoginPath() string
}

type Session struct {
	v *Values
}

var _ SessionConfig = Session{}

// GetRenewalThreshold is how long before access token expiry a renewal fires.
func (s Session) GetRenewalThreshold() time.Duration {
	return s.v.RenewalThreshold
}

// GetMinRenewalDelay clamps scheduled renewals so clock skew can't busy-loop.
func (s Session) GetMinRenewalDelay() time.Duration {
	return s.v.MinRenewalDelay
}

func (s Session) GetSafetyCheckInterval() time.Duration {
	return s.v.SafetyCheckInterval
}

func (s Session) GetLoginPath() string {
	return s.v.LoginPath
}
