package config

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const envPrefix = "INVCTL_"

// Values is the raw configuration document. It is read from an optional YAML file
// and then overridden from the environment.
type Values struct {
	AppName        string        `yaml:"app_name" env:"INVCTL_APP_NAME" env-default:"Inventory Session"`
	Env            string        `yaml:"env" env:"ENV" env-default:"DEV"`
	APIBaseURL     string        `yaml:"api_base_url" env:"INVCTL_API_BASE_URL" env-default:"http://localhost:8000/api/v1"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"INVCTL_REQUEST_TIMEOUT" env-default:"15s"`
	LogLevel       string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	RenewalThreshold    time.Duration `yaml:"renewal_threshold" env:"INVCTL_RENEWAL_THRESHOLD" env-default:"5m"`
	MinRenewalDelay     time.Duration `yaml:"min_renewal_delay" env:"INVCTL_MIN_RENEWAL_DELAY" env-default:"1s"`
	SafetyCheckInterval time.Duration `yaml:"safety_check_interval" env:"INVCTL_SAFETY_CHECK_INTERVAL" env-default:"60s"`
	LoginPath           string        `yaml:"login_path" env:"INVCTL_LOGIN_PATH" env-default:"/login"`

	StorePath string `yaml:"store_path" env:"INVCTL_STORE_PATH" env-default:"./data/session.db"`
	StoreKey  string `yaml:"store_key" env:"INVCTL_STORE_KEY"`
}

func defaultValues() *Values {
	return &Values{
		AppName:             "Inventory Session",
		Env:                 "DEV",
		APIBaseURL:          "http://localhost:8000/api/v1",
		RequestTimeout:      15 * time.Second,
		LogLevel:            "info",
		RenewalThreshold:    5 * time.Minute,
		MinRenewalDelay:     time.Second,
		SafetyCheckInterval: 60 * time.Second,
		LoginPath:           "/login",
		StorePath:           "./data/session.db",
	}
}

// Load reads the YAML file at path when it exists, then applies the environment.
func Load(path string) (Config, error) {
	v := &Values{}
	if st, err := os.Stat(path); path != "" && err == nil && !st.IsDir() {
		if err := cleanenv.ReadConfig(path, v); err != nil {
			return nil, fmt.Errorf("config.Load read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(v); err != nil {
		return nil, fmt.Errorf("config.Load env: %w", err)
	}
	normalize(v)
	if err := Validate(v); err != nil {
		return nil, err
	}
	return newMainConfig(v), nil
}

func normalize(v *Values) {
	v.AppName = strings.TrimSpace(v.AppName)
	v.Env = strings.ToUpper(strings.TrimSpace(v.Env))
	v.APIBaseURL = strings.TrimRight(strings.TrimSpace(v.APIBaseURL), "/")
	v.LogLevel = strings.ToLower(strings.TrimSpace(v.LogLevel))
	v.LoginPath = strings.TrimSpace(v.LoginPath)
	if v.LoginPath != "" && !strings.HasPrefix(v.LoginPath, "/") {
		v.LoginPath = "/" + v.LoginPath
	}
	v.StorePath = strings.TrimSpace(v.StorePath)
	v.StoreKey = strings.TrimSpace(v.StoreKey)
}

// Validate rejects values the session client cannot run with.
func Validate(v *Values) error {
	if v == nil {
		return fmt.Errorf("config is nil")
	}
	u, err := url.Parse(v.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%sAPI_BASE_URL must be an absolute URL, got %q", envPrefix, v.APIBaseURL)
	}
	if v.RenewalThreshold <= 0 {
		return fmt.Errorf("renewal threshold must be positive")
	}
	if v.MinRenewalDelay <= 0 {
		return fmt.Errorf("minimum renewal delay must be positive")
	}
	if v.SafetyCheckInterval < time.Second {
		return fmt.Errorf("safety check interval must be at least 1s")
	}
	if v.LoginPath == "" {
		return fmt.Errorf("login path is required")
	}
	if v.StoreKey != "" {
		if _, err := decodeKey(v.StoreKey); err != nil {
			return err
		}
	}
	return nil
}

// decodeKey accepts a 32-byte key as hex or standard base64.
func decodeKey(s string) ([]byte, error) {
	if b, err := hex.DecodeString(s); err == nil && len(b) == 32 {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == 32 {
		return b, nil
	}
	return nil, fmt.Errorf("%sSTORE_KEY must be 32 bytes encoded as hex or base64", envPrefix)
}
