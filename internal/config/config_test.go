package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-inventory-session/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	c := config.New()
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, 5*time.Minute, c.GetRenewalThreshold())
	require.Equal(t, time.Second, c.GetMinRenewalDelay())
	require.Equal(t, 60*time.Second, c.GetSafetyCheckInterval())
	require.Equal(t, "/login", c.GetLoginPath())
	require.Nil(t, c.GetStoreKey())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "invctl.yaml")
	doc := strings.Join([]string{
		"api_base_url: https://inventory.example.com/api/v1/",
		"renewal_threshold: 2m",
		"login_path: signin",
		"store_key: " + strings.Repeat("ab", 32),
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	c, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://inventory.example.com/api/v1", c.GetAPIBaseURL())
	require.Equal(t, 2*time.Minute, c.GetRenewalThreshold())
	require.Equal(t, "/signin", c.GetLoginPath())
	require.Len(t, c.GetStoreKey(), 32)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("INVCTL_API_BASE_URL", "http://api.local:9000")
	t.Setenv("INVCTL_SAFETY_CHECK_INTERVAL", "30s")

	c, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, "http://api.local:9000", c.GetAPIBaseURL())
	require.Equal(t, 30*time.Second, c.GetSafetyCheckInterval())
}

func TestValidate(t *testing.T) {
	t.Run("relative api url", func(t *testing.T) {
		t.Setenv("INVCTL_API_BASE_URL", "/api")
		_, err := config.Load("")
		require.Error(t, err)
		require.Contains(t, err.Error(), "absolute URL")
	})

	t.Run("short store key", func(t *testing.T) {
		t.Setenv("INVCTL_STORE_KEY", "abcd")
		_, err := config.Load("")
		require.Error(t, err)
		require.Contains(t, err.Error(), "32 bytes")
	})
}
