package vault

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smc-signal-engine/config"
)

func TestDisabledClientLeavesConfig(t *testing.T) {
	c, err := NewClient(config.VaultConfig{Enabled: false})
	require.NoError(t, err)
	assert.False(t, c.IsEnabled())

	cfg := &config.Config{}
	cfg.DatabaseConfig.Password = "from-file"
	require.NoError(t, c.Apply(context.Background(), cfg))
	assert.Equal(t, "from-file", cfg.DatabaseConfig.Password)
	assert.NoError(t, c.Health(context.Background()))
}

func TestMockClientApply(t *testing.T) {
	c := NewMockClient(InfraSecrets{RedisPassword: "r3dis"})
	cfg := &config.Config{}
	cfg.DatabaseConfig.Password = "keep"

	require.NoError(t, c.Apply(context.Background(), cfg))
	assert.Equal(t, "keep", cfg.DatabaseConfig.Password, "empty secrets do not overwrite")
	assert.Equal(t, "r3dis", cfg.RedisConfig.Password)
}

func TestGetInfraSecretsFromKV(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path != "/v1/secret/data/signal-engine/infra" || r.Header.Get("X-Vault-Token") != "t0ken" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"data":{"database_password":"pg-pass","redis_password":"redis-pass"},"metadata":{"version":3}}}`))
	}))
	defer srv.Close()

	c, err := NewClient(config.VaultConfig{
		Enabled:    true,
		Address:    srv.URL,
		Token:      "t0ken",
		MountPath:  "secret",
		SecretPath: "signal-engine/infra",
	})
	require.NoError(t, err)

	s, err := c.GetInfraSecrets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pg-pass", s.DatabasePassword)
	assert.Equal(t, "redis-pass", s.RedisPassword)

	cfg := &config.Config{}
	require.NoError(t, c.Apply(context.Background(), cfg))
	assert.Equal(t, "pg-pass", cfg.DatabaseConfig.Password)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "second read served from cache")
}

func TestGetInfraSecretsMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewClient(config.VaultConfig{Enabled: true, Address: srv.URL, Token: "x", MountPath: "secret", SecretPath: "none"})
	require.NoError(t, err)

	_, err = c.GetInfraSecrets(context.Background())
	assert.Error(t, err)
}
