package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFrom_Defaults(t *testing.T) {
	path := writeConfig(t, "environment: staging\n")

	cfg, err := NewLoader().LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, 5*time.Second, cfg.Sniper.ScanInterval)
	assert.Equal(t, 10*time.Second, cfg.CopyTrade.ScanInterval)
	assert.Equal(t, 10, cfg.CopyTrade.ActivityLimit)
	assert.Equal(t, 5*time.Minute, cfg.Safety.CacheTTL)
	assert.Equal(t, 70, cfg.Safety.VerifiedMinScore)
	assert.Equal(t, WrappedSOLMint, cfg.Solana.ReferenceMint)
	assert.Equal(t, "dry-run", cfg.Executor.Mode)
}

func TestLoadFrom_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
environment: staging
sniper:
  scan_interval: 2s
copy_trade:
  activity_limit: 25
executor:
  mode: http
  endpoint: http://executor.local/swap
  user_wallets:
    alice: 9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM
`)
	t.Setenv("AUTOTRADER_SAFETY_CACHE_TTL", "1m")
	t.Setenv("AUTOTRADER_LOG_LEVEL", "debug")

	cfg, err := NewLoader().LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Sniper.ScanInterval)
	assert.Equal(t, 25, cfg.CopyTrade.ActivityLimit)
	assert.Equal(t, "http", cfg.Executor.Mode)
	assert.Equal(t, "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", cfg.Executor.UserWallets["alice"])
	assert.Equal(t, time.Minute, cfg.Safety.CacheTTL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "http executor without endpoint",
			body: "environment: staging\nexecutor:\n  mode: http\n",
			want: "endpoint is required",
		},
		{
			name: "bad reference mint",
			body: "environment: staging\nsolana:\n  reference_mint: not-an-address\n",
			want: "must be a valid Solana address",
		},
		{
			name: "unknown environment",
			body: "environment: moon\n",
			want: "must be one of",
		},
		{
			name: "database enabled without name",
			body: "environment: staging\ndatabase:\n  enabled: true\n  name: \"\"\n",
			want: "Config.Database.Name",
		},
		{
			name: "production requires jwt secret",
			body: "environment: production\n",
			want: "jwt_secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().LoadFrom(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", d.DSN())
}

func TestValidateConfigFile(t *testing.T) {
	require.NoError(t, ValidateConfigFile(filepath.Join("..", "..", "configs", "config.development.yaml")))
	assert.Error(t, ValidateConfigFile(writeConfig(t, "environment: moon\n")))
}
