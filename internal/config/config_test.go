package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "rpc", cfg.Chains.Verifier)
	assert.Equal(t, uint64(12), cfg.Chains.EthConfirmations)
	assert.Equal(t, "lending.db", cfg.Database.Path)
	assert.Equal(t, ":8080", cfg.Server.ListenAddress)
	assert.Equal(t, 5*time.Minute, cfg.Pricing.MaxAge)
	assert.Equal(t, "coingecko", cfg.Pricing.Source)
	assert.False(t, cfg.Server.AllowStalePrice)
	assert.Equal(t, 12, cfg.Policy.LoanTermMonths)
	assert.True(t, cfg.Policy.MinCollateralRatio.Equal(decimal.RequireFromString("1.5")))
	assert.False(t, cfg.Jobs.LiquidationEnabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CHAIN_VERIFIER", "static")
	t.Setenv("PRICE_SOURCE", "static")
	t.Setenv("STATIC_ETH_PRICE", "2500.5")
	t.Setenv("PRICE_ALLOW_STALE", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000, https://app.example.com")
	t.Setenv("LIQUIDATION_GRACE_PERIOD", "72h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "static", cfg.Pricing.Source)
	assert.True(t, cfg.Pricing.StaticETH.Equal(decimal.RequireFromString("2500.5")))
	assert.True(t, cfg.Server.AllowStalePrice)
	assert.Equal(t, []string{"http://localhost:3000", "https://app.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 72*time.Hour, cfg.Policy.GracePeriod)
	assert.True(t, cfg.Jobs.LiquidationEnabled)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown verifier", map[string]string{"CHAIN_VERIFIER": "mock"}},
		{"bad duration", map[string]string{"CHAIN_VERIFIER": "static", "PRICE_MAX_AGE": "five minutes"}},
		{"bad price source", map[string]string{"CHAIN_VERIFIER": "static", "PRICE_SOURCE": "chainlink"}},
		{"bad decimal", map[string]string{"CHAIN_VERIFIER": "static", "STATIC_NEAR_PRICE": "cheap"}},
		{"missing policy file", map[string]string{"CHAIN_VERIFIER": "static", "POLICY_FILE": "/nonexistent/policy.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadPolicy_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
interest_rate: "0.09"
loan_term_months: 6
grace_period: 48h
enforce_liquidity: false
`), 0o600))
	t.Setenv("LOAN_TERM_MONTHS", "3")

	policy, err := LoadPolicy(path)
	require.NoError(t, err)

	assert.True(t, policy.InterestRate.Equal(decimal.RequireFromString("0.09")))
	assert.Equal(t, 3, policy.LoanTermMonths)
	assert.Equal(t, 48*time.Hour, policy.GracePeriod)
	assert.False(t, policy.EnforceLiquidity)
	assert.True(t, policy.LendAPY.Equal(decimal.RequireFromString("0.05")), "absent keys keep defaults")
}

func TestLoadPolicy_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero term", "loan_term_months: 0\n"},
		{"negative rate", "interest_rate: \"-0.01\"\n"},
		{"zero collateral ratio", "min_collateral_ratio: \"0\"\n"},
		{"tolerance of one", "repayment_tolerance: \"1\"\n"},
		{"not a decimal", "lend_apy: lots\n"},
		{"bad grace period", "grace_period: soon\n"},
		{"not yaml", "interest_rate: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "policy.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))
			_, err := LoadPolicy(path)
			assert.Error(t, err)
		})
	}
}
