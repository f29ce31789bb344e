/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"crosschain-lending-go/internal/models"

	"github.com/shopspring/decimal"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	server, err := loadServer()
	if err != nil {
		return nil, err
	}

	pricing, err := loadPricing()
	if err != nil {
		return nil, err
	}

	chains, err := loadChains()
	if err != nil {
		return nil, err
	}

	policy, err := LoadPolicy(getEnvString("POLICY_FILE", ""))
	if err != nil {
		return nil, err
	}

	jobs, err := loadJobs(policy.GracePeriod)
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "lending.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Server:  server,
		Pricing: pricing,
		Chains:  chains,
		Jobs:    jobs,
		Policy:  policy,
	}, nil
}

func loadServer() (models.ServerConfig, error) {
	readTimeout, err := getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	if err != nil {
		return models.ServerConfig{}, err
	}

	writeTimeout, err := getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return models.ServerConfig{}, err
	}

	shutdownTimeout, err := getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return models.ServerConfig{}, err
	}

	return models.ServerConfig{
		ListenAddress:   getEnvString("SERVER_LISTEN_ADDRESS", ":8080"),
		AllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS"),
		ReadTimeout:     readTimeout,
		WriteTimeout:    writeTimeout,
		ShutdownTimeout: shutdownTimeout,
		RateLimitRPS:    getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:  getEnvInt("RATE_LIMIT_BURST", 10),
		AllowStalePrice: getEnvBool("PRICE_ALLOW_STALE", false),
	}, nil
}

func loadPricing() (models.PricingConfig, error) {
	maxAge, err := getEnvDuration("PRICE_MAX_AGE", 5*time.Minute)
	if err != nil {
		return models.PricingConfig{}, err
	}

	timeout, err := getEnvDuration("PRICE_TIMEOUT", 10*time.Second)
	if err != nil {
		return models.PricingConfig{}, err
	}

	refreshEvery, err := getEnvDuration("PRICE_REFRESH_INTERVAL", time.Minute)
	if err != nil {
		return models.PricingConfig{}, err
	}

	staticETH, err := getEnvDecimal("STATIC_ETH_PRICE", decimal.NewFromInt(3000))
	if err != nil {
		return models.PricingConfig{}, err
	}

	staticNEAR, err := getEnvDecimal("STATIC_NEAR_PRICE", decimal.NewFromInt(5))
	if err != nil {
		return models.PricingConfig{}, err
	}

	source := strings.ToLower(getEnvString("PRICE_SOURCE", "coingecko"))
	if source != "coingecko" && source != "static" {
		return models.PricingConfig{}, fmt.Errorf("invalid PRICE_SOURCE %q: expected coingecko or static", source)
	}

	return models.PricingConfig{
		Source:       source,
		BaseURL:      getEnvString("PRICE_API_URL", "https://api.coingecko.com/api/v3"),
		APIKey:       getEnvString("PRICE_API_KEY", ""),
		MaxAge:       maxAge,
		Timeout:      timeout,
		RefreshEvery: refreshEvery,
		StaticETH:    staticETH,
		StaticNEAR:   staticNEAR,
	}, nil
}

func loadChains() (models.ChainsConfig, error) {
	rpcTimeout, err := getEnvDuration("CHAIN_RPC_TIMEOUT", 15*time.Second)
	if err != nil {
		return models.ChainsConfig{}, err
	}

	cfg := models.ChainsConfig{
		Verifier:            strings.ToLower(getEnvString("CHAIN_VERIFIER", "rpc")),
		EthRPCURL:           getEnvString("ETH_RPC_URL", ""),
		EthVaultAddress:     getEnvString("ETH_VAULT_ADDRESS", ""),
		EthConfirmations:    uint64(getEnvInt("ETH_CONFIRMATIONS", 12)),
		NearRPCURL:          getEnvString("NEAR_RPC_URL", "https://rpc.mainnet.near.org"),
		NearVaultAccount:    getEnvString("NEAR_VAULT_ACCOUNT", ""),
		RPCTimeout:          rpcTimeout,
		StaticTransfersFile: getEnvString("STATIC_TRANSFERS_FILE", ""),
	}

	if cfg.Verifier != "rpc" && cfg.Verifier != "static" {
		return models.ChainsConfig{}, fmt.Errorf("invalid CHAIN_VERIFIER %q: expected rpc or static", cfg.Verifier)
	}
	return cfg, nil
}

func loadJobs(gracePeriod time.Duration) (models.JobsConfig, error) {
	liquidationInterval, err := getEnvDuration("LIQUIDATION_POLL_INTERVAL", 5*time.Minute)
	if err != nil {
		return models.JobsConfig{}, err
	}

	reconcileInterval, err := getEnvDuration("RECONCILE_INTERVAL", 15*time.Minute)
	if err != nil {
		return models.JobsConfig{}, err
	}

	return models.JobsConfig{
		LiquidationEnabled:  gracePeriod > 0,
		LiquidationInterval: liquidationInterval,
		ReconcileInterval:   reconcileInterval,
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	if value := os.Getenv(key); value != "" {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, value, err)
		}
		return d, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
