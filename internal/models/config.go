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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Pricing  PricingConfig
	Chains   ChainsConfig
	Jobs     JobsConfig
	Policy   LendingPolicy
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	ListenAddress   string
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    float64
	RateLimitBurst  int
	AllowStalePrice bool
}

// PricingConfig selects and tunes the price source
type PricingConfig struct {
	Source       string // coingecko or static
	BaseURL      string
	APIKey       string
	MaxAge       time.Duration
	Timeout      time.Duration
	RefreshEvery time.Duration
	StaticETH    decimal.Decimal
	StaticNEAR   decimal.Decimal
}

// ChainsConfig holds node endpoints and vault addresses used to verify transfers
type ChainsConfig struct {
	Verifier         string // rpc or static
	EthRPCURL        string
	EthVaultAddress  string
	EthConfirmations uint64
	NearRPCURL       string
	NearVaultAccount string
	RPCTimeout       time.Duration

	// StaticTransfersFile seeds the static verifier
	StaticTransfersFile string
}

// JobsConfig drives the background workers started next to the HTTP server
type JobsConfig struct {
	// LiquidationEnabled is false when no grace period is configured
	LiquidationEnabled  bool
	LiquidationInterval time.Duration
	ReconcileInterval   time.Duration
}

// LendingPolicy holds the protocol constants applied when loans are created
type LendingPolicy struct {
	InterestRate       decimal.Decimal // annual
	LendAPY            decimal.Decimal
	LoanTermMonths     int
	MinCollateralRatio decimal.Decimal
	GracePeriod        time.Duration
	EnforceLiquidity   bool
	// RepaymentTolerance is the shortfall accepted when a loan is repaid on the other chain
	RepaymentTolerance decimal.Decimal
}

func DefaultLendingPolicy() LendingPolicy {
	return LendingPolicy{
		InterestRate:       decimal.RequireFromString("0.07"),
		LendAPY:            decimal.RequireFromString("0.05"),
		LoanTermMonths:     12,
		MinCollateralRatio: decimal.RequireFromString("1.5"),
		EnforceLiquidity:   true,
		RepaymentTolerance: decimal.RequireFromString("0.01"),
	}
}
