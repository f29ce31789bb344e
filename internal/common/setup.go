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

package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"crosschain-lending-go/internal/aggregation"
	"crosschain-lending-go/internal/api"
	"crosschain-lending-go/internal/chain"
	"crosschain-lending-go/internal/database"
	"crosschain-lending-go/internal/httpclient"
	"crosschain-lending-go/internal/loan"
	"crosschain-lending-go/internal/metrics"
	"crosschain-lending-go/internal/models"
	"crosschain-lending-go/internal/pricing"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService   *database.Service
	Metrics     *metrics.Metrics
	Oracle      *pricing.Oracle
	Verifier    chain.Verifier
	Engine      *loan.Engine
	Aggregation *aggregation.Service
	Ledger      *api.LedgerService

	closers []func()
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires the database, price oracle, chain verifiers and
// lending engine into the ledger service behind the HTTP API
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	services := &Services{
		DbService: dbService,
		Metrics:   metrics.New(),
	}

	oracle, err := newOracle(cfg.Pricing, services.Metrics)
	if err != nil {
		services.Close()
		return nil, err
	}
	services.Oracle = oracle

	zap.L().Info("Configuring chain verifier", zap.String("verifier", cfg.Chains.Verifier))
	verifier, closeVerifier, err := newVerifier(ctx, cfg.Chains)
	if err != nil {
		services.Close()
		return nil, err
	}
	services.Verifier = verifier
	if closeVerifier != nil {
		services.closers = append(services.closers, closeVerifier)
	}

	services.Engine = loan.NewEngine(dbService, oracle, cfg.Policy, services.Metrics)
	services.Aggregation = aggregation.NewService(dbService, cfg.Policy, services.Metrics)
	services.Ledger = api.NewLedgerService(api.LedgerServiceOptions{
		Store:            dbService,
		Verifier:         verifier,
		Engine:           services.Engine,
		Aggregation:      services.Aggregation,
		Prices:           oracle,
		Recorder:         services.Metrics,
		AllowStalePrices: cfg.Server.AllowStalePrice,
	})

	zap.L().Info("Services initialized",
		zap.String("price_source", cfg.Pricing.Source),
		zap.String("interest_rate", cfg.Policy.InterestRate.String()),
		zap.Int("loan_term_months", cfg.Policy.LoanTermMonths),
		zap.Duration("grace_period", cfg.Policy.GracePeriod))
	return services, nil
}

// InitializeDatabaseOnly initializes just the database service
// Useful for read-only operations like reports and reconciliation
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (cs *Services) Close() {
	for i := len(cs.closers) - 1; i >= 0; i-- {
		cs.closers[i]()
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func newOracle(cfg models.PricingConfig, recorder pricing.FailureRecorder) (*pricing.Oracle, error) {
	var source pricing.Source
	switch cfg.Source {
	case "static":
		source = pricing.StaticSource{ETH: cfg.StaticETH, NEAR: cfg.StaticNEAR}
	default:
		client, err := httpclient.New(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create price client: %w", err)
		}
		source = pricing.NewCoinGeckoSource(cfg.BaseURL, cfg.APIKey, client)
	}
	oracle := pricing.NewOracle(source, cfg.MaxAge, recorder)
	oracle.SetFetchTimeout(cfg.Timeout)
	return oracle, nil
}

func newVerifier(ctx context.Context, cfg models.ChainsConfig) (chain.Verifier, func(), error) {
	if cfg.Verifier == "static" {
		verifier, err := chain.LoadStaticVerifier(cfg.StaticTransfersFile)
		if err != nil {
			return nil, nil, err
		}
		return verifier, nil, nil
	}

	if cfg.EthRPCURL == "" || cfg.EthVaultAddress == "" || cfg.NearVaultAccount == "" {
		return nil, nil, fmt.Errorf("missing chain settings: ETH_RPC_URL, ETH_VAULT_ADDRESS and NEAR_VAULT_ACCOUNT are required when CHAIN_VERIFIER=rpc")
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.RPCTimeout)
	defer cancel()
	ethClient, err := chain.DialEVMClient(dialCtx, cfg.EthRPCURL)
	if err != nil {
		return nil, nil, err
	}
	evm, err := chain.NewEVMVerifier(ethClient, cfg.EthVaultAddress, cfg.EthConfirmations)
	if err != nil {
		ethClient.Close()
		return nil, nil, err
	}

	client, err := httpclient.New(cfg.RPCTimeout)
	if err != nil {
		ethClient.Close()
		return nil, nil, fmt.Errorf("failed to create near client: %w", err)
	}
	near, err := chain.NewNearVerifier(cfg.NearRPCURL, cfg.NearVaultAccount, client)
	if err != nil {
		ethClient.Close()
		return nil, nil, err
	}

	router := chain.NewRouter().
		Register(models.ChainETH, evm).
		Register(models.ChainNEAR, near)
	return router, ethClient.Close, nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
