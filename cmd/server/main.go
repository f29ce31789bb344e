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

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"crosschain-lending-go/internal/api"
	"crosschain-lending-go/internal/common"
	"crosschain-lending-go/internal/config"
	"crosschain-lending-go/internal/listener"

	"go.uber.org/zap"
)

type job interface {
	Start(ctx context.Context) error
	Stop()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting cross-chain lending server")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	var jobs []job
	if cfg.Pricing.RefreshEvery > 0 {
		jobs = append(jobs, listener.NewPriceRefresher(services.Oracle, cfg.Pricing.RefreshEvery, cfg.Pricing.Timeout))
	}
	if cfg.Jobs.LiquidationEnabled {
		jobs = append(jobs, listener.NewLiquidationWatcher(listener.LiquidationWatcherConfig{
			Liquidator:      services.Engine,
			PollingInterval: cfg.Jobs.LiquidationInterval,
		}))
	} else {
		zap.L().Info("Liquidation watcher disabled: no grace period configured")
	}
	if cfg.Jobs.ReconcileInterval > 0 {
		jobs = append(jobs, listener.NewReconcileAuditor(services.DbService, cfg.Jobs.ReconcileInterval))
	}

	started := make([]job, 0, len(jobs))
	for _, j := range jobs {
		if err := j.Start(ctx); err != nil {
			zap.L().Error("Failed to start background job", zap.Error(err))
			continue
		}
		started = append(started, j)
	}

	server := &http.Server{
		Addr:         cfg.Server.ListenAddress,
		Handler:      api.NewRouter(services.Ledger, cfg.Server, services.Metrics),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		zap.L().Info("HTTP server listening", zap.String("address", cfg.Server.ListenAddress))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		zap.L().Info("Shutdown signal received, stopping server...")
	case err := <-serverErr:
		if err != nil {
			zap.L().Error("HTTP server failed", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("HTTP server did not shut down cleanly", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, j := range started {
			wg.Add(1)
			go func(j job) {
				defer wg.Done()
				j.Stop()
			}(j)
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Server stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}
}
