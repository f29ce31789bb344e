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
	"fmt"
	"os"

	"crosschain-lending-go/internal/common"
	"crosschain-lending-go/internal/config"
	"crosschain-lending-go/internal/models"
	"crosschain-lending-go/internal/store"

	"go.uber.org/zap"
)

func printReport(report *store.ReconcileReport) {
	status := "BALANCED"
	if !report.Balanced() {
		status = "IMBALANCED"
	}
	fmt.Printf("\n┌─ Chain: %s [%s]\n", report.Chain.Symbol(), status)
	fmt.Printf("%s Lend deposits   : %s\n", common.BoxPrefix(false), common.FormatAmount(report.LendTotal, report.Chain))
	fmt.Printf("%s Journal liquid  : %s\n", common.BoxPrefix(false), common.FormatAmount(report.JournalLiquid, report.Chain))
	fmt.Printf("%s Active loans    : %s\n", common.BoxPrefix(false), common.FormatAmount(report.ActiveLocked, report.Chain))
	fmt.Printf("%s Journal locked  : %s\n", common.BoxPrefix(false), common.FormatAmount(report.JournalLocked, report.Chain))
	fmt.Printf("%s Debits / credits: %s / %s\n", common.BoxPrefix(true), report.TotalDebits.String(), report.TotalCredits.String())
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	common.PrintHeader("POOL RECONCILIATION", common.DefaultWidth)

	imbalanced := 0
	for _, c := range models.SupportedChains {
		report, err := dbService.ReconcilePool(ctx, c)
		if err != nil {
			logger.Error("Failed to reconcile pool", zap.String("chain", string(c)), zap.Error(err))
			imbalanced++
			continue
		}
		printReport(report)
		if !report.Balanced() {
			imbalanced++
		}
	}

	if imbalanced > 0 {
		common.PrintFooter(fmt.Sprintf("RESULT: %d of %d chains need attention", imbalanced, len(models.SupportedChains)), common.DefaultWidth)
		loggerCleanup()
		os.Exit(1)
	}
	common.PrintFooter("RESULT: all pools balanced", common.DefaultWidth)
}
