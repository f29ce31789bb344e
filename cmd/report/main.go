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
	"flag"
	"fmt"
	"time"

	"crosschain-lending-go/internal/common"
	"crosschain-lending-go/internal/config"
	"crosschain-lending-go/internal/database"
	"crosschain-lending-go/internal/models"

	"go.uber.org/zap"
)

func printLoan(l models.Loan, now time.Time, isLast bool) {
	status := string(l.Status)
	if l.IsOverdue(now) {
		status += ", OVERDUE"
	}
	fmt.Printf("%s %s: %s owed %s (due %s, %s)\n",
		common.BoxPrefix(isLast),
		common.ShortHash(l.Id),
		common.FormatAmount(l.BorrowAmount, l.BorrowChain),
		common.FormatAmount(l.TotalRepaymentAmount, l.BorrowChain),
		l.DueDate.Format("2006-01-02"),
		status)
	fmt.Printf("%s   collateral %s, borrower %s\n",
		common.BoxDetailPrefix(isLast), common.ShortHash(l.CollateralTxHash), l.BorrowerAddress)
}

func printPool(ctx context.Context, dbService *database.Service, logger *zap.Logger) {
	totals, err := dbService.GetPoolTotals(ctx)
	if err != nil {
		logger.Fatal("Failed to get pool totals", zap.Error(err))
	}

	for _, c := range models.SupportedChains {
		t := totals[c]
		fmt.Printf("\n┌─ Pool: %s\n", c.Symbol())
		fmt.Printf("%s Total    : %s\n", common.BoxPrefix(false), common.FormatAmount(t.Total, c))
		fmt.Printf("%s Locked   : %s\n", common.BoxPrefix(false), common.FormatAmount(t.Locked, c))
		fmt.Printf("%s Available: %s\n", common.BoxPrefix(true), common.FormatAmount(t.Available(), c))
	}

	loans, err := dbService.GetActiveLoans(ctx)
	if err != nil {
		logger.Fatal("Failed to get active loans", zap.Error(err))
	}
	fmt.Printf("\n┌─ Active loans: %d\n", len(loans))
	now := time.Now().UTC()
	for i, l := range loans {
		printLoan(l, now, i == len(loans)-1)
	}
}

func printPosition(ctx context.Context, dbService *database.Service, address string, logger *zap.Logger) {
	identity, err := dbService.ResolveIdentity(ctx, address)
	if err != nil {
		logger.Fatal("Failed to resolve identity", zap.String("address", address), zap.Error(err))
	}
	addresses := identity.Addresses()

	fmt.Printf("\n┌─ Identity: %s\n", identity.Canonical)
	for i, a := range identity.LinkedAddresses() {
		fmt.Printf("%s linked %s\n", common.BoxPrefix(i == len(identity.Linked)-1), a)
	}

	deposits, err := dbService.GetLendDeposits(ctx, addresses)
	if err != nil {
		logger.Fatal("Failed to get lend deposits", zap.Error(err))
	}
	fmt.Printf("\n┌─ Lend deposits: %d\n", len(deposits))
	for i, d := range deposits {
		fmt.Printf("%s %s from %s (%s)\n", common.BoxPrefix(i == len(deposits)-1),
			common.FormatAmount(d.Amount, d.Chain), d.LenderAddress, common.ShortHash(d.TxnHash))
	}

	collateral, err := dbService.GetCollateralDeposits(ctx, addresses)
	if err != nil {
		logger.Fatal("Failed to get collateral deposits", zap.Error(err))
	}
	fmt.Printf("\n┌─ Collateral: %d\n", len(collateral))
	for i, c := range collateral {
		state := "available"
		if c.IsLocked {
			state = "locked"
		}
		fmt.Printf("%s %s %s (%s, v%d)\n", common.BoxPrefix(i == len(collateral)-1),
			common.ShortHash(c.TxHash), common.FormatAmount(c.Amount, c.Chain), state, c.Version)
	}

	loans, err := dbService.GetLoansByBorrowers(ctx, addresses)
	if err != nil {
		logger.Fatal("Failed to get loans", zap.Error(err))
	}
	fmt.Printf("\n┌─ Loans: %d\n", len(loans))
	now := time.Now().UTC()
	for i, l := range loans {
		printLoan(l, now, i == len(loans)-1)
	}
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	addressFlag := flag.String("address", "", "Show the position of one identity instead of the pools (optional)")
	flag.Parse()

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

	if *addressFlag == "" {
		common.PrintHeader("POOL REPORT", common.WideWidth)
		printPool(ctx, dbService, logger)
	} else {
		common.PrintHeader("POSITION REPORT: "+*addressFlag, common.WideWidth)
		printPosition(ctx, dbService, *addressFlag, logger)
	}
	common.PrintFooter(fmt.Sprintf("Generated %s", time.Now().UTC().Format(time.RFC3339)), common.WideWidth)
}
