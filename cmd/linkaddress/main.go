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

	"crosschain-lending-go/internal/common"
	"crosschain-lending-go/internal/config"
	"crosschain-lending-go/internal/models"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	address := flag.String("address", "", "Canonical address that owns the identity (required)")
	chainFlag := flag.String("chain", "", "Chain of the linked address: eth or near (required)")
	linked := flag.String("linked", "", "Address to link (required)")
	flag.Parse()

	if *address == "" || *chainFlag == "" || *linked == "" {
		logger.Fatal("Missing required flags",
			zap.String("usage", "linkaddress -address <canonical> -chain <eth|near> -linked <address>"))
	}

	c, err := models.ParseChain(*chainFlag)
	if err != nil {
		logger.Fatal("Invalid chain", zap.String("chain", *chainFlag), zap.Error(err))
	}

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

	link, err := dbService.LinkAddress(ctx, *address, c, *linked)
	if err != nil {
		logger.Fatal("Failed to link address",
			zap.String("address", *address),
			zap.String("linked_address", *linked),
			zap.Error(err))
	}

	logger.Info("Address linked",
		zap.String("canonical_address", link.CanonicalAddress),
		zap.String("chain", string(link.Chain)),
		zap.String("linked_address", link.LinkedAddress),
		zap.Time("created_at", link.CreatedAt))
}
