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

package listener

import (
	"context"
	"time"

	"crosschain-lending-go/internal/models"
	"crosschain-lending-go/internal/store"

	"go.uber.org/zap"
)

type PoolReconciler interface {
	ReconcilePool(ctx context.Context, chain models.Chain) (*store.ReconcileReport, error)
}

// ReconcileAuditor periodically compares the journal with the loan table for every chain
type ReconcileAuditor struct {
	reconciler PoolReconciler
	poller     *poller
}

func NewReconcileAuditor(reconciler PoolReconciler, interval time.Duration) *ReconcileAuditor {
	a := &ReconcileAuditor{reconciler: reconciler}
	a.poller = newPoller("reconcile_auditor", interval, func(ctx context.Context) {
		a.audit(ctx)
	})
	return a
}

func (a *ReconcileAuditor) Start(ctx context.Context) error {
	return a.poller.start(ctx)
}

func (a *ReconcileAuditor) Stop() {
	a.poller.stop()
}

// audit returns the chains whose books did not balance
func (a *ReconcileAuditor) audit(ctx context.Context) []models.Chain {
	var imbalanced []models.Chain
	for _, c := range models.SupportedChains {
		report, err := a.reconciler.ReconcilePool(ctx, c)
		if err != nil {
			zap.L().Error("Pool reconciliation failed", zap.String("chain", string(c)), zap.Error(err))
			continue
		}
		if report.Balanced() {
			continue
		}
		imbalanced = append(imbalanced, c)
		zap.L().Error("Pool ledger imbalance",
			zap.String("chain", string(c)),
			zap.String("active_locked", report.ActiveLocked.String()),
			zap.String("journal_locked", report.JournalLocked.String()),
			zap.String("total_debits", report.TotalDebits.String()),
			zap.String("total_credits", report.TotalCredits.String()))
	}
	return imbalanced
}
