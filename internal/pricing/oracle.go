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

package pricing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"crosschain-lending-go/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var ErrPriceUnavailable = errors.New("price feed unavailable")

const defaultFetchTimeout = 10 * time.Second

// FailureRecorder is notified of every failed upstream fetch
type FailureRecorder interface {
	PriceFetchFailure(source string)
}

// Oracle hands out whole snapshots. A snapshot is refreshed once it is older than
// maxAge; concurrent refreshes collapse into a single upstream call.
type Oracle struct {
	source       Source
	maxAge       time.Duration
	fetchTimeout time.Duration
	recorder     FailureRecorder
	now          func() time.Time

	mu    sync.RWMutex
	last  models.PriceSnapshot
	have  bool
	group singleflight.Group
}

func NewOracle(source Source, maxAge time.Duration, recorder FailureRecorder) *Oracle {
	if maxAge <= 0 {
		maxAge = time.Minute
	}
	return &Oracle{
		source:       source,
		maxAge:       maxAge,
		fetchTimeout: defaultFetchTimeout,
		recorder:     recorder,
		now:          time.Now,
	}
}

// SetFetchTimeout bounds each upstream fetch; non-positive values are ignored
func (o *Oracle) SetFetchTimeout(d time.Duration) {
	if d > 0 {
		o.fetchTimeout = d
	}
}

// CurrentPrices returns a snapshot no older than maxAge, or ErrPriceUnavailable
func (o *Oracle) CurrentPrices(ctx context.Context) (models.PriceSnapshot, error) {
	if snapshot, ok := o.fresh(); ok {
		return snapshot, nil
	}
	return o.Refresh(ctx)
}

// LastKnown returns the last good snapshot regardless of age
func (o *Oracle) LastKnown() (models.PriceSnapshot, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.last, o.have
}

// Refresh fetches from the source and replaces the cached snapshot on success.
// A quote already older than maxAge is rejected and the cached snapshot kept.
// The shared fetch ignores caller cancellation and is bounded by the fetch timeout.
func (o *Oracle) Refresh(ctx context.Context) (models.PriceSnapshot, error) {
	result, err, _ := o.group.Do("prices", func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.fetchTimeout)
		defer cancel()

		snapshot, err := o.source.Fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		if !snapshot.Complete() {
			return nil, fmt.Errorf("incomplete snapshot from %s: eth=%s near=%s", o.source.Name(), snapshot.ETH, snapshot.NEAR)
		}
		if snapshot.LastUpdated.IsZero() {
			snapshot.LastUpdated = o.now().UTC()
		}
		if age := o.now().Sub(snapshot.LastUpdated); age > o.maxAge {
			return nil, fmt.Errorf("quote from %s is %s old, limit %s", o.source.Name(), age.Round(time.Second), o.maxAge)
		}

		o.mu.Lock()
		o.last = snapshot
		o.have = true
		o.mu.Unlock()

		zap.L().Debug("Prices refreshed",
			zap.String("source", o.source.Name()),
			zap.String("eth", snapshot.ETH.String()),
			zap.String("near", snapshot.NEAR.String()))
		return snapshot, nil
	})
	if err != nil {
		if o.recorder != nil {
			o.recorder.PriceFetchFailure(o.source.Name())
		}
		zap.L().Warn("Price refresh failed", zap.String("source", o.source.Name()), zap.Error(err))
		return models.PriceSnapshot{}, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	return result.(models.PriceSnapshot), nil
}

func (o *Oracle) fresh() (models.PriceSnapshot, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if !o.have {
		return models.PriceSnapshot{}, false
	}
	// age is measured from when the upstream quoted, not when we fetched
	if o.now().Sub(o.last.LastUpdated) > o.maxAge {
		return models.PriceSnapshot{}, false
	}
	return o.last, true
}
