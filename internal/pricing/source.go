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
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"crosschain-lending-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// Source fetches a complete price snapshot from one upstream feed
type Source interface {
	Name() string
	Fetch(ctx context.Context) (models.PriceSnapshot, error)
}

const DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

// CoinGeckoSource reads ETH and NEAR spot prices from the simple/price endpoint
type CoinGeckoSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
	now     func() time.Time
}

func NewCoinGeckoSource(baseURL, apiKey string, client *http.Client) *CoinGeckoSource {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &CoinGeckoSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
		now:     time.Now,
	}
}

func (c *CoinGeckoSource) Name() string {
	return "coingecko"
}

func (c *CoinGeckoSource) Fetch(ctx context.Context) (models.PriceSnapshot, error) {
	url := c.baseURL + "/simple/price?ids=ethereum,near&vs_currencies=usd&include_last_updated_at=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.PriceSnapshot{}, fmt.Errorf("unable to build price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return models.PriceSnapshot{}, fmt.Errorf("price request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.PriceSnapshot{}, fmt.Errorf("unable to read price response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return models.PriceSnapshot{}, fmt.Errorf("price feed returned status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return models.PriceSnapshot{}, fmt.Errorf("price feed returned invalid json")
	}

	eth, err := usdPrice(body, "ethereum")
	if err != nil {
		return models.PriceSnapshot{}, err
	}
	near, err := usdPrice(body, "near")
	if err != nil {
		return models.PriceSnapshot{}, err
	}

	// the older of the two quotes dates the snapshot
	updated := c.now().UTC()
	for _, id := range []string{"ethereum", "near"} {
		if ts := gjson.GetBytes(body, id+".last_updated_at"); ts.Exists() && ts.Int() > 0 {
			quoted := time.Unix(ts.Int(), 0).UTC()
			if quoted.Before(updated) {
				updated = quoted
			}
		}
	}

	return models.PriceSnapshot{
		ETH:         eth,
		NEAR:        near,
		LastUpdated: updated,
		Source:      c.Name(),
	}, nil
}

func usdPrice(body []byte, id string) (decimal.Decimal, error) {
	field := gjson.GetBytes(body, id+".usd")
	if !field.Exists() {
		return decimal.Zero, fmt.Errorf("price feed response missing %s.usd", id)
	}
	price, err := decimal.NewFromString(field.Raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s price %q: %w", id, field.Raw, err)
	}
	return price, nil
}

// StaticSource serves fixed prices, for local runs and tests
type StaticSource struct {
	ETH  decimal.Decimal
	NEAR decimal.Decimal
}

func (s StaticSource) Name() string {
	return "static"
}

func (s StaticSource) Fetch(_ context.Context) (models.PriceSnapshot, error) {
	return models.PriceSnapshot{
		ETH:         s.ETH,
		NEAR:        s.NEAR,
		LastUpdated: time.Now().UTC(),
		Source:      s.Name(),
	}, nil
}
