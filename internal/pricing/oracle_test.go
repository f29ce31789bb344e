package pricing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"crosschain-lending-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	calls atomic.Int32
	fail  atomic.Bool
	at    func() time.Time
	delay time.Duration
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(_ context.Context) (models.PriceSnapshot, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail.Load() {
		return models.PriceSnapshot{}, errors.New("upstream down")
	}
	return models.PriceSnapshot{
		ETH:         decimal.NewFromInt(3000),
		NEAR:        decimal.NewFromInt(5),
		LastUpdated: f.at(),
		Source:      "fake",
	}, nil
}

type countingRecorder struct {
	mu       sync.Mutex
	failures map[string]int
}

func (r *countingRecorder) PriceFetchFailure(source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures == nil {
		r.failures = map[string]int{}
	}
	r.failures[source]++
}

func TestOracle_CachesFreshSnapshot(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{at: func() time.Time { return now }}
	o := NewOracle(src, time.Minute, nil)
	o.now = func() time.Time { return now }

	first, err := o.CurrentPrices(context.Background())
	require.NoError(t, err)
	second, err := o.CurrentPrices(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), src.calls.Load())
	assert.True(t, first.ETH.Equal(second.ETH))
	assert.Equal(t, first.LastUpdated, second.LastUpdated)
}

func TestOracle_RefreshesStaleSnapshot(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{at: func() time.Time { return now }}
	o := NewOracle(src, time.Minute, nil)
	o.now = func() time.Time { return now }

	_, err := o.CurrentPrices(context.Background())
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	snap, err := o.CurrentPrices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
	assert.Equal(t, now, snap.LastUpdated)
}

func TestOracle_FailsWhenStaleAndUpstreamDown(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	quoted := now
	src := &fakeSource{at: func() time.Time { return quoted }}
	recorder := &countingRecorder{}
	o := NewOracle(src, time.Minute, recorder)
	o.now = func() time.Time { return now }

	_, err := o.CurrentPrices(context.Background())
	require.NoError(t, err)

	src.fail.Store(true)
	now = now.Add(5 * time.Minute)

	_, err = o.CurrentPrices(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPriceUnavailable))
	assert.Equal(t, 1, recorder.failures["fake"])

	last, ok := o.LastKnown()
	require.True(t, ok)
	assert.Equal(t, quoted, last.LastUpdated)
}

func TestOracle_NoSnapshotAtAll(t *testing.T) {
	src := &fakeSource{at: time.Now}
	src.fail.Store(true)
	o := NewOracle(src, time.Minute, nil)

	_, err := o.CurrentPrices(context.Background())
	assert.ErrorIs(t, err, ErrPriceUnavailable)

	_, ok := o.LastKnown()
	assert.False(t, ok)
}

func TestOracle_RejectsIncompleteSnapshot(t *testing.T) {
	o := NewOracle(StaticSource{ETH: decimal.NewFromInt(3000)}, time.Minute, nil)

	_, err := o.CurrentPrices(context.Background())
	assert.ErrorIs(t, err, ErrPriceUnavailable)
}

func TestOracle_ConcurrentRefreshesCollapse(t *testing.T) {
	src := &fakeSource{at: time.Now, delay: 50 * time.Millisecond}
	o := NewOracle(src, time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = o.CurrentPrices(context.Background())
		}()
	}
	wg.Wait()

	assert.Less(t, src.calls.Load(), int32(10))
}

func TestCoinGeckoSource_Fetch(t *testing.T) {
	var gotKey, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-cg-demo-api-key")
		gotQuery = r.URL.RawQuery
		assert.Equal(t, "/api/v3/simple/price", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ethereum":{"usd":3012.45,"last_updated_at":1735689600},"near":{"usd":5.123,"last_updated_at":1735689660}}`))
	}))
	defer srv.Close()

	src := NewCoinGeckoSource(srv.URL+"/api/v3/", "demo-key", srv.Client())
	snap, err := src.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "demo-key", gotKey)
	assert.Contains(t, gotQuery, "ids=ethereum,near")
	assert.True(t, snap.ETH.Equal(decimal.RequireFromString("3012.45")), snap.ETH.String())
	assert.True(t, snap.NEAR.Equal(decimal.RequireFromString("5.123")), snap.NEAR.String())
	assert.Equal(t, time.Unix(1735689600, 0).UTC(), snap.LastUpdated)
	assert.Equal(t, "coingecko", snap.Source)
}

func TestCoinGeckoSource_Errors(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"server error": {http.StatusTooManyRequests, `{"status":{"error_code":429}}`},
		"missing near": {http.StatusOK, `{"ethereum":{"usd":3000}}`},
		"invalid json": {http.StatusOK, `{"ethereum":`},
		"non numeric":  {http.StatusOK, `{"ethereum":{"usd":"abc"},"near":{"usd":5}}`},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewCoinGeckoSource(srv.URL, "", srv.Client()).Fetch(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestOracle_RejectsQuoteOlderThanMaxAge(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	quoted := now
	src := &fakeSource{at: func() time.Time { return quoted }}
	recorder := &countingRecorder{}
	o := NewOracle(src, 5*time.Minute, recorder)
	o.now = func() time.Time { return now }

	_, err := o.CurrentPrices(context.Background())
	require.NoError(t, err)

	// upstream answers, but its last quote is two hours old
	now = now.Add(2 * time.Hour)
	quoted = now.Add(-2 * time.Hour)

	_, err = o.CurrentPrices(context.Background())
	assert.ErrorIs(t, err, ErrPriceUnavailable)
	_, err = o.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrPriceUnavailable)
	assert.Equal(t, 2, recorder.failures["fake"])

	last, ok := o.LastKnown()
	require.True(t, ok)
	assert.Equal(t, now.Add(-2*time.Hour), last.LastUpdated)
}

type ctxSource struct {
	canceled    atomic.Bool
	hadDeadline atomic.Bool
}

func (c *ctxSource) Name() string { return "ctx" }

func (c *ctxSource) Fetch(ctx context.Context) (models.PriceSnapshot, error) {
	c.canceled.Store(ctx.Err() != nil)
	_, ok := ctx.Deadline()
	c.hadDeadline.Store(ok)
	if err := ctx.Err(); err != nil {
		return models.PriceSnapshot{}, err
	}
	return models.PriceSnapshot{
		ETH:         decimal.NewFromInt(3000),
		NEAR:        decimal.NewFromInt(5),
		LastUpdated: time.Now(),
		Source:      "ctx",
	}, nil
}

func TestOracle_FetchIgnoresCallerCancellation(t *testing.T) {
	src := &ctxSource{}
	o := NewOracle(src, time.Minute, nil)
	o.SetFetchTimeout(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap, err := o.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, snap.ETH.Equal(decimal.NewFromInt(3000)))
	assert.False(t, src.canceled.Load())
	assert.True(t, src.hadDeadline.Load())
}
