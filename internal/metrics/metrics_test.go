package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"crosschain-lending-go/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.LoanCreated(models.ChainNEAR)
	m.LoanCreated(models.ChainNEAR)
	m.LoanRepaid(models.ChainETH)
	m.DepositRecorded("collateral", models.ChainETH)
	m.PriceFetchFailure("coingecko")
	m.PoolUtilization(models.ChainNEAR, decimal.RequireFromString("0.4"))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.loans.WithLabelValues("created", "near")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.loans.WithLabelValues("repaid", "eth")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.deposits.WithLabelValues("collateral", "eth")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.priceFailures.WithLabelValues("coingecko")))
	assert.InDelta(t, 0.4, testutil.ToFloat64(m.poolUtilization.WithLabelValues("near")), 1e-9)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.LoanCreated(models.ChainETH)
		m.LoanLiquidated(models.ChainETH)
		m.PriceFetchFailure("static")
	})
}

func TestMetrics_MiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/borrow/user/{address}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/borrow/user/0xabc", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("/borrow/user/{address}", "GET", "418")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "lending_http_requests_total")
}
