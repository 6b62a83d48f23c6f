package adminhttp_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paynet/ebics-gateway/internal/adminhttp"
	"github.com/paynet/ebics-gateway/internal/connection"
	"github.com/paynet/ebics-gateway/internal/ledger"
	"github.com/paynet/ebics-gateway/internal/payment"
	"github.com/paynet/ebics-gateway/internal/scheduler"
	"github.com/paynet/ebics-gateway/internal/storage/memory"
	"github.com/paynet/ebics-gateway/pkg/clock"
	"github.com/paynet/ebics-gateway/pkg/events"
)

func newTestServer() *adminhttp.Server {
	connections := memory.NewConnectionStore()
	accounts := memory.NewAccountStore()
	payments := memory.NewPaymentStore()
	rawMessages := memory.NewRawMessageStore()
	transactions := memory.NewTransactionStore()

	clk := clock.System{}
	publisher := events.NewPublisher(nil, zap.NewNop())
	submission := payment.NewSubmissionService(payments, connections, clk, publisher)
	ingestion := ledger.NewIngestionService(connections, accounts, payments, rawMessages, transactions, clk, publisher)
	sched := scheduler.New(connections, connection.NewLocker(), submission, ingestion, clk)

	return adminhttp.New(sched, zap.NewNop())
}

func TestHealthzAlwaysOK(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReadyWithScheduler(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzUnavailableWithoutScheduler(t *testing.T) {
	srv := adminhttp.New(nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdminTickRunsSynchronouslyAndReturnsAccepted(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/admin/tick", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestAdminTickUnavailableWithoutScheduler(t *testing.T) {
	srv := adminhttp.New(nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/admin/tick", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}
