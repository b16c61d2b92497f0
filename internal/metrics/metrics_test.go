package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuance_ObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewIssuance(reg)

	m.ObserveRun("succeeded", "", 3*time.Second)
	m.ObserveRun("failed", "challenge_validation", time.Second)
	m.ObserveRun("failed", "challenge_validation", time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues("succeeded", "")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.runs.WithLabelValues("failed", "challenge_validation")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestIssuance_NilIsNoop(t *testing.T) {
	var m *Issuance
	assert.NotPanics(t, func() {
		m.ObserveRun("failed", "output", time.Second)
		m.ObservePublication("file")
	})
}

func TestServer_MetricsAndHealth(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewIssuance(reg).ObservePublication("record")

	srv := NewServer(":0", reg, nil)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `certissuer_challenge_publications_total{backend="record"} 1`)

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServer_HealthNotReady(t *testing.T) {
	srv := NewServer(":0", prometheus.NewRegistry(), func(context.Context) error {
		return errors.New("database unreachable")
	})

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "database unreachable")
}

type fakePool struct{}

func (fakePool) Stat() *pgxpool.Stat { return &pgxpool.Stat{} }

func TestRegisterPgxPoolMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterPgxPoolMetrics(reg, fakePool{}))
	assert.Error(t, RegisterPgxPoolMetrics(reg, fakePool{}), "second registration conflicts")
}
