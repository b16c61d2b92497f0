package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPush_SendsIssuanceMetrics(t *testing.T) {
	var method, path, contentType string
	var body []byte
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path, contentType = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	reg := prometheus.NewRegistry()
	m := NewIssuance(reg)
	m.ObserveRun("failed", "finalization", 2*time.Second)
	m.ObservePublication("record")

	require.NoError(t, Push(context.Background(), gateway.URL, "certissuer", reg))

	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/certissuer", path)
	assert.Contains(t, contentType, "application/vnd.google.protobuf")
	assert.Contains(t, string(body), "certissuer_issuances_total")
	assert.Contains(t, string(body), "certissuer_challenge_publications_total")
	assert.Contains(t, string(body), "finalization")
}

func TestPush_GatewayError(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "broken", http.StatusInternalServerError)
	}))
	defer gateway.Close()

	reg := prometheus.NewRegistry()
	NewIssuance(reg).ObserveRun("succeeded", "", time.Second)

	err := Push(context.Background(), gateway.URL, "certissuer", reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "push metrics to "+gateway.URL)
}
