package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admission-portal-api/internal/service"
)

func TestMetricsHandlerReady(t *testing.T) {
	healthy := NewMetricsHandler(nil, map[string]Pinger{
		"database": PingFunc(func(ctx context.Context) error { return nil }),
	})
	c, w := newTestContext(http.MethodGet, "/ready", "")
	healthy.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)

	degraded := NewMetricsHandler(nil, map[string]Pinger{
		"database": PingFunc(func(ctx context.Context) error { return nil }),
		"cache":    PingFunc(func(ctx context.Context) error { return errors.New("connection refused") }),
	})
	c, w = newTestContext(http.MethodGet, "/ready", "")
	degraded.Ready(c)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Checks["database"])
	assert.Equal(t, "connection refused", body.Checks["cache"])
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordTransition("Pending", "Approved", false)
	handler := NewMetricsHandler(metrics, nil)

	c, w := newTestContext(http.MethodGet, "/metrics", "")
	handler.Prometheus(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "admission_status_transitions_total")

	c, w = newTestContext(http.MethodGet, "/metrics", "")
	NewMetricsHandler(nil, nil).Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
