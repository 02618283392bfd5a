package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestPrometheusHandler_ServeHTTP(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.PeerConnected(312000)
	c.PacketReceived("DMRD")
	c.BytesReceived(1024)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	for _, metric := range []string{
		"hbp4_peers_total",
		"hbp4_peers_active",
		"hbp4_packets_received_total",
		"hbp4_bytes_received_total",
	} {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("expected metric %s in output", metric)
		}
	}
	if !strings.Contains(bodyStr, "# HELP") || !strings.Contains(bodyStr, "# TYPE") {
		t.Error("expected # HELP/# TYPE comments in output")
	}
}

func TestPrometheusServer_StartAndStop(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	config := PrometheusConfig{Enabled: true, Port: 0, Path: "/metrics"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := NewPrometheusServer(config, reg, nil)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errChan:
		if err != nil && err != context.Canceled && err != http.ErrServerClosed {
			t.Errorf("unexpected error from server: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("server did not stop in time")
	}
}

func TestPrometheusServer_Disabled(t *testing.T) {
	reg := prometheus.NewRegistry()
	config := PrometheusConfig{Enabled: false}

	server := NewPrometheusServer(config, reg, nil)
	if err := server.Start(context.Background()); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}
