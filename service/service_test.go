package service

import (
	"io"
	"net/http"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-conformance/metrics"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServiceServesHealthzAndMetrics(t *testing.T) {
	svc := New(Config{
		HealthzAddr: "127.0.0.1:0",
		MetricsAddr: "127.0.0.1:0",
		Log:         log.NewLogger(log.DiscardHandler()),
	})
	require.NoError(t, svc.Start())
	defer svc.Shutdown()

	code, body := get(t, "http://"+svc.Healthz.Addr().String()+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", body)

	metrics.RecordError("service test")
	code, body = get(t, "http://"+svc.Metrics.Addr().String()+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "conformance_errors_total")

	svc.Shutdown()
	// a second shutdown is a no-op
	svc.Shutdown()
	_, err := http.Get("http://" + svc.Healthz.Addr().String() + "/healthz")
	assert.Error(t, err)
}

func TestServiceListenError(t *testing.T) {
	svc := New(Config{
		HealthzAddr: "127.0.0.1:0",
		MetricsAddr: "256.0.0.1:0",
		Log:         log.NewLogger(log.DiscardHandler()),
	})
	require.Error(t, svc.Start())
	svc.Shutdown()
}
