package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMetrics_CountersAndHandler(t *testing.T) {
	m := New()

	m.FeedEvents.WithLabelValues("INSERT").Inc()
	m.FeedEvents.WithLabelValues("INSERT").Inc()
	m.WSConnections.Set(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FeedEvents.WithLabelValues("INSERT")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.WSConnections))

	srv := httptest.NewServer(m.Handler(zap.NewNop()))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "edumarket_feed_events_total")
	assert.Contains(t, string(body), "edumarket_ws_connections 3")
}
