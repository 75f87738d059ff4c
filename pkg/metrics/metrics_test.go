package metrics

import (
	"io/ioutil"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := ioutil.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestHandler(t *testing.T) {
	RecordBroadcast("write-file")
	RecordDroppedDelivery("sandbox-fs")
	SetContextsAttached(4)
	RecordReadinessSignal()
	RecordTypingsRefresh("synced", time.Second, true)
	RecordTypingsRefresh("unchanged", 0, false)
	RecordBundleFetchFailure()

	body := scrape(t)
	assert.Contains(t, body, `sandboxsync_broadcasts_published_total{kind="write-file"}`)
	assert.Contains(t, body, `sandboxsync_deliveries_dropped_total{kind="sandbox-fs"}`)
	assert.Contains(t, body, "sandboxsync_contexts_attached 4")
	assert.Contains(t, body, "sandboxsync_readiness_signals_total")
	assert.Contains(t, body, `sandboxsync_typings_refreshes_total{status="unchanged"}`)
	assert.Contains(t, body, "sandboxsync_typings_refresh_duration_seconds_count 1")
	assert.Contains(t, body, "sandboxsync_bundle_fetch_failures_total")
}
