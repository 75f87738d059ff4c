package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/sandboxsync/pkg/broadcast"
	"github.com/sidkik/sandboxsync/pkg/sandbox"
	"github.com/sidkik/sandboxsync/pkg/sync"
)

func newTestServer(t *testing.T, barrier *sync.Barrier) (*broadcast.Hub, *httptest.Server) {
	hub := broadcast.NewHub(0)
	ts := httptest.NewServer(New(hub, barrier).Handler())
	t.Cleanup(ts.Close)
	return hub, ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, ctx context.Context, hub *broadcast.Hub, url string) *websocket.Conn {
	expCount := hub.Count() + 1
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	require.Eventually(t, func() bool { return hub.Count() == expCount },
		5*time.Second, 10*time.Millisecond)
	return conn
}

func receive(t *testing.T, e *broadcast.Endpoint) broadcast.Message {
	select {
	case msg := <-e.Messages():
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestBridgeForwardsMessages(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub, ts := newTestServer(t, nil)
	local := hub.Attach()
	defer local.Close()
	conn := dial(t, ctx, hub, wsURL(ts))

	entry := sandbox.Entry{Type: sandbox.TypeFile, Path: "/index.js", Code: "main()"}
	local.Publish(broadcast.WriteFile{Entry: entry})

	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)
	msg, err := broadcast.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, broadcast.WriteFile{Entry: entry}, msg)

	require.NoError(t, conn.Write(ctx, websocket.MessageText,
		[]byte(`{"$broadcast":true,"$type":"sync-sandbox"}`)))
	assert.Equal(t, broadcast.SyncSandbox{}, receive(t, local))
}

func TestBridgeBetweenRemoteContexts(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub, ts := newTestServer(t, nil)
	first := dial(t, ctx, hub, wsURL(ts))
	second := dial(t, ctx, hub, wsURL(ts))

	data, err := broadcast.Encode(broadcast.Rename{FromPath: "/a.js", ToPath: "/b.js"})
	require.NoError(t, err)
	require.NoError(t, first.Write(ctx, websocket.MessageText, data))

	_, received, err := second.Read(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(received))
}

func TestBridgeIgnoresMalformedFrames(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub, ts := newTestServer(t, nil)
	local := hub.Attach()
	defer local.Close()
	conn := dial(t, ctx, hub, wsURL(ts))

	frames := []string{
		`not json`,
		`{"$broadcast":true,"$type":"unknown-kind"}`,
		`{"$broadcast":true,"$type":"write-file"}`,
		`{"$broadcast":true,"$type":"sync-types"}`,
	}
	for _, frame := range frames {
		require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(frame)))
	}
	require.NoError(t, conn.Write(ctx, websocket.MessageBinary, []byte{0}))

	assert.Equal(t, broadcast.SyncTypes{}, receive(t, local))
	assert.Equal(t, 2, hub.Count())
}

func TestBridgeDetachesOnClose(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub, ts := newTestServer(t, nil)
	conn := dial(t, ctx, hub, wsURL(ts))
	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))

	assert.Eventually(t, func() bool { return hub.Count() == 0 },
		5*time.Second, 10*time.Millisecond)
}

func TestBridgeVersionCheck(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		expAccept bool
	}{
		{"NoVersion", "", true},
		{"Compatible", "?version=1.3.0", true},
		{"Incompatible", "?version=2.0.0", false},
		{"Malformed", "?version=latest", false},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			_, ts := newTestServer(t, nil)
			conn, resp, err := websocket.Dial(ctx, wsURL(ts)+test.query, nil)
			if test.expAccept {
				require.NoError(t, err)
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}

			assert.Error(t, err)
			if assert.NotNil(t, resp) {
				assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	barrier := sync.NewBarrier(3)
	barrier.Signal()
	hub, ts := newTestServer(t, barrier)
	hub.Attach()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var health Health
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, Health{Status: "ok", Contexts: 1, Ready: false, Signals: 1}, health)
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
