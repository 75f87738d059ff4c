package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/sandboxsync/cmd/util"
	"github.com/sidkik/sandboxsync/pkg/broadcast"
	"github.com/sidkik/sandboxsync/pkg/errors"
	"github.com/sidkik/sandboxsync/pkg/metrics"
	"github.com/sidkik/sandboxsync/pkg/sync"
	"github.com/sidkik/sandboxsync/pkg/version"
)

// VersionParam is the query parameter remote contexts use to advertise their
// protocol version.
const VersionParam = "version"

// DefaultReadLimit is the largest message in bytes read from a connection.
// Typings and sandbox snapshots are much larger than the WebSocket library's
// default.
const DefaultReadLimit = 64 << 20

const writeTimeout = 10 * time.Second

// Server attaches remote contexts to a Hub over WebSockets. Each connection
// is a separate context: frames it sends are published to every other
// context, and messages published by other contexts are written back to it.
type Server struct {
	hub       *broadcast.Hub
	barrier   *sync.Barrier
	readLimit int64
}

// Health is the response of the health endpoint.
type Health struct {
	Status   string `json:"status"`
	Contexts int    `json:"contexts"`
	Ready    bool   `json:"ready"`
	Signals  int    `json:"signals"`
}

// New creates a Server. `barrier` is only used to report readiness.
func New(hub *broadcast.Hub, barrier *sync.Barrier) *Server {
	return &Server{hub: hub, barrier: barrier, readLimit: DefaultReadLimit}
}

// SetReadLimit sets the largest message in bytes read from remote contexts.
// -1 disables the limit.
func (s *Server) SetReadLimit(limit int64) {
	s.readLimit = limit
}

// Handler returns the HTTP routes served by the bridge.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Run listens on `addr` and serves the bridge until `ctx` is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.WithContext(err, "listen")
	}

	httpServer := &http.Server{Handler: s.Handler()}
	go func() {
		defer util.HandlePanic()
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Failed to shut down bridge")
		}
	}()

	log.WithField("address", lis.Addr().String()).Info("Sync bridge is ready")
	if err := httpServer.Serve(lis); err != nil && err != http.ErrServerClosed {
		return errors.WithContext(err, "serve")
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if err := version.Compatible(r.URL.Query().Get(VersionParam)); err != nil {
		log.WithError(err).Warn("Rejecting remote context")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	conn.SetReadLimit(s.readLimit)

	endpoint := s.hub.Attach()
	logger := log.WithField("context", endpoint.ID())
	logger.WithField("remote", r.RemoteAddr).Info("Remote context attached")

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		endpoint.Close()
		conn.Close(websocket.StatusNormalClosure, "")
		logger.Info("Remote context detached")
	}()

	go func() {
		defer util.HandlePanic()
		defer cancel()
		writeLoop(ctx, conn, endpoint)
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				logger.WithError(err).Debug("Failed to read from remote context")
			}
			return
		}
		if typ != websocket.MessageText {
			logger.Debug("Ignoring binary frame")
			continue
		}

		msg, err := broadcast.Decode(data)
		if err != nil {
			logger.WithError(err).Warn("Ignoring malformed message")
			continue
		}
		endpoint.Publish(msg)
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, endpoint *broadcast.Endpoint) {
	for {
		var msg broadcast.Message
		var ok bool
		select {
		case msg, ok = <-endpoint.Messages():
			if !ok {
				return
			}
		case <-ctx.Done():
			return
		}

		data, err := broadcast.Encode(msg)
		if err != nil {
			log.WithError(err).WithField("kind", msg.Kind()).Warn("Failed to encode message")
			continue
		}

		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err = conn.Write(writeCtx, websocket.MessageText, data)
		cancel()
		if err != nil {
			log.WithError(err).WithField("context", endpoint.ID()).Debug("Failed to write to remote context")
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := Health{
		Status:   "ok",
		Contexts: s.hub.Count(),
	}
	if s.barrier != nil {
		health.Ready = s.barrier.Resolved()
		health.Signals = s.barrier.Count()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		log.WithError(err).Debug("Failed to write health")
	}
}
