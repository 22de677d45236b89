package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gorilla/websocket"

	"cardcat/internal/enrich"
	"cardcat/internal/logging"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsWriteTimeout     = 10 * time.Second
)

// sseSink writes events as server-sent event frames.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) Send(_ context.Context, ev enrich.Event) error {
	if err := sse.Encode(s.w, sse.Event{Event: ev.Name, Data: ev.Data}); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *Server) handleEnrichSSE(w http.ResponseWriter, r *http.Request) {
	req, err := decodeQueries(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := enrich.ParseMode(req.Mode)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", sse.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.runStream(r.Context(), mode, req, &sseSink{w: w, flusher: flusher})
}

// wsFrame is the websocket envelope for one event.
type wsFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// wsSink writes events as JSON text frames.
type wsSink struct {
	conn *websocket.Conn
}

func (s *wsSink) Send(_ context.Context, ev enrich.Event) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(wsFrame{Event: ev.Name, Data: ev.Data})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (s *Server) handleEnrichWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		s.logger.Debug("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxRequestBytes)

	var req ResolveRequest
	_ = conn.SetReadDeadline(time.Now().Add(wsHandshakeTimeout))
	if err := conn.ReadJSON(&req); err != nil {
		s.closeWebsocket(conn, websocket.CloseInvalidFramePayloadData, "invalid request")
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	if len(req.Queries) == 0 || len(req.Queries) > maxQueriesPerRequest {
		s.closeWebsocket(conn, websocket.ClosePolicyViolation, "queries must contain between 1 and 1000 entries")
		return
	}
	mode, err := enrich.ParseMode(req.Mode)
	if err != nil {
		s.closeWebsocket(conn, websocket.ClosePolicyViolation, err.Error())
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		// Any read error means the client went away.
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	s.runStream(ctx, mode, req, &wsSink{conn: conn})
	s.closeWebsocket(conn, websocket.CloseNormalClosure, "")
	cancel()
	_ = conn.SetReadDeadline(time.Now())
	readers.Wait()
}

func (s *Server) closeWebsocket(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func (s *Server) runStream(ctx context.Context, mode enrich.Mode, req ResolveRequest, sink enrich.Sink) {
	err := s.runner(mode).Run(ctx, req.Queries, sink)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	s.logger.Debug("enrichment stream ended early",
		logging.Int("queries", len(req.Queries)),
		logging.Error(err),
	)
}
