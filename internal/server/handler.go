package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"minerva/internal/broadcast"
	"minerva/internal/eventbus"
	"minerva/internal/tracker"
	logx "minerva/pkg/logx"
)

// statusReport is the inbound wire payload. Status is a pointer so a missing
// field can be told apart from an empty string.
type statusReport struct {
	PromptID string  `json:"prompt_id"`
	Status   *string `json:"status"`
}

var errMalformed = errors.New("malformed status report")

func parseReport(data []byte) (id, status string, err error) {
	var r statusReport
	if err := json.Unmarshal(data, &r); err != nil {
		return "", "", errors.Join(errMalformed, err)
	}
	if strings.TrimSpace(r.PromptID) == "" {
		return "", "", errors.Join(errMalformed, errors.New("prompt_id is required"))
	}
	if r.Status == nil {
		return "", "", errors.Join(errMalformed, errors.New("status is required"))
	}
	return r.PromptID, *r.Status, nil
}

// HandlerConfig wires a Handler to one run's shared state.
type HandlerConfig struct {
	Tracker *tracker.Tracker
	Clients *broadcast.Channel
	Bus     eventbus.Bus // optional

	WriteTimeout time.Duration
	ReadLimit    int64
}

// Handler upgrades requests to websockets and runs one read loop per client.
// Close disconnects every client and waits for the read loops to return.
type Handler struct {
	cfg      HandlerConfig
	log      logx.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	closed bool
	conns  map[*broadcast.WSConn]struct{}
	wg     sync.WaitGroup
}

func NewHandler(cfg HandlerConfig, log logx.Logger) *Handler {
	return &Handler{
		cfg: cfg,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The client is a local browser UI served from another origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: map[*broadcast.WSConn]struct{}{},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "server stopping", http.StatusServiceUnavailable)
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		h.log.Warn("websocket upgrade failed", logx.String("remote", r.RemoteAddr), logx.Err(err))
		return
	}
	conn := broadcast.NewWSConn(ws, h.cfg.WriteTimeout)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.CloseWith(websocket.CloseGoingAway, "server stopping")
		return
	}
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	h.serveConn(conn)

	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}

func (h *Handler) serveConn(conn *broadcast.WSConn) {
	log := h.log.With(logx.String("client", conn.ID()), logx.String("remote", conn.RemoteAddr()))
	ws := conn.Underlying()
	if h.cfg.ReadLimit > 0 {
		ws.SetReadLimit(h.cfg.ReadLimit)
	}

	h.cfg.Clients.Add(conn)
	log.Info("client connected", logx.Int("clients", h.cfg.Clients.Len()))
	h.publish(eventbus.TypeClientConnected, eventbus.Client{ID: conn.ID(), Remote: conn.RemoteAddr()})

	defer func() {
		h.cfg.Clients.Remove(conn)
		_ = conn.Close()
		log.Info("client disconnected", logx.Int("clients", h.cfg.Clients.Len()))
		h.publish(eventbus.TypeClientGone, eventbus.Client{ID: conn.ID(), Remote: conn.RemoteAddr()})
	}()

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Debug("client read ended", logx.Err(err))
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		h.handleReport(log, data)
	}
}

func (h *Handler) handleReport(log logx.Logger, data []byte) {
	id, status, err := parseReport(data)
	if err != nil {
		log.Error("malformed status report ignored", logx.Err(err), logx.Int("bytes", len(data)))
		return
	}
	known, changed := h.cfg.Tracker.Update(id, status)
	if !known {
		log.Debug("status for unknown prompt ignored", logx.String("prompt_id", id), logx.String("status", status))
		return
	}
	if !changed {
		return
	}
	log.Debug("prompt status updated", logx.String("prompt_id", id), logx.String("status", status), logx.Int("in_flight", h.cfg.Tracker.InFlight()))
	h.publish(eventbus.TypePromptStatus, eventbus.PromptStatus{ID: id, Status: status})
}

func (h *Handler) publish(typ string, data any) {
	if h.cfg.Bus == nil {
		return
	}
	h.cfg.Bus.Publish(eventbus.Event{Type: typ, Data: data})
}

// Close rejects new clients, closes the connected ones and waits for their
// read loops to finish.
func (h *Handler) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*broadcast.WSConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.CloseWith(websocket.CloseGoingAway, "server stopping")
	}
	h.wg.Wait()
}
