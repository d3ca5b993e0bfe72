package handoff

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsSendBuffer   = 64
	wsReadLimit    = 64 << 10
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteWait    = 5 * time.Second
)

// WSHandler streams bus messages to browsers and republishes what they send.
type WSHandler struct {
	bus      *Bus
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWSHandler creates a websocket handler on bus.
// Origins are not checked; any page may connect. A connection without
// ?session= is not scoped and receives the messages of every session,
// including the transcripts carried by recover-conversation.
func NewWSHandler(bus *Bus, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		bus: bus,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP upgrades the connection.
// Query params:
//   - types: comma-separated message types to receive (empty = all)
//   - session: only receive messages for this session (empty = all)
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var typeFilter map[Type]bool
	if param := r.URL.Query().Get("types"); param != "" {
		typeFilter = make(map[Type]bool)
		for _, t := range strings.Split(param, ",") {
			if t = strings.TrimSpace(t); t != "" {
				typeFilter[Type(t)] = true
			}
		}
	}
	session := r.URL.Query().Get("session")

	sendCh := make(chan Message, wsSendBuffer)

	// Subscribe before the handshake completes so nothing published after
	// the client connects is missed.
	unsubscribe := h.bus.Subscribe(func(msg Message) {
		if typeFilter != nil && !typeFilter[msg.Type] {
			return
		}
		if session != "" && msg.SessionID != "" && msg.SessionID != session {
			return
		}
		select {
		case sendCh <- msg:
		default:
			h.logger.Warn("hand-off message dropped, client too slow", "type", msg.Type)
		}
	})
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(wsReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				if _, ok := err.(*websocket.CloseError); !ok && !isTimeout(err) {
					h.logger.Debug("websocket read ended", "error", err)
				}
				return
			}
			if err := msg.Validate(); err != nil {
				h.logger.Warn("invalid hand-off message from client", "error", err)
				continue
			}
			if msg.SessionID == "" {
				msg.SessionID = session
			}
			h.bus.Publish(msg)
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	var writeMu sync.Mutex
	write := func(fn func() error) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return fn()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if err := write(func() error { return conn.WriteMessage(websocket.PingMessage, nil) }); err != nil {
				return
			}
		case msg := <-sendCh:
			if err := write(func() error { return conn.WriteJSON(msg) }); err != nil {
				return
			}
		}
	}
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	t, ok := err.(timeout)
	return ok && t.Timeout()
}
