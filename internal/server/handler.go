package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bstrzelecki/asteroids-server/internal/net/proto"
)

// Handler exposes the hub over HTTP: a join handshake, the websocket
// snapshot stream, a health probe, and diagnostics.
type Handler struct {
	hub      *Hub
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewHandler wires a handler around the hub.
func NewHandler(hub *Hub, log zerolog.Logger) *Handler {
	return &Handler{
		hub: hub,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Routes registers the handler's endpoints on a fresh mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/join", h.handleJoin)
	mux.HandleFunc("/ws", h.handleWS)
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/diagnostics", h.handleDiagnostics)
	return mux
}

type joinRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed join request", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		req.Name = "anonymous"
	}

	join := h.hub.Join(req.Name)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(join); err != nil {
		h.log.Error().Err(err).Msg("encode join response")
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Handler) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.hub.Diagnostics()); err != nil {
		h.log.Error().Err(err).Msg("encode diagnostics")
	}
}

func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sess, ok := h.hub.Subscribe(token, conn)
	if !ok {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown session")
		conn.WriteMessage(websocket.CloseMessage, msg)
		conn.Close()
		return
	}

	h.readLoop(sess, conn)
}

// readLoop pumps client messages until the connection drops or the
// session accumulates too many protocol violations.
func (h *Handler) readLoop(sess *session, conn *websocket.Conn) {
	token := sess.token
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			h.hub.Disconnect(token)
			return
		}

		msg, err := proto.DecodeClientMessage(payload)
		if err != nil {
			if errors.Is(err, proto.ErrVersionMismatch) {
				h.log.Warn().Str("player", sess.player).Int("ver", msg.Ver).Msg("protocol version mismatch")
			} else {
				h.log.Warn().Err(err).Str("player", sess.player).Msg("malformed client message")
			}
			if h.hub.NoteViolation(token) {
				h.closeForViolations(conn, token)
				return
			}
			continue
		}

		switch msg.Type {
		case proto.TypeInput:
			h.hub.HandleInput(token, msg.Seq, msg.Input())
		case proto.TypeAck:
			if h.hub.HandleAck(token, msg.Tick) {
				h.closeForViolations(conn, token)
				return
			}
		case proto.TypeKeyframeReq:
			h.hub.HandleKeyframeRequest(token)
		case proto.TypeHeartbeat:
			now := time.Now()
			rtt, tick, ok := h.hub.HandleHeartbeat(token, now, msg.SentAt)
			if !ok {
				return
			}
			ack, err := proto.EncodeHeartbeatAck(proto.HeartbeatAck{
				Tick:       tick,
				ServerTime: now.UnixMilli(),
				ClientTime: msg.SentAt,
				RTTMillis:  rtt.Milliseconds(),
			})
			if err != nil {
				h.log.Error().Err(err).Msg("encode heartbeat ack")
				continue
			}
			if err := sess.write(ack, writeWait); err != nil {
				h.hub.Disconnect(token)
				return
			}
		default:
			h.log.Warn().Str("player", sess.player).Str("type", msg.Type).Msg("unknown message type")
			if h.hub.NoteViolation(token) {
				h.closeForViolations(conn, token)
				return
			}
		}
	}
}

func (h *Handler) closeForViolations(conn *websocket.Conn, token string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "protocol violations")
	conn.WriteMessage(websocket.CloseMessage, msg)
	h.hub.Disconnect(token)
}
