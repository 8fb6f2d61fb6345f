package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"trivia-board/internal/app"
)

// Handler wires websocket connections and the session REST surface into the
// coordinator.
type Handler struct {
	coordinator *app.Coordinator
	adminToken  string
	upgrader    websocket.Upgrader
}

func NewHandler(coordinator *app.Coordinator, adminToken string) *Handler {
	return &Handler{
		coordinator: coordinator,
		adminToken:  adminToken,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Register mounts all routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/sessions", h.handleCreateSession)
	mux.HandleFunc("/sessions/", h.handleSessionLobby)
	mux.HandleFunc("/ws", h.ServeWS)
	mux.HandleFunc("/ws/admin", h.ServeAdminWS)
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type submitAnswerPayload struct {
	RoundID uuid.UUID `json:"roundId"`
	Text    string    `json:"text"`
}

type selectQuestionPayload struct {
	QuestionID uuid.UUID `json:"questionId"`
}

type roundRefPayload struct {
	RoundID uuid.UUID `json:"roundId"`
}

type markAnswerPayload struct {
	AnswerID uuid.UUID `json:"answerId"`
	Correct  bool      `json:"correct"`
	Points   int       `json:"points"`
}

// wsConn adapts a gorilla connection to app.Conn. Sends enqueue onto a
// buffered channel drained by a single write pump, so broadcasts never
// write the socket concurrently and never block on a slow client.
type wsConn struct {
	id   string
	conn *websocket.Conn
	send chan app.Event
	done chan struct{}
	once sync.Once
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan app.Event, 64),
		done: make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(evt app.Event) {
	select {
	case c.send <- evt:
	case <-c.done:
	default:
		// slow client: drop rather than stall the whole group
		log.Debug().Str("conn_id", c.id).Str("event", evt.Type).Msg("dropping event for slow client")
	}
}

func (c *wsConn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case evt := <-c.send:
			if err := c.conn.WriteJSON(evt); err != nil {
				log.Debug().Err(err).Str("conn_id", c.id).Msg("ws write failed")
				c.close()
				return
			}
		}
	}
}

func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// ServeWS upgrades a player connection and joins it to the session behind
// the given code.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	nickname := r.URL.Query().Get("nickname")
	if code == "" || nickname == "" {
		http.Error(w, "missing code or nickname", http.StatusBadRequest)
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("ws upgrade failed")
		return
	}
	conn := newWSConn(raw)
	go conn.writePump()
	defer conn.close()

	ctx := r.Context()
	participant, summary, err := h.coordinator.JoinSession(ctx, conn, code, nickname)
	if err != nil {
		// not yet registered, so nothing else writes this socket
		_ = raw.WriteJSON(app.ErrorEvent(err))
		return
	}
	defer h.coordinator.Disconnect(context.Background(), conn)

	conn.Send(app.Event{Type: app.EventJoined, Payload: map[string]any{
		"participant": participant,
		"summary":     summary,
	}})

	for {
		var inbound inboundMessage
		if err := raw.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case "submit_answer":
			var payload submitAnswerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				conn.Send(app.Event{Type: app.EventValidationError, Payload: map[string]string{"message": "invalid submit_answer payload"}})
				continue
			}
			if _, err := h.coordinator.SubmitAnswer(ctx, participant.SessionID, participant.ID, payload.RoundID, payload.Text); err != nil {
				conn.Send(app.ErrorEvent(err))
			}
		default:
			conn.Send(app.Event{Type: app.EventValidationError, Payload: map[string]string{"message": "unsupported message type"}})
		}
	}
}

// ServeAdminWS upgrades an admin connection. Admin identity is a bearer
// token supplied by the identity surface; the engine only needs the
// resulting yes/no fact.
func (h *Handler) ServeAdminWS(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}
	if h.adminToken == "" || r.URL.Query().Get("token") != h.adminToken {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("admin ws upgrade failed")
		return
	}
	conn := newWSConn(raw)
	go conn.writePump()
	defer conn.close()

	ctx := r.Context()
	sess, summary, err := h.coordinator.JoinAsAdmin(ctx, conn, code)
	if err != nil {
		_ = raw.WriteJSON(app.ErrorEvent(err))
		return
	}
	defer h.coordinator.Disconnect(context.Background(), conn)

	conn.Send(app.Event{Type: app.EventJoined, Payload: map[string]any{
		"session": sess,
		"summary": summary,
	}})

	for {
		var inbound inboundMessage
		if err := raw.ReadJSON(&inbound); err != nil {
			return
		}
		if err := h.dispatchAdmin(ctx, sess.ID, inbound); err != nil {
			conn.Send(app.ErrorEvent(err))
		}
	}
}

func (h *Handler) dispatchAdmin(ctx context.Context, sessionID uuid.UUID, inbound inboundMessage) error {
	switch inbound.Type {
	case "select_question":
		var payload selectQuestionPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errInvalidPayload(inbound.Type)
		}
		_, err := h.coordinator.SelectQuestion(ctx, sessionID, payload.QuestionID)
		return err
	case "show_answer":
		var payload roundRefPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errInvalidPayload(inbound.Type)
		}
		return h.coordinator.ShowAnswer(ctx, sessionID, payload.RoundID)
	case "end_round":
		var payload roundRefPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errInvalidPayload(inbound.Type)
		}
		return h.coordinator.EndRound(ctx, sessionID, payload.RoundID)
	case "mark_answer":
		var payload markAnswerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errInvalidPayload(inbound.Type)
		}
		_, err := h.coordinator.MarkAnswer(ctx, sessionID, payload.AnswerID, payload.Correct, payload.Points)
		return err
	case "mark_round_answered":
		var payload roundRefPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errInvalidPayload(inbound.Type)
		}
		return h.coordinator.MarkRoundAsAnswered(ctx, sessionID, payload.RoundID)
	default:
		return errInvalidPayload(inbound.Type)
	}
}
