// Package webchat is the HTTP and WebSocket surface for the Chattia widget.
// Both transports run the same pipeline; the WebSocket path additionally
// delivers typing and progress frames while the cloud fallback is consulted.
package webchat

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/ops-online-support/chattia-gateway/internal/escalation"
	"github.com/ops-online-support/chattia-gateway/internal/memory"
	"github.com/ops-online-support/chattia-gateway/internal/pipeline"
	"github.com/ops-online-support/chattia-gateway/internal/session"
	"github.com/ops-online-support/chattia-gateway/pkg/logging"
)

// Handler serves the widget-facing chat endpoints.
type Handler struct {
	pipeline *pipeline.Pipeline
	sessions *session.Store
	memory   *memory.Memory
	trail    escalation.AuditTrail
	logger   *logging.Logger
}

func NewHandler(p *pipeline.Pipeline, sessions *session.Store, mem *memory.Memory, trail escalation.AuditTrail, logger *logging.Logger) *Handler {
	if p == nil || sessions == nil || mem == nil || trail == nil {
		panic("webchat: all dependencies are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{pipeline: p, sessions: sessions, memory: mem, trail: trail, logger: logger}
}

// wireMessage is one history entry on the wire. Timestamp is epoch millis.
type wireMessage struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

func (m wireMessage) toInteraction() session.Interaction {
	in := session.Interaction{Role: m.Role, Text: m.Text}
	if m.Timestamp > 0 {
		in.Timestamp = time.UnixMilli(m.Timestamp)
	}
	return in
}

func toWireMessages(interactions []session.Interaction) []wireMessage {
	out := make([]wireMessage, 0, len(interactions))
	for _, in := range interactions {
		out = append(out, wireMessage{Role: in.Role, Text: in.Text, Timestamp: in.Timestamp.UnixMilli()})
	}
	return out
}

// chatRequest is the POST /v1/chat body.
type chatRequest struct {
	History []wireMessage `json:"history"`
	Message string        `json:"message"`
}

// clientID resolves the opaque widget identity: header first, then query,
// then a fresh identifier.
func clientID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Client-Id")); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.URL.Query().Get("client")); id != "" {
		return id
	}
	return uuid.NewString()
}

func jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// HandleChat runs one chat turn and streams the response as server-sent
// events. Each data frame carries the cumulative response so far; the stream
// ends with a [DONE] frame.
// POST /v1/chat
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id := clientID(r)
	history := make([]session.Interaction, 0, len(req.History))
	for _, m := range req.History {
		history = append(history, m.toInteraction())
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Client-Id", id)
	w.WriteHeader(http.StatusOK)

	writeEvent := func(payload any) {
		raw, err := json.Marshal(payload)
		if err != nil {
			return
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(raw)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}

	h.pipeline.Handle(r.Context(), pipeline.Request{ClientID: id, History: history, Message: req.Message},
		func(chunk string) {
			writeEvent(map[string]string{"response": chunk})
		},
		func(p escalation.Progress) {
			writeEvent(map[string]string{"status": p.Status, "message": p.Message})
		})

	_, _ = w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

// wsInbound is a frame from the widget over WebSocket.
type wsInbound struct {
	Type    string        `json:"type"` // "message", "ping", "reset"
	Text    string        `json:"text,omitempty"`
	History []wireMessage `json:"history,omitempty"`
}

// wsOutbound is a frame to the widget.
type wsOutbound struct {
	Type      string        `json:"type"` // "session", "history", "typing", "message", "progress", "done", "error", "pong"
	Text      string        `json:"text,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	Language  string        `json:"language,omitempty"`
	Status    string        `json:"status,omitempty"`
	Messages  []wireMessage `json:"messages,omitempty"`
}

// HandleWebSocket serves the realtime widget transport.
// GET /v1/chat/ws?client=...&lang=...
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	id := clientID(r)
	language := session.ParseLanguage(r.URL.Query().Get("lang"))

	// Reuse the client's session on reconnect; a fresh Ensure would wipe the
	// interaction log.
	sess := h.sessions.Get(id)
	if sess == nil {
		sess = h.sessions.Ensure(id, language, nil)
	}
	_ = websocket.JSON.Send(conn, wsOutbound{Type: "session", SessionID: sess.ID, Language: string(sess.Language)})
	if len(sess.Interactions) > 0 {
		_ = websocket.JSON.Send(conn, wsOutbound{Type: "history", Messages: toWireMessages(sess.Interactions)})
	}

	h.logger.Info("webchat connection opened", "client_id", id, "session_id", sess.ID)

	for {
		var msg wsInbound
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("webchat connection closed", "client_id", id, "error", err)
			return
		}

		switch msg.Type {
		case "ping":
			_ = websocket.JSON.Send(conn, wsOutbound{Type: "pong"})
		case "reset":
			fresh := h.sessions.StartNew(id, language)
			_ = websocket.JSON.Send(conn, wsOutbound{Type: "session", SessionID: fresh.ID, Language: string(fresh.Language)})
		case "message":
			if strings.TrimSpace(msg.Text) == "" {
				continue
			}
			h.runTurn(conn, r, id, msg)
		}
	}
}

func (h *Handler) runTurn(conn *websocket.Conn, r *http.Request, id string, msg wsInbound) {
	_ = websocket.JSON.Send(conn, wsOutbound{Type: "typing"})

	history := make([]session.Interaction, 0, len(msg.History))
	for _, m := range msg.History {
		history = append(history, m.toInteraction())
	}

	h.pipeline.Handle(r.Context(), pipeline.Request{ClientID: id, History: history, Message: msg.Text},
		func(chunk string) {
			_ = websocket.JSON.Send(conn, wsOutbound{Type: "message", Text: chunk})
		},
		func(p escalation.Progress) {
			_ = websocket.JSON.Send(conn, wsOutbound{Type: "progress", Status: p.Status, Text: p.Message})
		})

	_ = websocket.JSON.Send(conn, wsOutbound{Type: "done"})
}

// sessionResponse is the public view of a session. Signature and honeypot
// token are never exposed.
type sessionResponse struct {
	SessionID string        `json:"session_id"`
	Language  string        `json:"language"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Messages  []wireMessage `json:"messages"`
}

func toSessionResponse(sess *session.Session) sessionResponse {
	return sessionResponse{
		SessionID: sess.ID,
		Language:  string(sess.Language),
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
		Messages:  toWireMessages(sess.Interactions),
	}
}

// HandleSession returns the client's session, creating one if needed.
// GET /v1/session?lang=...
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	id := clientID(r)
	sess := h.sessions.Get(id)
	if sess == nil {
		sess = h.sessions.Ensure(id, session.ParseLanguage(r.URL.Query().Get("lang")), nil)
	}
	w.Header().Set("X-Client-Id", id)
	writeJSON(w, toSessionResponse(sess))
}

// HandleSessionReset rotates the client's session, signature and honeypot
// token included.
// POST /v1/session/reset?lang=...
func (h *Handler) HandleSessionReset(w http.ResponseWriter, r *http.Request) {
	id := clientID(r)
	sess := h.sessions.StartNew(id, session.ParseLanguage(r.URL.Query().Get("lang")))
	h.logger.Info("session reset requested", "client_id", id, "session_id", sess.ID)
	w.Header().Set("X-Client-Id", id)
	writeJSON(w, toSessionResponse(sess))
}

// HandleTranscript decrypts and returns the client's stored interactions.
// GET /v1/transcript
func (h *Handler) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	id := clientID(r)
	sess := h.sessions.Get(id)
	if sess == nil {
		writeJSON(w, map[string]any{"entries": []memory.Entry{}})
		return
	}
	entries, err := h.memory.Transcript(r.Context(), *sess)
	if err != nil {
		h.logger.Error("failed to load transcript", "client_id", id, "error", err)
		jsonError(w, "failed to load transcript", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []memory.Entry{}
	}
	writeJSON(w, map[string]any{"entries": entries})
}

// HandleAnalytics returns the aggregate interaction counters.
// GET /v1/analytics
func (h *Handler) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.memory.Analytics())
}

// HandleAudit lists the escalation audit trail.
// GET /v1/audit
func (h *Handler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.trail.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list audit trail", "error", err)
		jsonError(w, "failed to list audit trail", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []escalation.AuditEntry{}
	}
	writeJSON(w, map[string]any{"entries": entries})
}
