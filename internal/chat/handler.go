package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/sakif/codeofclans/internal/apperror"
	"github.com/sakif/codeofclans/internal/auth"
	"github.com/sakif/codeofclans/internal/model"
)

const (
	writeTimeout = 5 * time.Second
	// maxFrameSize leaves room for MaxMessageLength multi-byte characters
	// plus the JSON envelope.
	maxFrameSize = 16 << 10
)

// Handler upgrades authenticated requests to a chat connection.
//
// HTTP: GET /ws/chat?token=<access token>
//
// It must sit behind auth.RequireQueryToken: browsers cannot set an
// Authorization header on a WebSocket handshake.
type Handler struct {
	room    *Room
	origins []string
	logger  *slog.Logger
}

// NewHandler serves room. origins are the cross-origin host patterns allowed
// to connect; see websocket.AcceptOptions.OriginPatterns.
func NewHandler(room *Room, origins []string, logger *slog.Logger) *Handler {
	return &Handler{room: room, origins: origins, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
		return
	}
	account := id.Account

	// The server's read and write timeouts would otherwise cut every
	// connection off after a few seconds.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		// Accept has already written the handshake error.
		h.logger.Warn("chat upgrade failed", slog.Int64("accountID", account.ID), slog.String("error", err.Error()))
		return
	}
	defer c.CloseNow()
	c.SetReadLimit(maxFrameSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s := newSubscriber(subscriberBuffer, func() {
		c.Close(websocket.StatusPolicyViolation, "connection too slow to keep up with messages")
	})
	history, err := h.room.join(ctx, s)
	if err != nil {
		h.logger.Error("chat join failed", slog.Int64("accountID", account.ID), slog.String("error", err.Error()))
		c.Close(websocket.StatusInternalError, "chat is unavailable")
		return
	}
	defer h.room.leave(s)

	h.logger.Debug("chat connected", slog.Int64("accountID", account.ID))

	for _, m := range history {
		if err := writeJSON(ctx, c, newMessageEvent(m)); err != nil {
			return
		}
	}

	readErr := make(chan error, 1)
	go func() { readErr <- h.readLoop(ctx, c, account) }()

	for {
		select {
		case payload := <-s.msgs:
			if err := write(ctx, c, payload); err != nil {
				return
			}
		case err := <-readErr:
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				h.logger.Debug("chat connection closed", slog.Int64("accountID", account.ID), slog.String("error", err.Error()))
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

// readLoop posts every inbound message until the connection fails. Bad
// input is answered with an error event and the connection stays open.
func (h *Handler) readLoop(ctx context.Context, c *websocket.Conn, account *model.Account) error {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			return err
		}

		var in struct {
			Message string `json:"message"`
		}
		if typ != websocket.MessageText || json.Unmarshal(data, &in) != nil {
			if err := writeJSON(ctx, c, ErrorEvent{Type: EventError, Message: "Invalid message"}); err != nil {
				return err
			}
			continue
		}

		if _, err := h.room.Post(ctx, account, in.Message); err != nil {
			msg := "Message could not be sent"
			if errors.Is(err, apperror.ErrValidation) {
				msg = apperror.Message(err)
			} else {
				h.logger.Error("chat post failed", slog.Int64("accountID", account.ID), slog.String("error", err.Error()))
			}
			if err := writeJSON(ctx, c, ErrorEvent{Type: EventError, Message: msg}); err != nil {
				return err
			}
		}
	}
}

func writeJSON(ctx context.Context, c *websocket.Conn, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return write(ctx, c, payload)
}

func write(ctx context.Context, c *websocket.Conn, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.Write(ctx, websocket.MessageText, payload)
}
