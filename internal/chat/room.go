// Package chat runs the global chat room over WebSocket.
//
// PROTOCOL (JSON text frames):
//
//	client → server   {"message": "hello"}
//	server → client   {"type":"chat_message","message":"hello","username":"alice","user_id":1,"avatar_url":null,"timestamp":"..."}
//	server → client   {"type":"user_count","count":3}
//	server → client   {"type":"error","message":"Message cannot be empty"}
//
// On connect a client first receives the last HistorySize messages, oldest
// first, then live traffic. Every join and leave pushes the new participant
// count to everyone in the room.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sakif/codeofclans/internal/apperror"
	"github.com/sakif/codeofclans/internal/model"
)

const (
	// HistorySize is how many past messages a new connection is replayed.
	HistorySize = 50
	// MaxMessageLength bounds a message in characters.
	MaxMessageLength = 2000

	// subscriberBuffer is how many outbound frames may queue for one
	// connection before it is dropped as too slow.
	subscriberBuffer = 64
)

// Event types.
const (
	EventMessage   = "chat_message"
	EventUserCount = "user_count"
	EventError     = "error"
)

type MessageEvent struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Username  string    `json:"username"`
	UserID    int64     `json:"user_id"`
	AvatarURL *string   `json:"avatar_url"`
	Timestamp time.Time `json:"timestamp"`
}

type CountEvent struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newMessageEvent(m model.ChatMessage) MessageEvent {
	ev := MessageEvent{
		Type:      EventMessage,
		Message:   m.Content,
		Username:  m.Username,
		UserID:    m.AccountID,
		Timestamp: m.CreatedAt,
	}
	if m.AvatarURL != "" {
		ev.AvatarURL = &m.AvatarURL
	}
	return ev
}

// Store is the persistence the room needs.
type Store interface {
	CreateMessage(ctx context.Context, m *model.ChatMessage) error
	RecentMessages(ctx context.Context, limit int) ([]model.ChatMessage, error)
	GetLinkByAccount(ctx context.Context, accountID int64) (*model.IdentityLink, error)
}

// Recorder receives participant counts and posted messages. metrics.Recorder
// satisfies it.
type Recorder interface {
	SetChatParticipants(n int)
	RecordChatMessage()
}

// subscriber is one open connection's outbound queue.
type subscriber struct {
	msgs      chan []byte
	closeSlow func()
	once      sync.Once
}

func newSubscriber(buffer int, closeSlow func()) *subscriber {
	return &subscriber{msgs: make(chan []byte, buffer), closeSlow: closeSlow}
}

func (s *subscriber) dropSlow() {
	s.once.Do(func() { go s.closeSlow() })
}

// Room is the registry of open connections. One Room is built at startup
// and handed to the WebSocket handler; nothing about it is package-global.
//
// Joins, leaves and posts all hold mu, so a joining connection's history
// replay and its live queue neither overlap nor leave a gap, and every
// participant sees counts and messages in the same order.
type Room struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}

	store    Store
	recorder Recorder
	logger   *slog.Logger
}

// NewRoom creates an empty room. rec may be nil.
func NewRoom(store Store, rec Recorder, logger *slog.Logger) *Room {
	return &Room{
		subscribers: make(map[*subscriber]struct{}),
		store:       store,
		recorder:    rec,
		logger:      logger,
	}
}

// Count returns the number of open connections. A user with two tabs open
// counts twice.
func (r *Room) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribers)
}

// join registers s and returns the history it should be replayed.
func (r *Room) join(ctx context.Context, s *subscriber) ([]model.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	history, err := r.store.RecentMessages(ctx, HistorySize)
	if err != nil {
		return nil, fmt.Errorf("chat: loading history: %w", err)
	}
	r.subscribers[s] = struct{}{}
	r.countChangedLocked()
	return history, nil
}

// leave unregisters s. Leaving twice is a no-op.
func (r *Room) leave(s *subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subscribers[s]; !ok {
		return
	}
	delete(r.subscribers, s)
	r.countChangedLocked()
}

func (r *Room) countChangedLocked() {
	n := len(r.subscribers)
	if r.recorder != nil {
		r.recorder.SetChatParticipants(n)
	}
	r.publishLocked(CountEvent{Type: EventUserCount, Count: n})
}

// Post stores a message from author and broadcasts it to the room.
func (r *Room) Post(ctx context.Context, author *model.Account, content string) (*model.ChatMessage, error) {
	content = strings.TrimSpace(content)
	switch {
	case content == "":
		return nil, apperror.ValidationFailed("message", "Message cannot be empty")
	case utf8.RuneCountInString(content) > MaxMessageLength:
		return nil, apperror.ValidationFailed("message", fmt.Sprintf("Message must be at most %d characters", MaxMessageLength))
	}

	m := &model.ChatMessage{AccountID: author.ID, Content: content, Username: author.Username}
	link, err := r.store.GetLinkByAccount(ctx, author.ID)
	switch {
	case err == nil:
		m.AvatarURL = link.AvatarURL
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("chat: loading author %d: %w", author.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.CreateMessage(ctx, m); err != nil {
		return nil, fmt.Errorf("chat: saving message: %w", err)
	}
	if r.recorder != nil {
		r.recorder.RecordChatMessage()
	}
	r.publishLocked(newMessageEvent(*m))
	return m, nil
}

// publishLocked queues ev for every subscriber without blocking. A
// subscriber whose queue is full is disconnected.
func (r *Room) publishLocked(ev any) {
	payload, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error("encoding chat event", slog.String("error", err.Error()))
		return
	}
	for s := range r.subscribers {
		select {
		case s.msgs <- payload:
		default:
			s.dropSlow()
		}
	}
}
