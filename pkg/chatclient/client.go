package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/dto"
)

// ErrNotConnected is returned when a signal is sent without a live stream.
var ErrNotConnected = errors.New("push channel not connected")

// Backend is the request-response surface the client syncs against. *API implements it.
type Backend interface {
	ListChats(ctx context.Context) ([]dto.ChatSummaryResponse, error)
	GetChat(ctx context.Context, chatID string) (dto.ChatDetailResponse, error)
	ListMessages(ctx context.Context, chatID, cursor string) (dto.MessagePageResponse, error)
	SendMessage(ctx context.Context, chatID, content string) (dto.MessageResponse, error)
	MarkRead(ctx context.Context, chatID string) (dto.MessagesReadPayload, error)
	SearchUsers(ctx context.Context, q string) ([]dto.UserResponse, error)
}

// SignalSender delivers client signals over the push channel. *Stream implements it.
type SignalSender interface {
	SendSignal(signal dto.Signal) error
}

// Options configures a Client.
type Options struct {
	SelfID         string
	Username       string
	TypingExpiry   time.Duration
	TypingThrottle time.Duration
	TypingIdle     time.Duration
	Now            func() time.Time
	Logger         zerolog.Logger
}

// Client keeps local caches in sync with the server through optimistic
// writes, push events and reconciling refetches.
type Client struct {
	backend  Backend
	cache    *Cache
	online   *OnlineSet
	typing   *TypingTracker
	emitter  *TypingEmitter
	selfID   string
	username string
	now      func() time.Time
	logger   zerolog.Logger

	mu       sync.Mutex
	signals  SignalSender
	openChat string
	pending  map[string]*PendingSend

	searchMu     sync.Mutex
	searchCancel context.CancelFunc
}

// New creates a client for the signed-in user.
func New(backend Backend, opts Options) *Client {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	username := opts.Username
	if username == "" {
		username = "You"
	}

	c := &Client{
		backend:  backend,
		cache:    NewCache(),
		online:   NewOnlineSet(),
		typing:   NewTypingTracker(opts.TypingExpiry),
		selfID:   opts.SelfID,
		username: username,
		now:      now,
		logger:   opts.Logger.With().Str("component", "chat_client").Logger(),
		pending:  make(map[string]*PendingSend),
	}
	c.emitter = NewTypingEmitter(c, opts.TypingThrottle, opts.TypingIdle)
	return c
}

func (c *Client) Cache() *Cache          { return c.cache }
func (c *Client) Online() *OnlineSet     { return c.online }
func (c *Client) Typing() *TypingTracker { return c.typing }

// Attach sets the push channel used for signals. Passing nil detaches it.
func (c *Client) Attach(signals SignalSender) {
	c.mu.Lock()
	c.signals = signals
	c.mu.Unlock()
}

// SendSignal forwards a signal to the attached push channel.
func (c *Client) SendSignal(signal dto.Signal) error {
	c.mu.Lock()
	signals := c.signals
	c.mu.Unlock()
	if signals == nil {
		return ErrNotConnected
	}
	return signals.SendSignal(signal)
}

// RefreshChats refetches the chat list.
func (c *Client) RefreshChats(ctx context.Context) error {
	chats, err := c.backend.ListChats(ctx)
	if err != nil {
		return err
	}
	c.cache.setChats(chats)
	return nil
}

// LoadChat fetches and caches a chat's detail.
func (c *Client) LoadChat(ctx context.Context, chatID string) (dto.ChatDetailResponse, error) {
	detail, err := c.backend.GetChat(ctx, chatID)
	if err != nil {
		return dto.ChatDetailResponse{}, err
	}
	c.cache.setDetail(detail)
	return detail, nil
}

// LoadMessages fetches the newest page of chatID, replacing cached pages.
func (c *Client) LoadMessages(ctx context.Context, chatID string) error {
	page, err := c.backend.ListMessages(ctx, chatID, "")
	if err != nil {
		return err
	}
	c.cache.setFirstPage(chatID, page)
	return nil
}

// LoadOlderMessages fetches the page after the oldest cached one. It reports
// false when there is nothing further back.
func (c *Client) LoadOlderMessages(ctx context.Context, chatID string) (bool, error) {
	cursor, ok := c.cache.NextCursor(chatID)
	if !ok {
		return false, nil
	}
	page, err := c.backend.ListMessages(ctx, chatID, cursor)
	if err != nil {
		return false, err
	}
	c.cache.appendPage(chatID, page)
	return true, nil
}

// Send writes a provisional message into the caches, sends it, and then
// confirms or rolls back that change. The authoritative list and page are
// refetched either way.
func (c *Client) Send(ctx context.Context, chatID, content string) (*PendingSend, error) {
	p := &PendingSend{
		TempID:    "temp-" + uuid.NewString(),
		ChatID:    chatID,
		Content:   content,
		CreatedAt: c.now(),
		State:     PendingStatePending,
	}
	c.emitter.Sent(chatID)

	c.mu.Lock()
	c.pending[p.TempID] = p
	c.mu.Unlock()

	c.cache.applyOptimistic(p, dto.MessageResponse{
		ID:             p.TempID,
		ChatID:         chatID,
		SenderID:       PendingSelf,
		SenderUsername: c.username,
		Content:        content,
		CreatedAt:      p.CreatedAt,
	})

	stored, err := c.backend.SendMessage(ctx, chatID, content)

	c.mu.Lock()
	delete(c.pending, p.TempID)
	others := c.pendingForLocked(chatID)
	if err != nil {
		c.cache.rollback(p, others)
		p.State = PendingStateRolledBack
		p.Err = err
	} else {
		c.cache.confirm(p, stored, others)
		p.State = PendingStateConfirmed
		p.Message = &stored
	}
	c.mu.Unlock()

	c.reconcile(ctx, chatID)
	return p, err
}

// Pending returns the sends still waiting on the server.
func (c *Client) Pending() []PendingSend {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PendingSend, 0, len(c.pending))
	for _, p := range c.pending {
		out = append(out, PendingSend{
			TempID:    p.TempID,
			ChatID:    p.ChatID,
			Content:   p.Content,
			CreatedAt: p.CreatedAt,
			State:     p.State,
		})
	}
	return out
}

func (c *Client) pendingForLocked(chatID string) []*PendingSend {
	var out []*PendingSend
	for _, p := range c.pending {
		if p.ChatID == chatID {
			out = append(out, p)
		}
	}
	return out
}

func (c *Client) reconcile(ctx context.Context, chatID string) {
	if err := c.LoadMessages(ctx, chatID); err != nil {
		c.logger.Warn().Err(err).Str("chat_id", chatID).Msg("message refetch failed")
	}
	if err := c.RefreshChats(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("chat list refetch failed")
	}
}

// MarkRead sends a read receipt and zeroes the local unread count.
func (c *Client) MarkRead(ctx context.Context, chatID string) error {
	if _, err := c.backend.MarkRead(ctx, chatID); err != nil {
		return err
	}
	c.cache.setUnread(chatID, 0)
	return nil
}

// OpenChat makes chatID the chat in view: it joins the room, marks it read
// and keeps its unread count at zero while open.
func (c *Client) OpenChat(ctx context.Context, chatID string) error {
	c.mu.Lock()
	previous := c.openChat
	c.openChat = chatID
	c.mu.Unlock()

	if previous != "" && previous != chatID {
		c.signal(dto.SignalLeaveChat, previous)
	}
	c.signal(dto.SignalJoinChat, chatID)
	return c.MarkRead(ctx, chatID)
}

// CloseChat leaves the chat in view, if any.
func (c *Client) CloseChat() {
	c.mu.Lock()
	previous := c.openChat
	c.openChat = ""
	c.mu.Unlock()

	if previous != "" {
		c.signal(dto.SignalLeaveChat, previous)
	}
}

// OpenChatID returns the chat in view.
func (c *Client) OpenChatID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openChat
}

// Input reports compose-box activity for typing signals.
func (c *Client) Input(chatID, text string) {
	c.emitter.Input(chatID, text)
}

// Search looks users up by name or email. Starting a new search cancels the
// one still in flight, which then returns context.Canceled.
func (c *Client) Search(ctx context.Context, q string) ([]dto.UserResponse, error) {
	ctx, cancel := context.WithCancel(ctx)

	c.searchMu.Lock()
	if c.searchCancel != nil {
		c.searchCancel()
	}
	c.searchCancel = cancel
	c.searchMu.Unlock()
	defer cancel()

	if len([]rune(strings.TrimSpace(q))) < 2 {
		return []dto.UserResponse{}, nil
	}
	users, err := c.backend.SearchUsers(ctx, q)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return users, err
}

// Disconnected clears state that only the push channel keeps current.
func (c *Client) Disconnected() {
	c.online.Clear()
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Handle applies one raw push frame.
func (c *Client) Handle(ctx context.Context, raw []byte) error {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}

	switch f.Type {
	case dto.EventNewMessage:
		var message dto.MessageResponse
		if err := json.Unmarshal(f.Payload, &message); err != nil {
			return fmt.Errorf("decode %s: %w", f.Type, err)
		}
		return c.applyNewMessage(ctx, message)

	case dto.EventMessagesRead:
		var receipt dto.MessagesReadPayload
		if err := json.Unmarshal(f.Payload, &receipt); err != nil {
			return fmt.Errorf("decode %s: %w", f.Type, err)
		}
		c.cache.applyReadReceipt(receipt, c.selfID)
		return nil

	case dto.EventParticipantAdded:
		var added dto.ParticipantAddedPayload
		if err := json.Unmarshal(f.Payload, &added); err != nil {
			return fmt.Errorf("decode %s: %w", f.Type, err)
		}
		c.cache.addParticipant(added.ChatID, added.Participant)
		return c.RefreshChats(ctx)

	case dto.EventParticipantRemoved:
		var removed dto.ParticipantRemovedPayload
		if err := json.Unmarshal(f.Payload, &removed); err != nil {
			return fmt.Errorf("decode %s: %w", f.Type, err)
		}
		if removed.UserID == c.selfID {
			c.cache.forget(removed.ChatID)
			c.mu.Lock()
			if c.openChat == removed.ChatID {
				c.openChat = ""
			}
			c.mu.Unlock()
		} else {
			c.cache.removeParticipant(removed.ChatID, removed.UserID)
		}
		return c.RefreshChats(ctx)

	case dto.EventUserTyping, dto.EventUserStopTyping:
		var typing dto.TypingPayload
		if err := json.Unmarshal(f.Payload, &typing); err != nil {
			return fmt.Errorf("decode %s: %w", f.Type, err)
		}
		if f.Type == dto.EventUserTyping {
			c.typing.Start(typing.ChatID, typing.UserID, typing.Username)
		} else {
			c.typing.Stop(typing.ChatID, typing.UserID)
		}
		return nil

	case dto.EventOnlineUsers:
		var snapshot dto.OnlineUsersPayload
		if err := json.Unmarshal(f.Payload, &snapshot); err != nil {
			return fmt.Errorf("decode %s: %w", f.Type, err)
		}
		c.online.Replace(snapshot.UserIDs)
		return nil

	case dto.EventUserOnline, dto.EventUserOffline:
		var presence dto.PresencePayload
		if err := json.Unmarshal(f.Payload, &presence); err != nil {
			return fmt.Errorf("decode %s: %w", f.Type, err)
		}
		if f.Type == dto.EventUserOnline {
			c.online.Add(presence.UserID)
		} else {
			c.online.Remove(presence.UserID)
		}
		return nil

	default:
		c.logger.Debug().Str("type", f.Type).Msg("ignoring unknown push event")
		return nil
	}
}

func (c *Client) applyNewMessage(ctx context.Context, message dto.MessageResponse) error {
	// an unknown chat means our membership was reactivated
	if !c.cache.HasChat(message.ChatID) {
		return c.RefreshChats(ctx)
	}

	open := c.OpenChatID() == message.ChatID
	c.cache.prependMessage(message.ChatID, message, false)
	c.cache.promote(message.ChatID, lastMessageOf(message), func(unread int) int {
		if open {
			return 0
		}
		return unread + 1
	})
	c.typing.Stop(message.ChatID, message.SenderID)

	if open {
		if _, err := c.backend.MarkRead(ctx, message.ChatID); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) signal(signalType, chatID string) {
	if err := c.SendSignal(dto.Signal{Type: signalType, ChatID: chatID}); err != nil && !errors.Is(err, ErrNotConnected) {
		c.logger.Warn().Err(err).Str("type", signalType).Str("chat_id", chatID).Msg("signal not sent")
	}
}
