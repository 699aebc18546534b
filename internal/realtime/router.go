package realtime

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/observability"
)

// Connection is a live client endpoint able to receive push events.
type Connection interface {
	ID() string
	UserID() string
	// Send enqueues event without blocking and reports whether it was accepted.
	Send(event dto.Event) bool
}

// Pusher delivers events to every connection of a user.
type Pusher interface {
	PushToUser(userID string, event dto.Event) int
	PushToUsers(userIDs []string, event dto.Event) int
}

// Router keeps the personal channel of each user and the chat channels a
// connection has opened. Personal channels carry all push events; chat
// channels only record which chats a connection is currently viewing.
type Router struct {
	mu       sync.RWMutex
	personal map[string]map[string]Connection
	chats    map[string]map[string]Connection
	joined   map[string]map[string]struct{}
	log      zerolog.Logger
}

// NewRouter constructs an empty router.
func NewRouter(logger zerolog.Logger) *Router {
	return &Router{
		personal: make(map[string]map[string]Connection),
		chats:    make(map[string]map[string]Connection),
		joined:   make(map[string]map[string]struct{}),
		log:      logger.With().Str("component", "chat_router").Logger(),
	}
}

// Attach subscribes conn to its user's personal channel.
func (r *Router) Attach(conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userConns, ok := r.personal[conn.UserID()]
	if !ok {
		userConns = make(map[string]Connection)
		r.personal[conn.UserID()] = userConns
	}
	userConns[conn.ID()] = conn
	r.log.Debug().Str("user_id", conn.UserID()).Str("conn_id", conn.ID()).Msg("connection attached")
}

// Detach removes conn from its personal channel and every chat channel.
func (r *Router) Detach(conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if userConns, ok := r.personal[conn.UserID()]; ok {
		delete(userConns, conn.ID())
		if len(userConns) == 0 {
			delete(r.personal, conn.UserID())
		}
	}

	for chatID := range r.joined[conn.ID()] {
		r.removeFromChatLocked(chatID, conn.ID())
	}
	delete(r.joined, conn.ID())
	r.log.Debug().Str("user_id", conn.UserID()).Str("conn_id", conn.ID()).Msg("connection detached")
}

// JoinChat records that conn is viewing chatID. Membership must be checked by the caller.
func (r *Router) JoinChat(conn Connection, chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.chats[chatID]
	if !ok {
		members = make(map[string]Connection)
		r.chats[chatID] = members
	}
	members[conn.ID()] = conn

	rooms, ok := r.joined[conn.ID()]
	if !ok {
		rooms = make(map[string]struct{})
		r.joined[conn.ID()] = rooms
	}
	rooms[chatID] = struct{}{}
}

// LeaveChat removes conn from chatID's channel.
func (r *Router) LeaveChat(conn Connection, chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeFromChatLocked(chatID, conn.ID())
	if rooms, ok := r.joined[conn.ID()]; ok {
		delete(rooms, chatID)
		if len(rooms) == 0 {
			delete(r.joined, conn.ID())
		}
	}
}

func (r *Router) removeFromChatLocked(chatID, connID string) {
	members, ok := r.chats[chatID]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.chats, chatID)
	}
}

// Viewing reports whether any connection of userID has chatID open.
func (r *Router) Viewing(userID, chatID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, conn := range r.chats[chatID] {
		if conn.UserID() == userID {
			return true
		}
	}
	return false
}

// Connections returns how many live connections userID has.
func (r *Router) Connections(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.personal[userID])
}

// PushToUser enqueues event on every connection of userID and returns the
// number of connections that accepted it.
func (r *Router) PushToUser(userID string, event dto.Event) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pushLocked(userID, event)
}

// PushToUsers enqueues event once per distinct user.
func (r *Router) PushToUsers(userIDs []string, event dto.Event) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(userIDs))
	delivered := 0
	for _, userID := range userIDs {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		delivered += r.pushLocked(userID, event)
	}
	return delivered
}

func (r *Router) pushLocked(userID string, event dto.Event) int {
	delivered := 0
	for _, conn := range r.personal[userID] {
		if conn.Send(event) {
			delivered++
			observability.ChatEventsPushed().WithLabelValues(event.Type).Inc()
			continue
		}
		observability.ChatEventsDropped().WithLabelValues(event.Type).Inc()
		r.log.Warn().Str("user_id", userID).Str("conn_id", conn.ID()).Str("event", event.Type).Msg("dropping event for slow client")
	}
	return delivered
}
