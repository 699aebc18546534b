package realtime

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/observability"
)

// ContactLookup lists the users sharing at least one active chat with userID.
type ContactLookup interface {
	Contacts(ctx context.Context, userID string) ([]string, error)
}

// Presence tracks which users hold at least one live connection and announces
// the offline→online and online→offline transitions to their contacts.
type Presence struct {
	mu       sync.Mutex
	conns    map[string]map[string]struct{}
	users    *KeyedMutex
	contacts ContactLookup
	pusher   Pusher
	log      zerolog.Logger
}

// NewPresence constructs a presence tracker.
func NewPresence(contacts ContactLookup, pusher Pusher, logger zerolog.Logger) *Presence {
	return &Presence{
		conns:    make(map[string]map[string]struct{}),
		users:    NewKeyedMutex(),
		contacts: contacts,
		pusher:   pusher,
		log:      logger.With().Str("component", "chat_presence").Logger(),
	}
}

// Connect registers connID for userID. When it is the user's first connection
// every contact receives user-online. The returned slice is the subset of
// contacts online right now, whether or not a transition happened.
func (p *Presence) Connect(ctx context.Context, userID, connID string) []string {
	unlock := p.users.Lock(userID)
	defer unlock()

	p.mu.Lock()
	set, ok := p.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		p.conns[userID] = set
	}
	cameOnline := len(set) == 0
	set[connID] = struct{}{}
	p.mu.Unlock()

	contacts := p.lookup(ctx, userID)
	if cameOnline {
		observability.ChatUsersOnline().Inc()
		p.pusher.PushToUsers(contacts, dto.NewEvent(dto.EventUserOnline, dto.PresencePayload{UserID: userID}))
		p.log.Debug().Str("user_id", userID).Int("contacts", len(contacts)).Msg("user online")
	}

	online := make([]string, 0, len(contacts))
	for _, contact := range contacts {
		if p.IsOnline(contact) {
			online = append(online, contact)
		}
	}
	return online
}

// Disconnect removes connID. When it was the user's last connection every
// contact receives user-offline. Unknown connections are ignored.
func (p *Presence) Disconnect(ctx context.Context, userID, connID string) {
	unlock := p.users.Lock(userID)
	defer unlock()

	p.mu.Lock()
	set, ok := p.conns[userID]
	if !ok {
		p.mu.Unlock()
		return
	}
	if _, known := set[connID]; !known {
		p.mu.Unlock()
		return
	}
	delete(set, connID)
	wentOffline := len(set) == 0
	if wentOffline {
		delete(p.conns, userID)
	}
	p.mu.Unlock()

	if !wentOffline {
		return
	}

	observability.ChatUsersOnline().Dec()
	contacts := p.lookup(ctx, userID)
	p.pusher.PushToUsers(contacts, dto.NewEvent(dto.EventUserOffline, dto.PresencePayload{UserID: userID}))
	p.log.Debug().Str("user_id", userID).Int("contacts", len(contacts)).Msg("user offline")
}

// IsOnline reports whether userID has at least one live connection.
func (p *Presence) IsOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns[userID]) > 0
}

// OnlineCount returns the number of online users.
func (p *Presence) OnlineCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// lookup treats a failing contact query as "no contacts": the connection
// itself still counts, only the announcement is skipped.
func (p *Presence) lookup(ctx context.Context, userID string) []string {
	contacts, err := p.contacts.Contacts(ctx, userID)
	if err != nil {
		p.log.Warn().Err(err).Str("user_id", userID).Msg("contact lookup failed")
		return nil
	}
	return contacts
}
