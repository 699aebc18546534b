package realtime

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/dto"
)

// Identity is the authenticated user behind a connection.
type Identity struct {
	UserID   string
	Username string
}

// ParticipantLookup lists the active participant ids of a chat.
type ParticipantLookup interface {
	ActiveParticipantIDs(ctx context.Context, chatID string) ([]string, error)
}

// TypingRelay forwards typing indicators to the other active participants of
// a chat. Nothing is stored; expiry is the receiver's concern.
type TypingRelay struct {
	participants ParticipantLookup
	pusher       Pusher
	log          zerolog.Logger
}

// NewTypingRelay constructs a typing relay.
func NewTypingRelay(participants ParticipantLookup, pusher Pusher, logger zerolog.Logger) *TypingRelay {
	return &TypingRelay{
		participants: participants,
		pusher:       pusher,
		log:          logger.With().Str("component", "chat_typing").Logger(),
	}
}

// Relay pushes user-typing (or user-stop-typing when typing is false). The
// sender must be an active participant; otherwise the signal is dropped.
func (t *TypingRelay) Relay(ctx context.Context, chatID string, sender Identity, typing bool) int {
	ids, err := t.participants.ActiveParticipantIDs(ctx, chatID)
	if err != nil {
		t.log.Warn().Err(err).Str("chat_id", chatID).Msg("typing lookup failed")
		return 0
	}

	recipients := make([]string, 0, len(ids))
	member := false
	for _, id := range ids {
		if id == sender.UserID {
			member = true
			continue
		}
		recipients = append(recipients, id)
	}
	if !member {
		t.log.Debug().Str("chat_id", chatID).Str("user_id", sender.UserID).Msg("typing signal from non-member dropped")
		return 0
	}

	eventType := dto.EventUserStopTyping
	payload := dto.TypingPayload{ChatID: chatID, UserID: sender.UserID}
	if typing {
		eventType = dto.EventUserTyping
		payload.Username = sender.Username
	}

	return t.pusher.PushToUsers(recipients, dto.NewEvent(eventType, payload))
}
