package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/realtime"
)

const mirrorPublishTimeout = 2 * time.Second

// MirroredEvent is the envelope published for out-of-process consumers such as
// audit trails or mobile push. Typing indicators are not mirrored.
type MirroredEvent struct {
	Source     string    `json:"source"`
	Recipients []string  `json:"recipients"`
	Event      dto.Event `json:"event"`
	SentAt     time.Time `json:"sent_at"`
}

// EventMirror delivers events locally and then copies them to Redis pub/sub
// and NATS. Mirror failures are logged and never affect local delivery.
type EventMirror struct {
	next         realtime.Pusher
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	nodeID       string
	logger       zerolog.Logger
}

// NewEventMirror wraps next. With neither broker configured it only forwards.
func NewEventMirror(next realtime.Pusher, redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) *EventMirror {
	redisChannel := ""
	natsSubject := ""
	if channelBase != "" {
		redisChannel = channelBase + ":chat:events"
		natsSubject = strings.ReplaceAll(channelBase, ":", ".") + ".chat.events"
	}

	return &EventMirror{
		next:         next,
		redis:        redisClient,
		redisChannel: redisChannel,
		nats:         natsConn,
		natsSubject:  natsSubject,
		nodeID:       uuid.NewString(),
		logger:       logger.With().Str("component", "event_mirror").Logger(),
	}
}

func (m *EventMirror) PushToUser(userID string, event dto.Event) int {
	delivered := m.next.PushToUser(userID, event)
	m.publish([]string{userID}, event)
	return delivered
}

func (m *EventMirror) PushToUsers(userIDs []string, event dto.Event) int {
	delivered := m.next.PushToUsers(userIDs, event)
	m.publish(userIDs, event)
	return delivered
}

func (m *EventMirror) enabled() bool {
	return (m.redis != nil && m.redisChannel != "") || (m.nats != nil && m.natsSubject != "")
}

func (m *EventMirror) publish(recipients []string, event dto.Event) {
	if !m.enabled() || len(recipients) == 0 {
		return
	}
	if event.Type == dto.EventUserTyping || event.Type == dto.EventUserStopTyping {
		return
	}

	payload, err := json.Marshal(MirroredEvent{
		Source:     m.nodeID,
		Recipients: recipients,
		Event:      event,
		SentAt:     time.Now().UTC(),
	})
	if err != nil {
		m.logger.Warn().Err(err).Str("event", event.Type).Msg("failed to marshal mirrored event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), mirrorPublishTimeout)
	defer cancel()

	if m.redis != nil && m.redisChannel != "" {
		if err := m.redis.Publish(ctx, m.redisChannel, payload).Err(); err != nil {
			m.logger.Warn().Err(err).Str("event", event.Type).Msg("failed to mirror event to redis")
		}
	}

	if m.nats != nil && m.natsSubject != "" {
		if err := m.nats.Publish(m.natsSubject, payload); err != nil {
			m.logger.Warn().Err(err).Str("event", event.Type).Msg("failed to mirror event to nats")
		}
	}
}
