package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/observability"
	"github.com/noah-isme/gema-chat/internal/realtime"
)

// MembershipChecker re-verifies active membership when a connection opens a chat.
type MembershipChecker interface {
	IsActiveMember(ctx context.Context, chatID, userID string) (bool, error)
}

// RealtimeOptions tunes each connection's queue and keepalive.
type RealtimeOptions struct {
	SendBuffer   int
	PingInterval time.Duration
}

// RealtimeService runs the lifetime of one websocket connection: presence,
// personal channel registration, and the inbound signal loop.
type RealtimeService interface {
	ServeConnection(ctx context.Context, socket realtime.Socket, identity realtime.Identity)
}

type realtimeService struct {
	router   *realtime.Router
	presence *realtime.Presence
	typing   *realtime.TypingRelay
	members  MembershipChecker
	decoder  *realtime.SignalDecoder
	opts     RealtimeOptions
	logger   zerolog.Logger
}

// NewRealtimeService wires the realtime components together.
func NewRealtimeService(router *realtime.Router, presence *realtime.Presence, typing *realtime.TypingRelay, members MembershipChecker, decoder *realtime.SignalDecoder, opts RealtimeOptions, logger zerolog.Logger) RealtimeService {
	return &realtimeService{
		router:   router,
		presence: presence,
		typing:   typing,
		members:  members,
		decoder:  decoder,
		opts:     opts,
		logger:   logger.With().Str("component", "realtime_service").Logger(),
	}
}

// ServeConnection blocks until the socket closes.
func (s *realtimeService) ServeConnection(ctx context.Context, socket realtime.Socket, identity realtime.Identity) {
	if ctx == nil {
		ctx = context.Background()
	}

	log := observability.Logger(ctx, s.logger)
	client := realtime.NewClient(socket, identity, realtime.ClientOptions{
		SendBuffer:   s.opts.SendBuffer,
		PingInterval: s.opts.PingInterval,
		Logger:       log,
	})
	log = log.With().Str("user_id", identity.UserID).Str("conn_id", client.ID()).Logger()

	s.router.Attach(client)
	observability.ChatConnectionsActive().Inc()
	log.Info().Msg("chat client connected")

	online := s.presence.Connect(ctx, identity.UserID, client.ID())
	client.Send(dto.NewEvent(dto.EventOnlineUsers, dto.OnlineUsersPayload{UserIDs: online}))

	go client.WritePump()
	client.ReadPump(func(raw []byte) {
		s.handleSignal(ctx, log, client, raw)
	})

	s.router.Detach(client)
	s.presence.Disconnect(ctx, identity.UserID, client.ID())
	observability.ChatConnectionsActive().Dec()
	log.Info().Msg("chat client disconnected")
}

func (s *realtimeService) handleSignal(ctx context.Context, log zerolog.Logger, client *realtime.Client, raw []byte) {
	signal, err := s.decoder.Decode(raw)
	if err != nil {
		log.Debug().Err(err).Msg("dropping invalid signal")
		return
	}

	identity := client.Identity()
	switch signal.Type {
	case dto.SignalJoinChat:
		ok, err := s.members.IsActiveMember(ctx, signal.ChatID, identity.UserID)
		if err != nil {
			log.Warn().Err(err).Str("chat_id", signal.ChatID).Msg("membership check failed")
			return
		}
		if !ok {
			log.Debug().Str("chat_id", signal.ChatID).Msg("join refused for non-member")
			return
		}
		s.router.JoinChat(client, signal.ChatID)
	case dto.SignalLeaveChat:
		s.router.LeaveChat(client, signal.ChatID)
	case dto.SignalTyping:
		s.typing.Relay(ctx, signal.ChatID, identity, true)
	case dto.SignalTypingStop:
		s.typing.Relay(ctx, signal.ChatID, identity, false)
	}
}
