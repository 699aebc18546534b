package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/models"
	"github.com/noah-isme/gema-chat/internal/realtime"
	"github.com/noah-isme/gema-chat/internal/repository"
)

const defaultPageSize = 50

// ChatService is the authoritative state machine for chat membership,
// messages, read receipts and unread counts.
type ChatService interface {
	// CreateChat returns the chat and whether it was newly created. A direct
	// chat between the same two users is reused instead of duplicated.
	CreateChat(ctx context.Context, creatorID string, req dto.CreateChatRequest) (dto.ChatDetailResponse, bool, error)
	ListChats(ctx context.Context, userID string) ([]dto.ChatSummaryResponse, error)
	GetChat(ctx context.Context, chatID, userID string) (dto.ChatDetailResponse, error)
	LeaveChat(ctx context.Context, chatID, userID string) error
	AddParticipant(ctx context.Context, chatID, adminID string, req dto.AddParticipantRequest) (dto.ParticipantResponse, error)
	RemoveParticipant(ctx context.Context, chatID, requesterID, userID string) error

	ListMessages(ctx context.Context, chatID, userID string, query dto.MessageListQuery) (dto.MessagePageResponse, error)
	SendMessage(ctx context.Context, chatID, senderID string, req dto.SendMessageRequest) (dto.MessageResponse, error)
	MarkRead(ctx context.Context, chatID, userID string) (dto.MessagesReadPayload, error)
}

// ChatServiceOptions tunes paging and the clock.
type ChatServiceOptions struct {
	PageSize int
	Now      func() time.Time
}

type chatService struct {
	chats     repository.ChatRepository
	users     repository.UserRepository
	pusher    realtime.Pusher
	validator *validator.Validate
	locks     *realtime.KeyedMutex
	now       func() time.Time
	pageSize  int
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewChatService constructs the chat service. Events are pushed through pusher
// after the triggering transaction commits.
func NewChatService(chats repository.ChatRepository, users repository.UserRepository, pusher realtime.Pusher, validate *validator.Validate, logger zerolog.Logger, opts ChatServiceOptions) ChatService {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	source := opts.Now
	if source == nil {
		source = func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
	}
	clock := &monotonicClock{source: source}

	return &chatService{
		chats:     chats,
		users:     users,
		pusher:    pusher,
		validator: validate,
		locks:     realtime.NewKeyedMutex(),
		now:       clock.Now,
		pageSize:  pageSize,
		logger:    logger.With().Str("component", "chat_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-chat/internal/service/chat"),
	}
}

// monotonicClock never hands out the same instant twice, so message order
// follows commit order even when the wall clock repeats a microsecond.
type monotonicClock struct {
	mu     sync.Mutex
	source func() time.Time
	last   time.Time
}

func (c *monotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.source()
	if !now.After(c.last) {
		now = c.last.Add(time.Microsecond)
	}
	c.last = now
	return now
}

func (s *chatService) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// requireMember loads the caller's row and fails with denied unless it is active.
func requireMember(ctx context.Context, repo repository.ChatRepository, chatID, userID string, denied error) (models.ChatParticipant, error) {
	participant, err := repo.FindParticipant(ctx, chatID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ChatParticipant{}, denied
	}
	if err != nil {
		return models.ChatParticipant{}, classify(err, "chat not found")
	}
	if !participant.IsActive() {
		return models.ChatParticipant{}, denied
	}
	return participant, nil
}

func participantIDs(participants []models.ChatParticipant, except string) []string {
	ids := make([]string, 0, len(participants))
	for _, participant := range participants {
		if participant.IsActive() && participant.UserID != except {
			ids = append(ids, participant.UserID)
		}
	}
	return ids
}

// displayName is the group name, or for a direct chat the other active
// member's username, falling back to the stored name once that member left.
func displayName(chat models.Chat, participants []models.ChatParticipant, viewerID string) string {
	if !chat.IsGroup {
		for _, participant := range participants {
			if participant.IsActive() && participant.UserID != viewerID && participant.User.Username != "" {
				return participant.User.Username
			}
		}
	}
	if chat.Name != nil {
		return *chat.Name
	}
	return ""
}

func uniqueOthers(self string, ids []string) []string {
	seen := map[string]struct{}{self: {}}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (s *chatService) CreateChat(ctx context.Context, creatorID string, req dto.CreateChatRequest) (detail dto.ChatDetailResponse, created bool, err error) {
	ctx, span := s.startSpan(ctx, "chat.create", attribute.String("user.id", creatorID), attribute.Bool("chat.is_group", req.IsGroup))
	defer func() { endSpan(span, err) }()

	if err = s.validator.Struct(req); err != nil {
		return dto.ChatDetailResponse{}, false, classify(err, "")
	}

	targets := uniqueOthers(creatorID, req.ParticipantIDs)
	if len(targets) == 0 {
		return dto.ChatDetailResponse{}, false, validationError("at least one other participant is required")
	}
	if !req.IsGroup && len(targets) != 1 {
		return dto.ChatDetailResponse{}, false, validationError("a direct chat has exactly one other participant")
	}

	users, err := s.users.ListByIDs(ctx, targets)
	if err != nil {
		return dto.ChatDetailResponse{}, false, classify(err, "")
	}
	if len(users) != len(targets) {
		return dto.ChatDetailResponse{}, false, notFound("user not found")
	}

	var name *string
	if req.IsGroup && req.Name != nil {
		cleaned := strings.TrimSpace(*req.Name)
		if cleaned == "" {
			return dto.ChatDetailResponse{}, false, validationError("group name must not be empty")
		}
		name = &cleaned
	}

	if !req.IsGroup {
		unlock := s.locks.Lock(models.DirectPairKey(creatorID, targets[0]))
		defer unlock()

		chatID, found, reuseErr := s.reuseDirectChat(ctx, creatorID, targets[0])
		if reuseErr != nil {
			return dto.ChatDetailResponse{}, false, reuseErr
		}
		if found {
			detail, err = s.GetChat(ctx, chatID, creatorID)
			return detail, false, err
		}
	}

	now := s.now()
	chat := models.Chat{IsGroup: req.IsGroup, Name: name, CreatedAt: now, UpdatedAt: now}
	if !req.IsGroup {
		key := models.DirectPairKey(creatorID, targets[0])
		chat.DirectKey = &key
	}
	participants := make([]models.ChatParticipant, 0, len(targets)+1)
	participants = append(participants, models.NewMembership("", creatorID, req.IsGroup, now))
	for _, target := range targets {
		participants = append(participants, models.NewMembership("", target, false, now))
	}

	if err = s.chats.CreateChat(ctx, &chat, participants); err != nil {
		if !req.IsGroup && errors.Is(err, gorm.ErrDuplicatedKey) {
			// Another writer created the pair's chat first; hand that one back.
			chatID, found, reuseErr := s.reuseDirectChat(ctx, creatorID, targets[0])
			if reuseErr == nil && found {
				detail, err = s.GetChat(ctx, chatID, creatorID)
				return detail, false, err
			}
		}
		return dto.ChatDetailResponse{}, false, classify(err, "")
	}
	span.SetAttributes(attribute.String("chat.id", chat.ID))
	s.logger.Info().Str("chat_id", chat.ID).Str("user_id", creatorID).Bool("is_group", chat.IsGroup).Msg("chat created")

	detail, err = s.GetChat(ctx, chat.ID, creatorID)
	return detail, true, err
}

// reuseDirectChat finds an existing direct chat between the pair, whatever the
// membership state, and reactivates the caller's row if they had left.
func (s *chatService) reuseDirectChat(ctx context.Context, userID, otherID string) (string, bool, error) {
	chat, err := s.chats.FindDirectChat(ctx, userID, otherID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, classify(err, "")
	}

	unlock := s.locks.Lock(chat.ID)
	defer unlock()

	err = s.chats.WithTx(ctx, func(tx repository.ChatRepository) error {
		participant, err := tx.FindParticipant(ctx, chat.ID, userID)
		if err != nil {
			return err
		}
		if participant.IsActive() {
			return nil
		}
		if err := participant.Rejoin(s.now()); err != nil {
			return err
		}
		return tx.SaveMembership(ctx, participant)
	})
	if err != nil {
		return "", false, classify(err, "chat not found")
	}
	return chat.ID, true, nil
}

func (s *chatService) ListChats(ctx context.Context, userID string) (summaries []dto.ChatSummaryResponse, err error) {
	ctx, span := s.startSpan(ctx, "chat.list", attribute.String("user.id", userID))
	defer func() { endSpan(span, err) }()

	var (
		chats  []models.Chat
		unread map[string]int
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		chats, err = s.chats.ListChatsForUser(groupCtx, userID)
		return err
	})
	group.Go(func() error {
		var err error
		unread, err = s.chats.UnreadCounts(groupCtx, userID)
		return err
	})
	if err = group.Wait(); err != nil {
		return nil, classify(err, "")
	}

	ids := make([]string, 0, len(chats))
	for _, chat := range chats {
		ids = append(ids, chat.ID)
	}
	latest, err := s.chats.LatestMessages(ctx, ids)
	if err != nil {
		return nil, classify(err, "")
	}

	summaries = make([]dto.ChatSummaryResponse, 0, len(chats))
	for _, chat := range chats {
		summary := dto.ChatSummaryResponse{
			ID:           chat.ID,
			Name:         displayName(chat, chat.Participants, userID),
			IsGroup:      chat.IsGroup,
			Participants: dto.NewParticipantResponseSlice(chat.Participants),
			UnreadCount:  unread[chat.ID],
			UpdatedAt:    chat.UpdatedAt,
		}
		if message, ok := latest[chat.ID]; ok {
			summary.LastMessage = dto.NewLastMessageResponse(message)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *chatService) GetChat(ctx context.Context, chatID, userID string) (detail dto.ChatDetailResponse, err error) {
	ctx, span := s.startSpan(ctx, "chat.get", attribute.String("chat.id", chatID), attribute.String("user.id", userID))
	defer func() { endSpan(span, err) }()

	if _, err = requireMember(ctx, s.chats, chatID, userID, notFound("chat not found")); err != nil {
		return dto.ChatDetailResponse{}, err
	}

	var (
		chat         models.Chat
		participants []models.ChatParticipant
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		chat, err = s.chats.FindChat(groupCtx, chatID)
		return err
	})
	group.Go(func() error {
		var err error
		participants, err = s.chats.ActiveParticipants(groupCtx, chatID)
		return err
	})
	if err = group.Wait(); err != nil {
		return dto.ChatDetailResponse{}, classify(err, "chat not found")
	}

	return dto.ChatDetailResponse{
		ID:           chat.ID,
		Name:         displayName(chat, participants, userID),
		IsGroup:      chat.IsGroup,
		Participants: dto.NewParticipantResponseSlice(participants),
		CreatedAt:    chat.CreatedAt,
		UpdatedAt:    chat.UpdatedAt,
	}, nil
}

// LeaveChat is the general leave entrypoint. Leaving a direct chat stamps the
// leaver's username as the chat name so the remaining member keeps a label.
func (s *chatService) LeaveChat(ctx context.Context, chatID, userID string) (err error) {
	ctx, span := s.startSpan(ctx, "chat.leave", attribute.String("chat.id", chatID), attribute.String("user.id", userID))
	defer func() { endSpan(span, err) }()

	leaver, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return classify(err, "user not found")
	}

	unlock := s.locks.Lock(chatID)
	defer unlock()

	var remaining []string
	err = s.chats.WithTx(ctx, func(tx repository.ChatRepository) error {
		participant, err := requireMember(ctx, tx, chatID, userID, forbidden("not a member of this chat"))
		if err != nil {
			return err
		}
		chat, err := tx.FindChat(ctx, chatID)
		if err != nil {
			return err
		}
		if !chat.IsGroup {
			if err := tx.SetChatName(ctx, chatID, leaver.Username); err != nil {
				return err
			}
		}
		if err := participant.Leave(s.now()); err != nil {
			return err
		}
		if err := tx.SaveMembership(ctx, participant); err != nil {
			return err
		}
		active, err := tx.ActiveParticipants(ctx, chatID)
		if err != nil {
			return err
		}
		remaining = participantIDs(active, userID)
		return nil
	})
	if err != nil {
		return classify(err, "chat not found")
	}

	s.pusher.PushToUsers(remaining, dto.NewEvent(dto.EventParticipantRemoved, dto.ParticipantRemovedPayload{ChatID: chatID, UserID: userID}))
	s.logger.Info().Str("chat_id", chatID).Str("user_id", userID).Msg("participant left chat")
	return nil
}

func (s *chatService) AddParticipant(ctx context.Context, chatID, adminID string, req dto.AddParticipantRequest) (response dto.ParticipantResponse, err error) {
	ctx, span := s.startSpan(ctx, "chat.participant.add", attribute.String("chat.id", chatID), attribute.String("user.id", adminID))
	defer func() { endSpan(span, err) }()

	if err = s.validator.Struct(req); err != nil {
		return dto.ParticipantResponse{}, classify(err, "")
	}

	// Looked up before the transaction; its result is only reported once the
	// caller has proven to be an admin of the group.
	target, targetErr := s.users.GetByID(ctx, req.UserID)

	unlock := s.locks.Lock(chatID)
	defer unlock()

	var (
		added      models.ChatParticipant
		recipients []string
	)
	err = s.chats.WithTx(ctx, func(tx repository.ChatRepository) error {
		admin, err := requireMember(ctx, tx, chatID, adminID, forbidden("not a member of this chat"))
		if err != nil {
			return err
		}
		chat, err := tx.FindChat(ctx, chatID)
		if err != nil {
			return err
		}
		if !chat.IsGroup {
			return validationError("participants can only be added to group chats")
		}
		if !admin.IsAdmin {
			return forbidden("only admins can add participants")
		}
		if targetErr != nil {
			return classify(targetErr, "user not found")
		}

		now := s.now()
		existing, err := tx.FindParticipant(ctx, chatID, req.UserID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			added = models.NewMembership(chatID, req.UserID, false, now)
			if err := tx.CreateParticipant(ctx, &added); err != nil {
				return err
			}
		case err != nil:
			return err
		case existing.IsActive():
			return validationError("user is already a participant")
		default:
			if err := existing.Rejoin(now); err != nil {
				return err
			}
			if err := tx.SaveMembership(ctx, existing); err != nil {
				return err
			}
			added = existing
		}
		added.User = target

		active, err := tx.ActiveParticipants(ctx, chatID)
		if err != nil {
			return err
		}
		recipients = participantIDs(active, "")
		return nil
	})
	if err != nil {
		return dto.ParticipantResponse{}, classify(err, "chat not found")
	}

	response = dto.NewParticipantResponse(added)
	s.pusher.PushToUsers(append(recipients, req.UserID), dto.NewEvent(dto.EventParticipantAdded, dto.ParticipantAddedPayload{ChatID: chatID, Participant: response}))
	s.logger.Info().Str("chat_id", chatID).Str("user_id", req.UserID).Str("admin_id", adminID).Msg("participant added")
	return response, nil
}

// RemoveParticipant is the group-only removal path. A member may always remove
// themselves; removing someone else requires an active admin.
func (s *chatService) RemoveParticipant(ctx context.Context, chatID, requesterID, userID string) (err error) {
	ctx, span := s.startSpan(ctx, "chat.participant.remove", attribute.String("chat.id", chatID), attribute.String("user.id", requesterID))
	defer func() { endSpan(span, err) }()

	unlock := s.locks.Lock(chatID)
	defer unlock()

	var remaining []string
	err = s.chats.WithTx(ctx, func(tx repository.ChatRepository) error {
		requester, err := requireMember(ctx, tx, chatID, requesterID, forbidden("not a member of this chat"))
		if err != nil {
			return err
		}
		chat, err := tx.FindChat(ctx, chatID)
		if err != nil {
			return err
		}
		if !chat.IsGroup {
			return validationError("direct chats are left, not edited")
		}
		if requesterID != userID && !requester.IsAdmin {
			return forbidden("only admins can remove participants")
		}

		target, err := requireMember(ctx, tx, chatID, userID, notFound("participant not found"))
		if err != nil {
			return err
		}
		if err := target.Leave(s.now()); err != nil {
			return err
		}
		if err := tx.SaveMembership(ctx, target); err != nil {
			return err
		}

		active, err := tx.ActiveParticipants(ctx, chatID)
		if err != nil {
			return err
		}
		remaining = participantIDs(active, userID)
		return nil
	})
	if err != nil {
		return classify(err, "chat not found")
	}

	s.pusher.PushToUsers(append(remaining, userID), dto.NewEvent(dto.EventParticipantRemoved, dto.ParticipantRemovedPayload{ChatID: chatID, UserID: userID}))
	s.logger.Info().Str("chat_id", chatID).Str("user_id", userID).Str("requester_id", requesterID).Msg("participant removed")
	return nil
}
