package service

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/models"
	"github.com/noah-isme/gema-chat/internal/observability"
	"github.com/noah-isme/gema-chat/internal/repository"
)

// ListMessages returns one newest-first page inside the caller's join fence.
// isRead is only derived for the caller's own messages.
func (s *chatService) ListMessages(ctx context.Context, chatID, userID string, query dto.MessageListQuery) (page dto.MessagePageResponse, err error) {
	ctx, span := s.startSpan(ctx, "chat.messages.list", attribute.String("chat.id", chatID), attribute.String("user.id", userID))
	defer func() { endSpan(span, err) }()

	if err = s.validator.Struct(query); err != nil {
		return dto.MessagePageResponse{}, classify(err, "")
	}

	member, err := requireMember(ctx, s.chats, chatID, userID, forbidden("not a member of this chat"))
	if err != nil {
		return dto.MessagePageResponse{}, err
	}

	limit := query.Limit
	if limit <= 0 {
		limit = s.pageSize
	}

	var before *models.Message
	if query.Cursor != "" {
		cursor, err := s.chats.FindMessage(ctx, chatID, query.Cursor)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.MessagePageResponse{}, validationError("unknown cursor")
		}
		if err != nil {
			return dto.MessagePageResponse{}, classify(err, "")
		}
		before = &cursor
	}

	var (
		messages []models.Message
		others   []models.ChatParticipant
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		messages, err = s.chats.ListMessages(groupCtx, repository.MessageFilter{
			ChatID: chatID,
			Since:  member.JoinedAt,
			Before: before,
			Limit:  limit + 1,
		})
		return err
	})
	group.Go(func() error {
		var err error
		others, err = s.chats.ActiveParticipants(groupCtx, chatID)
		return err
	})
	if err = group.Wait(); err != nil {
		return dto.MessagePageResponse{}, classify(err, "")
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}

	page = dto.MessagePageResponse{
		Messages: make([]dto.MessageResponse, 0, len(messages)),
		HasMore:  hasMore,
	}
	for _, message := range messages {
		isRead := message.SenderID == userID && models.SeenByAll(message, others)
		page.Messages = append(page.Messages, dto.NewMessageResponse(message, isRead))
	}
	if hasMore && len(messages) > 0 {
		oldest := messages[len(messages)-1].ID
		page.NextCursor = &oldest
	}
	return page, nil
}

// SendMessage persists a message and bumps the chat in one transaction, then
// pushes new-message to every other active participant. A left member of a
// direct chat is reactivated first, so the message resurrects the
// conversation for them. The per-chat lock spans commit and push, so pushes
// leave in commit order.
func (s *chatService) SendMessage(ctx context.Context, chatID, senderID string, req dto.SendMessageRequest) (response dto.MessageResponse, err error) {
	ctx, span := s.startSpan(ctx, "chat.messages.send", attribute.String("chat.id", chatID), attribute.String("user.id", senderID))
	defer func() { endSpan(span, err) }()

	if err = s.validator.Struct(req); err != nil {
		return dto.MessageResponse{}, classify(err, "")
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return dto.MessageResponse{}, validationError("message must not be empty")
	}

	unlock := s.locks.Lock(chatID)
	defer unlock()

	var (
		message    models.Message
		recipients []string
	)
	err = s.chats.WithTx(ctx, func(tx repository.ChatRepository) error {
		if _, err := requireMember(ctx, tx, chatID, senderID, forbidden("not a member of this chat")); err != nil {
			return err
		}
		chat, err := tx.FindChat(ctx, chatID)
		if err != nil {
			return err
		}

		if !chat.IsGroup {
			left, err := tx.InactiveParticipants(ctx, chatID)
			if err != nil {
				return err
			}
			for _, participant := range left {
				if err := participant.Rejoin(s.now()); err != nil {
					return err
				}
				if err := tx.SaveMembership(ctx, participant); err != nil {
					return err
				}
				s.logger.Info().Str("chat_id", chatID).Str("user_id", participant.UserID).Msg("direct chat reactivated by new message")
			}
		}

		now := s.now()
		message = models.Message{ChatID: chatID, SenderID: senderID, Content: content, CreatedAt: now}
		if err := tx.CreateMessage(ctx, &message); err != nil {
			return err
		}
		if err := tx.TouchChat(ctx, chatID, now); err != nil {
			return err
		}

		active, err := tx.ActiveParticipants(ctx, chatID)
		if err != nil {
			return err
		}
		recipients = participantIDs(active, senderID)
		return nil
	})
	if err != nil {
		return dto.MessageResponse{}, classify(err, "chat not found")
	}

	response = dto.NewMessageResponse(message, false)
	s.pusher.PushToUsers(recipients, dto.NewEvent(dto.EventNewMessage, response))
	observability.ChatMessagesSent().Inc()
	span.SetAttributes(attribute.String("message.id", message.ID))
	return response, nil
}

// MarkRead moves the caller's read fence to now and tells the other active
// participants, who flag their own messages up to readAt as read.
func (s *chatService) MarkRead(ctx context.Context, chatID, userID string) (payload dto.MessagesReadPayload, err error) {
	ctx, span := s.startSpan(ctx, "chat.messages.read", attribute.String("chat.id", chatID), attribute.String("user.id", userID))
	defer func() { endSpan(span, err) }()

	readAt := s.now()
	ok, err := s.chats.SetReadFence(ctx, chatID, userID, readAt)
	if err != nil {
		return dto.MessagesReadPayload{}, classify(err, "")
	}
	if !ok {
		return dto.MessagesReadPayload{}, forbidden("not a member of this chat")
	}

	active, err := s.chats.ActiveParticipants(ctx, chatID)
	if err != nil {
		// the fence is committed; only the receipt push is lost
		s.logger.Warn().Err(err).Str("chat_id", chatID).Msg("read receipt recipients lookup failed")
		active = nil
	}

	payload = dto.MessagesReadPayload{ChatID: chatID, UserID: userID, ReadAt: readAt}
	s.pusher.PushToUsers(participantIDs(active, userID), dto.NewEvent(dto.EventMessagesRead, payload))
	return payload, nil
}
