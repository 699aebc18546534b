package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-chat/internal/repository"
)

// MemberDirectory answers the realtime layer's membership questions straight
// from the gateway. Nothing is cached: contacts change whenever membership does.
type MemberDirectory struct {
	chats repository.ChatRepository
}

// NewMemberDirectory wraps the chat repository.
func NewMemberDirectory(chats repository.ChatRepository) *MemberDirectory {
	return &MemberDirectory{chats: chats}
}

// Contacts lists users sharing at least one active chat with userID.
func (d *MemberDirectory) Contacts(ctx context.Context, userID string) ([]string, error) {
	return d.chats.Contacts(ctx, userID)
}

// ActiveParticipantIDs lists the user ids of a chat's active members.
func (d *MemberDirectory) ActiveParticipantIDs(ctx context.Context, chatID string) ([]string, error) {
	participants, err := d.chats.ActiveParticipants(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return participantIDs(participants, ""), nil
}

// IsActiveMember re-verifies membership at channel-join time.
func (d *MemberDirectory) IsActiveMember(ctx context.Context, chatID, userID string) (bool, error) {
	participant, err := d.chats.FindParticipant(ctx, chatID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return participant.IsActive(), nil
}
