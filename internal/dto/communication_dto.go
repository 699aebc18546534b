package dto

import (
	"time"

	"github.com/noah-isme/gema-chat/internal/models"
)

// CreateChatRequest describes a new direct or group chat.
type CreateChatRequest struct {
	Name           *string  `json:"name" validate:"omitempty,min=1,max=50"`
	IsGroup        bool     `json:"is_group"`
	ParticipantIDs []string `json:"participant_ids" validate:"required,min=1,dive,uuid"`
}

// SendMessageRequest carries the content of a new message.
type SendMessageRequest struct {
	Content string `json:"content" validate:"required,max=5000"`
}

// AddParticipantRequest names the user an admin adds to a group.
type AddParticipantRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

// MessageListQuery pages backwards through a chat's history.
type MessageListQuery struct {
	Cursor string `query:"cursor" validate:"omitempty,uuid"`
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=100"`
}

// UserSearchQuery filters users by username or email fragment.
type UserSearchQuery struct {
	Q string `query:"q" validate:"max=64"`
}

// UserResponse is the public projection of a user.
type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// ParticipantResponse describes an active chat member.
type ParticipantResponse struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"is_admin"`
}

// MessageResponse is the serialized representation of a chat message. It is
// also the payload of the new-message push.
type MessageResponse struct {
	ID             string    `json:"id"`
	ChatID         string    `json:"chat_id"`
	SenderID       string    `json:"sender_id"`
	SenderUsername string    `json:"sender_username"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	IsRead         bool      `json:"is_read"`
}

// LastMessageResponse is the chat-list preview of the most recent message.
type LastMessageResponse struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	SenderID       string    `json:"sender_id"`
	SenderUsername string    `json:"sender_username"`
	CreatedAt      time.Time `json:"created_at"`
}

// ChatSummaryResponse is one entry of the chat list.
type ChatSummaryResponse struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	IsGroup      bool                  `json:"is_group"`
	Participants []ParticipantResponse `json:"participants"`
	LastMessage  *LastMessageResponse  `json:"last_message"`
	UnreadCount  int                   `json:"unread_count"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// ChatDetailResponse describes a single chat and its active members.
type ChatDetailResponse struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	IsGroup      bool                  `json:"is_group"`
	Participants []ParticipantResponse `json:"participants"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// MessagePageResponse is one page of history, newest first.
type MessagePageResponse struct {
	Messages   []MessageResponse `json:"messages"`
	NextCursor *string           `json:"next_cursor"`
	HasMore    bool              `json:"has_more"`
}

// NewUserResponse converts a user model into a DTO.
func NewUserResponse(user models.User) UserResponse {
	return UserResponse{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
	}
}

// NewUserResponseSlice converts users into DTOs.
func NewUserResponseSlice(users []models.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, user := range users {
		out = append(out, NewUserResponse(user))
	}
	return out
}

// NewParticipantResponse converts a participant with its preloaded user.
func NewParticipantResponse(p models.ChatParticipant) ParticipantResponse {
	return ParticipantResponse{
		ID:       p.ID,
		UserID:   p.UserID,
		Username: p.User.Username,
		Email:    p.User.Email,
		IsAdmin:  p.IsAdmin,
	}
}

// NewParticipantResponseSlice converts participants, skipping inactive rows.
func NewParticipantResponseSlice(items []models.ChatParticipant) []ParticipantResponse {
	out := make([]ParticipantResponse, 0, len(items))
	for _, item := range items {
		if !item.IsActive() {
			continue
		}
		out = append(out, NewParticipantResponse(item))
	}
	return out
}

// NewMessageResponse converts a message with its preloaded sender.
func NewMessageResponse(message models.Message, isRead bool) MessageResponse {
	return MessageResponse{
		ID:             message.ID,
		ChatID:         message.ChatID,
		SenderID:       message.SenderID,
		SenderUsername: message.Sender.Username,
		Content:        message.Content,
		CreatedAt:      message.CreatedAt,
		IsRead:         isRead,
	}
}

// NewLastMessageResponse builds the chat-list preview for message.
func NewLastMessageResponse(message models.Message) *LastMessageResponse {
	return &LastMessageResponse{
		ID:             message.ID,
		Content:        message.Content,
		SenderID:       message.SenderID,
		SenderUsername: message.Sender.Username,
		CreatedAt:      message.CreatedAt,
	}
}
