package chatclient

import (
	"time"

	"github.com/noah-isme/gema-chat/internal/dto"
)

// PendingSelf is the sender id of a provisional message until the server
// assigns the real one.
const PendingSelf = "self-pending"

// PendingState is the lifecycle of one optimistic send.
type PendingState int

const (
	PendingStatePending PendingState = iota
	PendingStateConfirmed
	PendingStateRolledBack
)

func (s PendingState) String() string {
	switch s {
	case PendingStateConfirmed:
		return "confirmed"
	case PendingStateRolledBack:
		return "rolled-back"
	default:
		return "pending"
	}
}

// PendingSend tracks a single optimistic send.
type PendingSend struct {
	TempID    string
	ChatID    string
	Content   string
	CreatedAt time.Time
	State     PendingState
	Message   *dto.MessageResponse
	Err       error

	prevSummary *dto.ChatSummaryResponse
	prevIndex   int
	createdPage bool
}

// IsOwn reports whether message was written by selfID, including a
// provisional message that has no server identity yet.
func IsOwn(message dto.MessageResponse, selfID string) bool {
	return message.SenderID == PendingSelf || (selfID != "" && message.SenderID == selfID)
}
