package models

import (
	"errors"
	"time"
)

// MembershipState is the lifecycle position of a (chat, user) pair.
type MembershipState int

const (
	// MembershipNone means no participant row has ever existed for the pair.
	MembershipNone MembershipState = iota
	// MembershipActive means the row exists and is not soft-deleted.
	MembershipActive
	// MembershipLeft means the row exists but has been soft-deleted.
	MembershipLeft
)

func (s MembershipState) String() string {
	switch s {
	case MembershipActive:
		return "active"
	case MembershipLeft:
		return "left"
	default:
		return "none"
	}
}

var (
	// ErrMembershipActive is returned when activating a membership that is already active.
	ErrMembershipActive = errors.New("membership already active")
	// ErrMembershipInactive is returned when leaving a membership that is not active.
	ErrMembershipInactive = errors.New("membership not active")
)

// MembershipOf reports the state for a possibly missing participant row.
func MembershipOf(p *ChatParticipant) MembershipState {
	if p == nil {
		return MembershipNone
	}
	if p.IsActive() {
		return MembershipActive
	}
	return MembershipLeft
}

// IsActive is the single predicate deciding whether a membership is effective.
// Every read path (queries included) must agree with it.
func (p ChatParticipant) IsActive() bool {
	return p.DeletedAt == nil
}

// NewMembership builds an active participant row for a first join.
func NewMembership(chatID, userID string, admin bool, at time.Time) ChatParticipant {
	return ChatParticipant{
		ChatID:   chatID,
		UserID:   userID,
		IsAdmin:  admin,
		JoinedAt: at,
	}
}

// Leave moves an active membership to the left state.
func (p *ChatParticipant) Leave(at time.Time) error {
	if !p.IsActive() {
		return ErrMembershipInactive
	}
	left := at
	p.DeletedAt = &left
	return nil
}

// Rejoin reactivates a left membership on the same row. Both fences move to
// at: earlier history is hidden and nothing before the rejoin counts as unread.
func (p *ChatParticipant) Rejoin(at time.Time) error {
	if p.IsActive() {
		return ErrMembershipActive
	}
	readFence := at
	p.DeletedAt = nil
	p.JoinedAt = at
	p.LastMessageReadAt = &readFence
	return nil
}

// CanSee reports whether the message is inside the member's join fence.
func (p ChatParticipant) CanSee(m Message) bool {
	return !m.CreatedAt.Before(p.JoinedAt)
}

// HasRead reports whether the member's read fence covers the instant at.
func (p ChatParticipant) HasRead(at time.Time) bool {
	return p.LastMessageReadAt != nil && !p.LastMessageReadAt.Before(at)
}

// IsUnread reports whether m counts towards the member's unread total.
func (p ChatParticipant) IsUnread(m Message) bool {
	if m.SenderID == p.UserID || !p.CanSee(m) {
		return false
	}
	return p.LastMessageReadAt == nil || m.CreatedAt.After(*p.LastMessageReadAt)
}

// SeenByAll reports whether every other active participant has read m.
// Inactive rows in others are ignored; with nobody left to read, it is false.
func SeenByAll(m Message, others []ChatParticipant) bool {
	counted := 0
	for _, other := range others {
		if !other.IsActive() || other.UserID == m.SenderID {
			continue
		}
		if !other.HasRead(m.CreatedAt) {
			return false
		}
		counted++
	}
	return counted > 0
}
