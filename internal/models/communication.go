package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents an immutable chat identity created at signup.
type User struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Username  string    `gorm:"size:20;uniqueIndex;not null" json:"username"`
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Chat is either a two-party direct conversation or a named group.
type Chat struct {
	ID      string  `gorm:"primaryKey;size:36" json:"id"`
	IsGroup bool    `gorm:"not null;default:false" json:"is_group"`
	Name    *string `gorm:"size:50" json:"name"`
	// DirectKey is set only on direct chats and holds one chat per user pair.
	DirectKey *string   `gorm:"size:80;uniqueIndex" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt only moves when a message is sent; it drives chat-list ordering.
	UpdatedAt    time.Time         `gorm:"autoUpdateTime:false;index" json:"updated_at"`
	Participants []ChatParticipant `gorm:"foreignKey:ChatID" json:"participants,omitempty"`
}

// ChatParticipant links one user to one chat. A row is never hard-deleted:
// leaving stamps DeletedAt and rejoining clears it on the same row.
type ChatParticipant struct {
	ID                string     `gorm:"primaryKey;size:36" json:"id"`
	ChatID            string     `gorm:"size:36;not null;uniqueIndex:idx_chat_participant_pair" json:"chat_id"`
	UserID            string     `gorm:"size:36;not null;uniqueIndex:idx_chat_participant_pair;index" json:"user_id"`
	IsAdmin           bool       `gorm:"not null;default:false" json:"is_admin"`
	JoinedAt          time.Time  `gorm:"not null" json:"joined_at"`
	LastMessageReadAt *time.Time `json:"last_message_read_at"`
	DeletedAt         *time.Time `gorm:"index" json:"deleted_at"`
	User              User       `gorm:"foreignKey:UserID" json:"user"`
}

// Message is an immutable chat entry.
type Message struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	ChatID    string    `gorm:"size:36;not null;index:idx_message_chat_created,priority:1" json:"chat_id"`
	SenderID  string    `gorm:"size:36;not null;index" json:"sender_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"not null;index:idx_message_chat_created,priority:2" json:"created_at"`
	Sender    User      `gorm:"foreignKey:SenderID" json:"sender"`
}

// DirectPairKey identifies the direct chat between two users, in either order.
func DirectPairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "direct:" + a + ":" + b
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

func (c *Chat) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

func (p *ChatParticipant) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

func (m *Message) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// ChatModels lists every model owned by the chat schema, in migration order.
func ChatModels() []interface{} {
	return []interface{}{&User{}, &Chat{}, &ChatParticipant{}, &Message{}}
}
