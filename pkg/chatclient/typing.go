package chatclient

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/gema-chat/internal/dto"
)

const (
	DefaultTypingExpiry   = 1500 * time.Millisecond
	DefaultTypingThrottle = 750 * time.Millisecond
	DefaultTypingIdle     = 1500 * time.Millisecond
)

type typingEntry struct {
	username string
	timer    *time.Timer
}

// TypingTracker remembers who is typing in each chat. An entry expires on
// its own if no stop signal arrives.
type TypingTracker struct {
	mu     sync.Mutex
	expiry time.Duration
	chats  map[string]map[string]*typingEntry
}

// NewTypingTracker creates a tracker. A non-positive expiry uses the default.
func NewTypingTracker(expiry time.Duration) *TypingTracker {
	if expiry <= 0 {
		expiry = DefaultTypingExpiry
	}
	return &TypingTracker{expiry: expiry, chats: make(map[string]map[string]*typingEntry)}
}

// Start records userID as typing in chatID and restarts its expiry.
func (t *TypingTracker) Start(chatID, userID, username string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	users, ok := t.chats[chatID]
	if !ok {
		users = make(map[string]*typingEntry)
		t.chats[chatID] = users
	}
	if existing, ok := users[userID]; ok {
		existing.timer.Stop()
	}

	entry := &typingEntry{username: username}
	entry.timer = time.AfterFunc(t.expiry, func() { t.expire(chatID, userID, entry) })
	users[userID] = entry
}

// Stop clears userID's typing state in chatID.
func (t *TypingTracker) Stop(chatID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	users := t.chats[chatID]
	if entry, ok := users[userID]; ok {
		entry.timer.Stop()
		t.deleteLocked(chatID, userID)
	}
}

// Typing returns the usernames currently typing in chatID, sorted.
func (t *TypingTracker) Typing(chatID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, 0, len(t.chats[chatID]))
	for _, entry := range t.chats[chatID] {
		names = append(names, entry.username)
	}
	sort.Strings(names)
	return names
}

// Active reports whether anyone is typing in chatID.
func (t *TypingTracker) Active(chatID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.chats[chatID]) > 0
}

func (t *TypingTracker) expire(chatID, userID string, entry *typingEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	// a newer Start may have replaced the entry since the timer fired
	if current, ok := t.chats[chatID][userID]; ok && current == entry {
		t.deleteLocked(chatID, userID)
	}
}

func (t *TypingTracker) deleteLocked(chatID, userID string) {
	delete(t.chats[chatID], userID)
	if len(t.chats[chatID]) == 0 {
		delete(t.chats, chatID)
	}
}

// TypingEmitter turns local input activity into typing signals: at most one
// typing signal per throttle window, and a typing-stop after idle inactivity,
// on cleared input, or on send.
type TypingEmitter struct {
	signals  SignalSender
	throttle time.Duration
	idle     time.Duration

	mu       sync.Mutex
	chatID   string
	active   bool
	lastSent time.Time
	timer    *time.Timer
	inputs   uint64
}

// NewTypingEmitter creates an emitter. Non-positive durations use the defaults.
func NewTypingEmitter(signals SignalSender, throttle, idle time.Duration) *TypingEmitter {
	if throttle <= 0 {
		throttle = DefaultTypingThrottle
	}
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &TypingEmitter{signals: signals, throttle: throttle, idle: idle}
}

// Input reports the current contents of the compose box for chatID.
func (e *TypingEmitter) Input(chatID, text string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active && e.chatID != chatID {
		e.stopLocked()
	}
	if strings.TrimSpace(text) == "" {
		e.stopLocked()
		return
	}

	now := time.Now()
	if !e.active || now.Sub(e.lastSent) >= e.throttle {
		e.send(dto.Signal{Type: dto.SignalTyping, ChatID: chatID})
		e.lastSent = now
	}
	e.active = true
	e.chatID = chatID

	e.inputs++
	seen := e.inputs
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.idle, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		// stale if more input arrived after this timer was armed
		if e.inputs == seen {
			e.stopLocked()
		}
	})
}

// Sent ends the typing state after a message is sent.
func (e *TypingEmitter) Sent(chatID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.chatID == chatID {
		e.stopLocked()
	}
}

func (e *TypingEmitter) stopLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if !e.active {
		return
	}
	e.send(dto.Signal{Type: dto.SignalTypingStop, ChatID: e.chatID})
	e.active = false
}

func (e *TypingEmitter) send(signal dto.Signal) {
	if e.signals == nil {
		return
	}
	_ = e.signals.SendSignal(signal)
}
