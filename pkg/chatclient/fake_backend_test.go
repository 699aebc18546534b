package chatclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/noah-isme/gema-chat/internal/dto"
)

var errReadsDown = errors.New("reads unavailable")

type fakeBackend struct {
	mu        sync.Mutex
	chats     []dto.ChatSummaryResponse
	pages     map[string]dto.MessagePageResponse
	older     map[string]dto.MessagePageResponse
	details   map[string]dto.ChatDetailResponse
	sendErr   error
	failReads bool
	onSend    func()
	search    func(ctx context.Context, q string) ([]dto.UserResponse, error)
	nextID    int
	listCalls int
	marked    []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		pages:   make(map[string]dto.MessagePageResponse),
		older:   make(map[string]dto.MessagePageResponse),
		details: make(map[string]dto.ChatDetailResponse),
	}
}

func (f *fakeBackend) ListChats(context.Context) ([]dto.ChatSummaryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.failReads {
		return nil, errReadsDown
	}
	return copySummaries(f.chats), nil
}

func (f *fakeBackend) GetChat(_ context.Context, chatID string) (dto.ChatDetailResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	detail, ok := f.details[chatID]
	if !ok {
		return dto.ChatDetailResponse{}, &APIError{Status: 404, Kind: KindNotFound, Message: "resource not found"}
	}
	return copyDetail(detail), nil
}

func (f *fakeBackend) ListMessages(_ context.Context, chatID, cursor string) (dto.MessagePageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		return dto.MessagePageResponse{}, errReadsDown
	}
	if cursor != "" {
		return f.older[cursor], nil
	}
	page := f.pages[chatID]
	page.Messages = append([]dto.MessageResponse{}, page.Messages...)
	return page, nil
}

func (f *fakeBackend) SendMessage(_ context.Context, chatID, content string) (dto.MessageResponse, error) {
	if f.onSend != nil {
		f.onSend()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return dto.MessageResponse{}, f.sendErr
	}
	f.nextID++
	message := dto.MessageResponse{
		ID:             fmt.Sprintf("server-%d", f.nextID),
		ChatID:         chatID,
		SenderID:       "me",
		SenderUsername: "me",
		Content:        content,
		CreatedAt:      base.Add(time.Duration(100+f.nextID) * time.Minute),
	}
	page := f.pages[chatID]
	page.Messages = append([]dto.MessageResponse{message}, page.Messages...)
	f.pages[chatID] = page
	for i := range f.chats {
		if f.chats[i].ID == chatID {
			f.chats[i].LastMessage = lastMessageOf(message)
			f.chats[i].UpdatedAt = message.CreatedAt
		}
	}
	return message, nil
}

func (f *fakeBackend) MarkRead(_ context.Context, chatID string) (dto.MessagesReadPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, chatID)
	return dto.MessagesReadPayload{ChatID: chatID, UserID: "me", ReadAt: base}, nil
}

func (f *fakeBackend) SearchUsers(ctx context.Context, q string) ([]dto.UserResponse, error) {
	if f.search != nil {
		return f.search(ctx, q)
	}
	return []dto.UserResponse{{ID: "u-" + q, Username: q}}, nil
}

func (f *fakeBackend) setFailReads(v bool) {
	f.mu.Lock()
	f.failReads = v
	f.mu.Unlock()
}

func (f *fakeBackend) markedChats() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.marked...)
}

func (f *fakeBackend) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

type recordingSignals struct {
	mu      sync.Mutex
	signals []dto.Signal
}

func (r *recordingSignals) SendSignal(signal dto.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, signal)
	return nil
}

func (r *recordingSignals) all() []dto.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dto.Signal(nil), r.signals...)
}

func (r *recordingSignals) count(signalType string) int {
	n := 0
	for _, signal := range r.all() {
		if signal.Type == signalType {
			n++
		}
	}
	return n
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func msg(id, chatID, sender string, minute int) dto.MessageResponse {
	return dto.MessageResponse{
		ID:             id,
		ChatID:         chatID,
		SenderID:       sender,
		SenderUsername: sender,
		Content:        "content " + id,
		CreatedAt:      base.Add(time.Duration(minute) * time.Minute),
	}
}

func summary(id string, minute int, unread int) dto.ChatSummaryResponse {
	last := msg("last-"+id, id, "bob", minute)
	participants := []dto.ParticipantResponse{
		{UserID: "me", Username: "me"},
		{UserID: "bob", Username: "bob"},
	}
	return dto.ChatSummaryResponse{
		ID:           id,
		Name:         "chat " + id,
		Participants: participants,
		LastMessage:  lastMessageOf(last),
		UnreadCount:  unread,
		UpdatedAt:    last.CreatedAt,
	}
}
