package chatclient

import (
	"encoding/json"
	"sync"

	"github.com/noah-isme/gema-chat/internal/dto"
)

// MessagePage is one fetched page of a chat's history, newest first.
type MessagePage struct {
	Messages   []dto.MessageResponse `json:"messages"`
	NextCursor *string               `json:"next_cursor"`
	HasMore    bool                  `json:"has_more"`
}

// CacheState is a point-in-time copy of everything the cache holds.
type CacheState struct {
	Chats    []dto.ChatSummaryResponse         `json:"chats"`
	Details  map[string]dto.ChatDetailResponse `json:"details"`
	Messages map[string][]MessagePage          `json:"messages"`
}

// Cache holds the chat list, per-chat details and paged message history.
// The chat list is kept ordered by updatedAt, most recent first.
type Cache struct {
	mu      sync.RWMutex
	chats   []dto.ChatSummaryResponse
	details map[string]dto.ChatDetailResponse
	pages   map[string][]MessagePage
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		details: make(map[string]dto.ChatDetailResponse),
		pages:   make(map[string][]MessagePage),
	}
}

// State returns a deep copy of the cache contents.
func (c *Cache) State() CacheState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state := CacheState{
		Chats:    copySummaries(c.chats),
		Details:  make(map[string]dto.ChatDetailResponse, len(c.details)),
		Messages: make(map[string][]MessagePage, len(c.pages)),
	}
	for id, detail := range c.details {
		state.Details[id] = copyDetail(detail)
	}
	for id, pages := range c.pages {
		state.Messages[id] = copyPages(pages)
	}
	return state
}

// Restore replaces the cache contents with state.
func (c *Cache) Restore(state CacheState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.chats = copySummaries(state.Chats)
	c.details = make(map[string]dto.ChatDetailResponse, len(state.Details))
	for id, detail := range state.Details {
		c.details[id] = copyDetail(detail)
	}
	c.pages = make(map[string][]MessagePage, len(state.Messages))
	for id, pages := range state.Messages {
		c.pages[id] = copyPages(pages)
	}
}

// MarshalJSON encodes the cache state. Map keys are sorted, so equal states
// encode to identical bytes.
func (c *Cache) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.State())
}

// Chats returns the cached chat list.
func (c *Cache) Chats() []dto.ChatSummaryResponse {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copySummaries(c.chats)
}

// Chat returns the cached summary for chatID.
func (c *Cache) Chat(chatID string) (dto.ChatSummaryResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if idx := c.indexLocked(chatID); idx >= 0 {
		return copySummary(c.chats[idx]), true
	}
	return dto.ChatSummaryResponse{}, false
}

// HasChat reports whether chatID is in the chat list.
func (c *Cache) HasChat(chatID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.indexLocked(chatID) >= 0
}

// Detail returns the cached chat detail.
func (c *Cache) Detail(chatID string) (dto.ChatDetailResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	detail, ok := c.details[chatID]
	return copyDetail(detail), ok
}

// Messages flattens the cached pages of chatID, newest first.
func (c *Cache) Messages(chatID string) []dto.MessageResponse {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []dto.MessageResponse
	for _, page := range c.pages[chatID] {
		out = append(out, page.Messages...)
	}
	return out
}

// NextCursor returns the cursor for the next older page, if any.
func (c *Cache) NextCursor(chatID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pages := c.pages[chatID]
	if len(pages) == 0 {
		return "", false
	}
	last := pages[len(pages)-1]
	if !last.HasMore || last.NextCursor == nil {
		return "", false
	}
	return *last.NextCursor, true
}

func (c *Cache) setChats(chats []dto.ChatSummaryResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chats = copySummaries(chats)
}

func (c *Cache) setDetail(detail dto.ChatDetailResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.details[detail.ID] = copyDetail(detail)
}

// setFirstPage drops any older pages; they are refetched on demand.
func (c *Cache) setFirstPage(chatID string, page dto.MessagePageResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[chatID] = []MessagePage{fromResponse(page)}
}

func (c *Cache) appendPage(chatID string, page dto.MessagePageResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[chatID] = append(c.pages[chatID], fromResponse(page))
}

// prependMessage adds message to the front of the newest page. Known ids
// are ignored. Without cached pages nothing happens unless create is set.
func (c *Cache) prependMessage(chatID string, message dto.MessageResponse, create bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prependLocked(chatID, message, create)
}

func (c *Cache) prependLocked(chatID string, message dto.MessageResponse, create bool) bool {
	pages, ok := c.pages[chatID]
	if !ok || len(pages) == 0 {
		if !create {
			return false
		}
		c.pages[chatID] = []MessagePage{{Messages: []dto.MessageResponse{message}}}
		return true
	}
	for _, page := range pages {
		for _, existing := range page.Messages {
			if existing.ID == message.ID {
				return false
			}
		}
	}
	first := pages[0]
	first.Messages = append([]dto.MessageResponse{message}, first.Messages...)
	pages[0] = first
	return true
}

// promote sets the chat's last message and moves it to the front of the list.
func (c *Cache) promote(chatID string, last *dto.LastMessageResponse, unread func(int) int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.promoteLocked(chatID, last, unread)
}

func (c *Cache) promoteLocked(chatID string, last *dto.LastMessageResponse, unread func(int) int) bool {
	idx := c.indexLocked(chatID)
	if idx < 0 {
		return false
	}
	chat := c.chats[idx]
	chat.LastMessage = last
	chat.UpdatedAt = last.CreatedAt
	if unread != nil {
		chat.UnreadCount = unread(chat.UnreadCount)
	}
	c.chats = append(c.chats[:idx], c.chats[idx+1:]...)
	c.chats = append([]dto.ChatSummaryResponse{chat}, c.chats...)
	return true
}

func (c *Cache) setUnread(chatID string, count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx := c.indexLocked(chatID); idx >= 0 {
		c.chats[idx].UnreadCount = count
	}
}

// applyReadReceipt flags own messages covered by readAt as read. Receipts
// from self are ignored and repeated receipts are no-ops.
func (c *Cache) applyReadReceipt(receipt dto.MessagesReadPayload, selfID string) int {
	if receipt.UserID == selfID {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := 0
	for _, page := range c.pages[receipt.ChatID] {
		for i := range page.Messages {
			message := &page.Messages[i]
			if message.IsRead || !IsOwn(*message, selfID) {
				continue
			}
			if !message.CreatedAt.After(receipt.ReadAt) {
				message.IsRead = true
				changed++
			}
		}
	}
	return changed
}

func (c *Cache) addParticipant(chatID string, participant dto.ParticipantResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	detail, ok := c.details[chatID]
	if !ok {
		return
	}
	for _, existing := range detail.Participants {
		if existing.UserID == participant.UserID {
			return
		}
	}
	detail.Participants = append(detail.Participants, participant)
	c.details[chatID] = detail
}

func (c *Cache) removeParticipant(chatID, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	detail, ok := c.details[chatID]
	if !ok {
		return
	}
	kept := detail.Participants[:0]
	for _, existing := range detail.Participants {
		if existing.UserID != userID {
			kept = append(kept, existing)
		}
	}
	detail.Participants = kept
	c.details[chatID] = detail
}

// forget drops everything cached about chatID.
func (c *Cache) forget(chatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx := c.indexLocked(chatID); idx >= 0 {
		c.chats = append(c.chats[:idx], c.chats[idx+1:]...)
	}
	delete(c.details, chatID)
	delete(c.pages, chatID)
}

// applyOptimistic inserts the provisional message of p and promotes its chat,
// remembering what is needed to undo exactly this change.
func (c *Cache) applyOptimistic(p *PendingSend, message dto.MessageResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p.createdPage = len(c.pages[p.ChatID]) == 0
	c.prependLocked(p.ChatID, message, true)

	if idx := c.indexLocked(p.ChatID); idx >= 0 {
		previous := copySummary(c.chats[idx])
		p.prevSummary = &previous
		p.prevIndex = idx
		c.promoteLocked(p.ChatID, lastMessageOf(message), nil)
	}
}

// rollback removes the provisional message of p. The summary is restored only
// while it still shows that message, so other sends are left untouched.
// others are the sends still pending on the same chat; any of them that
// captured p's provisional state inherit p's undo information.
func (c *Cache) rollback(p *PendingSend, others []*PendingSend) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, other := range others {
		if other.prevSummary != nil && other.prevSummary.LastMessage != nil && other.prevSummary.LastMessage.ID == p.TempID {
			other.prevSummary = p.prevSummary
			other.prevIndex = p.prevIndex
		}
		if p.createdPage {
			other.createdPage = true
		}
	}

	c.removeMessageLocked(p.ChatID, p.TempID)
	if pages := c.pages[p.ChatID]; p.createdPage && len(pages) == 1 && len(pages[0].Messages) == 0 {
		delete(c.pages, p.ChatID)
	}

	if p.prevSummary == nil {
		return
	}
	idx := c.indexLocked(p.ChatID)
	if idx < 0 {
		return
	}
	current := c.chats[idx]
	if current.LastMessage == nil || current.LastMessage.ID != p.TempID {
		return
	}
	c.chats = append(c.chats[:idx], c.chats[idx+1:]...)
	at := p.prevIndex
	if at > len(c.chats) {
		at = len(c.chats)
	}
	restored := copySummary(*p.prevSummary)
	c.chats = append(c.chats[:at], append([]dto.ChatSummaryResponse{restored}, c.chats[at:]...)...)
}

// confirm swaps the provisional message of p for the stored one, here and in
// the undo information of the other sends pending on the same chat.
func (c *Cache) confirm(p *PendingSend, stored dto.MessageResponse, others []*PendingSend) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, other := range others {
		if other.prevSummary != nil && other.prevSummary.LastMessage != nil && other.prevSummary.LastMessage.ID == p.TempID {
			other.prevSummary.LastMessage = lastMessageOf(stored)
			other.prevSummary.UpdatedAt = stored.CreatedAt
		}
		if p.createdPage {
			other.createdPage = false
		}
	}

	replaced := false
	for _, page := range c.pages[p.ChatID] {
		for i := range page.Messages {
			if page.Messages[i].ID == p.TempID {
				page.Messages[i] = stored
				replaced = true
			}
		}
	}
	if !replaced {
		c.prependLocked(p.ChatID, stored, false)
	}

	if idx := c.indexLocked(p.ChatID); idx >= 0 {
		if last := c.chats[idx].LastMessage; last != nil && last.ID == p.TempID {
			c.chats[idx].LastMessage = lastMessageOf(stored)
			c.chats[idx].UpdatedAt = stored.CreatedAt
		}
	}
}

func (c *Cache) removeMessageLocked(chatID, messageID string) {
	pages := c.pages[chatID]
	for i, page := range pages {
		for j, message := range page.Messages {
			if message.ID == messageID {
				page.Messages = append(page.Messages[:j:j], page.Messages[j+1:]...)
				pages[i] = page
				return
			}
		}
	}
}

func (c *Cache) indexLocked(chatID string) int {
	for i, chat := range c.chats {
		if chat.ID == chatID {
			return i
		}
	}
	return -1
}

func lastMessageOf(message dto.MessageResponse) *dto.LastMessageResponse {
	return &dto.LastMessageResponse{
		ID:             message.ID,
		Content:        message.Content,
		SenderID:       message.SenderID,
		SenderUsername: message.SenderUsername,
		CreatedAt:      message.CreatedAt,
	}
}

func fromResponse(page dto.MessagePageResponse) MessagePage {
	out := MessagePage{
		Messages: append(make([]dto.MessageResponse, 0, len(page.Messages)), page.Messages...),
		HasMore:  page.HasMore,
	}
	if page.NextCursor != nil {
		cursor := *page.NextCursor
		out.NextCursor = &cursor
	}
	return out
}

func copySummary(chat dto.ChatSummaryResponse) dto.ChatSummaryResponse {
	if chat.Participants != nil {
		chat.Participants = append([]dto.ParticipantResponse(nil), chat.Participants...)
	}
	if chat.LastMessage != nil {
		last := *chat.LastMessage
		chat.LastMessage = &last
	}
	return chat
}

func copySummaries(chats []dto.ChatSummaryResponse) []dto.ChatSummaryResponse {
	if chats == nil {
		return nil
	}
	out := make([]dto.ChatSummaryResponse, len(chats))
	for i, chat := range chats {
		out[i] = copySummary(chat)
	}
	return out
}

func copyDetail(detail dto.ChatDetailResponse) dto.ChatDetailResponse {
	if detail.Participants != nil {
		detail.Participants = append([]dto.ParticipantResponse(nil), detail.Participants...)
	}
	return detail
}

func copyPages(pages []MessagePage) []MessagePage {
	out := make([]MessagePage, len(pages))
	for i, page := range pages {
		out[i] = MessagePage{HasMore: page.HasMore}
		if page.Messages != nil {
			out[i].Messages = append([]dto.MessageResponse(nil), page.Messages...)
		}
		if page.NextCursor != nil {
			cursor := *page.NextCursor
			out[i].NextCursor = &cursor
		}
	}
	return out
}
