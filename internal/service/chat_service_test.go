package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/models"
	"github.com/noah-isme/gema-chat/internal/repository"
)

type recordingPusher struct {
	mu     sync.Mutex
	events map[string][]dto.Event
}

func newRecordingPusher() *recordingPusher {
	return &recordingPusher{events: make(map[string][]dto.Event)}
}

func (p *recordingPusher) PushToUser(userID string, event dto.Event) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events[userID] = append(p.events[userID], event)
	return 1
}

func (p *recordingPusher) PushToUsers(userIDs []string, event dto.Event) int {
	seen := map[string]struct{}{}
	delivered := 0
	for _, userID := range userIDs {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		delivered += p.PushToUser(userID, event)
	}
	return delivered
}

func (p *recordingPusher) of(userID, eventType string) []dto.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []dto.Event
	for _, event := range p.events[userID] {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

func (p *recordingPusher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = make(map[string][]dto.Event)
}

// stepClock advances one second per reading so every write gets a distinct timestamp.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type chatFixture struct {
	db     *gorm.DB
	chats  repository.ChatRepository
	users  repository.UserRepository
	pusher *recordingPusher
	svc    ChatService
	alice  models.User
	bob    models.User
	carol  models.User
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.ChatModels()...))

	f := &chatFixture{
		db:     db,
		chats:  repository.NewChatRepository(db),
		users:  repository.NewUserRepository(db),
		pusher: newRecordingPusher(),
	}
	clock := &stepClock{t: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
	f.svc = NewChatService(f.chats, f.users, f.pusher, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop(), ChatServiceOptions{Now: clock.Now})

	f.alice = f.user(t, "alice")
	f.bob = f.user(t, "bob")
	f.carol = f.user(t, "carol")
	return f
}

func (f *chatFixture) user(t *testing.T, username string) models.User {
	t.Helper()
	user := models.User{Username: username, Email: username + "@example.com", Password: "hashed"}
	require.NoError(t, f.users.Create(context.Background(), &user))
	return user
}

func (f *chatFixture) direct(t *testing.T, from, to models.User) dto.ChatDetailResponse {
	t.Helper()
	chat, created, err := f.svc.CreateChat(context.Background(), from.ID, dto.CreateChatRequest{ParticipantIDs: []string{to.ID}})
	require.NoError(t, err)
	require.True(t, created)
	return chat
}

func (f *chatFixture) group(t *testing.T, admin models.User, members ...models.User) dto.ChatDetailResponse {
	t.Helper()
	ids := make([]string, 0, len(members))
	for _, member := range members {
		ids = append(ids, member.ID)
	}
	name := "project"
	chat, created, err := f.svc.CreateChat(context.Background(), admin.ID, dto.CreateChatRequest{Name: &name, IsGroup: true, ParticipantIDs: ids})
	require.NoError(t, err)
	require.True(t, created)
	return chat
}

func (f *chatFixture) send(t *testing.T, chatID string, from models.User, content string) dto.MessageResponse {
	t.Helper()
	message, err := f.svc.SendMessage(context.Background(), chatID, from.ID, dto.SendMessageRequest{Content: content})
	require.NoError(t, err)
	return message
}

func (f *chatFixture) unread(t *testing.T, user models.User, chatID string) int {
	t.Helper()
	chats, err := f.svc.ListChats(context.Background(), user.ID)
	require.NoError(t, err)
	for _, chat := range chats {
		if chat.ID == chatID {
			return chat.UnreadCount
		}
	}
	t.Fatalf("chat %s not listed for %s", chatID, user.Username)
	return 0
}

func (f *chatFixture) rows(t *testing.T, chatID string, user models.User) int64 {
	t.Helper()
	count, err := f.chats.CountParticipantRows(context.Background(), chatID, user.ID)
	require.NoError(t, err)
	return count
}

func TestCreateChatValidatesParticipants(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.CreateChat(ctx, f.alice.ID, dto.CreateChatRequest{})
	require.ErrorIs(t, err, ErrValidation)

	_, _, err = f.svc.CreateChat(ctx, f.alice.ID, dto.CreateChatRequest{ParticipantIDs: []string{f.alice.ID}})
	require.ErrorIs(t, err, ErrValidation)

	_, _, err = f.svc.CreateChat(ctx, f.alice.ID, dto.CreateChatRequest{ParticipantIDs: []string{f.bob.ID, f.carol.ID}})
	require.ErrorIs(t, err, ErrValidation)

	_, _, err = f.svc.CreateChat(ctx, f.alice.ID, dto.CreateChatRequest{ParticipantIDs: []string{uuid.NewString()}})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateGroupMakesCreatorAdmin(t *testing.T) {
	f := newChatFixture(t)

	chat := f.group(t, f.alice, f.bob, f.carol)
	require.True(t, chat.IsGroup)
	require.Equal(t, "project", chat.Name)
	require.Len(t, chat.Participants, 3)
	for _, participant := range chat.Participants {
		require.Equal(t, participant.UserID == f.alice.ID, participant.IsAdmin)
	}
}

func TestDirectChatLeaveAndResurrection(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	chat := f.direct(t, f.alice, f.bob)
	require.Len(t, chat.Participants, 2)
	require.Equal(t, "bob", chat.Name)
	f.send(t, chat.ID, f.alice, "before the leave")

	require.NoError(t, f.svc.LeaveChat(ctx, chat.ID, f.bob.ID))

	stored, err := f.chats.FindChat(ctx, chat.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Name)
	require.Equal(t, "bob", *stored.Name)
	require.Len(t, f.pusher.of(f.alice.ID, dto.EventParticipantRemoved), 1)
	require.Empty(t, f.pusher.of(f.bob.ID, dto.EventParticipantRemoved))

	bobChats, err := f.svc.ListChats(ctx, f.bob.ID)
	require.NoError(t, err)
	require.Empty(t, bobChats)

	aliceChats, err := f.svc.ListChats(ctx, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, aliceChats, 1)
	require.Equal(t, "bob", aliceChats[0].Name, "the departed member's name stays as a label")

	f.pusher.reset()
	message := f.send(t, chat.ID, f.alice, "are you there?")
	require.Len(t, f.pusher.of(f.bob.ID, dto.EventNewMessage), 1)

	participant, err := f.chats.FindParticipant(ctx, chat.ID, f.bob.ID)
	require.NoError(t, err)
	require.True(t, participant.IsActive())
	require.True(t, participant.JoinedAt.Before(message.CreatedAt))
	require.NotNil(t, participant.LastMessageReadAt)
	require.True(t, participant.LastMessageReadAt.Equal(participant.JoinedAt), "rejoining resets the read fence")
	require.Equal(t, int64(1), f.rows(t, chat.ID, f.bob))

	bobChats, err = f.svc.ListChats(ctx, f.bob.ID)
	require.NoError(t, err)
	require.Len(t, bobChats, 1)
	require.Equal(t, "alice", bobChats[0].Name)
	require.Equal(t, 1, bobChats[0].UnreadCount)
	require.NotNil(t, bobChats[0].LastMessage)
	require.Equal(t, "alice", bobChats[0].LastMessage.SenderUsername)

	page, err := f.svc.ListMessages(ctx, chat.ID, f.bob.ID, dto.MessageListQuery{})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1, "history before the rejoin is hidden")
	require.Equal(t, message.ID, page.Messages[0].ID)
}

func TestCreateDirectChatReusesExistingChat(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	chat := f.direct(t, f.alice, f.bob)

	again, created, err := f.svc.CreateChat(ctx, f.bob.ID, dto.CreateChatRequest{ParticipantIDs: []string{f.alice.ID}})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, chat.ID, again.ID)

	require.NoError(t, f.svc.LeaveChat(ctx, chat.ID, f.alice.ID))
	again, created, err = f.svc.CreateChat(ctx, f.alice.ID, dto.CreateChatRequest{ParticipantIDs: []string{f.bob.ID}})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, chat.ID, again.ID)
	require.Len(t, again.Participants, 2, "the caller's row is reactivated")
	require.Equal(t, int64(1), f.rows(t, chat.ID, f.alice))
}

func TestGroupRemovalPushesToRemovedAndRemaining(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	chat := f.group(t, f.alice, f.bob, f.carol)
	f.send(t, chat.ID, f.alice, "welcome")
	f.pusher.reset()

	require.NoError(t, f.svc.RemoveParticipant(ctx, chat.ID, f.alice.ID, f.bob.ID))

	removed := f.pusher.of(f.bob.ID, dto.EventParticipantRemoved)
	require.Len(t, removed, 1)
	forCarol := f.pusher.of(f.carol.ID, dto.EventParticipantRemoved)
	require.Len(t, forCarol, 1)
	payload, ok := forCarol[0].Payload.(dto.ParticipantRemovedPayload)
	require.True(t, ok)
	require.Equal(t, f.bob.ID, payload.UserID)
	require.Equal(t, chat.ID, payload.ChatID)

	_, err := f.svc.ListMessages(ctx, chat.ID, f.bob.ID, dto.MessageListQuery{})
	require.ErrorIs(t, err, ErrForbidden)

	detail, err := f.svc.GetChat(ctx, chat.ID, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, detail.Participants, 2)

	err = f.svc.RemoveParticipant(ctx, chat.ID, f.alice.ID, f.bob.ID)
	require.ErrorIs(t, err, ErrNotFound, "a second removal must not succeed")

	err = f.svc.RemoveParticipant(ctx, chat.ID, f.carol.ID, f.alice.ID)
	require.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, f.svc.RemoveParticipant(ctx, chat.ID, f.carol.ID, f.carol.ID), "members may leave on their own")
}

func TestRemoveParticipantRejectsDirectChats(t *testing.T) {
	f := newChatFixture(t)

	chat := f.direct(t, f.alice, f.bob)
	err := f.svc.RemoveParticipant(context.Background(), chat.ID, f.alice.ID, f.bob.ID)
	require.ErrorIs(t, err, ErrValidation)
}

func TestConcurrentRemovalsSucceedOnce(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	chat := f.group(t, f.alice, f.bob, f.carol)
	// promote carol so two admins race
	participant, err := f.chats.FindParticipant(ctx, chat.ID, f.carol.ID)
	require.NoError(t, err)
	participant.IsAdmin = true
	require.NoError(t, f.chats.SaveMembership(ctx, participant))

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for _, admin := range []models.User{f.alice, f.carol} {
		wg.Add(1)
		go func(admin models.User) {
			defer wg.Done()
			results <- f.svc.RemoveParticipant(ctx, chat.ID, admin.ID, f.bob.ID)
		}(admin)
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, ErrNotFound)
	}
	require.Equal(t, 1, succeeded)
}

func TestAddParticipantReactivatesExistingRow(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	chat := f.group(t, f.alice, f.bob, f.carol)
	require.NoError(t, f.svc.RemoveParticipant(ctx, chat.ID, f.alice.ID, f.bob.ID))
	f.pusher.reset()

	added, err := f.svc.AddParticipant(ctx, chat.ID, f.alice.ID, dto.AddParticipantRequest{UserID: f.bob.ID})
	require.NoError(t, err)
	require.Equal(t, f.bob.ID, added.UserID)
	require.Equal(t, "bob", added.Username)
	require.Equal(t, int64(1), f.rows(t, chat.ID, f.bob))

	for _, user := range []models.User{f.alice, f.bob, f.carol} {
		require.Len(t, f.pusher.of(user.ID, dto.EventParticipantAdded), 1, user.Username)
	}

	_, err = f.svc.AddParticipant(ctx, chat.ID, f.alice.ID, dto.AddParticipantRequest{UserID: f.bob.ID})
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.AddParticipant(ctx, chat.ID, f.carol.ID, dto.AddParticipantRequest{UserID: f.bob.ID})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.AddParticipant(ctx, chat.ID, f.alice.ID, dto.AddParticipantRequest{UserID: uuid.NewString()})
	require.ErrorIs(t, err, ErrNotFound)

	direct := f.direct(t, f.alice, f.bob)
	_, err = f.svc.AddParticipant(ctx, direct.ID, f.alice.ID, dto.AddParticipantRequest{UserID: f.carol.ID})
	require.ErrorIs(t, err, ErrValidation)
}

func TestConcurrentAddsKeepOneRow(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	dave := f.user(t, "dave")

	chat := f.group(t, f.alice, f.bob)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.AddParticipant(ctx, chat.ID, f.alice.ID, dto.AddParticipantRequest{UserID: dave.ID})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, int64(1), f.rows(t, chat.ID, dave))
}

func TestListMessagesPaginates(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	chat := f.direct(t, f.alice, f.bob)
	for i := 0; i < 120; i++ {
		f.send(t, chat.ID, f.alice, fmt.Sprintf("message %d", i))
	}

	first, err := f.svc.ListMessages(ctx, chat.ID, f.bob.ID, dto.MessageListQuery{Limit: 50})
	require.NoError(t, err)
	require.Len(t, first.Messages, 50)
	require.True(t, first.HasMore)
	require.NotNil(t, first.NextCursor)
	require.Equal(t, "message 119", first.Messages[0].Content)

	second, err := f.svc.ListMessages(ctx, chat.ID, f.bob.ID, dto.MessageListQuery{Limit: 50, Cursor: *first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Messages, 50)
	require.NotNil(t, second.NextCursor)
	require.Equal(t, "message 69", second.Messages[0].Content)

	third, err := f.svc.ListMessages(ctx, chat.ID, f.bob.ID, dto.MessageListQuery{Limit: 50, Cursor: *second.NextCursor})
	require.NoError(t, err)
	require.Len(t, third.Messages, 20)
	require.Nil(t, third.NextCursor)
	require.False(t, third.HasMore)
	require.Equal(t, "message 0", third.Messages[19].Content)

	defaults, err := f.svc.ListMessages(ctx, chat.ID, f.bob.ID, dto.MessageListQuery{})
	require.NoError(t, err)
	require.Len(t, defaults.Messages, 50)

	_, err = f.svc.ListMessages(ctx, chat.ID, f.bob.ID, dto.MessageListQuery{Cursor: uuid.NewString()})
	require.ErrorIs(t, err, ErrValidation)
}

func TestUnreadCountsAndMarkRead(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	chat := f.group(t, f.alice, f.bob, f.carol)
	f.send(t, chat.ID, f.alice, "one")
	f.send(t, chat.ID, f.alice, "two")
	f.send(t, chat.ID, f.bob, "three")

	require.Equal(t, 1, f.unread(t, f.alice, chat.ID))
	require.Equal(t, 2, f.unread(t, f.bob, chat.ID))
	require.Equal(t, 3, f.unread(t, f.carol, chat.ID))

	receipt, err := f.svc.MarkRead(ctx, chat.ID, f.carol.ID)
	require.NoError(t, err)
	require.Equal(t, f.carol.ID, receipt.UserID)
	require.Equal(t, 0, f.unread(t, f.carol, chat.ID))
	require.Equal(t, 2, f.unread(t, f.bob, chat.ID), "a receipt only resets the reader")

	require.Len(t, f.pusher.of(f.alice.ID, dto.EventMessagesRead), 1)
	require.Len(t, f.pusher.of(f.bob.ID, dto.EventMessagesRead), 1)
	require.Empty(t, f.pusher.of(f.carol.ID, dto.EventMessagesRead))

	f.send(t, chat.ID, f.alice, "four")
	require.Equal(t, 1, f.unread(t, f.carol, chat.ID))
}

func TestMarkReadRequiresMembership(t *testing.T) {
	f := newChatFixture(t)

	chat := f.direct(t, f.alice, f.bob)
	_, err := f.svc.MarkRead(context.Background(), chat.ID, f.carol.ID)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.MarkRead(context.Background(), uuid.NewString(), f.carol.ID)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestIsReadOnlyGatedByActiveParticipants(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	chat := f.group(t, f.alice, f.bob, f.carol)
	sent := f.send(t, chat.ID, f.alice, "hello team")

	isRead := func(viewer models.User) bool {
		page, err := f.svc.ListMessages(ctx, chat.ID, viewer.ID, dto.MessageListQuery{})
		require.NoError(t, err)
		require.Len(t, page.Messages, 1)
		require.Equal(t, sent.ID, page.Messages[0].ID)
		return page.Messages[0].IsRead
	}

	require.False(t, isRead(f.alice))

	_, err := f.svc.MarkRead(ctx, chat.ID, f.bob.ID)
	require.NoError(t, err)
	require.False(t, isRead(f.alice), "carol has not read yet")
	require.False(t, isRead(f.bob), "isRead is only derived for the author")

	require.NoError(t, f.svc.RemoveParticipant(ctx, chat.ID, f.alice.ID, f.carol.ID))
	require.True(t, isRead(f.alice), "removed members no longer gate the receipt")
}

func TestSendMessageRules(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	chat := f.direct(t, f.alice, f.bob)

	_, err := f.svc.SendMessage(ctx, chat.ID, f.carol.ID, dto.SendMessageRequest{Content: "hi"})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.SendMessage(ctx, chat.ID, f.alice.ID, dto.SendMessageRequest{Content: "   "})
	require.ErrorIs(t, err, ErrValidation)

	message := f.send(t, chat.ID, f.alice, "  if a<b and c>d then swap  ")
	require.Equal(t, "if a<b and c>d then swap", message.Content)
	require.Equal(t, "alice", message.SenderUsername)
	require.Empty(t, f.pusher.of(f.alice.ID, dto.EventNewMessage), "the sender gets no push")

	pushed := f.pusher.of(f.bob.ID, dto.EventNewMessage)
	require.Len(t, pushed, 1)
	payload, ok := pushed[0].Payload.(dto.MessageResponse)
	require.True(t, ok)
	require.Equal(t, message.ID, payload.ID)
	require.Equal(t, chat.ID, payload.ChatID)

	stored, err := f.chats.FindChat(ctx, chat.ID)
	require.NoError(t, err)
	require.True(t, stored.UpdatedAt.Equal(message.CreatedAt))
}

func TestSendMessagePushesInCommitOrder(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	chat := f.group(t, f.alice, f.bob, f.carol)

	var wg sync.WaitGroup
	for _, sender := range []models.User{f.alice, f.bob} {
		wg.Add(1)
		go func(sender models.User) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				_, err := f.svc.SendMessage(ctx, chat.ID, sender.ID, dto.SendMessageRequest{Content: "ping"})
				require.NoError(t, err)
			}
		}(sender)
	}
	wg.Wait()

	pushed := f.pusher.of(f.carol.ID, dto.EventNewMessage)
	require.Len(t, pushed, 20)
	for i := 1; i < len(pushed); i++ {
		prev := pushed[i-1].Payload.(dto.MessageResponse)
		next := pushed[i].Payload.(dto.MessageResponse)
		require.True(t, next.CreatedAt.After(prev.CreatedAt))
	}
}

func TestGetChatHidesExistence(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	chat := f.direct(t, f.alice, f.bob)
	_, err := f.svc.GetChat(ctx, chat.ID, f.carol.ID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.GetChat(ctx, uuid.NewString(), f.carol.ID)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, f.svc.LeaveChat(ctx, chat.ID, f.bob.ID))
	_, err = f.svc.GetChat(ctx, chat.ID, f.bob.ID)
	require.ErrorIs(t, err, ErrNotFound)

	err = f.svc.LeaveChat(ctx, chat.ID, f.bob.ID)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestEmptyGroupStaysInert(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	chat := f.group(t, f.alice, f.bob)
	require.NoError(t, f.svc.RemoveParticipant(ctx, chat.ID, f.bob.ID, f.bob.ID))
	require.NoError(t, f.svc.RemoveParticipant(ctx, chat.ID, f.alice.ID, f.alice.ID))

	stored, err := f.chats.FindChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Equal(t, chat.ID, stored.ID)

	_, err = f.svc.SendMessage(ctx, chat.ID, f.alice.ID, dto.SendMessageRequest{Content: "anyone?"})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestMessageContentIsStoredAsTyped(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	chat := f.direct(t, f.alice, f.bob)
	inputs := []string{"a<b and c>d", "<hello>", "use <div> here", "x<y", "<script>alert(1)</script>", "fish & chips"}
	for _, content := range inputs {
		message := f.send(t, chat.ID, f.alice, content)
		require.Equal(t, content, message.Content)
	}

	page, err := f.svc.ListMessages(ctx, chat.ID, f.bob.ID, dto.MessageListQuery{})
	require.NoError(t, err)
	require.Len(t, page.Messages, len(inputs))
	for i, message := range page.Messages {
		require.Equal(t, inputs[len(inputs)-1-i], message.Content)
	}

	name := "  <team> & friends  "
	group, created, err := f.svc.CreateChat(ctx, f.alice.ID, dto.CreateChatRequest{Name: &name, IsGroup: true, ParticipantIDs: []string{f.bob.ID}})
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "<team> & friends", group.Name)
}

func TestMessagesKeepSendOrderWhenClockRepeats(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	frozen := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	f.svc = NewChatService(f.chats, f.users, f.pusher, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop(), ChatServiceOptions{Now: func() time.Time { return frozen }})

	chat := f.direct(t, f.alice, f.bob)
	sent := make([]dto.MessageResponse, 0, 5)
	for i := 0; i < 5; i++ {
		sent = append(sent, f.send(t, chat.ID, f.alice, fmt.Sprintf("message %d", i)))
	}
	for i := 1; i < len(sent); i++ {
		require.True(t, sent[i].CreatedAt.After(sent[i-1].CreatedAt))
	}

	page, err := f.svc.ListMessages(ctx, chat.ID, f.bob.ID, dto.MessageListQuery{})
	require.NoError(t, err)
	require.Len(t, page.Messages, len(sent))
	for i, message := range page.Messages {
		require.Equal(t, sent[len(sent)-1-i].ID, message.ID)
	}
}
