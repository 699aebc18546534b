package integration_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-chat/internal/config"
	"github.com/noah-isme/gema-chat/internal/database"
	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/handler"
	"github.com/noah-isme/gema-chat/internal/middleware"
	"github.com/noah-isme/gema-chat/internal/models"
	"github.com/noah-isme/gema-chat/internal/realtime"
	"github.com/noah-isme/gema-chat/internal/repository"
	"github.com/noah-isme/gema-chat/internal/router"
	"github.com/noah-isme/gema-chat/internal/service"
	"github.com/noah-isme/gema-chat/pkg/chatclient"
)

const jwtSecret = "integration-secret"

type chatServer struct {
	baseURL string
	db      *gorm.DB
}

func setupChatServer(t *testing.T) chatServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)

	chatRepo := repository.NewChatRepository(db)
	userRepo := repository.NewUserRepository(db)
	directory := service.NewMemberDirectory(chatRepo)
	roomRouter := realtime.NewRouter(logger)
	presence := realtime.NewPresence(directory, roomRouter, logger)
	typing := realtime.NewTypingRelay(directory, roomRouter, logger)
	decoder, err := realtime.NewSignalDecoder()
	require.NoError(t, err)

	chatService := service.NewChatService(chatRepo, userRepo, roomRouter, validate, logger, service.ChatServiceOptions{})
	userService := service.NewUserService(userRepo, nil, "", 0, validate, logger)
	realtimeService := service.NewRealtimeService(roomRouter, presence, typing, directory, decoder, service.RealtimeOptions{}, logger)

	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, config.Config{AppName: "Test", JWTSecret: jwtSecret}, router.Dependencies{
		ChatHandler:        handler.NewChatHandler(chatService, logger),
		MessageHandler:     handler.NewMessageHandler(chatService, nil, logger),
		ParticipantHandler: handler.NewParticipantHandler(chatService, logger),
		UserHandler:        handler.NewUserHandler(userService, logger),
		RealtimeHandler:    handler.NewRealtimeHandler(realtimeService, logger),
		JWTMiddleware:      middleware.JWTProtected(jwtSecret),
	})

	baseURL, shutdown := startFiberServer(t, app)
	t.Cleanup(shutdown)
	return chatServer{baseURL: baseURL, db: db}
}

func startFiberServer(t *testing.T, app *fiber.App) (string, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)

	shutdown := func() {
		_ = app.Shutdown()
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	}

	return "http://" + listener.Addr().String(), shutdown
}

type participant struct {
	user   models.User
	token  string
	api    *chatclient.API
	client *chatclient.Client
}

func (s chatServer) signup(t *testing.T, username string) *participant {
	t.Helper()
	user := models.User{Username: username, Email: username + "@example.com", Password: "hashed"}
	require.NoError(t, s.db.Create(&user).Error)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      user.ID,
		"username": username,
		"exp":      time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)

	api := chatclient.NewAPI(s.baseURL+"/api/v1", token, nil)
	return &participant{
		user:  user,
		token: token,
		api:   api,
		client: chatclient.New(api, chatclient.Options{
			SelfID:   user.ID,
			Username: username,
			Logger:   zerolog.Nop(),
		}),
	}
}

func (s chatServer) connect(t *testing.T, p *participant) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(s.baseURL, "http") + "/api/v1/ws"
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := chatclient.Dial(ctx, wsURL, p.token, nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.client.Run(ctx, stream)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestChatEndToEndFlow(t *testing.T) {
	server := setupChatServer(t)
	ctx := context.Background()

	alice := server.signup(t, "alice")
	bob := server.signup(t, "bob")
	carol := server.signup(t, "carol")

	// Step 1: alice starts a direct chat; asking again returns the same chat
	chat, err := alice.api.CreateChat(ctx, dto.CreateChatRequest{ParticipantIDs: []string{bob.user.ID}})
	require.NoError(t, err)
	again, err := bob.api.CreateChat(ctx, dto.CreateChatRequest{ParticipantIDs: []string{alice.user.ID}})
	require.NoError(t, err)
	require.Equal(t, chat.ID, again.ID)

	// Step 2: both connect; presence is visible to contacts
	server.connect(t, bob)
	server.connect(t, alice)
	require.Eventually(t, func() bool { return alice.client.Online().IsOnline(bob.user.ID) }, 2*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool { return bob.client.Online().IsOnline(alice.user.ID) }, 2*time.Second, 20*time.Millisecond)
	require.False(t, alice.client.Online().IsOnline(carol.user.ID))

	require.NoError(t, alice.client.RefreshChats(ctx))
	require.NoError(t, bob.client.RefreshChats(ctx))

	// Step 3: typing reaches the other participant
	alice.client.Input(chat.ID, "hel")
	require.Eventually(t, func() bool {
		typing := bob.client.Typing().Typing(chat.ID)
		return len(typing) == 1 && typing[0] == "alice"
	}, 2*time.Second, 20*time.Millisecond)

	// Step 4: alice sends; bob sees it as unread and typing ends
	pending, err := alice.client.Send(ctx, chat.ID, "hello bob")
	require.NoError(t, err)
	require.Equal(t, chatclient.PendingStateConfirmed, pending.State)
	require.Equal(t, alice.user.ID, pending.Message.SenderID)

	require.Eventually(t, func() bool {
		summary, ok := bob.client.Cache().Chat(chat.ID)
		return ok && summary.UnreadCount == 1 && summary.LastMessage != nil && summary.LastMessage.Content == "hello bob"
	}, 2*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool { return !bob.client.Typing().Active(chat.ID) }, 2*time.Second, 20*time.Millisecond)

	// Step 5: bob opens the chat; alice gets the read receipt
	require.NoError(t, bob.client.LoadMessages(ctx, chat.ID))
	require.NoError(t, bob.client.OpenChat(ctx, chat.ID))
	summary, ok := bob.client.Cache().Chat(chat.ID)
	require.True(t, ok)
	require.Equal(t, 0, summary.UnreadCount)

	require.Eventually(t, func() bool {
		messages := alice.client.Cache().Messages(chat.ID)
		return len(messages) == 1 && messages[0].IsRead
	}, 2*time.Second, 20*time.Millisecond)

	// Step 6: while bob has the chat open new messages stay read
	_, err = alice.client.Send(ctx, chat.ID, "are you there?")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		messages := bob.client.Cache().Messages(chat.ID)
		return len(messages) == 2 && messages[0].Content == "are you there?"
	}, 2*time.Second, 20*time.Millisecond)
	summary, _ = bob.client.Cache().Chat(chat.ID)
	require.Equal(t, 0, summary.UnreadCount)

	chats, err := bob.api.ListChats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	require.Eventually(t, func() bool {
		chats, err := bob.api.ListChats(ctx)
		return err == nil && chats[0].UnreadCount == 0
	}, 2*time.Second, 20*time.Millisecond)

	// Step 7: outsiders are refused
	_, err = carol.api.SendMessage(ctx, chat.ID, "let me in")
	require.True(t, chatclient.IsKind(err, chatclient.KindForbidden), "got %v", err)
	_, err = carol.api.GetChat(ctx, chat.ID)
	require.True(t, chatclient.IsKind(err, chatclient.KindNotFound), "got %v", err)
}

func TestGroupMembershipLifecycle(t *testing.T) {
	server := setupChatServer(t)
	ctx := context.Background()

	alice := server.signup(t, "alice")
	bob := server.signup(t, "bob")
	carol := server.signup(t, "carol")

	name := "weekend plans"
	group, err := alice.api.CreateChat(ctx, dto.CreateChatRequest{
		Name:           &name,
		IsGroup:        true,
		ParticipantIDs: []string{bob.user.ID},
	})
	require.NoError(t, err)
	require.Len(t, group.Participants, 2)

	server.connect(t, bob)
	require.NoError(t, bob.client.RefreshChats(ctx))
	_, err = bob.client.LoadChat(ctx, group.ID)
	require.NoError(t, err)

	// only admins add members
	_, err = bob.api.AddParticipant(ctx, group.ID, carol.user.ID)
	require.True(t, chatclient.IsKind(err, chatclient.KindForbidden), "got %v", err)

	added, err := alice.api.AddParticipant(ctx, group.ID, carol.user.ID)
	require.NoError(t, err)
	require.Equal(t, carol.user.ID, added.UserID)
	require.Eventually(t, func() bool {
		detail, ok := bob.client.Cache().Detail(group.ID)
		return ok && len(detail.Participants) == 3
	}, 2*time.Second, 20*time.Millisecond)

	_, err = alice.api.AddParticipant(ctx, group.ID, carol.user.ID)
	require.True(t, chatclient.IsKind(err, chatclient.KindValidation), "got %v", err)

	// bob is removed and drops the chat locally
	require.NoError(t, alice.api.RemoveParticipant(ctx, group.ID, bob.user.ID))
	require.Eventually(t, func() bool { return !bob.client.Cache().HasChat(group.ID) }, 2*time.Second, 20*time.Millisecond)

	_, err = bob.api.ListMessages(ctx, group.ID, "")
	require.True(t, chatclient.IsKind(err, chatclient.KindForbidden), "got %v", err)

	// history sent while bob was away stays hidden after he is re-added
	_, err = alice.api.SendMessage(ctx, group.ID, "bob is gone")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = alice.api.AddParticipant(ctx, group.ID, bob.user.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return bob.client.Cache().HasChat(group.ID) }, 2*time.Second, 20*time.Millisecond)

	page, err := bob.api.ListMessages(ctx, group.ID, "")
	require.NoError(t, err)
	require.Empty(t, page.Messages)

	_, err = alice.api.SendMessage(ctx, group.ID, "welcome back")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		summary, ok := bob.client.Cache().Chat(group.ID)
		return ok && summary.LastMessage != nil && summary.LastMessage.Content == "welcome back"
	}, 2*time.Second, 20*time.Millisecond)

	// carol leaves on her own
	require.NoError(t, carol.api.LeaveChat(ctx, group.ID))
	chats, err := carol.api.ListChats(ctx)
	require.NoError(t, err)
	require.Empty(t, chats)
}
