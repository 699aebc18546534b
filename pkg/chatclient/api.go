package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/noah-isme/gema-chat/internal/dto"
)

// Error kinds reported by the server in the error_kind field.
const (
	KindValidation = "validation"
	KindAuth       = "auth"
	KindForbidden  = "forbidden"
	KindNotFound   = "not_found"
	KindConflict   = "conflict"
	KindTransient  = "transient"
)

// APIError is a failed request-response call.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
}

// IsKind reports whether err is an APIError of the given kind.
func IsKind(err error, kind string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

type envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	ErrorKind string          `json:"error_kind"`
	Data      json.RawMessage `json:"data"`
}

// API is a thin client for the chat REST surface.
type API struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAPI creates a client rooted at baseURL (for example http://host/api/v1).
func NewAPI(baseURL, token string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

func (a *API) Me(ctx context.Context) (dto.UserResponse, error) {
	var out dto.UserResponse
	err := a.do(ctx, http.MethodGet, "/me", nil, &out)
	return out, err
}

func (a *API) SearchUsers(ctx context.Context, q string) ([]dto.UserResponse, error) {
	var out []dto.UserResponse
	err := a.do(ctx, http.MethodGet, "/users?q="+url.QueryEscape(q), nil, &out)
	return out, err
}

func (a *API) ListChats(ctx context.Context) ([]dto.ChatSummaryResponse, error) {
	var out []dto.ChatSummaryResponse
	err := a.do(ctx, http.MethodGet, "/chats", nil, &out)
	return out, err
}

func (a *API) GetChat(ctx context.Context, chatID string) (dto.ChatDetailResponse, error) {
	var out dto.ChatDetailResponse
	err := a.do(ctx, http.MethodGet, "/chats/"+url.PathEscape(chatID), nil, &out)
	return out, err
}

func (a *API) CreateChat(ctx context.Context, req dto.CreateChatRequest) (dto.ChatDetailResponse, error) {
	var out dto.ChatDetailResponse
	err := a.do(ctx, http.MethodPost, "/chats", req, &out)
	return out, err
}

func (a *API) LeaveChat(ctx context.Context, chatID string) error {
	return a.do(ctx, http.MethodDelete, "/chats/"+url.PathEscape(chatID), nil, nil)
}

// ListMessages fetches one page of history. An empty cursor starts at the newest message.
func (a *API) ListMessages(ctx context.Context, chatID, cursor string) (dto.MessagePageResponse, error) {
	path := "/chats/" + url.PathEscape(chatID) + "/messages"
	if cursor != "" {
		path += "?cursor=" + url.QueryEscape(cursor)
	}
	var out dto.MessagePageResponse
	err := a.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (a *API) SendMessage(ctx context.Context, chatID, content string) (dto.MessageResponse, error) {
	var out dto.MessageResponse
	err := a.do(ctx, http.MethodPost, "/chats/"+url.PathEscape(chatID)+"/messages", dto.SendMessageRequest{Content: content}, &out)
	return out, err
}

func (a *API) MarkRead(ctx context.Context, chatID string) (dto.MessagesReadPayload, error) {
	var out dto.MessagesReadPayload
	err := a.do(ctx, http.MethodPatch, "/chats/"+url.PathEscape(chatID)+"/read", nil, &out)
	return out, err
}

func (a *API) AddParticipant(ctx context.Context, chatID, userID string) (dto.ParticipantResponse, error) {
	var out dto.ParticipantResponse
	err := a.do(ctx, http.MethodPost, "/chats/"+url.PathEscape(chatID)+"/participants", dto.AddParticipantRequest{UserID: userID}, &out)
	return out, err
}

func (a *API) RemoveParticipant(ctx context.Context, chatID, userID string) error {
	return a.do(ctx, http.MethodDelete, "/chats/"+url.PathEscape(chatID)+"/participants/"+url.PathEscape(userID), nil, nil)
}

func (a *API) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &APIError{Kind: KindTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	var payload envelope
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return &APIError{Status: resp.StatusCode, Kind: kindForStatus(resp.StatusCode), Message: "unreadable response"}
	}

	if resp.StatusCode >= http.StatusBadRequest || !payload.Success {
		kind := payload.ErrorKind
		if kind == "" {
			kind = kindForStatus(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Kind: kind, Message: payload.Message}
	}

	if out == nil || len(payload.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload.Data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func kindForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return KindValidation
	case http.StatusUnauthorized:
		return KindAuth
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	default:
		return KindTransient
	}
}
