package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/observability"
	"github.com/noah-isme/gema-chat/internal/repository"
)

const (
	searchMinLength  = 2
	searchMaxResults = 10
)

// UserService exposes the caller's identity and user search.
type UserService interface {
	Me(ctx context.Context, userID string) (dto.UserResponse, error)
	Search(ctx context.Context, requesterID string, query dto.UserSearchQuery) ([]dto.UserResponse, error)
}

type userService struct {
	users       repository.UserRepository
	cache       *redis.Client
	cachePrefix string
	cacheTTL    time.Duration
	validator   *validator.Validate
	logger      zerolog.Logger
}

// NewUserService constructs the user service. A nil cache disables search caching.
func NewUserService(users repository.UserRepository, cache *redis.Client, channelBase string, cacheTTL time.Duration, validate *validator.Validate, logger zerolog.Logger) UserService {
	prefix := ""
	if cache != nil && cacheTTL > 0 {
		base := channelBase
		if base == "" {
			base = "gema"
		}
		prefix = base + ":users:search"
	}

	return &userService{
		users:       users,
		cache:       cache,
		cachePrefix: prefix,
		cacheTTL:    cacheTTL,
		validator:   validate,
		logger:      logger.With().Str("component", "user_service").Logger(),
	}
}

func (s *userService) Me(ctx context.Context, userID string) (dto.UserResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return dto.UserResponse{}, classify(err, "user not found")
	}
	return dto.NewUserResponse(user), nil
}

// Search returns up to ten users, other than the requester, whose username or
// email contains the term. Terms shorter than two characters return nothing.
func (s *userService) Search(ctx context.Context, requesterID string, query dto.UserSearchQuery) ([]dto.UserResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, classify(err, "")
	}

	term := strings.ToLower(strings.TrimSpace(query.Q))
	if utf8.RuneCountInString(term) < searchMinLength {
		return []dto.UserResponse{}, nil
	}

	key := s.cacheKey(requesterID, term)
	if cached, ok := s.fromCache(ctx, key); ok {
		return cached, nil
	}

	users, err := s.users.Search(ctx, requesterID, term, searchMaxResults)
	if err != nil {
		return nil, classify(err, "")
	}

	results := dto.NewUserResponseSlice(users)
	s.store(ctx, key, results)
	return results, nil
}

func (s *userService) cacheKey(requesterID, term string) string {
	if s.cachePrefix == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s:%s", s.cachePrefix, requesterID, term)
}

func (s *userService) fromCache(ctx context.Context, key string) ([]dto.UserResponse, bool) {
	if key == "" {
		return nil, false
	}

	raw, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("user search cache read failed")
		}
		observability.UserSearchCache().WithLabelValues("miss").Inc()
		return nil, false
	}

	var results []dto.UserResponse
	if err := json.Unmarshal(raw, &results); err != nil {
		s.logger.Warn().Err(err).Msg("discarding corrupt user search cache entry")
		observability.UserSearchCache().WithLabelValues("miss").Inc()
		return nil, false
	}
	observability.UserSearchCache().WithLabelValues("hit").Inc()
	return results, true
}

func (s *userService) store(ctx context.Context, key string, results []dto.UserResponse) {
	if key == "" {
		return
	}

	payload, err := json.Marshal(results)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal user search results")
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("user search cache write failed")
	}
}
