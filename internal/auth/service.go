package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-cafe/internal/shared"
)

// EventPublisher forwards audit events, typically to the job queue.
type EventPublisher interface {
	PublishAuthEvent(ctx context.Context, event Event) error
}

// LoginRecorder counts login outcomes.
type LoginRecorder interface {
	ObserveLogin(outcome string)
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Events  EventPublisher
	Metrics LoginRecorder
	Logger  *slog.Logger
}

// Service wraps authentication business rules.
type Service struct {
	repo        Repository
	tokens      *TokenIssuer
	revocations RevocationStore
	events      EventPublisher
	metrics     LoginRecorder
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenIssuer, revocations RevocationStore, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		tokens:      tokens,
		revocations: revocations,
		events:      cfg.Events,
		metrics:     cfg.Metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// Login validates identifier/secret credentials and issues a token.
func (s *Service) Login(ctx context.Context, identifier, secret string, meta RequestMeta) (*Session, error) {
	identifier = strings.TrimSpace(identifier)
	user, err := s.authenticate(ctx, identifier, secret)
	if err != nil {
		s.observeLogin("failure")
		s.publish(ctx, Event{Kind: EventLoginFailed, Username: identifier, RemoteAddr: meta.RemoteAddr})
		return nil, err
	}
	sess, err := s.issue(*user)
	if err != nil {
		s.observeLogin("error")
		return nil, err
	}
	s.observeLogin("success")
	s.publish(ctx, Event{Kind: EventLoginSucceeded, UserID: user.ID, Username: user.Username, RemoteAddr: meta.RemoteAddr})
	return sess, nil
}

func (s *Service) authenticate(ctx context.Context, identifier, secret string) (*User, error) {
	if identifier == "" || secret == "" {
		return nil, shared.ErrInvalidCredentials
	}
	user, err := s.repo.FindByIdentifier(ctx, identifier)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Error("find user", slog.Any("error", err))
			return nil, fmt.Errorf("auth: lookup: %w", err)
		}
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(secret)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Validate verifies token and reloads its owner so role changes apply.
func (s *Service) Validate(ctx context.Context, token string) (*User, *Claims, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, nil, err
	}
	if s.revocations != nil {
		revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, nil, err
		}
		if revoked {
			return nil, nil, fmt.Errorf("%w: revoked", shared.ErrTokenInvalid)
		}
	}
	id, err := claims.UserID()
	if err != nil {
		return nil, nil, shared.ErrTokenInvalid
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: unknown subject", shared.ErrTokenInvalid)
		}
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, fmt.Errorf("%w: account disabled", shared.ErrTokenInvalid)
	}
	return user, claims, nil
}

// Refresh exchanges a valid token for a new one and revokes the old one.
func (s *Service) Refresh(ctx context.Context, token string, meta RequestMeta) (*Session, error) {
	user, claims, err := s.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	sess, err := s.issue(*user)
	if err != nil {
		return nil, err
	}
	s.revoke(ctx, claims)
	s.publish(ctx, Event{Kind: EventRefreshed, UserID: user.ID, Username: user.Username, RemoteAddr: meta.RemoteAddr})
	return sess, nil
}

// Logout revokes token. Tokens that no longer parse are already unusable, so
// logout succeeds for them too.
func (s *Service) Logout(ctx context.Context, token string, meta RequestMeta) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil
	}
	s.revoke(ctx, claims)
	id, _ := claims.UserID()
	s.publish(ctx, Event{Kind: EventLoggedOut, UserID: id, Username: claims.Username, RemoteAddr: meta.RemoteAddr})
	return nil
}

func (s *Service) issue(user User) (*Session, error) {
	token, claims, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, User: user, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func (s *Service) revoke(ctx context.Context, claims *Claims) {
	if s.revocations == nil || claims == nil || claims.ExpiresAt == nil {
		return
	}
	if err := s.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		s.logger.Warn("revoke token", slog.Any("error", err))
	}
}

func (s *Service) publish(ctx context.Context, event Event) {
	if s.events == nil {
		return
	}
	event.At = s.now().UTC()
	if err := s.events.PublishAuthEvent(ctx, event); err != nil {
		s.logger.Warn("publish auth event", slog.String("kind", event.Kind), slog.Any("error", err))
	}
}

func (s *Service) observeLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveLogin(outcome)
	}
}
