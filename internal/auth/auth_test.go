package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-cafe/internal/shared"
)

type stubRepo struct {
	users []User
}

func (s *stubRepo) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	for i := range s.users {
		u := s.users[i]
		if strings.EqualFold(u.Username, identifier) || strings.EqualFold(u.Email, identifier) {
			return &u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*User, error) {
	for i := range s.users {
		if s.users[i].ID == id {
			u := s.users[i]
			return &u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) CreateUser(ctx context.Context, u NewUser) (*User, error) {
	user := User{ID: int64(len(s.users) + 1), Username: u.Username, Email: u.Email, PasswordHash: u.PasswordHash, Role: u.Role, IsActive: true}
	s.users = append(s.users, user)
	return &user, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) PublishAuthEvent(ctx context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

func hash(t *testing.T, secret string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

type fixture struct {
	service *Service
	repo    *stubRepo
	events  *recordingPublisher
	tokens  *TokenIssuer
	redis   *miniredis.Miniredis
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tokens, err := NewTokenIssuer("test-secret", "odyssey-cafe-test", time.Hour)
	require.NoError(t, err)
	repo := &stubRepo{users: []User{
		{ID: 1, Username: "claire", Email: "claire@cafe.test", PasswordHash: hash(t, "croissant"), Role: "directeur", FirstName: "Claire", IsActive: true},
		{ID: 2, Username: "malik", Email: "malik@cafe.test", PasswordHash: hash(t, "espresso"), Role: "employee", IsActive: true},
		{ID: 3, Username: "gone", Email: "gone@cafe.test", PasswordHash: hash(t, "latte"), Role: "employee", IsActive: false},
	}}
	events := &recordingPublisher{}
	svc := NewService(repo, tokens, NewRedisRevocationStore(client, ""), ServiceConfig{Events: events})
	return fixture{service: svc, repo: repo, events: events, tokens: tokens, redis: mr}
}

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer("s3cret", "", time.Minute)
	require.NoError(t, err)
	token, claims, err := issuer.Issue(User{ID: 42, Username: "ana", Role: "employee"})
	require.NoError(t, err)
	require.NotEmpty(t, claims.ID)

	parsed, err := issuer.Parse(token)
	require.NoError(t, err)
	id, err := parsed.UserID()
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
	require.Equal(t, "employee", parsed.Role)
}

func TestTokenIssuerRejectsExpiredAndForeignTokens(t *testing.T) {
	issuer, err := NewTokenIssuer("s3cret", "cafe", time.Minute)
	require.NoError(t, err)
	start := time.Now()
	issuer.now = func() time.Time { return start }
	token, _, err := issuer.Issue(User{ID: 1})
	require.NoError(t, err)

	issuer.now = func() time.Time { return start.Add(2 * time.Minute) }
	_, err = issuer.Parse(token)
	require.ErrorIs(t, err, shared.ErrTokenExpired)

	other, err := NewTokenIssuer("another", "cafe", time.Minute)
	require.NoError(t, err)
	foreign, _, err := other.Issue(User{ID: 1})
	require.NoError(t, err)
	issuer.now = time.Now
	_, err = issuer.Parse(foreign)
	require.ErrorIs(t, err, shared.ErrTokenInvalid)

	_, err = issuer.Parse("not-a-jwt")
	require.ErrorIs(t, err, shared.ErrTokenInvalid)
}

func TestServiceLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.service.Login(ctx, "CLAIRE@cafe.test", "croissant", RequestMeta{RemoteAddr: "10.0.0.1"})
	require.NoError(t, err)
	require.NotEmpty(t, sess.Token)
	require.Equal(t, int64(1), sess.User.ID)

	_, err = f.service.Login(ctx, "claire", "wrong", RequestMeta{})
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	_, err = f.service.Login(ctx, "nobody", "croissant", RequestMeta{})
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	_, err = f.service.Login(ctx, "gone", "latte", RequestMeta{})
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	require.Equal(t, []string{EventLoginSucceeded, EventLoginFailed, EventLoginFailed, EventLoginFailed}, f.events.kinds())
}

func TestServiceRefreshRevokesOldToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.service.Login(ctx, "malik", "espresso", RequestMeta{})
	require.NoError(t, err)

	rotated, err := f.service.Refresh(ctx, sess.Token, RequestMeta{})
	require.NoError(t, err)
	require.NotEqual(t, sess.Token, rotated.Token)

	_, _, err = f.service.Validate(ctx, sess.Token)
	require.ErrorIs(t, err, shared.ErrTokenInvalid)
	user, _, err := f.service.Validate(ctx, rotated.Token)
	require.NoError(t, err)
	require.Equal(t, "malik", user.Username)
}

func TestServiceLogoutIsBestEffort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.service.Login(ctx, "malik", "espresso", RequestMeta{})
	require.NoError(t, err)
	require.NoError(t, f.service.Logout(ctx, sess.Token, RequestMeta{}))
	require.NoError(t, f.service.Logout(ctx, sess.Token, RequestMeta{}))
	require.NoError(t, f.service.Logout(ctx, "garbage", RequestMeta{}))

	_, _, err = f.service.Validate(ctx, sess.Token)
	require.ErrorIs(t, err, shared.ErrTokenInvalid)
}

func TestServiceValidateSeesDeactivation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.service.Login(ctx, "malik", "espresso", RequestMeta{})
	require.NoError(t, err)
	f.repo.users[1].IsActive = false

	_, _, err = f.service.Validate(ctx, sess.Token)
	require.ErrorIs(t, err, shared.ErrTokenInvalid)
}

func TestRedisRevocationStoreExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewRedisRevocationStore(client, "test:revoked:")
	ctx := context.Background()

	require.NoError(t, store.Revoke(ctx, "jti-1", time.Now().Add(time.Minute)))
	require.NoError(t, store.Revoke(ctx, "jti-past", time.Now().Add(-time.Minute)))

	revoked, err := store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, revoked)
	revoked, err = store.IsRevoked(ctx, "jti-past")
	require.NoError(t, err)
	require.False(t, revoked)

	mr.FastForward(2 * time.Minute)
	revoked, err = store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, revoked)
}
