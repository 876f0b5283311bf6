// Package session owns the console's authentication state: it rehydrates
// persisted credentials, validates and refreshes them against the backend,
// polls for expiry and tears everything down on logout.
//
// Every mutation bumps or checks an epoch counter. Network results carrying
// an epoch older than the current one are dropped, so a validation or refresh
// that resolves after a logout or a new login never changes the session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-cafe/internal/apiclient"
	"github.com/odyssey-erp/odyssey-cafe/internal/credstore"
	"github.com/odyssey-erp/odyssey-cafe/internal/shared"
)

// AuthAPI is the subset of the backend the controller calls.
type AuthAPI interface {
	Login(ctx context.Context, identifier, secret string) (apiclient.LoginResponse, error)
	Validate(ctx context.Context, token string) (apiclient.ValidateResponse, error)
	Refresh(ctx context.Context, token string) (apiclient.RefreshResponse, error)
	Logout(ctx context.Context, token string) error
}

// Navigator moves the operator to the login screen.
type Navigator interface {
	RedirectToLogin()
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func()

// RedirectToLogin implements Navigator.
func (f NavigatorFunc) RedirectToLogin() { f() }

// MetricsRecorder receives lifecycle counters.
type MetricsRecorder interface {
	ObserveTransition(from, to string)
	ObserveExpiryWarning()
	ObserveRefresh(outcome string)
}

// Config wires a Controller.
type Config struct {
	Store     credstore.Store
	API       AuthAPI
	Notifier  shared.Notifier
	Navigator Navigator
	Logger    *slog.Logger
	Metrics   MetricsRecorder
	// Now defaults to time.Now.
	Now func() time.Time

	PollInterval    time.Duration
	ExpiryThreshold time.Duration
	RequestTimeout  time.Duration
	AutoRefresh     bool
}

// Controller is the single source of truth for the console session. It is
// safe for concurrent use.
type Controller struct {
	store     credstore.Store
	api       AuthAPI
	notifier  shared.Notifier
	navigator Navigator
	logger    *slog.Logger
	metrics   MetricsRecorder
	now       func() time.Time

	pollInterval    time.Duration
	expiryThreshold time.Duration
	requestTimeout  time.Duration
	autoRefresh     bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	group  singleflight.Group

	readyOnce sync.Once
	ready     chan struct{}

	mu          sync.Mutex
	state       State
	token       string
	user        *shared.Principal
	expiresAt   time.Time
	loading     bool
	optimistic  bool
	warned      bool
	epoch       uint64
	started     bool
	closed      bool
	pollStop    chan struct{}
	listeners   []listener
	nextID      int
	effects     []func()
	dispatching bool
}

type listener struct {
	id int
	fn func(Snapshot)
}

// New validates cfg and returns a Controller in StateUnknown.
func New(cfg Config) (*Controller, error) {
	if cfg.Store == nil {
		return nil, errors.New("session: credential store required")
	}
	if cfg.API == nil {
		return nil, errors.New("session: api required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Minute
	}
	threshold := cfg.ExpiryThreshold
	if threshold <= 0 {
		threshold = 5 * time.Minute
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		store:           cfg.Store,
		api:             cfg.API,
		notifier:        cfg.Notifier,
		navigator:       cfg.Navigator,
		logger:          logger.With(slog.String("component", "session")),
		metrics:         cfg.Metrics,
		now:             now,
		pollInterval:    poll,
		expiryThreshold: threshold,
		requestTimeout:  timeout,
		autoRefresh:     cfg.AutoRefresh,
		ctx:             ctx,
		cancel:          cancel,
		ready:           make(chan struct{}),
		state:           StateUnknown,
		loading:         true,
	}, nil
}

// Start rehydrates persisted credentials. With a complete, unexpired record
// the session becomes Authenticated optimistically and is validated in the
// background; otherwise it becomes Anonymous without any network call.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("session: controller closed")
	}
	if c.started {
		c.mu.Unlock()
		return errors.New("session: already started")
	}
	c.started = true
	c.mu.Unlock()

	creds, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Warn("load persisted credentials", slog.Any("error", err))
	}

	c.mu.Lock()
	defer c.flush()
	defer c.mu.Unlock()
	if c.closed || c.state != StateUnknown {
		return nil
	}

	expiresAt := tokenExpiry(creds.Token)
	expired := !expiresAt.IsZero() && !c.now().Before(expiresAt)
	if err != nil || !creds.Complete() || expired {
		if err != nil || creds.Token != "" || creds.User != nil {
			c.clearStoreLocked()
		}
		c.resolveLoadingLocked()
		c.setStateLocked(StateAnonymous)
		return nil
	}

	user := *creds.User
	c.token = creds.Token
	c.user = &user
	c.expiresAt = expiresAt
	c.optimistic = true
	c.setStateLocked(StateAuthenticated)
	c.evaluateExpiryLocked()
	c.startPollerLocked()

	c.wg.Add(1)
	go c.bootstrap()
	return nil
}

func (c *Controller) bootstrap() {
	defer c.wg.Done()
	ok := c.ValidateSession(c.ctx)

	c.mu.Lock()
	if c.loading && !c.closed {
		c.resolveLoadingLocked()
		c.publishLocked()
	}
	refresh := ok && c.autoRefresh && c.state == StateExpiring
	c.mu.Unlock()
	c.flush()

	if refresh {
		c.RefreshToken(c.ctx)
	}
}

// Ready is closed once the initial bootstrap has resolved.
func (c *Controller) Ready() <-chan struct{} {
	return c.ready
}

// Snapshot returns the current session view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Token returns the bearer token while authenticated and "" otherwise.
func (c *Controller) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.authenticatedLocked() {
		return ""
	}
	return c.token
}

// Subscribe registers fn for every published snapshot. Snapshots are
// delivered in transition order and never while the controller lock is held.
func (c *Controller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listener{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, l := range c.listeners {
				if l.id == id {
					c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Login authenticates with the backend. Failures never mutate persisted
// credentials and always come back as a LoginResult.
func (c *Controller) Login(ctx context.Context, identifier, secret string) LoginResult {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || secret == "" {
		return c.loginFailed(shared.ErrInvalidCredentials, "Please enter your username and password.")
	}

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return c.loginFailed(errors.New("session: controller closed"), "The console is shutting down.")
	case c.state == StateInvalidating:
		c.mu.Unlock()
		return c.loginFailed(errors.New("session: sign-out in progress"), "Signing out, please try again.")
	}
	c.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	resp, err := c.api.Login(reqCtx, identifier, secret)
	if err != nil {
		return c.loginFailed(err, loginFailureMessage(err))
	}
	user := resp.User
	if user == nil || user.IsZero() {
		profile, err := c.api.Validate(reqCtx, resp.Token)
		switch {
		case err != nil:
			return c.loginFailed(err, "Signed in, but your profile could not be loaded.")
		case !profile.Valid || profile.User == nil || profile.User.IsZero():
			return c.loginFailed(shared.ErrTokenInvalid, "Signed in, but your profile could not be loaded.")
		}
		user = profile.User
	}
	principal := *user

	expiresAt := tokenExpiry(resp.Token)
	if expiresAt.IsZero() && resp.ExpiresAt != nil {
		expiresAt = *resp.ExpiresAt
	}

	message := strings.TrimSpace(resp.Message)
	if message == "" {
		message = "Welcome, " + principal.DisplayName() + "."
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return c.loginFailed(errors.New("session: controller closed"), "The console is shutting down.")
	}
	c.epoch++
	c.stopPollerLocked()
	c.token = resp.Token
	c.user = &principal
	c.expiresAt = expiresAt
	c.warned = false
	c.saveStoreLocked()
	c.resolveLoadingLocked()
	c.setStateLocked(StateAuthenticated)
	c.evaluateExpiryLocked()
	c.startPollerLocked()
	c.notifyLocked(shared.NoticeSuccess, message)
	c.mu.Unlock()
	c.flush()

	return LoginResult{Success: true, Message: message, User: principal}
}

func (c *Controller) loginFailed(err error, message string) LoginResult {
	c.logger.Info("login failed", slog.Any("error", err))
	c.mu.Lock()
	c.notifyLocked(shared.NoticeError, message)
	c.mu.Unlock()
	c.flush()
	return LoginResult{Message: message, Err: err}
}

func loginFailureMessage(err error) string {
	var herr *apiclient.HTTPError
	switch {
	case errors.Is(err, shared.ErrInvalidCredentials):
		if errors.As(err, &herr) && herr.Message != "" && herr.Message != "Unauthorized" {
			return herr.Message
		}
		return "Invalid username or password."
	case errors.Is(err, shared.ErrTransport):
		return "Unable to reach the server. Check your connection and try again."
	case errors.As(err, &herr) && herr.Message != "":
		return "Login failed: " + herr.Message
	default:
		return "Login failed. Please try again."
	}
}

// Logout signs out locally and tells the backend on a best-effort basis.
// It is a no-op when nobody is signed in.
func (c *Controller) Logout(ctx context.Context) {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()
	c.invalidate(ctx, epoch, nil)
}

// ValidateSession re-checks the token with the backend. A rejected token or a
// transport failure signs the session out. The result reports whether the
// session is still signed in, so a cancelled ctx or a result discarded for a
// superseded session does not read as a logout. Concurrent calls share one
// request.
func (c *Controller) ValidateSession(ctx context.Context) bool {
	c.mu.Lock()
	if c.closed || !c.authenticatedLocked() {
		c.mu.Unlock()
		return false
	}
	epoch, token := c.epoch, c.token
	c.mu.Unlock()

	return c.coalesce(ctx, "validate:"+strconv.FormatUint(epoch, 10), func() bool {
		return c.validate(epoch, token)
	})
}

func (c *Controller) validate(epoch uint64, token string) bool {
	ctx, cancel := context.WithTimeout(c.ctx, c.requestTimeout)
	defer cancel()
	resp, err := c.api.Validate(ctx, token)
	if err == nil && !resp.Valid {
		err = fmt.Errorf("session: validate: %w", shared.ErrTokenInvalid)
	}

	c.mu.Lock()
	if c.epoch != epoch || c.closed {
		current := !c.closed && c.authenticatedLocked()
		c.mu.Unlock()
		c.logger.Debug("discard stale validation", slog.Uint64("epoch", epoch))
		return current
	}
	if err != nil {
		c.mu.Unlock()
		c.invalidate(c.ctx, epoch, err)
		return false
	}
	if resp.User != nil && !resp.User.IsZero() {
		u := *resp.User
		c.user = &u
		c.saveStoreLocked()
	}
	c.resolveLoadingLocked()
	c.evaluateExpiryLocked()
	c.publishLocked()
	c.mu.Unlock()
	c.flush()
	return true
}

// RefreshToken exchanges the current token for a new one. A failed exchange
// signs the session out. Like ValidateSession, false means signed out.
// Concurrent calls share one request.
func (c *Controller) RefreshToken(ctx context.Context) bool {
	c.mu.Lock()
	if c.closed || !c.authenticatedLocked() {
		c.mu.Unlock()
		return false
	}
	epoch, token := c.epoch, c.token
	c.mu.Unlock()

	return c.coalesce(ctx, "refresh:"+strconv.FormatUint(epoch, 10), func() bool {
		return c.refresh(epoch, token)
	})
}

func (c *Controller) refresh(epoch uint64, token string) bool {
	ctx, cancel := context.WithTimeout(c.ctx, c.requestTimeout)
	defer cancel()
	resp, err := c.api.Refresh(ctx, token)

	c.mu.Lock()
	if c.epoch != epoch || c.closed {
		current := !c.closed && c.authenticatedLocked()
		c.mu.Unlock()
		c.observeRefresh("stale")
		c.logger.Debug("discard stale refresh", slog.Uint64("epoch", epoch))
		return current
	}
	if err != nil {
		c.mu.Unlock()
		c.observeRefresh("failed")
		c.invalidate(c.ctx, epoch, err)
		return false
	}
	c.epoch++
	c.token = resp.Token
	if resp.User != nil && !resp.User.IsZero() {
		u := *resp.User
		c.user = &u
	}
	c.expiresAt = tokenExpiry(resp.Token)
	if c.expiresAt.IsZero() && resp.ExpiresAt != nil {
		c.expiresAt = *resp.ExpiresAt
	}
	c.warned = false
	c.saveStoreLocked()
	c.resolveLoadingLocked()
	c.setStateLocked(StateAuthenticated)
	c.evaluateExpiryLocked()
	c.mu.Unlock()
	c.flush()
	c.observeRefresh("ok")
	return true
}

func (c *Controller) coalesce(ctx context.Context, key string, fn func() bool) bool {
	ch := c.group.DoChan(key, func() (any, error) {
		return fn(), nil
	})
	select {
	case res := <-ch:
		ok, _ := res.Val.(bool)
		return ok
	case <-ctx.Done():
		c.mu.Lock()
		defer c.mu.Unlock()
		return !c.closed && c.authenticatedLocked()
	}
}

// invalidate tears the session down if epoch is still current. cause is nil
// for an operator logout.
func (c *Controller) invalidate(ctx context.Context, epoch uint64, cause error) {
	c.mu.Lock()
	if c.epoch != epoch || c.closed || !c.authenticatedLocked() {
		c.mu.Unlock()
		return
	}
	token := c.token
	c.epoch++
	current := c.epoch
	c.stopPollerLocked()
	c.clearStoreLocked()
	c.token = ""
	c.user = nil
	c.expiresAt = time.Time{}
	c.warned = false
	c.resolveLoadingLocked()
	c.setStateLocked(StateInvalidating)
	c.mu.Unlock()
	c.flush()

	if cause == nil {
		logoutCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
		if err := c.api.Logout(logoutCtx, token); err != nil {
			c.logger.Warn("backend logout failed", slog.Any("error", err))
		}
		cancel()
	} else {
		c.logger.Info("session invalidated", slog.Any("error", cause))
	}

	c.mu.Lock()
	if c.epoch != current || c.closed || c.state != StateInvalidating {
		c.mu.Unlock()
		c.flush()
		return
	}
	c.setStateLocked(StateAnonymous)
	kind, message := logoutNotice(cause)
	c.notifyLocked(kind, message)
	if c.navigator != nil {
		nav := c.navigator
		c.effects = append(c.effects, nav.RedirectToLogin)
	}
	c.mu.Unlock()
	c.flush()
}

func logoutNotice(cause error) (string, string) {
	switch {
	case cause == nil:
		return shared.NoticeInfo, "You have been signed out."
	case errors.Is(cause, shared.ErrTokenExpired):
		return shared.NoticeWarning, "Your session has expired. Please sign in again."
	case errors.Is(cause, shared.ErrTransport):
		return shared.NoticeWarning, "The server could not confirm your session. Please sign in again."
	default:
		return shared.NoticeWarning, "Your session is no longer valid. Please sign in again."
	}
}

// Close stops background work and waits for it. The persisted credentials
// are left in place for the next start.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.epoch++
	c.stopPollerLocked()
	c.readyOnce.Do(func() { close(c.ready) })
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

func (c *Controller) authenticatedLocked() bool {
	return (c.state == StateAuthenticated || c.state == StateExpiring) && c.token != "" && c.user != nil
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:           c.state,
		Token:           c.token,
		IsAuthenticated: c.authenticatedLocked(),
		IsLoading:       c.loading || c.state == StateUnknown,
		IsTokenExpiring: c.state == StateExpiring,
		Optimistic:      c.optimistic,
		ExpiresAt:       c.expiresAt,
	}
	if c.user != nil {
		u := *c.user
		snap.User = &u
	}
	return snap
}

func (c *Controller) setStateLocked(next State) {
	prev := c.state
	c.state = next
	if prev != next {
		if c.metrics != nil {
			c.metrics.ObserveTransition(prev.String(), next.String())
		}
		c.logger.Debug("session transition", slog.String("from", prev.String()), slog.String("to", next.String()))
	}
	c.publishLocked()
}

func (c *Controller) resolveLoadingLocked() {
	c.loading = false
	c.optimistic = false
	c.readyOnce.Do(func() { close(c.ready) })
}

func (c *Controller) publishLocked() {
	if len(c.listeners) == 0 {
		return
	}
	snap := c.snapshotLocked()
	targets := make([]func(Snapshot), len(c.listeners))
	for i, l := range c.listeners {
		targets[i] = l.fn
	}
	c.effects = append(c.effects, func() {
		for _, fn := range targets {
			fn(snap)
		}
	})
}

func (c *Controller) notifyLocked(kind, message string) {
	if c.notifier == nil {
		return
	}
	n := c.notifier
	note := shared.Notification{Kind: kind, Message: message}
	c.effects = append(c.effects, func() { n.Notify(note) })
}

// flush runs queued effects in order outside the lock. A nested or
// concurrent call leaves the work to the goroutine already dispatching.
func (c *Controller) flush() {
	c.mu.Lock()
	if c.dispatching {
		c.mu.Unlock()
		return
	}
	c.dispatching = true
	for len(c.effects) > 0 {
		batch := c.effects
		c.effects = nil
		c.mu.Unlock()
		for _, fn := range batch {
			fn()
		}
		c.mu.Lock()
	}
	c.dispatching = false
	c.mu.Unlock()
}

func (c *Controller) storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.requestTimeout)
}

func (c *Controller) saveStoreLocked() {
	ctx, cancel := c.storeContext()
	defer cancel()
	var user *shared.Principal
	if c.user != nil {
		u := *c.user
		user = &u
	}
	if err := c.store.Save(ctx, credstore.Credentials{Token: c.token, User: user}); err != nil {
		c.logger.Error("persist credentials", slog.Any("error", err))
	}
}

func (c *Controller) clearStoreLocked() {
	ctx, cancel := c.storeContext()
	defer cancel()
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Error("clear credentials", slog.Any("error", err))
	}
}

func (c *Controller) observeRefresh(outcome string) {
	if c.metrics != nil {
		c.metrics.ObserveRefresh(outcome)
	}
}
