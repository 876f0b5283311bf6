package session

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/odyssey-erp/odyssey-cafe/internal/shared"
)

// tokenExpiry reads the exp claim without verifying the signature; the
// backend stays authoritative. Opaque tokens or tokens without exp yield
// the zero time.
func tokenExpiry(token string) time.Time {
	if token == "" {
		return time.Time{}
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, &jwt.RegisteredClaims{})
	if err != nil {
		return time.Time{}
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time.UTC()
}

// CheckExpiry samples the remaining token lifetime. It is called by the
// poller on every tick and may be called directly.
func (c *Controller) CheckExpiry() {
	c.mu.Lock()
	if c.closed || !c.authenticatedLocked() || c.expiresAt.IsZero() {
		c.mu.Unlock()
		return
	}
	if !c.now().Before(c.expiresAt) {
		epoch := c.epoch
		c.mu.Unlock()
		c.invalidate(c.ctx, epoch, fmt.Errorf("session: %w", shared.ErrTokenExpired))
		return
	}
	entered := c.evaluateExpiryLocked()
	refresh := entered && c.autoRefresh
	c.mu.Unlock()
	c.flush()

	if refresh {
		c.RefreshToken(c.ctx)
	}
}

// evaluateExpiryLocked moves between Authenticated and Expiring and reports
// whether the warning window was entered just now.
func (c *Controller) evaluateExpiryLocked() bool {
	if !c.authenticatedLocked() || c.expiresAt.IsZero() {
		return false
	}
	remaining := c.expiresAt.Sub(c.now())
	if remaining >= c.expiryThreshold {
		if c.state == StateExpiring {
			c.warned = false
			c.setStateLocked(StateAuthenticated)
		}
		return false
	}
	if c.state == StateExpiring && c.warned {
		return false
	}
	if c.state != StateExpiring {
		c.setStateLocked(StateExpiring)
	}
	c.warned = true
	if c.metrics != nil {
		c.metrics.ObserveExpiryWarning()
	}
	c.notifyLocked(shared.NoticeWarning, expiryWarning(remaining))
	return true
}

func expiryWarning(remaining time.Duration) string {
	minutes := int(math.Ceil(remaining.Minutes()))
	if minutes <= 1 {
		return "Your session expires in less than a minute. Save your work."
	}
	return fmt.Sprintf("Your session expires in %d minutes.", minutes)
}

func (c *Controller) startPollerLocked() {
	if c.closed || c.pollStop != nil {
		return
	}
	stop := make(chan struct{})
	c.pollStop = stop
	c.wg.Add(1)
	go c.poll(stop)
}

func (c *Controller) stopPollerLocked() {
	if c.pollStop == nil {
		return
	}
	close(c.pollStop)
	c.pollStop = nil
}

func (c *Controller) polling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pollStop != nil
}

func (c *Controller) poll(stop <-chan struct{}) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	c.logger.Debug("expiry poller started", slog.Duration("interval", c.pollInterval))
	for {
		select {
		case <-stop:
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.CheckExpiry()
		}
	}
}
