package session

import (
	"context"
	"fmt"
	"time"

	"github.com/bilifetch/bilifetch"
)

// BeginLogin requests a login challenge from the platform and moves the
// session to AwaitingScan. The returned challenge's ScannableContent is what
// the presentation layer renders as a QR code.
func (s *Session) BeginLogin(ctx context.Context) (*bilifetch.LoginChallenge, error) {
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()
	switch state {
	case bilifetch.StateAnonymous, bilifetch.StateExpired:
	default:
		return nil, fmt.Errorf("cannot start login from state %q", state)
	}

	challenge, err := s.platform.RequestChallenge(ctx)
	if err != nil {
		return nil, err
	}
	s.setState(bilifetch.StateAwaitingScan)
	return challenge, nil
}

// CompleteLogin polls the challenge status on the configured interval until
// confirmation, expiry, or cancellation. Expiry returns ErrLoginTimeout;
// cancellation returns the context error; both leave the session Anonymous.
// Cancellation is observed between poll ticks, never mid-request.
func (s *Session) CompleteLogin(ctx context.Context, challenge *bilifetch.LoginChallenge) error {
	deadline := time.NewTimer(s.config.LoginTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.setState(bilifetch.StateAnonymous)
			return ctx.Err()
		case <-deadline.C:
			s.setState(bilifetch.StateAnonymous)
			return bilifetch.ErrLoginTimeout
		case <-ticker.C:
		}

		status, err := s.platform.PollChallenge(ctx, challenge.ID)
		if err != nil {
			if ctx.Err() != nil {
				s.setState(bilifetch.StateAnonymous)
				return ctx.Err()
			}
			// A flaky status check isn't fatal; the deadline bounds the wait.
			s.log.Warnw("login status check failed", "error", err)
			continue
		}

		switch status.State {
		case bilifetch.ChallengePending:
		case bilifetch.ChallengeScanned:
			s.setState(bilifetch.StateAwaitingConfirm)
		case bilifetch.ChallengeExpired:
			s.setState(bilifetch.StateAnonymous)
			return bilifetch.ErrLoginTimeout
		case bilifetch.ChallengeConfirmed:
			return s.adopt(ctx, status.Credentials)
		}
	}
}

// ImportCookie authenticates directly from a browser-copied cookie string,
// bypassing the QR flow. Malformed input fails with ErrInvalidCookieFormat
// and leaves the current state untouched.
func (s *Session) ImportCookie(ctx context.Context, raw string) error {
	creds, err := bilifetch.ParseCookieString(raw)
	if err != nil {
		return err
	}
	return s.adopt(ctx, creds)
}

// adopt installs freshly obtained credentials: persist, look up the account
// tier, then transition to Authenticated.
func (s *Session) adopt(ctx context.Context, creds bilifetch.Credentials) error {
	if err := s.store.Save(creds); err != nil {
		s.setState(bilifetch.StateAnonymous)
		return fmt.Errorf("failed to persist credentials: %w", err)
	}

	tier := bilifetch.TierMember
	verified := false
	if info, err := s.platform.AccountInfo(ctx, creds); err != nil {
		s.log.Warnw("could not fetch account info", "error", err)
	} else {
		tier = info.Tier
		verified = true
	}

	s.mu.Lock()
	s.creds = creds
	s.state = bilifetch.StateAuthenticated
	s.tier = tier
	s.tierVerified = verified
	s.mu.Unlock()
	s.log.Infow("authenticated", "tier", tier)
	return nil
}
