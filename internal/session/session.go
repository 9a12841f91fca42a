// Package session owns the authentication state machine and orchestrates
// resolve → negotiate → download → mux for the caller-facing operations.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bilifetch/bilifetch"
	"github.com/bilifetch/bilifetch/download"
	"github.com/bilifetch/bilifetch/mux"
)

type Config struct {
	// PollInterval is the cadence of login challenge status checks.
	PollInterval time.Duration
	// LoginTimeout bounds the whole QR login wait.
	LoginTimeout time.Duration
	OutputDir    string
}

var DefaultConfig = Config{
	PollInterval: 2 * time.Second,
	LoginTimeout: 180 * time.Second,
	OutputDir:    ".",
}

// HistoryRecord is the engine's view of one finished part download.
type HistoryRecord struct {
	VideoID      string
	Part         int
	Title        string
	Quality      string
	AudioQuality string
	OutputPath   string
	Status       string
	Error        string
}

// HistoryFunc receives one record per finished part; writes are best effort.
type HistoryFunc func(HistoryRecord) error

// StreamMuxer combines a downloaded video/audio pair into one container.
// *mux.Muxer is the production implementation.
type StreamMuxer interface {
	Mux(ctx context.Context, videoPath, audioPath, outputPath string) error
}

type Session struct {
	config   Config
	platform bilifetch.Platform
	store    bilifetch.CredentialStore
	download *download.Downloader
	muxer    StreamMuxer
	history  HistoryFunc
	log      *zap.SugaredLogger

	// Auth state: transitions are serialized through mu (single writer),
	// concurrent authorized requests read a stable snapshot.
	mu           sync.RWMutex
	state        bilifetch.AuthState
	creds        bilifetch.Credentials
	tier         bilifetch.EntitlementTier
	tierVerified bool
}

func New(config Config, platform bilifetch.Platform, store bilifetch.CredentialStore, dlConfig download.Config, muxer StreamMuxer, history HistoryFunc) (*Session, error) {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig.PollInterval
	}
	if config.LoginTimeout <= 0 {
		config.LoginTimeout = DefaultConfig.LoginTimeout
	}
	if config.OutputDir == "" {
		config.OutputDir = DefaultConfig.OutputDir
	}
	if muxer == nil {
		muxer = mux.New("")
	}
	s := &Session{
		config:   config,
		platform: platform,
		store:    store,
		muxer:    muxer,
		history:  history,
		log:      zap.S().Named("session"),
		state:    bilifetch.StateAnonymous,
		tier:     bilifetch.TierGuest,
	}
	s.download = download.New(dlConfig, s)

	creds, ok, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if ok && !creds.IsZero() {
		s.creds = creds
		s.state = bilifetch.StateAuthenticated
		// Assume plain membership until the tier is verified against the
		// platform; premium-only picks force a verification first.
		s.tier = bilifetch.TierMember
	}
	return s, nil
}

// CheckStatus reports the current position of the auth state machine.
func (s *Session) CheckStatus() bilifetch.AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Tier reports the current entitlement tier without touching the network.
func (s *Session) Tier() bilifetch.EntitlementTier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tier
}

// Snapshot implements download.CredentialSource.
func (s *Session) Snapshot() (bilifetch.Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != bilifetch.StateAuthenticated {
		return bilifetch.Credentials{}, false
	}
	return s.creds, true
}

// MarkExpired implements download.CredentialSource: the platform rejected
// previously valid credentials. The tier drops to guest and never silently
// rises again without an explicit re-authentication.
func (s *Session) MarkExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != bilifetch.StateAuthenticated {
		return
	}
	s.state = bilifetch.StateExpired
	s.creds = bilifetch.Credentials{}
	s.tier = bilifetch.TierGuest
	s.tierVerified = false
	if err := s.store.Clear(); err != nil {
		s.log.Warnw("failed to clear credential store", "error", err)
	}
}

// Logout returns to Anonymous from any state and clears the persisted
// credentials.
func (s *Session) Logout() error {
	s.mu.Lock()
	s.state = bilifetch.StateAnonymous
	s.creds = bilifetch.Credentials{}
	s.tier = bilifetch.TierGuest
	s.tierVerified = false
	s.mu.Unlock()
	return s.store.Clear()
}

// Verify checks the held credentials against the platform, transitioning to
// Expired if they have been rejected. Returns (nil, nil) when the session is
// not authenticated at all.
func (s *Session) Verify(ctx context.Context) (*bilifetch.AccountInfo, error) {
	creds, ok := s.Snapshot()
	if !ok {
		return nil, nil
	}
	info, err := s.platform.AccountInfo(ctx, creds)
	if err != nil {
		if errors.Is(err, bilifetch.ErrAuthExpired) {
			s.MarkExpired()
		}
		return nil, err
	}
	s.mu.Lock()
	if s.state == bilifetch.StateAuthenticated {
		s.tier = info.Tier
		s.tierVerified = true
	}
	s.mu.Unlock()
	return info, nil
}

func (s *Session) setState(state bilifetch.AuthState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// currentTier returns the tier for one operation, verifying the account
// against the platform at most once per authenticated session. Verification
// failures other than rejection degrade to the last known tier.
func (s *Session) currentTier(ctx context.Context) bilifetch.EntitlementTier {
	s.mu.RLock()
	state, verified, creds, tier := s.state, s.tierVerified, s.creds, s.tier
	s.mu.RUnlock()
	if state != bilifetch.StateAuthenticated {
		return bilifetch.TierGuest
	}
	if verified {
		return tier
	}
	info, err := s.platform.AccountInfo(ctx, creds)
	if err != nil {
		if errors.Is(err, bilifetch.ErrAuthExpired) {
			s.MarkExpired()
			return bilifetch.TierGuest
		}
		s.log.Warnw("could not verify account tier", "error", err)
		return tier
	}
	s.mu.Lock()
	if s.state == bilifetch.StateAuthenticated {
		s.tier = info.Tier
		s.tierVerified = true
		tier = info.Tier
	}
	s.mu.Unlock()
	return tier
}
