package session

import (
	"context"
	"sync"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	require_ "github.com/stretchr/testify/require"

	"github.com/bilifetch/bilifetch"
	"github.com/bilifetch/bilifetch/download"
)

type fakePlatform struct {
	mu         sync.Mutex
	challenge  *bilifetch.LoginChallenge
	pollStates []bilifetch.ChallengeStatus
	polls      int
	account    *bilifetch.AccountInfo
	accountErr error
	descriptor *bilifetch.VideoDescriptor
	resolveErr error
	resolves   int
}

func (p *fakePlatform) RequestChallenge(ctx context.Context) (*bilifetch.LoginChallenge, error) {
	if p.challenge == nil {
		return &bilifetch.LoginChallenge{ID: "challenge", ScannableContent: "https://example/scan"}, nil
	}
	return p.challenge, nil
}

// PollChallenge replays pollStates in order, repeating the last entry.
func (p *fakePlatform) PollChallenge(ctx context.Context, challengeID string) (*bilifetch.ChallengeStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.polls
	if i >= len(p.pollStates) {
		i = len(p.pollStates) - 1
	}
	p.polls++
	status := p.pollStates[i]
	return &status, nil
}

func (p *fakePlatform) AccountInfo(ctx context.Context, creds bilifetch.Credentials) (*bilifetch.AccountInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accountErr != nil {
		return nil, p.accountErr
	}
	if p.account == nil {
		return &bilifetch.AccountInfo{UserID: "42", Name: "tester", Tier: bilifetch.TierMember}, nil
	}
	return p.account, nil
}

func (p *fakePlatform) ResolveVideo(ctx context.Context, id bilifetch.VideoID, creds bilifetch.Credentials) (*bilifetch.VideoDescriptor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolves++
	if p.resolveErr != nil {
		return nil, p.resolveErr
	}
	return p.descriptor, nil
}

type memStore struct {
	mu    sync.Mutex
	creds bilifetch.Credentials
	ok    bool
}

func (m *memStore) Load() (bilifetch.Credentials, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds, m.ok, nil
}

func (m *memStore) Save(creds bilifetch.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds, m.ok = creds, true
	return nil
}

func (m *memStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds, m.ok = bilifetch.Credentials{}, false
	return nil
}

func testSession(t *testing.T, platform *fakePlatform, store *memStore) *Session {
	t.Helper()
	if store == nil {
		store = &memStore{}
	}
	s, err := New(Config{
		PollInterval: 5 * time.Millisecond,
		LoginTimeout: time.Second,
		OutputDir:    t.TempDir(),
	}, platform, store, download.Config{BackoffBase: time.Millisecond}, nil, nil)
	require_.NoError(t, err)
	return s
}

func confirmed(creds bilifetch.Credentials) bilifetch.ChallengeStatus {
	return bilifetch.ChallengeStatus{State: bilifetch.ChallengeConfirmed, Credentials: creds}
}

func TestLoginFlow(t *testing.T) {
	assert := assert_.New(t)
	creds := bilifetch.Credentials{SessionToken: "tok", CryptoToken: "csrf", UserID: "42"}
	platform := &fakePlatform{
		pollStates: []bilifetch.ChallengeStatus{
			{State: bilifetch.ChallengePending},
			{State: bilifetch.ChallengeScanned},
			confirmed(creds),
		},
		account: &bilifetch.AccountInfo{UserID: "42", Name: "tester", Tier: bilifetch.TierPremium},
	}
	store := &memStore{}
	s := testSession(t, platform, store)
	assert.Equal(bilifetch.StateAnonymous, s.CheckStatus())

	challenge, err := s.BeginLogin(context.Background())
	require_.NoError(t, err)
	assert.Equal("https://example/scan", challenge.ScannableContent)
	assert.Equal(bilifetch.StateAwaitingScan, s.CheckStatus())

	require_.NoError(t, s.CompleteLogin(context.Background(), challenge))
	assert.Equal(bilifetch.StateAuthenticated, s.CheckStatus())
	assert.Equal(bilifetch.TierPremium, s.Tier())

	saved, ok, err := store.Load()
	assert.NoError(err)
	assert.True(ok)
	assert.Equal(creds, saved)
}

func TestLoginTimeout(t *testing.T) {
	assert := assert_.New(t)
	platform := &fakePlatform{
		pollStates: []bilifetch.ChallengeStatus{{State: bilifetch.ChallengePending}},
	}
	store := &memStore{}
	s, err := New(Config{
		PollInterval: time.Millisecond,
		LoginTimeout: 20 * time.Millisecond,
	}, platform, store, download.Config{}, nil, nil)
	require_.NoError(t, err)

	challenge, err := s.BeginLogin(context.Background())
	require_.NoError(t, err)
	err = s.CompleteLogin(context.Background(), challenge)
	assert.ErrorIs(err, bilifetch.ErrLoginTimeout)
	assert.Equal(bilifetch.StateAnonymous, s.CheckStatus())
}

func TestLoginChallengeExpires(t *testing.T) {
	assert := assert_.New(t)
	platform := &fakePlatform{
		pollStates: []bilifetch.ChallengeStatus{
			{State: bilifetch.ChallengeScanned},
			{State: bilifetch.ChallengeExpired},
		},
	}
	s := testSession(t, platform, nil)

	challenge, err := s.BeginLogin(context.Background())
	require_.NoError(t, err)
	err = s.CompleteLogin(context.Background(), challenge)
	assert.ErrorIs(err, bilifetch.ErrLoginTimeout)
	assert.Equal(bilifetch.StateAnonymous, s.CheckStatus())
}

func TestLoginCancellation(t *testing.T) {
	assert := assert_.New(t)
	platform := &fakePlatform{
		pollStates: []bilifetch.ChallengeStatus{{State: bilifetch.ChallengePending}},
	}
	s := testSession(t, platform, nil)

	challenge, err := s.BeginLogin(context.Background())
	require_.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(15 * time.Millisecond)
		cancel()
	}()
	err = s.CompleteLogin(ctx, challenge)
	assert.ErrorIs(err, context.Canceled)
	assert.Equal(bilifetch.StateAnonymous, s.CheckStatus())
}

func TestBeginLoginRejectedWhenAuthenticated(t *testing.T) {
	assert := assert_.New(t)
	store := &memStore{creds: bilifetch.Credentials{SessionToken: "tok", CryptoToken: "csrf"}, ok: true}
	s := testSession(t, &fakePlatform{}, store)
	assert.Equal(bilifetch.StateAuthenticated, s.CheckStatus())

	_, err := s.BeginLogin(context.Background())
	assert.Error(err)
}

func TestImportCookie(t *testing.T) {
	assert := assert_.New(t)
	store := &memStore{}
	s := testSession(t, &fakePlatform{}, store)

	err := s.ImportCookie(context.Background(), "SESSDATA=tok; bili_jct=csrf; DedeUserID=42")
	assert.NoError(err)
	assert.Equal(bilifetch.StateAuthenticated, s.CheckStatus())
	_, ok, _ := store.Load()
	assert.True(ok)
}

func TestImportCookieRejectsMalformedInput(t *testing.T) {
	assert := assert_.New(t)
	store := &memStore{}
	s := testSession(t, &fakePlatform{}, store)

	err := s.ImportCookie(context.Background(), "definitely not cookies")
	assert.ErrorIs(err, bilifetch.ErrInvalidCookieFormat)
	assert.Equal(bilifetch.StateAnonymous, s.CheckStatus())
	_, ok, _ := store.Load()
	assert.False(ok)
}

func TestLogout(t *testing.T) {
	assert := assert_.New(t)
	store := &memStore{creds: bilifetch.Credentials{SessionToken: "tok", CryptoToken: "csrf"}, ok: true}
	s := testSession(t, &fakePlatform{}, store)

	assert.NoError(s.Logout())
	assert.Equal(bilifetch.StateAnonymous, s.CheckStatus())
	assert.Equal(bilifetch.TierGuest, s.Tier())
	_, ok, _ := store.Load()
	assert.False(ok)
}

func TestVerifyExpiredCredentials(t *testing.T) {
	assert := assert_.New(t)
	platform := &fakePlatform{accountErr: bilifetch.ErrAuthExpired}
	store := &memStore{creds: bilifetch.Credentials{SessionToken: "tok", CryptoToken: "csrf"}, ok: true}
	s := testSession(t, platform, store)

	_, err := s.Verify(context.Background())
	assert.ErrorIs(err, bilifetch.ErrAuthExpired)
	assert.Equal(bilifetch.StateExpired, s.CheckStatus())
	_, ok, _ := store.Load()
	assert.False(ok)

	// Recovery is an explicit re-login.
	_, err = s.BeginLogin(context.Background())
	assert.NoError(err)
}

func TestVerifyAnonymous(t *testing.T) {
	assert := assert_.New(t)
	s := testSession(t, &fakePlatform{}, nil)
	info, err := s.Verify(context.Background())
	assert.NoError(err)
	assert.Nil(info)
}
