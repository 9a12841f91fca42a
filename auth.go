package bilifetch

// AuthState is the position of the authentication state machine. Transitions
// are owned exclusively by the session (see internal/session); everything
// else only reads it.
type AuthState int

const (
	StateAnonymous AuthState = iota
	StateAwaitingScan
	StateAwaitingConfirm
	StateAuthenticated
	StateExpired
)

func (s AuthState) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAwaitingScan:
		return "awaiting-scan"
	case StateAwaitingConfirm:
		return "awaiting-confirm"
	case StateAuthenticated:
		return "authenticated"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// EntitlementTier is the account's access level, derived from the auth state
// and account metadata. Tiers are ordered, so "requires at least" is a plain
// comparison against StreamOption.RequiredTier.
type EntitlementTier int

const (
	TierGuest EntitlementTier = iota
	TierMember
	TierPremium
)

func (t EntitlementTier) String() string {
	switch t {
	case TierGuest:
		return "guest"
	case TierMember:
		return "member"
	case TierPremium:
		return "premium"
	default:
		return "unknown"
	}
}

// LoginChallenge is a pending QR login: an opaque challenge ID for status
// polling plus the content the presentation layer renders as a scannable
// code.
type LoginChallenge struct {
	ID               string
	ScannableContent string
}

type ChallengeState int

const (
	ChallengePending ChallengeState = iota
	ChallengeScanned
	ChallengeConfirmed
	ChallengeExpired
)

// ChallengeStatus is one poll observation; Credentials is set only when the
// state is ChallengeConfirmed.
type ChallengeStatus struct {
	State       ChallengeState
	Credentials Credentials
}

// AccountInfo is the platform's view of an authenticated account.
type AccountInfo struct {
	UserID string
	Name   string
	Tier   EntitlementTier
}

// CredentialStore persists the session credentials between runs. Load
// returning ok=false means no record exists and the session starts anonymous.
type CredentialStore interface {
	Load() (creds Credentials, ok bool, err error)
	Save(Credentials) error
	Clear() error
}
