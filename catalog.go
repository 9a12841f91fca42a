package bilifetch

import (
	"context"
	"fmt"
)

type FormatKind int

const (
	FormatVideo FormatKind = iota
	FormatAudio
)

func (k FormatKind) String() string {
	switch k {
	case FormatVideo:
		return "video"
	case FormatAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// StreamOption is one concrete, independently downloadable rendition of a
// part. Multiple options compete during negotiation.
type StreamOption struct {
	QualityLabel string
	QualityID    int
	Codec        string
	Bitrate      int
	RequiredTier EntitlementTier
	URL          string
	BackupURLs   []string
	Kind         FormatKind
	Dolby        bool
	HiRes        bool
}

// PartDescriptor lists the competing stream options for one part (one "P")
// of a video, in the platform's own preference order.
type PartDescriptor struct {
	Index int   // 1-based page number
	CID   int64 // platform stream scope ID for this part
	Title string
	Video []StreamOption
	Audio []StreamOption
}

// VideoDescriptor is the resolved catalog entry for one video identifier.
// Immutable after fetch.
type VideoDescriptor struct {
	ID       VideoID
	Title    string
	Owner    string
	Duration int // seconds
	Parts    []PartDescriptor
}

// VideoID is the canonical identifier of a video: a BV code or an AV number,
// exactly one of which is set.
type VideoID struct {
	BV string
	AV int64
}

func (id VideoID) String() string {
	if id.BV != "" {
		return id.BV
	}
	return fmt.Sprintf("av%d", id.AV)
}

// Platform abstracts the video platform's web API: the login challenge flow,
// account metadata, and catalog resolution. The bilibili package provides the
// real implementation; tests provide fakes.
type Platform interface {
	// RequestChallenge asks the platform for a new login challenge.
	RequestChallenge(ctx context.Context) (*LoginChallenge, error)
	// PollChallenge checks the state of a pending login challenge once.
	PollChallenge(ctx context.Context, challengeID string) (*ChallengeStatus, error)
	// AccountInfo fetches the account metadata behind the credentials,
	// returning ErrAuthExpired when the platform rejects them.
	AccountInfo(ctx context.Context, creds Credentials) (*AccountInfo, error)
	// ResolveVideo fetches metadata and per-part stream options. Anonymous
	// requests (zero credentials) receive the platform-restricted subset.
	ResolveVideo(ctx context.Context, id VideoID, creds Credentials) (*VideoDescriptor, error)
}
