package bilifetch

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// BV codes are 10 base58 characters after the "BV" prefix.
var (
	bvPattern = regexp.MustCompile(`^BV[1-9A-HJ-NP-Za-km-z]{10}$`)
	bvInPath  = regexp.MustCompile(`(BV[1-9A-HJ-NP-Za-km-z]{10})`)
	avPattern = regexp.MustCompile(`^[aA][vV]([0-9]+)$`)
	avInPath  = regexp.MustCompile(`[aA][vV]([0-9]+)`)
)

// ParseIdentifier normalizes a raw identifier (a bare BV/av code, or a video
// page URL) into a canonical VideoID. The returned page is the ?p= part
// selector from a URL, or 0 when the identifier carries none. Anything that
// matches neither pattern fails with ErrInvalidIdentifier.
func ParseIdentifier(raw string) (VideoID, int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return VideoID{}, 0, ErrInvalidIdentifier
	}
	if bvPattern.MatchString(raw) {
		return VideoID{BV: raw}, 0, nil
	}
	if m := avPattern.FindStringSubmatch(raw); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || n <= 0 {
			return VideoID{}, 0, ErrInvalidIdentifier
		}
		return VideoID{AV: n}, 0, nil
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return VideoID{}, 0, ErrInvalidIdentifier
	}
	switch strings.TrimPrefix(parsed.Hostname(), "www.") {
	case "bilibili.com", "m.bilibili.com", "b23.tv":
	default:
		return VideoID{}, 0, ErrInvalidIdentifier
	}

	page := 0
	if p := parsed.Query().Get("p"); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			page = n
		}
	}
	if m := bvInPath.FindStringSubmatch(parsed.Path); m != nil {
		return VideoID{BV: m[1]}, page, nil
	}
	if m := avInPath.FindStringSubmatch(parsed.Path); m != nil {
		if n, err := strconv.ParseInt(m[1], 10, 64); err == nil && n > 0 {
			return VideoID{AV: n}, page, nil
		}
	}
	return VideoID{}, 0, ErrInvalidIdentifier
}
