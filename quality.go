package bilifetch

import "strings"

// NegotiatedPair is the outcome of quality negotiation: exactly one video and
// one audio option, both within the caller's entitlement tier by
// construction.
type NegotiatedPair struct {
	Video StreamOption
	Audio StreamOption
}

// Video quality precedence, highest first: nominal resolution, then
// frame-rate, then dynamic-range extras. Index in the slice is the rank.
var videoQualityRank = []int{
	127, // 8k
	126, // dolby_vision
	125, // hdr
	120, // 4k
	112, // 1080p+
	116, // 1080p60
	80,  // 1080p
	74,  // 720p60
	64,  // 720p
	32,  // 480p
	16,  // 360p
	6,   // 240p
}

// Codec tie-break within equal quality: HEVC > AV1 > AVC.
var codecRank = []string{"hev", "av01", "avc"}

// Audio quality precedence: Hi-Res lossless > Dolby Atmos > 192K > 132K > 64K.
var audioQualityRank = []int{30251, 30250, 30280, 30232, 30216}

const unranked = 1 << 16

// Negotiate selects one video and one audio stream option for a part,
// restricted to what the tier is entitled to. A requested quality label
// filters the video options to an exact (case-insensitive) match; there is no
// silent substitution. Pure and deterministic: identical inputs always yield
// an identical pair.
func Negotiate(part PartDescriptor, tier EntitlementTier, requested string) (NegotiatedPair, error) {
	if len(part.Video) == 0 || len(part.Audio) == 0 {
		return NegotiatedPair{}, ErrEmptyCatalog
	}

	video := filterByTier(part.Video, tier)
	audio := filterByTier(part.Audio, tier)

	if requested != "" {
		video = filterByLabel(video, requested)
		if len(video) == 0 {
			return NegotiatedPair{}, ErrQualityUnavailable
		}
	}
	if len(video) == 0 {
		return NegotiatedPair{}, &NoEligibleStreamError{Kind: FormatVideo}
	}
	if len(audio) == 0 {
		return NegotiatedPair{}, &NoEligibleStreamError{Kind: FormatAudio}
	}

	return NegotiatedPair{Video: bestVideo(video), Audio: bestAudio(audio)}, nil
}

func filterByTier(options []StreamOption, tier EntitlementTier) []StreamOption {
	eligible := make([]StreamOption, 0, len(options))
	for _, opt := range options {
		if opt.RequiredTier <= tier {
			eligible = append(eligible, opt)
		}
	}
	return eligible
}

func filterByLabel(options []StreamOption, label string) []StreamOption {
	matched := make([]StreamOption, 0, len(options))
	for _, opt := range options {
		if strings.EqualFold(opt.QualityLabel, label) {
			matched = append(matched, opt)
		}
	}
	return matched
}

// bestVideo picks the option with the best (quality rank, codec rank) pair;
// remaining ties keep the platform's delivery order.
func bestVideo(options []StreamOption) StreamOption {
	best := options[0]
	bestQ, bestC := videoRank(best), videoCodecRank(best)
	for _, opt := range options[1:] {
		q, c := videoRank(opt), videoCodecRank(opt)
		if q < bestQ || (q == bestQ && c < bestC) {
			best, bestQ, bestC = opt, q, c
		}
	}
	return best
}

func bestAudio(options []StreamOption) StreamOption {
	best := options[0]
	bestRank := audioRank(best)
	for _, opt := range options[1:] {
		if r := audioRank(opt); r < bestRank {
			best, bestRank = opt, r
		}
	}
	return best
}

func videoRank(opt StreamOption) int {
	for i, q := range videoQualityRank {
		if opt.QualityID == q {
			return i
		}
	}
	return unranked
}

func videoCodecRank(opt StreamOption) int {
	codec := strings.ToLower(opt.Codec)
	for i, prefix := range codecRank {
		if strings.Contains(codec, prefix) {
			return i
		}
	}
	return unranked
}

func audioRank(opt StreamOption) int {
	if opt.HiRes {
		return 0
	}
	if opt.Dolby {
		return 1
	}
	for i, q := range audioQualityRank {
		if opt.QualityID == q {
			return i
		}
	}
	return unranked
}
