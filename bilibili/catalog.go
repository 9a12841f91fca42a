package bilibili

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/bilifetch/bilifetch"
)

// playurl request parameters: qn=127 asks for everything, fnval=4048 selects
// DASH with HDR/Dolby/8K/Hi-Res flags set, fourk=1 unlocks 4K delivery.
const playURLParams = "qn=127&fnval=4048&fnver=0&fourk=1"

func (c *Client) ResolveVideo(ctx context.Context, id bilifetch.VideoID, creds bilifetch.Credentials) (*bilifetch.VideoDescriptor, error) {
	view, err := c.cachedAPIGet(ctx, c.viewURL(id), creds)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", id, err)
	}

	descriptor := &bilifetch.VideoDescriptor{
		ID:       bilifetch.VideoID{BV: view.Get("bvid").String(), AV: view.Get("aid").Int()},
		Title:    view.Get("title").String(),
		Owner:    view.Get("owner.name").String(),
		Duration: int(view.Get("duration").Int()),
	}
	if descriptor.ID.BV != "" {
		descriptor.ID.AV = 0
	}

	pages := view.Get("pages").Array()
	if len(pages) == 0 {
		return nil, fmt.Errorf("%s: %w", id, bilifetch.ErrNotFound)
	}
	for i, page := range pages {
		part := bilifetch.PartDescriptor{
			Index: int(page.Get("page").Int()),
			CID:   page.Get("cid").Int(),
			Title: page.Get("part").String(),
		}
		if part.Index == 0 {
			part.Index = i + 1
		}
		dash, err := c.playURL(ctx, id, part.CID, creds)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch streams for %s P%d: %w", id, part.Index, err)
		}
		part.Video, part.Audio = streamOptions(dash)
		descriptor.Parts = append(descriptor.Parts, part)
	}
	return descriptor, nil
}

func (c *Client) viewURL(id bilifetch.VideoID) string {
	if id.BV != "" {
		return fmt.Sprintf("%s/x/web-interface/view?bvid=%s", c.config.APIBase, url.QueryEscape(id.BV))
	}
	return fmt.Sprintf("%s/x/web-interface/view?aid=%d", c.config.APIBase, id.AV)
}

// playURL fetches the DASH stream listing for one part.
func (c *Client) playURL(ctx context.Context, id bilifetch.VideoID, cid int64, creds bilifetch.Credentials) (gjson.Result, error) {
	var playurl string
	if id.BV != "" {
		playurl = fmt.Sprintf("%s/x/player/playurl?bvid=%s&cid=%d&%s",
			c.config.APIBase, url.QueryEscape(id.BV), cid, playURLParams)
	} else {
		playurl = fmt.Sprintf("%s/x/player/playurl?avid=%d&cid=%d&%s",
			c.config.APIBase, id.AV, cid, playURLParams)
	}
	data, err := c.cachedAPIGet(ctx, playurl, creds)
	if err != nil {
		return gjson.Result{}, err
	}
	return data.Get("dash"), nil
}

// streamOptions flattens a DASH listing into competing options. Hi-Res
// lossless and Dolby Atmos tracks live outside the plain audio array.
func streamOptions(dash gjson.Result) (video, audio []bilifetch.StreamOption) {
	for _, v := range dash.Get("video").Array() {
		qid := int(v.Get("id").Int())
		video = append(video, bilifetch.StreamOption{
			QualityLabel: videoLabel(qid),
			QualityID:    qid,
			Codec:        v.Get("codecs").String(),
			Bitrate:      int(v.Get("bandwidth").Int()),
			RequiredTier: videoTier(qid),
			URL:          v.Get("baseUrl").String(),
			BackupURLs:   stringValues(v.Get("backupUrl")),
			Kind:         bilifetch.FormatVideo,
		})
	}
	for _, a := range dash.Get("audio").Array() {
		audio = append(audio, audioOption(a, false, false))
	}
	if flac := dash.Get("flac.audio"); flac.Exists() && flac.Get("id").Int() != 0 {
		audio = append(audio, audioOption(flac, false, true))
	}
	for _, d := range dash.Get("dolby.audio").Array() {
		audio = append(audio, audioOption(d, true, false))
	}
	return video, audio
}

func audioOption(a gjson.Result, dolby, hires bool) bilifetch.StreamOption {
	qid := int(a.Get("id").Int())
	return bilifetch.StreamOption{
		QualityLabel: audioLabel(qid),
		QualityID:    qid,
		Codec:        a.Get("codecs").String(),
		Bitrate:      int(a.Get("bandwidth").Int()),
		RequiredTier: audioTier(qid),
		URL:          a.Get("baseUrl").String(),
		BackupURLs:   stringValues(a.Get("backupUrl")),
		Kind:         bilifetch.FormatAudio,
		Dolby:        dolby,
		HiRes:        hires,
	}
}

func stringValues(result gjson.Result) []string {
	array := result.Array()
	if len(array) == 0 {
		return nil
	}
	values := make([]string, 0, len(array))
	for _, item := range array {
		if s := item.String(); s != "" {
			values = append(values, s)
		}
	}
	return values
}

var videoLabels = map[int]string{
	127: "8k",
	126: "dolby_vision",
	125: "hdr",
	120: "4k",
	116: "1080p60",
	112: "1080p+",
	80:  "1080p",
	74:  "720p60",
	64:  "720p",
	32:  "480p",
	16:  "360p",
	6:   "240p",
}

var audioLabels = map[int]string{
	30251: "hires",
	30250: "dolby_atmos",
	30280: "192k",
	30232: "132k",
	30216: "64k",
}

func videoLabel(qid int) string {
	if label, ok := videoLabels[qid]; ok {
		return label
	}
	return fmt.Sprintf("qn%d", qid)
}

func audioLabel(qid int) string {
	if label, ok := audioLabels[qid]; ok {
		return label
	}
	return fmt.Sprintf("qn%d", qid)
}

// Tier gates observed from the web player: anonymous playback stops at 480p,
// a logged-in account unlocks 1080p, everything above needs a premium
// membership. Hi-Res and Dolby tracks are premium-only.
func videoTier(qid int) bilifetch.EntitlementTier {
	switch {
	case qid <= 32:
		return bilifetch.TierGuest
	case qid <= 80:
		return bilifetch.TierMember
	default:
		return bilifetch.TierPremium
	}
}

func audioTier(qid int) bilifetch.EntitlementTier {
	switch qid {
	case 30216, 30232:
		return bilifetch.TierGuest
	case 30280:
		return bilifetch.TierMember
	default:
		return bilifetch.TierPremium
	}
}
