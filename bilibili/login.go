package bilibili

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/bilifetch/bilifetch"
)

// Challenge poll return codes, from data.code of the poll endpoint.
const (
	pollConfirmed  = 0
	pollExpired    = 86038
	pollScanned    = 86090
	pollNotScanned = 86101
)

func (c *Client) RequestChallenge(ctx context.Context) (*bilifetch.LoginChallenge, error) {
	data, err := c.apiGet(ctx, c.config.PassportBase+"/x/passport-login/web/qrcode/generate", bilifetch.Credentials{})
	if err != nil {
		return nil, fmt.Errorf("failed to request login challenge: %w", err)
	}
	challenge := &bilifetch.LoginChallenge{
		ID:               data.Get("qrcode_key").String(),
		ScannableContent: data.Get("url").String(),
	}
	if challenge.ID == "" || challenge.ScannableContent == "" {
		return nil, fmt.Errorf("login challenge response missing qrcode_key or url")
	}
	return challenge, nil
}

// PollChallenge checks a pending challenge once. On confirmation the
// credentials arrive as cookies on the poll response itself.
func (c *Client) PollChallenge(ctx context.Context, challengeID string) (*bilifetch.ChallengeStatus, error) {
	pollURL := fmt.Sprintf("%s/x/passport-login/web/qrcode/poll?qrcode_key=%s",
		c.config.PassportBase, url.QueryEscape(challengeID))
	resp, err := c.do(ctx, pollURL, bilifetch.Credentials{})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bilifetch.ErrTransientFetch, err)
	}
	root := gjson.ParseBytes(body)
	if code := root.Get("code").Int(); code != 0 {
		return nil, mapAPIError(code, root.Get("message").String())
	}

	switch code := root.Get("data.code").Int(); code {
	case pollNotScanned:
		return &bilifetch.ChallengeStatus{State: bilifetch.ChallengePending}, nil
	case pollScanned:
		return &bilifetch.ChallengeStatus{State: bilifetch.ChallengeScanned}, nil
	case pollExpired:
		return &bilifetch.ChallengeStatus{State: bilifetch.ChallengeExpired}, nil
	case pollConfirmed:
		creds := credentialsFromCookies(resp.Cookies())
		if creds.IsZero() {
			return nil, fmt.Errorf("confirmed login did not include credential cookies")
		}
		return &bilifetch.ChallengeStatus{State: bilifetch.ChallengeConfirmed, Credentials: creds}, nil
	default:
		return nil, &bilifetch.APIError{Code: code, Message: root.Get("data.message").String()}
	}
}

func credentialsFromCookies(cookies []*http.Cookie) bilifetch.Credentials {
	var creds bilifetch.Credentials
	for _, cookie := range cookies {
		switch cookie.Name {
		case "SESSDATA":
			creds.SessionToken = cookie.Value
			if !cookie.Expires.IsZero() {
				creds.Expiry = cookie.Expires
			}
		case "bili_jct":
			creds.CryptoToken = cookie.Value
		case "DedeUserID":
			creds.UserID = cookie.Value
		}
	}
	return creds
}
