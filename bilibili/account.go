package bilibili

import (
	"context"
	"fmt"

	"github.com/bilifetch/bilifetch"
)

func (c *Client) AccountInfo(ctx context.Context, creds bilifetch.Credentials) (*bilifetch.AccountInfo, error) {
	data, err := c.apiGet(ctx, c.config.APIBase+"/x/web-interface/nav", creds)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account info: %w", err)
	}
	if !data.Get("isLogin").Bool() {
		return nil, bilifetch.ErrAuthExpired
	}
	tier := bilifetch.TierMember
	if data.Get("vipStatus").Int() == 1 {
		tier = bilifetch.TierPremium
	}
	return &bilifetch.AccountInfo{
		UserID: data.Get("mid").String(),
		Name:   data.Get("uname").String(),
		Tier:   tier,
	}, nil
}
