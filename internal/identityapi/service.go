package identityapi

import (
	"context"
	"net/http"
	"net/url"
)

// ServiceLogin obtains a service (acquirer branch) token for an offer.
func (c *Client) ServiceLogin(ctx context.Context, offerID string) (*TokenResponse, error) {
	var out TokenResponse
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/v1/auth/acquirer/branch/offer/" + url.PathEscape(offerID) + "/token",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ServiceRefresh obtains a replacement service token.
func (c *Client) ServiceRefresh(ctx context.Context, token string) (*TokenResponse, error) {
	var out TokenResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/v1/auth/acquirer/branch/offer/token/refresh",
		token:  token,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ServiceLogout invalidates a service token for the given device.
func (c *Client) ServiceLogout(ctx context.Context, token, mobileUID string) error {
	return c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/v1/auth/acquirer/branch/offer/token/logout",
		token:   token,
		headers: map[string]string{"mobile_uid": mobileUID},
	}, nil)
}
