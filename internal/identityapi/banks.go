package identityapi

import (
	"context"
	"net/http"
	"net/url"
)

const banksCacheKey = "banks"

// Banks returns the bank list, served from memory for ten minutes after a
// successful fetch.
func (c *Client) Banks(ctx context.Context) ([]Bank, error) {
	if cached, ok := c.banks.Get(banksCacheKey); ok {
		return cached.([]Bank), nil
	}

	var out BankListResponse
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/v1/auth/banks",
	}, &out)
	if err != nil {
		return nil, err
	}

	c.banks.SetDefault(banksCacheKey, out.Banks)
	return out.Banks, nil
}

// BankAuthURL returns the redirect url for a specific bank.
func (c *Client) BankAuthURL(ctx context.Context, token, bankID, processID string) (*AuthURLResponse, error) {
	var out AuthURLResponse
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/v3/auth/bankid/auth-url",
		query: url.Values{
			"bankId":    {bankID},
			"processId": {processID},
		},
		token: token,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ForgetBanks drops the cached bank list.
func (c *Client) ForgetBanks() {
	c.banks.Delete(banksCacheKey)
}
