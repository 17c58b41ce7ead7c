package identityapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/aussiebroadwan/authsession/internal/domain"
)

// AuthURL returns the external url for method (v2 endpoint).
func (c *Client) AuthURL(ctx context.Context, token string, method domain.AuthMethod) (*AuthURLResponse, error) {
	var out AuthURLResponse
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/v2/auth/" + method.PathSegment() + "/auth-url",
		token:  token,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AuthURLv3 returns the external url for method within a process. The
// response may carry a template instead of a url.
func (c *Client) AuthURLv3(
	ctx context.Context,
	token string,
	method domain.AuthMethod,
	processID string,
	trueDepthCamera bool,
) (*AuthURLResponse, error) {
	var out AuthURLResponse
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/v3/auth/" + method.PathSegment() + "/auth-url",
		query: url.Values{
			"processId":              {processID},
			"builtInTrueDepthCamera": {strconv.FormatBool(trueDepthCamera)},
		},
		token: token,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetToken exchanges a completed process for a user token.
func (c *Client) GetToken(ctx context.Context, processID string) (*TokenResponse, error) {
	var out TokenResponse
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/v3/auth/token",
		query:  url.Values{"processId": {processID}},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshToken obtains a replacement user token.
func (c *Client) RefreshToken(ctx context.Context, token string) (*RefreshResponse, error) {
	var out RefreshResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/v2/auth/token/refresh",
		token:  token,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// TemporaryToken issues a short-lived anonymous token.
func (c *Client) TemporaryToken(ctx context.Context) (*TokenResponse, error) {
	var out TokenResponse
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/v1/auth/temporary/token",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Prolong extends the session identified by token using a completed process.
func (c *Client) Prolong(ctx context.Context, token, processID string) (*RefreshResponse, error) {
	var out RefreshResponse
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/v1/auth/prolong/",
		query:  url.Values{"processId": {processID}},
		token:  token,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout invalidates token server-side for the given device.
func (c *Client) Logout(ctx context.Context, token, mobileUID string) error {
	return c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/v2/auth/token/logout",
		token:   token,
		headers: map[string]string{"mobile_uid": mobileUID},
	}, nil)
}

// AuthMethods lists the methods available to token.
func (c *Client) AuthMethods(ctx context.Context, token string) (*AuthMethodsResponse, error) {
	var out AuthMethodsResponse
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/v1/auth/methods",
		token:  token,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyParams are the inputs of a verify call.
type VerifyParams struct {
	Target    domain.AuthMethod
	RequestID string
	ProcessID string

	// BankID is sent for bankId verifications.
	BankID string

	// Extra query parameters supplied by the performer (e.g. "otp").
	Extra map[string]string
}

// Verify completes a method's out-of-band step. The backend always answers
// with a template whose resolution is the outcome of the attempt.
func (c *Client) Verify(ctx context.Context, token string, p VerifyParams) (*TemplateResponse, error) {
	query := url.Values{"processId": {p.ProcessID}}
	for k, v := range p.Extra {
		query.Set(k, v)
	}
	if p.BankID != "" {
		query.Set("bankId", p.BankID)
	}

	var out TemplateResponse
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/v1/auth/" + p.Target.PathSegment() + "/" + url.PathEscape(p.RequestID) + "/verify",
		query:  query,
		token:  token,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// VerificationMethods requests the methods for flow. Authorization flows are
// requested anonymously; every other flow carries the bearer.
func (c *Client) VerificationMethods(
	ctx context.Context,
	token string,
	flow domain.VerificationFlow,
	processID string,
) (*VerificationMethodsResponse, error) {
	if flow.IsAuthorizationFlow {
		token = ""
	}

	var out VerificationMethodsResponse
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/v3/auth/" + url.PathEscape(flow.FlowCode) + "/methods",
		query:  url.Values{"processId": {processID}},
		token:  token,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
