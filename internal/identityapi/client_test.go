package identityapi_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/aussiebroadwan/authsession/internal/domain"
	"github.com/aussiebroadwan/authsession/internal/identityapi"
	"github.com/aussiebroadwan/authsession/internal/idptest"
	"github.com/aussiebroadwan/authsession/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*identityapi.Client, *idptest.Server) {
	t.Helper()
	srv := idptest.New(t)
	c := identityapi.New(srv.URL+"/",
		identityapi.WithHeaders(map[string]string{"app-version": "1.0.0"}),
		identityapi.WithLogger(slogx.Discard()),
	)
	return c, srv
}

func TestLoginFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newClient(t)

	flow := domain.VerificationFlow{FlowCode: "authorization", IsAuthorizationFlow: true, Purpose: domain.PurposeLogin}
	methods, err := c.VerificationMethods(ctx, "", flow, "")
	require.NoError(t, err)
	require.NotEmpty(t, methods.ProcessID)
	require.Equal(t, []domain.AuthMethod{domain.MethodBankID}, methods.Methods())
	require.False(t, methods.SkipAuthMethods)

	_, err = c.Verify(ctx, "not-a-token", identityapi.VerifyParams{
		Target:    domain.MethodBankID,
		RequestID: "req-1",
		ProcessID: methods.ProcessID,
	})
	require.True(t, identityapi.IsUnauthorized(err), "an invalid bearer is rejected")

	verify, err := c.Verify(ctx, "", identityapi.VerifyParams{
		Target:    domain.MethodBankID,
		RequestID: "req-1",
		ProcessID: methods.ProcessID,
		BankID:    "pb",
	})
	require.NoError(t, err)
	require.Equal(t, domain.ActionGetToken, verify.Template.MainAction())

	tok, err := c.GetToken(ctx, methods.ProcessID)
	require.NoError(t, err)
	require.NotEmpty(t, tok.Token)

	_, err = c.GetToken(ctx, methods.ProcessID)
	require.Equal(t, http.StatusForbidden, identityapi.StatusCode(err))
}

func TestTemporaryToken(t *testing.T) {
	t.Parallel()
	c, _ := newClient(t)

	temp, err := c.TemporaryToken(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, temp.Token)
}

func TestRefreshAndLogout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, srv := newClient(t)

	token := srv.IssueToken(domain.UserToken, "device-1")

	resp, err := c.RefreshToken(ctx, token)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Token)
	require.Nil(t, resp.Template)

	require.NoError(t, c.Logout(ctx, resp.Token, "device-1"))
	require.True(t, srv.Revoked(resp.Token))
	require.Equal(t, []string{"device-1"}, srv.LogoutDevices())

	_, err = c.RefreshToken(ctx, resp.Token)
	require.True(t, identityapi.IsUnauthorized(err))
}

func TestRefreshCarriesTemplate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, srv := newClient(t)

	srv.SetRefreshTemplate(&domain.Template{
		Type: "middleCenterAlignAlert",
		Data: domain.TemplateData{MainButton: &domain.Button{Action: domain.ActionOK}},
	})

	resp, err := c.RefreshToken(ctx, srv.IssueToken(domain.UserToken, "d"))
	require.NoError(t, err)
	require.NotNil(t, resp.Template)
	require.Equal(t, domain.ActionOK, resp.Template.MainAction())
}

func TestInjectedFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, srv := newClient(t)

	srv.FailNext(idptest.RouteAuthMethods, http.StatusServiceUnavailable)

	token := srv.IssueToken(domain.UserToken, "d")
	_, err := c.AuthMethods(ctx, token)
	var apiErr *identityapi.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	require.Equal(t, "injected", apiErr.Code)

	resp, err := c.AuthMethods(ctx, token)
	require.NoError(t, err)
	require.Equal(t, []domain.AuthMethod{domain.MethodBankID}, resp.Methods())
}

func TestAuthURLs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, srv := newClient(t)
	token := srv.IssueToken(domain.UserToken, "d")

	v2, err := c.AuthURL(ctx, token, domain.MethodPhotoID)
	require.NoError(t, err)
	require.Contains(t, v2.AuthURL, "/redirect/photoid")

	v3, err := c.AuthURLv3(ctx, token, domain.MethodMonobank, "proc-1", true)
	require.NoError(t, err)
	require.Contains(t, v3.AuthURL, "/redirect/monobank?processId=proc-1")

	bank, err := c.BankAuthURL(ctx, token, "pb", "proc-2")
	require.NoError(t, err)
	require.Contains(t, bank.AuthURL, "processId=proc-2")
	require.Equal(t, 1, srv.Calls(idptest.RouteBankAuthURL))
}

func TestBanksAreCached(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, srv := newClient(t)

	banks, err := c.Banks(ctx)
	require.NoError(t, err)
	require.Len(t, banks, 2)

	_, err = c.Banks(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, srv.Calls(idptest.RouteBanks))

	c.ForgetBanks()
	_, err = c.Banks(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, srv.Calls(idptest.RouteBanks))
}

func TestServiceEntrance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, srv := newClient(t)

	login, err := c.ServiceLogin(ctx, "offer-1")
	require.NoError(t, err)

	refreshed, err := c.ServiceRefresh(ctx, login.Token)
	require.NoError(t, err)
	require.NotEmpty(t, refreshed.Token)

	require.NoError(t, c.ServiceLogout(ctx, refreshed.Token, "device-1"))
	require.True(t, srv.Revoked(refreshed.Token))
	require.Equal(t, 1, srv.Calls(idptest.RouteServiceLogout))
}

func TestSMSOTPVerify(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, srv := newClient(t)

	processID := srv.NewProcess()
	token := srv.IssueToken(domain.UserToken, "d")

	_, err := c.Verify(ctx, token, identityapi.VerifyParams{
		Target:    domain.MethodSMSOTP,
		RequestID: "sms",
		ProcessID: processID,
		Extra:     map[string]string{"otp": "000000x"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, identityapi.StatusCode(err))

	_, err = c.Verify(ctx, token, identityapi.VerifyParams{
		Target:    domain.MethodSMSOTP,
		RequestID: "sms",
		ProcessID: processID,
		Extra:     map[string]string{"otp": srv.OTPCode(time.Now())},
	})
	require.NoError(t, err)
	require.True(t, srv.ProcessVerified(processID))
}

func TestRateLimitHonoursContext(t *testing.T) {
	t.Parallel()
	srv := idptest.New(t)
	c := identityapi.New(srv.URL, identityapi.WithRateLimit(0.001, 1))

	_, err := c.TemporaryToken(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.TemporaryToken(ctx)
	require.Error(t, err)
	require.Equal(t, 1, srv.Calls(idptest.RouteTemporaryToken))
}
