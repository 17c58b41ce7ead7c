package verification_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/aussiebroadwan/authsession/internal/domain"
	"github.com/aussiebroadwan/authsession/internal/idptest"
	"github.com/aussiebroadwan/authsession/internal/verification"
	"github.com/stretchr/testify/require"
)

func TestRedirectPerformerOpensAuthURL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name   string
		method domain.AuthMethod
		bankID string
		route  string
		prefix string
	}{
		{name: "photo id", method: domain.MethodPhotoID, route: idptest.RouteAuthURLv3, prefix: "/redirect/photoid"},
		{name: "bank id", method: domain.MethodBankID, route: idptest.RouteBankAuthURL, prefix: "/redirect/bankid"},
		{name: "specific bank", method: domain.MethodBankID, bankID: "pb", route: idptest.RouteBankAuthURL, prefix: "/redirect/bankid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			processID := f.idp.NewProcess()

			var opened string
			p := &verification.RedirectPerformer{
				API:    f.api,
				Tokens: f.session,
				BankID: tt.bankID,
				Opener: verification.OpenerFunc(func(_ context.Context, url string, _ func()) error {
					opened = url
					return nil
				}),
			}

			err := p.Perform(ctx, verification.PerformInput{
				Flow:      loginFlow,
				Method:    tt.method,
				ProcessID: processID,
				OnClose:   func() {},
				Complete:  func(domain.Action) {},
			})
			require.NoError(t, err)
			require.Equal(t, 1, f.idp.Calls(tt.route))
			require.True(t, strings.HasPrefix(opened, f.idp.URL+tt.prefix), opened)
			require.Contains(t, opened, processID)
		})
	}
}

func TestRedirectPerformerFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.idp.FailNext(idptest.RouteAuthURLv3, http.StatusBadGateway)

	p := &verification.RedirectPerformer{
		API:    f.api,
		Tokens: f.session,
		Opener: verification.OpenerFunc(func(context.Context, string, func()) error {
			t.Fatal("opener must not run without a url")
			return nil
		}),
	}

	err := p.Perform(context.Background(), verification.PerformInput{
		Flow:     loginFlow,
		Method:   domain.MethodNFC,
		Complete: func(domain.Action) {},
	})
	require.ErrorIs(t, err, domain.ErrTransient)
}

func TestRedirectPerformerInOrchestrator(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.idp.SetMethods("photoid")

	redirect := &verification.RedirectPerformer{
		API:    f.api,
		Tokens: f.session,
		Opener: verification.OpenerFunc(func(_ context.Context, _ string, onClose func()) error {
			go onClose()
			return nil
		}),
	}
	o := f.orchestrator(t, verification.Config{
		Performers: map[domain.AuthMethod]verification.Performer{domain.MethodPhotoID: redirect},
	})

	res := o.Run(context.Background(), loginFlow, nil)
	require.Equal(t, verification.OutcomeClosed, res.Outcome)
	require.Equal(t, 1, f.idp.Calls(idptest.RouteAuthURLv3))
}
