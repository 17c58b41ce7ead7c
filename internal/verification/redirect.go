package verification

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/authsession/internal/domain"
	"github.com/aussiebroadwan/authsession/internal/identityapi"
)

// AuthURLAPI fetches external redirect urls.
type AuthURLAPI interface {
	AuthURLv3(ctx context.Context, token string, method domain.AuthMethod, processID string, trueDepthCamera bool) (*identityapi.AuthURLResponse, error)
	BankAuthURL(ctx context.Context, token, bankID, processID string) (*identityapi.AuthURLResponse, error)
}

// Opener shows url to the user, for example in a browser. onClose is called
// when the user dismisses it without finishing.
type Opener interface {
	Open(ctx context.Context, url string, onClose func()) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, url string, onClose func()) error

func (f OpenerFunc) Open(ctx context.Context, url string, onClose func()) error { return f(ctx, url, onClose) }

// RedirectPerformer dispatches url based methods: it asks the backend for
// the method's auth url within the current process and opens it. The
// redirect back into the app later calls the session's Authorize.
type RedirectPerformer struct {
	API    AuthURLAPI
	Tokens interface{ Token() string }
	Opener Opener

	// BankID, when set, requests the redirect of that specific bank.
	BankID string

	TrueDepthCamera bool

	// Interrupts resolves a template returned instead of a url.
	Interrupts domain.InterruptHandler
}

func (p *RedirectPerformer) Perform(ctx context.Context, in PerformInput) error {
	if p.API == nil || p.Opener == nil {
		return errors.New("redirect performer: api and opener are required")
	}

	token := ""
	if p.Tokens != nil && !in.Flow.IsAuthorizationFlow {
		token = p.Tokens.Token()
	}

	var (
		resp *identityapi.AuthURLResponse
		err  error
	)
	if in.Method == domain.MethodBankID && p.BankID != "" {
		resp, err = p.API.BankAuthURL(ctx, token, p.BankID, in.ProcessID)
	} else {
		resp, err = p.API.AuthURLv3(ctx, token, in.Method, in.ProcessID, p.TrueDepthCamera)
	}
	if err != nil {
		if identityapi.IsUnauthorized(err) {
			return fmt.Errorf("auth url: %w: %w", domain.ErrUnauthorized, err)
		}
		return fmt.Errorf("auth url: %w: %w", domain.ErrTransient, err)
	}

	if resp.AuthURL == "" {
		if resp.Template == nil {
			return errors.New("auth url: response carries neither url nor template")
		}
		interrupts := p.Interrupts
		if interrupts == nil {
			interrupts = domain.AutoResolve
		}
		action, err := interrupts.Resolve(ctx, *resp.Template)
		if err != nil {
			return fmt.Errorf("resolve auth url template: %w", err)
		}
		in.Complete(action)
		return nil
	}

	return p.Opener.Open(ctx, resp.AuthURL, in.OnClose)
}
