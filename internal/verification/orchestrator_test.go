package verification_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/authsession/internal/domain"
	"github.com/aussiebroadwan/authsession/internal/identityapi"
	"github.com/aussiebroadwan/authsession/internal/idptest"
	"github.com/aussiebroadwan/authsession/internal/reachability"
	"github.com/aussiebroadwan/authsession/internal/session"
	"github.com/aussiebroadwan/authsession/internal/store/drivers/sqlite"
	"github.com/aussiebroadwan/authsession/internal/verification"
	"github.com/aussiebroadwan/authsession/pkg/slogx"
	"github.com/stretchr/testify/require"
)

var loginFlow = domain.VerificationFlow{
	FlowCode:            "authorization",
	IsAuthorizationFlow: true,
	Purpose:             domain.PurposeLogin,
}

type fixture struct {
	idp     *idptest.Server
	api     *identityapi.Client
	session *session.Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	idp := idptest.New(t)
	api := identityapi.New(idp.URL, identityapi.WithLogger(slogx.Discard()))

	c, err := session.New(context.Background(), session.Config{
		Store:        st,
		UserAPI:      api,
		ServiceAPI:   api,
		Connectivity: reachability.NewMonitor(nil, slogx.Discard(), 0, true),
		DeviceID:     "device-1",
		Logger:       slogx.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.Flush(ctx)
	})

	return &fixture{idp: idp, api: api, session: c}
}

func (f *fixture) orchestrator(t *testing.T, cfg verification.Config) *verification.Orchestrator {
	t.Helper()
	cfg.API = f.api
	cfg.Session = f.session
	cfg.Logger = slogx.Discard()
	o, err := verification.New(cfg)
	require.NoError(t, err)
	return o
}

// redirectBack plays the external redirect: it correlates the session with
// the dispatched method and runs verify, like a deep link handler would.
func (f *fixture) redirectBack() verification.Performer {
	return verification.PerformerFunc(func(_ context.Context, in verification.PerformInput) error {
		go func() {
			f.session.User().SetTarget(in.Method)
			f.session.User().SetRequestID("req-" + in.ProcessID)
			_, _ = f.session.Authorize(context.Background(), map[string]string{"bankId": "pb"})
		}()
		return nil
	})
}

// completing reports the given actions, one per dispatch.
func completing(actions ...domain.Action) (verification.Performer, *[]domain.AuthMethod) {
	var (
		mu         sync.Mutex
		dispatched []domain.AuthMethod
	)
	return verification.PerformerFunc(func(_ context.Context, in verification.PerformInput) error {
		mu.Lock()
		i := len(dispatched)
		dispatched = append(dispatched, in.Method)
		mu.Unlock()

		a := actions[len(actions)-1]
		if i < len(actions) {
			a = actions[i]
		}
		go in.Complete(a)
		return nil
	}), &dispatched
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := verification.New(verification.Config{})
	require.Error(t, err)

	_, err = verification.New(verification.Config{API: f.api, Session: f.session})
	require.Error(t, err, "performers are required")
}

func TestInterruptShowMethodsDispatchesSingleMethod(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	f.idp.SetMethods("bankid")
	f.idp.SetMethodsTemplate(&domain.Template{
		Type: "smallAlert",
		Data: domain.TemplateData{
			Title:      "Confirm your identity",
			MainButton: &domain.Button{Title: "Choose method", Action: domain.ActionShowMethods},
		},
	})

	var (
		mu          sync.Mutex
		transitions []verification.State
	)
	o := f.orchestrator(t, verification.Config{
		Performers: map[domain.AuthMethod]verification.Performer{domain.MethodBankID: f.redirectBack()},
		OnTransition: func(s verification.State) {
			mu.Lock()
			transitions = append(transitions, s)
			mu.Unlock()
		},
	})

	res := o.Run(ctx, loginFlow, nil)
	require.NoError(t, res.Err)
	require.Equal(t, verification.OutcomeSuccess, res.Outcome)
	require.NotEmpty(t, res.ProcessID)
	require.True(t, f.idp.ProcessVerified(res.ProcessID))
	require.Equal(t, verification.StateTerminal, o.State())

	mu.Lock()
	require.Equal(t, []verification.State{
		verification.StateFetchingMethods,
		verification.StateInterrupted,
		verification.StateMethodsPresented,
		verification.StateDispatched,
		verification.StateTerminal,
	}, transitions)
	mu.Unlock()

	require.NoError(t, f.session.AcquireToken(ctx, res.ProcessID))
	require.Equal(t, domain.UserAuth, f.session.State())
}

func TestSkipAuthMethods(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.idp.SetSkipMethods(true)

	perf, dispatched := completing(domain.ActionGetToken)
	o := f.orchestrator(t, verification.Config{
		Performers: map[domain.AuthMethod]verification.Performer{domain.MethodBankID: perf},
	})

	res := o.Run(context.Background(), loginFlow, nil)
	require.Equal(t, verification.OutcomeSuccess, res.Outcome)
	require.NotEmpty(t, res.ProcessID)
	require.Equal(t, res.ProcessID, f.session.ProcessID())
	require.Empty(t, *dispatched)
}

func TestNoUsableMethods(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.idp.SetMethods("nfc", "somethingNew")

	perf, _ := completing(domain.ActionGetToken)
	o := f.orchestrator(t, verification.Config{
		Performers: map[domain.AuthMethod]verification.Performer{domain.MethodBankID: perf},
	})

	res := o.Run(context.Background(), loginFlow, nil)
	require.Equal(t, verification.OutcomeFailed, res.Outcome)
	require.ErrorIs(t, res.Err, domain.ErrNoUsableMethods)
	require.True(t, res.Retryable)
}

func TestMethodsInterruptOutcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		action domain.Action
		want   verification.Outcome
	}{
		{name: "cancel", action: domain.ActionCancel, want: verification.OutcomeCancelled},
		{name: "skip", action: domain.ActionSkip, want: verification.OutcomeCancelled},
		{name: "close", action: domain.ActionClose, want: verification.OutcomeClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.idp.SetMethodsTemplate(&domain.Template{
				Type: "smallAlert",
				Data: domain.TemplateData{MainButton: &domain.Button{Action: tt.action}},
			})

			perf, dispatched := completing(domain.ActionGetToken)
			o := f.orchestrator(t, verification.Config{
				Performers: map[domain.AuthMethod]verification.Performer{domain.MethodBankID: perf},
			})

			res := o.Run(context.Background(), loginFlow, nil)
			require.Equal(t, tt.want, res.Outcome)
			require.Empty(t, *dispatched)
		})
	}
}

func TestSelectorPicksAmongSeveralMethods(t *testing.T) {
	t.Parallel()

	t.Run("picked", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.idp.SetMethods("bankid", "photoid")

		bank, bankDispatched := completing(domain.ActionGetToken)
		photo, photoDispatched := completing(domain.ActionGetToken)

		var offered []domain.AuthMethod
		o := f.orchestrator(t, verification.Config{
			Performers: map[domain.AuthMethod]verification.Performer{
				domain.MethodBankID:  bank,
				domain.MethodPhotoID: photo,
			},
			Selector: verification.SelectorFunc(func(_ context.Context, _ string, methods []domain.AuthMethod) (domain.AuthMethod, bool, error) {
				offered = methods
				return domain.MethodPhotoID, true, nil
			}),
		})

		res := o.Run(context.Background(), loginFlow, nil)
		require.Equal(t, verification.OutcomeSuccess, res.Outcome)
		require.Equal(t, []domain.AuthMethod{domain.MethodBankID, domain.MethodPhotoID}, offered)
		require.Empty(t, *bankDispatched)
		require.Equal(t, []domain.AuthMethod{domain.MethodPhotoID}, *photoDispatched)
	})

	t.Run("backed out", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.idp.SetMethods("bankid", "photoid")

		perf, dispatched := completing(domain.ActionGetToken)
		o := f.orchestrator(t, verification.Config{
			Performers: map[domain.AuthMethod]verification.Performer{
				domain.MethodBankID:  perf,
				domain.MethodPhotoID: perf,
			},
			Selector: verification.SelectorFunc(func(context.Context, string, []domain.AuthMethod) (domain.AuthMethod, bool, error) {
				return "", false, nil
			}),
		})

		res := o.Run(context.Background(), loginFlow, nil)
		require.Equal(t, verification.OutcomeCancelled, res.Outcome)
		require.Empty(t, *dispatched)
	})
}

func TestCompletionRouting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		actions     []domain.Action
		want        verification.Outcome
		wantFetches int
	}{
		{name: "success", actions: []domain.Action{domain.ActionOK}, want: verification.OutcomeSuccess, wantFetches: 1},
		{name: "show methods refetches", actions: []domain.Action{domain.ActionShowMethods, domain.ActionConfirm}, want: verification.OutcomeSuccess, wantFetches: 2},
		{name: "unknown action refetches", actions: []domain.Action{"retryLater", domain.ActionGetToken}, want: verification.OutcomeSuccess, wantFetches: 2},
		{name: "cancel", actions: []domain.Action{domain.ActionCancel}, want: verification.OutcomeCancelled, wantFetches: 1},
		{name: "close", actions: []domain.Action{domain.ActionClose}, want: verification.OutcomeClosed, wantFetches: 1},
		{name: "refetch limit", actions: []domain.Action{domain.ActionShowMethods}, want: verification.OutcomeFailed, wantFetches: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)

			perf, _ := completing(tt.actions...)
			o := f.orchestrator(t, verification.Config{
				Performers:   map[domain.AuthMethod]verification.Performer{domain.MethodBankID: perf},
				MaxRefetches: 2,
			})

			res := o.Run(context.Background(), loginFlow, nil)
			require.Equal(t, tt.want, res.Outcome)
			require.Equal(t, tt.wantFetches, f.idp.Calls(idptest.RouteMethods))
			if tt.want == verification.OutcomeSuccess {
				require.NotEmpty(t, res.ProcessID)
			}
		})
	}
}

func TestRefetchKeepsProcess(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var processes []string
	perf := verification.PerformerFunc(func(_ context.Context, in verification.PerformInput) error {
		processes = append(processes, in.ProcessID)
		a := domain.ActionShowMethods
		if len(processes) > 1 {
			a = domain.ActionGetToken
		}
		go in.Complete(a)
		return nil
	})
	o := f.orchestrator(t, verification.Config{
		Performers: map[domain.AuthMethod]verification.Performer{domain.MethodBankID: perf},
	})

	res := o.Run(context.Background(), loginFlow, nil)
	require.Equal(t, verification.OutcomeSuccess, res.Outcome)
	require.Len(t, processes, 2)
	require.Equal(t, processes[0], processes[1])
	require.Equal(t, processes[0], res.ProcessID)
}

func TestCompletionLogoutEndsSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.session.LoginWithToken(ctx, f.idp.IssueToken(domain.UserToken, "device-1")))

	perf, _ := completing(domain.ActionLogout)
	o := f.orchestrator(t, verification.Config{
		Performers: map[domain.AuthMethod]verification.Performer{domain.MethodBankID: perf},
	})

	flow := domain.VerificationFlow{FlowCode: "prolong", Purpose: domain.PurposeProlong}
	res := o.Run(ctx, flow, nil)
	require.Equal(t, verification.OutcomeCancelled, res.Outcome)
	require.Equal(t, domain.NotAuthorized, f.session.State())
}

func TestPerformerClose(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	perf := verification.PerformerFunc(func(_ context.Context, in verification.PerformInput) error {
		go in.OnClose()
		return nil
	})
	o := f.orchestrator(t, verification.Config{
		Performers: map[domain.AuthMethod]verification.Performer{domain.MethodBankID: perf},
	})

	res := o.Run(context.Background(), loginFlow, nil)
	require.Equal(t, verification.OutcomeClosed, res.Outcome)
	require.Equal(t, domain.PurposeLogin, f.session.User().Flow().Purpose)
}

func TestRunHonoursContext(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	perf := verification.PerformerFunc(func(context.Context, verification.PerformInput) error { return nil })
	o := f.orchestrator(t, verification.Config{
		Performers: map[domain.AuthMethod]verification.Performer{domain.MethodBankID: perf},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res := o.Run(ctx, loginFlow, nil)
	require.Equal(t, verification.OutcomeFailed, res.Outcome)
	require.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestFetchFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("transient is retryable", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.idp.FailNext(idptest.RouteMethods, http.StatusServiceUnavailable)

		perf, _ := completing(domain.ActionGetToken)
		o := f.orchestrator(t, verification.Config{
			Performers: map[domain.AuthMethod]verification.Performer{domain.MethodBankID: perf},
		})

		res := o.Run(ctx, loginFlow, nil)
		require.Equal(t, verification.OutcomeFailed, res.Outcome)
		require.ErrorIs(t, res.Err, domain.ErrTransient)
		require.True(t, res.Retryable)

		res = o.Run(ctx, loginFlow, nil)
		require.Equal(t, verification.OutcomeSuccess, res.Outcome)
	})

	t.Run("unauthorized logs out", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		require.NoError(t, f.session.LoginWithToken(ctx, f.idp.IssueToken(domain.UserToken, "device-1")))
		f.idp.FailNext(idptest.RouteMethods, http.StatusUnauthorized)

		perf, _ := completing(domain.ActionGetToken)
		o := f.orchestrator(t, verification.Config{
			Performers: map[domain.AuthMethod]verification.Performer{domain.MethodBankID: perf},
		})

		flow := domain.VerificationFlow{FlowCode: "prolong", Purpose: domain.PurposeProlong}
		res := o.Run(ctx, flow, nil)
		require.Equal(t, verification.OutcomeFailed, res.Outcome)
		require.ErrorIs(t, res.Err, domain.ErrUnauthorized)
		require.False(t, res.Retryable)
		require.Equal(t, domain.NotAuthorized, f.session.State())
	})
}

// scriptedMethods answers methods requests from a fixed list, repeating the
// last response, and records the process id each request carried.
type scriptedMethods struct {
	mu        sync.Mutex
	responses []identityapi.VerificationMethodsResponse
	sent      []string
}

func (s *scriptedMethods) VerificationMethods(
	_ context.Context,
	_ string,
	_ domain.VerificationFlow,
	processID string,
) (*identityapi.VerificationMethodsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := min(len(s.sent), len(s.responses)-1)
	s.sent = append(s.sent, processID)
	resp := s.responses[i]
	return &resp, nil
}

func (s *scriptedMethods) processIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func TestEachRunStartsANewProcess(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	api := &scriptedMethods{responses: []identityapi.VerificationMethodsResponse{
		{ProcessID: "p1", RawMethods: []string{"bankid"}},
	}}
	perf, dispatched := completing(domain.ActionCancel)
	o, err := verification.New(verification.Config{
		API:        api,
		Session:    f.session,
		Performers: map[domain.AuthMethod]verification.Performer{domain.MethodBankID: perf},
		Logger:     slogx.Discard(),
	})
	require.NoError(t, err)

	for range 2 {
		res := o.Run(context.Background(), loginFlow, nil)
		require.Equal(t, verification.OutcomeCancelled, res.Outcome)
	}

	require.Len(t, *dispatched, 2)
	require.Equal(t, []string{"", ""}, api.processIDs())
}

func TestSkipWithoutProcessID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		methods      []string
		want         verification.Outcome
		wantErr      error
		wantDispatch int
	}{
		{name: "methods are presented", methods: []string{"bankid"}, want: verification.OutcomeSuccess, wantDispatch: 1},
		{name: "no methods fails retryably", want: verification.OutcomeFailed, wantErr: domain.ErrNoUsableMethods},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)

			api := &scriptedMethods{responses: []identityapi.VerificationMethodsResponse{
				{SkipAuthMethods: true, RawMethods: tt.methods},
			}}
			perf, dispatched := completing(domain.ActionOK)
			o, err := verification.New(verification.Config{
				API:        api,
				Session:    f.session,
				Performers: map[domain.AuthMethod]verification.Performer{domain.MethodBankID: perf},
				Logger:     slogx.Discard(),
			})
			require.NoError(t, err)

			res := o.Run(context.Background(), loginFlow, nil)
			require.Equal(t, tt.want, res.Outcome)
			require.Len(t, *dispatched, tt.wantDispatch)
			if tt.wantErr != nil {
				require.ErrorIs(t, res.Err, tt.wantErr)
				require.True(t, res.Retryable)
			}
		})
	}
}

func TestResponseWithoutProcessIDClearsIt(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	api := &scriptedMethods{responses: []identityapi.VerificationMethodsResponse{
		{ProcessID: "p1", RawMethods: []string{"bankid"}},
		{RawMethods: []string{"bankid"}},
	}}
	perf, _ := completing(domain.ActionShowMethods, domain.ActionCancel)
	o, err := verification.New(verification.Config{
		API:        api,
		Session:    f.session,
		Performers: map[domain.AuthMethod]verification.Performer{domain.MethodBankID: perf},
		Logger:     slogx.Discard(),
	})
	require.NoError(t, err)

	res := o.Run(context.Background(), loginFlow, nil)
	require.Equal(t, verification.OutcomeCancelled, res.Outcome)
	require.Equal(t, []string{"", "p1"}, api.processIDs())
	require.Empty(t, f.session.ProcessID())
}
