// Package verification drives one identity verification attempt: it fetches
// the methods the backend offers for a flow, resolves interrupts, lets the
// user pick a method, dispatches it to an out-of-band performer and routes
// the completion reported by the user session.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aussiebroadwan/authsession/internal/domain"
	"github.com/aussiebroadwan/authsession/internal/identityapi"
	"github.com/aussiebroadwan/authsession/pkg/slogx"
)

// DefaultMaxRefetches bounds how often completions may send an attempt back
// to the method list.
const DefaultMaxRefetches = 5

// MethodsAPI lists verification methods.
type MethodsAPI interface {
	VerificationMethods(
		ctx context.Context,
		token string,
		flow domain.VerificationFlow,
		processID string,
	) (*identityapi.VerificationMethodsResponse, error)
}

// Session is the part of the session coordinator an attempt needs.
type Session interface {
	Token() string
	ProcessID() string
	SetProcessID(id string)
	SetUserFlow(f domain.UserFlow)
	Logout(ctx context.Context) error
}

// PerformInput is handed to a performer on dispatch. OnClose reports that
// the user dismissed the method; Complete reports a completion that does
// not go through the user session.
type PerformInput struct {
	View      any
	Flow      domain.VerificationFlow
	Method    domain.AuthMethod
	ProcessID string
	OnClose   func()
	Complete  func(domain.Action)
}

// Performer runs one method out-of-band. Perform returns once the method is
// started; completion arrives later through the user flow.
type Performer interface {
	Perform(ctx context.Context, in PerformInput) error
}

// PerformerFunc adapts a function to Performer.
type PerformerFunc func(ctx context.Context, in PerformInput) error

func (f PerformerFunc) Perform(ctx context.Context, in PerformInput) error { return f(ctx, in) }

// MethodSelector asks the user to pick one of several methods. ok is false
// when the user backed out.
type MethodSelector interface {
	Select(ctx context.Context, title string, methods []domain.AuthMethod) (m domain.AuthMethod, ok bool, err error)
}

// SelectorFunc adapts a function to MethodSelector.
type SelectorFunc func(ctx context.Context, title string, methods []domain.AuthMethod) (domain.AuthMethod, bool, error)

func (f SelectorFunc) Select(ctx context.Context, title string, methods []domain.AuthMethod) (domain.AuthMethod, bool, error) {
	return f(ctx, title, methods)
}

// Config wires an Orchestrator. API, Session and at least one performer are
// required.
type Config struct {
	API        MethodsAPI
	Session    Session
	Performers map[domain.AuthMethod]Performer

	// Selector picks among several methods. Without one the first method
	// in server order is dispatched.
	Selector MethodSelector

	// Interrupts resolves templates attached to the methods response.
	Interrupts domain.InterruptHandler

	// OnTransition observes every state change.
	OnTransition func(State)

	MaxRefetches int
	Logger       *slog.Logger
}

// Orchestrator runs verification attempts one at a time.
type Orchestrator struct {
	api          MethodsAPI
	session      Session
	performers   map[domain.AuthMethod]Performer
	selector     MethodSelector
	interrupts   domain.InterruptHandler
	onTransition func(State)
	maxRefetches int
	logger       *slog.Logger

	runMu sync.Mutex

	mu    sync.Mutex
	state State
}

// New validates cfg and applies defaults.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.API == nil || cfg.Session == nil {
		return nil, errors.New("verification: api and session are required")
	}
	if len(cfg.Performers) == 0 {
		return nil, errors.New("verification: at least one performer is required")
	}

	o := &Orchestrator{
		api:          cfg.API,
		session:      cfg.Session,
		performers:   cfg.Performers,
		selector:     cfg.Selector,
		interrupts:   cfg.Interrupts,
		onTransition: cfg.OnTransition,
		maxRefetches: cfg.MaxRefetches,
		logger:       cfg.Logger,
	}
	if o.interrupts == nil {
		o.interrupts = domain.AutoResolve
	}
	if o.maxRefetches <= 0 {
		o.maxRefetches = DefaultMaxRefetches
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o, nil
}

// State returns the state of the current or last attempt.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) transition(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()

	if o.onTransition != nil {
		o.onTransition(s)
	}
}

// completion is what a dispatched method reported back.
type completion struct {
	action domain.Action
	closed bool
}

// Run performs one verification attempt for flow and blocks until it
// reaches a terminal state. view is passed through to performers.
func (o *Orchestrator) Run(ctx context.Context, flow domain.VerificationFlow, view any) Result {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	ctx = slogx.WithFlow(slogx.WithContext(ctx, o.logger), flow.FlowCode)
	log := slogx.FromContext(ctx).With("purpose", string(flow.Purpose))

	// Every attempt starts a new server process.
	o.session.SetProcessID("")
	res := o.run(ctx, log, flow, view)
	o.transition(StateTerminal)

	attrs := []any{"outcome", res.Outcome.String(), "process_id", res.ProcessID}
	if res.Err != nil {
		attrs = append(attrs, "error", res.Err, "retryable", res.Retryable)
		log.Warn("verification finished", attrs...)
	} else {
		log.Info("verification finished", attrs...)
	}
	return res
}

func (o *Orchestrator) run(ctx context.Context, log *slog.Logger, flow domain.VerificationFlow, view any) Result {
	for refetches := 0; ; refetches++ {
		if refetches > o.maxRefetches {
			return Result{
				Outcome:   OutcomeFailed,
				Err:       fmt.Errorf("method list requested %d times without completion", refetches),
				Retryable: true,
			}
		}

		o.transition(StateFetchingMethods)
		resp, err := o.api.VerificationMethods(ctx, o.session.Token(), flow, o.session.ProcessID())
		if err != nil {
			return o.fetchFailed(ctx, err)
		}
		o.session.SetProcessID(resp.ProcessID)

		// Skipping needs a process to hand over; without one the methods
		// are presented as usual.
		if resp.SkipAuthMethods && resp.ProcessID != "" {
			return Result{Outcome: OutcomeSuccess, ProcessID: resp.ProcessID}
		}
		if resp.SkipAuthMethods {
			log.Warn("skip requested without a process id, presenting methods")
		}

		if resp.Template != nil {
			o.transition(StateInterrupted)
			action, err := o.interrupts.Resolve(ctx, *resp.Template)
			if err != nil {
				return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("resolve methods template: %w", err)}
			}
			log.Debug("methods interrupt resolved", "action", string(action))
			if !action.ShowsMethods() {
				return o.terminalFor(ctx, action)
			}
		}

		methods := o.usable(resp.Methods())
		if len(methods) == 0 {
			return Result{Outcome: OutcomeFailed, Err: domain.ErrNoUsableMethods, Retryable: true}
		}

		o.transition(StateMethodsPresented)
		method, ok, err := o.choose(ctx, resp.Title, methods)
		if err != nil {
			return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("select method: %w", err)}
		}
		if !ok {
			return Result{Outcome: OutcomeCancelled}
		}

		done, res := o.dispatch(ctx, log, flow, view, method)
		if done {
			return res
		}
		log.Info("completion asked for the method list again", "method", string(method))
	}
}

// fetchFailed turns a methods request error into a result. A 401 ends the
// session that made the request.
func (o *Orchestrator) fetchFailed(ctx context.Context, err error) Result {
	if identityapi.IsUnauthorized(err) {
		if o.session.Token() != "" {
			if lerr := o.session.Logout(ctx); lerr != nil {
				o.logger.Error("forced logout failed", "error", lerr)
			}
		}
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("fetch methods: %w: %w", domain.ErrUnauthorized, err)}
	}
	return Result{
		Outcome:   OutcomeFailed,
		Err:       fmt.Errorf("fetch methods: %w: %w", domain.ErrTransient, err),
		Retryable: true,
	}
}

// usable keeps the methods that have a registered performer.
func (o *Orchestrator) usable(methods []domain.AuthMethod) []domain.AuthMethod {
	var out []domain.AuthMethod
	for _, m := range methods {
		if _, ok := o.performers[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

func (o *Orchestrator) choose(ctx context.Context, title string, methods []domain.AuthMethod) (domain.AuthMethod, bool, error) {
	if len(methods) == 1 || o.selector == nil {
		return methods[0], true, nil
	}
	m, ok, err := o.selector.Select(ctx, title, methods)
	if err != nil || !ok {
		return "", ok, err
	}
	if _, known := o.performers[m]; !known {
		return "", false, fmt.Errorf("selected method %q has no performer", m)
	}
	return m, true, nil
}

// dispatch hands method to its performer and waits for the completion.
// done is false when the attempt has to go back to the method list.
func (o *Orchestrator) dispatch(
	ctx context.Context,
	log *slog.Logger,
	flow domain.VerificationFlow,
	view any,
	method domain.AuthMethod,
) (done bool, res Result) {
	o.transition(StateDispatched)

	// Buffered and non-blocking: completions that arrive after the attempt
	// moved on are dropped.
	ch := make(chan completion, 1)
	report := func(c completion) {
		select {
		case ch <- c:
		default:
		}
	}
	complete := func(a domain.Action) { report(completion{action: a}) }

	if flow.Purpose != domain.PurposeServiceLogin {
		o.session.SetUserFlow(domain.UserFlow{Purpose: flow.Purpose, OnComplete: complete})
		defer o.session.SetUserFlow(domain.DefaultUserFlow())
	}

	in := PerformInput{
		View:      view,
		Flow:      flow,
		Method:    method,
		ProcessID: o.session.ProcessID(),
		OnClose:   func() { report(completion{closed: true}) },
		Complete:  complete,
	}
	log.Info("dispatching method", "method", string(method), "process_id", in.ProcessID)
	if err := o.performers[method].Perform(ctx, in); err != nil {
		return true, Result{
			Outcome:   OutcomeFailed,
			Err:       fmt.Errorf("perform %s: %w", method, err),
			Retryable: !errors.Is(err, domain.ErrUnauthorized),
		}
	}

	select {
	case c := <-ch:
		if c.closed {
			return true, Result{Outcome: OutcomeClosed}
		}
		log.Info("method completed", "method", string(method), "action", string(c.action))
		switch {
		case c.action.IsSuccess():
			return true, Result{Outcome: OutcomeSuccess, ProcessID: o.session.ProcessID()}
		case c.action.IsCancel(), c.action == domain.ActionLogout, c.action == domain.ActionClose:
			return true, o.terminalFor(ctx, c.action)
		default:
			return false, Result{}
		}
	case <-ctx.Done():
		return true, Result{Outcome: OutcomeFailed, Err: ctx.Err()}
	}
}

// terminalFor maps a non-success action to its terminal result. Logout also
// ends the session.
func (o *Orchestrator) terminalFor(ctx context.Context, a domain.Action) Result {
	switch {
	case a == domain.ActionLogout:
		if err := o.session.Logout(ctx); err != nil {
			return Result{Outcome: OutcomeCancelled, Err: fmt.Errorf("logout: %w", err)}
		}
		return Result{Outcome: OutcomeCancelled}
	case a == domain.ActionClose:
		return Result{Outcome: OutcomeClosed}
	case a.IsSuccess():
		return Result{Outcome: OutcomeSuccess, ProcessID: o.session.ProcessID()}
	default:
		return Result{Outcome: OutcomeCancelled}
	}
}
