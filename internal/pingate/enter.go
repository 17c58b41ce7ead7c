package pingate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aussiebroadwan/authsession/internal/domain"
	"github.com/aussiebroadwan/authsession/pkg/cryptox"
)

// EnterDelegate receives the outcome of an entry gate.
type EnterDelegate interface {
	// Accepted is called with the entered digits, or "" after a biometric
	// unlock.
	Accepted(code string)

	// Mismatch is called after a wrong entry that still leaves attempts.
	Mismatch(attempt, max int)

	// Exhausted is called once when the last attempt was wrong.
	Exhausted()

	// Forgot is called when the user asks to reset the pincode.
	Forgot()
}

// EnterConfig configures an Enterer. Checker, Attempts and Delegate are
// required.
type EnterConfig struct {
	Flow     domain.GateFlow
	Length   int
	Checker  Checker
	Attempts AttemptCounter
	Delegate EnterDelegate

	// Biometry and Settings enable the biometric shortcut on the auth flow.
	Biometry Biometry
	Settings BiometrySettings

	Logger *slog.Logger
}

// Enterer is the session gate: it unlocks on the stored pincode and gives
// up after MaxAttempts wrong entries, persisted across gate instances.
type Enterer struct {
	cfg    EnterConfig
	logger *slog.Logger

	mu      sync.Mutex
	pad     pad
	closed  bool
	noRetry bool
}

func NewEnterer(cfg EnterConfig) *Enterer {
	if cfg.Flow == "" {
		cfg.Flow = domain.GateAuth
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Enterer{
		cfg:    cfg,
		logger: logger.With("gate", string(cfg.Flow)),
		pad:    newPad(cfg.Length),
	}
}

// Press adds a digit and checks a full pad against the stored pincode.
func (e *Enterer) Press(ctx context.Context, digit int) (Step, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return StepExhausted, domain.ErrGateClosed
	}

	full, err := e.pad.add(digit)
	if err != nil || !full {
		e.mu.Unlock()
		return StepInput, err
	}
	digits := e.pad.digits()
	flow := string(e.cfg.Flow)

	prev, err := e.cfg.Attempts.GetAttempts(ctx, flow)
	if err != nil {
		e.pad.clear()
		e.mu.Unlock()
		return StepInput, fmt.Errorf("read attempts: %w", err)
	}
	attempt := prev + 1

	if e.cfg.Checker.CheckPincode(ctx, digits) {
		e.closed = true
		e.pad.clear()
		e.mu.Unlock()

		if err := e.cfg.Attempts.SetAttempts(ctx, flow, 0); err != nil {
			e.logger.Error("failed to reset pincode attempts", "error", err)
		}
		e.logger.Info("pincode accepted")
		code, _ := cryptox.PincodeString(digits)
		e.cfg.Delegate.Accepted(code)
		return StepAccepted, nil
	}

	if attempt < MaxAttempts {
		e.pad.clear()
		e.mu.Unlock()

		if err := e.cfg.Attempts.SetAttempts(ctx, flow, attempt); err != nil {
			return StepMismatch, fmt.Errorf("store attempts: %w", err)
		}
		e.logger.Warn("wrong pincode", "attempt", attempt, "max", MaxAttempts)
		e.cfg.Delegate.Mismatch(attempt, MaxAttempts)
		return StepMismatch, domain.ErrPincodeMismatch
	}

	e.closed = true
	e.pad.clear()
	e.mu.Unlock()

	e.logger.Warn("pincode attempts exhausted")
	e.cfg.Delegate.Exhausted()
	return StepExhausted, domain.ErrAttemptsExhausted
}

// Delete removes the last digit.
func (e *Enterer) Delete() {
	e.mu.Lock()
	e.pad.removeLast()
	e.mu.Unlock()
}

// State returns the digits entered so far.
func (e *Enterer) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pad.state()
}

// Forgot forwards a "forgot pincode" request to the delegate.
func (e *Enterer) Forgot() {
	e.cfg.Delegate.Forgot()
}

// BiometryOffered reports whether the biometric shortcut is available: only
// the auth flow offers it, and only when the platform supports it and the
// user enabled it.
func (e *Enterer) BiometryOffered(ctx context.Context) bool {
	if e.cfg.Flow != domain.GateAuth || e.cfg.Biometry == nil || e.cfg.Settings == nil {
		return false
	}
	if !e.cfg.Biometry.Available() {
		return false
	}
	enabled, err := e.cfg.Settings.GetBiometryEnabled(ctx)
	if err != nil {
		e.logger.Error("failed to read biometry setting", "error", err)
		return false
	}
	return enabled
}

// Appear is called whenever the gate is shown. It starts the biometric
// prompt automatically unless the last one failed or was cancelled.
func (e *Enterer) Appear(ctx context.Context) (Step, error) {
	e.mu.Lock()
	skip := e.noRetry || e.closed
	e.mu.Unlock()

	if skip || !e.BiometryOffered(ctx) {
		return StepInput, nil
	}
	return e.UseBiometry(ctx)
}

// UseBiometry runs the biometric prompt. Success unlocks the gate without
// touching the attempt counter; failure disables the automatic prompt
// until ArmBiometry.
func (e *Enterer) UseBiometry(ctx context.Context) (Step, error) {
	if !e.BiometryOffered(ctx) {
		return StepInput, ErrBiometryUnavailable
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return StepExhausted, domain.ErrGateClosed
	}
	e.mu.Unlock()

	if err := e.cfg.Biometry.Authenticate(ctx); err != nil {
		e.mu.Lock()
		e.noRetry = true
		e.mu.Unlock()
		e.logger.Info("biometric unlock failed", "error", err)
		return StepInput, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return StepExhausted, domain.ErrGateClosed
	}
	e.closed = true
	e.pad.clear()
	e.mu.Unlock()

	e.logger.Info("biometric unlock accepted")
	e.cfg.Delegate.Accepted("")
	return StepAccepted, nil
}

// ArmBiometry re-enables the automatic biometric prompt.
func (e *Enterer) ArmBiometry() {
	e.mu.Lock()
	e.noRetry = false
	e.mu.Unlock()
}
