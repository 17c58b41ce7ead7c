// Package pingate implements the local pincode gate: creating a pincode
// with a confirmation repeat, changing it, and entering it to unlock a
// session with a persisted attempt limit and an optional biometric
// shortcut.
package pingate

import (
	"context"
	"errors"
	"slices"

	"github.com/aussiebroadwan/authsession/internal/domain"
)

const (
	// DefaultLength is the number of digits in a pincode.
	DefaultLength = 4

	// MaxAttempts is how many wrong entries end a gate.
	MaxAttempts = 3
)

var (
	// ErrBiometryUnavailable is returned when the biometric shortcut is not
	// offered by the gate.
	ErrBiometryUnavailable = errors.New("biometry unavailable")

	ErrInvalidDigit = errors.New("digit must be between 0 and 9")
)

// Step tells the caller what a key press led to.
type Step int

const (
	// StepInput means more digits are needed.
	StepInput Step = iota

	// StepRepeat means the candidate was taken and must be repeated.
	StepRepeat

	// StepMismatch means the digits were wrong and were cleared.
	StepMismatch

	// StepAccepted means the entered or old pincode matched.
	StepAccepted

	// StepDone means a new pincode was confirmed.
	StepDone

	// StepAborted means the flow gave up after too many mismatches.
	StepAborted

	// StepExhausted means the entry gate used up its attempts.
	StepExhausted
)

func (s Step) String() string {
	switch s {
	case StepInput:
		return "input"
	case StepRepeat:
		return "repeat"
	case StepMismatch:
		return "mismatch"
	case StepAccepted:
		return "accepted"
	case StepDone:
		return "done"
	case StepAborted:
		return "aborted"
	case StepExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// State is what a pincode screen renders.
type State struct {
	Entered      []int
	TargetLength int
}

// Checker compares digits with the stored pincode hash.
type Checker interface {
	CheckPincode(ctx context.Context, digits []int) bool
}

// AttemptCounter persists incorrect entries per gate flow.
type AttemptCounter interface {
	GetAttempts(ctx context.Context, flow string) (int, error)
	SetAttempts(ctx context.Context, flow string, n int) error
}

// BiometrySettings persists whether the user enabled the biometric shortcut.
type BiometrySettings interface {
	GetBiometryEnabled(ctx context.Context) (bool, error)
	SetBiometryEnabled(ctx context.Context, enabled bool) error
}

// Biometry is the platform biometric capability. Authenticate returns nil
// on success; any error, including a user cancel, is a failed attempt.
type Biometry interface {
	Available() bool
	Authenticate(ctx context.Context) error
}

// RequestBiometry records the user's answer to the biometry opt-in prompt.
func RequestBiometry(ctx context.Context, settings BiometrySettings, approve bool) error {
	return settings.SetBiometryEnabled(ctx, approve)
}

// pad accumulates digits up to length.
type pad struct {
	length  int
	entered []int
}

func newPad(length int) pad {
	if length <= 0 {
		length = DefaultLength
	}
	return pad{length: length}
}

// add appends d and reports whether the pad is full.
func (p *pad) add(d int) (bool, error) {
	if d < 0 || d > 9 {
		return false, ErrInvalidDigit
	}
	if len(p.entered) < p.length {
		p.entered = append(p.entered, d)
	}
	return len(p.entered) == p.length, nil
}

func (p *pad) removeLast() {
	if len(p.entered) > 0 {
		p.entered = p.entered[:len(p.entered)-1]
	}
}

func (p *pad) clear() { p.entered = nil }

func (p *pad) digits() []int { return slices.Clone(p.entered) }

func (p *pad) state() State {
	return State{Entered: p.digits(), TargetLength: p.length}
}

// cancelTemplate asks the user to confirm abandoning pincode creation.
var cancelTemplate = domain.Template{
	Type:       "middleCenterIconBlackButtonAlert",
	IsClosable: false,
	Data: domain.TemplateData{
		Icon:              "attentionBlackRound",
		Title:             "Stop creating the code?",
		Description:       "The entered digits will be lost.",
		MainButton:        &domain.Button{Title: "Stop", Action: domain.ActionCancel},
		AlternativeButton: &domain.Button{Title: "Continue", Action: domain.ActionSkip},
	},
}

// confirmCancel resolves the cancel confirmation. Only ActionCancel aborts.
func confirmCancel(ctx context.Context, h domain.InterruptHandler) (bool, error) {
	if h == nil {
		h = domain.AutoResolve
	}
	action, err := h.Resolve(ctx, cancelTemplate)
	if err != nil {
		return false, err
	}
	return action == domain.ActionCancel, nil
}
