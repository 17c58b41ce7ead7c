package pingate

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/aussiebroadwan/authsession/internal/domain"
)

// AllowedRepeatMismatches is how many wrong repeats are tolerated; the
// next one aborts the creation.
const AllowedRepeatMismatches = 2

// CreatedFunc receives a confirmed pincode, typically to store its hash.
type CreatedFunc func(ctx context.Context, digits []int) error

// Repeater confirms a candidate pincode.
type Repeater struct {
	onCreated CreatedFunc

	mu         sync.Mutex
	candidate  []int
	pad        pad
	mismatches int
	closed     bool
}

// NewRepeater confirms candidate and hands it to onCreated on a match.
func NewRepeater(candidate []int, onCreated CreatedFunc) *Repeater {
	return &Repeater{
		onCreated: onCreated,
		candidate: slices.Clone(candidate),
		pad:       newPad(len(candidate)),
	}
}

// Press adds a digit. A full pad is compared with the candidate: a match
// finishes with StepDone, a mismatch clears the pad and the third one
// aborts.
func (r *Repeater) Press(ctx context.Context, digit int) (Step, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return StepAborted, domain.ErrGateClosed
	}

	full, err := r.pad.add(digit)
	if err != nil || !full {
		r.mu.Unlock()
		return StepInput, err
	}

	digits := r.pad.digits()
	if !slices.Equal(digits, r.candidate) {
		r.mismatches++
		r.pad.clear()
		if r.mismatches > AllowedRepeatMismatches {
			r.closed = true
			r.mu.Unlock()
			return StepAborted, domain.ErrAttemptsExhausted
		}
		r.mu.Unlock()
		return StepMismatch, domain.ErrPincodeMismatch
	}

	r.closed = true
	r.mu.Unlock()

	if r.onCreated != nil {
		if err := r.onCreated(ctx, digits); err != nil {
			return StepDone, fmt.Errorf("save pincode: %w", err)
		}
	}
	return StepDone, nil
}

// Delete removes the last digit.
func (r *Repeater) Delete() {
	r.mu.Lock()
	r.pad.removeLast()
	r.mu.Unlock()
}

// Mismatches returns how many repeats were wrong so far.
func (r *Repeater) Mismatches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mismatches
}

// State returns the digits entered so far.
func (r *Repeater) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pad.state()
}

// CreateConfig configures a Creator.
type CreateConfig struct {
	Length     int
	OnCreated  CreatedFunc
	Interrupts domain.InterruptHandler
}

// Creator collects a new pincode and then confirms it with a Repeater.
type Creator struct {
	onCreated  CreatedFunc
	interrupts domain.InterruptHandler

	mu     sync.Mutex
	pad    pad
	repeat *Repeater
	closed bool
}

func NewCreator(cfg CreateConfig) *Creator {
	return &Creator{
		onCreated:  cfg.OnCreated,
		interrupts: cfg.Interrupts,
		pad:        newPad(cfg.Length),
	}
}

// Press adds a digit to the new pincode, or to its repeat once the first
// entry is complete.
func (c *Creator) Press(ctx context.Context, digit int) (Step, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return StepAborted, domain.ErrGateClosed
	}

	if rep := c.repeat; rep != nil {
		c.mu.Unlock()
		step, err := rep.Press(ctx, digit)
		if step == StepDone || step == StepAborted {
			c.mu.Lock()
			c.closed = true
			c.mu.Unlock()
		}
		return step, err
	}
	defer c.mu.Unlock()

	full, err := c.pad.add(digit)
	if err != nil || !full {
		return StepInput, err
	}

	c.repeat = NewRepeater(c.pad.digits(), c.onCreated)
	c.pad.clear()
	return StepRepeat, nil
}

// Delete removes the last digit of the current entry.
func (c *Creator) Delete() {
	c.mu.Lock()
	rep := c.repeat
	if rep == nil {
		c.pad.removeLast()
	}
	c.mu.Unlock()

	if rep != nil {
		rep.Delete()
	}
}

// Clear drops every digit of the first entry.
func (c *Creator) Clear() {
	c.mu.Lock()
	c.pad.clear()
	c.mu.Unlock()
}

// Repeating reports whether the candidate is being confirmed.
func (c *Creator) Repeating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.repeat != nil
}

// Repeater returns the confirmation step, or nil before the first entry is
// complete.
func (c *Creator) Repeater() *Repeater {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.repeat
}

// State returns the digits of the current entry.
func (c *Creator) State() State {
	c.mu.Lock()
	rep := c.repeat
	st := c.pad.state()
	c.mu.Unlock()

	if rep != nil {
		return rep.State()
	}
	return st
}

// Cancel asks for confirmation and aborts the creation when the user
// confirms. It reports whether the creation was aborted.
func (c *Creator) Cancel(ctx context.Context) (bool, error) {
	abort, err := confirmCancel(ctx, c.interrupts)
	if err != nil || !abort {
		return false, err
	}

	c.mu.Lock()
	c.closed = true
	c.pad.clear()
	c.mu.Unlock()
	return true, nil
}
