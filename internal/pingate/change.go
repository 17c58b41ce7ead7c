package pingate

import (
	"context"
	"sync"

	"github.com/aussiebroadwan/authsession/internal/domain"
)

// ChangeConfig configures a Changer. Checker and OnCreated are required.
type ChangeConfig struct {
	Length     int
	Checker    Checker
	OnCreated  CreatedFunc
	Interrupts domain.InterruptHandler

	// OnWrongOld is called for every wrong old pincode. Wrong old codes do
	// not count towards the entry gate's attempt limit.
	OnWrongOld func()
}

// Changer re-authenticates with the current pincode and then runs a
// Creator for the new one.
type Changer struct {
	cfg ChangeConfig

	mu      sync.Mutex
	pad     pad
	creator *Creator
	closed  bool
}

func NewChanger(cfg ChangeConfig) *Changer {
	return &Changer{cfg: cfg, pad: newPad(cfg.Length)}
}

// Press adds a digit to the old pincode, or to the new one once the old
// pincode was accepted.
func (c *Changer) Press(ctx context.Context, digit int) (Step, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return StepAborted, domain.ErrGateClosed
	}
	if cr := c.creator; cr != nil {
		c.mu.Unlock()
		return cr.Press(ctx, digit)
	}
	defer c.mu.Unlock()

	full, err := c.pad.add(digit)
	if err != nil || !full {
		return StepInput, err
	}

	digits := c.pad.digits()
	c.pad.clear()
	if !c.cfg.Checker.CheckPincode(ctx, digits) {
		if c.cfg.OnWrongOld != nil {
			c.cfg.OnWrongOld()
		}
		return StepMismatch, domain.ErrPincodeMismatch
	}

	c.creator = NewCreator(CreateConfig{
		Length:     c.pad.length,
		OnCreated:  c.cfg.OnCreated,
		Interrupts: c.cfg.Interrupts,
	})
	return StepAccepted, nil
}

// Delete removes the last digit of the current entry.
func (c *Changer) Delete() {
	c.mu.Lock()
	cr := c.creator
	if cr == nil {
		c.pad.removeLast()
	}
	c.mu.Unlock()

	if cr != nil {
		cr.Delete()
	}
}

// Cancel asks for confirmation and abandons the change when the user
// confirms. Once the old pincode was accepted this cancels the creation.
func (c *Changer) Cancel(ctx context.Context) (bool, error) {
	c.mu.Lock()
	cr := c.creator
	c.mu.Unlock()
	if cr != nil {
		return cr.Cancel(ctx)
	}

	abort, err := confirmCancel(ctx, c.cfg.Interrupts)
	if err != nil || !abort {
		return false, err
	}

	c.mu.Lock()
	c.closed = true
	c.pad.clear()
	c.mu.Unlock()
	return true, nil
}

// Creator returns the new pincode flow, or nil until the old pincode was
// accepted.
func (c *Changer) Creator() *Creator {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creator
}

// State returns the digits of the current entry.
func (c *Changer) State() State {
	c.mu.Lock()
	cr := c.creator
	st := c.pad.state()
	c.mu.Unlock()

	if cr != nil {
		return cr.State()
	}
	return st
}
