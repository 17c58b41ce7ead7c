package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/authsession/internal/domain"
	"github.com/aussiebroadwan/authsession/internal/store"
	"github.com/aussiebroadwan/authsession/pkg/cryptox"
)

// HasPincode reports whether a pincode hash is stored.
func (c *Coordinator) HasPincode(ctx context.Context) bool {
	_, err := c.store.Pincode().GetHash(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		c.logger.Error("failed to read pincode hash", "error", err)
	}
	return err == nil
}

// SetPincode stores a one-way hash of digits, replacing any previous code.
func (c *Coordinator) SetPincode(ctx context.Context, digits []int) error {
	hash, err := cryptox.HashPincode(digits, c.pepper)
	if err != nil {
		return fmt.Errorf("hash pincode: %w", err)
	}
	if err := c.store.Pincode().SetHash(ctx, hash); err != nil {
		return fmt.Errorf("store pincode: %w", err)
	}
	return nil
}

// CheckPincode reports whether digits match the stored pincode. It is
// false when no pincode is set.
func (c *Coordinator) CheckPincode(ctx context.Context, digits []int) bool {
	hash, err := c.store.Pincode().GetHash(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Error("failed to read pincode hash", "error", err)
		}
		return false
	}
	return cryptox.VerifyPincode(digits, hash, c.pepper)
}

// MarkPincodeVerified records a successful entry at now. Without a stored
// pincode the timestamp is removed instead.
func (c *Coordinator) MarkPincodeVerified(ctx context.Context, now time.Time) error {
	if !c.HasPincode(ctx) {
		return c.store.Pincode().ClearLastVerifiedAt(ctx)
	}
	return c.store.Pincode().SetLastVerifiedAt(ctx, now)
}

// NeedsPincodePrompt reports whether the gate must be shown: a pincode is
// set, a session exists and the last entry is missing or older than the
// prompt threshold.
func (c *Coordinator) NeedsPincodePrompt(ctx context.Context, now time.Time) bool {
	if c.State() == domain.NotAuthorized || !c.HasPincode(ctx) {
		return false
	}

	last, err := c.store.Pincode().GetLastVerifiedAt(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Error("failed to read pincode verification time", "error", err)
		}
		return true
	}
	return now.Sub(last) > c.promptAfter
}

// clearPincode drops the hash, the last entry time and every attempt counter.
func (c *Coordinator) clearPincode(ctx context.Context) error {
	return c.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Pincode().ClearHash(ctx); err != nil {
			return fmt.Errorf("clear pincode: %w", err)
		}
		for _, flow := range domain.GateFlows {
			if err := tx.Attempts().SetAttempts(ctx, string(flow), 0); err != nil {
				return fmt.Errorf("reset %s attempts: %w", flow, err)
			}
		}
		return nil
	})
}
