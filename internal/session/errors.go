package session

import (
	"fmt"

	"github.com/aussiebroadwan/authsession/internal/domain"
	"github.com/aussiebroadwan/authsession/internal/identityapi"
)

// classify wraps a backend error into the session error taxonomy while
// keeping the original in the chain.
func classify(op string, err error) error {
	if identityapi.IsUnauthorized(err) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrUnauthorized, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrTransient, err)
}
