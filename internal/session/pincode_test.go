package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/authsession/internal/domain"
	"github.com/aussiebroadwan/authsession/internal/session"
	"github.com/stretchr/testify/require"
)

func TestPincodeRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, true)
	c := h.start(t)

	require.False(t, c.HasPincode(ctx))
	require.False(t, c.CheckPincode(ctx, []int{1, 2, 3, 4}), "no pincode set")

	require.NoError(t, c.SetPincode(ctx, []int{1, 2, 3, 4}))
	require.True(t, c.HasPincode(ctx))
	require.True(t, c.CheckPincode(ctx, []int{1, 2, 3, 4}))
	require.False(t, c.CheckPincode(ctx, []int{4, 3, 2, 1}))
	require.False(t, c.CheckPincode(ctx, []int{1, 2, 3}))

	hash, err := h.store.Pincode().GetHash(ctx)
	require.NoError(t, err)
	require.NotContains(t, hash, "1234")

	require.NoError(t, c.SetPincode(ctx, []int{9, 9, 9, 9}))
	require.False(t, c.CheckPincode(ctx, []int{1, 2, 3, 4}), "replaced pincode no longer matches")
	require.True(t, c.CheckPincode(ctx, []int{9, 9, 9, 9}))

	require.Error(t, c.SetPincode(ctx, []int{1, 12, 3, 4}))
	require.Error(t, c.SetPincode(ctx, nil))
}

func TestPincodeIsPeppered(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, true)

	a := h.start(t, func(cfg *session.Config) { cfg.Pepper = "first" })
	require.NoError(t, a.SetPincode(ctx, []int{1, 2, 3, 4}))

	b := h.start(t, func(cfg *session.Config) { cfg.Pepper = "second" })
	require.False(t, b.CheckPincode(ctx, []int{1, 2, 3, 4}))
}

func TestNeedsPincodePrompt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, true)
	c := h.start(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, c.SetPincode(ctx, []int{1, 2, 3, 4}))
	require.False(t, c.NeedsPincodePrompt(ctx, now), "no session, nothing to protect")

	require.NoError(t, c.LoginWithToken(ctx, h.idp.IssueToken(domain.UserToken, deviceID)))
	require.True(t, c.NeedsPincodePrompt(ctx, now), "never entered")

	require.NoError(t, c.MarkPincodeVerified(ctx, now))
	require.False(t, c.NeedsPincodePrompt(ctx, now.Add(time.Minute)))
	require.False(t, c.NeedsPincodePrompt(ctx, now.Add(session.DefaultPincodePromptAfter)))
	require.True(t, c.NeedsPincodePrompt(ctx, now.Add(session.DefaultPincodePromptAfter+time.Second)))
}

func TestNeedsPincodePromptCustomThreshold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, true)
	c := h.start(t, func(cfg *session.Config) { cfg.PincodePromptAfter = 10 * time.Second })
	now := time.Now()

	require.NoError(t, c.LoginWithToken(ctx, h.idp.IssueToken(domain.UserToken, deviceID)))
	require.False(t, c.NeedsPincodePrompt(ctx, now), "no pincode set")

	require.NoError(t, c.SetPincode(ctx, []int{0, 0, 0, 0}))
	require.NoError(t, c.MarkPincodeVerified(ctx, now))
	require.False(t, c.NeedsPincodePrompt(ctx, now.Add(5*time.Second)))
	require.True(t, c.NeedsPincodePrompt(ctx, now.Add(11*time.Second)))
}

func TestMarkPincodeVerifiedWithoutPincodeClearsTimestamp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, true)
	c := h.start(t)

	require.NoError(t, c.MarkPincodeVerified(ctx, time.Now()))
	_, err := h.store.Pincode().GetLastVerifiedAt(ctx)
	require.Error(t, err)
}

func TestLogoutResetsGate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, true)
	c := h.start(t)

	require.NoError(t, c.LoginWithToken(ctx, h.idp.IssueToken(domain.UserToken, deviceID)))
	require.NoError(t, c.SetPincode(ctx, []int{1, 2, 3, 4}))
	require.NoError(t, c.MarkPincodeVerified(ctx, time.Now()))
	require.NoError(t, h.store.Attempts().SetAttempts(ctx, string(domain.GateAuth), 2))

	require.NoError(t, c.Logout(ctx))

	require.False(t, c.HasPincode(ctx))
	n, err := h.store.Attempts().GetAttempts(ctx, string(domain.GateAuth))
	require.NoError(t, err)
	require.Zero(t, n)
	_, err = h.store.Pincode().GetLastVerifiedAt(ctx)
	require.Error(t, err)
}
