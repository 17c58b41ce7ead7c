package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	a, err := GenerateToken(TokenSize128)
	require.NoError(t, err)
	require.Len(t, a, 22)

	b, err := GenerateToken(TokenSize128)
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	_, err = GenerateToken(0)
	require.Error(t, err)
}

func TestFingerprintToken(t *testing.T) {
	t.Parallel()

	require.Empty(t, FingerprintToken(""))

	fp := FingerprintToken("bearer-token")
	require.Len(t, fp, 12)
	require.Equal(t, fp, FingerprintToken("bearer-token"))
	require.NotEqual(t, fp, FingerprintToken("bearer-token-2"))
}
