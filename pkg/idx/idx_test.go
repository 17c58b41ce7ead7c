package idx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/authsession/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestNewAndParse(t *testing.T) {
	t.Parallel()

	id := idx.New()
	require.False(t, id.IsZero())

	parsed, err := idx.Parse(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestNewDeviceID(t *testing.T) {
	t.Parallel()

	a := idx.NewDeviceID()
	b := idx.NewDeviceID()
	require.NotEqual(t, a, b)
	require.Equal(t, strings.ToLower(a), a)

	// device ids round-trip through Parse despite the case change
	_, err := idx.Parse(a)
	require.NoError(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "   ", "not-a-ulid", "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3Z"} {
		_, err := idx.Parse(s)
		require.ErrorIs(t, err, idx.ErrInvalid, s)
	}
}

func TestTimeExtraction(t *testing.T) {
	t.Parallel()

	tm := time.Unix(1700000000, 0).UTC()
	id := idx.NewAt(tm)
	require.WithinDuration(t, tm, id.Time(), time.Millisecond)
	require.True(t, idx.ID("bogus").Time().IsZero())
}
