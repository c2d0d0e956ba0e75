package crawler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetchErrorMatchesSentinelAndCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := error(&FetchError{URL: "https://example.com/s?q=1", Page: 3, Err: cause})

	require.ErrorIs(t, err, ErrFetch)
	require.ErrorIs(t, err, cause)
	require.Equal(t, "fetch https://example.com/s?q=1 page 3: connection reset", err.Error())
}

func TestOutcomeErrorFlag(t *testing.T) {
	t.Parallel()

	require.False(t, OutcomeProgressed.ErrorFlag())
	require.True(t, OutcomeExhausted.ErrorFlag())
	require.True(t, OutcomeFailed.ErrorFlag())
	require.True(t, OutcomeFailed.Valid())
	require.False(t, Outcome("paused").Valid())
	require.Equal(t, OutcomeFailed, OutcomeFromFlag(true))
	require.Equal(t, OutcomeProgressed, OutcomeFromFlag(false))
}

func TestValidStatus(t *testing.T) {
	t.Parallel()

	require.True(t, ValidStatus(0))
	require.True(t, ValidStatus(4))
	require.False(t, ValidStatus(5))
	require.False(t, ValidStatus(-1))
}
