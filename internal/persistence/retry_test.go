package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/refmd-collab/docserver/internal/apperr"
)

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	v, err := withRetry(context.Background(), func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, apperr.Wrap(apperr.PersistenceTransient, errors.New("connection reset"))
		}
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.Equal(t, 2, attempts)
}

func TestWithRetryStopsImmediatelyOnNonTransientError(t *testing.T) {
	attempts := 0
	_, err := withRetry(context.Background(), func() (int, error) {
		attempts++
		return 0, apperr.New(apperr.NotFound, "no such row")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
	require.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestWithRetryGivesUpAfterMaxTries(t *testing.T) {
	attempts := 0
	_, err := withRetry(context.Background(), func() (int, error) {
		attempts++
		return 0, apperr.Wrap(apperr.PersistenceTransient, errors.New("still down"))
	})
	require.Error(t, err)
	require.Equal(t, 3, attempts)
}
