package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsSerializationFailure(t *testing.T) {
	require.True(t, IsSerializationFailure(&pgconn.PgError{Code: "40001"}))
	require.True(t, IsSerializationFailure(fmt.Errorf("update output: %w", &pgconn.PgError{Code: "40P01"})))
	require.False(t, IsSerializationFailure(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsSerializationFailure(errors.New("boom")))
	require.False(t, IsSerializationFailure(nil))
}

func TestRetrySerializableRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := RetrySerializable(context.Background(), 3, func() error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetrySerializableGivesUp(t *testing.T) {
	calls := 0
	err := RetrySerializable(context.Background(), 2, func() error {
		calls++
		return &pgconn.PgError{Code: "40001"}
	})
	require.True(t, IsSerializationFailure(err))
	require.Equal(t, 2, calls)
}

func TestRetrySerializableStopsOnOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := RetrySerializable(context.Background(), 5, func() error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}

func TestRetrySerializableStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := RetrySerializable(ctx, 5, func() error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}
