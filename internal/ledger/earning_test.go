package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestGetOrCreateIsIdempotent(t *testing.T) {
	tl := setupLedger(t)
	ctx := context.Background()
	a := tl.newAccount(t, "alice@example.com", 0)

	first, err := tl.earning.GetOrCreate(ctx, a.ID, "Survey A")
	require.NoError(t, err)
	assert.False(t, first.Submitted)
	assert.Equal(t, DefaultActivityPoints, first.PointsAwarded)
	assert.Nil(t, first.SubmittedAt)

	second, err := tl.earning.GetOrCreate(ctx, a.ID, "  Survey A ")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 0, tl.balance(t, a.ID), "first touch must not credit")
}

func TestGetOrCreateValidation(t *testing.T) {
	tl := setupLedger(t)
	ctx := context.Background()
	a := tl.newAccount(t, "alice@example.com", 0)

	_, err := tl.earning.GetOrCreate(ctx, a.ID, "   ")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = tl.earning.GetOrCreate(ctx, 999, "Survey A")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkSubmittedCreditsOnce(t *testing.T) {
	tl := setupLedger(t)
	ctx := context.Background()
	a := tl.newAccount(t, "alice@example.com", 0)

	res, err := tl.earning.MarkSubmitted(ctx, a.ID, "Survey A")
	require.NoError(t, err)
	assert.Equal(t, 20, res.Balance)
	assert.True(t, res.Record.Submitted)
	assert.NotNil(t, res.Record.SubmittedAt)

	_, err = tl.earning.MarkSubmitted(ctx, a.ID, "Survey A")
	require.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.True(t, IsBusiness(err))
	assert.Equal(t, 20, tl.balance(t, a.ID))
}

func TestMarkSubmittedConcurrent(t *testing.T) {
	tl := setupLedger(t)
	ctx := context.Background()
	a := tl.newAccount(t, "alice@example.com", 0)

	const n = 8
	errs := make([]error, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, errs[i] = tl.earning.MarkSubmitted(ctx, a.ID, "Survey A")
			return nil
		})
	}
	require.NoError(t, g.Wait())

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadySubmitted)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 20, tl.balance(t, a.ID))
}

func TestMarkSubmittedUsesConfiguredPoints(t *testing.T) {
	tl := setupLedger(t)
	ctx := context.Background()
	a := tl.newAccount(t, "alice@example.com", 0)

	el := NewEarningLedger(tl.db, tl.accounts, 35, discard)
	res, err := el.MarkSubmitted(ctx, a.ID, "Survey A")
	require.NoError(t, err)
	assert.Equal(t, 35, res.Record.PointsAwarded)
	assert.Equal(t, 35, res.Balance)
}

func TestMarkSubmittedKeepsExistingPoints(t *testing.T) {
	tl := setupLedger(t)
	ctx := context.Background()
	a := tl.newAccount(t, "alice@example.com", 0)

	_, err := tl.earning.GetOrCreate(ctx, a.ID, "Survey A")
	require.NoError(t, err)

	el := NewEarningLedger(tl.db, tl.accounts, 50, discard)
	res, err := el.MarkSubmitted(ctx, a.ID, "Survey A")
	require.NoError(t, err)
	assert.Equal(t, DefaultActivityPoints, res.Balance, "points are fixed when the record is created")
}

func TestMarkSubmittedMissingTitle(t *testing.T) {
	tl := setupLedger(t)
	a := tl.newAccount(t, "alice@example.com", 0)

	_, err := tl.earning.MarkSubmitted(context.Background(), a.ID, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSubmittedCountAndTitles(t *testing.T) {
	tl := setupLedger(t)
	ctx := context.Background()
	a := tl.newAccount(t, "alice@example.com", 0)
	b := tl.newAccount(t, "bob@example.com", 0)

	for _, title := range []string{"A", "B"} {
		_, err := tl.earning.MarkSubmitted(ctx, a.ID, title)
		require.NoError(t, err)
	}
	_, err := tl.earning.GetOrCreate(ctx, a.ID, "C")
	require.NoError(t, err)
	_, err = tl.earning.MarkSubmitted(ctx, b.ID, "A")
	require.NoError(t, err)

	n, err := tl.earning.SubmittedCount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	titles, err := tl.earning.ListSubmittedTitles(ctx, a.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B"}, titles)

	empty, err := tl.earning.ListSubmittedTitles(ctx, 999)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
