package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rodniegwapo/techiko-pos-sub001/internal/shared"
)

func TestCheckReportsShortfalls(t *testing.T) {
	repo := newMemoryRepo()
	repo.positions[positionKey(1, 1)] = Position{ProductID: 1, LocationID: 1, OnHand: dec("10"), Reserved: dec("4"), Version: 1}
	repo.positions[positionKey(2, 1)] = Position{ProductID: 2, LocationID: 1, OnHand: dec("3"), Version: 1}
	repo.names[1] = "Arabica Beans"
	repo.names[2] = "Paper Cups"

	checker := NewChecker(repo, nil)
	shortfalls, err := checker.Check(context.Background(), 1, []AvailabilityLine{
		{ProductID: 1, Quantity: dec("6")},
		{ProductID: 2, Quantity: dec("5")},
		{ProductID: 3, Quantity: dec("1")},
	})
	require.NoError(t, err)
	require.Len(t, shortfalls, 2)

	require.Equal(t, int64(2), shortfalls[0].ProductID)
	require.Equal(t, "Paper Cups", shortfalls[0].ProductName)
	require.True(t, shortfalls[0].AvailableQuantity.Equal(dec("3")))
	require.True(t, shortfalls[0].RequestedQuantity.Equal(dec("5")))

	require.Equal(t, int64(3), shortfalls[1].ProductID)
	require.True(t, shortfalls[1].AvailableQuantity.IsZero(), "unknown product counts as zero available")
}

func TestCheckPassesWhenAvailableCovers(t *testing.T) {
	repo := newMemoryRepo()
	repo.positions[positionKey(1, 1)] = Position{ProductID: 1, LocationID: 1, OnHand: dec("10"), Reserved: dec("4"), Version: 1}

	checker := NewChecker(repo, nil)
	shortfalls, err := checker.Check(context.Background(), 1, []AvailabilityLine{{ProductID: 1, Quantity: dec("6")}})
	require.NoError(t, err)
	require.Empty(t, shortfalls, "available is on-hand minus reserved")
}

func TestCheckValidation(t *testing.T) {
	checker := NewChecker(newMemoryRepo(), nil)

	_, err := checker.Check(context.Background(), 0, []AvailabilityLine{{ProductID: 1, Quantity: dec("1")}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = checker.Check(context.Background(), 1, []AvailabilityLine{{ProductID: 1, Quantity: dec("0")}})
	require.ErrorIs(t, err, shared.ErrValidation)

	shortfalls, err := checker.Check(context.Background(), 1, nil)
	require.NoError(t, err)
	require.Empty(t, shortfalls)
}
