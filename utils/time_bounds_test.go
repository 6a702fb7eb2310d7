package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStartOfDayTruncatesToMidnightUTC(t *testing.T) {
	in := time.Date(2026, 3, 10, 14, 35, 9, 123, time.UTC)
	require.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), StartOfDay(in))
	require.Equal(t, StartOfDay(in), StartOfDay(StartOfDay(in)))
}

func TestEndOfDayExclusiveIsNextMidnight(t *testing.T) {
	in := time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC)
	require.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), EndOfDayExclusive(in))
}

func TestMonthBoundsAreHalfOpen(t *testing.T) {
	start, end := MonthBounds(2026, 2)
	require.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), end)

	// December rolls into the next year
	start, end = MonthBounds(2025, 12)
	require.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestDereferencePtrDefaults(t *testing.T) {
	require.Equal(t, 5, DereferencePtr(Ptr(5)))
	require.Equal(t, 0, DereferencePtr[int](nil))
	require.Equal(t, 9, DereferencePtr(nil, 9))
}
