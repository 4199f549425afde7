package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMockableDefaultsToRealTime(t *testing.T) {
	c := New()
	before := time.Now()
	got := c.Now()
	after := time.Now()
	require.True(t, !got.Before(before) && !got.After(after))
}

func TestMockableSetAndAdvance(t *testing.T) {
	c := New()
	base := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC) // a Saturday
	c.Set(base)
	require.Equal(t, base, c.Now())

	c.Advance(24 * time.Hour)
	require.Equal(t, base.Add(24*time.Hour), c.Now())
}
