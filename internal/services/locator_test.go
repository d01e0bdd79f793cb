package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tibiamarket/tracker/internal/models"
)

func newTestLocator() (*UILocator, *fakeMatcher, *fakeInput) {
	matcher := newFakeMatcher()
	input := &fakeInput{}
	l := NewUILocator(matcher, input)
	l.SetPollInterval(time.Millisecond)
	return l, matcher, input
}

func TestWaitForCachesRegion(t *testing.T) {
	l, matcher, _ := newTestLocator()
	region := models.ScreenRegion{Left: 10, Top: 10, Width: 20, Height: 20}
	matcher.show("market_icon", region)

	got, found, err := l.WaitFor(context.Background(), "market_icon", WaitOptions{Timeout: time.Second})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, region, got)
	assert.Equal(t, 1, matcher.calls["market_icon"])

	// moved on screen, but the cached position wins without a new match
	matcher.show("market_icon", models.ScreenRegion{Left: 500, Top: 500, Width: 20, Height: 20})
	got, found, err = l.WaitFor(context.Background(), "market_icon", WaitOptions{Timeout: time.Second})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, region, got)
	assert.Equal(t, 1, matcher.calls["market_icon"], "cache hit must not call the matcher")
}

func TestWaitForAfterInvalidate(t *testing.T) {
	l, matcher, _ := newTestLocator()
	first := models.ScreenRegion{Left: 10, Top: 10, Width: 20, Height: 20}
	moved := models.ScreenRegion{Left: 300, Top: 40, Width: 20, Height: 20}
	matcher.show("search_field", first)

	_, _, err := l.WaitFor(context.Background(), "search_field", WaitOptions{Timeout: time.Second})
	require.NoError(t, err)

	l.Invalidate()
	_, cached := l.Cached("search_field")
	assert.False(t, cached)

	matcher.show("search_field", moved)
	got, found, err := l.WaitFor(context.Background(), "search_field", WaitOptions{Timeout: time.Second})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, moved, got)
	assert.Equal(t, 2, matcher.calls["search_field"])
}

func TestWaitForSkipCache(t *testing.T) {
	l, matcher, _ := newTestLocator()
	matcher.show("depot_chest", models.ScreenRegion{Left: 1, Top: 1, Width: 5, Height: 5})

	for i := 0; i < 3; i++ {
		_, found, err := l.WaitFor(context.Background(), "depot_chest", WaitOptions{Timeout: time.Second, SkipCache: true})
		require.NoError(t, err)
		require.True(t, found)
	}
	assert.Equal(t, 3, matcher.calls["depot_chest"])
	_, cached := l.Cached("depot_chest")
	assert.False(t, cached, "skip-cache lookups must not fill the cache")
}

func TestWaitForTimeout(t *testing.T) {
	l, matcher, _ := newTestLocator()

	start := time.Now()
	region, found, err := l.WaitFor(context.Background(), "update", WaitOptions{Timeout: 20 * time.Millisecond})
	require.NoError(t, err, "timeout is not an error")
	assert.False(t, found)
	assert.True(t, region.IsZero())
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Greater(t, matcher.calls["update"], 1, "should poll more than once")
}

func TestWaitForPollsUntilVisible(t *testing.T) {
	l, matcher, _ := newTestLocator()
	matcher.show("equipment", models.ScreenRegion{Left: 3, Top: 4, Width: 5, Height: 6})
	matcher.appearAfter["equipment"] = 3

	_, found, err := l.WaitFor(context.Background(), "equipment", WaitOptions{Timeout: time.Second})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 4, matcher.calls["equipment"])
}

func TestWaitForClickOnFound(t *testing.T) {
	l, matcher, input := newTestLocator()
	matcher.show("play", models.ScreenRegion{Left: 100, Top: 200, Width: 40, Height: 20})

	_, found, err := l.WaitFor(context.Background(), "play", WaitOptions{Timeout: time.Second, ClickOnFound: true})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"click 120,210"}, input.actions)
}

func TestWaitForSafetyAbort(t *testing.T) {
	t.Run("from matcher", func(t *testing.T) {
		l, matcher, _ := newTestLocator()
		matcher.errs["play"] = models.ErrSafetyAbort

		_, _, err := l.WaitFor(context.Background(), "play", WaitOptions{Timeout: time.Second})
		assert.True(t, errors.Is(err, models.ErrSafetyAbort))
	})

	t.Run("from click", func(t *testing.T) {
		l, matcher, input := newTestLocator()
		matcher.show("play", models.ScreenRegion{Width: 10, Height: 10})
		input.abort = true

		_, _, err := l.WaitFor(context.Background(), "play", WaitOptions{Timeout: time.Second, ClickOnFound: true})
		assert.True(t, errors.Is(err, models.ErrSafetyAbort))
	})

	t.Run("other matcher errors keep polling", func(t *testing.T) {
		l, matcher, _ := newTestLocator()
		matcher.errs["play"] = errors.New("capture failed")

		_, found, err := l.WaitFor(context.Background(), "play", WaitOptions{Timeout: 10 * time.Millisecond})
		assert.NoError(t, err)
		assert.False(t, found)
	})
}

func TestWaitForContextCancelled(t *testing.T) {
	l, _, _ := newTestLocator()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, found, err := l.WaitFor(ctx, "update", WaitOptions{Timeout: time.Minute})
	assert.False(t, found)
	assert.ErrorIs(t, err, context.Canceled)
}
