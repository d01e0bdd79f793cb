package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tibiamarket/tracker/internal/metrics"
	"github.com/tibiamarket/tracker/internal/models"
)

// DefaultPollInterval is how often WaitFor re-scans the screen
const DefaultPollInterval = 200 * time.Millisecond

// WaitOptions controls a blocking WaitFor lookup
type WaitOptions struct {
	Timeout time.Duration
	// SkipCache forces a fresh match even when a position is cached, and
	// keeps the result out of the cache.
	SkipCache    bool
	ClickOnFound bool
}

// UILocator finds UI elements by template matching and remembers where it
// found them. Positions are assumed stable for the lifetime of one game
// session; the owning session calls Invalidate when it relaunches the game.
type UILocator struct {
	matcher      ScreenMatcher
	input        InputDriver
	pollInterval time.Duration
	cache        map[string]models.ScreenRegion
}

// NewUILocator creates a locator with an empty position cache
func NewUILocator(matcher ScreenMatcher, input InputDriver) *UILocator {
	return &UILocator{
		matcher:      matcher,
		input:        input,
		pollInterval: DefaultPollInterval,
		cache:        make(map[string]models.ScreenRegion),
	}
}

// SetPollInterval overrides the polling interval used by WaitFor
func (l *UILocator) SetPollInterval(d time.Duration) {
	if d > 0 {
		l.pollInterval = d
	}
}

// Locate performs a single best-effort match without touching the cache
func (l *UILocator) Locate(ref string) (models.ScreenRegion, bool, error) {
	return l.matcher.Locate(ref)
}

// LocateAll returns every match of a repeated UI element
func (l *UILocator) LocateAll(ref string) ([]models.ScreenRegion, error) {
	return l.matcher.LocateAll(ref)
}

// WaitFor polls until ref appears or the timeout elapses. A timeout is not an
// error: it yields ok == false and callers decide whether that is fatal.
// Errors are returned only for the safety abort and context cancellation.
func (l *UILocator) WaitFor(ctx context.Context, ref string, opts WaitOptions) (models.ScreenRegion, bool, error) {
	start := time.Now()

	if !opts.SkipCache {
		if region, ok := l.cache[ref]; ok {
			metrics.LocatorWaits.WithLabelValues("cached").Inc()
			return region, true, l.clickIfRequested(region, opts)
		}
	}

	deadline := start.Add(opts.Timeout)
	for {
		region, found, err := l.matcher.Locate(ref)
		if err != nil {
			if errors.Is(err, models.ErrSafetyAbort) {
				return models.ScreenRegion{}, false, err
			}
			log.Debug().Err(err).Str("ref", ref).Msg("Locator: match attempt failed")
		}

		if found {
			if !opts.SkipCache {
				l.cache[ref] = region
			}
			metrics.LocatorWaits.WithLabelValues("found").Inc()
			metrics.LocatorWaitDuration.Observe(time.Since(start).Seconds())
			return region, true, l.clickIfRequested(region, opts)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			metrics.LocatorWaits.WithLabelValues("timeout").Inc()
			log.Debug().Str("ref", ref).Dur("timeout", opts.Timeout).Msg("Locator: not found before timeout")
			return models.ScreenRegion{}, false, nil
		}

		wait := min(l.pollInterval, remaining)
		select {
		case <-ctx.Done():
			return models.ScreenRegion{}, false, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Click clicks the center of region
func (l *UILocator) Click(region models.ScreenRegion) error {
	x, y := region.Center()
	if err := l.input.Click(x, y); err != nil {
		return fmt.Errorf("click %s: %w", region, err)
	}
	return nil
}

func (l *UILocator) clickIfRequested(region models.ScreenRegion, opts WaitOptions) error {
	if !opts.ClickOnFound {
		return nil
	}
	return l.Click(region)
}

// Cached returns the remembered position of ref, if any
func (l *UILocator) Cached(ref string) (models.ScreenRegion, bool) {
	region, ok := l.cache[ref]
	return region, ok
}

// Invalidate forgets every cached position. Called on game relaunch only.
func (l *UILocator) Invalidate() {
	if len(l.cache) > 0 {
		log.Debug().Int("entries", len(l.cache)).Msg("Locator: position cache cleared")
	}
	l.cache = make(map[string]models.ScreenRegion)
}
