package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tibiamarket/tracker/internal/models"
)

// DefaultScanInterval is how often the scheduler starts a full scan
const DefaultScanInterval = 6 * time.Hour

// ScanRunner performs one full scan
type ScanRunner interface {
	Run(ctx context.Context) (*models.ScanRun, error)
}

// ScanWorker runs full scans on a fixed interval
type ScanWorker struct {
	runner         ScanRunner
	updateInterval time.Duration
	mu             sync.RWMutex

	lastRun     *models.ScanRun
	nextRunTime time.Time
	runsToday   int
	lastDay     time.Time
}

// ScanStatus summarises the scheduler for logs and diagnostics
type ScanStatus struct {
	LastRun     *models.ScanRun `json:"last_run,omitempty"`
	NextRunTime time.Time       `json:"next_run_time"`
	RunsToday   int             `json:"runs_today"`
	Interval    string          `json:"interval"`
}

func NewScanWorker(runner ScanRunner, interval time.Duration) *ScanWorker {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	return &ScanWorker{
		runner:         runner,
		updateInterval: interval,
	}
}

// IsFatal reports errors that must stop the scheduler: the operator's
// emergency stop and a market that cannot be opened
func IsFatal(err error) bool {
	return errors.Is(err, models.ErrSafetyAbort) || errors.Is(err, models.ErrMarketUnavailable)
}

// Start runs a scan immediately and then every interval until ctx is done.
// It returns early only for fatal scan errors.
func (w *ScanWorker) Start(ctx context.Context) error {
	log.Info().Dur("interval", w.updateInterval).Msg("Scan worker started")

	if err := w.runOnce(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(w.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Scan worker stopping...")
			return nil
		case <-ticker.C:
			if err := w.runOnce(ctx); err != nil {
				return err
			}
		}
	}
}

func (w *ScanWorker) runOnce(ctx context.Context) error {
	w.setNextRun(time.Now().Add(w.updateInterval))

	run, err := w.runner.Run(ctx)
	w.recordRun(run)

	if err != nil {
		if IsFatal(err) {
			log.Error().Err(err).Msg("Scan worker: fatal scan error")
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		// the partial snapshot stays; the next run resumes from it
		log.Error().Err(err).Msg("Scan worker: scan failed, will resume next run")
		return nil
	}

	if run != nil {
		log.Info().Str("scan_id", run.ID).Int("items", run.Items).Int("unreadable", run.Unreadable).
			Int("restarts", run.Restarts).Msg("Scan worker: scan completed")
	}
	return nil
}

func (w *ScanWorker) setNextRun(t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextRunTime = t
}

func (w *ScanWorker) recordRun(run *models.ScanRun) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if w.lastDay.Before(today) {
		w.runsToday = 0
		w.lastDay = today
	}
	w.runsToday++
	if run != nil {
		w.lastRun = run
	}
}

// GetStatus returns the scheduler state
func (w *ScanWorker) GetStatus() ScanStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return ScanStatus{
		LastRun:     w.lastRun,
		NextRunTime: w.nextRunTime,
		RunsToday:   w.runsToday,
		Interval:    w.updateInterval.String(),
	}
}
