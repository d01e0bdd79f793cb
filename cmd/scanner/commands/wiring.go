package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tibiamarket/tracker/internal/config"
	"github.com/tibiamarket/tracker/internal/database"
	"github.com/tibiamarket/tracker/internal/desktop"
	"github.com/tibiamarket/tracker/internal/services"
)

// newOrchestrator wires the desktop adapters, the history store and the
// publisher around one market session. The returned func releases native
// resources.
func newOrchestrator(cfg config.Config) (*services.ScanOrchestrator, func(), error) {
	matcher, err := desktop.NewTemplateMatcher(cfg.ImagesDir, cfg.MatchThreshold)
	if err != nil {
		return nil, nil, fmt.Errorf("template matcher: %w", err)
	}
	recognizer, err := desktop.NewTesseractRecognizer(cfg.OCRLanguage)
	if err != nil {
		matcher.Close()
		return nil, nil, fmt.Errorf("ocr: %w", err)
	}
	cleanup := func() {
		matcher.Close()
		if err := recognizer.Close(); err != nil {
			log.Warn().Err(err).Msg("Scanner: failed to close OCR client")
		}
	}

	session := services.NewMarketSession(matcher, desktop.NewScreenCapture(), recognizer,
		desktop.NewRobotInput(), desktop.NewGameProcess())
	session.SetLayout(cfg.Layout)
	session.SetTiming(cfg.Timing.Session())
	session.SetDebugDir(cfg.DebugDir)

	orchestrator := services.NewScanOrchestrator(session, cfg.ScanOptions())

	// History is best effort; the CSV files stay the source of truth
	if err := database.Initialize(cfg.DBPath); err != nil {
		log.Warn().Err(err).Str("db", cfg.DBPath).Msg("Scanner: history database unavailable, recording CSV only")
	} else {
		store := services.NewQuoteStore(database.GetDB())
		if _, err := store.FailInterruptedRuns(); err != nil {
			log.Warn().Err(err).Msg("Scanner: failed to close interrupted runs")
		}
		orchestrator.SetRecorder(store)
	}

	if cfg.PublishResults {
		orchestrator.SetPublisher(services.NewGitPublisher(cfg.ResultsDir, cfg.GitRemote, cfg.GitBranch,
			services.SnapshotFile, services.HistoriesDir))
	}

	return orchestrator, cleanup, nil
}
