package services

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tibiamarket/tracker/internal/metrics"
	"github.com/tibiamarket/tracker/internal/models"
)

// Output file names inside the results directory
const (
	SnapshotFile    = "fullscan.txt"
	SnapshotTmpFile = "fullscan_tmp.txt"
	HistoriesDir    = "histories"
)

// DefaultRestartAfter keeps sessions under the game's idle kick
const DefaultRestartAfter = 800 * time.Second

// maxSessionStarts bounds how often a failed login is retried with a relaunch
const maxSessionStarts = 3

// RestartStrategy selects how a long-running session is refreshed
type RestartStrategy string

const (
	// RestartLight closes the market, nudges the character and reopens it
	RestartLight RestartStrategy = "light"
	// RestartRelaunch exits the client and goes through login again
	RestartRelaunch RestartStrategy = "relaunch"
)

// MarketClient is the part of MarketSession the orchestrator drives
type MarketClient interface {
	StartGame(ctx context.Context, executablePath string) error
	UpdateIfNeeded(ctx context.Context) error
	Login(ctx context.Context, creds models.Credentials) error
	OpenMarket(ctx context.Context, openDepotContainer bool) error
	SearchItem(ctx context.Context, name string) (models.MarketQuote, error)
	CloseMarket(ctx context.Context) error
	AntiIdle(ctx context.Context) error
	Exit(ctx context.Context) error
}

// ScanRecorder persists scan runs and observations besides the CSV files
type ScanRecorder interface {
	StartRun(run *models.ScanRun) error
	RecordQuote(scanID string, quote models.MarketQuote) error
	FinishRun(run *models.ScanRun) error
}

// Publisher ships finished results somewhere readers can fetch them
type Publisher interface {
	Publish(ctx context.Context, message string) error
}

// ScanOptions configures a full scan
type ScanOptions struct {
	ResultsDir       string
	TrackedItemsFile string
	GamePath         string
	Credentials      models.Credentials
	RestartAfter     time.Duration
	RestartStrategy  RestartStrategy
	WithApproxOffers bool
}

// ScanOrchestrator runs a full pass over the tracked items. A scan that dies
// part way leaves fullscan_tmp.txt behind and the next run resumes from it.
type ScanOrchestrator struct {
	client    MarketClient
	opts      ScanOptions
	recorder  ScanRecorder
	publisher Publisher
	now       func() time.Time
}

// NewScanOrchestrator creates an orchestrator. Recorder and publisher are optional.
func NewScanOrchestrator(client MarketClient, opts ScanOptions) *ScanOrchestrator {
	if opts.RestartAfter <= 0 {
		opts.RestartAfter = DefaultRestartAfter
	}
	if opts.RestartStrategy == "" {
		opts.RestartStrategy = RestartLight
	}
	return &ScanOrchestrator{
		client: client,
		opts:   opts,
		now:    time.Now,
	}
}

// SetRecorder stores runs and quotes in addition to the CSV output
func (o *ScanOrchestrator) SetRecorder(r ScanRecorder) {
	o.recorder = r
}

// SetPublisher publishes results after each completed scan
func (o *ScanOrchestrator) SetPublisher(p Publisher) {
	o.publisher = p
}

// Run performs one full scan. The returned run is filled in even when the
// scan fails.
func (o *ScanOrchestrator) Run(ctx context.Context) (*models.ScanRun, error) {
	run := &models.ScanRun{
		ID:        uuid.New().String(),
		StartedAt: o.now(),
		Status:    models.ScanRunning,
	}
	o.startRun(run)

	err := o.scan(ctx, run)

	finished := o.now()
	run.FinishedAt = &finished
	if err != nil {
		run.Status = models.ScanFailed
		run.Error = err.Error()
	} else {
		run.Status = models.ScanCompleted
		metrics.ScanDuration.Observe(finished.Sub(run.StartedAt).Seconds())
	}
	o.finishRun(run)
	return run, err
}

func (o *ScanOrchestrator) scan(ctx context.Context, run *models.ScanRun) error {
	items, err := ReadTrackedItems(o.opts.TrackedItemsFile)
	if err != nil {
		return err
	}

	tmpPath := filepath.Join(o.opts.ResultsDir, SnapshotTmpFile)
	finalPath := filepath.Join(o.opts.ResultsDir, SnapshotFile)
	historyDir := filepath.Join(o.opts.ResultsDir, HistoriesDir)
	if err := os.MkdirAll(historyDir, 0755); err != nil {
		return fmt.Errorf("create results directory: %w", err)
	}

	out, err := openSnapshot(tmpPath, o.opts.WithApproxOffers)
	if err != nil {
		return err
	}
	defer out.Close()

	run.Resumed = out.scanned > 0
	if run.Resumed {
		log.Info().Int("scanned", out.scanned).Int("total", len(items)).Msg("Scanner: resuming partial scan")
	}
	metrics.ScanProgress.Set(float64(out.scanned))

	if out.scanned < len(items) {
		if err := o.startSession(ctx); err != nil {
			return err
		}
		sessionStart := o.now()

		for i, item := range items {
			if i < out.scanned {
				continue
			}

			if o.now().Sub(sessionStart) > o.opts.RestartAfter {
				if err := o.restart(ctx); err != nil {
					return err
				}
				run.Restarts++
				sessionStart = o.now()
			}

			quote, err := o.client.SearchItem(ctx, item)
			if err != nil {
				return fmt.Errorf("search %q: %w", item, err)
			}
			log.Info().Int("index", i).Str("item", quote.Name).Int("sell", quote.SellOffer).
				Int("buy", quote.BuyOffer).Int("profit", quote.Profit).Msg("Scanner: item scanned")

			if err := out.write(quote.CSVRecord(out.withApprox)); err != nil {
				return err
			}
			if err := appendHistory(historyDir, quote, out.withApprox); err != nil {
				log.Error().Err(err).Str("item", quote.Name).Msg("Scanner: failed to append history")
			}
			o.recordQuote(run.ID, quote)

			run.Items++
			if !quote.Valid() {
				run.Unreadable++
			}
			metrics.ScanProgress.Set(float64(i + 1))
		}

		if err := o.client.Exit(ctx); err != nil {
			if errors.Is(err, models.ErrSafetyAbort) {
				return err
			}
			log.Warn().Err(err).Msg("Scanner: game exit failed")
		}
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	log.Info().Str("path", finalPath).Int("items", len(items)).Int("unreadable", run.Unreadable).Msg("Scanner: snapshot replaced")

	o.publish(ctx, run)
	return nil
}

// startSession launches and logs in, relaunching on navigation failures.
// Market-open failure and the safety abort are returned immediately.
func (o *ScanOrchestrator) startSession(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= maxSessionStarts; attempt++ {
		if attempt > 1 {
			if err := o.client.Exit(ctx); err != nil && errors.Is(err, models.ErrSafetyAbort) {
				return err
			}
		}

		err := o.launch(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, models.ErrSafetyAbort) || errors.Is(err, models.ErrMarketUnavailable) || ctx.Err() != nil {
			return err
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Msg("Scanner: session start failed, relaunching")
	}
	return fmt.Errorf("start session after %d attempts: %w", maxSessionStarts, lastErr)
}

func (o *ScanOrchestrator) launch(ctx context.Context) error {
	if err := o.client.StartGame(ctx, o.opts.GamePath); err != nil {
		return err
	}
	if err := o.client.UpdateIfNeeded(ctx); err != nil {
		return err
	}
	if err := o.client.Login(ctx, o.opts.Credentials); err != nil {
		return err
	}
	return o.client.OpenMarket(ctx, true)
}

func (o *ScanOrchestrator) restart(ctx context.Context) error {
	if o.opts.RestartStrategy == RestartLight {
		err := o.lightRestart(ctx)
		if err == nil {
			metrics.SessionRestartsTotal.WithLabelValues(string(RestartLight)).Inc()
			log.Info().Msg("Scanner: session refreshed")
			return nil
		}
		if errors.Is(err, models.ErrSafetyAbort) || ctx.Err() != nil {
			return err
		}
		log.Warn().Err(err).Msg("Scanner: light restart failed, relaunching game")
	}

	metrics.SessionRestartsTotal.WithLabelValues(string(RestartRelaunch)).Inc()
	if err := o.client.Exit(ctx); err != nil && errors.Is(err, models.ErrSafetyAbort) {
		return err
	}
	if err := o.startSession(ctx); err != nil {
		return err
	}
	log.Info().Msg("Scanner: game relaunched")
	return nil
}

func (o *ScanOrchestrator) lightRestart(ctx context.Context) error {
	if err := o.client.CloseMarket(ctx); err != nil {
		return err
	}
	if err := o.client.AntiIdle(ctx); err != nil {
		return err
	}
	return o.client.OpenMarket(ctx, false)
}

func (o *ScanOrchestrator) publish(ctx context.Context, run *models.ScanRun) {
	if o.publisher == nil {
		return
	}
	msg := fmt.Sprintf("Market scan %s (%d items)", o.now().UTC().Format("2006-01-02 15:04"), run.Items)
	if err := o.publisher.Publish(ctx, msg); err != nil {
		metrics.PublishTotal.WithLabelValues("failed").Inc()
		log.Error().Err(err).Msg("Scanner: publishing results failed")
		return
	}
	metrics.PublishTotal.WithLabelValues("success").Inc()
	log.Info().Msg("Scanner: results published")
}

func (o *ScanOrchestrator) startRun(run *models.ScanRun) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.StartRun(run); err != nil {
		log.Error().Err(err).Str("scan_id", run.ID).Msg("Scanner: failed to record scan start")
	}
}

func (o *ScanOrchestrator) recordQuote(scanID string, quote models.MarketQuote) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordQuote(scanID, quote); err != nil {
		log.Error().Err(err).Str("item", quote.Name).Msg("Scanner: failed to store quote")
	}
}

func (o *ScanOrchestrator) finishRun(run *models.ScanRun) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.FinishRun(run); err != nil {
		log.Error().Err(err).Str("scan_id", run.ID).Msg("Scanner: failed to record scan result")
	}
}

// ReadTrackedItems reads the newline-delimited item list. Blank lines are
// dropped so row counts in a partial snapshot map directly to list indices.
func ReadTrackedItems(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tracked items: %w", err)
	}
	defer f.Close()

	var items []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name != "" {
			items = append(items, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read tracked items: %w", err)
	}
	return items, nil
}

// CountScannedRows returns the number of data rows in a partial snapshot,
// not counting the header or blank lines. A missing file has zero rows.
func CountScannedRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open partial snapshot: %w", err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			lines++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read partial snapshot: %w", err)
	}
	if lines == 0 {
		return 0, nil
	}
	return lines - 1, nil
}

// snapshotWriter appends rows to the in-progress snapshot, flushing each one
type snapshotWriter struct {
	file       *os.File
	csv        *csv.Writer
	scanned    int
	withApprox bool
	closed     bool
}

// openSnapshot opens tmpPath for appending when it holds a partial scan and
// creates it with a header otherwise. A resumed file keeps its own schema.
func openSnapshot(tmpPath string, withApprox bool) (*snapshotWriter, error) {
	scanned, err := CountScannedRows(tmpPath)
	if err != nil {
		return nil, err
	}

	header, err := readHeader(tmpPath)
	if err != nil {
		return nil, err
	}

	if header == nil {
		f, err := os.Create(tmpPath)
		if err != nil {
			return nil, fmt.Errorf("create snapshot: %w", err)
		}
		w := &snapshotWriter{file: f, csv: csv.NewWriter(f), withApprox: withApprox}
		if err := w.write(models.Header(withApprox)); err != nil {
			f.Close()
			return nil, err
		}
		return w, nil
	}

	fileApprox := len(header) > len(models.SnapshotHeader)
	if fileApprox != withApprox {
		log.Warn().Bool("file_approx_offers", fileApprox).Msg("Scanner: partial snapshot uses a different schema, keeping it")
	}

	f, err := os.OpenFile(tmpPath, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open snapshot for append: %w", err)
	}
	return &snapshotWriter{file: f, csv: csv.NewWriter(f), scanned: scanned, withApprox: fileApprox}, nil
}

// readHeader returns the first line of path split on commas, or nil when the
// file is missing or empty
func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open partial snapshot: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return nil, scanner.Err()
	}
	line := strings.TrimSpace(scanner.Text())
	if line == "" {
		return nil, nil
	}
	return strings.Split(line, ","), nil
}

func (w *snapshotWriter) write(record []string) error {
	if err := w.csv.Write(record); err != nil {
		return fmt.Errorf("write snapshot row: %w", err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("flush snapshot row: %w", err)
	}
	return nil
}

func (w *snapshotWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// HistoryPath returns the history file of an item inside dir
func HistoryPath(dir, name string) string {
	file := strings.NewReplacer("/", "_", "\\", "_").Replace(strings.ToLower(strings.TrimSpace(name)))
	return filepath.Join(dir, file+".txt")
}

func appendHistory(dir string, quote models.MarketQuote, withApprox bool) error {
	f, err := os.OpenFile(HistoryPath(dir, quote.Name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(quote.HistoryRecord(withApprox)); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
