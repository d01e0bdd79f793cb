package services

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tibiamarket/tracker/internal/metrics"
	"github.com/tibiamarket/tracker/internal/models"
)

// MarketSession drives one game client from launch to the open market and
// reads item quotes off the market window. It is not safe for concurrent
// use: there is one pointer and one game window.
type MarketSession struct {
	locator      *UILocator
	capturer     ScreenCapturer
	recognizer   TextRecognizer
	preprocessor *ImagePreprocessor
	input        InputDriver
	process      ProcessLauncher

	layout SessionLayout
	timing SessionTiming

	state models.SessionState
	tab   models.MarketTab

	// debugDir receives PNG dumps of fields OCR could not read
	debugDir string
	now      func() time.Time
}

// NewMarketSession wires a session around the desktop capabilities. The
// locator and its position cache belong to this session alone.
func NewMarketSession(matcher ScreenMatcher, capturer ScreenCapturer, recognizer TextRecognizer, input InputDriver, process ProcessLauncher) *MarketSession {
	return &MarketSession{
		locator:      NewUILocator(matcher, input),
		capturer:     capturer,
		recognizer:   recognizer,
		preprocessor: NewImagePreprocessor(),
		input:        input,
		process:      process,
		layout:       DefaultSessionLayout(),
		timing:       DefaultSessionTiming(),
		state:        models.StateNotStarted,
		tab:          models.TabOffers,
		now:          time.Now,
	}
}

// SetLayout replaces the reference image layout
func (s *MarketSession) SetLayout(layout SessionLayout) {
	s.layout = layout
}

// SetTiming replaces the session waits
func (s *MarketSession) SetTiming(timing SessionTiming) {
	s.timing = timing
}

// SetDebugDir enables PNG dumps of unreadable fields
func (s *MarketSession) SetDebugDir(dir string) {
	s.debugDir = dir
}

// Locator exposes the session's locator
func (s *MarketSession) Locator() *UILocator {
	return s.locator
}

// State returns the current lifecycle state
func (s *MarketSession) State() models.SessionState {
	return s.state
}

// Tab returns the market panel believed to be visible
func (s *MarketSession) Tab() models.MarketTab {
	return s.tab
}

// StartGame launches the client. Cached positions are dropped first because
// a new window may be placed differently.
func (s *MarketSession) StartGame(ctx context.Context, executablePath string) error {
	s.locator.Invalidate()
	s.state = models.StateLaunching
	s.tab = models.TabOffers

	log.Info().Str("path", executablePath).Msg("Session: launching game client")
	if err := s.process.Start(ctx, executablePath); err != nil {
		return fmt.Errorf("start game: %w", err)
	}
	if err := sleepContext(ctx, s.timing.LaunchSettle); err != nil {
		return err
	}

	s.state = models.StateUpdating
	return nil
}

// UpdateIfNeeded applies a pending client update when the launcher offers one
func (s *MarketSession) UpdateIfNeeded(ctx context.Context) error {
	_, found, err := s.locator.WaitFor(ctx, s.layout.Update, WaitOptions{
		Timeout:      s.timing.ShortWait,
		SkipCache:    true,
		ClickOnFound: true,
	})
	if err != nil {
		return err
	}

	if found {
		log.Info().Msg("Session: client update started")
		_, found, err = s.locator.WaitFor(ctx, s.layout.Play, WaitOptions{
			Timeout:      s.timing.UpdateWait,
			SkipCache:    true,
			ClickOnFound: true,
		})
		if err != nil {
			return err
		}
		if !found {
			return notFound(s.layout.Play)
		}
		log.Info().Msg("Session: client update finished")
	}

	s.state = models.StateLogin
	return nil
}

// Login enters the credentials, picks the character and waits until the
// character is in game. A missing email field is expected when the client
// remembers the account.
func (s *MarketSession) Login(ctx context.Context, creds models.Credentials) error {
	s.state = models.StateLogin

	_, found, err := s.locator.WaitFor(ctx, s.layout.PasswordField, WaitOptions{
		Timeout:      s.timing.LoginWait,
		ClickOnFound: true,
	})
	if err != nil {
		return err
	}
	if !found {
		return notFound(s.layout.PasswordField)
	}
	if err := s.input.TypeText(creds.Password); err != nil {
		return fmt.Errorf("type password: %w", err)
	}

	_, found, err = s.locator.WaitFor(ctx, s.layout.EmailField, WaitOptions{
		Timeout:      s.timing.ShortWait,
		ClickOnFound: true,
	})
	if err != nil {
		return err
	}
	if found {
		if err := s.input.TypeText(creds.Email); err != nil {
			return fmt.Errorf("type email: %w", err)
		}
	} else {
		log.Info().Msg("Session: email field not shown, using remembered account")
	}

	if err := s.input.KeyTap("enter"); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}

	character, found, err := s.locator.WaitFor(ctx, s.layout.Character, WaitOptions{
		Timeout:   s.timing.LoginWait,
		SkipCache: true,
	})
	if err != nil {
		return err
	}
	if !found {
		return notFound(s.layout.Character)
	}
	x, y := character.Center()
	if err := s.input.DoubleClick(x, y); err != nil {
		return fmt.Errorf("select character: %w", err)
	}

	_, found, err = s.locator.WaitFor(ctx, s.layout.InGame, WaitOptions{
		Timeout:   s.timing.LoginWait,
		SkipCache: true,
	})
	if err != nil {
		return err
	}
	if !found {
		return notFound(s.layout.InGame)
	}

	log.Info().Msg("Session: logged in")
	s.state = models.StateInGameNoMarket
	return nil
}

// OpenMarket opens the market window. When a depot is already open the
// market icon is used directly; otherwise, if openDepotContainer is set,
// every visible depot tile is tried in turn. Returns
// models.ErrMarketUnavailable when nothing works.
func (s *MarketSession) OpenMarket(ctx context.Context, openDepotContainer bool) error {
	_, reachable, err := s.locator.Locate(s.layout.DepotOpened)
	if err != nil && errors.Is(err, models.ErrSafetyAbort) {
		return err
	}
	if reachable {
		opened, err := s.openFromDepot(ctx)
		if err != nil {
			return err
		}
		if opened {
			return nil
		}
		log.Warn().Msg("Session: depot open but market did not appear")
	}

	if !openDepotContainer {
		return fmt.Errorf("%w: no open depot and depot search disabled", models.ErrMarketUnavailable)
	}

	tiles, err := s.locator.LocateAll(s.layout.DepotTile)
	if err != nil {
		if errors.Is(err, models.ErrSafetyAbort) {
			return err
		}
		log.Warn().Err(err).Msg("Session: depot tile search failed")
	}

	for i, tile := range tiles {
		if err := s.locator.Click(tile); err != nil {
			return err
		}
		_, found, err := s.locator.WaitFor(ctx, s.layout.DepotOpened, WaitOptions{
			Timeout:   s.timing.ShortWait,
			SkipCache: true,
		})
		if err != nil {
			return err
		}
		if !found {
			log.Debug().Int("tile", i).Str("region", tile.String()).Msg("Session: depot tile did not open")
			continue
		}

		opened, err := s.openFromDepot(ctx)
		if err != nil {
			return err
		}
		if opened {
			return nil
		}
	}

	return fmt.Errorf("%w: tried %d depot tiles", models.ErrMarketUnavailable, len(tiles))
}

func (s *MarketSession) openFromDepot(ctx context.Context) (bool, error) {
	_, found, err := s.locator.WaitFor(ctx, s.layout.MarketIcon, WaitOptions{
		Timeout:      s.timing.ShortWait,
		SkipCache:    true,
		ClickOnFound: true,
	})
	if err != nil || !found {
		return false, err
	}

	// confirm against the screen; a cached position says nothing about now
	_, found, err = s.locator.WaitFor(ctx, s.layout.DetailsButton, WaitOptions{
		Timeout:   s.timing.ShortWait,
		SkipCache: true,
	})
	if err != nil || !found {
		return false, err
	}

	log.Info().Msg("Session: market open")
	s.state = models.StateMarketOpen
	s.tab = models.TabOffers
	return true, nil
}

// SearchItem looks up one item and reads both market panels. Failures on a
// single field yield models.Unreadable for that field; any other failure
// yields a poisoned quote. The error is non-nil only for the safety abort
// and context cancellation.
func (s *MarketSession) SearchItem(ctx context.Context, name string) (quote models.MarketQuote, err error) {
	start := time.Now()
	defer func() {
		metrics.ItemQueryDuration.Observe(time.Since(start).Seconds())
		metrics.ItemsScannedTotal.Inc()
	}()

	readings, err := s.queryItem(ctx, name)
	if err != nil {
		if errors.Is(err, models.ErrSafetyAbort) || ctx.Err() != nil {
			return models.MarketQuote{}, err
		}
		log.Error().Err(err).Str("item", name).Msg("Session: query failed, recording unreadable quote")
		metrics.PoisonedQuotesTotal.Inc()
		return models.PoisonedQuote(name, s.now()), nil
	}

	quote = models.NewMarketQuote(name, readings, s.now())
	if fields := quote.UnreadableFields(); len(fields) > 0 {
		for _, f := range fields {
			metrics.UnreadableFieldsTotal.WithLabelValues(f).Inc()
		}
		log.Warn().Str("item", name).Strs("fields", fields).Msg("Session: unreadable fields")
	}
	return quote, nil
}

func (s *MarketSession) queryItem(ctx context.Context, name string) (readings models.MarketReadings, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while reading %q: %v", name, r)
		}
	}()

	if s.state != models.StateMarketOpen {
		return readings, fmt.Errorf("market not open (state %s)", s.state)
	}
	if err := s.enterSearch(ctx, name); err != nil {
		return readings, err
	}

	// Read the visible panel first so each query costs one tab switch
	switch s.tab {
	case models.TabDetails:
		if err := s.readDetails(ctx, name, &readings); err != nil {
			return readings, err
		}
		if err := s.switchTab(ctx, models.TabOffers); err != nil {
			return readings, err
		}
		err = s.readOffers(ctx, name, &readings)
	default:
		if err := s.readOffers(ctx, name, &readings); err != nil {
			return readings, err
		}
		if err := s.switchTab(ctx, models.TabDetails); err != nil {
			return readings, err
		}
		err = s.readDetails(ctx, name, &readings)
	}
	return readings, err
}

func (s *MarketSession) enterSearch(ctx context.Context, name string) error {
	field, found, err := s.locator.WaitFor(ctx, s.layout.SearchField, WaitOptions{
		Timeout:      s.timing.ShortWait,
		ClickOnFound: true,
	})
	if err != nil {
		return err
	}
	if !found {
		return notFound(s.layout.SearchField)
	}

	if err := s.input.KeyTap("a", "ctrl"); err != nil {
		return fmt.Errorf("select search text: %w", err)
	}
	if err := s.input.KeyTap("backspace"); err != nil {
		return fmt.Errorf("clear search: %w", err)
	}
	if err := s.input.TypeText(name); err != nil {
		return fmt.Errorf("type item name: %w", err)
	}
	if err := sleepContext(ctx, s.timing.ActionDelay); err != nil {
		return err
	}

	if err := s.locator.Click(s.layout.FirstResult.Region(field)); err != nil {
		return fmt.Errorf("select suggestion: %w", err)
	}
	return sleepContext(ctx, s.timing.ActionDelay)
}

func (s *MarketSession) switchTab(ctx context.Context, tab models.MarketTab) error {
	ref := s.layout.DetailsButton
	if tab == models.TabOffers {
		ref = s.layout.OffersButton
	}

	_, found, err := s.locator.WaitFor(ctx, ref, WaitOptions{
		Timeout:      s.timing.ShortWait,
		ClickOnFound: true,
	})
	if err != nil {
		return err
	}
	if !found {
		return notFound(ref)
	}
	s.tab = tab
	return sleepContext(ctx, s.timing.ActionDelay)
}

func (s *MarketSession) readOffers(ctx context.Context, item string, r *models.MarketReadings) error {
	var err error
	if r.SellOffer, err = s.readField(ctx, item, "sell_offer", s.layout.SellOffer); err != nil {
		return err
	}
	if r.BuyOffer, err = s.readField(ctx, item, "buy_offer", s.layout.BuyOffer); err != nil {
		return err
	}

	r.ApproxOffers = models.Missing()
	if s.layout.OfferRow != "" {
		rows, err := s.locator.LocateAll(s.layout.OfferRow)
		if err != nil {
			if errors.Is(err, models.ErrSafetyAbort) {
				return err
			}
			log.Debug().Err(err).Str("item", item).Msg("Session: offer rows not counted")
		} else {
			r.ApproxOffers = models.Readable(len(rows))
		}
	}
	return nil
}

func (s *MarketSession) readDetails(ctx context.Context, item string, r *models.MarketReadings) error {
	var err error
	if r.HighestSell, err = s.readField(ctx, item, "month_highest_sell", s.layout.HighestSell); err != nil {
		return err
	}
	if r.LowestBuy, err = s.readField(ctx, item, "month_lowest_buy", s.layout.LowestBuy); err != nil {
		return err
	}
	if r.Sold, err = s.readField(ctx, item, "sold", s.layout.Sold); err != nil {
		return err
	}
	r.Bought, err = s.readField(ctx, item, "bought", s.layout.Bought)
	return err
}

// readField crops the number next to a matched label and OCRs it. A label
// that cannot be found or text that does not parse is an unreadable field,
// not an error.
func (s *MarketSession) readField(ctx context.Context, item, field string, probe FieldProbe) (models.ReadableInt, error) {
	anchor, found, err := s.locator.WaitFor(ctx, probe.Anchor, WaitOptions{Timeout: s.timing.ShortWait})
	if err != nil {
		return models.Missing(), err
	}
	if !found {
		log.Warn().Str("item", item).Str("field", field).Str("anchor", probe.Anchor).Msg("Session: field label not found")
		return models.Missing(), nil
	}

	start := time.Now()
	region := probe.Region(anchor)
	img, err := s.capturer.Capture(region)
	if err != nil {
		return models.Missing(), fmt.Errorf("capture %s at %s: %w", field, region, err)
	}

	processed := s.preprocessor.Process(img)
	text, err := s.recognizer.Recognize(processed, DigitWhitelist)
	metrics.OCRProcessingDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.OCRRequestsTotal.WithLabelValues("failed").Inc()
		return models.Missing(), fmt.Errorf("recognize %s: %w", field, err)
	}

	value := ParseOCRInt(text)
	if !value.OK {
		metrics.OCRRequestsTotal.WithLabelValues("failed").Inc()
		log.Debug().Str("item", item).Str("field", field).Str("text", text).Msg("Session: OCR text is not a number")
		s.dumpField(item, field, processed)
		return value, nil
	}
	metrics.OCRRequestsTotal.WithLabelValues("success").Inc()
	return value, nil
}

func (s *MarketSession) dumpField(item, field string, img image.Image) {
	if s.debugDir == "" {
		return
	}
	if err := os.MkdirAll(s.debugDir, 0755); err != nil {
		log.Warn().Err(err).Msg("Session: cannot create debug directory")
		return
	}
	name := fmt.Sprintf("%s_%s_%d.png", strings.ReplaceAll(strings.ToLower(item), " ", "_"), field, s.now().Unix())
	if err := os.WriteFile(filepath.Join(s.debugDir, name), encodeImagePNG(img), 0644); err != nil {
		log.Warn().Err(err).Msg("Session: cannot write debug image")
	}
}

// CloseMarket closes the market window. The close key is sent twice because
// the market may have a nested dialog open; the depot container stays open.
func (s *MarketSession) CloseMarket(ctx context.Context) error {
	for i := 0; i < 2; i++ {
		if err := s.input.KeyTap("escape"); err != nil {
			return fmt.Errorf("close market: %w", err)
		}
		if err := sleepContext(ctx, s.timing.ActionDelay); err != nil {
			return err
		}
	}
	if s.state == models.StateMarketOpen {
		s.state = models.StateInGameNoMarket
	}
	return nil
}

// AntiIdle turns the character one way and back to reset the idle timer.
// The market panel is assumed to be back on Offers afterwards.
func (s *MarketSession) AntiIdle(ctx context.Context) error {
	if err := s.input.KeyTap("left", "ctrl"); err != nil {
		return fmt.Errorf("anti idle: %w", err)
	}
	if err := sleepContext(ctx, s.timing.ActionDelay); err != nil {
		return err
	}
	if err := s.input.KeyTap("right", "ctrl"); err != nil {
		return fmt.Errorf("anti idle: %w", err)
	}
	s.tab = models.TabOffers
	return sleepContext(ctx, s.timing.ActionDelay)
}

// Exit force-stops the client and acknowledges the exit dialog if one shows
func (s *MarketSession) Exit(ctx context.Context) error {
	killErr := s.process.Kill()
	if killErr != nil {
		log.Warn().Err(killErr).Msg("Session: failed to stop game process")
	}

	_, found, err := s.locator.WaitFor(ctx, s.layout.ExitConfirm, WaitOptions{
		Timeout:      s.timing.ShortWait,
		SkipCache:    true,
		ClickOnFound: true,
	})
	if err != nil {
		return err
	}
	if found {
		log.Debug().Msg("Session: exit confirmed")
	}

	s.state = models.StateTerminated
	if killErr != nil {
		return fmt.Errorf("exit game: %w", killErr)
	}
	return nil
}

func notFound(ref string) error {
	return fmt.Errorf("%w: %s", models.ErrNavigationNotFound, ref)
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
