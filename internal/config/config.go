package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tibiamarket/tracker/internal/models"
	"github.com/tibiamarket/tracker/internal/services"
)

// Duration accepts either a Go duration string ("90s", "15m") or a number of
// seconds in JSON
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		parsed, err := parseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("duration must be a string or a number of seconds: %s", b)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// parseDuration reads "800" as seconds and anything else as a Go duration
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// Timing mirrors services.SessionTiming in JSON form
type Timing struct {
	LaunchSettle Duration `json:"launch_settle"`
	ActionDelay  Duration `json:"action_delay"`
	ShortWait    Duration `json:"short_wait"`
	LoginWait    Duration `json:"login_wait"`
	UpdateWait   Duration `json:"update_wait"`
}

func (t Timing) Session() services.SessionTiming {
	return services.SessionTiming{
		LaunchSettle: time.Duration(t.LaunchSettle),
		ActionDelay:  time.Duration(t.ActionDelay),
		ShortWait:    time.Duration(t.ShortWait),
		LoginWait:    time.Duration(t.LoginWait),
		UpdateWait:   time.Duration(t.UpdateWait),
	}
}

func timingFrom(t services.SessionTiming) Timing {
	return Timing{
		LaunchSettle: Duration(t.LaunchSettle),
		ActionDelay:  Duration(t.ActionDelay),
		ShortWait:    Duration(t.ShortWait),
		LoginWait:    Duration(t.LoginWait),
		UpdateWait:   Duration(t.UpdateWait),
	}
}

// Config is shared by the scanner and the API server
type Config struct {
	Email    string `json:"email"`
	Password string `json:"password"`

	GamePath         string  `json:"game_path"`
	ResultsDir       string  `json:"results_dir"`
	TrackedItemsFile string  `json:"tracked_items_file"`
	ImagesDir        string  `json:"images_dir"`
	DebugDir         string  `json:"debug_dir"`
	OCRLanguage      string  `json:"ocr_language"`
	MatchThreshold   float64 `json:"match_threshold"`

	RestartAfter     Duration                 `json:"restart_after"`
	RestartStrategy  services.RestartStrategy `json:"restart_strategy"`
	WithApproxOffers bool                     `json:"with_approx_offers"`
	ScanInterval     Duration                 `json:"scan_interval"`

	PublishResults bool   `json:"publish_results"`
	GitRemote      string `json:"git_remote"`
	GitBranch      string `json:"git_branch"`

	WikiBaseURL  string `json:"wiki_base_url"`
	WikiCategory string `json:"wiki_category"`

	Port               string   `json:"port"`
	DBPath             string   `json:"db_path"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins"`

	Layout services.SessionLayout `json:"layout"`
	Timing Timing                 `json:"timing"`
}

// Default returns the configuration used when no file is present
func Default() Config {
	return Config{
		ResultsDir:         "./results",
		ImagesDir:          "./images",
		OCRLanguage:        "eng",
		RestartAfter:       Duration(services.DefaultRestartAfter),
		RestartStrategy:    services.RestartLight,
		ScanInterval:       Duration(services.DefaultScanInterval),
		GitRemote:          "origin",
		WikiBaseURL:        services.DefaultWikiBaseURL,
		WikiCategory:       services.DefaultWikiCategory,
		Port:               "8080",
		DBPath:             "./tibia_market.db",
		CORSAllowedOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		Layout:             services.DefaultSessionLayout(),
		Timing:             timingFrom(services.DefaultSessionTiming()),
	}
}

// Load reads .env (if present), then the JSON file at path (if present),
// then applies environment overrides. Missing fields keep their defaults.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Config: failed to read .env")
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			log.Info().Str("path", path).Msg("Config: no config file, using defaults")
		default:
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if cfg.TrackedItemsFile == "" {
		cfg.TrackedItemsFile = filepath.Join(cfg.ResultsDir, "tracked_items.txt")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.ResultsDir, "RESULTS_DIR")
	setString(&c.TrackedItemsFile, "TRACKED_ITEMS_FILE")
	setString(&c.ImagesDir, "IMAGES_DIR")
	setString(&c.DebugDir, "DEBUG_DIR")
	setString(&c.GamePath, "GAME_PATH")
	setString(&c.Email, "GAME_EMAIL")
	setString(&c.Password, "GAME_PASSWORD")
	setString(&c.Port, "PORT")
	setString(&c.DBPath, "DB_PATH")
	setString(&c.GitRemote, "GIT_REMOTE")
	setString(&c.GitBranch, "GIT_BRANCH")
	setString(&c.WikiBaseURL, "WIKI_BASE_URL")
	setString(&c.WikiCategory, "WIKI_CATEGORY")

	if v := os.Getenv("RESTART_STRATEGY"); v != "" {
		c.RestartStrategy = services.RestartStrategy(v)
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORSAllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("RESTART_AFTER"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("RESTART_AFTER: %w", err)
		}
		c.RestartAfter = Duration(d)
	}
	if v := os.Getenv("SCAN_INTERVAL"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("SCAN_INTERVAL: %w", err)
		}
		c.ScanInterval = Duration(d)
	}
	if v := os.Getenv("WITH_APPROX_OFFERS"); v != "" {
		c.WithApproxOffers = v == "true" || v == "1"
	}
	if v := os.Getenv("PUBLISH_RESULTS"); v != "" {
		c.PublishResults = v == "true" || v == "1"
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate rejects settings the scanner cannot run with
func (c Config) Validate() error {
	switch c.RestartStrategy {
	case services.RestartLight, services.RestartRelaunch:
	default:
		return fmt.Errorf("unknown restart strategy %q", c.RestartStrategy)
	}
	if c.RestartAfter <= 0 {
		return errors.New("restart_after must be positive")
	}
	if c.ResultsDir == "" {
		return errors.New("results_dir is required")
	}
	return nil
}

// ScanOptions builds the orchestrator options
func (c Config) ScanOptions() services.ScanOptions {
	return services.ScanOptions{
		ResultsDir:       c.ResultsDir,
		TrackedItemsFile: c.TrackedItemsFile,
		GamePath:         c.GamePath,
		Credentials:      models.Credentials{Email: c.Email, Password: c.Password},
		RestartAfter:     time.Duration(c.RestartAfter),
		RestartStrategy:  c.RestartStrategy,
		WithApproxOffers: c.WithApproxOffers,
	}
}
