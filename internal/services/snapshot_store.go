package services

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"

	"github.com/tibiamarket/tracker/internal/metrics"
	"github.com/tibiamarket/tracker/internal/models"
)

// DefaultQueryMax is the upper bound used when a range filter is not given
const DefaultQueryMax = 999999999

var (
	// ErrSnapshotUnavailable is returned before the first scan has finished
	ErrSnapshotUnavailable = errors.New("snapshot not available")
	// ErrUnknownColumn is returned for an orderBy that is not a snapshot column
	ErrUnknownColumn = errors.New("unknown column")
)

// SnapshotQuery filters and orders snapshot rows. A zero minimum and a
// DefaultQueryMax maximum leave that side of a range open, so unreadable
// rows (-1) are only hidden once the caller asks for a bound.
type SnapshotQuery struct {
	Name         string
	MinTraded    int
	MaxTraded    int
	MinSellPrice int
	MaxSellPrice int
	MinBuyPrice  int
	MaxBuyPrice  int
	OrderBy      string
	Ascending    bool
	Limit        int
}

// DefaultSnapshotQuery returns every row ordered by name
func DefaultSnapshotQuery() SnapshotQuery {
	return SnapshotQuery{
		MaxTraded:    DefaultQueryMax,
		MaxSellPrice: DefaultQueryMax,
		MaxBuyPrice:  DefaultQueryMax,
		OrderBy:      "Name",
		Ascending:    true,
	}
}

// SnapshotStore serves the latest full-scan snapshot. The file is re-read
// only when its modification time moves past the last load; the check and
// the reload happen under one lock. The zero value is not usable, use
// NewSnapshotStore.
type SnapshotStore struct {
	path string

	mu       sync.Mutex
	rows     []models.SnapshotRow
	modTime  time.Time
	loaded   bool
	loadedAt time.Time
}

// NewSnapshotStore creates a store for path. Nothing is read until first use.
func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

// Path returns the snapshot file the store reads
func (s *SnapshotStore) Path() string {
	return s.path
}

// Rows returns the current rows, reloading first if the file changed. The
// returned slice is shared and must not be modified.
func (s *SnapshotStore) Rows() ([]models.SnapshotRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refreshLocked(); err != nil {
		return nil, err
	}
	return s.rows, nil
}

// Reload checks the file and reloads it if it is newer than the loaded copy
func (s *SnapshotStore) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked()
}

// Status reports the number of loaded rows and when they were loaded
func (s *SnapshotStore) Status() (rows int, loadedAt time.Time, loaded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows), s.loadedAt, s.loaded
}

func (s *SnapshotStore) refreshLocked() error {
	info, err := os.Stat(s.path)
	if err != nil {
		if s.loaded {
			// the scanner renames over the file; keep serving the last copy
			log.Debug().Err(err).Msg("SnapshotStore: stat failed, serving cached rows")
			return nil
		}
		if os.IsNotExist(err) {
			return ErrSnapshotUnavailable
		}
		return fmt.Errorf("stat snapshot: %w", err)
	}

	if s.loaded && !info.ModTime().After(s.modTime) {
		return nil
	}

	rows, err := readSnapshot(s.path)
	if err != nil {
		if s.loaded {
			log.Error().Err(err).Msg("SnapshotStore: reload failed, serving cached rows")
			return nil
		}
		return err
	}

	s.rows = rows
	s.modTime = info.ModTime()
	s.loaded = true
	s.loadedAt = time.Now()
	metrics.SnapshotReloadsTotal.Inc()
	metrics.SnapshotRows.Set(float64(len(rows)))
	log.Info().Int("rows", len(rows)).Time("modified", s.modTime).Msg("SnapshotStore: snapshot loaded")
	return nil
}

func readSnapshot(path string) ([]models.SnapshotRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	var rows []models.SnapshotRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}

	if _, err := f.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("rewind snapshot: %w", err)
	}
	header, err := readHeaderFrom(f)
	if err != nil {
		return nil, err
	}
	if !containsColumn(header, models.ApproxOffersColumn) {
		for i := range rows {
			rows[i].ApproxOffers = models.Unreadable
		}
	}
	return rows, nil
}

func readHeaderFrom(f *os.File) ([]string, error) {
	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return nil, fmt.Errorf("read snapshot header: %w", err)
	}
	line, _, _ := strings.Cut(string(buf[:n]), "\n")
	return strings.Split(strings.TrimSpace(line), ","), nil
}

func containsColumn(header []string, column string) bool {
	for _, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), column) {
			return true
		}
	}
	return false
}

// Query filters and sorts the current snapshot. An exact name match is
// moved to the front regardless of ordering.
func (s *SnapshotStore) Query(q SnapshotQuery) ([]models.SnapshotRow, error) {
	rows, err := s.Rows()
	if err != nil {
		return nil, err
	}
	return FilterSnapshot(rows, q)
}

// FilterSnapshot applies q to rows without modifying them
func FilterSnapshot(rows []models.SnapshotRow, q SnapshotQuery) ([]models.SnapshotRow, error) {
	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = "Name"
	}
	if _, _, ok := (models.SnapshotRow{}).SortValue(orderBy); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, orderBy)
	}

	name := strings.ToLower(strings.TrimSpace(q.Name))
	out := make([]models.SnapshotRow, 0, len(rows))
	for _, row := range rows {
		if name != "" && !strings.Contains(strings.ToLower(row.Name), name) {
			continue
		}
		if !inRange(row.Traded(), q.MinTraded, q.MaxTraded) ||
			!inRange(row.SellPrice, q.MinSellPrice, q.MaxSellPrice) ||
			!inRange(row.BuyPrice, q.MinBuyPrice, q.MaxBuyPrice) {
			continue
		}
		out = append(out, row)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ni, si, _ := out[i].SortValue(orderBy)
		nj, sj, _ := out[j].SortValue(orderBy)
		if si != sj {
			if q.Ascending {
				return si < sj
			}
			return si > sj
		}
		if q.Ascending {
			return ni < nj
		}
		return ni > nj
	})

	if name != "" {
		for i, row := range out {
			if strings.ToLower(row.Name) == name {
				match := out[i]
				copy(out[1:i+1], out[:i])
				out[0] = match
				break
			}
		}
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func inRange(v, lo, hi int) bool {
	if lo > 0 && v < lo {
		return false
	}
	if hi > 0 && hi < DefaultQueryMax && v > hi {
		return false
	}
	return true
}
