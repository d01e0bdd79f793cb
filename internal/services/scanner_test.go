package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tibiamarket/tracker/internal/models"
)

// fakeClient answers every search with a fixed quote and records the calls
type fakeClient struct {
	calls        []string
	searched     []string
	openErr      error
	openLightErr error
	loginErrs    []error
	searchErr    map[string]error
	onSearch     func(name string)
}

func (c *fakeClient) StartGame(_ context.Context, path string) error {
	c.calls = append(c.calls, "start")
	return nil
}

func (c *fakeClient) UpdateIfNeeded(context.Context) error {
	c.calls = append(c.calls, "update")
	return nil
}

func (c *fakeClient) Login(context.Context, models.Credentials) error {
	c.calls = append(c.calls, "login")
	if len(c.loginErrs) > 0 {
		err := c.loginErrs[0]
		c.loginErrs = c.loginErrs[1:]
		return err
	}
	return nil
}

func (c *fakeClient) OpenMarket(_ context.Context, openDepot bool) error {
	if openDepot {
		c.calls = append(c.calls, "open")
		return c.openErr
	}
	c.calls = append(c.calls, "reopen")
	return c.openLightErr
}

func (c *fakeClient) SearchItem(_ context.Context, name string) (models.MarketQuote, error) {
	c.searched = append(c.searched, name)
	if c.onSearch != nil {
		c.onSearch(name)
	}
	if err := c.searchErr[name]; err != nil {
		return models.MarketQuote{}, err
	}
	return models.NewMarketQuote(name, models.MarketReadings{
		SellOffer: models.Readable(1500), BuyOffer: models.Readable(1200),
		HighestSell: models.Readable(1600), LowestBuy: models.Readable(1100),
		Sold: models.Readable(3), Bought: models.Readable(2),
	}, time.Unix(1700000000, 0)), nil
}

func (c *fakeClient) CloseMarket(context.Context) error {
	c.calls = append(c.calls, "close")
	return nil
}

func (c *fakeClient) AntiIdle(context.Context) error {
	c.calls = append(c.calls, "wiggle")
	return nil
}

func (c *fakeClient) Exit(context.Context) error {
	c.calls = append(c.calls, "exit")
	return nil
}

type fakeRecorder struct {
	started  []string
	quotes   []string
	finished []*models.ScanRun
}

func (r *fakeRecorder) StartRun(run *models.ScanRun) error {
	r.started = append(r.started, run.ID)
	return nil
}

func (r *fakeRecorder) RecordQuote(_ string, q models.MarketQuote) error {
	r.quotes = append(r.quotes, q.Name)
	return nil
}

func (r *fakeRecorder) FinishRun(run *models.ScanRun) error {
	r.finished = append(r.finished, run)
	return nil
}

type fakePublisher struct {
	messages []string
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, message string) error {
	p.messages = append(p.messages, message)
	return p.err
}

func writeItems(t *testing.T, dir string, items ...string) string {
	t.Helper()
	path := filepath.Join(dir, "tracked_items.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(items, "\n")+"\n"), 0644))
	return path
}

func newTestOrchestrator(t *testing.T, client MarketClient, items ...string) (*ScanOrchestrator, string) {
	t.Helper()
	dir := t.TempDir()
	o := NewScanOrchestrator(client, ScanOptions{
		ResultsDir:       dir,
		TrackedItemsFile: writeItems(t, dir, items...),
		GamePath:         "/opt/tibia/Tibia",
	})
	return o, dir
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestScanWritesSnapshotAndHistory(t *testing.T) {
	client := &fakeClient{}
	o, dir := newTestOrchestrator(t, client, "Sword", "", "Magic Plate Armor")

	run, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Sword", "Magic Plate Armor"}, client.searched)
	assert.Equal(t, []string{"start", "update", "login", "open", "exit"}, client.calls)
	assert.Equal(t, models.ScanCompleted, run.Status)
	assert.Equal(t, 2, run.Items)
	assert.False(t, run.Resumed)

	lines := readLines(t, filepath.Join(dir, SnapshotFile))
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(models.SnapshotHeader, ","), lines[0])
	assert.Equal(t, "sword,1500,1200,1600,1100,3,2,300,0.25,600", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "magic plate armor,"))

	_, err = os.Stat(filepath.Join(dir, SnapshotTmpFile))
	assert.True(t, os.IsNotExist(err), "temp snapshot must be renamed away")

	history := readLines(t, HistoryPath(filepath.Join(dir, HistoriesDir), "Sword"))
	assert.Equal(t, []string{"sword,1500,1200,1600,1100,3,2,300,0.25,600,1700000000"}, history)
}

func TestScanResumesPartialSnapshot(t *testing.T) {
	client := &fakeClient{}
	o, dir := newTestOrchestrator(t, client, "a", "b", "c", "d")

	partial := strings.Join(models.SnapshotHeader, ",") + "\n" +
		"a,1,1,1,1,1,1,0,0,0\n" +
		"b,1,1,1,1,1,1,0,0,0\n" +
		"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, SnapshotTmpFile), []byte(partial), 0644))

	run, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"c", "d"}, client.searched, "must skip exactly the scanned rows")
	assert.True(t, run.Resumed)
	assert.Equal(t, 2, run.Items)

	var rows []string
	for _, line := range readLines(t, filepath.Join(dir, SnapshotFile)) {
		if line != "" {
			rows = append(rows, line)
		}
	}
	require.Len(t, rows, 5)
	assert.True(t, strings.HasPrefix(rows[3], "c,"))
	assert.True(t, strings.HasPrefix(rows[4], "d,"))
}

func TestScanCompletePartialOnlyRenames(t *testing.T) {
	client := &fakeClient{}
	o, dir := newTestOrchestrator(t, client, "a")
	partial := strings.Join(models.SnapshotHeader, ",") + "\na,1,1,1,1,1,1,0,0,0\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, SnapshotTmpFile), []byte(partial), 0644))

	_, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, client.calls, "no game session needed")
	assert.Len(t, readLines(t, filepath.Join(dir, SnapshotFile)), 2)
}

func TestScanAbortKeepsPartialAndOldSnapshot(t *testing.T) {
	client := &fakeClient{searchErr: map[string]error{"c": models.ErrSafetyAbort}}
	o, dir := newTestOrchestrator(t, client, "a", "b", "c")

	previous := strings.Join(models.SnapshotHeader, ",") + "\nold,1,1,1,1,1,1,0,0,0\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, SnapshotFile), []byte(previous), 0644))

	run, err := o.Run(context.Background())
	require.ErrorIs(t, err, models.ErrSafetyAbort)
	assert.Equal(t, models.ScanFailed, run.Status)

	data, err := os.ReadFile(filepath.Join(dir, SnapshotFile))
	require.NoError(t, err)
	assert.Equal(t, previous, string(data), "committed snapshot untouched")

	count, err := CountScannedRows(filepath.Join(dir, SnapshotTmpFile))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestScanSnapshotNeverPartial(t *testing.T) {
	client := &fakeClient{}
	o, dir := newTestOrchestrator(t, client, "a", "b", "c", "d", "e")
	final := filepath.Join(dir, SnapshotFile)

	// a reader polling mid-scan sees either no snapshot or a complete one
	client.onSearch = func(string) {
		if _, err := os.Stat(final); err == nil {
			t.Errorf("snapshot visible before the scan finished")
		}
	}

	_, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, readLines(t, final), 6)
}

func TestScanRestartStrategies(t *testing.T) {
	tests := []struct {
		name     string
		strategy RestartStrategy
		lightErr error
		want     []string
	}{
		{
			name:     "light",
			strategy: RestartLight,
			want:     []string{"start", "update", "login", "open", "close", "wiggle", "reopen", "exit"},
		},
		{
			name:     "relaunch",
			strategy: RestartRelaunch,
			want:     []string{"start", "update", "login", "open", "exit", "start", "update", "login", "open", "exit"},
		},
		{
			name:     "light falls back to relaunch",
			strategy: RestartLight,
			lightErr: models.ErrMarketUnavailable,
			want: []string{"start", "update", "login", "open", "close", "wiggle", "reopen",
				"exit", "start", "update", "login", "open", "exit"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{openLightErr: tt.lightErr}
			o, _ := newTestOrchestrator(t, client, "a", "b")
			o.opts.RestartStrategy = tt.strategy
			o.opts.RestartAfter = time.Minute

			// each call to the clock advances it, so the second item is past the threshold
			clock := time.Unix(0, 0)
			o.now = func() time.Time {
				clock = clock.Add(45 * time.Second)
				return clock
			}

			run, err := o.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, client.calls)
			assert.Equal(t, 1, run.Restarts)
		})
	}
}

func TestScanMarketUnavailableIsFatal(t *testing.T) {
	client := &fakeClient{openErr: models.ErrMarketUnavailable}
	o, _ := newTestOrchestrator(t, client, "a")

	_, err := o.Run(context.Background())
	assert.ErrorIs(t, err, models.ErrMarketUnavailable)
	assert.Empty(t, client.searched)
}

func TestScanRetriesLogin(t *testing.T) {
	client := &fakeClient{loginErrs: []error{models.ErrNavigationNotFound}}
	o, _ := newTestOrchestrator(t, client, "a")

	_, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "update", "login", "exit", "start", "update", "login", "open", "exit"}, client.calls)
}

func TestScanRecordsAndPublishes(t *testing.T) {
	client := &fakeClient{}
	o, _ := newTestOrchestrator(t, client, "a", "b")
	recorder := &fakeRecorder{}
	publisher := &fakePublisher{err: errors.New("remote rejected")}
	o.SetRecorder(recorder)
	o.SetPublisher(publisher)

	run, err := o.Run(context.Background())
	require.NoError(t, err, "publish failure is not fatal")

	assert.Equal(t, []string{run.ID}, recorder.started)
	assert.Equal(t, []string{"a", "b"}, recorder.quotes)
	require.Len(t, recorder.finished, 1)
	assert.Equal(t, models.ScanCompleted, recorder.finished[0].Status)
	assert.Len(t, publisher.messages, 1)
}

func TestScanExtendedSchema(t *testing.T) {
	client := &fakeClient{}
	o, dir := newTestOrchestrator(t, client, "a")
	o.opts.WithApproxOffers = true

	_, err := o.Run(context.Background())
	require.NoError(t, err)

	lines := readLines(t, filepath.Join(dir, SnapshotFile))
	assert.True(t, strings.HasSuffix(lines[0], ","+models.ApproxOffersColumn))
	assert.Len(t, strings.Split(lines[1], ","), 11)
}

func TestCountScannedRows(t *testing.T) {
	dir := t.TempDir()
	header := strings.Join(models.SnapshotHeader, ",") + "\n"

	tests := []struct {
		name    string
		content *string
		want    int
	}{
		{name: "missing file", content: nil, want: 0},
		{name: "empty file", content: ptr(""), want: 0},
		{name: "header only", content: ptr(header), want: 0},
		{name: "rows", content: ptr(header + "a,1\nb,2\nc,3\n"), want: 3},
		{name: "trailing blank line", content: ptr(header + "a,1\nb,2\n\n"), want: 2},
		{name: "no final newline", content: ptr(header + "a,1\nb,2"), want: 2},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "partial"+string(rune('a'+i))+".txt")
			if tt.content != nil {
				require.NoError(t, os.WriteFile(path, []byte(*tt.content), 0644))
			}
			got, err := CountScannedRows(path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHistoryPath(t *testing.T) {
	assert.Equal(t, filepath.Join("h", "magic plate armor.txt"), HistoryPath("h", " Magic Plate Armor "))
	assert.Equal(t, filepath.Join("h", "a_b.txt"), HistoryPath("h", "A/B"))
}

func ptr(s string) *string { return &s }
