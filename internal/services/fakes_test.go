package services

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/tibiamarket/tracker/internal/models"
)

// fakeMatcher serves reference image positions from a map
type fakeMatcher struct {
	visible map[string][]models.ScreenRegion
	errs    map[string]error
	// appearAfter hides a ref until it has been looked up this many times
	appearAfter map[string]int
	calls       map[string]int
}

func newFakeMatcher() *fakeMatcher {
	return &fakeMatcher{
		visible:     make(map[string][]models.ScreenRegion),
		errs:        make(map[string]error),
		appearAfter: make(map[string]int),
		calls:       make(map[string]int),
	}
}

func (m *fakeMatcher) show(ref string, regions ...models.ScreenRegion) {
	m.visible[ref] = regions
}

func (m *fakeMatcher) hide(ref string) {
	delete(m.visible, ref)
}

func (m *fakeMatcher) Locate(ref string) (models.ScreenRegion, bool, error) {
	m.calls[ref]++
	if err := m.errs[ref]; err != nil {
		return models.ScreenRegion{}, false, err
	}
	if m.calls[ref] <= m.appearAfter[ref] {
		return models.ScreenRegion{}, false, nil
	}
	regions := m.visible[ref]
	if len(regions) == 0 {
		return models.ScreenRegion{}, false, nil
	}
	return regions[0], true, nil
}

func (m *fakeMatcher) LocateAll(ref string) ([]models.ScreenRegion, error) {
	m.calls[ref]++
	if err := m.errs[ref]; err != nil {
		return nil, err
	}
	return m.visible[ref], nil
}

// fakeInput records every action as a string
type fakeInput struct {
	actions []string
	abort   bool
	onClick func(x, y int)
}

func (f *fakeInput) record(action string) error {
	if f.abort {
		return models.ErrSafetyAbort
	}
	f.actions = append(f.actions, action)
	return nil
}

func (f *fakeInput) Click(x, y int) error {
	if err := f.record(fmt.Sprintf("click %d,%d", x, y)); err != nil {
		return err
	}
	if f.onClick != nil {
		f.onClick(x, y)
	}
	return nil
}

func (f *fakeInput) DoubleClick(x, y int) error {
	return f.record(fmt.Sprintf("doubleclick %d,%d", x, y))
}

func (f *fakeInput) TypeText(text string) error {
	return f.record("type " + text)
}

func (f *fakeInput) KeyTap(key string, modifiers ...string) error {
	if len(modifiers) > 0 {
		return f.record("key " + strings.Join(modifiers, "+") + "+" + key)
	}
	return f.record("key " + key)
}

func (f *fakeInput) count(prefix string) int {
	n := 0
	for _, a := range f.actions {
		if strings.HasPrefix(a, prefix) {
			n++
		}
	}
	return n
}

// fakeScreen captures blank images and "recognizes" the text configured for
// the region captured last.
type fakeScreen struct {
	texts    map[models.ScreenRegion]string
	captured []models.ScreenRegion
	err      error
}

func newFakeScreen() *fakeScreen {
	return &fakeScreen{texts: make(map[models.ScreenRegion]string)}
}

func (f *fakeScreen) Capture(region models.ScreenRegion) (image.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.captured = append(f.captured, region)
	return image.NewRGBA(image.Rect(0, 0, max(region.Width, 1), max(region.Height, 1))), nil
}

func (f *fakeScreen) Recognize(_ image.Image, _ string) (string, error) {
	if len(f.captured) == 0 {
		return "", fmt.Errorf("nothing captured")
	}
	return f.texts[f.captured[len(f.captured)-1]], nil
}

// fakeProcess records launches and kills
type fakeProcess struct {
	started  []string
	kills    int
	startErr error
}

func (p *fakeProcess) Start(_ context.Context, path string) error {
	if p.startErr != nil {
		return p.startErr
	}
	p.started = append(p.started, path)
	return nil
}

func (p *fakeProcess) Kill() error {
	p.kills++
	return nil
}
