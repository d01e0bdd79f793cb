package desktop

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"github.com/tibiamarket/tracker/internal/models"
)

const (
	// DefaultMatchThreshold is the minimum normalized correlation for a hit
	DefaultMatchThreshold = 0.86
	templateCacheSize     = 64
	maxMatches            = 64
)

// TemplateMatcher finds reference images on the primary display with
// OpenCV normalized cross-correlation. Loaded templates are kept in an LRU
// cache and released when evicted.
type TemplateMatcher struct {
	imagesDir string
	threshold float32
	mu        sync.Mutex
	templates *lru.Cache[string, gocv.Mat]
	grab      func() (image.Image, image.Point, error)
}

// NewTemplateMatcher loads reference images from imagesDir on demand. A ref
// without an extension is looked up as <ref>.png.
func NewTemplateMatcher(imagesDir string, threshold float64) (*TemplateMatcher, error) {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	cache, err := lru.NewWithEvict[string, gocv.Mat](templateCacheSize, func(_ string, mat gocv.Mat) {
		mat.Close()
	})
	if err != nil {
		return nil, err
	}
	return &TemplateMatcher{
		imagesDir: imagesDir,
		threshold: float32(threshold),
		templates: cache,
		grab:      grabScreen,
	}, nil
}

func grabScreen() (image.Image, image.Point, error) {
	bounds := displayBounds()
	img, err := NewScreenCapture().Capture(models.RegionFromRect(bounds))
	return img, bounds.Min, err
}

// Close releases every cached template
func (m *TemplateMatcher) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates.Purge()
}

func (m *TemplateMatcher) template(ref string) (gocv.Mat, error) {
	if mat, ok := m.templates.Get(ref); ok {
		return mat, nil
	}

	path := filepath.Join(m.imagesDir, ref)
	if filepath.Ext(ref) == "" {
		path += ".png"
	}
	if _, err := os.Stat(path); err != nil {
		return gocv.Mat{}, fmt.Errorf("reference image %q: %w", ref, err)
	}
	mat := gocv.IMRead(path, gocv.IMReadGrayScale)
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, fmt.Errorf("reference image %q could not be decoded", path)
	}
	m.templates.Add(ref, mat)
	return mat, nil
}

// Locate returns the best match of ref above the threshold
func (m *TemplateMatcher) Locate(ref string) (models.ScreenRegion, bool, error) {
	matches, err := m.match(ref, 1)
	if err != nil || len(matches) == 0 {
		return models.ScreenRegion{}, false, err
	}
	return matches[0], true, nil
}

// LocateAll returns every non-overlapping match of ref, best first
func (m *TemplateMatcher) LocateAll(ref string) ([]models.ScreenRegion, error) {
	return m.match(ref, maxMatches)
}

func (m *TemplateMatcher) match(ref string, limit int) ([]models.ScreenRegion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tmpl, err := m.template(ref)
	if err != nil {
		return nil, err
	}

	img, origin, err := m.grab()
	if err != nil {
		return nil, err
	}
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert screen: %w", err)
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)

	if gray.Rows() < tmpl.Rows() || gray.Cols() < tmpl.Cols() {
		return nil, nil
	}

	result := gocv.NewMatWithSize(gray.Rows()-tmpl.Rows()+1, gray.Cols()-tmpl.Cols()+1, gocv.MatTypeCV32F)
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.MatchTemplate(gray, tmpl, &result, gocv.TmCcoeffNormed, mask)

	var found []models.ScreenRegion
	for len(found) < limit {
		_, maxVal, _, maxLoc := gocv.MinMaxLoc(result)
		if maxVal < m.threshold {
			break
		}
		found = append(found, models.ScreenRegion{
			Left:   origin.X + maxLoc.X,
			Top:    origin.Y + maxLoc.Y,
			Width:  tmpl.Cols(),
			Height: tmpl.Rows(),
		})
		// blank out the neighbourhood so the next peak is a different element
		suppress := image.Rect(maxLoc.X-tmpl.Cols()/2, maxLoc.Y-tmpl.Rows()/2,
			maxLoc.X+tmpl.Cols()/2+1, maxLoc.Y+tmpl.Rows()/2+1)
		gocv.Rectangle(&result, suppress, color.RGBA{}, -1)
	}

	log.Debug().Str("ref", ref).Int("matches", len(found)).Msg("Matcher: template search done")
	return found, nil
}
