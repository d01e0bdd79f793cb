package desktop

import (
	"sync"
	"time"

	"github.com/go-vgo/robotgo"
	"github.com/rs/zerolog/log"

	"github.com/tibiamarket/tracker/internal/models"
)

// failSafeMargin is how close to the top-left corner the pointer must be for
// the emergency stop to trigger
const failSafeMargin = 2

// RobotInput drives the real mouse and keyboard. Moving the pointer into the
// top-left screen corner trips the fail-safe: every later call returns
// models.ErrSafetyAbort.
type RobotInput struct {
	mu      sync.Mutex
	tripped bool
	delay   time.Duration
}

func NewRobotInput() *RobotInput {
	return &RobotInput{delay: 50 * time.Millisecond}
}

// checkFailSafe must be called with mu held
func (r *RobotInput) checkFailSafe() error {
	if r.tripped {
		return models.ErrSafetyAbort
	}
	x, y := robotgo.Location()
	if x <= failSafeMargin && y <= failSafeMargin {
		r.tripped = true
		log.Error().Int("x", x).Int("y", y).Msg("Input: fail-safe corner reached, aborting")
		return models.ErrSafetyAbort
	}
	return nil
}

func (r *RobotInput) Click(x, y int) error {
	return r.click(x, y, false)
}

func (r *RobotInput) DoubleClick(x, y int) error {
	return r.click(x, y, true)
}

func (r *RobotInput) click(x, y int, double bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkFailSafe(); err != nil {
		return err
	}
	robotgo.Move(x, y)
	robotgo.MilliSleep(int(r.delay.Milliseconds()))
	robotgo.Click("left", double)
	return nil
}

func (r *RobotInput) TypeText(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkFailSafe(); err != nil {
		return err
	}
	robotgo.TypeStr(text)
	return nil
}

func (r *RobotInput) KeyTap(key string, modifiers ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkFailSafe(); err != nil {
		return err
	}
	args := make([]interface{}, 0, len(modifiers))
	for _, m := range modifiers {
		args = append(args, m)
	}
	return robotgo.KeyTap(key, args...)
}
