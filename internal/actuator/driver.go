// Package actuator drives the single lock relay of a locker.
//
// The relay output is inactive (locked) at every point except during the hold
// window of Driver.Actuate. Actuate blocks its caller for the full hold; there
// is no way to cancel a hold once it has started.
package actuator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"git.sr.ht/~spc/go-log"
	"github.com/iamptic/lockandgo/internal/clock"
)

// DefaultHoldDuration is how long the relay stays active for one open command.
const DefaultHoldDuration = 2 * time.Second

// ErrNotInitialized is returned by Actuate when Initialize has not completed.
var ErrNotInitialized = errors.New("relay driver not initialized")

// State is the state of the actuator.
type State int

const (
	StateIdle State = iota
	StateActuating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActuating:
		return "actuating"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Pin is a single binary output line.
type Pin interface {
	// Set drives the line to its active (unlocked) level when active is true,
	// and to its inactive (locked) level otherwise.
	Set(active bool) error

	// Close releases the line.
	Close() error
}

// Driver owns a Pin and enforces the hold timing and the fail-safe inactive
// level.
type Driver struct {
	pin    Pin
	clock  clock.Clock
	logger *log.Logger

	mu          sync.Mutex
	state       State
	initialized bool
}

// NewDriver creates a Driver for pin. Initialize must be called before any
// other method.
func NewDriver(pin Pin, c clock.Clock) *Driver {
	return &Driver{
		pin:    pin,
		clock:  c,
		logger: log.New(log.Writer(), fmt.Sprintf("%v[relay] ", log.Prefix()), log.Flags(), log.CurrentLevel()),
	}
}

// Initialize drives the output inactive.
func (d *Driver) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.initialized = false
	if err := d.pin.Set(false); err != nil {
		return fmt.Errorf("cannot drive relay inactive: %w", err)
	}
	d.state = StateIdle
	d.initialized = true
	d.logger.Debug("relay initialized inactive")
	return nil
}

// Actuate drives the output active, waits for hold and drives the output
// inactive again. It blocks the caller for the whole hold. The inactive level
// is restored on every return path. An error is only returned when the line
// could not be written.
func (d *Driver) Actuate(hold time.Duration) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return ErrNotInitialized
	}

	d.state = StateActuating
	defer func() {
		if releaseErr := d.pin.Set(false); releaseErr != nil {
			d.logger.Errorf("cannot drive relay inactive: %v", releaseErr)
			if err == nil {
				err = fmt.Errorf("cannot drive relay inactive: %w", releaseErr)
			}
		}
		d.state = StateIdle
		d.logger.Debug("relay inactive")
	}()

	if err := d.pin.Set(true); err != nil {
		return fmt.Errorf("cannot drive relay active: %w", err)
	}
	d.logger.Debugf("relay active for %v", hold)
	d.clock.Sleep(hold)

	return nil
}

// State returns the current actuator state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Close drives the output inactive and releases the line.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.initialized = false
	setErr := d.pin.Set(false)
	closeErr := d.pin.Close()
	if setErr != nil {
		return fmt.Errorf("cannot drive relay inactive: %w", setErr)
	}
	if closeErr != nil {
		return fmt.Errorf("cannot release relay line: %w", closeErr)
	}
	return nil
}
