package actuator

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/iamptic/lockandgo/internal/clock"
)

type transition struct {
	at     time.Time
	active bool
}

// recordingPin records every level written to it, stamped with the fake clock.
type recordingPin struct {
	clock       *clock.Fake
	transitions []transition
	failActive  error
	failRelease error
	closed      bool
}

func (p *recordingPin) Set(active bool) error {
	if active && p.failActive != nil {
		return p.failActive
	}
	if !active && p.failRelease != nil {
		return p.failRelease
	}
	p.transitions = append(p.transitions, transition{at: p.clock.Now(), active: active})
	return nil
}

func (p *recordingPin) Close() error {
	p.closed = true
	return nil
}

// activeAt reports the level of the line at instant t.
func (p *recordingPin) activeAt(t time.Time) bool {
	active := false
	for _, tr := range p.transitions {
		if tr.at.After(t) {
			break
		}
		active = tr.active
	}
	return active
}

var epoch = time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)

func TestActuate(t *testing.T) {
	tests := []struct {
		description string
		hold        time.Duration
	}{
		{description: "default hold", hold: DefaultHoldDuration},
		{description: "short hold", hold: 10 * time.Millisecond},
		{description: "zero hold", hold: 0},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			c := clock.NewFake(epoch)
			pin := &recordingPin{clock: c}
			d := NewDriver(pin, c)

			if err := d.Initialize(); err != nil {
				t.Fatal(err)
			}
			c.Advance(time.Second)
			start := c.Now()

			if err := d.Actuate(test.hold); err != nil {
				t.Fatal(err)
			}

			if d.State() != StateIdle {
				t.Errorf("%v != %v", d.State(), StateIdle)
			}
			if pin.activeAt(start.Add(-time.Nanosecond)) {
				t.Error("output active before the hold window")
			}
			if test.hold > 0 {
				for _, offset := range []time.Duration{0, test.hold / 2, test.hold - time.Nanosecond} {
					if !pin.activeAt(start.Add(offset)) {
						t.Errorf("output inactive at +%v inside the hold window", offset)
					}
				}
			}
			for _, offset := range []time.Duration{test.hold, test.hold + time.Millisecond, time.Hour} {
				if pin.activeAt(start.Add(offset)) {
					t.Errorf("output active at +%v outside the hold window", offset)
				}
			}
			if last := pin.transitions[len(pin.transitions)-1]; last.active {
				t.Error("output left active on return")
			}
			if got := c.Now().Sub(start); got != test.hold {
				t.Errorf("held for %v, want %v", got, test.hold)
			}
		})
	}
}

func TestActuateErrors(t *testing.T) {
	errActive := errors.New("line busy")
	errRelease := errors.New("line gone")

	tests := []struct {
		description string
		pin         *recordingPin
		initialize  bool
		wantError   error
	}{
		{
			description: "not initialized",
			pin:         &recordingPin{},
			wantError:   ErrNotInitialized,
		},
		{
			description: "active write fails",
			pin:         &recordingPin{failActive: errActive},
			initialize:  true,
			wantError:   errActive,
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			c := clock.NewFake(epoch)
			test.pin.clock = c
			d := NewDriver(test.pin, c)
			if test.initialize {
				if err := d.Initialize(); err != nil {
					t.Fatal(err)
				}
			}

			err := d.Actuate(DefaultHoldDuration)

			if !cmp.Equal(err, test.wantError, cmpopts.EquateErrors()) {
				t.Errorf("%#v != %#v", err, test.wantError)
			}
			for _, tr := range test.pin.transitions {
				if tr.active {
					t.Error("output went active")
				}
			}
			if d.State() != StateIdle {
				t.Errorf("%v != %v", d.State(), StateIdle)
			}
		})
	}

	t.Run("release write fails", func(t *testing.T) {
		c := clock.NewFake(epoch)
		pin := &recordingPin{clock: c}
		d := NewDriver(pin, c)
		if err := d.Initialize(); err != nil {
			t.Fatal(err)
		}
		pin.failRelease = errRelease

		if err := d.Actuate(DefaultHoldDuration); !errors.Is(err, errRelease) {
			t.Errorf("%v is not %v", err, errRelease)
		}
	})
}

func TestInitializeForcesInactive(t *testing.T) {
	c := clock.NewFake(epoch)
	pin := &recordingPin{clock: c}
	d := NewDriver(pin, c)

	if err := d.Initialize(); err != nil {
		t.Fatal(err)
	}

	want := []transition{{at: epoch, active: false}}
	if !cmp.Equal(pin.transitions, want, cmp.AllowUnexported(transition{})) {
		t.Errorf("%v", cmp.Diff(pin.transitions, want, cmp.AllowUnexported(transition{})))
	}
}

func TestClose(t *testing.T) {
	c := clock.NewFake(epoch)
	pin := &recordingPin{clock: c}
	d := NewDriver(pin, c)
	if err := d.Initialize(); err != nil {
		t.Fatal(err)
	}

	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if !pin.closed {
		t.Error("line not released")
	}
	if err := d.Actuate(time.Second); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("%v != %v", err, ErrNotInitialized)
	}
}

func TestSimulatedPin(t *testing.T) {
	p := NewSimulatedPin()
	if p.Active() {
		t.Fatal("simulated pin starts active")
	}
	if err := p.Set(true); err != nil {
		t.Fatal(err)
	}
	if !p.Active() {
		t.Error("simulated pin not active after Set(true)")
	}
	if err := p.Set(false); err != nil {
		t.Fatal(err)
	}
	if p.Active() {
		t.Error("simulated pin active after Set(false)")
	}
}
