package link

import (
	"context"
	"fmt"
	"time"

	"git.sr.ht/~spc/go-log"
	"github.com/godbus/dbus/v5"
	"github.com/iamptic/lockandgo/internal/clock"
)

const (
	nmDest            = "org.freedesktop.NetworkManager"
	nmPath            = "/org/freedesktop/NetworkManager"
	nmSettingsPath    = "/org/freedesktop/NetworkManager/Settings"
	nmInterface       = "org.freedesktop.NetworkManager"
	nmSettingsIface   = "org.freedesktop.NetworkManager.Settings"
	nmConnectionIface = "org.freedesktop.NetworkManager.Settings.Connection"
	nmActiveIface     = "org.freedesktop.NetworkManager.Connection.Active"
)

// NetworkManager global states (NMState). Anything at or above
// nmStateConnectedSite can reach a broker on the local network.
const (
	nmStateConnectedSite = 60
)

// Active connection states (NMActiveConnectionState).
const (
	nmActiveActivated   = 2
	nmActiveDeactivated = 4
)

// nmBus is the slice of the NetworkManager D-Bus API used by NetworkManager.
type nmBus interface {
	State() (uint32, error)
	FindConnection(id string) (dbus.ObjectPath, error)
	Activate(connection dbus.ObjectPath) (dbus.ObjectPath, error)
	ActiveState(active dbus.ObjectPath) (uint32, error)
}

// NetworkManager is a Link driven through NetworkManager over the system bus.
type NetworkManager struct {
	bus     nmBus
	profile string
	clock   clock.Clock

	// Timeout bounds a single Connect call.
	Timeout time.Duration

	// PollInterval is the delay between activation state checks.
	PollInterval time.Duration
}

// NewNetworkManager connects to the system bus. profile is the connection ID
// to activate; when empty, Connect only waits for NetworkManager to connect
// on its own.
func NewNetworkManager(profile string, c clock.Clock) (*NetworkManager, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("cannot connect to system bus: %w", err)
	}
	return newNetworkManager(&dbusNM{conn: conn}, profile, c), nil
}

func newNetworkManager(bus nmBus, profile string, c clock.Clock) *NetworkManager {
	return &NetworkManager{
		bus:          bus,
		profile:      profile,
		clock:        c,
		Timeout:      30 * time.Second,
		PollInterval: time.Second,
	}
}

// Up reports whether NetworkManager considers the host connected.
func (nm *NetworkManager) Up(ctx context.Context) (bool, error) {
	state, err := nm.bus.State()
	if err != nil {
		return false, fmt.Errorf("cannot get NetworkManager state: %w", err)
	}
	log.Tracef("NetworkManager state %v", state)
	return state >= nmStateConnectedSite, nil
}

// Connect activates the configured profile and waits for it to settle.
func (nm *NetworkManager) Connect(ctx context.Context) error {
	if nm.profile == "" {
		return nm.waitUp(ctx)
	}

	connection, err := nm.bus.FindConnection(nm.profile)
	if err != nil {
		return fmt.Errorf("cannot find connection '%v': %w", nm.profile, err)
	}
	if connection == "" {
		return fmt.Errorf("cannot find connection '%v': %w", nm.profile, ErrNoProfile)
	}

	active, err := nm.bus.Activate(connection)
	if err != nil {
		return fmt.Errorf("%w: cannot activate connection '%v': %v", ErrProfileFailed, nm.profile, err)
	}
	log.Debugf("activating connection '%v' as %v", nm.profile, active)

	deadline := nm.clock.Now().Add(nm.Timeout)
	for {
		state, err := nm.bus.ActiveState(active)
		if err != nil {
			// The active connection object is removed once activation fails.
			return fmt.Errorf("%w: connection '%v' vanished: %v", ErrProfileFailed, nm.profile, err)
		}
		switch state {
		case nmActiveActivated:
			log.Infof("connection '%v' activated", nm.profile)
			return nil
		case nmActiveDeactivated:
			return fmt.Errorf("%w: connection '%v' deactivated", ErrProfileFailed, nm.profile)
		}

		if !nm.clock.Now().Before(deadline) {
			return fmt.Errorf("cannot activate connection '%v': %w", nm.profile, ErrTimeout)
		}
		if err := nm.clock.SleepContext(ctx, nm.PollInterval); err != nil {
			return err
		}
	}
}

func (nm *NetworkManager) waitUp(ctx context.Context) error {
	deadline := nm.clock.Now().Add(nm.Timeout)
	for {
		up, err := nm.Up(ctx)
		if err != nil {
			return err
		}
		if up {
			return nil
		}
		if !nm.clock.Now().Before(deadline) {
			return ErrTimeout
		}
		if err := nm.clock.SleepContext(ctx, nm.PollInterval); err != nil {
			return err
		}
	}
}

type dbusNM struct {
	conn *dbus.Conn
}

func (b *dbusNM) State() (uint32, error) {
	v, err := b.conn.Object(nmDest, nmPath).GetProperty(nmInterface + ".State")
	if err != nil {
		return 0, err
	}
	state, ok := v.Value().(uint32)
	if !ok {
		return 0, fmt.Errorf("unexpected State type %T", v.Value())
	}
	return state, nil
}

func (b *dbusNM) FindConnection(id string) (dbus.ObjectPath, error) {
	var paths []dbus.ObjectPath
	if err := b.conn.Object(nmDest, nmSettingsPath).Call(nmSettingsIface+".ListConnections", dbus.Flags(0)).Store(&paths); err != nil {
		return "", err
	}

	for _, path := range paths {
		var settings map[string]map[string]dbus.Variant
		if err := b.conn.Object(nmDest, path).Call(nmConnectionIface+".GetSettings", dbus.Flags(0)).Store(&settings); err != nil {
			log.Warnf("cannot get settings of %v: %v", path, err)
			continue
		}
		if v, has := settings["connection"]["id"]; has {
			if name, ok := v.Value().(string); ok && name == id {
				return path, nil
			}
		}
	}

	return "", nil
}

func (b *dbusNM) Activate(connection dbus.ObjectPath) (dbus.ObjectPath, error) {
	var active dbus.ObjectPath
	err := b.conn.Object(nmDest, nmPath).Call(
		nmInterface+".ActivateConnection",
		dbus.Flags(0),
		connection,
		dbus.ObjectPath("/"),
		dbus.ObjectPath("/"),
	).Store(&active)
	return active, err
}

func (b *dbusNM) ActiveState(active dbus.ObjectPath) (uint32, error) {
	v, err := b.conn.Object(nmDest, active).GetProperty(nmActiveIface + ".State")
	if err != nil {
		return 0, err
	}
	state, ok := v.Value().(uint32)
	if !ok {
		return 0, fmt.Errorf("unexpected State type %T", v.Value())
	}
	return state, nil
}
