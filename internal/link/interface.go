package link

import (
	"context"
	"fmt"
	"net"
	"time"

	"git.sr.ht/~spc/go-log"
	"github.com/iamptic/lockandgo/internal/clock"
)

// Interface is a Link that watches a single network interface managed by
// something else (systemd-networkd, ifupdown, a wpa_supplicant unit). It
// counts as up when the interface is up and carries a non-loopback address.
type Interface struct {
	name  string
	clock clock.Clock
	probe func(name string) (net.Flags, []net.Addr, error)

	// Timeout bounds a single Connect call.
	Timeout time.Duration

	// PollInterval is the delay between probes while connecting.
	PollInterval time.Duration
}

// NewInterface returns a Link watching the interface called name.
func NewInterface(name string, c clock.Clock) *Interface {
	return &Interface{
		name:         name,
		clock:        c,
		probe:        probeInterface,
		Timeout:      30 * time.Second,
		PollInterval: time.Second,
	}
}

func (i *Interface) Up(ctx context.Context) (bool, error) {
	flags, addrs, err := i.probe(i.name)
	if err != nil {
		return false, fmt.Errorf("cannot probe interface %v: %w", i.name, err)
	}
	if flags&net.FlagUp == 0 {
		return false, nil
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if ipnet.IP.IsGlobalUnicast() || ipnet.IP.IsPrivate() {
			return true, nil
		}
	}
	return false, nil
}

// Connect waits for the interface to come up on its own.
func (i *Interface) Connect(ctx context.Context) error {
	deadline := i.clock.Now().Add(i.Timeout)
	for {
		up, err := i.Up(ctx)
		if err != nil {
			return err
		}
		if up {
			log.Infof("interface %v is up", i.name)
			return nil
		}
		if !i.clock.Now().Before(deadline) {
			return fmt.Errorf("interface %v: %w", i.name, ErrTimeout)
		}
		if err := i.clock.SleepContext(ctx, i.PollInterval); err != nil {
			return err
		}
	}
}

func probeInterface(name string) (net.Flags, []net.Addr, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return 0, nil, err
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return 0, nil, err
	}
	return iface.Flags, addrs, nil
}
