// Package provision collects the broker endpoint and device identity from an
// operator when the locker cannot join its network or has never been set up.
package provision

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"git.sr.ht/~spc/go-log"
	"github.com/iamptic/lockandgo"
	"github.com/iamptic/lockandgo/internal/store"
)

// ErrTimeout is returned when no operator completed provisioning in time.
var ErrTimeout = errors.New("provisioning timed out")

// Settings are the values an operator supplies during provisioning.
type Settings struct {
	BrokerHost string
	BrokerPort int
	DeviceID   string
}

// Validate reports the first unusable field of s.
func (s Settings) Validate() error {
	if err := lockandgo.ValidateIdentity(s.DeviceID); err != nil {
		return err
	}
	if s.BrokerHost == "" {
		return lockandgo.NewInvalidArgumentError(store.KeyBrokerHost, "")
	}
	if s.BrokerPort < 1 || s.BrokerPort > 65535 {
		return lockandgo.NewInvalidArgumentError(store.KeyBrokerPort, strconv.Itoa(s.BrokerPort))
	}
	return nil
}

// A Provisioner blocks until an operator supplies valid Settings or ctx is
// done.
type Provisioner interface {
	Provision(ctx context.Context) (Settings, error)
}

// Disabled is a Provisioner for lockers with no setup portal. It waits out
// the provisioning window and fails.
type Disabled struct{}

func (Disabled) Provision(ctx context.Context) (Settings, error) {
	log.Warn("provisioning portal disabled, waiting for timeout")
	<-ctx.Done()
	return Settings{}, ErrTimeout
}

// Run provisions through p, bounded by timeout, and persists the result in s.
// ErrTimeout is returned when the window closes without valid settings.
func Run(ctx context.Context, p Provisioner, s store.Store, timeout time.Duration) (Settings, error) {
	windowCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Infof("starting provisioning, waiting up to %v", timeout)
	settings, err := p.Provision(windowCtx)
	if err != nil {
		if ctx.Err() != nil {
			return Settings{}, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
			return Settings{}, ErrTimeout
		}
		return Settings{}, fmt.Errorf("cannot provision: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, fmt.Errorf("cannot accept provisioned settings: %w", err)
	}

	values := []struct {
		key, value string
	}{
		{store.KeyBrokerHost, settings.BrokerHost},
		{store.KeyBrokerPort, strconv.Itoa(settings.BrokerPort)},
		{store.KeyDeviceID, settings.DeviceID},
	}
	for _, v := range values {
		if err := s.Put(v.key, v.value); err != nil {
			return Settings{}, fmt.Errorf("cannot save provisioned settings: %w", err)
		}
	}
	log.Infof("provisioned as %v against %v:%v", settings.DeviceID, settings.BrokerHost, settings.BrokerPort)

	return settings, nil
}
