// Package link establishes and probes the network link a locker needs before
// it can reach its broker.
package link

import (
	"context"
	"errors"
)

var (
	// ErrProfileFailed is returned by Connect when the stored link profile was
	// tried and rejected, for example because of wrong credentials.
	ErrProfileFailed = errors.New("link profile failed")

	// ErrNoProfile is returned by Connect when no usable link profile exists.
	ErrNoProfile = errors.New("no link profile")

	// ErrTimeout is returned by Connect when the link did not come up within
	// the connect timeout. It is worth retrying.
	ErrTimeout = errors.New("link not established in time")
)

// Link is a network link that can be probed and (re)established.
type Link interface {
	// Up reports whether the link is currently usable.
	Up(ctx context.Context) (bool, error)

	// Connect attempts to bring the link up, blocking until it is up or the
	// attempt has failed.
	Connect(ctx context.Context) error
}

// Static is a Link that is always up. It suits wired hosts where the link is
// managed entirely outside the process.
type Static struct{}

func (Static) Up(ctx context.Context) (bool, error) { return true, nil }

func (Static) Connect(ctx context.Context) error { return nil }
