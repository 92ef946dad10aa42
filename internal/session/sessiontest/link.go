package sessiontest

import (
	"context"
	"sync"
)

// Link is a scripted network link.
type Link struct {
	mu          sync.Mutex
	up          bool
	connects    int
	connectErrs []error
}

// NewLink returns a Link that starts up or down.
func NewLink(up bool) *Link {
	return &Link{up: up}
}

// SetUp forces the link state.
func (l *Link) SetUp(up bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.up = up
}

// FailConnects queues errors returned by successive Connect calls. Once the
// queue is empty Connect brings the link up.
func (l *Link) FailConnects(errs ...error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connectErrs = append(l.connectErrs, errs...)
}

// Connects returns the number of Connect calls so far.
func (l *Link) Connects() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connects
}

func (l *Link) Up(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.up, nil
}

func (l *Link) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connects++
	if len(l.connectErrs) > 0 {
		err := l.connectErrs[0]
		l.connectErrs = l.connectErrs[1:]
		return err
	}
	l.up = true
	return nil
}
