// Package controller runs the locker's main loop: keep the link and broker
// session up, poll for commands and drive the relay.
package controller

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"git.sr.ht/~spc/go-log"
	"github.com/iamptic/lockandgo"
	"github.com/iamptic/lockandgo/internal/command"
	"github.com/iamptic/lockandgo/internal/session"
)

// Session is the part of session.Manager the controller drives.
type Session interface {
	EnsureLink(ctx context.Context) error
	EnsureSession(ctx context.Context) error
	State() session.ConnectionState
	PollInbound(ctx context.Context) (command.Message, bool)
	Publish(topic string, payload []byte) error
	ReloadTLSConfig(cfg *tls.Config)
}

// Actuator releases the lock for a hold duration.
type Actuator interface {
	Actuate(hold time.Duration) error
}

// Notifier reports progress to a process supervisor.
type Notifier interface {
	Ready()
	Status(status string)
	Watchdog()
}

type nopNotifier struct{}

func (nopNotifier) Ready()        {}
func (nopNotifier) Status(string) {}
func (nopNotifier) Watchdog()     {}

// Option configures a Controller.
type Option func(*Controller)

// WithNotifier sets the supervisor notifier.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) {
		c.notifier = n
	}
}

// WithTLSUpdates sets a channel of replacement TLS configurations. Each one
// is applied to the session between iterations.
func WithTLSUpdates(updates <-chan *tls.Config) Option {
	return func(c *Controller) {
		c.tlsUpdates = updates
	}
}

// Controller is the single-goroutine control loop of a locker.
type Controller struct {
	session    Session
	actuator   Actuator
	topics     lockandgo.TopicPair
	hold       time.Duration
	notifier   Notifier
	tlsUpdates <-chan *tls.Config
	logger     *log.Logger

	lastState session.ConnectionState
	ready     bool
}

// New returns a Controller driving a for hold whenever an OPEN command
// arrives on topics.Command.
func New(s Session, a Actuator, topics lockandgo.TopicPair, hold time.Duration, opts ...Option) *Controller {
	c := Controller{
		session:   s,
		actuator:  a,
		topics:    topics,
		hold:      hold,
		notifier:  nopNotifier{},
		logger:    log.New(log.Writer(), fmt.Sprintf("%v[controller] ", log.Prefix()), log.Flags(), log.CurrentLevel()),
		lastState: -1,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

// Run calls Step until ctx is done or Step fails. Cancellation is not an
// error.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Infof("listening for commands on %v", c.topics.Command)
	for ctx.Err() == nil {
		if err := c.Step(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}
	}
	c.logger.Info("stopped")
	return nil
}

// Step runs one iteration of the loop. It blocks while the link or the
// session is down and for the whole hold of an open.
func (c *Controller) Step(ctx context.Context) error {
	if err := c.session.EnsureLink(ctx); err != nil {
		return err
	}
	c.observe()

	if c.session.State() != session.StateSessionUp {
		if err := c.session.EnsureSession(ctx); err != nil {
			if errors.Is(err, session.ErrLinkDown) {
				c.logger.Warn("link lost while connecting to broker")
				c.observe()
				return nil
			}
			return err
		}
	}
	c.observe()

	select {
	case cfg := <-c.tlsUpdates:
		c.session.ReloadTLSConfig(cfg)
	default:
	}

	if msg, ok := c.session.PollInbound(ctx); ok {
		c.handle(msg)
	}

	c.notifier.Watchdog()
	return nil
}

func (c *Controller) handle(msg command.Message) {
	switch command.Interpret(msg, c.topics.Command) {
	case command.ActionOpen:
		c.logger.Infof("opening lock for %v", c.hold)
		status := lockandgo.StatusNameOpened
		if err := c.actuator.Actuate(c.hold); err != nil {
			c.logger.Errorf("cannot open lock: %v", err)
			status = lockandgo.StatusNameError
		}
		if err := c.session.Publish(c.topics.Status, []byte(status)); err != nil {
			c.logger.Warnf("cannot publish status %v: %v", status, err)
			return
		}
		c.logger.Infof("reported %v", status)
	default:
		c.logger.Infof("ignoring message on topic %v: %q", msg.Topic, msg.Payload)
	}
}

func (c *Controller) observe() {
	state := c.session.State()
	if state != c.lastState {
		c.notifier.Status(state.String())
		c.lastState = state
	}
	if state == session.StateSessionUp && !c.ready {
		c.notifier.Ready()
		c.ready = true
	}
}
