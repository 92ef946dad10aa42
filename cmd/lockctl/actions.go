package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"git.sr.ht/~spc/go-log"
	"github.com/briandowns/spinner"
	"github.com/eclipse/paho.golang/paho"
	"github.com/iamptic/lockandgo"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

// errLockerFailed is returned when a locker reports a status other than
// OPENED in response to an open.
var errLockerFailed = errors.New("locker did not open")

func openAction(c *cli.Context) error {
	id := c.Args().First()
	topics, err := lockandgo.DeriveTopics(id)
	if err != nil {
		return cli.Exit(err, 1)
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	statuses := make(chan string, 1)
	cm, err := dial(ctx, c, []string{topics.Status}, func(topic string, payload []byte) {
		if topic != topics.Status {
			return
		}
		select {
		case statuses <- string(payload):
		default:
		}
	})
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := cm.Disconnect(disconnectCtx); err != nil {
			log.Debugf("cannot disconnect: %v", err)
		}
	}()

	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   topics.Command,
		QoS:     1,
		Payload: []byte(lockandgo.CommandNameOpen),
	}); err != nil {
		return cli.Exit(fmt.Errorf("cannot publish command: %w", err), 1)
	}
	log.Debugf("published %v to %v", lockandgo.CommandNameOpen, topics.Command)

	stopSpinner := func() {}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		s := spinner.New(spinner.CharSets[11], 100*time.Millisecond)
		s.Writer = os.Stderr
		s.Suffix = fmt.Sprintf(" waiting for %v", id)
		s.Start()
		stopSpinner = s.Stop
	}

	select {
	case status := <-statuses:
		stopSpinner()
		if err := checkStatus(status); err != nil {
			return cli.Exit(fmt.Errorf("%v: %w", id, err), 1)
		}
		fmt.Fprintf(c.App.Writer, "%v: %v\n", id, status)
		return nil
	case <-ctx.Done():
		stopSpinner()
		return cli.Exit(fmt.Errorf("%v: no status within %v", id, c.Duration("timeout")), 1)
	}
}

// checkStatus maps a status payload received after an open to an error.
func checkStatus(status string) error {
	switch lockandgo.StatusName(status) {
	case lockandgo.StatusNameOpened:
		return nil
	case lockandgo.StatusNameError, lockandgo.StatusNameOffline:
		return fmt.Errorf("%w: %v", errLockerFailed, status)
	default:
		return fmt.Errorf("%w: unexpected status %q", errLockerFailed, status)
	}
}

func watchAction(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	filter := lockandgo.TopicPrefix + "/+/status"
	cm, err := dial(ctx, c, []string{filter}, func(topic string, payload []byte) {
		id, ok := lockerFromTopic(topic)
		if !ok {
			log.Debugf("ignoring message on topic %v", topic)
			return
		}
		fmt.Fprintf(c.App.Writer, "%v\t%v\t%v\n", time.Now().Format(time.RFC3339), id, string(payload))
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return cli.Exit(err, 1)
	}
	log.Infof("watching %v", filter)

	select {
	case <-ctx.Done():
	case <-cm.Done():
	}

	disconnectCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := cm.Disconnect(disconnectCtx); err != nil {
		log.Debugf("cannot disconnect: %v", err)
	}
	return nil
}
