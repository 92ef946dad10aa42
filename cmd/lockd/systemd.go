package main

import (
	"git.sr.ht/~spc/go-log"
	"github.com/coreos/go-systemd/v22/daemon"
)

// systemdNotifier reports readiness, status and watchdog keep-alives to
// systemd. Every call is a no-op when the process is not run by systemd.
type systemdNotifier struct{}

func (n systemdNotifier) Ready() {
	n.notify(daemon.SdNotifyReady)
}

func (n systemdNotifier) Status(status string) {
	n.notify("STATUS=" + status)
}

func (n systemdNotifier) Watchdog() {
	n.notify(daemon.SdNotifyWatchdog)
}

func (n systemdNotifier) Stopping() {
	n.notify(daemon.SdNotifyStopping)
}

func (systemdNotifier) notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Debugf("cannot notify systemd: %v", err)
		return
	}
	if sent {
		log.Tracef("notified systemd: %v", state)
	}
}
