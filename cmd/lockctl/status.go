package main

import (
	"fmt"
	"os"
	"strings"

	systemd "github.com/coreos/go-systemd/v22/dbus"
	"github.com/iamptic/lockandgo"
	"github.com/iamptic/lockandgo/internal/store"
)

const unitName = "lockd.service"

func getStatus(storePath string) (string, error) {
	var status strings.Builder

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	fmt.Fprintf(&status, "Locker status for %s:\n\n", hostname)

	s, err := store.Open(storePath)
	if err != nil {
		fmt.Fprintf(&status, "error: cannot read device store: %v\n", err)
	} else {
		keys := s.Keys()
		if len(keys) == 0 {
			fmt.Fprintln(&status, "device is not provisioned")
		}
		for _, key := range keys {
			v, _ := s.Get(key)
			fmt.Fprintf(&status, "%v: %v\n", key, v)
		}
		if id, err := s.Get(store.KeyDeviceID); err == nil {
			if topics, err := lockandgo.DeriveTopics(id); err == nil {
				fmt.Fprintf(&status, "command topic: %v\nstatus topic: %v\n", topics.Command, topics.Status)
			}
		}
	}
	fmt.Fprintln(&status)

	conn, err := systemd.NewSystemConnection()
	if err != nil {
		return "", err
	}
	defer conn.Close()

	properties, err := conn.GetUnitProperties(unitName)
	if err != nil {
		return "", err
	}
	activeState, _ := properties["ActiveState"].(string)
	if activeState == "active" {
		fmt.Fprintf(&status, "%v is active.\n", unitName)
	} else {
		fmt.Fprintf(&status, "%v is %v.\n", unitName, activeState)
	}

	return status.String(), nil
}

func activate() error {
	conn, err := systemd.NewSystemConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, _, err := conn.EnableUnitFiles([]string{unitName}, false, true); err != nil {
		return err
	}

	done := make(chan string)
	if _, err := conn.StartUnit(unitName, "replace", done); err != nil {
		return err
	}
	<-done

	return nil
}

func deactivate() error {
	conn, err := systemd.NewSystemConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	done := make(chan string)
	if _, err := conn.StopUnit(unitName, "replace", done); err != nil {
		return err
	}
	<-done

	if _, err := conn.DisableUnitFiles([]string{unitName}, false); err != nil {
		return err
	}

	return nil
}
