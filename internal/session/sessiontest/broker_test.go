package sessiontest

import (
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/go-cmp/cmp"
)

func TestClient(t *testing.T) {
	b := NewBroker(time.Now)
	c := b.NewClient(mqtt.NewClientOptions().SetClientID("locker_01"))

	if token := c.Connect(); token.Wait() && token.Error() != nil {
		t.Fatal(token.Error())
	}

	var got []string
	c.Subscribe("lockngo/locker_01/command", 1, func(_ mqtt.Client, msg mqtt.Message) {
		got = append(got, string(msg.Payload()))
	})
	if !b.Deliver("lockngo/locker_01/command", []byte("OPEN")) {
		t.Fatal("message not delivered")
	}
	if !cmp.Equal(got, []string{"OPEN"}) {
		t.Errorf("%v", cmp.Diff(got, []string{"OPEN"}))
	}

	if id := c.(*Client).Options().ClientID; id != "locker_01" {
		t.Errorf("%v != locker_01", id)
	}
	_ = c.OptionsReader()

	c.Disconnect(0)
	if c.IsConnectionOpen() {
		t.Error("client still open after disconnect")
	}
}
