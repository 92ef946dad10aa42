package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	"git.sr.ht/~spc/go-log"
	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/iamptic/lockandgo"
	"github.com/iamptic/lockandgo/internal/config"
	"github.com/urfave/cli/v2"
)

// handlerFunc receives every message on the subscribed topics.
type handlerFunc func(topic string, payload []byte)

// dial connects to the broker named by the "broker" flag and subscribes to
// topics. It returns once the subscription is acknowledged.
func dial(ctx context.Context, c *cli.Context, topics []string, handler handlerFunc) (*autopaho.ConnectionManager, error) {
	u, err := url.Parse(c.String("broker"))
	if err != nil {
		return nil, fmt.Errorf("cannot parse broker URL: %w", err)
	}

	var tlsConfig *tls.Config
	conf := config.Config{
		CertFile: c.String(config.FlagNameCertFile),
		KeyFile:  c.String(config.FlagNameKeyFile),
		CARoot:   c.StringSlice(config.FlagNameCaRoot),
	}
	if conf.TLSEnabled() {
		tlsConfig, err = conf.CreateTLSConfig()
		if err != nil {
			return nil, err
		}
	}

	clientID := c.String("client-id")
	if clientID == "" {
		clientID = fmt.Sprintf("%vctl-%v", lockandgo.ShortName, os.Getpid())
	}

	subscriptions := make([]paho.SubscribeOptions, 0, len(topics))
	for _, topic := range topics {
		subscriptions = append(subscriptions, paho.SubscribeOptions{Topic: topic, QoS: 1})
	}

	subscribed := make(chan struct{})
	var once sync.Once

	clientConfig := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		TlsCfg:                        tlsConfig,
		KeepAlive:                     30,
		CleanStartOnInitialConnection: true,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, connAck *paho.Connack) {
			log.Debugf("connected to broker %v", u)
			if _, err := cm.Subscribe(context.Background(), &paho.Subscribe{
				Subscriptions: subscriptions,
			}); err != nil {
				log.Errorf("cannot subscribe: %v", err)
				return
			}
			log.Debugf("subscribed to %v", strings.Join(topics, ", "))
			once.Do(func() { close(subscribed) })
		},
		OnConnectError: func(err error) {
			log.Warnf("cannot connect to broker: %v", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					handler(pr.Packet.Topic, pr.Packet.Payload)
					return true, nil
				},
			},
			OnClientError: func(err error) {
				log.Warnf("client error: %v", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				log.Warnf("server requested disconnect: %v", d.ReasonCode)
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("cannot create connection: %w", err)
	}

	select {
	case <-subscribed:
		return cm, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("cannot connect to %v: %w", u, ctx.Err())
	}
}

// lockerFromTopic extracts the device identity from a status topic.
func lockerFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != lockandgo.TopicPrefix || parts[2] != "status" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
