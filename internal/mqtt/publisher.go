// Package mqtt republishes orchestrator hook events to an MQTT broker so
// home-automation and dashboard clients can follow the live session.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/soyeahso/iris/internal/config"
	"github.com/soyeahso/iris/internal/hooks"
	"github.com/soyeahso/iris/internal/logging"
)

// ErrNoBroker is returned by New when no broker address is configured.
var ErrNoBroker = errors.New("mqtt: broker not configured")

const (
	queueSize      = 256
	publishTimeout = 5 * time.Second
	disconnectMs   = 250
)

// client is the subset of paho.Client the publisher uses.
type client interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload any) paho.Token
	Disconnect(quiesce uint)
}

// Message is the JSON body published for each event.
type Message struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
	Time  time.Time      `json:"ts"`
}

type outbound struct {
	topic   string
	payload []byte
}

// Publisher queues hook events and publishes them from its Run goroutine.
// Hook handlers never wait on the network; a full queue drops events.
type Publisher struct {
	cfg     config.MQTTConfig
	client  client
	log     *logging.Logger
	queue   chan outbound
	dropped atomic.Int64
	now     func() time.Time
}

// New creates a publisher for cfg.Broker with auto-reconnect enabled.
func New(cfg config.MQTTConfig, log *logging.Logger) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, ErrNoBroker
	}
	log = log.Sub("mqtt")

	opts := paho.NewClientOptions().
		AddBroker(BrokerURL(cfg.Broker)).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetCleanSession(true).
		SetMaxReconnectInterval(10 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warn().Err(err).Msg("broker connection lost")
	})
	opts.SetOnConnectHandler(func(paho.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("connected to broker")
	})

	return newPublisher(cfg, paho.NewClient(opts), log), nil
}

func newPublisher(cfg config.MQTTConfig, c client, log *logging.Logger) *Publisher {
	return &Publisher{
		cfg:    cfg,
		client: c,
		log:    log,
		queue:  make(chan outbound, queueSize),
		now:    time.Now,
	}
}

// BrokerURL adds the tcp:// scheme to a bare host:port.
func BrokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Topic returns the topic an event is published on.
func Topic(prefix, event string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + event
}

// Attach subscribes to the configured events, or to every event when none
// are listed.
func (p *Publisher) Attach(hm *hooks.Manager) {
	if len(p.cfg.Events) == 0 {
		hm.On(hooks.EventAny, "mqtt", p.onHook)
		return
	}
	for _, ev := range p.cfg.Events {
		if !hooks.IsKnown(ev) {
			p.log.Warn().Str("event", ev).Msg("unknown event in mqtt.events")
			continue
		}
		hm.On(ev, "mqtt", p.onHook)
	}
}

func (p *Publisher) onHook(_ context.Context, pl hooks.Payload) error {
	body, err := json.Marshal(Message{Event: pl.Event, Data: pl.Data, Time: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("encoding %s: %w", pl.Event, err)
	}
	select {
	case p.queue <- outbound{topic: Topic(p.cfg.TopicPrefix, pl.Event), payload: body}:
	default:
		if n := p.dropped.Add(1); n == 1 || n%100 == 0 {
			p.log.Warn().Int64("dropped", n).Msg("publish queue full, dropping events")
		}
	}
	return nil
}

// Dropped returns how many events were discarded because the queue was full.
func (p *Publisher) Dropped() int64 { return p.dropped.Load() }

// Run connects to the broker and publishes queued events until ctx is
// cancelled. The initial connect is retried in the background by paho;
// events queue up meanwhile.
func (p *Publisher) Run(ctx context.Context) error {
	tok := p.client.Connect()
	select {
	case <-ctx.Done():
		p.client.Disconnect(disconnectMs)
		return nil
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return fmt.Errorf("connecting to broker: %w", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			p.client.Disconnect(disconnectMs)
			return nil
		case m := <-p.queue:
			tok := p.client.Publish(m.topic, 0, false, m.payload)
			if !tok.WaitTimeout(publishTimeout) {
				p.log.Warn().Str("topic", m.topic).Msg("publish timed out")
				continue
			}
			if err := tok.Error(); err != nil {
				p.log.Warn().Err(err).Str("topic", m.topic).Msg("publish failed")
			}
		}
	}
}
