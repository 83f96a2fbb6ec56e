package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/shuttercam/shuttercam/internal/debug"
	"github.com/shuttercam/shuttercam/internal/event"
)

// Client is the subset of paho.Client the publisher needs.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// PublisherConfig holds configuration for the activity publisher.
type PublisherConfig struct {
	TopicPrefix string
	QoS         byte
	Buffer      int           // queued activities before drops; default 64
	Timeout     time.Duration // per-publish wait; default 5s
}

// Publisher sends activities as JSON to <prefix>/<profile>/events.
// Publish never blocks; activities are queued and dropped when the queue
// is full. It implements event.Sink.
type Publisher struct {
	client  Client
	prefix  string
	qos     byte
	timeout time.Duration
	queue   chan event.Activity
	dropped atomic.Int64
}

// NewPublisher creates a publisher over client.
func NewPublisher(client Client, cfg PublisherConfig) *Publisher {
	prefix := strings.Trim(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.QoS > 2 {
		cfg.QoS = 2
	}
	return &Publisher{
		client:  client,
		prefix:  prefix,
		qos:     cfg.QoS,
		timeout: cfg.Timeout,
		queue:   make(chan event.Activity, cfg.Buffer),
	}
}

// Publish queues a for sending.
func (p *Publisher) Publish(a event.Activity) {
	select {
	case p.queue <- a:
	default:
		if p.dropped.Add(1) == 1 {
			debug.Warn("MQTT: queue full, dropping activities")
		}
	}
}

// Dropped returns how many activities were discarded on a full queue.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Topic returns the events topic for a profile.
func (p *Publisher) Topic(profile string) string {
	if profile == "" {
		profile = "default"
	}
	return p.prefix + "/" + profile + "/events"
}

// Start sends queued activities until ctx is cancelled, then flushes what is
// already queued.
func (p *Publisher) Start(ctx context.Context) {
	debug.Verbose("MQTT publisher: starting")
	for {
		select {
		case <-ctx.Done():
			p.flush()
			debug.Verbose("MQTT publisher: stopped")
			return
		case a := <-p.queue:
			if err := p.send(a); err != nil {
				debug.Warn("MQTT: %v", err)
			}
		}
	}
}

func (p *Publisher) flush() {
	for {
		select {
		case a := <-p.queue:
			if err := p.send(a); err != nil {
				debug.Warn("MQTT: %v", err)
			}
		default:
			return
		}
	}
}

func (p *Publisher) send(a event.Activity) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}
	topic := p.Topic(a.Profile)
	token := p.client.Publish(topic, p.qos, false, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish to %s: timed out after %s", topic, p.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	debug.Trace("MQTT: published %s to %s", a.Kind, topic)
	return nil
}
