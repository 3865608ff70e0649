// Package pskreporter implements the PSKReporter MQTT feed adapter.
//
// PSKReporter publishes real-time digital mode reception reports over MQTT
// with compact JSON payloads. This client subscribes to the configured band
// filter topics, parses and enriches each message, and hands the resulting
// spots to the pipeline through a caller-supplied handler. Duplicate delivery
// and reordering are expected from the broker; downstream components are
// responsible for tolerating both.
//
// Connection management (auto-reconnect, resubscribe on connect) is delegated
// to the Paho client; this adapter only reflects connectivity state.
package pskreporter

import (
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"bandwatch/internal/observability"
	"bandwatch/internal/ratelimit"
	"bandwatch/spot"
	"bandwatch/stats"
)

// SourceName labels every spot produced by this feed.
const SourceName = "PSKREPORTER"

// Handler receives each parsed and enriched spot. It runs on the MQTT
// callback goroutine and must not block.
type Handler func(*spot.Spot)

// Client is the PSKReporter MQTT feed adapter.
type Client struct {
	broker  string
	port    int
	topics  []string
	client  mqtt.Client
	handler Handler
	tracker *stats.Tracker
	metrics *observability.Metrics
	dropLog *ratelimit.Counter
}

// NewClient builds a client for the given broker. Topics follow the
// pskr/filter/v2/{band}/{mode}/# convention; DefaultTopics covers the
// supported band set for one mode.
func NewClient(broker string, port int, topics []string, handler Handler, tracker *stats.Tracker, metrics *observability.Metrics) *Client {
	return &Client{
		broker:  broker,
		port:    port,
		topics:  topics,
		handler: handler,
		tracker: tracker,
		metrics: metrics,
		dropLog: ratelimit.NewCounter(30 * time.Second),
	}
}

// DefaultTopics returns one filter topic per supported band for the mode.
func DefaultTopics(mode string) []string {
	topics := make([]string, 0, len(spot.Bands))
	for _, band := range spot.Bands {
		topics = append(topics, fmt.Sprintf("pskr/filter/v2/%s/%s/#", band, mode))
	}
	return topics
}

// Connect establishes the connection to the MQTT broker and subscribes.
func (c *Client) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", c.broker, c.port))
	opts.SetClientID(fmt.Sprintf("bandwatch-%d", time.Now().Unix()))
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = mqtt.NewClient(opts)

	log.Printf("PSKReporter: connecting to %s:%d...", c.broker, c.port)
	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("pskreporter: connect: %w", token.Error())
	}
	return nil
}

// onConnect resubscribes after every (re)connection.
func (c *Client) onConnect(client mqtt.Client) {
	log.Printf("PSKReporter: connected, subscribing to %d topics", len(c.topics))
	if c.metrics != nil {
		c.metrics.FeedConnected.Set(1)
	}
	for _, topic := range c.topics {
		token := client.Subscribe(topic, 0, c.messageHandler)
		if token.Wait() && token.Error() != nil {
			log.Printf("PSKReporter: subscribe %s failed: %v", topic, token.Error())
		}
	}
}

func (c *Client) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("PSKReporter: connection lost: %v (auto-reconnect active)", err)
	if c.metrics != nil {
		c.metrics.FeedConnected.Set(0)
	}
}

// messageHandler parses, enriches, and forwards one message. Malformed
// messages are counted and dropped; nothing here may interrupt the stream.
func (c *Client) messageHandler(client mqtt.Client, msg mqtt.Message) {
	if c.metrics != nil {
		c.metrics.SpotsConsumed.Inc()
	}
	s := Parse(msg.Payload())
	if s == nil {
		if c.tracker != nil {
			c.tracker.IncrementParseDrop()
		}
		if c.metrics != nil {
			c.metrics.ParseDrops.Inc()
		}
		if total, allowed := c.dropLog.Inc(); allowed {
			log.Printf("PSKReporter: dropped unparseable message (%d total)", total)
		}
		return
	}
	enriched := spot.Enrich(s)
	if c.tracker != nil {
		c.tracker.IncrementSourceMode(enriched.Source, enriched.Mode)
	}
	if c.handler != nil {
		c.handler(enriched)
	}
}

// IsConnected reports the current broker connection state.
func (c *Client) IsConnected() bool {
	return c != nil && c.client != nil && c.client.IsConnected()
}

// SourceName returns the fixed feed label.
func (c *Client) SourceName() string {
	return SourceName
}

// Stop unsubscribes and disconnects, waiting briefly for a clean close.
func (c *Client) Stop() {
	if c.client != nil && c.client.IsConnected() {
		for _, topic := range c.topics {
			c.client.Unsubscribe(topic)
		}
		c.client.Disconnect(250)
	}
	log.Println("PSKReporter: stopped")
}
