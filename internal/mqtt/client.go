package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sony/gobreaker/v2"

	"smart-greenhouse/internal/types"
)

var (
	ErrNotConnected = errors.New("mqtt client not connected")
	ErrStopped      = errors.New("mqtt client stopped")
	// ErrBrokerUnavailable is returned while the publish breaker is open.
	ErrBrokerUnavailable = errors.New("mqtt broker unavailable")
)

const (
	defaultPublishTimeout  = 5 * time.Second
	defaultBreakerFailures = 3
	defaultBreakerTimeout  = 30 * time.Second
)

type Options struct {
	Broker      string
	Port        int
	ClientID    string
	TopicPrefix string

	PublishTimeout time.Duration
	// BreakerFailures consecutive publish failures open the breaker for
	// BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

func (o *Options) setDefaults() {
	if o.TopicPrefix == "" {
		o.TopicPrefix = "greenhouse"
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = defaultPublishTimeout
	}
	if o.BreakerFailures == 0 {
		o.BreakerFailures = defaultBreakerFailures
	}
	if o.BreakerTimeout <= 0 {
		o.BreakerTimeout = defaultBreakerTimeout
	}
}

// LinkStatus is the retained BLE link state of the server node.
type LinkStatus struct {
	Node      string    `json:"node"`
	Connected bool      `json:"connected"`
	Timestamp time.Time `json:"timestamp"`
}

type subscription struct {
	topic   string
	handler mqtt.MessageHandler
}

type Client struct {
	client  mqtt.Client
	opts    Options
	logger  *slog.Logger
	breaker *gobreaker.CircuitBreaker[struct{}]

	// publish is swapped in tests.
	publish func(topic string, retained bool, payload []byte) error

	mu        sync.RWMutex
	connected bool
	subs      []subscription
	hooks     []func()

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewClient(opts Options, logger *slog.Logger) (*Client, error) {
	if opts.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is empty")
	}
	opts.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		opts:   opts,
		logger: logger.With("component", "mqtt"),
		stopCh: make(chan struct{}),
	}
	c.breaker = newBreaker(opts, c.logger)

	po := mqtt.NewClientOptions()
	po.AddBroker(fmt.Sprintf("tcp://%s:%d", opts.Broker, opts.Port))
	po.SetClientID(opts.ClientID)

	// Session settings
	po.SetCleanSession(true)

	po.SetAutoReconnect(true)
	po.SetConnectRetry(true)
	po.SetConnectRetryInterval(5 * time.Second)
	po.SetMaxReconnectInterval(60 * time.Second)

	// Keepalive / timeouts
	po.SetKeepAlive(30 * time.Second)
	po.SetPingTimeout(10 * time.Second)

	po.SetOnConnectHandler(func(cl mqtt.Client) {
		c.setConnected(true)
		c.logger.Info("mqtt connected", "broker", opts.Broker, "port", opts.Port)
		c.onConnect(cl)
	})
	po.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setConnected(false)
		c.logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = mqtt.NewClient(po)
	c.publish = c.pahoPublish
	return c, nil
}

func newBreaker(opts Options, logger *slog.Logger) *gobreaker.CircuitBreaker[struct{}] {
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "mqtt-publish",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
}

// OnConnect registers fn to run, on its own goroutine, after every
// successful (re)connect.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	c.hooks = append(c.hooks, fn)
	c.mu.Unlock()
}

func (c *Client) onConnect(cl mqtt.Client) {
	c.mu.RLock()
	subs := append([]subscription(nil), c.subs...)
	hooks := append([]func(){}, c.hooks...)
	c.mu.RUnlock()

	// The session is clean, so subscriptions are renewed on every connect.
	for _, s := range subs {
		c.awaitSubscribe(cl.Subscribe(s.topic, 1, s.handler), s.topic)
	}
	for _, fn := range hooks {
		go fn()
	}
}

func (c *Client) awaitSubscribe(token mqtt.Token, topic string) {
	go func() {
		if !token.WaitTimeout(c.opts.PublishTimeout) {
			c.logger.Warn("subscribe timeout", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			c.logger.Error("subscribe failed", "topic", topic, "error", err)
			return
		}
		c.logger.Info("subscribed to mqtt topic", "topic", topic)
	}()
}

// Connect waits for the initial connection, honouring ctx and Disconnect.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return ErrStopped
	default:
	}

	if c.IsConnected() {
		return nil
	}

	token := c.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return ErrStopped
		default:
		}
	}
}

// TelemetryTopic is where samples of one client node are published.
func TelemetryTopic(prefix string, clientID uint16) string {
	return fmt.Sprintf("%s/%d/telemetry", prefix, clientID)
}

// CommandTopic carries actuator commands for the server node.
func CommandTopic(prefix string) string {
	return prefix + "/commands"
}

// LinkTopic holds the retained BLE link state of the server node.
func LinkTopic(prefix string) string {
	return prefix + "/link"
}

// PublishTelemetry publishes t through the breaker.
func (c *Client) PublishTelemetry(t types.Telemetry) error {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}
	topic := TelemetryTopic(c.opts.TopicPrefix, t.ClientID)
	if err := c.guarded(topic, false, data); err != nil {
		return err
	}
	c.logger.Debug("published telemetry", "topic", topic, "client_id", t.ClientID, "sequence", t.Sequence)
	return nil
}

// PublishLinkStatus publishes the retained link state.
func (c *Client) PublishLinkStatus(s LinkStatus) error {
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal link status: %w", err)
	}
	topic := LinkTopic(c.opts.TopicPrefix)
	if err := c.guarded(topic, true, data); err != nil {
		return err
	}
	c.logger.Debug("published link status", "topic", topic, "connected", s.Connected)
	return nil
}

func (c *Client) guarded(topic string, retained bool, data []byte) error {
	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.publish(topic, retained, data)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("publish %s: %w: %w", topic, ErrBrokerUnavailable, err)
	}
	return err
}

func (c *Client) pahoPublish(topic string, retained bool, data []byte) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, 1, retained, data)
	if !token.WaitTimeout(c.opts.PublishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		c.logger.Error("failed to publish", "topic", topic, "error", err)
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// SubscribeCommands delivers every valid command to h. The subscription is
// renewed on reconnect; invalid payloads are logged and dropped.
func (c *Client) SubscribeCommands(h func(Command)) {
	topic := CommandTopic(c.opts.TopicPrefix)
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		cmd, err := ParseCommand(msg.Payload())
		if err != nil {
			c.logger.Warn("invalid command", "topic", msg.Topic(), "error", err, "payload", string(msg.Payload()))
			return
		}
		c.logger.Info("command received", "action", cmd.Action)
		h(cmd)
	}

	c.mu.Lock()
	c.subs = append(c.subs, subscription{topic: topic, handler: handler})
	c.mu.Unlock()

	if c.IsConnected() {
		c.awaitSubscribe(c.client.Subscribe(topic, 1, handler), topic)
	}
}

// IsConnected returns whether the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Disconnect stops the client. Idempotent; Connect fails afterwards.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() { close(c.stopCh) })

	if c.client != nil {
		c.client.Disconnect(250)
	}

	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
