package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"smart-greenhouse/internal/sample"
	"smart-greenhouse/internal/types"
)

type published struct {
	topic    string
	retained bool
	payload  []byte
}

func newTestClient(t *testing.T, fail error) (*Client, *[]published) {
	t.Helper()
	c, err := NewClient(Options{Broker: "localhost", Port: 1883, ClientID: "test", TopicPrefix: "gh", BreakerFailures: 2, BreakerTimeout: time.Hour}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	var out []published
	c.publish = func(topic string, retained bool, payload []byte) error {
		if fail != nil {
			return fail
		}
		out = append(out, published{topic: topic, retained: retained, payload: payload})
		return nil
	}
	return c, &out
}

func TestNewClient_RequiresBroker(t *testing.T) {
	if _, err := NewClient(Options{}, nil); err == nil {
		t.Fatal("NewClient() error = nil, want error for empty broker")
	}
}

func TestTopics(t *testing.T) {
	if got := TelemetryTopic("gh", 7); got != "gh/7/telemetry" {
		t.Errorf("TelemetryTopic = %q, want gh/7/telemetry", got)
	}
	if got := CommandTopic("gh"); got != "gh/commands" {
		t.Errorf("CommandTopic = %q, want gh/commands", got)
	}
	if got := LinkTopic("gh"); got != "gh/link" {
		t.Errorf("LinkTopic = %q, want gh/link", got)
	}
}

func TestPublishTelemetry(t *testing.T) {
	c, out := newTestClient(t, nil)

	tel := types.Telemetry{ClientID: 7, Sequence: 3, Temperature: sample.Ptr(21.5)}
	if err := c.PublishTelemetry(tel); err != nil {
		t.Fatalf("PublishTelemetry: %v", err)
	}
	if len(*out) != 1 {
		t.Fatalf("published %d messages, want 1", len(*out))
	}
	msg := (*out)[0]
	if msg.topic != "gh/7/telemetry" || msg.retained {
		t.Errorf("topic/retained = %q/%v, want gh/7/telemetry/false", msg.topic, msg.retained)
	}
	var got types.Telemetry
	if err := json.Unmarshal(msg.payload, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Sequence != 3 || got.Temperature == nil || *got.Temperature != 21.5 {
		t.Errorf("payload = %+v, want sequence 3 temperature 21.5", got)
	}
	if got.Timestamp.IsZero() {
		t.Error("timestamp not filled in")
	}
}

func TestPublishLinkStatus_Retained(t *testing.T) {
	c, out := newTestClient(t, nil)

	if err := c.PublishLinkStatus(LinkStatus{Node: "server", Connected: true}); err != nil {
		t.Fatalf("PublishLinkStatus: %v", err)
	}
	if len(*out) != 1 || (*out)[0].topic != "gh/link" || !(*out)[0].retained {
		t.Errorf("published = %+v, want one retained message on gh/link", *out)
	}
}

func TestPublish_BreakerOpensAfterFailures(t *testing.T) {
	boom := errors.New("boom")
	c, _ := newTestClient(t, boom)
	tel := types.Telemetry{ClientID: 1}

	for i := 0; i < 2; i++ {
		if err := c.PublishTelemetry(tel); !errors.Is(err, boom) {
			t.Fatalf("attempt %d error = %v, want boom", i, err)
		}
	}

	calls := 0
	c.publish = func(string, bool, []byte) error {
		calls++
		return nil
	}
	err := c.PublishTelemetry(tel)
	if !errors.Is(err, ErrBrokerUnavailable) {
		t.Errorf("error = %v, want ErrBrokerUnavailable", err)
	}
	if calls != 0 {
		t.Errorf("publish called %d times while open, want 0", calls)
	}
}

func TestPublish_NotConnected(t *testing.T) {
	c, err := NewClient(Options{Broker: "localhost", Port: 1883}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := c.PublishTelemetry(types.Telemetry{ClientID: 1}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("error = %v, want ErrNotConnected", err)
	}
}

func TestConnect_AfterDisconnect(t *testing.T) {
	c, _ := newTestClient(t, nil)
	c.Disconnect()
	c.Disconnect()

	if err := c.Connect(t.Context()); !errors.Is(err, ErrStopped) {
		t.Errorf("Connect() error = %v, want ErrStopped", err)
	}
}
