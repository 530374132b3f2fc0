package mqtt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/synthd/internal/infrastructure/config"
)

// testConfig points at a local Mosquitto broker. Tests that need one skip
// when it is not running.
func testConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

var testTopics = NewTopics("synthd-test", "unit")

func connectOrSkip(t *testing.T, clientID string) *Client {
	t.Helper()
	client, err := Connect(testConfig(clientID), testTopics)
	if err != nil {
		t.Skipf("no MQTT broker on 127.0.0.1:1883: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

type mockLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (m *mockLogger) Warn(msg string, _ ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}

func (m *mockLogger) Error(msg string, _ ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, msg)
}

func TestTopics(t *testing.T) {
	topics := NewTopics("", "studio-a")

	tests := []struct {
		got  string
		want string
	}{
		{topics.Online(), "synthd/studio-a/online"},
		{topics.Status(), "synthd/studio-a/status"},
		{topics.Reply(), "synthd/studio-a/reply"},
		{topics.Command(CommandBoot), "synthd/studio-a/command/boot"},
		{topics.Result(CommandSend), "synthd/studio-a/result/send"},
		{topics.AllCommands(), "synthd/studio-a/command/+"},
		{NewTopics("lab/", "x").Status(), "lab/x/status"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestTopics_CommandName(t *testing.T) {
	topics := NewTopics("synthd", "studio-a")

	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{"synthd/studio-a/command/boot", "boot", true},
		{"synthd/studio-a/command/send", "send", true},
		{"synthd/studio-a/command/", "", false},
		{"synthd/studio-a/command/a/b", "", false},
		{"synthd/other/command/boot", "", false},
		{"synthd/studio-a/status", "", false},
	}
	for _, tt := range tests {
		name, ok := topics.CommandName(tt.topic)
		if name != tt.want || ok != tt.wantOK {
			t.Errorf("CommandName(%q) = %q, %v, want %q, %v", tt.topic, name, ok, tt.want, tt.wantOK)
		}
	}
}

func TestPresencePayload(t *testing.T) {
	online := presencePayload(true, "synthd", "")
	if !strings.Contains(online, `"status":"online"`) || strings.Contains(online, "reason") {
		t.Errorf("online payload = %s", online)
	}
	offline := presencePayload(false, "synthd", "graceful_shutdown")
	if !strings.Contains(offline, `"status":"offline"`) || !strings.Contains(offline, `"reason":"graceful_shutdown"`) {
		t.Errorf("offline payload = %s", offline)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig("opts")
	cfg.Broker.TLS = true
	cfg.Auth.Username = "user"

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.Username != "user" || opts.ClientID != "opts" {
		t.Errorf("Username, ClientID = %q, %q", opts.Username, opts.ClientID)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig not set")
	}

	configureLWT(opts, testTopics, "opts")
	if !opts.WillEnabled || opts.WillTopic != testTopics.Online() || !opts.WillRetained {
		t.Errorf("will = %v %q retained=%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
}

func TestValidationWithoutConnection(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"publish empty topic", client.Publish("", []byte("x"), 1, false), ErrInvalidTopic},
		{"publish invalid qos", client.Publish("a", []byte("x"), 3, false), ErrInvalidQoS},
		{"publish too large", client.Publish("a", make([]byte, maxPayloadSize+1), 1, false), ErrPublishFailed},
		{"publish disconnected", client.Publish("a", []byte("x"), 1, false), ErrNotConnected},
		{"publish json disconnected", client.PublishJSON("a", map[string]int{"a": 1}, false), ErrNotConnected},
		{"publish json unmarshalable", client.PublishJSON("a", func() {}, false), ErrPublishFailed},
		{"subscribe empty topic", client.Subscribe("", 1, noop), ErrInvalidTopic},
		{"subscribe invalid qos", client.Subscribe("a", 3, noop), ErrInvalidQoS},
		{"subscribe nil handler", client.Subscribe("a", 1, nil), ErrSubscribeFailed},
		{"subscribe disconnected", client.Subscribe("a", 1, noop), ErrNotConnected},
		{"unsubscribe empty topic", client.Unsubscribe(""), ErrInvalidTopic},
		{"unsubscribe disconnected", client.Unsubscribe("a"), ErrNotConnected},
		{"health disconnected", client.HealthCheck(context.Background()), ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("error = %v, want %v", tt.err, tt.want)
			}
		})
	}

	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true for unconnected client")
	}
}

func TestDispatch_RecoversAndLogs(t *testing.T) {
	logger := &mockLogger{}
	client := &Client{}
	client.SetLogger(logger)

	client.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)
	client.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "t", nil)
	client.dispatch(func(string, []byte) error { return nil }, "t", nil)

	if len(logger.errs) != 1 || len(logger.warns) != 1 {
		t.Errorf("errors = %v, warnings = %v", logger.errs, logger.warns)
	}
}

func TestConnectInvalidBroker(t *testing.T) {
	cfg := testConfig("synthd-test-invalid")
	cfg.Broker.Port = 19999

	_, err := Connect(cfg, testTopics)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnectAndClose(t *testing.T) {
	client := connectOrSkip(t, "synthd-test-connect")

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() with cancelled context should fail")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	sub := connectOrSkip(t, "synthd-test-sub")
	pub := connectOrSkip(t, "synthd-test-pub")

	received := make(chan string, 4)
	if err := sub.Subscribe(testTopics.AllCommands(), 1, func(topic string, payload []byte) error {
		received <- topic + " " + string(payload)
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !sub.HasSubscription(testTopics.AllCommands()) {
		t.Error("HasSubscription() = false after Subscribe")
	}

	time.Sleep(100 * time.Millisecond)

	if err := pub.PublishJSON(testTopics.Command(CommandSend), map[string]string{"address": "/status"}, false); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case msg := <-received:
		want := testTopics.Command(CommandSend) + ` {"address":"/status"}`
		if msg != want {
			t.Errorf("received %q, want %q", msg, want)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for message")
	}

	if err := sub.Unsubscribe(testTopics.AllCommands()); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if sub.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after Unsubscribe", sub.SubscriptionCount())
	}
}
