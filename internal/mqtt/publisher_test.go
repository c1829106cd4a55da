package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/soyeahso/iris/internal/config"
	"github.com/soyeahso/iris/internal/hooks"
	"github.com/soyeahso/iris/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }

func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	connectErr   error
	publishErr   error
	sent         []published
	disconnected bool
}

func (c *fakeClient) Connect() paho.Token { return doneToken{err: c.connectErr} }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload any) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, published{topic, qos, retained, payload.([]byte)})
	return doneToken{err: c.publishErr}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeClient) messages() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.sent...)
}

func testLog() *logging.Logger { return logging.New(nil, "silent") }

func TestBrokerURL(t *testing.T) {
	assert.Equal(t, "tcp://localhost:1883", BrokerURL("localhost:1883"))
	assert.Equal(t, "ssl://broker:8883", BrokerURL("ssl://broker:8883"))
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "iris/mode_changed", Topic("iris", "mode_changed"))
	assert.Equal(t, "home/iris/turn_completed", Topic("home/iris/", "turn_completed"))
}

func TestNew_RequiresBroker(t *testing.T) {
	_, err := New(config.MQTTConfig{}, testLog())
	assert.ErrorIs(t, err, ErrNoBroker)
}

func TestPublisher_PublishesHookEvents(t *testing.T) {
	fc := &fakeClient{}
	p := newPublisher(config.MQTTConfig{TopicPrefix: "iris"}, fc, testLog())
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	hm := hooks.NewManager(testLog())
	p.Attach(hm)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	hm.Emit(ctx, hooks.EventModeChanged, map[string]any{"from": "idle", "to": "user_speaking"})
	hm.Emit(ctx, hooks.EventTurnCompleted, map[string]any{"reply": "Sure."})

	require.Eventually(t, func() bool { return len(fc.messages()) == 2 }, time.Second, 5*time.Millisecond)

	msgs := fc.messages()
	assert.Equal(t, "iris/mode_changed", msgs[0].topic)
	assert.Equal(t, "iris/turn_completed", msgs[1].topic)
	assert.Equal(t, byte(0), msgs[0].qos)
	assert.False(t, msgs[0].retained)

	var m Message
	require.NoError(t, json.Unmarshal(msgs[0].payload, &m))
	assert.Equal(t, hooks.EventModeChanged, m.Event)
	assert.Equal(t, "user_speaking", m.Data["to"])
	assert.True(t, m.Time.Equal(at))

	cancel()
	require.NoError(t, <-done)
	assert.True(t, fc.disconnected)
}

func TestPublisher_EventFilter(t *testing.T) {
	fc := &fakeClient{}
	p := newPublisher(config.MQTTConfig{
		TopicPrefix: "iris",
		Events:      []string{hooks.EventTurnCompleted, "not_an_event"},
	}, fc, testLog())

	hm := hooks.NewManager(testLog())
	p.Attach(hm)
	hm.Emit(context.Background(), hooks.EventModelText, map[string]any{"text": "partial"})
	hm.Emit(context.Background(), hooks.EventTurnCompleted, nil)

	require.Len(t, p.queue, 1)
	m := <-p.queue
	assert.Equal(t, "iris/turn_completed", m.topic)
}

func TestPublisher_DropsWhenQueueFull(t *testing.T) {
	p := newPublisher(config.MQTTConfig{TopicPrefix: "iris"}, &fakeClient{}, testLog())
	hm := hooks.NewManager(testLog())
	p.Attach(hm)

	for range queueSize + 5 {
		hm.Emit(context.Background(), hooks.EventModelText, map[string]any{"text": "x"})
	}
	assert.Len(t, p.queue, queueSize)
	assert.Equal(t, int64(5), p.Dropped())
}

func TestPublisher_ConnectFailure(t *testing.T) {
	fc := &fakeClient{connectErr: errors.New("not authorized")}
	p := newPublisher(config.MQTTConfig{}, fc, testLog())

	err := p.Run(context.Background())
	assert.ErrorContains(t, err, "not authorized")
}

func TestPublisher_PublishErrorKeepsRunning(t *testing.T) {
	fc := &fakeClient{publishErr: errors.New("not connected")}
	p := newPublisher(config.MQTTConfig{TopicPrefix: "iris"}, fc, testLog())
	hm := hooks.NewManager(testLog())
	p.Attach(hm)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	hm.Emit(ctx, hooks.EventSessionStart, nil)
	hm.Emit(ctx, hooks.EventSessionStop, nil)
	require.Eventually(t, func() bool { return len(fc.messages()) == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
