package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/rconbridge/internal/config"
	"github.com/energizer-project/rconbridge/internal/events"
	"github.com/energizer-project/rconbridge/internal/util"
)

type published struct {
	topic string
	msg   map[string]interface{}
}

type recorder struct {
	mu   sync.Mutex
	sent []published
}

func (r *recorder) send(topic string, data []byte) {
	var msg map[string]interface{}
	if err := json.Unmarshal(data, &msg); err != nil {
		panic(err)
	}
	r.mu.Lock()
	r.sent = append(r.sent, published{topic: topic, msg: msg})
	r.mu.Unlock()
}

func (r *recorder) all() []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]published(nil), r.sent...)
}

func newTestHandler(t *testing.T) (*MQTTHandler, *recorder, *events.EventBus) {
	t.Helper()
	bus := events.NewEventBus()
	t.Cleanup(bus.Stop)

	rec := &recorder{}
	h := &MQTTHandler{
		eventBus: bus,
		logger:   util.ComponentLogger("mqtt"),
		metadata: hostMetadata(util.SystemInfo{Hostname: "gw-1", CPUCores: 4}),
		send:     rec.send,
	}
	h.subscribeEvents()
	return h, rec, bus
}

func TestNewMQTTHandlerDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	_, err := NewMQTTHandler(cfg, events.NewEventBus())
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestBrokerURL(t *testing.T) {
	cfg := config.MQTTConfig{BrokerURL: "broker.local", Port: 8883, UseTLS: true}
	assert.Equal(t, "ssl://broker.local:8883", brokerURL(cfg))

	cfg.UseTLS = false
	cfg.Port = 1883
	assert.Equal(t, "tcp://broker.local:1883", brokerURL(cfg))
}

func TestBuildTLSConfigMissingCA(t *testing.T) {
	_, err := buildTLSConfig(config.MQTTConfig{CAFile: "/nonexistent/ca.pem"})
	assert.Error(t, err)

	tlsCfg, err := buildTLSConfig(config.MQTTConfig{})
	require.NoError(t, err)
	assert.Nil(t, tlsCfg.RootCAs)
	assert.Empty(t, tlsCfg.Certificates)
}

func TestBuildMessageIncludesMetadata(t *testing.T) {
	h, _, _ := newTestHandler(t)

	msg := h.buildMessage("command_executed", map[string]string{"server": "alpha"})
	assert.Equal(t, "gw-1", msg["hostname"])
	assert.Equal(t, 4, msg["cpu_cores"])
	assert.Equal(t, util.Version, msg["app_version"])
	assert.Equal(t, "command_executed", msg["event"])
	assert.NotEmpty(t, msg["timestamp"])
}

func TestNotifyTopic(t *testing.T) {
	assert.Equal(t, TopicStatus, notifyTopic(""))
	assert.Equal(t, TopicStatus, notifyTopic("status"))
	assert.Equal(t, TopicHealth, notifyTopic(TopicHealth))
	assert.Equal(t, "rconbridge/custom", notifyTopic("/custom"))
}

func TestEventsRouteToTopics(t *testing.T) {
	_, rec, bus := newTestHandler(t)
	ctx := context.Background()

	require.NoError(t, bus.EmitSync(ctx, events.Event{
		Type:   events.EventCommandExecuted,
		Source: "manager",
		Payload: events.CommandPayload{
			ID: "1", Server: "alpha", Command: "status", Body: "ok",
			ExecutedAt: time.Now(),
		},
	}))
	require.NoError(t, bus.EmitSync(ctx, events.Event{
		Type:    events.EventAuthFailed,
		Source:  "session",
		Payload: events.SessionPayload{Server: "alpha", Address: "127.0.0.1:27015"},
	}))
	require.NoError(t, bus.EmitSync(ctx, events.Event{
		Type:    events.EventHealthProbe,
		Source:  "health",
		Payload: events.HealthPayload{Server: "alpha", Healthy: true},
	}))
	require.NoError(t, bus.EmitSync(ctx, events.Event{
		Type:   events.EventNotifyMQTT,
		Source: "heartbeat",
		Payload: events.NotifyPayload{
			Data: map[string]interface{}{"connected": 1},
		},
	}))

	sent := rec.all()
	require.Len(t, sent, 4)

	assert.Equal(t, TopicCommand, sent[0].topic)
	assert.Equal(t, "command_executed", sent[0].msg["event"])
	payload := sent[0].msg["payload"].(map[string]interface{})
	assert.Equal(t, "alpha", payload["server"])
	assert.Equal(t, "ok", payload["body"])

	assert.Equal(t, TopicSession, sent[1].topic)
	assert.Equal(t, "auth_failed", sent[1].msg["event"])

	assert.Equal(t, TopicHealth, sent[2].topic)
	assert.Equal(t, true, sent[2].msg["payload"].(map[string]interface{})["healthy"])

	assert.Equal(t, TopicStatus, sent[3].topic)
	assert.Equal(t, "heartbeat", sent[3].msg["event"])
	assert.EqualValues(t, 1, sent[3].msg["payload"].(map[string]interface{})["connected"])
}

func TestPublishShutdown(t *testing.T) {
	h, rec, _ := newTestHandler(t)
	h.PublishShutdown()

	sent := rec.all()
	require.Len(t, sent, 1)
	assert.Equal(t, TopicAdmin, sent[0].topic)
	assert.Equal(t, "shutdown", sent[0].msg["event"])
	assert.Equal(t, "gw-1", sent[0].msg["hostname"])
}
