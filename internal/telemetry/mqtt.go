// Package telemetry publishes gateway events to an MQTT broker.
package telemetry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/energizer-project/rconbridge/internal/config"
	"github.com/energizer-project/rconbridge/internal/events"
	"github.com/energizer-project/rconbridge/internal/util"
)

// MQTT topics
const (
	TopicPrefix  = "rconbridge"
	TopicCommand = TopicPrefix + "/command"
	TopicSession = TopicPrefix + "/session"
	TopicHealth  = TopicPrefix + "/health"
	TopicStatus  = TopicPrefix + "/status"
	TopicAdmin   = TopicPrefix + "/admin"
)

// ErrDisabled is returned by NewMQTTHandler when MQTT is turned off.
var ErrDisabled = errors.New("MQTT is disabled")

// MQTTHandler keeps the broker connection and forwards bus events as JSON.
type MQTTHandler struct {
	cfg      config.MQTTConfig
	eventBus *events.EventBus
	client   mqtt.Client
	logger   zerolog.Logger

	// send is swapped out in tests.
	send func(topic string, data []byte)

	// Metadata included in every message
	metadata map[string]interface{}
}

// NewMQTTHandler creates a handler from the MQTT section of cfg. The
// broker is not contacted until Start.
func NewMQTTHandler(cfg *config.Config, eventBus *events.EventBus) (*MQTTHandler, error) {
	mqttCfg := cfg.GetApplicationData().MQTT
	if !mqttCfg.Enabled {
		return nil, ErrDisabled
	}

	sysInfo := util.GetSystemInfo()
	h := &MQTTHandler{
		cfg:      mqttCfg,
		eventBus: eventBus,
		logger:   util.ComponentLogger("mqtt"),
		metadata: hostMetadata(sysInfo),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(mqttCfg))

	if mqttCfg.ClientID != "" {
		opts.SetClientID(mqttCfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("%s-%s", util.AppName, sysInfo.Hostname))
	}
	if mqttCfg.Username != "" {
		opts.SetUsername(mqttCfg.Username)
		opts.SetPassword(mqttCfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(false)

	if mqttCfg.UseTLS {
		tlsConfig, err := buildTLSConfig(mqttCfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		h.logger.Info().Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		h.logger.Warn().Err(err).Msg("MQTT connection lost")
	})

	h.client = mqtt.NewClient(opts)
	h.send = h.publishToBroker
	return h, nil
}

func brokerURL(cfg config.MQTTConfig) string {
	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.BrokerURL, cfg.Port)
}

// buildTLSConfig loads the optional CA bundle and client certificate (mTLS).
func buildTLSConfig(cfg config.MQTTConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read MQTT CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func hostMetadata(info util.SystemInfo) map[string]interface{} {
	return map[string]interface{}{
		"hostname":    info.Hostname,
		"platform":    info.Platform,
		"cpu_model":   info.CPUModel,
		"cpu_cores":   info.CPUCores,
		"memory_mb":   info.TotalMemory,
		"app_version": util.Version,
	}
}

// Start connects to the broker, subscribes to the bus and blocks until ctx
// is cancelled. A shutdown message is published before disconnecting.
func (h *MQTTHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("broker", h.cfg.BrokerURL).
		Int("port", h.cfg.Port).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	h.subscribeEvents()

	<-ctx.Done()

	h.PublishShutdown()
	h.client.Disconnect(5000)
	h.logger.Info().Msg("MQTT disconnected")
	return nil
}

func (h *MQTTHandler) subscribeEvents() {
	h.eventBus.Subscribe(events.EventCommandExecuted, "mqtt.command", h.onCommand)
	h.eventBus.Subscribe(events.EventCommandFailed, "mqtt.command", h.onCommand)
	h.eventBus.Subscribe(events.EventSessionOpened, "mqtt.session", h.onSession)
	h.eventBus.Subscribe(events.EventSessionClosed, "mqtt.session", h.onSession)
	h.eventBus.Subscribe(events.EventAuthFailed, "mqtt.session", h.onSession)
	h.eventBus.Subscribe(events.EventHealthProbe, "mqtt.health", h.onHealth)
	h.eventBus.Subscribe(events.EventNotifyMQTT, "mqtt.notify", h.onNotify)
}

func (h *MQTTHandler) publishToBroker(topic string, data []byte) {
	if !h.client.IsConnected() {
		return
	}

	token := h.client.Publish(topic, 1, false, data) // QoS 1
	go func() {
		token.Wait()
		if token.Error() != nil {
			h.logger.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

// publish marshals the message for an event and hands it to the broker.
func (h *MQTTHandler) publish(topic, event string, payload interface{}) {
	data, err := json.Marshal(h.buildMessage(event, payload))
	if err != nil {
		h.logger.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}
	h.send(topic, data)
}

// buildMessage combines the host metadata with the event payload.
func (h *MQTTHandler) buildMessage(event string, payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{}, len(h.metadata)+3)
	for k, v := range h.metadata {
		msg[k] = v
	}
	msg["event"] = event
	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return msg
}

// notifyTopic maps a NotifyPayload topic onto the rconbridge namespace.
// Empty topics go to the status topic.
func notifyTopic(topic string) string {
	switch {
	case topic == "":
		return TopicStatus
	case strings.HasPrefix(topic, TopicPrefix+"/"):
		return topic
	default:
		return TopicPrefix + "/" + strings.TrimPrefix(topic, "/")
	}
}

// Event handlers

func (h *MQTTHandler) onCommand(_ context.Context, event events.Event) error {
	h.publish(TopicCommand, string(event.Type), event.Payload)
	return nil
}

func (h *MQTTHandler) onSession(_ context.Context, event events.Event) error {
	h.publish(TopicSession, string(event.Type), event.Payload)
	return nil
}

func (h *MQTTHandler) onHealth(_ context.Context, event events.Event) error {
	h.publish(TopicHealth, string(event.Type), event.Payload)
	return nil
}

func (h *MQTTHandler) onNotify(_ context.Context, event events.Event) error {
	p, ok := event.Payload.(events.NotifyPayload)
	if !ok {
		h.publish(TopicStatus, event.Source, event.Payload)
		return nil
	}
	h.publish(notifyTopic(p.Topic), event.Source, p.Data)
	return nil
}

// PublishShutdown sends a shutdown message to the admin topic.
func (h *MQTTHandler) PublishShutdown() {
	h.publish(TopicAdmin, "shutdown", map[string]interface{}{
		"reason": "gateway stopping",
	})
}
