package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/domain"
)

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type alertPayload struct {
	Serial  string    `json:"serial"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

// MQTTTransport publishes alerts to {topic}/{serial} for home-automation consumers.
type MQTTTransport struct {
	client     publisher
	disconnect func()
	topic      string
	timeout    time.Duration
}

// NewMQTTTransport connects to the broker.
func NewMQTTTransport(broker, topic string) (*MQTTTransport, error) {
	if broker == "" {
		return nil, errors.New("mqtt: empty broker")
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("inverter-monitor-" + fmt.Sprint(time.Now().UnixNano())).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	t := newMQTTTransport(client, topic)
	t.disconnect = func() { client.Disconnect(250) }
	return t, nil
}

func newMQTTTransport(client publisher, topic string) *MQTTTransport {
	if topic == "" {
		topic = "solar/alerts"
	}
	return &MQTTTransport{
		client:  client,
		topic:   strings.TrimRight(topic, "/"),
		timeout: 10 * time.Second,
	}
}

func (t *MQTTTransport) Name() string { return "mqtt" }

func (t *MQTTTransport) Send(ctx context.Context, msg Message) (domain.NotificationReceipt, error) {
	payload, err := json.Marshal(alertPayload{
		Serial:  string(msg.Serial),
		Subject: msg.Subject,
		Body:    msg.Body,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return domain.NotificationReceipt{}, err
	}

	topic := t.topic + "/" + string(msg.Serial)
	token := t.client.Publish(topic, 1, false, payload)

	wait := t.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < wait {
			wait = d
		}
	}
	if !token.WaitTimeout(wait) {
		return domain.NotificationReceipt{}, fmt.Errorf("mqtt publish to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return domain.NotificationReceipt{}, fmt.Errorf("mqtt publish to %s: %w", topic, err)
	}
	return domain.NotificationReceipt{Channel: t.Name(), MessageID: topic}, nil
}

// Close disconnects from the broker.
func (t *MQTTTransport) Close() {
	if t != nil && t.disconnect != nil {
		t.disconnect()
	}
}
