// notifiers/kafka/kafka.go
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"netpoller/config"
	"netpoller/notifiers"
)

// MessageWriter is the part of kafka.Writer the notifier uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// AlertMessage is the JSON payload published for every notification
type AlertMessage struct {
	ID         string    `json:"id"`
	AlertID    string    `json:"alert_id"`
	AlertName  string    `json:"alert_name"`
	Status     string    `json:"status"`
	Message    string    `json:"message"`
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name"`
	Resource   string    `json:"resource,omitempty"`
	MetricName string    `json:"metric_name"`
	Value      float64   `json:"value"`
	Threshold  float64   `json:"threshold"`
	Count      int       `json:"count"`
	Time       time.Time `json:"time"`
}

// KafkaNotifier publishes alert events to a kafka topic, keyed by alert id
// so events of one alert stay ordered within a partition.
type KafkaNotifier struct {
	writer MessageWriter
	topic  string
}

// NewKafkaNotifier creates a notifier writing to cfg.Topic
func NewKafkaNotifier(cfg config.KafkaConfig) (*KafkaNotifier, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("missing 'brokers' in kafka config")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = config.DefaultKafkaTopic
	}

	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return NewWithWriter(w, topic), nil
}

// NewWithWriter creates a notifier over an existing writer
func NewWithWriter(w MessageWriter, topic string) *KafkaNotifier {
	return &KafkaNotifier{writer: w, topic: topic}
}

// Name returns the name of the notifier
func (n *KafkaNotifier) Name() string {
	return "kafka"
}

// Notify publishes one message for the notification
func (n *KafkaNotifier) Notify(ctx context.Context, notif notifiers.Notification) error {
	ev := notif.Event
	status := "firing"
	if notif.Kind == notifiers.KindResolved {
		status = "resolved"
	}

	payload, err := json.Marshal(AlertMessage{
		ID:         notif.ID.String(),
		AlertID:    ev.AlertID,
		AlertName:  notif.Subject,
		Status:     status,
		Message:    ev.Message,
		DeviceID:   ev.DeviceID,
		DeviceName: ev.DeviceName,
		Resource:   ev.Resource,
		MetricName: ev.Type,
		Value:      ev.Value,
		Threshold:  ev.Threshold,
		Count:      ev.Count,
		Time:       ev.Time,
	})
	if err != nil {
		return fmt.Errorf("encoding alert message: %w", err)
	}

	err = n.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(ev.AlertID),
		Value: payload,
		Time:  ev.Time,
	})
	if err != nil {
		return fmt.Errorf("writing to topic %s: %w", n.topic, err)
	}
	return nil
}

// Close flushes and closes the writer
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
