// Package publish announces recognition results on MQTT.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/kozaktomas/facerec/internal/config"
	"github.com/kozaktomas/facerec/internal/facerec"
)

const publishTimeout = 5 * time.Second

// Publisher delivers recognition events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close()
}

// Face is one recognized face of an Event.
type Face struct {
	Label             string       `json:"label"`
	Known             bool         `json:"known"`
	Distance          float64      `json:"distance"`
	Confidence        float64      `json:"confidence"`
	PercentConfidence int          `json:"percent_confidence"`
	Box               *facerec.Box `json:"box,omitempty"`
}

// Event is the JSON payload published for one recognized image.
type Event struct {
	ID     string    `json:"id"`
	Time   time.Time `json:"time"`
	Source string    `json:"source"`
	Faces  []Face    `json:"faces"`
}

// NewEvent builds an event for the results of one image.
func NewEvent(source string, results []facerec.MatchResult) Event {
	ev := Event{
		ID:     uuid.NewString(),
		Time:   time.Now().UTC(),
		Source: source,
		Faces:  make([]Face, len(results)),
	}
	for i, r := range results {
		f := Face{
			Label:             r.Label,
			Known:             r.Known(),
			Distance:          r.Distance,
			Confidence:        r.Confidence,
			PercentConfidence: r.PercentConfidence,
		}
		if r.Detection != nil {
			b := r.Detection.Box
			f.Box = &b
		}
		ev.Faces[i] = f
	}
	return ev
}

// MQTTPublisher publishes events as JSON to a topic.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	logger log.FieldLogger
}

// NewMQTTPublisher connects to cfg.Broker.
func NewMQTTPublisher(cfg config.MQTTConfig) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("MQTT broker is not configured")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID("facerec-" + uuid.NewString()[:8])
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	logger := log.WithField("component", "mqtt")
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.WithField("broker", cfg.Broker).Info("connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.WithError(err).Error("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}

	return newMQTTPublisher(client, cfg.Topic, logger), nil
}

func newMQTTPublisher(client mqtt.Client, topic string, logger log.FieldLogger) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: topic, logger: logger}
}

// Publish sends the event with QoS 1.
func (p *MQTTPublisher) Publish(ctx context.Context, ev Event) error {
	if !p.client.IsConnected() {
		return errors.New("MQTT client is not connected")
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	token := p.client.Publish(p.topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("publishing event %s: timeout", ev.ID)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing event %s: %w", ev.ID, err)
	}

	p.logger.WithFields(log.Fields{"event": ev.ID, "faces": len(ev.Faces)}).Debug("published recognition event")
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
