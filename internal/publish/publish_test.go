package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/kozaktomas/facerec/internal/facerec"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                       { return true }
func (t *fakeToken) WaitTimeout(_ time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}            { return t.done }
func (t *fakeToken) Error() error                     { return t.err }

// fakeClient records publishes; unused mqtt.Client methods panic via the nil embedded interface.
type fakeClient struct {
	mqtt.Client
	connected    bool
	publishErr   error
	topic        string
	payload      []byte
	disconnected bool
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.topic = topic
	c.payload = payload.([]byte)
	return newFakeToken(c.publishErr)
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func sampleResults() []facerec.MatchResult {
	return []facerec.MatchResult{
		{Label: "alice", Distance: 0.4, Confidence: 0.6, PercentConfidence: 60,
			Detection: &facerec.Detection{Box: facerec.Box{X: 1, Y: 2, Width: 3, Height: 4}}},
		{Label: facerec.UnknownLabel, Distance: 0.9, Confidence: 0.1, PercentConfidence: 10},
	}
}

func TestNewEvent(t *testing.T) {
	ev := NewEvent("door.jpg", sampleResults())
	if ev.ID == "" || ev.Source != "door.jpg" || len(ev.Faces) != 2 {
		t.Fatalf("NewEvent() = %+v", ev)
	}
	if !ev.Faces[0].Known || ev.Faces[1].Known {
		t.Errorf("Known flags = %v, %v", ev.Faces[0].Known, ev.Faces[1].Known)
	}
	if ev.Faces[0].Box == nil || ev.Faces[0].Box.Width != 3 || ev.Faces[1].Box != nil {
		t.Errorf("boxes = %+v, %+v", ev.Faces[0].Box, ev.Faces[1].Box)
	}
	if other := NewEvent("door.jpg", nil); other.ID == ev.ID {
		t.Error("event IDs are not unique")
	}
}

func TestMQTTPublisherPublish(t *testing.T) {
	client := &fakeClient{connected: true}
	p := newMQTTPublisher(client, "facerec/recognitions", log.New())

	ev := NewEvent("door.jpg", sampleResults())
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if client.topic != "facerec/recognitions" {
		t.Errorf("topic = %q", client.topic)
	}

	var got Event
	if err := json.Unmarshal(client.payload, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got.ID != ev.ID || got.Faces[0].Label != "alice" || got.Faces[0].PercentConfidence != 60 {
		t.Errorf("payload = %+v", got)
	}

	p.Close()
	if !client.disconnected {
		t.Error("Close() did not disconnect")
	}
}

func TestMQTTPublisherErrors(t *testing.T) {
	p := newMQTTPublisher(&fakeClient{connected: false}, "t", log.New())
	if err := p.Publish(context.Background(), NewEvent("x", nil)); err == nil {
		t.Error("Publish() on disconnected client returned nil error")
	}

	brokerErr := errors.New("not authorized")
	p = newMQTTPublisher(&fakeClient{connected: true, publishErr: brokerErr}, "t", log.New())
	if err := p.Publish(context.Background(), NewEvent("x", nil)); !errors.Is(err, brokerErr) {
		t.Errorf("Publish() error = %v, want broker error", err)
	}
}
