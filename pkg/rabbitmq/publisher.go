package rabbitmq

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/eclipse/paho.mqtt.golang"
)

// IPublisher interface defines the methods to publish a message
type IPublisher interface {
	PublishMessage(message interface{}) error
	PublishToQos(topic string, qos byte, retained bool, message interface{}) error
	Close()
}

// Publisher holds the client and the default topic for publishing messages
type Publisher struct {
	client mqtt.Client
	topic  string
	quiet  bool
}

var _ IPublisher = (*Publisher)(nil)

// NewPublisher creates a new Publisher instance using the shared MQTT client and default topic
func NewPublisher(client mqtt.Client, topic string) *Publisher {
	return &Publisher{client: client, topic: topic}
}

// Quiet disables the per-message log line (high rate publishers).
func (p *Publisher) Quiet() *Publisher {
	p.quiet = true
	return p
}

// PublishMessage publishes a message to the default topic at QoS 0
func (p *Publisher) PublishMessage(message interface{}) error {
	return p.PublishToQos(p.topic, 0, false, message)
}

// PublishToQos publishes to an explicit topic. Strings and byte slices are
// sent as is, anything else is encoded as JSON.
func (p *Publisher) PublishToQos(topic string, qos byte, retained bool, message interface{}) error {
	payload, err := encodePayload(message)
	if err != nil {
		return err
	}
	if p.client == nil {
		return fmt.Errorf("publish to %s: no MQTT client", topic)
	}

	token := p.client.Publish(topic, qos, retained, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish message: %w", token.Error())
	}

	if !p.quiet {
		log.Printf("Message published to topic '%s' (qos=%d, %d bytes)", topic, qos, len(payload))
	}
	return nil
}

func encodePayload(message interface{}) ([]byte, error) {
	switch m := message.(type) {
	case string:
		return []byte(m), nil
	case []byte:
		return m, nil
	case nil:
		return nil, fmt.Errorf("invalid message: nil")
	default:
		b, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("invalid message format: %w", err)
		}
		return b, nil
	}
}

// Close gracefully closes the MQTT connection for the publisher
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
		log.Println("MQTT client disconnected")
	}
}
