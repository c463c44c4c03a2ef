package rabbitmq

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Handler processes one message received on topic.
type Handler func(topic string, message mqtt.Message) error

// IConsumer subscribes and dispatches messages to a handler; T is the
// payload type the handler decodes.
type IConsumer[T any] interface {
	ConsumeMessage(ctx context.Context)
	SetHandler(handler func(topic string, message mqtt.Message) error)
}

// Consumer subscribes to one or more topic filters on a shared client.
type Consumer struct {
	client  mqtt.Client
	topics  []string
	handler Handler
}

// NewConsumer subscribes to a single topic filter.
func NewConsumer(client mqtt.Client, topic string, handler func(topic string, message mqtt.Message) error) *Consumer {
	return NewMultiConsumer(client, []string{topic}, handler)
}

// NewMultiConsumer subscribes to several topic filters with one handler.
// Blank filters are skipped.
func NewMultiConsumer(client mqtt.Client, topics []string, handler func(topic string, message mqtt.Message) error) *Consumer {
	c := &Consumer{client: client, handler: handler}
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			c.topics = append(c.topics, t)
		}
	}
	return c
}

func (c *Consumer) SetHandler(handler func(topic string, message mqtt.Message) error) {
	c.handler = handler
}

// Topics returns the subscribed filters.
func (c *Consumer) Topics() []string { return append([]string(nil), c.topics...) }

// qosFor returns QoS 1 for alarm topics and 0 for everything else.
func qosFor(topic string) byte {
	if strings.HasPrefix(strings.TrimSpace(topic), "scada/alarm") {
		return 1
	}
	return 0
}

func (c *Consumer) dispatch(filter string, msg mqtt.Message) {
	if c.handler == nil {
		log.Printf("consumer: no handler set for %s", filter)
		return
	}
	topic := msg.Topic()
	if topic == "" {
		topic = filter
	}
	if err := c.handler(topic, msg); err != nil {
		log.Printf("consumer: handling message on %s: %v", topic, err)
	}
}

// Subscribe registers every filter and returns the first failure.
func (c *Consumer) Subscribe() error {
	for _, filter := range c.topics {
		filter := filter
		token := c.client.Subscribe(filter, qosFor(filter), func(_ mqtt.Client, msg mqtt.Message) {
			c.dispatch(filter, msg)
		})
		if token.Wait() && token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", filter, token.Error())
		}
		log.Printf("consumer: subscribed to %s (qos=%d)", filter, qosFor(filter))
	}
	return nil
}

// ConsumeMessage subscribes and blocks until ctx is done, then unsubscribes.
func (c *Consumer) ConsumeMessage(ctx context.Context) {
	if err := c.Subscribe(); err != nil {
		log.Printf("consumer: %v", err)
		return
	}
	<-ctx.Done()
	if len(c.topics) > 0 && c.client.IsConnectionOpen() {
		c.client.Unsubscribe(c.topics...).WaitTimeout(time.Second)
	}
}
