package rabbitmq

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// RabbitMQConfig describes the MQTT endpoint of the broker (RabbitMQ with the MQTT plugin)
type RabbitMQConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	ClientID string
	Retries  int // connection attempts before giving up, default 5
}

func (cfg *RabbitMQConfig) BrokerURL() string {
	host, port := cfg.Host, cfg.Port
	if host == "" {
		host = "localhost"
	}
	if port <= 0 {
		port = 1883
	}
	return fmt.Sprintf("tcp://%s:%d", host, port)
}

func (cfg *RabbitMQConfig) clientOptions() *mqtt.ClientOptions {
	broker := cfg.BrokerURL()
	return mqtt.NewClientOptions().
		AddBroker(broker).
		SetUsername(cfg.User).
		SetPassword(cfg.Password).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetKeepAlive(30 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("mqtt: connection to %s lost: %v", broker, err)
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Printf("mqtt: connected to %s as %s", broker, cfg.ClientID)
		})
}

// NewRabbitMQConn connects with exponential backoff and disconnects when ctx
// is done.
func NewRabbitMQConn(cfg *RabbitMQConfig, ctx context.Context) (mqtt.Client, error) {
	opts := cfg.clientOptions()

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second
	attempts := cfg.Retries
	if attempts < 1 {
		attempts = 5
	}

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Printf("mqtt: connect to %s failed: %v", cfg.BrokerURL(), token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection after %d attempts: %w", attempts, err)
	}

	go func() {
		<-ctx.Done()
		CloseRabbitMQConn(client)
	}()
	return client, nil
}

func CloseRabbitMQConn(client mqtt.Client) {
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
		log.Println("mqtt: connection closed")
	}
}
