package main

import (
	"os"
	"strconv"

	persistencepkg "github.com/MultiSerb/scadabraboooo/internal/services/persistence"
	"github.com/MultiSerb/scadabraboooo/pkg/rabbitmq"
)

type Config struct {
	Rabbit   rabbitmq.RabbitMQConfig
	Topic    string
	Influx   persistencepkg.InfluxConfig
	HTTPPort string
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func loadConfig() Config {
	return Config{
		Rabbit: rabbitmq.RabbitMQConfig{
			Host:     getenv("RABBITMQ_HOST", "localhost"),
			Port:     getenvInt("RABBITMQ_PORT", 1883),
			User:     getenv("RABBITMQ_USER", "guest"),
			Password: getenv("RABBITMQ_PASSWORD", "guest"),
			ClientID: getenv("MQTT_CLIENT_ID", "scada-persistence"),
			Retries:  getenvInt("RABBITMQ_RETRIES", 5),
		},
		Topic: getenv("POINT_SUB_TOPIC", "scada/point/#"),
		Influx: persistencepkg.InfluxConfig{
			InfluxURL:    getenv("INFLUX_URL", "http://localhost:8086"),
			InfluxToken:  getenv("INFLUX_TOKEN", ""),
			InfluxOrg:    getenv("INFLUX_ORG", "scada"),
			InfluxBucket: getenv("INFLUX_BUCKET", "points"),
			Measurement:  getenv("MEASUREMENT", "scada_point"),
		},
		HTTPPort: getenv("HTTP_PORT", "8081"),
	}
}
