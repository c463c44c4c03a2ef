package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MultiSerb/scadabraboooo/pkg/rabbitmq"
)

type Config struct {
	Rabbit rabbitmq.RabbitMQConfig
	Topics []string

	InfluxURL     string
	InfluxToken   string
	InfluxOrg     string
	InfluxBucket  string
	BatchSize     int
	FlushInterval time.Duration

	DedupTTL  time.Duration
	DedupSize int

	HTTPPort      string
	ShutdownGrace time.Duration
}

func getenv(k, d string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func getenvList(k, d string) []string {
	var out []string
	for _, p := range strings.Split(getenv(k, d), ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func loadConfig() Config {
	return Config{
		Rabbit: rabbitmq.RabbitMQConfig{
			Host:     getenv("RABBITMQ_HOST", "localhost"),
			Port:     getenvInt("RABBITMQ_PORT", 1883),
			User:     getenv("RABBITMQ_USER", "guest"),
			Password: getenv("RABBITMQ_PASSWORD", "guest"),
			ClientID: getenv("MQTT_CLIENT_ID", "scada-event"),
			Retries:  getenvInt("RABBITMQ_RETRIES", 5),
		},
		Topics: getenvList("EVENT_SUB_TOPICS", "scada/alarm/#"),

		InfluxURL:     getenv("INFLUX_URL", "http://localhost:8086"),
		InfluxToken:   getenv("INFLUX_TOKEN", ""),
		InfluxOrg:     getenv("INFLUX_ORG", "scada"),
		InfluxBucket:  getenv("INFLUX_BUCKET", "events"),
		BatchSize:     getenvInt("WRITE_BATCH_SIZE", 10),
		FlushInterval: time.Duration(getenvInt("WRITE_FLUSH_INTERVAL_MS", 200)) * time.Millisecond,

		DedupTTL:  time.Duration(getenvInt("DEDUP_TTL_S", 600)) * time.Second,
		DedupSize: getenvInt("DEDUP_SIZE", 20000),

		HTTPPort:      getenv("HTTP_PORT", "8082"),
		ShutdownGrace: 5 * time.Second,
	}
}
