package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MultiSerb/scadabraboooo/internal/services/dcom"
	"github.com/MultiSerb/scadabraboooo/pkg/rabbitmq"
	"github.com/MultiSerb/scadabraboooo/pkg/transport"
)

type Config struct {
	PointsPath string
	UnitID     uint8
	Transport  transport.Config

	AcqTick          time.Duration
	AutomationPeriod time.Duration
	Automation       dcom.AutomationPolicy
	AutomationOn     bool
	QueueSize        int

	Rabbit         rabbitmq.RabbitMQConfig
	PointTopicTmpl string
	AlarmTopicTmpl string

	HTTPPort    string
	GRPCPort    string
	JournalPath string
}

func env(k, d string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func envBool(k string, d bool) bool {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return d
}

// envDuration reads a millisecond count.
func envDuration(k string, d time.Duration) time.Duration {
	if n := envInt(k, -1); n > 0 {
		return time.Duration(n) * time.Millisecond
	}
	return d
}

func envU16(k string, d uint16) uint16 {
	n := envInt(k, int(d))
	if n < 0 || n > 0xFFFF {
		return d
	}
	return uint16(n)
}

func loadConfig() Config {
	unit := envInt("MODBUS_UNIT_ID", 1)
	if unit < 0 || unit > 0xFF {
		unit = 1
	}
	return Config{
		PointsPath: env("POINTS_CONFIG_PATH", "config/points.json"),
		UnitID:     uint8(unit),
		Transport: transport.Config{
			Addr:            env("MODBUS_ADDR", "127.0.0.1:502"),
			DialTimeout:     envDuration("MODBUS_DIAL_TIMEOUT_MS", 3*time.Second),
			ConnectRetries:  envInt("MODBUS_CONNECT_RETRIES", 5),
			BreakerFails:    envInt("CB_FAILS", 3),
			BreakerOpen:     envDuration("CB_OPEN_MS", 5*time.Second),
			BreakerInterval: envDuration("CB_INTERVAL_MS", 0),
		},

		AcqTick:          envDuration("ACQ_TICK_MS", time.Second),
		AutomationPeriod: envDuration("AUTOMATION_PERIOD_MS", 2*time.Second),
		Automation: dcom.NewAutomationPolicy(
			envU16("AUTOMATION_SETPOINT_ADDR", 2000),
			envU16("AUTOMATION_ACTUATOR_BASE", 5000),
			envU16("AUTOMATION_INLET_BASE", 4000),
		),
		AutomationOn: envBool("AUTOMATION_ENABLED", true),
		QueueSize:    envInt("COMMAND_QUEUE_SIZE", 64),

		Rabbit: rabbitmq.RabbitMQConfig{
			Host:     env("RABBITMQ_HOST", "localhost"),
			Port:     envInt("RABBITMQ_PORT", 1883),
			User:     env("RABBITMQ_USER", "guest"),
			Password: env("RABBITMQ_PASSWORD", "guest"),
			ClientID: env("MQTT_CLIENT_ID", "scada-dcom"),
			Retries:  envInt("RABBITMQ_RETRIES", 5),
		},
		PointTopicTmpl: env("POINT_TOPIC_TMPL", dcom.DefaultPointTopicTmpl),
		AlarmTopicTmpl: env("ALARM_TOPIC_TMPL", dcom.DefaultAlarmTopicTmpl),

		HTTPPort:    env("HTTP_PORT", "8080"),
		GRPCPort:    env("GRPC_PORT", "50051"),
		JournalPath: env("JOURNAL_PATH", "dcom-journal.db"),
	}
}
