package event

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/MultiSerb/scadabraboooo/internal/model"
)

const alarmTopicPrefix = "scada/alarm/"

type CommonEvent struct {
	ID            string
	EventType     string // alarm.raised | alarm.cleared
	SourceService string
	PointType     model.PointType
	Address       uint16
	Name          string
	Severity      string // info|warning|critical
	Fields        map[string]interface{}
	Timestamp     time.Time
}

// Deduper drops ids already seen.
type Deduper interface {
	ShouldProcess(id string) bool
}

// MQTTHandler turns MQTT alarm messages into CommonEvent and hands them to sink.
type MQTTHandler struct {
	sink  func(CommonEvent)
	dedup Deduper
}

func NewMQTTHandler(sink func(CommonEvent), dedup Deduper) *MQTTHandler {
	return &MQTTHandler{sink: sink, dedup: dedup}
}

func (h *MQTTHandler) Handle(_ string, m mqtt.Message) error {
	topic := m.Topic()
	if !strings.HasPrefix(topic, alarmTopicPrefix) {
		return nil // other topics are ignored
	}
	evt, err := decodeAlarm(topic, m.Payload())
	if err != nil {
		return err
	}
	// QoS 1 can redeliver
	if h.dedup != nil && !h.dedup.ShouldProcess(evt.ID) {
		return nil
	}
	if h.sink != nil {
		h.sink(evt)
	}
	return nil
}

func decodeAlarm(topic string, payload []byte) (CommonEvent, error) {
	var a model.AlarmEvent
	if err := json.Unmarshal(payload, &a); err != nil {
		return CommonEvent{}, err
	}
	pt, addr := pickPoint(topic, a.Type, a.Address)
	if !pt.Valid() {
		return CommonEvent{}, errors.New("alarm: missing point type")
	}
	if a.Alarm == "" {
		return CommonEvent{}, errors.New("alarm: missing alarm state")
	}
	eventType := "alarm.raised"
	if a.Alarm == model.NoAlarm {
		eventType = "alarm.cleared"
	}
	ts := a.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return CommonEvent{
		ID:            a.ID,
		EventType:     eventType,
		SourceService: "scada-dcom",
		PointType:     pt,
		Address:       addr,
		Name:          a.Name,
		Severity:      severity(a.Alarm),
		Fields: map[string]interface{}{
			"alarm":          string(a.Alarm),
			"previous_alarm": string(a.PreviousAlarm),
			"raw_value":      int64(a.RawValue),
			"egu_value":      a.EguValue,
		},
		Timestamp: ts,
	}, nil
}

func severity(a model.AlarmType) string {
	switch a {
	case model.HighAlarm, model.LowAlarm:
		return "warning"
	case model.AbnormalValue:
		return "critical"
	}
	return "info"
}

// pickPoint uses the payload, or the topic "scada/alarm/{type}/{address}".
func pickPoint(topic string, t model.PointType, addr uint16) (model.PointType, uint16) {
	if t != "" {
		return t, addr
	}
	parts := strings.Split(strings.TrimPrefix(topic, alarmTopicPrefix), "/")
	if len(parts) >= 2 {
		if n, err := strconv.ParseUint(parts[1], 10, 16); err == nil {
			return model.PointType(parts[0]), uint16(n)
		}
	}
	return t, addr
}
