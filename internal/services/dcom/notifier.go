package dcom

import (
	"log"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/MultiSerb/scadabraboooo/internal/model"
	"github.com/MultiSerb/scadabraboooo/pkg/rabbitmq"
)

const (
	DefaultPointTopicTmpl = "scada/point/{type}/{address}"
	DefaultAlarmTopicTmpl = "scada/alarm/{type}/{address}"
)

// Notifiers fans a point change out to several observers.
type Notifiers []PointObserver

func (n Notifiers) PointChanged(before, after model.Point) {
	for _, o := range n {
		if o != nil {
			o.PointChanged(before, after)
		}
	}
}

// EventNotifier publishes point changes and alarm transitions over MQTT.
type EventNotifier struct {
	publisher      rabbitmq.IPublisher
	pointTopicTmpl string
	alarmTopicTmpl string
	logger         *log.Logger
	newID          func() string
}

var _ PointObserver = (*EventNotifier)(nil)

func NewEventNotifier(p rabbitmq.IPublisher, pointTopicTmpl, alarmTopicTmpl string, logger *log.Logger) *EventNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &EventNotifier{
		publisher:      p,
		pointTopicTmpl: firstNonEmpty(pointTopicTmpl, DefaultPointTopicTmpl),
		alarmTopicTmpl: firstNonEmpty(alarmTopicTmpl, DefaultAlarmTopicTmpl),
		logger:         logger,
		newID:          uuid.NewString,
	}
}

// PointChanged publishes the new point state at QoS 0 and, on an alarm
// transition, an AlarmEvent at QoS 1.
func (n *EventNotifier) PointChanged(before, after model.Point) {
	name := ""
	if after.ConfigItem != nil {
		name = after.ConfigItem.Name
	}
	evt := model.PointChangedEvent{
		Name:      name,
		Type:      after.ID.Type,
		Address:   after.ID.Address,
		RawValue:  after.RawValue,
		EguValue:  after.EguValue,
		State:     after.State,
		Alarm:     after.Alarm,
		Timestamp: after.Timestamp.UTC(),
	}
	if err := n.publisher.PublishToQos(n.topic(n.pointTopicTmpl, after.ID), 0, false, evt); err != nil {
		n.logger.Printf("notifier: publish point %v: %v", after.ID, err)
	}

	if before.Alarm == after.Alarm {
		return
	}
	alarm := model.AlarmEvent{
		ID:            n.newID(),
		Name:          name,
		Type:          after.ID.Type,
		Address:       after.ID.Address,
		Alarm:         after.Alarm,
		PreviousAlarm: before.Alarm,
		RawValue:      after.RawValue,
		EguValue:      after.EguValue,
		Timestamp:     after.Timestamp.UTC(),
	}
	if err := n.publisher.PublishToQos(n.topic(n.alarmTopicTmpl, after.ID), 1, false, alarm); err != nil {
		n.logger.Printf("notifier: publish alarm %v: %v", after.ID, err)
	}
}

func (n *EventNotifier) topic(tmpl string, id model.PointIdentifier) string {
	return strings.NewReplacer(
		"{type}", string(id.Type),
		"{address}", strconv.Itoa(int(id.Address)),
	).Replace(tmpl)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
