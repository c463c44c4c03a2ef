package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/MultiSerb/scadabraboooo/internal/model"
	"github.com/MultiSerb/scadabraboooo/pkg/rabbitmq"
)

// InfluxConfig selects where point history is written.
type InfluxConfig struct {
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
	Measurement  string // default "scada_point"
}

// PointWriter is the part of api.WriteAPIBlocking the service uses.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Service stores every point change published by the master and keeps the
// latest value per point in memory.
type Service struct {
	consumer    rabbitmq.IConsumer[model.PointChangedEvent]
	writer      PointWriter
	query       api.QueryAPI
	bucket      string
	measurement string

	mu    sync.RWMutex
	cache map[model.PointIdentifier]model.PointChangedEvent
}

func NewService(consumer rabbitmq.IConsumer[model.PointChangedEvent], client influxdb2.Client, cfg InfluxConfig) (*Service, error) {
	if client == nil || cfg.InfluxOrg == "" || cfg.InfluxBucket == "" {
		return nil, fmt.Errorf("influx config incomplete")
	}
	svc := newService(consumer, client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket), cfg)
	svc.query = client.QueryAPI(cfg.InfluxOrg)
	return svc, nil
}

func newService(consumer rabbitmq.IConsumer[model.PointChangedEvent], w PointWriter, cfg InfluxConfig) *Service {
	m := sanitizeMeasurement(cfg.Measurement)
	if m == "" {
		m = "scada_point"
	}
	return &Service{
		consumer:    consumer,
		writer:      w,
		bucket:      cfg.InfluxBucket,
		measurement: m,
		cache:       make(map[model.PointIdentifier]model.PointChangedEvent),
	}
}

// Start consumes point events until ctx is done.
func (s *Service) Start(ctx context.Context) {
	s.consumer.SetHandler(func(topic string, msg mqtt.Message) error {
		return s.handle(ctx, msg)
	})
	s.consumer.ConsumeMessage(ctx)
}

func (s *Service) handle(ctx context.Context, msg mqtt.Message) error {
	evt, err := decodePointEvent(msg.Topic(), msg.Payload())
	if err != nil {
		log.Printf("persistence: invalid payload on %s: %v", msg.Topic(), err)
		return nil // keep the stream going
	}

	s.mu.Lock()
	s.cache[model.NewPointIdentifier(evt.Type, evt.Address)] = evt
	s.mu.Unlock()

	if err := s.writer.WritePoint(ctx, ToInfluxPoint(s.measurement, evt)); err != nil {
		log.Printf("persistence: write error: %v", err)
		return err
	}
	return nil
}

// decodePointEvent reads the payload and falls back to the topic
// "scada/point/{type}/{address}" for the identifier.
func decodePointEvent(topic string, payload []byte) (model.PointChangedEvent, error) {
	var evt model.PointChangedEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return evt, err
	}
	if evt.Type == "" {
		parts := strings.Split(topic, "/")
		if len(parts) >= 4 {
			evt.Type = model.PointType(parts[2])
			if n, err := strconv.ParseUint(parts[3], 10, 16); err == nil {
				evt.Address = uint16(n)
			}
		}
	}
	if !evt.Type.Valid() {
		return evt, fmt.Errorf("unknown point type %q", evt.Type)
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	return evt, nil
}

// ToInfluxPoint maps a point change onto one Influx point tagged by type and
// address.
func ToInfluxPoint(measurement string, evt model.PointChangedEvent) *write.Point {
	tags := map[string]string{
		"point_type": string(evt.Type),
		"address":    strconv.Itoa(int(evt.Address)),
		"alarm":      string(evt.Alarm),
	}
	if evt.Name != "" {
		tags["name"] = evt.Name
	}
	fields := map[string]interface{}{
		"raw_value": int64(evt.RawValue),
	}
	if evt.Type.IsAnalog() {
		fields["egu_value"] = evt.EguValue
	} else {
		fields["on"] = evt.State == model.StateOn
	}
	return influxdb2.NewPoint(measurement, tags, fields, evt.Timestamp)
}

// LatestCache returns the cached values sorted by type then address.
func (s *Service) LatestCache() []model.PointChangedEvent {
	s.mu.RLock()
	out := make([]model.PointChangedEvent, 0, len(s.cache))
	for _, v := range s.cache {
		out = append(out, v)
	}
	s.mu.RUnlock()
	sortEvents(out)
	return out
}

func sortEvents(out []model.PointChangedEvent) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Address < out[j].Address
	})
}

func buildLatestFlux(bucket, measurement string, minutes int) string {
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%dm)
  |> filter(fn: (r) => r._measurement == %q and r._field == "raw_value")
  |> group(columns: ["point_type","address"])
  |> last()
`, bucket, minutes, measurement)
}

// QueryLatestFromInflux returns the last raw value per point within the
// window.
func (s *Service) QueryLatestFromInflux(ctx context.Context, minutes int) ([]model.PointChangedEvent, error) {
	if s.query == nil {
		return nil, fmt.Errorf("influx query API not configured")
	}
	res, err := s.query.Query(ctx, buildLatestFlux(s.bucket, s.measurement, minutes))
	if err != nil {
		return nil, err
	}
	defer res.Close()

	var out []model.PointChangedEvent
	for res.Next() {
		rec := res.Record()
		evt := model.PointChangedEvent{Timestamp: rec.Time().UTC()}
		if v, ok := rec.ValueByKey("point_type").(string); ok {
			evt.Type = model.PointType(v)
		}
		if v, ok := rec.ValueByKey("address").(string); ok {
			if n, err := strconv.ParseUint(v, 10, 16); err == nil {
				evt.Address = uint16(n)
			}
		}
		if v, ok := rec.ValueByKey("name").(string); ok {
			evt.Name = v
		}
		if v, ok := rec.ValueByKey("alarm").(string); ok {
			evt.Alarm = model.AlarmType(v)
		}
		switch v := rec.Value().(type) {
		case int64:
			evt.RawValue = uint16(v)
		case float64:
			evt.RawValue = uint16(v)
		}
		out = append(out, evt)
	}
	if res.Err() != nil {
		return out, res.Err()
	}
	sortEvents(out)
	return out, nil
}

func sanitizeMeasurement(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '_', r == ':', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
