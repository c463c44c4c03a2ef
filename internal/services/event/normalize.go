package event

import (
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// EventToPoint normalizes a CommonEvent into a *write.Point for InfluxDB.
func EventToPoint(evt CommonEvent) *write.Point {
	tags := map[string]string{
		"event_type":     evt.EventType,
		"source_service": evt.SourceService,
		"severity":       evt.Severity,
		"point_type":     string(evt.PointType),
		"address":        strconv.Itoa(int(evt.Address)),
	}
	if evt.Name != "" {
		tags["name"] = evt.Name
	}

	fields := map[string]interface{}{}
	for k, v := range evt.Fields {
		fields[k] = v
	}
	if evt.ID != "" {
		fields["event_id"] = evt.ID
	}
	// at least one field per point
	if _, ok := fields["count"]; !ok {
		fields["count"] = int64(1)
	}

	return influxdb2.NewPoint("system_event", tags, fields, evt.Timestamp)
}
