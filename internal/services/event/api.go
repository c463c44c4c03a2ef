package event

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
)

// Alarm is one row of the latest-alarms query.
type Alarm struct {
	ID            string  `json:"id,omitempty"`
	Name          string  `json:"name,omitempty"`
	Type          string  `json:"type"`
	Address       uint16  `json:"address"`
	Alarm         string  `json:"alarm"`
	PreviousAlarm string  `json:"previous_alarm,omitempty"`
	Severity      string  `json:"severity,omitempty"`
	RawValue      int64   `json:"raw_value"`
	EguValue      float64 `json:"egu_value"`
	Time          string  `json:"time"`
}

type alarmQueryParams struct {
	Minutes   int
	Limit     int
	TimeoutMS int
	Severity  string
}

func parseAlarmQuery(r *http.Request, defMin, defLim, defTOms int) alarmQueryParams {
	q := r.URL.Query()
	get := func(k string, def, min, max int) int {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				if n < min {
					return min
				}
				if max > 0 && n > max {
					return max
				}
				return n
			}
		}
		return def
	}
	sev := strings.ToLower(strings.TrimSpace(q.Get("severity")))
	switch sev {
	case "info", "warning", "critical":
	default:
		sev = ""
	}
	return alarmQueryParams{
		Minutes:   get("minutes", defMin, 1, 7*24*60),
		Limit:     get("limit", defLim, 1, 500),
		TimeoutMS: get("timeout_ms", defTOms, 200, 5000),
		Severity:  sev,
	}
}

func buildAlarmFlux(bucket string, p alarmQueryParams) string {
	sev := ""
	if p.Severity != "" {
		sev = fmt.Sprintf("\n  |> filter(fn: (r) => r.severity == %q)", p.Severity)
	}
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%dm)
  |> filter(fn: (r) => r._measurement == "system_event" and r.source_service == "scada-dcom")%s
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> group()
  |> sort(columns: ["_time"], desc: true)
  |> limit(n:%d)
`, bucket, p.Minutes, sev, p.Limit)
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func num(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f
	}
	return 0
}

// NewAlarmsLatestHandler serves
// GET /alarms/latest?limit=20[&minutes=1440][&severity=warning]
func NewAlarmsLatestHandler(influx influxdb2.Client, org, bucket string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := parseAlarmQuery(r, 1440, 20, 2000)

		ctx, cancel := context.WithTimeout(r.Context(), time.Duration(p.TimeoutMS)*time.Millisecond)
		defer cancel()

		res, err := influx.QueryAPI(org).Query(ctx, buildAlarmFlux(bucket, p))
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Error", "influx-query-error")
			_, _ = w.Write([]byte("[]"))
			return
		}
		defer res.Close()

		out := make([]Alarm, 0, p.Limit)
		for res.Next() {
			rec := res.Record()
			addr, _ := strconv.ParseUint(str(rec.ValueByKey("address")), 10, 16)
			out = append(out, Alarm{
				ID:            str(rec.ValueByKey("event_id")),
				Name:          str(rec.ValueByKey("name")),
				Type:          str(rec.ValueByKey("point_type")),
				Address:       uint16(addr),
				Alarm:         str(rec.ValueByKey("alarm")),
				PreviousAlarm: str(rec.ValueByKey("previous_alarm")),
				Severity:      str(rec.ValueByKey("severity")),
				RawValue:      int64(num(rec.ValueByKey("raw_value"))),
				EguValue:      num(rec.ValueByKey("egu_value")),
				Time:          rec.Time().UTC().Format(time.RFC3339),
			})
		}
		if res.Err() != nil {
			w.Header().Set("X-Error", "influx-iter-error")
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})
}
