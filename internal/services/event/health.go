package event

import (
	"encoding/json"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
)

// Health backs /healthz and /readyz.
type Health struct {
	mqtt     mqtt.Client
	influx   influxdb2.Client
	writer   *Writer
	minError time.Duration // write errors younger than this degrade the service
}

func NewHealth(m mqtt.Client, i influxdb2.Client, w *Writer, minOkErrorAge time.Duration) *Health {
	if minOkErrorAge <= 0 {
		minOkErrorAge = 30 * time.Second
	}
	return &Health{mqtt: m, influx: i, writer: w, minError: minOkErrorAge}
}

type healthStatus struct {
	Status          string  `json:"status"`
	MQTTConnected   bool    `json:"mqtt_connected"`
	InfluxOK        bool    `json:"influx_ok"`
	LastWriteErrorS float64 `json:"last_write_error_age_sec"`
	AlarmsRaised    int64   `json:"alarms_raised"`
	AlarmsCleared   int64   `json:"alarms_cleared"`
}

func (h *Health) status() healthStatus {
	st := healthStatus{
		MQTTConnected:   h.mqtt != nil && h.mqtt.IsConnectionOpen(),
		InfluxOK:        h.influx != nil,
		LastWriteErrorS: h.writer.LastErrorAge().Seconds(),
		AlarmsRaised:    h.writer.Count("alarm.raised"),
		AlarmsCleared:   h.writer.Count("alarm.cleared"),
	}
	switch {
	case st.MQTTConnected && st.InfluxOK && h.writer.LastErrorAge() > h.minError:
		st.Status = "ok"
	case st.MQTTConnected || st.InfluxOK:
		st.Status = "degraded"
	default:
		st.Status = "down"
	}
	return st
}

func (h *Health) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.status())
}

// Readyz answers 200 only when every dependency is up.
func (h *Health) Readyz(w http.ResponseWriter, _ *http.Request) {
	ready := h.status().Status == "ok"
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]bool{"ready": ready})
}
