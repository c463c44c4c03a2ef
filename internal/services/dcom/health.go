package dcom

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// LinkStatus reports the state of the device link.
type LinkStatus interface {
	Connected() bool
	BreakerState() gobreaker.State
}

// HealthService is the gRPC health service name of the master.
const HealthService = "scada.dcom"

type healthStatus struct {
	Status        string `json:"status"`
	MQTTConnected bool   `json:"mqtt_connected"`
	Modbus        bool   `json:"modbus_connected"`
	Breaker       string `json:"breaker"`
	QueueLen      int    `json:"queue_len"`
}

// Health backs /healthz, /readyz and the gRPC health server.
type Health struct {
	mqtt     mqtt.Client
	link     LinkStatus
	executor *Executor
}

func NewHealth(m mqtt.Client, link LinkStatus, executor *Executor) *Health {
	return &Health{mqtt: m, link: link, executor: executor}
}

func (h *Health) status() healthStatus {
	st := healthStatus{
		MQTTConnected: h.mqtt != nil && h.mqtt.IsConnectionOpen(),
		Breaker:       "unknown",
	}
	if h.link != nil {
		st.Modbus = h.link.Connected()
		st.Breaker = h.link.BreakerState().String()
	}
	if h.executor != nil {
		st.QueueLen = h.executor.QueueLen()
	}
	switch {
	case st.Modbus && st.Breaker != gobreaker.StateOpen.String() && st.MQTTConnected:
		st.Status = "ok"
	case st.Modbus:
		st.Status = "degraded"
	default:
		st.Status = "down"
	}
	return st
}

// Ready is true while the device link is up and the breaker is not open.
func (h *Health) Ready() bool {
	st := h.status()
	return st.Modbus && st.Breaker != gobreaker.StateOpen.String()
}

func (h *Health) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.status())
}

func (h *Health) readyz(w http.ResponseWriter, _ *http.Request) {
	ready := h.Ready()
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]bool{"ready": ready})
}

// NewHTTPMux serves health, Prometheus metrics from g and, when j is not
// nil, the latest journal entries.
func NewHTTPMux(h *Health, g prometheus.Gatherer, j *Journal) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthz)
	mux.HandleFunc("/readyz", h.readyz)
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	if j != nil {
		// GET /journal?limit=50
		mux.HandleFunc("/journal", func(w http.ResponseWriter, r *http.Request) {
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			entries, err := j.Recent(ctx, limit)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			type outT struct {
				Timestamp string `json:"timestamp"`
				Kind      string `json:"kind"`
				Point     string `json:"point"`
				Previous  string `json:"previous,omitempty"`
				Current   string `json:"current,omitempty"`
				Detail    string `json:"detail,omitempty"`
			}
			out := make([]outT, 0, len(entries))
			for _, e := range entries {
				out = append(out, outT{
					Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
					Kind:      e.Kind, Point: e.Point, Previous: e.Previous, Current: e.Current, Detail: e.Detail,
				})
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(out)
		})
	}
	return mux
}

// WatchGRPC mirrors Ready into srv every period until ctx is done, then
// marks every service NOT_SERVING.
func (h *Health) WatchGRPC(ctx context.Context, srv *health.Server, period time.Duration) {
	if period <= 0 {
		period = time.Second
	}
	last := healthpb.HealthCheckResponse_UNKNOWN
	set := func() {
		st := healthpb.HealthCheckResponse_NOT_SERVING
		if h.Ready() {
			st = healthpb.HealthCheckResponse_SERVING
		}
		if st != last {
			log.Printf("health: %s -> %s", HealthService, st)
			last = st
		}
		srv.SetServingStatus(HealthService, st)
		srv.SetServingStatus("", st)
	}
	set()
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			srv.Shutdown()
			return
		case <-t.C:
			set()
		}
	}
}
