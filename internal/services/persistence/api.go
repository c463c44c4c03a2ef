package persistence

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MultiSerb/scadabraboooo/internal/model"
)

func NewHTTPMux(svc *Service) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })

	// GET /points/latest
	// Query params:
	//   source=auto|influx|cache   (default auto: Influx first, cache as fallback)
	//   minutes=<int>              (Influx window, default 1440 = 24h)
	mux.HandleFunc("/points/latest", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		source := strings.ToLower(q.Get("source"))
		if source == "" {
			source = "auto"
		}
		minutes := 60 * 24
		if s := q.Get("minutes"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				minutes = n
			}
		}

		var (
			list []model.PointChangedEvent
			err  error
			used string
		)
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if source == "influx" || source == "auto" {
			list, err = svc.QueryLatestFromInflux(ctx, minutes)
			if err == nil && len(list) > 0 {
				used = "influx"
			}
		}
		if used == "" {
			list = svc.LatestCache()
			used = "cache"
		}

		type outT struct {
			Name      string  `json:"name,omitempty"`
			Type      string  `json:"type"`
			Address   uint16  `json:"address"`
			RawValue  uint16  `json:"raw_value"`
			EguValue  float64 `json:"egu_value,omitempty"`
			State     string  `json:"state,omitempty"`
			Alarm     string  `json:"alarm,omitempty"`
			Timestamp string  `json:"timestamp"`
		}
		out := make([]outT, 0, len(list))
		for _, v := range list {
			out = append(out, outT{
				Name: v.Name, Type: string(v.Type), Address: v.Address,
				RawValue: v.RawValue, EguValue: v.EguValue, State: string(v.State), Alarm: string(v.Alarm),
				Timestamp: v.Timestamp.UTC().Format(time.RFC3339),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Data-Source", used)
		_ = json.NewEncoder(w).Encode(out)
	})

	return mux
}
