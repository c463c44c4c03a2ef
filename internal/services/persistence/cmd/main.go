package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	persistencepkg "github.com/MultiSerb/scadabraboooo/internal/services/persistence"
	"github.com/MultiSerb/scadabraboooo/pkg/rabbitmq"
)

func main() {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mqClient, err := rabbitmq.NewRabbitMQConn(&cfg.Rabbit, ctx)
	if err != nil {
		log.Fatalf("persistence: mqtt connect failed: %v", err)
	}
	consumer := rabbitmq.NewConsumer(mqClient, cfg.Topic, nil)

	influxClient := influxdb2.NewClient(cfg.Influx.InfluxURL, cfg.Influx.InfluxToken)
	defer influxClient.Close()

	svc, err := persistencepkg.NewService(consumer, influxClient, cfg.Influx)
	if err != nil {
		log.Fatalf("persistence init failed: %v", err)
	}

	mux := persistencepkg.NewHTTPMux(svc)
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ready := mqClient.IsConnectionOpen()
		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"ready": ready})
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("persistence: HTTP listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	// consume point events and write them to Influx
	go svc.Start(ctx)

	<-ctx.Done()
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
	log.Println("persistence: shutdown complete")
}
