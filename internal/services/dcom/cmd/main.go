package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/MultiSerb/scadabraboooo/internal/model"
	"github.com/MultiSerb/scadabraboooo/internal/services/dcom"
	"github.com/MultiSerb/scadabraboooo/pkg/rabbitmq"
	"github.com/MultiSerb/scadabraboooo/pkg/transport"
)

func main() {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// === Points ===
	conf, err := dcom.LoadConfiguration(cfg.PointsPath, cfg.UnitID)
	if err != nil {
		log.Fatalf("dcom: load points: %v", err)
	}
	storage, err := dcom.NewStorage(conf.GetConfigurationItems())
	if err != nil {
		log.Fatalf("dcom: build point store: %v", err)
	}

	// === Observability ===
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := dcom.NewMetrics(reg)

	journal, err := dcom.OpenJournal(cfg.JournalPath, 256, nil)
	if err != nil {
		log.Fatalf("dcom: %v", err)
	}
	defer journal.Close()

	// === MQTT ===
	mqttClient, err := rabbitmq.NewRabbitMQConn(&cfg.Rabbit, ctx)
	if err != nil {
		log.Fatalf("dcom: mqtt connection error: %v", err)
	}
	defer rabbitmq.CloseRabbitMQConn(mqttClient)
	publisher := rabbitmq.NewPublisher(mqttClient, "").Quiet()
	notifier := dcom.NewEventNotifier(publisher, cfg.PointTopicTmpl, cfg.AlarmTopicTmpl, nil)

	// === Modbus ===
	link := transport.NewTCP(cfg.Transport, nil, nil)
	defer link.Close()
	if err := link.Connect(ctx); err != nil {
		// not fatal: the first send re-dials
		log.Printf("dcom: initial connect to %s failed: %v", cfg.Transport.Addr, err)
	}

	updates := make(chan model.PointUpdate, cfg.QueueSize)
	executor, err := dcom.NewExecutor(link, updates, cfg.QueueSize, journal, metrics, nil)
	if err != nil {
		log.Fatalf("dcom: %v", err)
	}
	processing, err := dcom.NewProcessingManager(storage, executor, updates, dcom.Notifiers{notifier, journal}, metrics, nil)
	if err != nil {
		log.Fatalf("dcom: %v", err)
	}
	for _, item := range conf.GetConfigurationItems() {
		for _, id := range item.Identifiers() {
			if err := processing.InitializePoint(id.Type, id.Address, item.DefaultValue); err != nil {
				log.Fatalf("dcom: initialize %v: %v", id, err)
			}
		}
	}

	acquisitor, err := dcom.NewAcquisitor(dcom.NewTicker(ctx, cfg.AcqTick), processing, conf, nil)
	if err != nil {
		log.Fatalf("dcom: %v", err)
	}

	var automation *dcom.AutomationManager
	if cfg.AutomationOn {
		automation, err = dcom.NewAutomationManager(storage, processing, conf, cfg.Automation, cfg.AutomationPeriod, nil)
		if err != nil {
			log.Fatalf("dcom: %v", err)
		}
		for _, id := range automation.Points() {
			if !storage.Has(id) {
				log.Fatalf("dcom: automation point %v is not configured", id)
			}
		}
	}

	// === Loops ===
	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("dcom: %s stopped: %v", name, err)
				cancel()
			}
		}()
	}
	run("executor", executor.Run)
	run("processing", processing.Run)
	run("acquisitor", acquisitor.Run)
	if automation != nil {
		run("automation", automation.Run)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		journal.Run(ctx)
	}()

	// === HTTP ===
	h := dcom.NewHealth(mqttClient, link, executor)
	hs := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           dcom.NewHTTPMux(h, reg, journal),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("dcom: HTTP listening on :%s", cfg.HTTPPort)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	// === gRPC health ===
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Fatalf("dcom: grpc listen: %v", err)
	}
	gs := grpc.NewServer()
	hsrv := health.NewServer()
	healthpb.RegisterHealthServer(gs, hsrv)
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.WatchGRPC(ctx, hsrv, time.Second)
	}()
	go func() {
		log.Printf("dcom: gRPC health listening on :%s", cfg.GRPCPort)
		if err := gs.Serve(lis); err != nil {
			log.Printf("grpc server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("dcom: shutting down...")

	shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shCancel()
	_ = hs.Shutdown(shCtx)
	gs.GracefulStop()

	wg.Wait()
	log.Println("dcom: shutdown complete")
}
