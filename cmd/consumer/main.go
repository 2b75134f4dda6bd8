package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/quicklog/internal/config"
	"example.com/quicklog/internal/consumer"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	metricsSrv := startMetricsServer(cfg.MetricsAddress)

	// One processor per topic, all feeding the same projection handler.
	handler := consumer.NewSummaryHandler(pool)

	var wg sync.WaitGroup
	for _, topic := range cfg.ConsumerTopics {
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			runTopic(ctx, cfg, topic, handler)
		}(topic)
	}

	<-ctx.Done()
	log.Println("entry consumer shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}

	wg.Wait()
}

func runTopic(ctx context.Context, cfg config.Config, topic string, handler consumer.EventHandler) {
	reader := newEntryEventsReader(cfg, topic)
	defer reader.Close()

	log.Printf("entry consumer started (topic=%s, group=%s)", topic, cfg.ConsumerGroupID)

	proc := consumer.NewProcessor(reader, handler)
	if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("entry consumer stopped with error (topic=%s): %v", topic, err)
	}
}

func newEntryEventsReader(cfg config.Config, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.ConsumerGroupID,
		Topic:           topic,
		MinBytes:        1e3,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})
}

func startMetricsServer(addr string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: promhttp.Handler()}
	go func() {
		log.Printf("entry consumer metrics listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server error: %v", err)
		}
	}()
	return srv
}
