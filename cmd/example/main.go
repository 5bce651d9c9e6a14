// Command example wires the scheduler package together over a real store,
// the way an application embedding this library would: load configuration,
// open a store, register tasks, start the scheduler, and shut down cleanly
// on signal.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	scheduler "github.com/gocronforge/dbscheduler"
	"github.com/gocronforge/dbscheduler/internal/logging"
	"github.com/gocronforge/dbscheduler/internal/store"
	"github.com/gocronforge/dbscheduler/promstats"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}

	gormStore, err := openStore(cfg.Database)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := gormStore.Migrate(ctx); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	registry := prometheus.NewRegistry()
	sink := promstats.New(registry, promstats.Config{Namespace: "example"})
	go serveMetrics(registry, logger)

	tasks := []scheduler.Task{
		exampleRecurringTask(),
		exampleOneTimeTask(),
	}

	sched, err := scheduler.New(scheduler.Config{
		SchedulerName:     cfg.Scheduler.Name,
		ExecutorCapacity:  cfg.Scheduler.ExecutorCapacity,
		PollingInterval:   cfg.Scheduler.PollingInterval,
		HeartbeatInterval: cfg.Scheduler.HeartbeatInterval,
		Logger:            logger,
		StatsSink:         sink,
	}, gormStore, tasks...)
	if err != nil {
		log.Fatalf("build scheduler: %v", err)
	}

	if err := sched.Start(ctx); err != nil {
		log.Fatalf("start scheduler: %v", err)
	}

	if err := sched.Client().Schedule(ctx, scheduler.NewTaskInstance("heartbeat-report", "singleton", nil), time.Now()); err != nil && !errors.Is(err, scheduler.ErrAlreadyScheduled) {
		logger.Errorw("schedule initial instance failed", "error", err)
	}

	<-ctx.Done()
	sched.Stop()
}

func openStore(cfg DatabaseConfig) (*store.GORMStore, error) {
	switch cfg.Dialect {
	case "mysql":
		return store.OpenMySQL(cfg.DSN)
	case "postgres", "":
		return store.OpenPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported database dialect: " + cfg.Dialect)
	}
}

func serveMetrics(registry *prometheus.Registry, logger scheduler.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(":9090", mux); err != nil {
		logger.Errorw("metrics server stopped", "error", err)
	}
}

// exampleRecurringTask reports a heartbeat every minute for as long as the
// scheduler runs.
func exampleRecurringTask() scheduler.Task {
	return scheduler.NewRecurringTask("heartbeat-report", scheduler.NewFixedDelaySchedule(time.Minute),
		func(ctx context.Context, instance scheduler.TaskInstanceID) error {
			log.Printf("heartbeat-report: %s/%s", instance.TaskName, instance.InstanceID)
			return nil
		})
}

// exampleOneTimeTask demonstrates a typed one-time task: its payload is a
// plain struct, deserialized automatically before the handler runs.
type welcomeEmailPayload struct {
	RecipientEmail string `json:"recipientEmail"`
}

func exampleOneTimeTask() scheduler.Task {
	return scheduler.NewOneTimeTask("send-welcome-email", time.Minute,
		func(ctx context.Context, instance scheduler.TaskInstanceID, data welcomeEmailPayload) error {
			log.Printf("send-welcome-email: sending to %s", data.RecipientEmail)
			return nil
		})
}
