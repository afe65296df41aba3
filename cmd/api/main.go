package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/marcelsud/flowrelay/activity"
	"github.com/marcelsud/flowrelay/config"
	"github.com/marcelsud/flowrelay/event"
	"github.com/marcelsud/flowrelay/internal/http/chi"
	"github.com/marcelsud/flowrelay/metrics"
	"github.com/marcelsud/flowrelay/monitoring"
	"github.com/marcelsud/flowrelay/ratelimit"
	"github.com/marcelsud/flowrelay/recovery"
	"github.com/marcelsud/flowrelay/store/redis"
	"github.com/marcelsud/flowrelay/task"
	"github.com/marcelsud/flowrelay/webhook"
	webhookredis "github.com/marcelsud/flowrelay/webhook/redis"
	"github.com/marcelsud/flowrelay/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

/* main is where every package is wired together.
 * Imports only go one way, down: the application imports the business
 * packages, which import the storage layer.
 */

func main() {
	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Println(err)
		return
	}
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	logger := chi.NewLogger(cfg.ServiceName, cfg.LogLevel)

	st, err := redis.NewStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer st.Close()

	bus := event.NewStoreBus(st, logger)
	unsubscribe, err := bus.Subscribe(ctx, event.TopicActivity, logActivity(logger))
	if err != nil {
		fmt.Println(err)
		return
	}
	defer unsubscribe()

	plans := ratelimit.DefaultPlans()
	if cfg.PlansFile != "" {
		plans, err = ratelimit.LoadPlans(cfg.PlansFile)
		if err != nil {
			fmt.Println(err)
			return
		}
	}
	limiter := ratelimit.NewLimiter(st, plans)

	tasks := task.NewManager(st, bus,
		task.WithWorkers(cfg.Workers),
		task.WithPollInterval(cfg.PollInterval),
		task.WithHandlerTimeout(cfg.HandlerTimeout),
		task.WithLogger(logger),
	)

	monitor := monitoring.NewService(st, logger)
	collector := metrics.NewCollector(st)
	exporter, err := metrics.NewOTelExporter(tasks, monitor, nil)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer exporter.Shutdown(context.Background())

	states := workflow.NewStateManager(st, bus, logger)
	cache := workflow.NewCache(st, bus, logger)
	tracker := activity.NewTracker(st, bus, logger)
	failures := recovery.NewHandler(states, tracker, tasks, logger)
	failures.Cache = cache

	repo := webhookredis.NewRepositoryFromClient(st.GetClient())
	webhooks := webhook.NewService(repo, newDispatcher(cfg), tasks, st, monitor, collector, logger)
	webhooks.Failures = failures

	tasks.Handle(webhook.DeliverTaskKind, webhooks.HandleDeliverTask)
	tasks.Handle(recovery.RetryTaskKind, failures.ResumeRetry)
	tasks.Every("webhook.recover_stalled", cfg.RecoverInterval, func(ctx context.Context) error {
		_, err := webhooks.RecoverStalled(ctx)
		return err
	})

	errWorkers := make(chan error, 1)
	go func() {
		errWorkers <- tasks.ProcessQueues(ctx)
	}()

	r := chi.Handlers(ctx, chi.Services{
		Webhooks:    webhooks,
		Tasks:       tasks,
		Monitoring:  monitor,
		Limiter:     limiter,
		Series:      collector,
		Activity:    tracker,
		Workflows:   states,
		Results:     cache,
		Plans:       limiter,
		Metrics:     exporter.ServeHTTP(),
		HTTPMetrics: chi.NewHTTPMetrics(prometheus.DefaultRegisterer),
	}, logger)
	http.Handle("/", r)
	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Addr:         ":" + cfg.Port,
		Handler:      http.DefaultServeMux,
	}

	errShutdown := make(chan error, 1)
	go shutdown(srv, ctx, cfg.ShutdownTimeout, errShutdown)
	logger.Info().Str("port", cfg.Port).Int("workers", cfg.Workers).Msg("Listening")
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		fmt.Println(err)
		return
	}
	err = <-errShutdown
	if err != nil {
		fmt.Println(err)
		return
	}
	if err := <-errWorkers; err != nil {
		fmt.Println(err)
	}
}

func shutdown(server *http.Server, ctxShutdown context.Context, timeout time.Duration, errShutdown chan error) {
	<-ctxShutdown.Done()

	ctxTimeout, stop := context.WithTimeout(context.Background(), timeout)
	defer stop()

	err := server.Shutdown(ctxTimeout)
	switch err {
	case nil:
		fmt.Printf("\nShutting down server...\n")
		errShutdown <- nil
	default:
		errShutdown <- fmt.Errorf("Forcing closing the server")
	}
}

func newDispatcher(cfg *config.Config) *webhook.Dispatcher {
	if cfg.OutboundRate <= 0 {
		return webhook.NewDispatcher()
	}
	return webhook.NewDispatcher(webhook.WithRateLimit(rate.Limit(cfg.OutboundRate), cfg.OutboundBurst))
}

func logActivity(logger zerolog.Logger) event.Handler {
	return func(e event.Event) {
		logger.Debug().
			Str("type", e.Type).
			Time("timestamp", e.Timestamp).
			Interface("payload", e.Payload).
			Msg("Activity event")
	}
}
