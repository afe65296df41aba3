package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/marcelsud/flowrelay/activity"
	"github.com/marcelsud/flowrelay/config"
	"github.com/marcelsud/flowrelay/metrics"
	"github.com/marcelsud/flowrelay/monitoring"
	"github.com/marcelsud/flowrelay/ratelimit"
	"github.com/marcelsud/flowrelay/store/redis"
	"github.com/marcelsud/flowrelay/task"
	"github.com/marcelsud/flowrelay/webhook"
	"github.com/marcelsud/flowrelay/webhook/payload"
	webhookredis "github.com/marcelsud/flowrelay/webhook/redis"
	"github.com/marcelsud/flowrelay/workflow"
	"github.com/rs/zerolog"
)

/* cli - registers and triggers webhooks against the configured Redis
 * Usage:
 *   cli register <user_id> <name> <url>
 *   cli trigger <webhook_id> '<json object>'
 *   cli deliveries <webhook_id>
 *   cli recover
 *   cli metrics <name> [hours]
 *   cli activity [user_id]
 *   cli history <workflow_id>
 *   cli usage [YYYY-MM-DD]
 *   cli plan <user_id> [plan]
 * Triggered and recovered deliveries are sent by the api workers.
 */

type clients struct {
	webhooks  *webhook.Service
	collector *metrics.Collector
	tracker   *activity.Tracker
	states    *workflow.StateManager
	limiter   *ratelimit.Limiter
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	ctx := context.Background()
	st, err := redis.NewStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer st.Close()

	logger := zerolog.New(os.Stderr).Level(zerolog.WarnLevel)
	repo := webhookredis.NewRepositoryFromClient(st.GetClient())
	tasks := task.NewManager(st, nil, task.WithLogger(logger))
	c := clients{
		webhooks:  webhook.NewService(repo, webhook.NewDispatcher(), tasks, st, monitoring.NewService(st, logger), nil, logger),
		collector: metrics.NewCollector(st),
		tracker:   activity.NewTracker(st, nil, logger),
		states:    workflow.NewStateManager(st, nil, logger),
		limiter:   ratelimit.NewLimiter(st, nil),
	}
	if cfg.PlansFile != "" {
		if c.limiter.Plans, err = ratelimit.LoadPlans(cfg.PlansFile); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	}

	if err := run(ctx, c, os.Args[1], os.Args[2:]); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c clients, command string, args []string) error {
	s := c.webhooks

	switch command {
	case "register":
		if len(args) != 3 {
			return fmt.Errorf("register needs <user_id> <name> <url>")
		}
		wh, err := s.Register(ctx, args[1], webhook.DefaultConfig(args[2]), "", args[0])
		if err != nil {
			return err
		}
		fmt.Printf("id:     %s\nsecret: %s\nheader: %s\n", wh.ID, wh.Secret.Key, wh.Secret.HeaderName)
	case "trigger":
		if len(args) != 2 {
			return fmt.Errorf("trigger needs <webhook_id> <json object>")
		}
		body, err := payload.Parse([]byte(args[1]))
		if err != nil {
			return fmt.Errorf("parsing payload: %w", err)
		}
		id, err := s.Trigger(ctx, args[0], body, nil)
		if err != nil {
			return err
		}
		fmt.Printf("delivery: %s\n", id)
	case "deliveries":
		if len(args) != 1 {
			return fmt.Errorf("deliveries needs <webhook_id>")
		}
		deliveries, err := s.ListDeliveries(ctx, args[0], webhook.DeliveryFilter{Limit: webhook.MaxListLimit})
		if err != nil {
			return err
		}
		for _, d := range deliveries {
			fmt.Printf("%s  %-8s  attempts=%d  %s\n", d.ID, d.Status, d.Attempts, d.Error)
		}
	case "recover":
		n, err := s.RecoverStalled(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("requeued: %d\n", n)
	case "metrics":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("metrics needs <name> [hours]")
		}
		hours := 1
		if len(args) == 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				return fmt.Errorf("invalid hours %q", args[1])
			}
			hours = n
		}
		end := time.Now().UTC()
		q := metrics.Query{Name: args[0], Start: end.Add(-time.Duration(hours) * time.Hour), End: end}
		points, err := c.collector.GetMetrics(ctx, q)
		if err != nil {
			return err
		}
		for _, p := range points {
			fmt.Printf("%s  %g  count=%d\n", p.Timestamp.Format(time.RFC3339), p.Value, p.Count)
		}
		buckets, err := c.collector.GetHistogram(ctx, q)
		if err != nil {
			return err
		}
		for le, n := range buckets {
			fmt.Printf("le=%s  %d\n", le, n)
		}
	case "activity":
		userID := ""
		if len(args) > 0 {
			userID = args[0]
		}
		activities, err := c.tracker.Recent(ctx, userID, activity.DefaultLimit, "")
		if err != nil {
			return err
		}
		for _, a := range activities {
			fmt.Printf("%s  %-20s  %s\n", a.Timestamp.Format(time.RFC3339), a.Type, a.UserID)
		}
		counts, err := c.tracker.Counts(ctx, time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("today: %v\n", counts)
	case "history":
		if len(args) != 1 {
			return fmt.Errorf("history needs <workflow_id>")
		}
		history, err := c.states.History(ctx, args[0], 0)
		if err != nil {
			return err
		}
		for _, entry := range history {
			fmt.Printf("v%v  %v  %v\n", entry["version"], entry["updated_at"], entry)
		}
	case "usage":
		day := time.Now()
		if len(args) > 0 {
			parsed, err := time.Parse(time.DateOnly, args[0])
			if err != nil {
				return fmt.Errorf("invalid day: %w", err)
			}
			day = parsed
		}
		usage, err := c.limiter.Usage(ctx, day)
		if err != nil {
			return err
		}
		fmt.Printf("day: %s\n", usage.Day)
		for plan, actions := range usage.Plans {
			fmt.Printf("plan %-12s %v\n", plan, actions)
		}
		for user, actions := range usage.Users {
			fmt.Printf("user %-12s %v\n", user, actions)
		}
	case "plan":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("plan needs <user_id> [plan]")
		}
		if len(args) == 2 {
			if err := c.limiter.SetUserPlan(ctx, args[0], args[1]); err != nil {
				return err
			}
		}
		plan, err := c.limiter.UserPlan(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", args[0], plan)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cli register <user_id> <name> <url> | trigger <webhook_id> <json> | deliveries <webhook_id>")
	fmt.Fprintln(os.Stderr, "       cli recover | metrics <name> [hours] | activity [user_id] | history <workflow_id> | usage [day] | plan <user_id> [plan]")
}
