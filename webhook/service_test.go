package webhook_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/alicebob/miniredis/v2"
	"github.com/marcelsud/flowrelay/metrics"
	"github.com/marcelsud/flowrelay/monitoring"
	"github.com/marcelsud/flowrelay/recovery"
	storeredis "github.com/marcelsud/flowrelay/store/redis"
	"github.com/marcelsud/flowrelay/task"
	"github.com/marcelsud/flowrelay/webhook"
	"github.com/marcelsud/flowrelay/webhook/mocks"
	"github.com/marcelsud/flowrelay/webhook/payload"
	whredis "github.com/marcelsud/flowrelay/webhook/redis"
	"github.com/marcelsud/flowrelay/webhook/signature"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type queuedTask struct {
	kind  string
	data  map[string]any
	runAt time.Time
}

// fakeQueue records what the service queues without running anything
type fakeQueue struct {
	mu        sync.Mutex
	immediate []queuedTask
	delayed   []queuedTask
	// delayedErr fails every EnqueueAt when set
	delayedErr error
}

func (q *fakeQueue) Enqueue(_ context.Context, _ task.QueueType, kind string, data map[string]any, _ time.Duration) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.immediate = append(q.immediate, queuedTask{kind: kind, data: data})
	return "task-immediate", nil
}

func (q *fakeQueue) EnqueueAt(_ context.Context, _ task.QueueType, kind string, data map[string]any, runAt time.Time) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.delayedErr != nil {
		return "", q.delayedErr
	}
	q.delayed = append(q.delayed, queuedTask{kind: kind, data: data, runAt: runAt})
	return "task-delayed", nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	samples []metrics.Sample
}

func (r *fakeRecorder) CollectMetric(_ context.Context, s metrics.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
	return nil
}

type fakeReporter struct {
	workflowID string
	failure    error
	ec         recovery.Context
	calls      int
}

func (r *fakeReporter) HandleError(_ context.Context, workflowID string, failure error, ec recovery.Context) (recovery.Outcome, error) {
	r.calls++
	r.workflowID = workflowID
	r.failure = failure
	r.ec = ec
	return recovery.Outcome{Strategy: recovery.Strategy{Action: recovery.ActionRetry}}, nil
}

type testEnv struct {
	svc      *webhook.Service
	repo     *whredis.Repository
	store    *storeredis.Store
	monitor  *monitoring.Service
	queue    *fakeQueue
	recorder *fakeRecorder
	mr       *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	st := storeredis.NewStoreFromClient(client)
	repo := whredis.NewRepositoryFromClient(client)
	monitor := monitoring.NewService(st, zerolog.Nop())
	monitor.Now = func() time.Time { return fixedNow }

	env := &testEnv{
		repo:     repo,
		store:    st,
		monitor:  monitor,
		queue:    &fakeQueue{},
		recorder: &fakeRecorder{},
		mr:       mr,
	}
	env.svc = webhook.NewService(repo, webhook.NewDispatcher(), env.queue, st, monitor, env.recorder, zerolog.Nop())
	env.svc.Now = func() time.Time { return fixedNow }

	return env
}

// statusServer answers with the next code of codes, repeating the last one
func statusServer(t *testing.T, codes ...int) (*httptest.Server, *int) {
	t.Helper()

	var mu sync.Mutex
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		code := codes[len(codes)-1]
		if hits < len(codes) {
			code = codes[hits]
		}
		hits++
		mu.Unlock()

		w.WriteHeader(code)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)

	return srv, &hits
}

func (e *testEnv) register(t *testing.T, targetURL string, maxRetries int) webhook.Webhook {
	t.Helper()

	cfg := webhook.DefaultConfig(targetURL)
	cfg.RetryStrategy.MaxRetries = maxRetries

	wh, err := e.svc.Register(context.Background(), "orders", cfg, "wf-orders", "user-1")
	require.NoError(t, err)
	return wh
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("success - active webhook with generated secret", func(t *testing.T) {
		repo := mocks.NewRepository(t)
		service := webhook.NewService(repo, nil, nil, nil, nil, nil, zerolog.Nop())

		repo.On("Create", ctx, webhook.MatchWebhook(func(wh webhook.Webhook) bool {
			return strings.HasPrefix(wh.ID, "wh_") &&
				wh.Status == webhook.Active &&
				wh.Config.Method == "PUT" &&
				len(wh.Secret.Key) == 2*signature.SecretBytes &&
				wh.Secret.HeaderName == webhook.DefaultHeaderName &&
				wh.UserID == "user-1"
		})).Return(nil)

		cfg := webhook.DefaultConfig("https://hooks.example.com/in")
		cfg.Method = "put"

		wh, err := service.Register(ctx, "orders", cfg, "wf-1", "user-1")

		require.NoError(t, err)
		assert.Equal(t, "orders", wh.Name)
		assert.NotNil(t, wh.Config.Headers)
	})

	t.Run("invalid config", func(t *testing.T) {
		repo := mocks.NewRepository(t)
		service := webhook.NewService(repo, nil, nil, nil, nil, nil, zerolog.Nop())

		_, err := service.Register(ctx, "orders", webhook.DefaultConfig("not a url"), "", "user-1")

		require.ErrorIs(t, err, webhook.ErrInvalidConfig)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestService_Trigger(t *testing.T) {
	ctx := context.Background()

	t.Run("success - stores pending delivery and queues it", func(t *testing.T) {
		env := newTestEnv(t)
		wh := env.register(t, "https://hooks.example.com/in", 3)

		id, err := env.svc.Trigger(ctx, wh.ID, map[string]any{"order_id": "o-1"}, map[string]string{"X-Event": "order.created"})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(id, "whd_"))

		d, err := env.svc.GetDelivery(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, webhook.DeliveryPending, d.Status)
		assert.Equal(t, 0, d.Attempts)
		assert.Equal(t, "order.created", d.Headers["X-Event"])

		require.Len(t, env.queue.immediate, 1)
		assert.Equal(t, webhook.DeliverTaskKind, env.queue.immediate[0].kind)
		assert.Equal(t, id, env.queue.immediate[0].data["delivery_id"])
	})

	t.Run("success - copies payload and headers into the delivery", func(t *testing.T) {
		repo := mocks.NewRepository(t)
		queue := &fakeQueue{}
		service := webhook.NewService(repo, nil, queue, nil, nil, nil, zerolog.Nop())

		repo.On("Get", ctx, "wh_1").Return(webhook.Webhook{ID: "wh_1", Status: webhook.Active}, nil)
		repo.On("CreateDelivery", ctx, webhook.MatchDelivery(func(d webhook.Delivery) bool {
			return d.WebhookID == "wh_1" &&
				d.Status == webhook.DeliveryPending &&
				d.Payload["order_id"] == "o-9" &&
				d.Headers != nil &&
				d.RetryOf == ""
		})).Return(nil)

		id, err := service.Trigger(ctx, "wh_1", map[string]any{"order_id": "o-9"}, nil)

		require.NoError(t, err)
		require.Len(t, queue.immediate, 1)
		assert.Equal(t, id, queue.immediate[0].data["delivery_id"])
	})

	t.Run("inactive webhook", func(t *testing.T) {
		env := newTestEnv(t)
		wh := env.register(t, "https://hooks.example.com/in", 3)
		require.NoError(t, env.svc.Deactivate(ctx, wh.ID))

		_, err := env.svc.Trigger(ctx, wh.ID, map[string]any{"a": 1}, nil)

		require.ErrorIs(t, err, webhook.ErrWebhookNotActive)
		assert.Empty(t, env.queue.immediate)
	})

	t.Run("nil payload", func(t *testing.T) {
		env := newTestEnv(t)
		wh := env.register(t, "https://hooks.example.com/in", 3)

		_, err := env.svc.Trigger(ctx, wh.ID, nil, nil)

		require.ErrorIs(t, err, webhook.ErrInvalidPayload)
	})

	t.Run("unknown webhook", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.svc.Trigger(ctx, "wh_missing", map[string]any{}, nil)

		require.ErrorIs(t, err, webhook.ErrWebhookNotFound)
	})
}

func TestService_ProcessDelivery(t *testing.T) {
	ctx := context.Background()

	t.Run("success - sends signed canonical body", func(t *testing.T) {
		var gotBody []byte
		var gotSig, gotType, gotEvent string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotBody, _ = io.ReadAll(r.Body)
			gotSig = r.Header.Get(webhook.DefaultHeaderName)
			gotType = r.Header.Get("Content-Type")
			gotEvent = r.Header.Get("X-Event")
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		env := newTestEnv(t)
		wh := env.register(t, srv.URL, 3)
		body := map[string]any{"order_id": "o-1", "amount": 42}

		id, err := env.svc.Trigger(ctx, wh.ID, body, map[string]string{"X-Event": "order.created"})
		require.NoError(t, err)
		require.NoError(t, env.svc.ProcessDelivery(ctx, id))

		want, err := payload.Canonical(body)
		require.NoError(t, err)
		assert.Equal(t, string(want), string(gotBody))
		assert.True(t, signature.Verify(wh.Secret.Key, gotBody, gotSig))
		assert.Equal(t, "application/json", gotType)
		assert.Equal(t, "order.created", gotEvent)

		d, err := env.svc.GetDelivery(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, webhook.DeliverySuccess, d.Status)
		assert.Equal(t, 1, d.Attempts)
		require.NotNil(t, d.Response)
		assert.Equal(t, http.StatusOK, d.Response.StatusCode)
		assert.NotNil(t, d.CompletedAt)

		got, err := env.svc.Get(ctx, wh.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.SuccessfulDeliveries)
		assert.Equal(t, int64(1), got.TotalDeliveries)
		require.NotNil(t, got.LastTriggered)

		m, err := env.monitor.Current(ctx, wh.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), m.SuccessfulDeliveries)
		assert.Equal(t, int64(1), m.StatusCodes["2xx"])

		require.Len(t, env.recorder.samples, 2)
		assert.Equal(t, "success", env.recorder.samples[0].Tags["outcome"])
	})

	t.Run("exhausts retries with exponential backoff", func(t *testing.T) {
		srv, hits := statusServer(t, http.StatusInternalServerError)
		env := newTestEnv(t)
		wh := env.register(t, srv.URL, 3)

		id, err := env.svc.Trigger(ctx, wh.ID, map[string]any{"n": 1}, nil)
		require.NoError(t, err)

		wantDelays := []time.Duration{60 * time.Second, 120 * time.Second, 240 * time.Second}
		for i, delay := range wantDelays {
			require.NoError(t, env.svc.ProcessDelivery(ctx, id))

			d, err := env.svc.GetDelivery(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, webhook.DeliveryPending, d.Status)
			assert.Equal(t, i+1, d.Attempts)
			assert.Equal(t, "integration", d.ErrorType)
			require.NotNil(t, d.NextRetry)
			assert.Equal(t, fixedNow.Add(delay), d.NextRetry.UTC())

			require.Len(t, env.queue.delayed, i+1)
			assert.Equal(t, fixedNow.Add(delay), env.queue.delayed[i].runAt)
		}

		require.NoError(t, env.svc.ProcessDelivery(ctx, id))

		d, err := env.svc.GetDelivery(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, webhook.DeliveryFailed, d.Status)
		assert.Equal(t, 4, d.Attempts)
		assert.Nil(t, d.NextRetry)
		assert.Contains(t, d.Error, "HTTP 500")
		assert.Len(t, env.queue.delayed, 3)
		assert.Equal(t, 4, *hits)

		got, err := env.svc.Get(ctx, wh.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.FailedDeliveries)
		assert.Equal(t, int64(1), got.TotalDeliveries)
		assert.Equal(t, int64(4), got.TotalAttempts)

		m, err := env.monitor.Current(ctx, wh.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), m.RetryCount)
	})

	t.Run("counts two deliveries with retries", func(t *testing.T) {
		okSrv, _ := statusServer(t, http.StatusOK)
		flakySrv, _ := statusServer(t, http.StatusInternalServerError, http.StatusInternalServerError, http.StatusOK)
		env := newTestEnv(t)
		wh := env.register(t, okSrv.URL, 3)

		first, err := env.svc.Trigger(ctx, wh.ID, map[string]any{"n": 1}, nil)
		require.NoError(t, err)
		require.NoError(t, env.svc.ProcessDelivery(ctx, first))

		_, err = env.svc.UpdateConfig(ctx, wh.ID, webhook.DefaultConfig(flakySrv.URL))
		require.NoError(t, err)

		second, err := env.svc.Trigger(ctx, wh.ID, map[string]any{"n": 2}, nil)
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			require.NoError(t, env.svc.ProcessDelivery(ctx, second))
		}

		d, err := env.svc.GetDelivery(ctx, second)
		require.NoError(t, err)
		assert.Equal(t, webhook.DeliverySuccess, d.Status)
		assert.Equal(t, 3, d.Attempts)

		got, err := env.svc.Get(ctx, wh.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.SuccessfulDeliveries)
		assert.Equal(t, int64(2), got.TotalDeliveries)
		assert.Equal(t, int64(0), got.FailedDeliveries)
		assert.Equal(t, int64(4), got.TotalAttempts)

		deliveries, err := env.svc.ListDeliveries(ctx, wh.ID, webhook.DeliveryFilter{})
		require.NoError(t, err)
		assert.Len(t, deliveries, 2)
	})

	t.Run("permanent failure is reported to the workflow", func(t *testing.T) {
		srv, _ := statusServer(t, http.StatusBadGateway)
		env := newTestEnv(t)
		reporter := &fakeReporter{}
		env.svc.Failures = reporter
		wh := env.register(t, srv.URL, 0)

		id, err := env.svc.Trigger(ctx, wh.ID, map[string]any{"n": 1}, nil)
		require.NoError(t, err)
		require.NoError(t, env.svc.ProcessDelivery(ctx, id))

		require.Equal(t, 1, reporter.calls)
		assert.Equal(t, "wf-orders", reporter.workflowID)
		assert.Equal(t, "user-1", reporter.ec.UserID)
		assert.Equal(t, id, reporter.ec.Values["delivery_id"])
		errType, _ := recovery.Classify(reporter.failure)
		assert.Equal(t, recovery.Integration, errType)
	})

	t.Run("client error is classified as validation", func(t *testing.T) {
		srv, _ := statusServer(t, http.StatusBadRequest)
		env := newTestEnv(t)
		wh := env.register(t, srv.URL, 0)

		id, err := env.svc.Trigger(ctx, wh.ID, map[string]any{"n": 1}, nil)
		require.NoError(t, err)
		require.NoError(t, env.svc.ProcessDelivery(ctx, id))

		d, err := env.svc.GetDelivery(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, webhook.DeliveryFailed, d.Status)
		assert.Equal(t, "validation", d.ErrorType)
	})

	t.Run("connection refused is retried", func(t *testing.T) {
		srv, _ := statusServer(t, http.StatusOK)
		target := srv.URL
		srv.Close()

		env := newTestEnv(t)
		wh := env.register(t, target, 1)

		id, err := env.svc.Trigger(ctx, wh.ID, map[string]any{"n": 1}, nil)
		require.NoError(t, err)
		require.NoError(t, env.svc.ProcessDelivery(ctx, id))

		d, err := env.svc.GetDelivery(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, webhook.DeliveryPending, d.Status)
		assert.Equal(t, "integration", d.ErrorType)
		assert.Nil(t, d.Response)
		assert.Len(t, env.queue.delayed, 1)
	})

	t.Run("inactive webhook fails delivery without an attempt", func(t *testing.T) {
		srv, hits := statusServer(t, http.StatusOK)
		env := newTestEnv(t)
		wh := env.register(t, srv.URL, 3)

		id, err := env.svc.Trigger(ctx, wh.ID, map[string]any{"n": 1}, nil)
		require.NoError(t, err)
		require.NoError(t, env.svc.Deactivate(ctx, wh.ID))
		require.NoError(t, env.svc.ProcessDelivery(ctx, id))

		d, err := env.svc.GetDelivery(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, webhook.DeliveryFailed, d.Status)
		assert.Equal(t, 0, d.Attempts)
		assert.Equal(t, "validation", d.ErrorType)
		assert.Equal(t, 0, *hits)

		got, err := env.svc.Get(ctx, wh.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.FailedDeliveries)
	})

	t.Run("held lease requeues the attempt past the lease", func(t *testing.T) {
		srv, hits := statusServer(t, http.StatusOK)
		env := newTestEnv(t)
		wh := env.register(t, srv.URL, 3)

		id, err := env.svc.Trigger(ctx, wh.ID, map[string]any{"n": 1}, nil)
		require.NoError(t, err)

		ok, err := env.store.Acquire(ctx, "lease:delivery:"+id, "other-worker", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, env.svc.ProcessDelivery(ctx, id))

		d, err := env.svc.GetDelivery(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, webhook.DeliveryPending, d.Status)
		assert.Equal(t, 0, d.Attempts)
		assert.Equal(t, 0, *hits)

		require.Len(t, env.queue.delayed, 1)
		assert.Equal(t, webhook.DeliverTaskKind, env.queue.delayed[0].kind)
		assert.Equal(t, fixedNow.Add(webhook.MaxTimeout+30*time.Second), env.queue.delayed[0].runAt)
		assert.Equal(t, id, env.queue.delayed[0].data["delivery_id"])
		assert.Equal(t, 0, env.queue.delayed[0].data["attempts"])
	})

	t.Run("error - held lease with a failing queue surfaces the error", func(t *testing.T) {
		env := newTestEnv(t)
		wh := env.register(t, "https://hooks.example.com/in", 3)

		id, err := env.svc.Trigger(ctx, wh.ID, map[string]any{"n": 1}, nil)
		require.NoError(t, err)

		ok, err := env.store.Acquire(ctx, "lease:delivery:"+id, "other-worker", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
		env.queue.delayedErr = errors.New("queue down")

		err = env.svc.ProcessDelivery(ctx, id)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "requeueing held delivery")
	})

	t.Run("retry is queued before it is recorded", func(t *testing.T) {
		srv, hits := statusServer(t, http.StatusInternalServerError)
		env := newTestEnv(t)
		wh := env.register(t, srv.URL, 3)

		id, err := env.svc.Trigger(ctx, wh.ID, map[string]any{"n": 1}, nil)
		require.NoError(t, err)
		env.queue.delayedErr = errors.New("queue down")

		err = env.svc.ProcessDelivery(ctx, id)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scheduling retry")
		assert.Equal(t, 1, *hits)

		d, err := env.svc.GetDelivery(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, webhook.DeliveryPending, d.Status)
		assert.Nil(t, d.NextRetry, "no next_retry is stored without a task behind it")
	})

	t.Run("releases the lease and ignores final deliveries", func(t *testing.T) {
		srv, hits := statusServer(t, http.StatusOK)
		env := newTestEnv(t)
		wh := env.register(t, srv.URL, 3)

		id, err := env.svc.Trigger(ctx, wh.ID, map[string]any{"n": 1}, nil)
		require.NoError(t, err)
		require.NoError(t, env.svc.ProcessDelivery(ctx, id))
		assert.False(t, env.mr.Exists("lease:delivery:"+id))

		require.NoError(t, env.svc.ProcessDelivery(ctx, id))
		assert.Equal(t, 1, *hits)
	})
}

func TestService_RetryDelivery(t *testing.T) {
	ctx := context.Background()

	t.Run("success - creates a linked delivery", func(t *testing.T) {
		srv, _ := statusServer(t, http.StatusServiceUnavailable)
		env := newTestEnv(t)
		wh := env.register(t, srv.URL, 0)

		id, err := env.svc.Trigger(ctx, wh.ID, map[string]any{"n": 1}, nil)
		require.NoError(t, err)
		require.NoError(t, env.svc.ProcessDelivery(ctx, id))

		retryID, err := env.svc.RetryDelivery(ctx, id)
		require.NoError(t, err)
		assert.NotEqual(t, id, retryID)

		d, err := env.svc.GetDelivery(ctx, retryID)
		require.NoError(t, err)
		assert.Equal(t, id, d.RetryOf)
		assert.Equal(t, webhook.DeliveryPending, d.Status)
		assert.Len(t, env.queue.immediate, 2)
	})

	t.Run("delivery not failed", func(t *testing.T) {
		env := newTestEnv(t)
		wh := env.register(t, "https://hooks.example.com/in", 3)

		id, err := env.svc.Trigger(ctx, wh.ID, map[string]any{"n": 1}, nil)
		require.NoError(t, err)

		_, err = env.svc.RetryDelivery(ctx, id)
		require.ErrorIs(t, err, webhook.ErrDeliveryNotFailed)
	})
}

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("deleted webhooks are hidden and cannot be reactivated", func(t *testing.T) {
		env := newTestEnv(t)
		kept := env.register(t, "https://hooks.example.com/a", 3)
		gone := env.register(t, "https://hooks.example.com/b", 3)

		require.NoError(t, env.svc.Delete(ctx, gone.ID))

		list, err := env.svc.List(ctx, "user-1", webhook.ListFilter{})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, kept.ID, list[0].ID)

		deleted, err := env.svc.List(ctx, "user-1", webhook.ListFilter{Status: webhook.Deleted})
		require.NoError(t, err)
		require.Len(t, deleted, 1)

		require.ErrorIs(t, env.svc.Activate(ctx, gone.ID), webhook.ErrWebhookNotFound)
	})

	t.Run("update config keeps the secret", func(t *testing.T) {
		env := newTestEnv(t)
		wh := env.register(t, "https://hooks.example.com/a", 3)

		cfg := webhook.DefaultConfig("https://hooks.example.com/moved")
		cfg.Timeout = 5 * time.Second

		got, err := env.svc.UpdateConfig(ctx, wh.ID, cfg)
		require.NoError(t, err)
		assert.Equal(t, "https://hooks.example.com/moved", got.Config.URL)
		assert.Equal(t, 5*time.Second, got.Config.Timeout)
		assert.Equal(t, wh.Secret.Key, got.Secret.Key)
	})
}

func TestService_VerifyWebhook(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	wh := env.register(t, "https://hooks.example.com/a", 3)

	body := map[string]any{"b": 2, "a": 1}
	canonical, err := payload.Canonical(body)
	require.NoError(t, err)
	sig := signature.Sign(wh.Secret.Key, canonical)

	t.Run("success", func(t *testing.T) {
		ok, err := env.svc.VerifyWebhook(ctx, wh.ID, body, sig)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, env.svc.VerifySignature(wh.Secret.Key, body, signature.Prefix+sig))
	})

	t.Run("tampered body", func(t *testing.T) {
		ok, err := env.svc.VerifyWebhook(ctx, wh.ID, map[string]any{"a": 1, "b": 3}, sig)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown webhook", func(t *testing.T) {
		_, err := env.svc.VerifyWebhook(ctx, "wh_missing", body, sig)
		require.ErrorIs(t, err, webhook.ErrWebhookNotFound)
	})
}

func TestService_GetWebhookHealth(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		srv, _ := statusServer(t, http.StatusOK)
		env := newTestEnv(t)
		wh := env.register(t, srv.URL, 3)

		id, err := env.svc.Trigger(ctx, wh.ID, map[string]any{"n": 1}, nil)
		require.NoError(t, err)
		require.NoError(t, env.svc.ProcessDelivery(ctx, id))

		health, err := env.svc.GetWebhookHealth(ctx, wh.ID)
		require.NoError(t, err)
		assert.Equal(t, wh.ID, health.WebhookID)
		assert.Equal(t, int64(1), health.Metrics.SuccessfulDeliveries)
	})

	t.Run("unknown webhook", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.svc.GetWebhookHealth(ctx, "wh_missing")
		require.ErrorIs(t, err, webhook.ErrWebhookNotFound)
	})
}

func TestService_HandleDeliverTask(t *testing.T) {
	ctx := context.Background()

	t.Run("missing delivery id", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.svc.HandleDeliverTask(ctx, task.Task{ID: "t-1", Data: map[string]any{}})
		require.Error(t, err)
	})

	t.Run("success", func(t *testing.T) {
		srv, _ := statusServer(t, http.StatusNoContent)
		env := newTestEnv(t)
		wh := env.register(t, srv.URL, 3)

		id, err := env.svc.Trigger(ctx, wh.ID, map[string]any{"n": 1}, nil)
		require.NoError(t, err)

		result, err := env.svc.HandleDeliverTask(ctx, task.Task{ID: "t-1", Data: env.queue.immediate[0].data})
		require.NoError(t, err)
		assert.Equal(t, id, result["delivery_id"])
	})

	t.Run("success - attempts decoded from JSON", func(t *testing.T) {
		srv, hits := statusServer(t, http.StatusNoContent)
		env := newTestEnv(t)
		wh := env.register(t, srv.URL, 3)

		id, err := env.svc.Trigger(ctx, wh.ID, map[string]any{"n": 1}, nil)
		require.NoError(t, err)

		_, err = env.svc.HandleDeliverTask(ctx, task.Task{ID: "t-1", Data: map[string]any{"delivery_id": id, "attempts": float64(0)}})
		require.NoError(t, err)
		assert.Equal(t, 1, *hits)
	})

	t.Run("stale task is skipped", func(t *testing.T) {
		srv, hits := statusServer(t, http.StatusInternalServerError)
		env := newTestEnv(t)
		wh := env.register(t, srv.URL, 3)

		id, err := env.svc.Trigger(ctx, wh.ID, map[string]any{"n": 1}, nil)
		require.NoError(t, err)
		first := env.queue.immediate[0].data

		_, err = env.svc.HandleDeliverTask(ctx, task.Task{ID: "t-1", Data: first})
		require.NoError(t, err)
		require.Len(t, env.queue.delayed, 1)
		assert.Equal(t, 1, env.queue.delayed[0].data["attempts"])

		// a duplicate of the first task arrives after the attempt it queued for
		_, err = env.svc.HandleDeliverTask(ctx, task.Task{ID: "t-2", Data: first})
		require.NoError(t, err)

		d, err := env.svc.GetDelivery(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, d.Attempts)
		assert.Equal(t, 1, *hits)

		_, err = env.svc.HandleDeliverTask(ctx, task.Task{ID: "t-3", Data: env.queue.delayed[0].data})
		require.NoError(t, err)
		assert.Equal(t, 2, *hits)
	})
}

func TestService_RecoverStalled(t *testing.T) {
	ctx := context.Background()

	t.Run("success - failed retry schedule is recovered", func(t *testing.T) {
		srv, hits := statusServer(t, http.StatusInternalServerError, http.StatusOK)
		env := newTestEnv(t)
		wh := env.register(t, srv.URL, 3)

		id, err := env.svc.Trigger(ctx, wh.ID, map[string]any{"n": 1}, nil)
		require.NoError(t, err)
		env.queue.delayedErr = errors.New("queue down")
		require.Error(t, env.svc.ProcessDelivery(ctx, id))
		env.queue.delayedErr = nil

		n, err := env.svc.RecoverStalled(ctx)
		require.NoError(t, err)
		assert.Zero(t, n, "not overdue yet")

		env.svc.Now = func() time.Time { return fixedNow.Add(6 * time.Minute) }
		n, err = env.svc.RecoverStalled(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		require.Len(t, env.queue.immediate, 2)
		requeued := env.queue.immediate[1]
		assert.Equal(t, webhook.DeliverTaskKind, requeued.kind)
		assert.Equal(t, id, requeued.data["delivery_id"])
		assert.Equal(t, 1, requeued.data["attempts"])

		_, err = env.svc.HandleDeliverTask(ctx, task.Task{ID: "t-2", Data: requeued.data})
		require.NoError(t, err)
		assert.Equal(t, 2, *hits)

		d, err := env.svc.GetDelivery(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, webhook.DeliverySuccess, d.Status)
	})

	t.Run("success - attempt lost with its worker is recovered after the lease", func(t *testing.T) {
		env := newTestEnv(t)
		wh := env.register(t, "https://hooks.example.com/in", 3)

		id, err := env.svc.Trigger(ctx, wh.ID, map[string]any{"n": 1}, nil)
		require.NoError(t, err)

		// the worker took the task and its lease, then died mid-attempt
		ok, err := env.store.Acquire(ctx, "lease:delivery:"+id, "dead-worker", webhook.MaxTimeout+30*time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		_, err = env.repo.IncrementAttempts(ctx, id, wh.ID)
		require.NoError(t, err)

		env.svc.Now = func() time.Time { return fixedNow.Add(6 * time.Minute) }
		n, err := env.svc.RecoverStalled(ctx)
		require.NoError(t, err)
		assert.Zero(t, n, "an in-flight attempt is left alone")

		env.mr.FastForward(webhook.MaxTimeout + 31*time.Second)
		env.svc.Now = func() time.Time { return fixedNow.Add(12 * time.Minute) }
		n, err = env.svc.RecoverStalled(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		require.Len(t, env.queue.immediate, 2)
		assert.Equal(t, 1, env.queue.immediate[1].data["attempts"])

		n, err = env.svc.RecoverStalled(ctx)
		require.NoError(t, err)
		assert.Zero(t, n, "claimed deliveries wait a full window")
	})

	t.Run("success - finished and scheduled deliveries are left alone", func(t *testing.T) {
		srv, _ := statusServer(t, http.StatusOK, http.StatusInternalServerError)
		env := newTestEnv(t)
		wh := env.register(t, srv.URL, 3)

		done, err := env.svc.Trigger(ctx, wh.ID, map[string]any{"n": 1}, nil)
		require.NoError(t, err)
		require.NoError(t, env.svc.ProcessDelivery(ctx, done))

		retrying, err := env.svc.Trigger(ctx, wh.ID, map[string]any{"n": 2}, nil)
		require.NoError(t, err)
		require.NoError(t, env.svc.ProcessDelivery(ctx, retrying))

		// next_retry is fixedNow+60s, so it is not overdue yet
		env.svc.Now = func() time.Time { return fixedNow.Add(6 * time.Minute) }
		n, err := env.svc.RecoverStalled(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("error - claim failure", func(t *testing.T) {
		repo := mocks.NewRepository(t)
		service := webhook.NewService(repo, nil, nil, nil, nil, nil, zerolog.Nop())
		service.Now = func() time.Time { return fixedNow }

		repo.On("ClaimStalled", ctx, fixedNow.Add(-(webhook.MaxTimeout + 30*time.Second)), fixedNow, 100).
			Return(nil, errors.New("connection refused"))

		_, err := service.RecoverStalled(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "claiming stalled deliveries")
	})
}

func TestService_ErrorBodyTruncation(t *testing.T) {
	t.Run("success - long bodies are cut on a rune boundary", func(t *testing.T) {
		body := strings.Repeat("a", 255) + "é" + strings.Repeat("b", 10)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(body))
		}))
		t.Cleanup(srv.Close)

		env := newTestEnv(t)
		wh := env.register(t, srv.URL, 0)

		id, err := env.svc.Trigger(context.Background(), wh.ID, map[string]any{"n": 1}, nil)
		require.NoError(t, err)
		require.NoError(t, env.svc.ProcessDelivery(context.Background(), id))

		d, err := env.svc.GetDelivery(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, utf8.ValidString(d.Error))
		assert.Equal(t, "HTTP 400: "+strings.Repeat("a", 255), d.Error)
	})
}
