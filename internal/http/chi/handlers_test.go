package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/marcelsud/flowrelay/monitoring"
	monitoringmocks "github.com/marcelsud/flowrelay/monitoring/mocks"
	"github.com/marcelsud/flowrelay/ratelimit"
	ratelimitmocks "github.com/marcelsud/flowrelay/ratelimit/mocks"
	"github.com/marcelsud/flowrelay/task"
	"github.com/marcelsud/flowrelay/webhook"
	"github.com/marcelsud/flowrelay/webhook/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeTasks map[string]task.Task

func (f fakeTasks) Get(_ context.Context, id string) (task.Task, error) {
	t, ok := f[id]
	if !ok {
		return task.Task{}, fmt.Errorf("%w: %s", task.ErrTaskNotFound, id)
	}
	return t, nil
}

type testAPI struct {
	handler  http.Handler
	webhooks *mocks.UseCase
	monitor  *monitoringmocks.UseCase
	limiter  *ratelimitmocks.Checker
}

func newTestAPI(t *testing.T, tasks fakeTasks) *testAPI {
	t.Helper()

	api := &testAPI{
		webhooks: mocks.NewUseCase(t),
		monitor:  monitoringmocks.NewUseCase(t),
		limiter:  ratelimitmocks.NewChecker(t),
	}
	api.handler = Handlers(context.Background(), Services{
		Webhooks:   api.webhooks,
		Tasks:      tasks,
		Monitoring: api.monitor,
		Limiter:    api.limiter,
	}, zerolog.Nop())

	return api
}

func (a *testAPI) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(userHeader, "user-1")
	req.Header.Set(planHeader, "free")

	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func ownedHook(id string) webhook.Webhook {
	return webhook.Webhook{
		ID:     id,
		Name:   "orders",
		Config: webhook.DefaultConfig("https://hooks.example.com/in"),
		Secret: webhook.Secret{Key: "s3cret", HeaderName: webhook.DefaultHeaderName},
		UserID: "user-1",
		Status: webhook.Active,
	}
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	api.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}

func TestRequireUser(t *testing.T) {
	api := newTestAPI(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/webhooks", nil)
	w := httptest.NewRecorder()
	api.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPostWebhook(t *testing.T) {
	t.Run("success - returns the secret once", func(t *testing.T) {
		api := newTestAPI(t, nil)
		created := ownedHook("wh_1")

		api.webhooks.On("Register", mock.Anything, "orders", mock.MatchedBy(func(cfg webhook.Config) bool {
			return cfg.URL == "https://hooks.example.com/in" &&
				cfg.Method == "PUT" &&
				cfg.Timeout == 10*time.Second &&
				cfg.RetryStrategy.MaxRetries == 5 &&
				cfg.RetryStrategy.InitialInterval == 30*time.Second
		}), "wf-1", "user-1").Return(created, nil)

		w := api.do(t, http.MethodPost, "/v1/webhooks", `{
			"name": "orders",
			"url": "https://hooks.example.com/in",
			"method": "PUT",
			"timeout": 10,
			"workflow_id": "wf-1",
			"retry_strategy": {"max_retries": 5, "initial_interval": 30, "multiplier": 2, "max_interval": 600}
		}`)

		require.Equal(t, http.StatusCreated, w.Code)
		var resp webhookResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "wh_1", resp.ID)
		assert.Equal(t, "s3cret", resp.Secret)
		assert.Equal(t, "active", resp.Status)
	})

	t.Run("missing fields", func(t *testing.T) {
		api := newTestAPI(t, nil)

		w := api.do(t, http.MethodPost, "/v1/webhooks", `{"name": "orders"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid config", func(t *testing.T) {
		api := newTestAPI(t, nil)
		api.webhooks.On("Register", mock.Anything, "orders", mock.Anything, "", "user-1").
			Return(webhook.Webhook{}, fmt.Errorf("validating config: %w", webhook.ErrInvalidConfig))

		w := api.do(t, http.MethodPost, "/v1/webhooks", `{"name": "orders", "url": "ftp://x"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetWebhook(t *testing.T) {
	t.Run("success - hides the secret", func(t *testing.T) {
		api := newTestAPI(t, nil)
		api.webhooks.On("Get", mock.Anything, "wh_1").Return(ownedHook("wh_1"), nil)

		w := api.do(t, http.MethodGet, "/v1/webhooks/wh_1", "")

		require.Equal(t, http.StatusOK, w.Code)
		var resp webhookResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Empty(t, resp.Secret)
		assert.Equal(t, 30, resp.Timeout)
	})

	t.Run("other user's webhook", func(t *testing.T) {
		api := newTestAPI(t, nil)
		wh := ownedHook("wh_1")
		wh.UserID = "user-2"
		api.webhooks.On("Get", mock.Anything, "wh_1").Return(wh, nil)

		w := api.do(t, http.MethodGet, "/v1/webhooks/wh_1", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("not found", func(t *testing.T) {
		api := newTestAPI(t, nil)
		api.webhooks.On("Get", mock.Anything, "wh_x").Return(webhook.Webhook{}, webhook.ErrWebhookNotFound)

		w := api.do(t, http.MethodGet, "/v1/webhooks/wh_x", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestGetWebhooks(t *testing.T) {
	api := newTestAPI(t, nil)
	api.webhooks.On("List", mock.Anything, "user-1", webhook.ListFilter{WorkflowID: "wf-1", Status: webhook.Inactive}).
		Return([]webhook.Webhook{ownedHook("wh_1"), ownedHook("wh_2")}, nil)

	w := api.do(t, http.MethodGet, "/v1/webhooks?workflow_id=wf-1&status=inactive", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp []webhookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp, 2)
}

func TestPutWebhook(t *testing.T) {
	t.Run("success - deactivates", func(t *testing.T) {
		api := newTestAPI(t, nil)
		api.webhooks.On("Get", mock.Anything, "wh_1").Return(ownedHook("wh_1"), nil)
		api.webhooks.On("Deactivate", mock.Anything, "wh_1").Return(nil)

		w := api.do(t, http.MethodPut, "/v1/webhooks/wh_1", `{"status": "inactive"}`)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"inactive"`)
		api.webhooks.AssertNotCalled(t, "UpdateConfig", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("success - updates config", func(t *testing.T) {
		api := newTestAPI(t, nil)
		updated := ownedHook("wh_1")
		updated.Config.URL = "https://hooks.example.com/moved"

		api.webhooks.On("Get", mock.Anything, "wh_1").Return(ownedHook("wh_1"), nil)
		api.webhooks.On("UpdateConfig", mock.Anything, "wh_1", mock.MatchedBy(func(cfg webhook.Config) bool {
			return cfg.URL == "https://hooks.example.com/moved" && cfg.Method == "POST"
		})).Return(updated, nil)

		w := api.do(t, http.MethodPut, "/v1/webhooks/wh_1", `{"url": "https://hooks.example.com/moved"}`)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "moved")
	})

	t.Run("deleted is not a settable status", func(t *testing.T) {
		api := newTestAPI(t, nil)
		api.webhooks.On("Get", mock.Anything, "wh_1").Return(ownedHook("wh_1"), nil)

		w := api.do(t, http.MethodPut, "/v1/webhooks/wh_1", `{"status": "deleted"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDeleteWebhook(t *testing.T) {
	api := newTestAPI(t, nil)
	api.webhooks.On("Get", mock.Anything, "wh_1").Return(ownedHook("wh_1"), nil)
	api.webhooks.On("Delete", mock.Anything, "wh_1").Return(nil)

	w := api.do(t, http.MethodDelete, "/v1/webhooks/wh_1", "")

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestTriggerWebhook(t *testing.T) {
	t.Run("success - accepted", func(t *testing.T) {
		api := newTestAPI(t, nil)
		api.limiter.On("Check", mock.Anything, "user-1", triggerAction, "free").Return(nil)
		api.webhooks.On("Get", mock.Anything, "wh_1").Return(ownedHook("wh_1"), nil)
		api.webhooks.On("Trigger", mock.Anything, "wh_1", mock.MatchedBy(func(body map[string]any) bool {
			return body["order_id"] == "o-1"
		}), map[string]string{"X-Event": "order.created"}).Return("whd_1", nil)

		w := api.do(t, http.MethodPost, "/v1/webhooks/wh_1/trigger",
			`{"payload": {"order_id": "o-1"}, "headers": {"X-Event": "order.created"}}`)

		require.Equal(t, http.StatusAccepted, w.Code)
		var resp triggerResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "whd_1", resp.DeliveryID)
		assert.Equal(t, "pending", resp.Status)
	})

	t.Run("rate limited", func(t *testing.T) {
		api := newTestAPI(t, nil)
		api.limiter.On("Check", mock.Anything, "user-1", triggerAction, "free").Return(&ratelimit.ExceededError{
			Action:     triggerAction,
			Limit:      100,
			Window:     time.Hour,
			RetryAfter: 90 * time.Second,
		})

		w := api.do(t, http.MethodPost, "/v1/webhooks/wh_1/trigger", `{"payload": {}}`)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "90", w.Header().Get("Retry-After"))
		api.webhooks.AssertNotCalled(t, "Trigger", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("limiter failure lets the request through", func(t *testing.T) {
		api := newTestAPI(t, nil)
		api.limiter.On("Check", mock.Anything, "user-1", triggerAction, "free").Return(errors.New("connection refused"))
		api.webhooks.On("Get", mock.Anything, "wh_1").Return(ownedHook("wh_1"), nil)
		api.webhooks.On("Trigger", mock.Anything, "wh_1", mock.Anything, mock.Anything).Return("whd_2", nil)

		w := api.do(t, http.MethodPost, "/v1/webhooks/wh_1/trigger", `{"payload": {"a": 1}}`)

		assert.Equal(t, http.StatusAccepted, w.Code)
	})

	t.Run("inactive webhook", func(t *testing.T) {
		api := newTestAPI(t, nil)
		api.limiter.On("Check", mock.Anything, "user-1", triggerAction, "free").Return(nil)
		api.webhooks.On("Get", mock.Anything, "wh_1").Return(ownedHook("wh_1"), nil)
		api.webhooks.On("Trigger", mock.Anything, "wh_1", mock.Anything, mock.Anything).
			Return("", fmt.Errorf("%w: wh_1 is inactive", webhook.ErrWebhookNotActive))

		w := api.do(t, http.MethodPost, "/v1/webhooks/wh_1/trigger", `{"payload": {"a": 1}}`)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("payload must be an object", func(t *testing.T) {
		api := newTestAPI(t, nil)
		api.limiter.On("Check", mock.Anything, "user-1", triggerAction, "free").Return(nil)
		api.webhooks.On("Get", mock.Anything, "wh_1").Return(ownedHook("wh_1"), nil)

		w := api.do(t, http.MethodPost, "/v1/webhooks/wh_1/trigger", `{"headers": {}}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestWebhookDeliveries(t *testing.T) {
	t.Run("success - passes filter", func(t *testing.T) {
		api := newTestAPI(t, nil)
		api.webhooks.On("Get", mock.Anything, "wh_1").Return(ownedHook("wh_1"), nil)
		api.webhooks.On("ListDeliveries", mock.Anything, "wh_1", webhook.DeliveryFilter{
			Status: webhook.DeliveryFailed,
			Limit:  10,
			Offset: 5,
		}).Return([]webhook.Delivery{{ID: "whd_1", WebhookID: "wh_1", Status: webhook.DeliveryFailed}}, nil)

		w := api.do(t, http.MethodGet, "/v1/webhooks/wh_1/deliveries?status=failed&limit=10&offset=5", "")

		require.Equal(t, http.StatusOK, w.Code)
		var resp []deliveryResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp, 1)
		assert.Equal(t, "failed", resp[0].Status)
	})

	t.Run("bad limit", func(t *testing.T) {
		api := newTestAPI(t, nil)
		api.webhooks.On("Get", mock.Anything, "wh_1").Return(ownedHook("wh_1"), nil)

		w := api.do(t, http.MethodGet, "/v1/webhooks/wh_1/deliveries?limit=ten", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestVerifyWebhook(t *testing.T) {
	api := newTestAPI(t, nil)
	api.webhooks.On("Get", mock.Anything, "wh_1").Return(ownedHook("wh_1"), nil)
	api.webhooks.On("VerifyWebhook", mock.Anything, "wh_1", mock.Anything, "sha256=abc").Return(true, nil)

	w := api.do(t, http.MethodPost, "/v1/webhooks/wh_1/verify", `{"payload": {"a": 1}, "signature": "sha256=abc"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"valid":true}`, w.Body.String())
}

func TestWebhookHealth(t *testing.T) {
	api := newTestAPI(t, nil)
	api.webhooks.On("Get", mock.Anything, "wh_1").Return(ownedHook("wh_1"), nil)
	api.webhooks.On("GetWebhookHealth", mock.Anything, "wh_1").Return(monitoring.Health{
		WebhookID: "wh_1",
		Score:     100,
		Status:    monitoring.Healthy,
	}, nil)

	w := api.do(t, http.MethodGet, "/v1/webhooks/wh_1/health", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
}

func TestDeliveries(t *testing.T) {
	failed := webhook.Delivery{
		ID:        "whd_1",
		WebhookID: "wh_1",
		Status:    webhook.DeliveryFailed,
		Attempts:  4,
		Response:  &webhook.Response{StatusCode: 500, Body: "boom"},
	}

	t.Run("get", func(t *testing.T) {
		api := newTestAPI(t, nil)
		api.webhooks.On("GetDelivery", mock.Anything, "whd_1").Return(failed, nil)
		api.webhooks.On("Get", mock.Anything, "wh_1").Return(ownedHook("wh_1"), nil)

		w := api.do(t, http.MethodGet, "/v1/deliveries/whd_1", "")

		require.Equal(t, http.StatusOK, w.Code)
		var resp deliveryResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 4, resp.Attempts)
		require.NotNil(t, resp.Response)
		assert.Equal(t, 500, resp.Response.StatusCode)
	})

	t.Run("retry", func(t *testing.T) {
		api := newTestAPI(t, nil)
		api.limiter.On("Check", mock.Anything, "user-1", triggerAction, "free").Return(nil)
		api.webhooks.On("GetDelivery", mock.Anything, "whd_1").Return(failed, nil)
		api.webhooks.On("Get", mock.Anything, "wh_1").Return(ownedHook("wh_1"), nil)
		api.webhooks.On("RetryDelivery", mock.Anything, "whd_1").Return("whd_2", nil)

		w := api.do(t, http.MethodPost, "/v1/deliveries/whd_1/retry", "")

		require.Equal(t, http.StatusAccepted, w.Code)
		assert.Contains(t, w.Body.String(), "whd_2")
	})

	t.Run("retry of a pending delivery conflicts", func(t *testing.T) {
		api := newTestAPI(t, nil)
		pending := failed
		pending.Status = webhook.DeliveryPending

		api.limiter.On("Check", mock.Anything, "user-1", triggerAction, "free").Return(nil)
		api.webhooks.On("GetDelivery", mock.Anything, "whd_1").Return(pending, nil)
		api.webhooks.On("Get", mock.Anything, "wh_1").Return(ownedHook("wh_1"), nil)
		api.webhooks.On("RetryDelivery", mock.Anything, "whd_1").Return("", webhook.ErrDeliveryNotFailed)

		w := api.do(t, http.MethodPost, "/v1/deliveries/whd_1/retry", "")

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestGetTask(t *testing.T) {
	tasks := fakeTasks{
		"t-1": {ID: "t-1", Kind: webhook.DeliverTaskKind, QueueType: task.Normal, Status: task.Completed},
	}

	t.Run("success", func(t *testing.T) {
		api := newTestAPI(t, tasks)
		api.limiter.On("Check", mock.Anything, "user-1", taskStatusAction, "free").Return(nil)

		w := api.do(t, http.MethodGet, "/v1/tasks/t-1", "")

		require.Equal(t, http.StatusOK, w.Code)
		var resp taskResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "completed", resp.Status)
		assert.Equal(t, "normal", resp.Queue)
	})

	t.Run("not found", func(t *testing.T) {
		api := newTestAPI(t, tasks)
		api.limiter.On("Check", mock.Anything, "user-1", taskStatusAction, "free").Return(nil)

		w := api.do(t, http.MethodGet, "/v1/tasks/t-9", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestMonitoring(t *testing.T) {
	t.Run("current", func(t *testing.T) {
		api := newTestAPI(t, nil)
		api.monitor.On("Current", mock.Anything, "wh_1").Return(monitoring.Metrics{TotalDeliveries: 3}, nil)

		w := api.do(t, http.MethodGet, "/v1/monitoring/webhooks/current?webhook_id=wh_1", "")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"total_deliveries":3`)
	})

	t.Run("period", func(t *testing.T) {
		api := newTestAPI(t, nil)
		start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		api.monitor.On("ByPeriod", mock.Anything, monitoring.Week, "", start, time.Time{}).
			Return(monitoring.Metrics{SuccessfulDeliveries: 7}, nil)

		w := api.do(t, http.MethodGet, "/v1/monitoring/webhooks/period?period=week&start=2026-03-01T00:00:00Z", "")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"successful_deliveries":7`)
	})

	t.Run("invalid period", func(t *testing.T) {
		api := newTestAPI(t, nil)

		w := api.do(t, http.MethodGet, "/v1/monitoring/webhooks/period?period=year", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHTTPMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	httpMetrics := NewHTTPMetrics(reg)

	h := Handlers(context.Background(), Services{HTTPMetrics: httpMetrics}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, float64(1), testutil.ToFloat64(httpMetrics.RequestsTotal.WithLabelValues("200", http.MethodGet, "/health")))
}
