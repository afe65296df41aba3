package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marcelsud/flowrelay/task"
	"github.com/marcelsud/flowrelay/workflow"
	"github.com/rs/zerolog"
)

// RetryTaskKind is the task kind scheduled for a workflow retry
const RetryTaskKind = "workflow.retry"

const errorActivity = "workflow_error"

/* StateStore persists workflow execution state
 * Implemented by workflow.StateManager
 */
type StateStore interface {
	Save(ctx context.Context, workflowID string, state map[string]any) error
	Get(ctx context.Context, workflowID string) (map[string]any, error)
}

/* ActivityRecorder is the audit sink every classified failure is written to
 * Implemented by activity.Tracker
 */
type ActivityRecorder interface {
	Track(ctx context.Context, activityType, userID string, data map[string]any) error
}

/* Scheduler parks a task until a future time
 * Implemented by task.Manager
 */
type Scheduler interface {
	EnqueueAt(ctx context.Context, queueType task.QueueType, kind string, data map[string]any, runAt time.Time) (string, error)
}

/* Invalidator drops cached workflow results
 * Implemented by workflow.Cache
 */
type Invalidator interface {
	Invalidate(ctx context.Context, workflowID string) error
}

// Result is what executing a strategy did
type Result struct {
	Status       string    `json:"status"`
	Reason       string    `json:"reason,omitempty"`
	RetryTime    time.Time `json:"retry_time,omitempty"`
	RetryAttempt int       `json:"retry_attempt,omitempty"`
	TaskID       string    `json:"task_id,omitempty"`
}

// Outcome is the full record of a handled failure
type Outcome struct {
	ErrorType ErrorType `json:"error_type"`
	Severity  Severity  `json:"severity"`
	Strategy  Strategy  `json:"recovery_strategy"`
	Result    Result    `json:"recovery_result"`
}

type Handler struct {
	States    StateStore
	Activity  ActivityRecorder
	Scheduler Scheduler
	// Cache is optional; cleanup invalidates it when set
	Cache  Invalidator
	Logger zerolog.Logger
	Now    func() time.Time
}

// NewHandler creates a workflow error handler
func NewHandler(states StateStore, activity ActivityRecorder, scheduler Scheduler, logger zerolog.Logger) *Handler {
	return &Handler{
		States:    states,
		Activity:  activity,
		Scheduler: scheduler,
		Logger:    logger,
		Now:       time.Now,
	}
}

// HandleError classifies failure, records it, then fails or schedules a retry of
// the workflow. An error inside the handler itself is logged as critical and returned.
func (h *Handler) HandleError(ctx context.Context, workflowID string, failure error, ec Context) (Outcome, error) {
	errType, severity := Classify(failure)

	out, err := h.handle(ctx, workflowID, failure, errType, severity, ec)
	if err != nil {
		h.Logger.WithLevel(zerolog.FatalLevel).
			Err(err).
			Str("workflow_id", workflowID).
			Str("severity", Critical.String()).
			Msg("Error handler failed")
		return Outcome{}, fmt.Errorf("handling workflow error: %w", err)
	}
	return out, nil
}

func (h *Handler) handle(ctx context.Context, workflowID string, failure error, errType ErrorType, severity Severity, ec Context) (Outcome, error) {
	if err := h.record(ctx, workflowID, failure, errType, severity, ec); err != nil {
		return Outcome{}, err
	}

	strategy := DetermineStrategy(errType, ec)
	result, err := h.ExecuteStrategy(ctx, workflowID, strategy, ec)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{
		ErrorType: errType,
		Severity:  severity,
		Strategy:  strategy,
		Result:    result,
	}, nil
}

// ExecuteStrategy persists the terminal failure or schedules the retry
func (h *Handler) ExecuteStrategy(ctx context.Context, workflowID string, strategy Strategy, ec Context) (Result, error) {
	switch strategy.Action {
	case ActionFail:
		if err := h.fail(ctx, workflowID, strategy, ec); err != nil {
			return Result{}, err
		}
		return Result{Status: "failed", Reason: strategy.Reason}, nil
	case ActionRetry:
		if strategy.CleanupRequired {
			if err := h.cleanup(ctx, workflowID); err != nil {
				return Result{}, err
			}
		}
		return h.scheduleRetry(ctx, workflowID, strategy.Delay, ec)
	default:
		return Result{}, fmt.Errorf("unknown recovery action %q", strategy.Action)
	}
}

// ResumeRetry is the task handler of RetryTaskKind. It marks the workflow as
// retrying so the execution engine can pick it up again.
func (h *Handler) ResumeRetry(ctx context.Context, t task.Task) (map[string]any, error) {
	workflowID, _ := t.Data["workflow_id"].(string)
	if workflowID == "" {
		return nil, Errorf(KindValidation, "retry task %s has no workflow_id", t.ID)
	}

	state := map[string]any{
		"status":     "retrying",
		"retries":    t.Data["retries"],
		"resumed_at": h.Now().UTC().Format(time.RFC3339),
	}
	if err := h.States.Save(ctx, workflowID, state); err != nil {
		return nil, fmt.Errorf("saving retrying state: %w", err)
	}

	h.Logger.Info().Str("workflow_id", workflowID).Msg("Workflow retry due")
	return map[string]any{"workflow_id": workflowID}, nil
}

func (h *Handler) record(ctx context.Context, workflowID string, failure error, errType ErrorType, severity Severity, ec Context) error {
	data := map[string]any{
		"workflow_id":   workflowID,
		"error_type":    errType.String(),
		"severity":      severity.String(),
		"error_message": failure.Error(),
		"trace":         errorChain(failure),
		"context":       ec,
		"timestamp":     h.Now().UTC().Format(time.RFC3339),
	}
	if err := h.Activity.Track(ctx, errorActivity, ec.UserID, data); err != nil {
		return fmt.Errorf("recording error activity: %w", err)
	}

	var event *zerolog.Event
	if severity >= High {
		event = h.Logger.Error()
	} else {
		event = h.Logger.Warn()
	}
	event.Err(failure).
		Str("workflow_id", workflowID).
		Str("error_type", errType.String()).
		Str("severity", severity.String()).
		Str("step", ec.Step).
		Int("retries", ec.Retries).
		Msg("Workflow error")

	return nil
}

func (h *Handler) fail(ctx context.Context, workflowID string, strategy Strategy, ec Context) error {
	state := map[string]any{
		"status":          "failed",
		"error":           strategy.Reason,
		"failure_context": ec,
		"failed_at":       h.Now().UTC().Format(time.RFC3339),
	}
	if err := h.States.Save(ctx, workflowID, state); err != nil {
		return fmt.Errorf("saving failed state: %w", err)
	}
	return nil
}

// cleanup archives the current state under original_state
func (h *Handler) cleanup(ctx context.Context, workflowID string) error {
	current, err := h.States.Get(ctx, workflowID)
	if err != nil && !errors.Is(err, workflow.ErrStateNotFound) {
		return fmt.Errorf("reading state for cleanup: %w", err)
	}

	state := map[string]any{
		"status":         "retry_cleanup",
		"original_state": current,
		"cleaned_at":     h.Now().UTC().Format(time.RFC3339),
	}
	if err := h.States.Save(ctx, workflowID, state); err != nil {
		return fmt.Errorf("saving cleanup state: %w", err)
	}

	if h.Cache != nil {
		if err := h.Cache.Invalidate(ctx, workflowID); err != nil {
			return fmt.Errorf("invalidating cached result: %w", err)
		}
	}
	return nil
}

func (h *Handler) scheduleRetry(ctx context.Context, workflowID string, delay time.Duration, ec Context) (Result, error) {
	now := h.Now().UTC()
	retryTime := now.Add(delay)
	attempt := ec.Retries + 1

	retryContext := map[string]any{
		"user_id":            ec.UserID,
		"step":               ec.Step,
		"values":             ec.Values,
		"retries":            attempt,
		"retry_scheduled_at": now.Format(time.RFC3339),
		"retry_time":         retryTime.Format(time.RFC3339),
	}
	state := map[string]any{
		"status":        "retry_scheduled",
		"retry_context": retryContext,
	}
	if err := h.States.Save(ctx, workflowID, state); err != nil {
		return Result{}, fmt.Errorf("saving retry state: %w", err)
	}

	taskID, err := h.Scheduler.EnqueueAt(ctx, task.Normal, RetryTaskKind, map[string]any{
		"workflow_id": workflowID,
		"retries":     attempt,
		"user_id":     ec.UserID,
		"step":        ec.Step,
	}, retryTime)
	if err != nil {
		return Result{}, fmt.Errorf("scheduling retry: %w", err)
	}

	return Result{
		Status:       "retry_scheduled",
		RetryTime:    retryTime,
		RetryAttempt: attempt,
		TaskID:       taskID,
	}, nil
}

// Helper functions

func errorChain(err error) []string {
	var chain []string
	for err != nil {
		chain = append(chain, err.Error())
		err = errors.Unwrap(err)
	}
	return chain
}
