package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/flowrelay/event"
	"github.com/marcelsud/flowrelay/store"
	"github.com/rs/zerolog"
)

/* Task queue layout in the state store
 * queue:{high|normal|low}_priority  list of task ids
 * queue:delayed                     sorted set of task ids scored by run_at
 * task:{id}                         JSON metadata, TTL = timeout
 * worker:heartbeat:{worker_id}      JSON heartbeat, TTL 60s
 */

const (
	delayedKey      = "queue:delayed"
	taskPrefix      = "task:"
	heartbeatPrefix = "worker:heartbeat:"

	finishedRetention = 7 * 24 * time.Hour
)

// Store is the subset of the state store the queue needs
type Store interface {
	store.KV
	store.List
	store.SortedSet
}

type Manager struct {
	store Store
	bus   event.Publisher
	cfg   Config

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	jobs     []periodicJob
}

// NewManager creates a task queue manager
func NewManager(s Store, bus event.Publisher, opts ...Option) *Manager {
	cfg := Config{Logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Manager{
		store:    s,
		bus:      bus,
		cfg:      cfg.withDefaults(),
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers the handler for a task kind, replacing any previous one
func (m *Manager) Handle(kind string, h HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[kind] = h
}

func (m *Manager) handler(kind string) (HandlerFunc, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handlers[kind]
	return h, ok
}

// Enqueue pushes a task on its priority list. A positive timeout bounds how
// long the task metadata lives; a task claimed after that is dropped.
func (m *Manager) Enqueue(ctx context.Context, queueType QueueType, kind string, data map[string]any, timeout time.Duration) (string, error) {
	if err := queueType.Validate(); err != nil {
		return "", err
	}

	now := m.cfg.Now()
	t := Task{
		ID:        uuid.New().String(),
		Kind:      kind,
		QueueType: queueType,
		Data:      data,
		Status:    Queued,
		CreatedAt: now,
		UpdatedAt: now,
		Timeout:   int(timeout.Seconds()),
	}

	if err := m.save(ctx, t, timeout); err != nil {
		return "", err
	}
	if err := m.store.RPush(ctx, queueType.Key(), t.ID); err != nil {
		return "", fmt.Errorf("pushing task: %w", err)
	}

	m.publish(ctx, event.TaskQueued, map[string]any{
		"task_id": t.ID,
		"queue":   queueType.String(),
		"kind":    kind,
	})

	return t.ID, nil
}

// EnqueueAt parks a task until runAt; workers move it onto its priority list once due
func (m *Manager) EnqueueAt(ctx context.Context, queueType QueueType, kind string, data map[string]any, runAt time.Time) (string, error) {
	if err := queueType.Validate(); err != nil {
		return "", err
	}

	now := m.cfg.Now()
	runAt = runAt.UTC()
	t := Task{
		ID:        uuid.New().String(),
		Kind:      kind,
		QueueType: queueType,
		Data:      data,
		Status:    Queued,
		CreatedAt: now,
		UpdatedAt: now,
		RunAt:     &runAt,
	}

	if err := m.save(ctx, t, 0); err != nil {
		return "", err
	}
	if err := m.store.ZAdd(ctx, delayedKey, float64(runAt.Unix()), t.ID); err != nil {
		return "", fmt.Errorf("scheduling task: %w", err)
	}

	m.publish(ctx, event.TaskQueued, map[string]any{
		"task_id": t.ID,
		"queue":   queueType.String(),
		"kind":    kind,
		"run_at":  runAt.Format(time.RFC3339),
	})

	return t.ID, nil
}

// Get returns the task metadata
func (m *Manager) Get(ctx context.Context, id string) (Task, error) {
	data, err := m.store.Get(ctx, taskPrefix+id)
	if errors.Is(err, store.ErrNotFound) {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return Task{}, fmt.Errorf("getting task: %w", err)
	}

	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return Task{}, fmt.Errorf("unmarshaling task: %w", err)
	}
	return t, nil
}

// UpdateStatus moves a task along queued -> processing -> completed|failed
func (m *Manager) UpdateStatus(ctx context.Context, id string, status Status, result map[string]any, errMsg string) error {
	t, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if !t.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, status)
	}

	t.Status = status
	t.Result = result
	t.Error = errMsg
	t.UpdatedAt = m.cfg.Now()

	// keep whatever lifetime the metadata has left
	ttl, err := m.store.TTL(ctx, taskPrefix+id)
	if errors.Is(err, store.ErrNotFound) {
		// expired between the read and now; never resurrect it
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("reading task TTL: %w", err)
	}
	if ttl == 0 && status.IsFinal() {
		ttl = finishedRetention
	}
	if err := m.save(ctx, t, ttl); err != nil {
		return err
	}

	m.publish(ctx, event.TaskUpdated, map[string]any{
		"task_id": id,
		"status":  status.String(),
		"kind":    t.Kind,
	})

	return nil
}

// ProcessQueues runs the configured number of workers until ctx is done
func (m *Manager) ProcessQueues(ctx context.Context) error {
	var wg sync.WaitGroup

	for i := 0; i < m.cfg.Workers; i++ {
		wg.Add(1)
		workerID := fmt.Sprintf("%s-%d", uuid.New().String()[:8], i)
		go func() {
			defer wg.Done()
			m.runWorker(ctx, workerID)
		}()
	}

	for _, job := range m.periodicJobs() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.runPeriodic(ctx, job)
		}()
	}

	m.cfg.Logger.Info().Int("workers", m.cfg.Workers).Msg("Task workers started")
	wg.Wait()
	m.cfg.Logger.Info().Msg("Task workers stopped")

	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (m *Manager) runWorker(ctx context.Context, workerID string) {
	logger := m.cfg.Logger.With().Str("worker_id", workerID).Logger()
	var lastBeat time.Time

	defer func() {
		if err := m.store.Delete(context.Background(), heartbeatPrefix+workerID); err != nil {
			logger.Warn().Err(err).Msg("Failed to clear heartbeat")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if time.Since(lastBeat) >= m.cfg.HeartbeatInterval {
			if err := m.heartbeat(ctx, workerID); err != nil {
				logger.Warn().Err(err).Msg("Failed to send heartbeat")
			}
			lastBeat = time.Now()
		}

		processed, err := m.ProcessOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// A store failure must not kill the worker
			logger.Error().Err(err).Msg("Error processing queues")
		}
		if processed {
			continue
		}

		if err := sleep(ctx, m.cfg.PollInterval); err != nil {
			return
		}
	}
}

// ProcessOnce promotes due delayed tasks and handles at most one task.
// It reports whether a task was taken off a queue.
func (m *Manager) ProcessOnce(ctx context.Context) (bool, error) {
	if err := m.promoteDue(ctx); err != nil {
		return false, fmt.Errorf("promoting delayed tasks: %w", err)
	}

	id, err := m.next(ctx)
	if err != nil {
		return false, err
	}
	if id == "" {
		return false, nil
	}

	t, err := m.Get(ctx, id)
	if errors.Is(err, ErrTaskNotFound) {
		m.cfg.Logger.Warn().Str("task_id", id).Msg("Dropping task with expired metadata")
		return true, nil
	}
	if err != nil {
		return true, err
	}

	m.process(ctx, t)
	return true, nil
}

// next pops the head of the highest priority non-empty list
func (m *Manager) next(ctx context.Context) (string, error) {
	for _, q := range Priorities {
		id, err := m.store.LPop(ctx, q.Key())
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("popping %s queue: %w", q, err)
		}
		return id, nil
	}
	return "", nil
}

// promoteDue moves due delayed tasks onto their priority lists. ZRem is the
// claim, so a task is promoted by exactly one worker.
func (m *Manager) promoteDue(ctx context.Context) error {
	now := float64(m.cfg.Now().Unix())
	ids, err := m.store.ZRangeByScore(ctx, delayedKey, math.Inf(-1), now, 0, m.cfg.PromoteBatch)
	if err != nil {
		return err
	}

	for _, id := range ids {
		claimed, err := m.store.ZRem(ctx, delayedKey, id)
		if err != nil {
			return err
		}
		if !claimed {
			continue
		}

		t, err := m.Get(ctx, id)
		if errors.Is(err, ErrTaskNotFound) {
			m.cfg.Logger.Warn().Str("task_id", id).Msg("Dropping delayed task with expired metadata")
			continue
		}
		if err != nil {
			return err
		}

		if err := m.store.RPush(ctx, t.QueueType.Key(), id); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) process(ctx context.Context, t Task) {
	logger := m.cfg.Logger.With().Str("task_id", t.ID).Str("kind", t.Kind).Logger()

	if err := m.UpdateStatus(ctx, t.ID, Processing, nil, ""); err != nil {
		logger.Error().Err(err).Msg("Failed to mark task processing")
		return
	}

	result, err := m.execute(ctx, t)
	if err != nil {
		logger.Error().Err(err).Msg("Task failed")
		if uerr := m.UpdateStatus(ctx, t.ID, Failed, nil, err.Error()); uerr != nil {
			logger.Error().Err(uerr).Msg("Failed to mark task failed")
		}
		return
	}

	if err := m.UpdateStatus(ctx, t.ID, Completed, result, ""); err != nil {
		logger.Error().Err(err).Msg("Failed to mark task completed")
		return
	}
	logger.Debug().Msg("Task completed")
}

// execute runs the handler, turning a panic into an error
func (m *Manager) execute(ctx context.Context, t Task) (result map[string]any, err error) {
	h, ok := m.handler(t.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, t.Kind)
	}

	if m.cfg.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.HandlerTimeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("task handler panic: %v", rec)
		}
	}()

	return h(ctx, t)
}

// QueueLengths returns the number of waiting tasks per queue, delayed included
func (m *Manager) QueueLengths(ctx context.Context) (map[string]int64, error) {
	lengths := make(map[string]int64, len(Priorities)+1)
	for _, q := range Priorities {
		n, err := m.store.LLen(ctx, q.Key())
		if err != nil {
			return nil, fmt.Errorf("measuring %s queue: %w", q, err)
		}
		lengths[q.String()] = n
	}

	n, err := m.store.ZCard(ctx, delayedKey)
	if err != nil {
		return nil, fmt.Errorf("measuring delayed queue: %w", err)
	}
	lengths["delayed"] = n

	return lengths, nil
}

// WorkerHeartbeat represents the heartbeat data for a worker
type WorkerHeartbeat struct {
	WorkerID      string    `json:"worker_id"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// heartbeat refreshes the worker key; it expires after 60s without a refresh
func (m *Manager) heartbeat(ctx context.Context, workerID string) error {
	data, err := json.Marshal(WorkerHeartbeat{
		WorkerID:      workerID,
		LastHeartbeat: m.cfg.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshaling heartbeat: %w", err)
	}
	if err := m.store.Set(ctx, heartbeatPrefix+workerID, data, heartbeatTTL); err != nil {
		return fmt.Errorf("setting heartbeat: %w", err)
	}
	return nil
}

// Workers returns every worker with a live heartbeat
func (m *Manager) Workers(ctx context.Context) ([]WorkerHeartbeat, error) {
	keys, err := m.store.Scan(ctx, heartbeatPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scanning worker keys: %w", err)
	}

	workers := make([]WorkerHeartbeat, 0, len(keys))
	for _, key := range keys {
		data, err := m.store.Get(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			// Key expired between scan and get
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("getting worker heartbeat: %w", err)
		}

		var hb WorkerHeartbeat
		if err := json.Unmarshal(data, &hb); err != nil {
			continue
		}
		workers = append(workers, hb)
	}
	return workers, nil
}

// ActiveWorkers returns the number of workers with a live heartbeat
func (m *Manager) ActiveWorkers(ctx context.Context) (int64, error) {
	workers, err := m.Workers(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(workers)), nil
}

func (m *Manager) save(ctx context.Context, t Task, ttl time.Duration) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshaling task: %w", err)
	}
	if err := m.store.Set(ctx, taskPrefix+t.ID, data, ttl); err != nil {
		return fmt.Errorf("storing task: %w", err)
	}
	return nil
}

// publish is fire and forget; a missing event never fails the task
func (m *Manager) publish(ctx context.Context, eventType string, payload map[string]any) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(ctx, event.TopicTask, event.New(eventType, payload)); err != nil {
		m.cfg.Logger.Warn().Err(err).Str("event", eventType).Msg("Failed to publish task event")
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
