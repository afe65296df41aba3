package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/marcelsud/flowrelay/event"
	"github.com/marcelsud/flowrelay/store"
	"github.com/rs/zerolog"
)

/* Workflow state layout in the state store
 * workflow_state:{id}          JSON of the current state
 * workflow_state_version:{id}  monotonically increasing version counter
 * workflow_history:{id}        list of past states, newest first, capped at 100
 */

const (
	statePrefix   = "workflow_state:"
	versionPrefix = "workflow_state_version:"
	historyPrefix = "workflow_history:"

	historyLimit = 100
)

var ErrStateNotFound = errors.New("workflow state not found")

type Store interface {
	store.KV
	store.Counter
	store.List
}

type StateManager struct {
	Store  Store
	Bus    event.Publisher
	Logger zerolog.Logger
	Now    func() time.Time

	// TTL bounds the lifetime of the current state; zero keeps it forever
	TTL time.Duration
}

func NewStateManager(s Store, bus event.Publisher, logger zerolog.Logger) *StateManager {
	return &StateManager{
		Store:  s,
		Bus:    bus,
		Logger: logger,
		Now:    time.Now,
	}
}

// Save replaces the current state of a workflow. updated_at and version are
// stamped on it and the previous states stay available through History.
func (m *StateManager) Save(ctx context.Context, workflowID string, state map[string]any) error {
	version, err := m.Store.Incr(ctx, versionPrefix+workflowID)
	if err != nil {
		return fmt.Errorf("incrementing state version: %w", err)
	}

	now := m.Now().UTC().Format(time.RFC3339)
	saved := make(map[string]any, len(state)+2)
	for k, v := range state {
		saved[k] = v
	}
	saved["updated_at"] = now
	saved["version"] = version

	data, err := json.Marshal(saved)
	if err != nil {
		return fmt.Errorf("marshaling workflow state: %w", err)
	}
	if err := m.Store.Set(ctx, statePrefix+workflowID, data, m.TTL); err != nil {
		return fmt.Errorf("storing workflow state: %w", err)
	}

	entry := make(map[string]any, len(saved)+1)
	for k, v := range saved {
		entry[k] = v
	}
	entry["timestamp"] = now
	historyData, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling history entry: %w", err)
	}

	historyKey := historyPrefix + workflowID
	if err := m.Store.LPush(ctx, historyKey, string(historyData)); err != nil {
		return fmt.Errorf("appending workflow history: %w", err)
	}
	if err := m.Store.LTrim(ctx, historyKey, 0, historyLimit-1); err != nil {
		return fmt.Errorf("trimming workflow history: %w", err)
	}

	publish(ctx, m.Bus, m.Logger, event.TopicWorkflow, event.WorkflowStateUpdated, map[string]any{
		"workflow_id": workflowID,
		"version":     version,
		"state":       saved,
	})

	return nil
}

// Get returns the current state of a workflow
func (m *StateManager) Get(ctx context.Context, workflowID string) (map[string]any, error) {
	data, err := m.Store.Get(ctx, statePrefix+workflowID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrStateNotFound, workflowID)
	}
	if err != nil {
		return nil, fmt.Errorf("getting workflow state: %w", err)
	}

	var state map[string]any
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshaling workflow state: %w", err)
	}
	return state, nil
}

// History returns up to limit past states, newest first. A limit <= 0 returns all of them.
func (m *StateManager) History(ctx context.Context, workflowID string, limit int) ([]map[string]any, error) {
	stop := int64(limit - 1)
	if limit <= 0 {
		stop = -1
	}

	raw, err := m.Store.LRange(ctx, historyPrefix+workflowID, 0, stop)
	if err != nil {
		return nil, fmt.Errorf("reading workflow history: %w", err)
	}

	history := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		var entry map[string]any
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			m.Logger.Warn().Err(err).Str("workflow_id", workflowID).Msg("Skipping malformed history entry")
			continue
		}
		history = append(history, entry)
	}
	return history, nil
}

// Helper functions

func publish(ctx context.Context, bus event.Publisher, logger zerolog.Logger, topic, eventType string, payload map[string]any) {
	if bus == nil {
		return
	}
	if err := bus.Publish(ctx, topic, event.New(eventType, payload)); err != nil {
		logger.Warn().Err(err).Str("event", eventType).Msg("Failed to publish workflow event")
	}
}
