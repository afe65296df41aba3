package task

import (
	"context"
	"time"
)

// JobFunc is a maintenance job run on a fixed interval next to the workers
type JobFunc func(ctx context.Context) error

type periodicJob struct {
	name     string
	interval time.Duration
	fn       JobFunc
}

// Every registers fn to run every interval while ProcessQueues is running.
// Jobs registered after ProcessQueues started are picked up on its next run.
func (m *Manager) Every(name string, interval time.Duration, fn JobFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, periodicJob{name: name, interval: interval, fn: fn})
}

func (m *Manager) periodicJobs() []periodicJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]periodicJob(nil), m.jobs...)
}

// RunPeriodicOnce runs every registered job once, in registration order
func (m *Manager) RunPeriodicOnce(ctx context.Context) {
	for _, job := range m.periodicJobs() {
		m.runJob(ctx, job)
	}
}

func (m *Manager) runPeriodic(ctx context.Context, job periodicJob) {
	ticker := time.NewTicker(job.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runJob(ctx, job)
		}
	}
}

func (m *Manager) runJob(ctx context.Context, job periodicJob) {
	defer func() {
		if r := recover(); r != nil {
			m.cfg.Logger.Error().Str("job", job.name).Interface("panic", r).Msg("Periodic job panicked")
		}
	}()

	if err := job.fn(ctx); err != nil && ctx.Err() == nil {
		m.cfg.Logger.Error().Err(err).Str("job", job.name).Msg("Periodic job failed")
	}
}
