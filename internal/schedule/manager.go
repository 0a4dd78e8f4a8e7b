// Package schedule runs the periodic jobs around the backfill core. The
// core itself never schedules anything.
package schedule

import (
	"github.com/robfig/cron/v3"

	"fieldsprout/internal/logger"
)

type Manager struct {
	engine  *cron.Cron
	spec    string
	nightly cron.Job
	log     *logger.Logger
}

// NewManager schedules nightly on spec, a cron expression with a seconds
// field. An empty spec registers nothing.
func NewManager(spec string, nightly cron.Job, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		engine:  cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		spec:    spec,
		nightly: nightly,
		log:     log,
	}
}

func (m *Manager) RegisterJobs() error {
	if m.spec == "" {
		m.log.Info("nightly schedule disabled")
		return nil
	}
	if _, err := m.engine.AddJob(m.spec, m.nightly); err != nil {
		return err
	}
	return nil
}

func (m *Manager) Start() {
	m.log.Info("scheduler started", "nightly", m.spec)
	m.engine.Start()
}

// Stop halts scheduling and waits for a running job to finish.
func (m *Manager) Stop() {
	<-m.engine.Stop().Done()
	m.log.Info("scheduler stopped")
}

func (m *Manager) Entries() int {
	return len(m.engine.Entries())
}
