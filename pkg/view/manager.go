package view

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/mchurichi/logdeck/pkg/classify"
	"github.com/mchurichi/logdeck/pkg/source"
)

// Manager owns one view per domain and their schedulers
type Manager struct {
	views     map[string]*View
	order     []string
	scheduler *Scheduler
	logger    *slog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewManager creates a view for each classifier, reading from the source
// newSource returns for its domain
func NewManager(classifiers []*classify.Classifier, newSource func(domain string) source.Source, scheduler *Scheduler, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if scheduler == nil {
		scheduler = &Scheduler{Logger: opts.Logger}
	}

	m := &Manager{
		views:     make(map[string]*View, len(classifiers)),
		scheduler: scheduler,
		logger:    opts.Logger,
	}
	for _, c := range classifiers {
		m.views[c.Domain()] = New(c, newSource(c.Domain()), opts)
		m.order = append(m.order, c.Domain())
	}
	return m
}

// Start loads every view once and then runs their schedulers in the background
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	for _, domain := range m.order {
		v := m.views[domain]
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := v.Refresh(ctx); err != nil {
				m.logger.Warn("Initial refresh failed", "domain", v.Domain(), "error", err)
			}
			err := m.scheduler.Run(ctx, v)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrClosed) {
				m.logger.Error("Scheduler stopped", "domain", v.Domain(), "error", err)
			}
		}()
	}
}

// Get returns the view of domain
func (m *Manager) Get(domain string) (*View, bool) {
	v, ok := m.views[domain]
	return v, ok
}

// Domains lists domains in registration order
func (m *Manager) Domains() []string {
	return append([]string(nil), m.order...)
}

// Close stops every scheduler and closes every view
func (m *Manager) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	for _, domain := range m.order {
		m.views[domain].Close()
	}
	m.wg.Wait()
}
