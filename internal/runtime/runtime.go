package runtime

import (
	"context"
	"errors"

	"github.com/aman1205/StreamForge/internal/backpressure"
	cfgpkg "github.com/aman1205/StreamForge/internal/config"
	"github.com/aman1205/StreamForge/internal/eventlog"
	"github.com/aman1205/StreamForge/internal/ledger"
	"github.com/aman1205/StreamForge/internal/metrics"
	dlqsvc "github.com/aman1205/StreamForge/internal/services/dlq"
	eventsvc "github.com/aman1205/StreamForge/internal/services/events"
	groupsvc "github.com/aman1205/StreamForge/internal/services/groups"
	replaysvc "github.com/aman1205/StreamForge/internal/services/replay"
	topicsvc "github.com/aman1205/StreamForge/internal/services/topics"
	pebblestore "github.com/aman1205/StreamForge/internal/storage/pebble"
	logpkg "github.com/aman1205/StreamForge/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir string
	Fsync   pebblestore.FsyncMode
	Config  cfgpkg.Config
	Logger  logpkg.Logger
}

// Runtime wires storage, config, and every service for a single-node
// instance.
type Runtime struct {
	db     *pebblestore.DB
	config cfgpkg.Config
	logger logpkg.Logger

	metrics  *metrics.Set
	eventLog *eventlog.Store
	ledger   *ledger.Store

	topics   *topicsvc.Service
	groups   *groupsvc.Service
	events   *eventsvc.Service
	dlq      *dlqsvc.Service
	replay   *replaysvc.Service
	pressure *backpressure.Advisor
}

// Open initializes storage and constructs the service graph.
func Open(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	db, err := pebblestore.Open(pebblestore.Options{DataDir: opts.DataDir, Fsync: opts.Fsync})
	if err != nil {
		return nil, err
	}

	met := metrics.New()
	elog := eventlog.NewStore(db)
	ld := ledger.NewStore(db)
	cfg := opts.Config

	events := eventsvc.New(ld, elog, cfg.VisibilityTimeoutMs, met, logger.With(logpkg.Component("events")))
	rt := &Runtime{
		db:       db,
		config:   cfg,
		logger:   logger,
		metrics:  met,
		eventLog: elog,
		ledger:   ld,
		topics:   topicsvc.New(ld, elog, cfg.Topic, met, logger.With(logpkg.Component("topics"))),
		groups:   groupsvc.New(ld, elog, cfg.ConsumerEvictAfterMs, met, logger.With(logpkg.Component("groups"))),
		events:   events,
		dlq:      dlqsvc.New(ld, events, met, logger.With(logpkg.Component("dlq"))),
		replay:   replaysvc.New(ld, elog, met, logger.With(logpkg.Component("replay"))),
		pressure: backpressure.New(),
	}
	return rt, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple storage health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// DB exposes the underlying store for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Logger returns the root logger.
func (r *Runtime) Logger() logpkg.Logger { return r.logger }

// Metrics returns the Prometheus collector set.
func (r *Runtime) Metrics() *metrics.Set { return r.metrics }

// EventLog returns the shared log store.
func (r *Runtime) EventLog() *eventlog.Store { return r.eventLog }

// Ledger returns the control-plane store.
func (r *Runtime) Ledger() *ledger.Store { return r.ledger }

// Topics returns the topic registry service.
func (r *Runtime) Topics() *topicsvc.Service { return r.topics }

// Groups returns the consumer-group coordinator.
func (r *Runtime) Groups() *groupsvc.Service { return r.groups }

// Events returns the data-plane service.
func (r *Runtime) Events() *eventsvc.Service { return r.events }

// DLQ returns the dead-letter service.
func (r *Runtime) DLQ() *dlqsvc.Service { return r.dlq }

// Replay returns the replay engine.
func (r *Runtime) Replay() *replaysvc.Service { return r.replay }

// Backpressure returns the consumer throughput advisor.
func (r *Runtime) Backpressure() *backpressure.Advisor { return r.pressure }
