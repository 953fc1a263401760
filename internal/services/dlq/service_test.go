package dlqsvc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aman1205/StreamForge/internal/config"
	"github.com/aman1205/StreamForge/internal/eventlog"
	"github.com/aman1205/StreamForge/internal/ledger"
	eventsvc "github.com/aman1205/StreamForge/internal/services/events"
	topicsvc "github.com/aman1205/StreamForge/internal/services/topics"
	pebblestore "github.com/aman1205/StreamForge/internal/storage/pebble"
	"github.com/aman1205/StreamForge/pkg/fault"
	logpkg "github.com/aman1205/StreamForge/pkg/log"
)

// flakyPublisher fails the first n publishes, then delegates.
type flakyPublisher struct {
	inner    Publisher
	failures int
}

func (p *flakyPublisher) Publish(ctx context.Context, params eventsvc.PublishParams) (*eventsvc.Event, error) {
	if p.failures > 0 {
		p.failures--
		return nil, errors.New("transport down")
	}
	return p.inner.Publish(ctx, params)
}

type fixture struct {
	events *eventsvc.Service
	topics *topicsvc.Service
	dlq    *Service
	flaky  *flakyPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ld := ledger.NewStore(db)
	log := eventlog.NewStore(db)
	events := eventsvc.New(ld, log, 30_000, nil, logpkg.Discard())
	flaky := &flakyPublisher{inner: events}
	return &fixture{
		events: events,
		topics: topicsvc.New(ld, log, config.Default().Topic, nil, logpkg.Discard()),
		dlq:    New(ld, flaky, nil, logpkg.Discard()),
		flaky:  flaky,
	}
}

func (f *fixture) mustTopic(t *testing.T) *ledger.Topic {
	t.Helper()
	topic, err := f.topics.Create(context.Background(), topicsvc.CreateParams{WorkspaceID: "ws", Name: "orders"})
	if err != nil {
		t.Fatalf("topic: %v", err)
	}
	return topic
}

func (f *fixture) park(t *testing.T, topicID string) *ledger.DLQEntry {
	t.Helper()
	e, err := f.dlq.Send(context.Background(), SendParams{
		TopicID:        topicID,
		Partition:      0,
		OriginalOffset: "100-0",
		Payload:        `{"order":42}`,
		ErrorMessage:   "handler panicked",
		FailureReason:  ledger.FailureProcessing,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	return e
}

func TestSendDefaults(t *testing.T) {
	f := newFixture(t)
	topic := f.mustTopic(t)
	f.dlq.nowMs = func() int64 { return 1_000_000 }

	e := f.park(t, topic.ID)
	if e.Status != ledger.DLQPending || e.MaxRetries != 3 {
		t.Fatalf("defaults wrong: %+v", e)
	}
	if e.NextRetryAtMs != 1_000_000+time.Minute.Milliseconds() {
		t.Fatalf("first retry not scheduled a minute out: %d", e.NextRetryAtMs)
	}

	if _, err := f.dlq.Send(context.Background(), SendParams{TopicID: topic.ID, Payload: "x"}); !fault.IsInvalidArgument(err) {
		t.Fatalf("missing offset: want invalid argument, got %v", err)
	}
	if _, err := f.dlq.Send(context.Background(), SendParams{TopicID: "nope", OriginalOffset: "1-0"}); !fault.IsNotFound(err) {
		t.Fatalf("missing topic: want not found, got %v", err)
	}
}

func TestBackoffDoubles(t *testing.T) {
	for count, want := range map[int]time.Duration{
		0: time.Minute,
		1: 2 * time.Minute,
		2: 4 * time.Minute,
		3: 8 * time.Minute,
	} {
		if got := backoffAfter(count); got != want {
			t.Errorf("backoffAfter(%d) = %v, want %v", count, got, want)
		}
	}
}

func TestRetrySuccessRepublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	topic := f.mustTopic(t)
	e := f.park(t, topic.ID)

	got, err := f.dlq.Retry(ctx, e.ID, "")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got.Status != ledger.DLQResolved || got.RetryCount != 1 || got.ResolvedAtMs == 0 {
		t.Fatalf("state after retry: %+v", got)
	}

	// The payload is back on the original partition, tagged as a retry.
	events, err := f.events.Consume(eventsvc.ConsumeParams{TopicID: topic.ID, Partition: 0})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(events) != 1 || events[0].Payload != `{"order":42}` {
		t.Fatalf("republish wrong: %+v", events)
	}
	if events[0].Metadata["dlq_retry"] != "true" || events[0].Metadata["original_offset"] != "100-0" {
		t.Fatalf("retry metadata missing: %+v", events[0].Metadata)
	}

	_, attempts, err := f.dlq.Get(e.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(attempts) != 1 || !attempts[0].Success {
		t.Fatalf("attempt history wrong: %+v", attempts)
	}
}

func TestRetryFailureSchedulesBackoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	topic := f.mustTopic(t)
	f.dlq.nowMs = func() int64 { return 2_000_000 }
	e := f.park(t, topic.ID)

	f.flaky.failures = 1
	if _, err := f.dlq.Retry(ctx, e.ID, ""); err == nil {
		t.Fatal("publish failure not re-raised")
	}

	got, attempts, err := f.dlq.Get(e.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != ledger.DLQPending || got.RetryCount != 1 {
		t.Fatalf("state after failed retry: %+v", got)
	}
	// One retry burned, so the next waits 2^1 minutes.
	if got.NextRetryAtMs != 2_000_000+2*time.Minute.Milliseconds() {
		t.Fatalf("backoff after first failure wrong: %d", got.NextRetryAtMs)
	}
	if len(attempts) != 1 || attempts[0].Success {
		t.Fatalf("failed attempt not recorded: %+v", attempts)
	}

	// A second failure doubles the wait again.
	f.flaky.failures = 1
	if _, err := f.dlq.Retry(ctx, e.ID, ""); err == nil {
		t.Fatal("second publish failure not re-raised")
	}
	got, _, err = f.dlq.Get(e.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RetryCount != 2 || got.NextRetryAtMs != 2_000_000+4*time.Minute.Milliseconds() {
		t.Fatalf("backoff after second failure wrong: %+v", got)
	}
}

func TestRetryBudgetExhaustionFlipsToFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	topic := f.mustTopic(t)
	e := f.park(t, topic.ID)

	// Burn all three attempts against a dead transport.
	f.flaky.failures = 3
	for i := 0; i < 3; i++ {
		if _, err := f.dlq.Retry(ctx, e.ID, ""); err == nil {
			t.Fatalf("attempt %d should fail", i+1)
		}
	}
	got, attempts, _ := f.dlq.Get(e.ID)
	if got.Status != ledger.DLQFailed || got.RetryCount != 3 {
		t.Fatalf("want FAILED with 3 retries burned, got %+v", got)
	}
	if len(attempts) != 3 {
		t.Fatalf("want 3 recorded attempts, got %d", len(attempts))
	}

	// A fourth retry is rejected outright.
	if _, err := f.dlq.Retry(ctx, e.ID, ""); !fault.IsInvalidArgument(err) {
		t.Fatalf("retry of FAILED entry: want invalid argument, got %v", err)
	}
}

func TestRetryDestinationOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	topic := f.mustTopic(t)
	dest, err := f.topics.Create(ctx, topicsvc.CreateParams{WorkspaceID: "ws", Name: "orders-redrive"})
	if err != nil {
		t.Fatalf("dest topic: %v", err)
	}
	e := f.park(t, topic.ID)

	if _, err := f.dlq.Retry(ctx, e.ID, dest.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
	// The payload landed on the override topic, not the original.
	moved, err := f.events.Consume(eventsvc.ConsumeParams{TopicID: dest.ID, Partition: 0})
	if err != nil {
		t.Fatalf("consume dest: %v", err)
	}
	if len(moved) != 1 || moved[0].Payload != `{"order":42}` {
		t.Fatalf("override destination wrong: %+v", moved)
	}
	orig, err := f.events.Consume(eventsvc.ConsumeParams{TopicID: topic.ID, Partition: 0})
	if err != nil {
		t.Fatalf("consume original: %v", err)
	}
	if len(orig) != 0 {
		t.Fatalf("original topic should stay empty, got %d", len(orig))
	}
}

func TestResolveIsTerminal(t *testing.T) {
	f := newFixture(t)
	topic := f.mustTopic(t)
	e := f.park(t, topic.ID)

	got, err := f.dlq.Resolve(e.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Status != ledger.DLQResolved || got.ResolvedAtMs == 0 {
		t.Fatalf("state after resolve: %+v", got)
	}
	if _, err := f.dlq.Resolve(e.ID); !fault.IsConflict(err) {
		t.Fatalf("double resolve: want conflict, got %v", err)
	}
	if _, err := f.dlq.Retry(context.Background(), e.ID, ""); !fault.IsInvalidArgument(err) {
		t.Fatalf("retry of resolved entry: want invalid argument, got %v", err)
	}
}

func TestRetryAllIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	topic := f.mustTopic(t)
	a := f.park(t, topic.ID)
	b := f.park(t, topic.ID)

	// First publish in the sweep fails, the second succeeds.
	f.flaky.failures = 1
	results, err := f.dlq.RetryAll(ctx, topic.ID)
	if err != nil {
		t.Fatalf("retry all: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("want 2 results, got %d", len(results))
	}
	byID := map[string]*RetryResult{}
	succeeded := 0
	for _, r := range results {
		byID[r.ID] = r
		if r.Success {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Fatalf("want exactly one success, got %d", succeeded)
	}
	if byID[a.ID] == nil || byID[b.ID] == nil {
		t.Fatalf("results missing entries: %+v", results)
	}
}

func TestSweepDueRetriesOnlyDueEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	topic := f.mustTopic(t)

	now := int64(5_000_000)
	f.dlq.nowMs = func() int64 { return now }
	e := f.park(t, topic.ID) // due at now + 1m

	f.dlq.SweepDue(ctx)
	got, _, _ := f.dlq.Get(e.ID)
	if got.RetryCount != 0 {
		t.Fatalf("entry retried before its schedule: %+v", got)
	}

	now += 61_000
	f.dlq.SweepDue(ctx)
	got, _, _ = f.dlq.Get(e.ID)
	if got.RetryCount != 1 || got.Status != ledger.DLQResolved {
		t.Fatalf("due entry not retried: %+v", got)
	}
}

func TestStatsAndPurge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	topic := f.mustTopic(t)

	now := int64(1_000_000)
	f.dlq.nowMs = func() int64 { return now }
	a := f.park(t, topic.ID)
	f.park(t, topic.ID)
	if _, err := f.dlq.Resolve(a.ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	stats, err := f.dlq.Stats(topic.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 2 || stats.ByStatus[ledger.DLQResolved] != 1 || stats.ByStatus[ledger.DLQPending] != 1 {
		t.Fatalf("stats wrong: %+v", stats)
	}
	if stats.ByReason[ledger.FailureProcessing] != 2 {
		t.Fatalf("reason histogram wrong: %+v", stats.ByReason)
	}

	// Resolved an hour ago, purge window 30 minutes: it goes.
	now += time.Hour.Milliseconds()
	purged, err := f.dlq.Purge(ctx, topic.ID, 30*time.Minute)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("want 1 purged, got %d", purged)
	}
	stats, _ = f.dlq.Stats(topic.ID)
	if stats.Total != 1 {
		t.Fatalf("purge removed wrong rows: %+v", stats)
	}
}
