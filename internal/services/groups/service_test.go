package groupsvc

import (
	"context"
	"fmt"
	"testing"

	"github.com/aman1205/StreamForge/internal/config"
	"github.com/aman1205/StreamForge/internal/eventlog"
	"github.com/aman1205/StreamForge/internal/ledger"
	topicsvc "github.com/aman1205/StreamForge/internal/services/topics"
	pebblestore "github.com/aman1205/StreamForge/internal/storage/pebble"
	"github.com/aman1205/StreamForge/pkg/fault"
	logpkg "github.com/aman1205/StreamForge/pkg/log"
)

type fixture struct {
	ledger *ledger.Store
	log    *eventlog.Store
	topics *topicsvc.Service
	groups *Service
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
	cfg := config.Default().Topic
	return &fixture{
		ledger: ld,
		log:    log,
		topics: topicsvc.New(ld, log, cfg, nil, logpkg.Discard()),
		groups: New(ld, log, 60_000, nil, logpkg.Discard()),
	}
}

func (f *fixture) mustTopic(t *testing.T, partitions int) *ledger.Topic {
	t.Helper()
	topic, err := f.topics.Create(context.Background(), topicsvc.CreateParams{
		WorkspaceID: "ws1", Name: "orders", Partitions: partitions,
	})
	if err != nil {
		t.Fatalf("create topic: %v", err)
	}
	return topic
}

func (f *fixture) mustGroup(t *testing.T, topicID string) *ledger.ConsumerGroup {
	t.Helper()
	g, err := f.groups.Create(context.Background(), topicID, "billing")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	return g
}

func assignments(t *testing.T, f *fixture, groupID string) map[string][]int {
	t.Helper()
	consumers, err := f.groups.ListConsumers(groupID)
	if err != nil {
		t.Fatalf("list consumers: %v", err)
	}
	out := map[string][]int{}
	for _, c := range consumers {
		if c.Status == ledger.ConsumerActive {
			out[c.ConsumerID] = c.AssignedPartitions
		}
	}
	return out
}

func TestRebalanceContiguousBlocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	topic := f.mustTopic(t, 10)
	g := f.mustGroup(t, topic.ID)

	for i := 0; i < 3; i++ {
		if _, err := f.groups.RegisterConsumer(ctx, g.ID, fmt.Sprintf("c%d", i)); err != nil {
			t.Fatalf("register c%d: %v", i, err)
		}
	}

	got := assignments(t, f, g.ID)
	sizes := map[string]int{}
	seen := map[int]bool{}
	for id, parts := range got {
		sizes[id] = len(parts)
		// Blocks are contiguous.
		for i := 1; i < len(parts); i++ {
			if parts[i] != parts[i-1]+1 {
				t.Fatalf("non-contiguous block for %s: %v", id, parts)
			}
		}
		for _, p := range parts {
			if seen[p] {
				t.Fatalf("partition %d assigned twice", p)
			}
			seen[p] = true
		}
	}
	// 10 partitions over 3 consumers: first gets 4, the rest 3.
	if sizes["c0"] != 4 || sizes["c1"] != 3 || sizes["c2"] != 3 {
		t.Fatalf("sizes wrong: %v", sizes)
	}
	if len(seen) != 10 {
		t.Fatalf("want all 10 partitions covered, got %d", len(seen))
	}
}

func TestRegisterIdempotentAndUnregisterRebalances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	topic := f.mustTopic(t, 4)
	g := f.mustGroup(t, topic.ID)

	if _, err := f.groups.RegisterConsumer(ctx, g.ID, "a"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := f.groups.RegisterConsumer(ctx, g.ID, "b"); err != nil {
		t.Fatalf("register: %v", err)
	}
	// Re-registering the same id is a heartbeat, not a new member.
	if _, err := f.groups.RegisterConsumer(ctx, g.ID, "a"); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	consumers, _ := f.groups.ListConsumers(g.ID)
	if len(consumers) != 2 {
		t.Fatalf("duplicate registration added a member: %d", len(consumers))
	}

	if err := f.groups.UnregisterConsumer(ctx, g.ID, "a"); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	got := assignments(t, f, g.ID)
	if len(got) != 1 || len(got["b"]) != 4 {
		t.Fatalf("survivor should own all partitions: %v", got)
	}
}

func TestHeartbeatAndEviction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	topic := f.mustTopic(t, 2)
	g := f.mustGroup(t, topic.ID)

	now := int64(1_000_000)
	f.groups.nowMs = func() int64 { return now }

	if _, err := f.groups.RegisterConsumer(ctx, g.ID, "a"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := f.groups.RegisterConsumer(ctx, g.ID, "b"); err != nil {
		t.Fatalf("register: %v", err)
	}

	// "a" keeps heartbeating, "b" goes silent past the eviction window.
	now += 61_000
	if _, err := f.groups.Heartbeat(ctx, g.ID, "a"); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	f.groups.EvictStale(ctx)

	b, err := f.groups.GetConsumer(g.ID, "b")
	if err != nil {
		t.Fatalf("get b: %v", err)
	}
	if b.Status != ledger.ConsumerInactive || len(b.AssignedPartitions) != 0 {
		t.Fatalf("b not evicted: %+v", b)
	}
	got := assignments(t, f, g.ID)
	if len(got["a"]) != 2 {
		t.Fatalf("survivor should own both partitions: %v", got)
	}

	// A heartbeat from the evicted consumer rejoins it.
	now += 1000
	rejoined, err := f.groups.Heartbeat(ctx, g.ID, "b")
	if err != nil {
		t.Fatalf("rejoin heartbeat: %v", err)
	}
	if rejoined.Status != ledger.ConsumerActive || len(rejoined.AssignedPartitions) != 1 {
		t.Fatalf("rejoin did not rebalance: %+v", rejoined)
	}
}

func TestCommitOffsetValidation(t *testing.T) {
	f := newFixture(t)
	topic := f.mustTopic(t, 2)
	g := f.mustGroup(t, topic.ID)

	if _, err := f.groups.CommitOffset(g.ID, 5, "10-0"); !fault.IsInvalidArgument(err) {
		t.Fatalf("want invalid partition, got %v", err)
	}
	if _, err := f.groups.CommitOffset(g.ID, 0, "not-an-offset"); !fault.IsInvalidArgument(err) {
		t.Fatalf("want invalid offset, got %v", err)
	}
	o, err := f.groups.CommitOffset(g.ID, 0, "10-0")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if o.Offset != "10-0" || o.CommittedAtMs == 0 {
		t.Fatalf("row wrong: %+v", o)
	}
}

func TestLag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	topic := f.mustTopic(t, 2)
	g := f.mustGroup(t, topic.ID)

	stream := topicsvc.StreamKey(topic.ID, 0)
	var ids []eventlog.EntryID
	for i := 0; i < 5; i++ {
		id, err := f.log.Append(ctx, stream, map[string]string{"n": fmt.Sprint(i)})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		ids = append(ids, id)
	}

	// No committed offset: the whole stream is lag.
	lags, err := f.groups.Lag(g.ID)
	if err != nil {
		t.Fatalf("lag: %v", err)
	}
	if lags[0].Lag != 5 {
		t.Fatalf("uncommitted lag: want 5, got %d", lags[0].Lag)
	}
	// Partition 1 has no stream data at all.
	if lags[1].Lag != 0 {
		t.Fatalf("empty partition lag: want 0, got %d", lags[1].Lag)
	}

	// Commit through the third entry: two remain.
	if _, err := f.groups.CommitOffset(g.ID, 0, ids[2].String()); err != nil {
		t.Fatalf("commit: %v", err)
	}
	lags, err = f.groups.Lag(g.ID)
	if err != nil {
		t.Fatalf("lag: %v", err)
	}
	if lags[0].Lag != 2 {
		t.Fatalf("committed lag: want 2, got %d", lags[0].Lag)
	}
}

func TestResetOffsetMovesDeliveryCursor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	topic := f.mustTopic(t, 1)
	g := f.mustGroup(t, topic.ID)

	stream := topicsvc.StreamKey(topic.ID, 0)
	var ids []eventlog.EntryID
	for i := 0; i < 4; i++ {
		id, err := f.log.Append(ctx, stream, map[string]string{"n": fmt.Sprint(i)})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		ids = append(ids, id)
	}
	// Drain the group cursor.
	if _, err := f.log.ReadAsGroup(stream, g.ID, "c1", eventlog.CursorFrom, 10); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if err := f.groups.ResetOffset(g.ID, 0, ids[1].String()); err != nil {
		t.Fatalf("reset: %v", err)
	}
	got, err := f.log.ReadAsGroup(stream, g.ID, "c1", eventlog.CursorFrom, 10)
	if err != nil {
		t.Fatalf("read after reset: %v", err)
	}
	if len(got) != 2 || got[0].ID != ids[2] {
		t.Fatalf("cursor not rewound: %d entries", len(got))
	}
}

func TestGroupNameConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	topic := f.mustTopic(t, 1)
	if _, err := f.groups.Create(ctx, topic.ID, "billing"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.groups.Create(ctx, topic.ID, "billing"); !fault.IsConflict(err) {
		t.Fatalf("want conflict, got %v", err)
	}
}

func TestDeleteGroupCascadesLedgerRowsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	topic := f.mustTopic(t, 1)
	g := f.mustGroup(t, topic.ID)

	if _, err := f.groups.RegisterConsumer(ctx, g.ID, "c1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := f.groups.CommitOffset(g.ID, 0, "5-0"); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := f.groups.Delete(ctx, g.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.groups.Get(g.ID); !fault.IsNotFound(err) {
		t.Fatalf("group survived: %v", err)
	}
	if _, err := f.groups.GetConsumer(g.ID, "c1"); !fault.IsNotFound(err) {
		t.Fatalf("consumer survived: %v", err)
	}
	// The durable log cursor stays behind; only the registry rows cascade.
	stream := topicsvc.StreamKey(topic.ID, 0)
	if _, err := f.log.GroupCursor(stream, g.ID); err != nil {
		t.Fatalf("cursor should linger: %v", err)
	}
	if err := f.groups.Delete(ctx, g.ID); !fault.IsNotFound(err) {
		t.Fatalf("double delete: want not found, got %v", err)
	}
}
