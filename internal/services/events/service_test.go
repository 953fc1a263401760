package eventsvc

import (
	"context"
	"fmt"
	"testing"

	"github.com/aman1205/StreamForge/internal/config"
	"github.com/aman1205/StreamForge/internal/eventlog"
	"github.com/aman1205/StreamForge/internal/ledger"
	groupsvc "github.com/aman1205/StreamForge/internal/services/groups"
	topicsvc "github.com/aman1205/StreamForge/internal/services/topics"
	pebblestore "github.com/aman1205/StreamForge/internal/storage/pebble"
	"github.com/aman1205/StreamForge/pkg/fault"
	logpkg "github.com/aman1205/StreamForge/pkg/log"
)

type fixture struct {
	log    *eventlog.Store
	topics *topicsvc.Service
	groups *groupsvc.Service
	events *Service
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
	return &fixture{
		log:    log,
		topics: topicsvc.New(ld, log, config.Default().Topic, nil, logpkg.Discard()),
		groups: groupsvc.New(ld, log, 60_000, nil, logpkg.Discard()),
		events: New(ld, log, 30_000, nil, logpkg.Discard()),
	}
}

// joined creates a topic, a group, and one registered consumer owning
// every partition.
func (f *fixture) joined(t *testing.T, partitions int) (*ledger.Topic, *ledger.ConsumerGroup) {
	t.Helper()
	ctx := context.Background()
	topic, err := f.topics.Create(ctx, topicsvc.CreateParams{WorkspaceID: "ws", Name: "orders", Partitions: partitions})
	if err != nil {
		t.Fatalf("topic: %v", err)
	}
	g, err := f.groups.Create(ctx, topic.ID, "billing")
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	if _, err := f.groups.RegisterConsumer(ctx, g.ID, "c1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	return topic, g
}

func (f *fixture) publishN(t *testing.T, topicID string, n int) []*Event {
	t.Helper()
	out := make([]*Event, 0, n)
	for i := 0; i < n; i++ {
		e, err := f.events.Publish(context.Background(), PublishParams{
			TopicID: topicID, Partition: 0,
			Payload:  fmt.Sprintf(`{"n":%d}`, i),
			Metadata: map[string]string{"seq": fmt.Sprint(i)},
		})
		if err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
		out = append(out, e)
	}
	return out
}

func TestPublishValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	topic, _ := f.joined(t, 2)

	if _, err := f.events.Publish(ctx, PublishParams{TopicID: topic.ID, Partition: 0}); !fault.IsInvalidArgument(err) {
		t.Fatalf("empty payload: want invalid argument, got %v", err)
	}
	if _, err := f.events.Publish(ctx, PublishParams{TopicID: topic.ID, Partition: 7, Payload: "x"}); !fault.IsInvalidArgument(err) {
		t.Fatalf("bad partition: want invalid argument, got %v", err)
	}
	if _, err := f.events.Publish(ctx, PublishParams{TopicID: "nope", Partition: 0, Payload: "x"}); !fault.IsNotFound(err) {
		t.Fatalf("missing topic: want not found, got %v", err)
	}
}

func TestPublishConsumeRoundTrip(t *testing.T) {
	f := newFixture(t)
	topic, _ := f.joined(t, 1)
	published := f.publishN(t, topic.ID, 3)

	got, err := f.events.Consume(ConsumeParams{TopicID: topic.ID, Partition: 0})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 events, got %d", len(got))
	}
	if got[0].Payload != `{"n":0}` || got[0].Offset != published[0].Offset {
		t.Fatalf("first event wrong: %+v", got[0])
	}
	if got[1].Metadata["seq"] != "1" {
		t.Fatalf("metadata lost: %+v", got[1].Metadata)
	}

	// Resume after an explicit offset.
	tail, err := f.events.Consume(ConsumeParams{TopicID: topic.ID, Partition: 0, After: published[1].Offset})
	if err != nil {
		t.Fatalf("consume after: %v", err)
	}
	if len(tail) != 1 || tail[0].Offset != published[2].Offset {
		t.Fatalf("resume wrong: %+v", tail)
	}
}

func TestPublishWithTTLStampsExpiry(t *testing.T) {
	f := newFixture(t)
	topic, _ := f.joined(t, 1)

	now := int64(1_000_000)
	f.events.nowMs = func() int64 { return now }
	e, err := f.events.Publish(context.Background(), PublishParams{
		TopicID: topic.ID, Partition: 0, Payload: "x", TTLMs: 5000,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if e.ExpiresAtMs != 1_005_000 {
		t.Fatalf("expiry not stamped: %+v", e)
	}
	got, err := f.events.Consume(ConsumeParams{TopicID: topic.ID, Partition: 0})
	if err != nil || len(got) != 1 {
		t.Fatalf("consume: %v (%d)", err, len(got))
	}
	if got[0].ExpiresAtMs != 1_005_000 {
		t.Fatalf("expiry lost on read: %+v", got[0])
	}
}

func TestConsumeWithCELFilter(t *testing.T) {
	f := newFixture(t)
	topic, _ := f.joined(t, 1)
	f.publishN(t, topic.ID, 5)

	got, err := f.events.Consume(ConsumeParams{
		TopicID: topic.ID, Partition: 0,
		Filter: `json.n >= 3`,
	})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("filter should keep 2 of 5, got %d", len(got))
	}

	if _, err := f.events.Consume(ConsumeParams{
		TopicID: topic.ID, Partition: 0,
		Filter: `this is not CEL`,
	}); !fault.IsInvalidArgument(err) {
		t.Fatalf("bad filter: want invalid argument, got %v", err)
	}
}

func TestConsumeFromGroupTracksDeliveries(t *testing.T) {
	f := newFixture(t)
	topic, g := f.joined(t, 1)
	f.publishN(t, topic.ID, 4)

	got, err := f.events.ConsumeFromGroup(context.Background(), GroupConsumeParams{
		GroupID: g.ID, ConsumerID: "c1", Partition: 0, Limit: 10,
	})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("want 4 delivered, got %d", len(got))
	}

	pending, err := f.events.PendingAcks(g.ID)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 4 {
		t.Fatalf("want 4 tracked deliveries, got %d", len(pending))
	}

	// The cursor advanced: nothing left.
	again, err := f.events.ConsumeFromGroup(context.Background(), GroupConsumeParams{
		GroupID: g.ID, ConsumerID: "c1", Partition: 0, Limit: 10,
	})
	if err != nil {
		t.Fatalf("consume again: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("cursor did not advance: %d", len(again))
	}
}

func TestConsumeFromGroupRequiresAssignment(t *testing.T) {
	f := newFixture(t)
	_, g := f.joined(t, 1)

	if _, err := f.events.ConsumeFromGroup(context.Background(), GroupConsumeParams{
		GroupID: g.ID, ConsumerID: "ghost", Partition: 0,
	}); !fault.IsNotFound(err) {
		t.Fatalf("unknown consumer: want not found, got %v", err)
	}
	if _, err := f.events.ConsumeFromGroup(context.Background(), GroupConsumeParams{
		GroupID: g.ID, ConsumerID: "c1", Partition: 9,
	}); !fault.IsInvalidArgument(err) {
		t.Fatalf("unassigned partition: want invalid argument, got %v", err)
	}
}

func TestAcknowledgeAdvancesOffsetAndSkipsMissing(t *testing.T) {
	f := newFixture(t)
	topic, g := f.joined(t, 1)
	f.publishN(t, topic.ID, 5)

	got, err := f.events.ConsumeFromGroup(context.Background(), GroupConsumeParams{
		GroupID: g.ID, ConsumerID: "c1", Partition: 0, Limit: 10,
	})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	// Ack the first three plus one offset that was never delivered.
	offsets := []string{got[0].Offset, got[1].Offset, got[2].Offset, "99999-0"}
	acked, err := f.events.Acknowledge(g.ID, "c1", offsets)
	if err != nil {
		t.Fatalf("ack: %v", err)
	}
	if acked != 3 {
		t.Fatalf("want 3 acked, got %d", acked)
	}

	lags, err := f.groups.Lag(g.ID)
	if err != nil {
		t.Fatalf("lag: %v", err)
	}
	if lags[0].Lag != 2 {
		t.Fatalf("publish 5 ack 3: want lag 2, got %d", lags[0].Lag)
	}

	// Double-ack is a no-op.
	acked, err = f.events.Acknowledge(g.ID, "c1", []string{got[0].Offset})
	if err != nil {
		t.Fatalf("re-ack: %v", err)
	}
	if acked != 0 {
		t.Fatalf("double ack counted: %d", acked)
	}
}

func TestAcknowledgeCommitsEachPartitionsOwnCursor(t *testing.T) {
	f := newFixture(t)
	topic, g := f.joined(t, 2)
	ctx := context.Background()

	var delivered []*Event
	for part := 0; part < 2; part++ {
		if _, err := f.events.Publish(ctx, PublishParams{
			TopicID: topic.ID, Partition: part, Payload: fmt.Sprintf(`{"p":%d}`, part),
		}); err != nil {
			t.Fatalf("publish p%d: %v", part, err)
		}
		got, err := f.events.ConsumeFromGroup(ctx, GroupConsumeParams{
			GroupID: g.ID, ConsumerID: "c1", Partition: part, Limit: 10,
		})
		if err != nil || len(got) != 1 {
			t.Fatalf("consume p%d: %v (%d)", part, err, len(got))
		}
		delivered = append(delivered, got[0])
	}

	// One ack call spanning both partitions commits two cursors, each to
	// the offset delivered on its own partition.
	acked, err := f.events.Acknowledge(g.ID, "c1", []string{delivered[0].Offset, delivered[1].Offset})
	if err != nil {
		t.Fatalf("ack: %v", err)
	}
	if acked != 2 {
		t.Fatalf("want 2 acked, got %d", acked)
	}
	offsets, err := f.events.ledger.ListOffsets(g.ID)
	if err != nil {
		t.Fatalf("offsets: %v", err)
	}
	byPart := map[int]string{}
	for _, o := range offsets {
		byPart[o.Partition] = o.Offset
	}
	if byPart[0] != delivered[0].Offset || byPart[1] != delivered[1].Offset {
		t.Fatalf("cursors crossed partitions: %+v", byPart)
	}
}

func TestNackAndRedelivery(t *testing.T) {
	f := newFixture(t)
	topic, g := f.joined(t, 1)

	now := int64(1_000_000)
	f.events.nowMs = func() int64 { return now }
	f.publishN(t, topic.ID, 2)

	got, err := f.events.ConsumeFromGroup(context.Background(), GroupConsumeParams{
		GroupID: g.ID, ConsumerID: "c1", Partition: 0, Limit: 10,
	})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	if err := f.events.Nack(g.ID, "c1", "77777-0", "boom", true); !fault.IsNotFound(err) {
		t.Fatalf("nack unknown offset: want not found, got %v", err)
	}
	if err := f.events.Nack(g.ID, "c1", got[0].Offset, "boom", true); err != nil {
		t.Fatalf("nack: %v", err)
	}

	// A requeued delivery stays tracked with a fresh window and no
	// rejection mark.
	a, err := f.events.ledger.FindAck(g.ID, "c1", got[0].Offset)
	if err != nil || a == nil {
		t.Fatalf("find ack: %v %+v", err, a)
	}
	if a.Acknowledged || a.NackAtMs != 0 || a.ExpiresAtMs != now+30_000 {
		t.Fatalf("requeued ack row wrong: %+v", a)
	}
	if a.NackReason != "boom" {
		t.Fatalf("reason lost: %+v", a)
	}

	// Before the requeue delay lapses nothing is redelivered.
	if n := f.events.CleanupExpired(context.Background()); n != 0 {
		t.Fatalf("early sweep removed %d", n)
	}
	again, err := f.events.ConsumeFromGroup(context.Background(), GroupConsumeParams{
		GroupID: g.ID, ConsumerID: "c1", Partition: 0, Limit: 10,
	})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("early redelivery: %d", len(again))
	}

	// Past the visibility window both unacked deliveries come around again.
	now += 31_000
	if n := f.events.CleanupExpired(context.Background()); n != 2 {
		t.Fatalf("sweep removed %d, want 2", n)
	}
	again, err = f.events.ConsumeFromGroup(context.Background(), GroupConsumeParams{
		GroupID: g.ID, ConsumerID: "c1", Partition: 0, Limit: 10,
	})
	if err != nil {
		t.Fatalf("consume after sweep: %v", err)
	}
	if len(again) != 2 || again[0].Offset != got[0].Offset {
		t.Fatalf("redelivery wrong: %d entries", len(again))
	}
}

func TestNackWithoutRequeueLeavesRejectionMark(t *testing.T) {
	f := newFixture(t)
	topic, g := f.joined(t, 1)

	now := int64(1_000_000)
	f.events.nowMs = func() int64 { return now }
	f.publishN(t, topic.ID, 1)

	got, err := f.events.ConsumeFromGroup(context.Background(), GroupConsumeParams{
		GroupID: g.ID, ConsumerID: "c1", Partition: 0, Limit: 10,
	})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	now += 10_000
	if err := f.events.Nack(g.ID, "c1", got[0].Offset, "poison", false); err != nil {
		t.Fatalf("nack: %v", err)
	}
	a, err := f.events.ledger.FindAck(g.ID, "c1", got[0].Offset)
	if err != nil || a == nil {
		t.Fatalf("find ack: %v %+v", err, a)
	}
	// The original deadline stands; only the rejection mark is added.
	if a.NackAtMs != now || a.NackReason != "poison" || a.ExpiresAtMs != 1_030_000 {
		t.Fatalf("nack row wrong: %+v", a)
	}

	// Repeated nack on a swept delivery is gone.
	now = 1_031_000
	if n := f.events.CleanupExpired(context.Background()); n != 1 {
		t.Fatalf("sweep removed %d, want 1", n)
	}
	if err := f.events.Nack(g.ID, "c1", got[0].Offset, "again", false); !fault.IsNotFound(err) {
		t.Fatalf("nack after sweep: want not found, got %v", err)
	}
}

func TestAckedDeliveriesAreNotRedelivered(t *testing.T) {
	f := newFixture(t)
	topic, g := f.joined(t, 1)

	now := int64(1_000_000)
	f.events.nowMs = func() int64 { return now }
	f.publishN(t, topic.ID, 3)

	got, err := f.events.ConsumeFromGroup(context.Background(), GroupConsumeParams{
		GroupID: g.ID, ConsumerID: "c1", Partition: 0, Limit: 10,
	})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if _, err := f.events.Acknowledge(g.ID, "c1", []string{got[0].Offset, got[1].Offset, got[2].Offset}); err != nil {
		t.Fatalf("ack: %v", err)
	}

	now += 31_000
	f.events.CleanupExpired(context.Background())
	again, err := f.events.ConsumeFromGroup(context.Background(), GroupConsumeParams{
		GroupID: g.ID, ConsumerID: "c1", Partition: 0, Limit: 10,
	})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("acked entries redelivered: %d", len(again))
	}
}

func TestSubscribeReceivesLivePublishes(t *testing.T) {
	f := newFixture(t)
	topic, _ := f.joined(t, 1)

	ch, cancel, err := f.events.Subscribe(topic.ID, 8)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	e, err := f.events.Publish(context.Background(), PublishParams{TopicID: topic.ID, Partition: 0, Payload: "live"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case got := <-ch:
		if got.Offset != e.Offset || got.Payload != "live" {
			t.Fatalf("wrong live event: %+v", got)
		}
	default:
		t.Fatal("no live event delivered")
	}
}
