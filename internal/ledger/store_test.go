package ledger

import (
	"context"
	"testing"

	pebblestore "github.com/aman1205/StreamForge/internal/storage/pebble"
	"github.com/aman1205/StreamForge/pkg/fault"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func TestTopicCreateGetDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	topic := &Topic{ID: "t1", WorkspaceID: "ws1", Name: "orders", Partitions: 3, RetentionMs: 3600_000}
	if err := s.CreateTopic(ctx, topic); err != nil {
		t.Fatalf("create: %v", err)
	}
	if topic.CreatedAtMs == 0 {
		t.Fatal("CreatedAtMs not stamped")
	}

	got, err := s.GetTopic("t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "orders" || got.Partitions != 3 {
		t.Fatalf("row mismatch: %+v", got)
	}

	if err := s.DeleteTopic(ctx, "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetTopic("t1"); !fault.IsNotFound(err) {
		t.Fatalf("want not found after delete, got %v", err)
	}
}

func TestTopicNameUniquePerWorkspace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateTopic(ctx, &Topic{ID: "t1", WorkspaceID: "ws1", Name: "orders", Partitions: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := s.CreateTopic(ctx, &Topic{ID: "t2", WorkspaceID: "ws1", Name: "orders", Partitions: 1})
	if !fault.IsConflict(err) {
		t.Fatalf("want conflict, got %v", err)
	}
	// Same name in a different workspace is fine.
	if err := s.CreateTopic(ctx, &Topic{ID: "t3", WorkspaceID: "ws2", Name: "orders", Partitions: 1}); err != nil {
		t.Fatalf("cross-workspace create: %v", err)
	}
	// Deleting frees the name for reuse.
	if err := s.DeleteTopic(ctx, "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.CreateTopic(ctx, &Topic{ID: "t4", WorkspaceID: "ws1", Name: "orders", Partitions: 1}); err != nil {
		t.Fatalf("recreate after delete: %v", err)
	}
}

func TestListTopicsByWorkspace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, row := range []*Topic{
		{ID: "a", WorkspaceID: "ws1", Name: "one", Partitions: 1},
		{ID: "b", WorkspaceID: "ws1", Name: "two", Partitions: 1},
		{ID: "c", WorkspaceID: "ws2", Name: "three", Partitions: 1},
	} {
		if err := s.CreateTopic(ctx, row); err != nil {
			t.Fatalf("create %s: %v", row.ID, err)
		}
	}
	got, err := s.ListTopics("ws1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 topics in ws1, got %d", len(got))
	}
	all, err := s.ListTopics("")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("want 3 topics total, got %d", len(all))
	}
}

func TestValidTopicName(t *testing.T) {
	for name, want := range map[string]bool{
		"orders":        true,
		"orders-v2":     true,
		"a1-b2":         true,
		"":              false,
		"Orders":        false,
		"orders_v2":     false,
		"-orders":       false,
		"orders-":       false,
		"with space":    false,
		"dots.in.names": false,
	} {
		if got := ValidTopicName(name); got != want {
			t.Errorf("ValidTopicName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestGroupNameUniquePerTopic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateGroup(ctx, &ConsumerGroup{ID: "g1", TopicID: "t1", Name: "billing"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := s.CreateGroup(ctx, &ConsumerGroup{ID: "g2", TopicID: "t1", Name: "billing"})
	if !fault.IsConflict(err) {
		t.Fatalf("want conflict, got %v", err)
	}
	if err := s.CreateGroup(ctx, &ConsumerGroup{ID: "g3", TopicID: "t2", Name: "billing"}); err != nil {
		t.Fatalf("cross-topic create: %v", err)
	}

	got, err := s.ListGroupsByTopic("t1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "g1" {
		t.Fatalf("listing index wrong: %+v", got)
	}
}

func TestConsumersSortedByRegistration(t *testing.T) {
	s := newTestStore(t)
	rows := []*Consumer{
		{ID: "x3", GroupID: "g1", ConsumerID: "charlie", Status: ConsumerActive, CreatedAtMs: 300},
		{ID: "x1", GroupID: "g1", ConsumerID: "alice", Status: ConsumerActive, CreatedAtMs: 100},
		{ID: "x2", GroupID: "g1", ConsumerID: "bob", Status: ConsumerActive, CreatedAtMs: 200},
	}
	for _, c := range rows {
		if err := s.UpsertConsumer(c); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	got, err := s.ListConsumers("g1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 || got[0].ConsumerID != "alice" || got[2].ConsumerID != "charlie" {
		t.Fatalf("order wrong: %+v", got)
	}
}

func TestDeleteGroupCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateGroup(ctx, &ConsumerGroup{ID: "g1", TopicID: "t1", Name: "billing"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.UpsertConsumer(&Consumer{ID: "c-row", GroupID: "g1", ConsumerID: "alice", Status: ConsumerActive}); err != nil {
		t.Fatalf("consumer: %v", err)
	}
	if err := s.CommitOffset("g1", 0, "100-0"); err != nil {
		t.Fatalf("offset: %v", err)
	}
	if err := s.RecordDelivery(&MessageAck{ID: "a1", GroupID: "g1", ConsumerID: "alice", Offset: "100-0", ExpiresAtMs: 1}); err != nil {
		t.Fatalf("ack: %v", err)
	}

	if err := s.DeleteGroup(ctx, "g1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetGroup("g1"); !fault.IsNotFound(err) {
		t.Fatalf("group survived delete: %v", err)
	}
	if _, err := s.GetConsumer("g1", "alice"); !fault.IsNotFound(err) {
		t.Fatalf("consumer survived cascade: %v", err)
	}
	off, err := s.GetOffset("g1", 0)
	if err != nil || off != nil {
		t.Fatalf("offset survived cascade: %+v err=%v", off, err)
	}
	ack, err := s.FindAck("g1", "alice", "100-0")
	if err != nil || ack != nil {
		t.Fatalf("ack survived cascade: %+v err=%v", ack, err)
	}
	// Name is free again.
	if err := s.CreateGroup(ctx, &ConsumerGroup{ID: "g2", TopicID: "t1", Name: "billing"}); err != nil {
		t.Fatalf("recreate after delete: %v", err)
	}
}

func TestCommitOffsetUpsertAndList(t *testing.T) {
	s := newTestStore(t)
	if err := s.CommitOffset("g1", 2, "50-0"); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := s.CommitOffset("g1", 0, "10-0"); err != nil {
		t.Fatalf("commit: %v", err)
	}
	// Regressive commit is accepted verbatim.
	if err := s.CommitOffset("g1", 2, "40-0"); err != nil {
		t.Fatalf("recommit: %v", err)
	}

	got, err := s.ListOffsets("g1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Partition != 0 || got[1].Partition != 2 {
		t.Fatalf("sort by partition broken: %+v", got)
	}
	if got[1].Offset != "40-0" {
		t.Fatalf("upsert did not replace: %q", got[1].Offset)
	}
}

func TestDeleteExpiredAcks(t *testing.T) {
	s := newTestStore(t)
	s.nowMs = func() int64 { return 1000 }

	rows := []*MessageAck{
		{ID: "a1", GroupID: "g1", ConsumerID: "c1", Offset: "1-0", Acknowledged: true, ExpiresAtMs: 9000},
		{ID: "a2", GroupID: "g1", ConsumerID: "c1", Offset: "2-0", ExpiresAtMs: 500},
		{ID: "a3", GroupID: "g1", ConsumerID: "c1", Offset: "3-0", ExpiresAtMs: 9000},
	}
	for _, a := range rows {
		if err := s.RecordDelivery(a); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	expired, err := s.DeleteExpiredAcks(context.Background(), 1000)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	// a1 deleted silently (already acked), a2 deleted and reported expired.
	if len(expired) != 1 || expired[0].ID != "a2" {
		t.Fatalf("expired set wrong: %+v", expired)
	}
	left, err := s.ListUnacked("g1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(left) != 1 || left[0].ID != "a3" {
		t.Fatalf("survivors wrong: %+v", left)
	}
}

func TestDLQLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.nowMs = func() int64 { return 10_000 }

	e := &DLQEntry{
		ID: "d1", TopicID: "t1", GroupID: "g1", Partition: 0,
		OriginalOffset: "5-0", Payload: `{"k":"v"}`,
		ErrorMessage: "boom", FailureReason: FailureProcessing,
		Status: DLQPending, MaxRetries: 3, NextRetryAtMs: 9_000,
	}
	if err := s.CreateDLQEntry(ctx, e); err != nil {
		t.Fatalf("create: %v", err)
	}

	due, err := s.ListDLQDue(10_000)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 1 || due[0].ID != "d1" {
		t.Fatalf("due set wrong: %+v", due)
	}

	byTopic, err := s.ListDLQByTopic("t1", DLQPending)
	if err != nil {
		t.Fatalf("by topic: %v", err)
	}
	if len(byTopic) != 1 {
		t.Fatalf("topic index wrong: %d", len(byTopic))
	}
	byGroup, err := s.ListDLQByGroup("g1", "")
	if err != nil {
		t.Fatalf("by group: %v", err)
	}
	if len(byGroup) != 1 {
		t.Fatalf("group index wrong: %d", len(byGroup))
	}

	e.Status = DLQResolved
	e.ResolvedAtMs = 10_000
	if err := s.UpdateDLQEntry(e); err != nil {
		t.Fatalf("update: %v", err)
	}
	due, err = s.ListDLQDue(99_999)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("resolved entry still due: %+v", due)
	}

	if err := s.DeleteDLQEntry(ctx, "d1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetDLQEntry("d1"); !fault.IsNotFound(err) {
		t.Fatalf("entry survived delete: %v", err)
	}
	byTopic, _ = s.ListDLQByTopic("t1", "")
	if len(byTopic) != 0 {
		t.Fatalf("topic index survived delete: %+v", byTopic)
	}
}

func TestDLQStatsAndAttempts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, row := range []*DLQEntry{
		{ID: "d1", TopicID: "t1", Status: DLQPending, FailureReason: FailureProcessing},
		{ID: "d2", TopicID: "t1", Status: DLQPending, FailureReason: FailureTimeout},
		{ID: "d3", TopicID: "t1", Status: DLQFailed, FailureReason: FailureProcessing},
	} {
		row.OriginalOffset = "1-0"
		if err := s.CreateDLQEntry(ctx, row); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	stats, err := s.CountDLQ("t1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.ByStatus[DLQPending] != 2 || stats.ByReason[FailureProcessing] != 2 {
		t.Fatalf("stats wrong: %+v", stats)
	}

	for n := 1; n <= 2; n++ {
		if err := s.AddRetryAttempt(&RetryAttempt{DLQID: "d1", AttemptNumber: n, Success: n == 2}); err != nil {
			t.Fatalf("attempt %d: %v", n, err)
		}
	}
	attempts, err := s.ListRetryAttempts("d1")
	if err != nil {
		t.Fatalf("attempts: %v", err)
	}
	if len(attempts) != 2 || attempts[0].AttemptNumber != 1 || !attempts[1].Success {
		t.Fatalf("attempt history wrong: %+v", attempts)
	}
}

func TestPurgeResolvedDLQ(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := int64(100_000)
	s.nowMs = func() int64 { return now }

	old := &DLQEntry{ID: "d1", TopicID: "t1", Status: DLQResolved, OriginalOffset: "1-0", FailureReason: FailureUnknown}
	if err := s.CreateDLQEntry(ctx, old); err != nil {
		t.Fatalf("create: %v", err)
	}
	now = 200_000
	fresh := &DLQEntry{ID: "d2", TopicID: "t1", Status: DLQResolved, OriginalOffset: "2-0", FailureReason: FailureUnknown}
	if err := s.CreateDLQEntry(ctx, fresh); err != nil {
		t.Fatalf("create: %v", err)
	}

	purged, err := s.PurgeResolvedDLQ(ctx, "t1", 150_000)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("want 1 purged, got %d", purged)
	}
	if _, err := s.GetDLQEntry("d2"); err != nil {
		t.Fatalf("fresh entry purged: %v", err)
	}
}
