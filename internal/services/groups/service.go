package groupsvc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aman1205/StreamForge/internal/eventlog"
	"github.com/aman1205/StreamForge/internal/ledger"
	"github.com/aman1205/StreamForge/internal/metrics"
	topicsvc "github.com/aman1205/StreamForge/internal/services/topics"
	"github.com/aman1205/StreamForge/pkg/fault"
	logpkg "github.com/aman1205/StreamForge/pkg/log"
)

// Service coordinates consumer groups: membership, partition assignment,
// committed offsets, and lag.
type Service struct {
	ledger *ledger.Store
	log    *eventlog.Store
	met    *metrics.Set
	logger logpkg.Logger

	// evictAfterMs marks consumers INACTIVE when their heartbeat is older.
	evictAfterMs int64

	// locks serializes membership changes per group so concurrent joins
	// and leaves never interleave a rebalance.
	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// nowMs is swappable for tests.
	nowMs func() int64
}

// New builds the group coordinator.
func New(ld *ledger.Store, log *eventlog.Store, evictAfterMs int64, met *metrics.Set, logger logpkg.Logger) *Service {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("groups"))
	}
	return &Service{
		ledger:       ld,
		log:          log,
		met:          met,
		logger:       logger,
		evictAfterMs: evictAfterMs,
		locks:        map[string]*sync.Mutex{},
		nowMs:        func() int64 { return time.Now().UnixMilli() },
	}
}

func (s *Service) groupLock(groupID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[groupID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[groupID] = l
	}
	return l
}

// Create registers a consumer group on a topic and creates its durable
// cursor on every partition.
func (s *Service) Create(ctx context.Context, topicID, name string) (*ledger.ConsumerGroup, error) {
	if name == "" {
		return nil, fault.InvalidArgument("group name is required")
	}
	t, err := s.ledger.GetTopic(topicID)
	if err != nil {
		return nil, err
	}
	g := &ledger.ConsumerGroup{ID: uuid.NewString(), TopicID: topicID, Name: name}
	if err := s.ledger.CreateGroup(ctx, g); err != nil {
		return nil, err
	}
	for part := 0; part < t.Partitions; part++ {
		if err := s.log.CreateGroup(topicsvc.StreamKey(topicID, part), g.ID, eventlog.ZeroID); err != nil {
			return nil, fault.Unavailable(err, "create cursor on partition %d", part)
		}
	}
	s.logger.Info("group created",
		logpkg.Str("group", g.ID), logpkg.Str("name", name), logpkg.Str("topic", topicID))
	return g, nil
}

// Get returns a group by id.
func (s *Service) Get(id string) (*ledger.ConsumerGroup, error) {
	return s.ledger.GetGroup(id)
}

// Overview is a group row plus its live membership stats.
type Overview struct {
	Group           *ledger.ConsumerGroup `json:"group"`
	ConsumerCount   int                   `json:"consumerCount"`
	ActiveConsumers int                   `json:"activeConsumers"`
}

// ListByTopic returns every group on a topic with membership counts.
func (s *Service) ListByTopic(topicID string) ([]*Overview, error) {
	groups, err := s.ledger.ListGroupsByTopic(topicID)
	if err != nil {
		return nil, err
	}
	out := make([]*Overview, 0, len(groups))
	for _, g := range groups {
		consumers, err := s.ledger.ListConsumers(g.ID)
		if err != nil {
			return nil, err
		}
		o := &Overview{Group: g, ConsumerCount: len(consumers)}
		for _, c := range consumers {
			if c.Status == ledger.ConsumerActive {
				o.ActiveConsumers++
			}
		}
		out = append(out, o)
	}
	return out, nil
}

// Delete removes the group with its consumers and committed offsets. The
// durable partition cursors in the log store stay behind; recreating a
// group always starts from a fresh id, so stale cursors are inert.
func (s *Service) Delete(ctx context.Context, groupID string) error {
	l := s.groupLock(groupID)
	l.Lock()
	defer l.Unlock()

	if _, err := s.ledger.GetGroup(groupID); err != nil {
		return err
	}
	if err := s.ledger.DeleteGroup(ctx, groupID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.locks, groupID)
	s.mu.Unlock()
	s.logger.Info("group deleted", logpkg.Str("group", groupID))
	return nil
}

// RegisterConsumer joins a consumer to the group and rebalances. Joining
// with an already-registered consumerID refreshes the heartbeat instead
// of adding a member.
func (s *Service) RegisterConsumer(ctx context.Context, groupID, consumerID string) (*ledger.Consumer, error) {
	if consumerID == "" {
		return nil, fault.InvalidArgument("consumerId is required")
	}
	g, err := s.ledger.GetGroup(groupID)
	if err != nil {
		return nil, err
	}

	l := s.groupLock(groupID)
	l.Lock()
	defer l.Unlock()

	now := s.nowMs()
	existing, err := s.ledger.GetConsumer(groupID, consumerID)
	if err == nil {
		existing.Status = ledger.ConsumerActive
		existing.LastHeartbeatMs = now
		if err := s.ledger.UpsertConsumer(existing); err != nil {
			return nil, err
		}
		if err := s.rebalance(ctx, g); err != nil {
			return nil, err
		}
		return s.ledger.GetConsumer(groupID, consumerID)
	}
	if !fault.IsNotFound(err) {
		return nil, err
	}

	c := &ledger.Consumer{
		ID:              uuid.NewString(),
		GroupID:         groupID,
		ConsumerID:      consumerID,
		Status:          ledger.ConsumerActive,
		LastHeartbeatMs: now,
		CreatedAtMs:     now,
	}
	if err := s.ledger.UpsertConsumer(c); err != nil {
		return nil, err
	}
	if err := s.rebalance(ctx, g); err != nil {
		return nil, err
	}
	s.logger.Info("consumer registered",
		logpkg.Str("group", groupID), logpkg.Str("consumer", consumerID))
	return s.ledger.GetConsumer(groupID, consumerID)
}

// UnregisterConsumer removes a consumer and rebalances the survivors.
func (s *Service) UnregisterConsumer(ctx context.Context, groupID, consumerID string) error {
	g, err := s.ledger.GetGroup(groupID)
	if err != nil {
		return err
	}

	l := s.groupLock(groupID)
	l.Lock()
	defer l.Unlock()

	if _, err := s.ledger.GetConsumer(groupID, consumerID); err != nil {
		return err
	}
	if err := s.ledger.DeleteConsumer(groupID, consumerID); err != nil {
		return err
	}
	if err := s.rebalance(ctx, g); err != nil {
		return err
	}
	s.logger.Info("consumer unregistered",
		logpkg.Str("group", groupID), logpkg.Str("consumer", consumerID))
	return nil
}

// Heartbeat refreshes a consumer's liveness window. An INACTIVE consumer
// heartbeating again rejoins and triggers a rebalance.
func (s *Service) Heartbeat(ctx context.Context, groupID, consumerID string) (*ledger.Consumer, error) {
	c, err := s.ledger.GetConsumer(groupID, consumerID)
	if err != nil {
		return nil, err
	}
	rejoined := c.Status == ledger.ConsumerInactive
	c.Status = ledger.ConsumerActive
	c.LastHeartbeatMs = s.nowMs()
	if err := s.ledger.UpsertConsumer(c); err != nil {
		return nil, err
	}
	if rejoined {
		g, err := s.ledger.GetGroup(groupID)
		if err != nil {
			return nil, err
		}
		l := s.groupLock(groupID)
		l.Lock()
		err = s.rebalance(ctx, g)
		l.Unlock()
		if err != nil {
			return nil, err
		}
		return s.ledger.GetConsumer(groupID, consumerID)
	}
	return c, nil
}

// GetConsumer returns one member row.
func (s *Service) GetConsumer(groupID, consumerID string) (*ledger.Consumer, error) {
	return s.ledger.GetConsumer(groupID, consumerID)
}

// ListConsumers returns the group's members in registration order.
func (s *Service) ListConsumers(groupID string) ([]*ledger.Consumer, error) {
	return s.ledger.ListConsumers(groupID)
}

// rebalance reassigns partitions across ACTIVE consumers in contiguous
// blocks: each gets floor(P/C), the first P mod C get one extra. Ordering
// is registration order so assignments are stable across calls.
func (s *Service) rebalance(ctx context.Context, g *ledger.ConsumerGroup) error {
	t, err := s.ledger.GetTopic(g.TopicID)
	if err != nil {
		return err
	}
	consumers, err := s.ledger.ListConsumers(g.ID)
	if err != nil {
		return err
	}
	active := consumers[:0:0]
	for _, c := range consumers {
		if c.Status == ledger.ConsumerActive {
			active = append(active, c)
		}
	}
	if s.met != nil {
		s.met.ConsumersActive.WithLabelValues(g.Name).Set(float64(len(active)))
	}
	if len(active) == 0 {
		return nil
	}

	per := t.Partitions / len(active)
	extra := t.Partitions % len(active)
	next := 0
	for i, c := range active {
		n := per
		if i < extra {
			n++
		}
		parts := make([]int, 0, n)
		for j := 0; j < n; j++ {
			parts = append(parts, next)
			next++
		}
		c.AssignedPartitions = parts
		if err := s.ledger.UpsertConsumer(c); err != nil {
			return err
		}
	}
	if s.met != nil {
		s.met.Rebalances.WithLabelValues(g.Name).Inc()
	}
	s.logger.Debug("rebalanced",
		logpkg.Str("group", g.ID), logpkg.Int("consumers", len(active)), logpkg.Int("partitions", t.Partitions))
	return nil
}

// CommitOffset records a group's position on one partition.
func (s *Service) CommitOffset(groupID string, partition int, offset string) (*ledger.ConsumerOffset, error) {
	g, err := s.ledger.GetGroup(groupID)
	if err != nil {
		return nil, err
	}
	t, err := s.ledger.GetTopic(g.TopicID)
	if err != nil {
		return nil, err
	}
	if partition < 0 || partition >= t.Partitions {
		return nil, fault.InvalidArgument("partition %d out of range [0, %d)", partition, t.Partitions)
	}
	if _, err := eventlog.ParseID(offset); err != nil {
		return nil, fault.InvalidArgument("malformed offset %q", offset)
	}
	if err := s.ledger.CommitOffset(groupID, partition, offset); err != nil {
		return nil, err
	}
	return s.ledger.GetOffset(groupID, partition)
}

// GetOffsets returns all committed cursors of a group by partition.
func (s *Service) GetOffsets(groupID string) ([]*ledger.ConsumerOffset, error) {
	if _, err := s.ledger.GetGroup(groupID); err != nil {
		return nil, err
	}
	return s.ledger.ListOffsets(groupID)
}

// ResetOffset rewinds a group's cursor on one partition, for both the
// committed row and the delivery cursor.
func (s *Service) ResetOffset(groupID string, partition int, offset string) error {
	g, err := s.ledger.GetGroup(groupID)
	if err != nil {
		return err
	}
	t, err := s.ledger.GetTopic(g.TopicID)
	if err != nil {
		return err
	}
	if partition < 0 || partition >= t.Partitions {
		return fault.InvalidArgument("partition %d out of range [0, %d)", partition, t.Partitions)
	}
	id, err := eventlog.ParseID(offset)
	if err != nil {
		return fault.InvalidArgument("malformed offset %q", offset)
	}
	if err := s.ledger.CommitOffset(groupID, partition, id.String()); err != nil {
		return err
	}
	stream := topicsvc.StreamKey(g.TopicID, partition)
	if err := s.log.SetGroupCursor(stream, groupID, id); err != nil && !errors.Is(err, eventlog.ErrNoGroup) {
		return fault.Unavailable(err, "reset cursor")
	}
	return nil
}

// PartitionLag is one partition's backlog relative to the committed offset.
type PartitionLag struct {
	Partition int    `json:"partition"`
	Offset    string `json:"offset,omitempty"`
	Lag       int64  `json:"lag"`
}

// Lag computes backlog per partition. Partitions without a committed
// offset report the full stream length; missing streams count as zero.
func (s *Service) Lag(groupID string) ([]*PartitionLag, error) {
	g, err := s.ledger.GetGroup(groupID)
	if err != nil {
		return nil, err
	}
	t, err := s.ledger.GetTopic(g.TopicID)
	if err != nil {
		return nil, err
	}

	committed := map[int]*ledger.ConsumerOffset{}
	offsets, err := s.ledger.ListOffsets(groupID)
	if err != nil {
		return nil, err
	}
	for _, o := range offsets {
		committed[o.Partition] = o
	}

	out := make([]*PartitionLag, 0, t.Partitions)
	for part := 0; part < t.Partitions; part++ {
		pl := &PartitionLag{Partition: part}
		stream := topicsvc.StreamKey(g.TopicID, part)
		o := committed[part]
		if o == nil {
			info, err := s.log.Info(stream)
			if err != nil {
				if !errors.Is(err, eventlog.ErrNoStream) {
					s.logger.Warn("lag: info failed",
						logpkg.Str("group", groupID), logpkg.Int("partition", part), logpkg.Err(err))
				}
			} else {
				pl.Lag = info.Length
			}
		} else {
			pl.Offset = o.Offset
			id, err := eventlog.ParseID(o.Offset)
			if err != nil {
				return nil, fault.InvalidArgument("stored offset %q is malformed", o.Offset)
			}
			n, err := s.log.CountAfter(stream, id)
			if err != nil {
				if !errors.Is(err, eventlog.ErrNoStream) {
					s.logger.Warn("lag: count failed",
						logpkg.Str("group", groupID), logpkg.Int("partition", part), logpkg.Err(err))
				}
				n = 0
			}
			pl.Lag = n
		}
		out = append(out, pl)
	}
	return out, nil
}

// EvictStale marks consumers INACTIVE when their last heartbeat is older
// than the eviction window, rebalancing each affected group once.
func (s *Service) EvictStale(ctx context.Context) {
	topics, err := s.ledger.ListTopics("")
	if err != nil {
		s.logger.Error("evict: list topics", logpkg.Err(err))
		return
	}
	cutoff := s.nowMs() - s.evictAfterMs
	for _, t := range topics {
		groups, err := s.ledger.ListGroupsByTopic(t.ID)
		if err != nil {
			s.logger.Warn("evict: list groups", logpkg.Str("topic", t.ID), logpkg.Err(err))
			continue
		}
		for _, g := range groups {
			s.evictGroup(ctx, g, cutoff)
		}
	}
}

func (s *Service) evictGroup(ctx context.Context, g *ledger.ConsumerGroup, cutoffMs int64) {
	l := s.groupLock(g.ID)
	l.Lock()
	defer l.Unlock()

	consumers, err := s.ledger.ListConsumers(g.ID)
	if err != nil {
		s.logger.Warn("evict: list consumers", logpkg.Str("group", g.ID), logpkg.Err(err))
		return
	}
	evicted := 0
	for _, c := range consumers {
		if c.Status != ledger.ConsumerActive || c.LastHeartbeatMs >= cutoffMs {
			continue
		}
		c.Status = ledger.ConsumerInactive
		c.AssignedPartitions = nil
		if err := s.ledger.UpsertConsumer(c); err != nil {
			s.logger.Warn("evict: update consumer", logpkg.Str("group", g.ID), logpkg.Err(err))
			continue
		}
		evicted++
		s.logger.Info("consumer evicted",
			logpkg.Str("group", g.ID), logpkg.Str("consumer", c.ConsumerID))
	}
	if evicted > 0 {
		if err := s.rebalance(ctx, g); err != nil {
			s.logger.Warn("evict: rebalance", logpkg.Str("group", g.ID), logpkg.Err(err))
		}
	}
}
