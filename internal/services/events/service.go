package eventsvc

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/aman1205/StreamForge/internal/eventlog"
	"github.com/aman1205/StreamForge/internal/ledger"
	"github.com/aman1205/StreamForge/internal/metrics"
	topicsvc "github.com/aman1205/StreamForge/internal/services/topics"
	"github.com/aman1205/StreamForge/pkg/fault"
	logpkg "github.com/aman1205/StreamForge/pkg/log"
)

// nackRequeueMs is how long a negatively acknowledged delivery stays
// invisible before the expiry sweep offers it again.
const nackRequeueMs = 30_000

// Field names used on stored log entries.
const (
	fieldPayload     = "payload"
	fieldMetadata    = "metadata"
	fieldPublishedAt = "publishedAt"
	fieldExpiresAt   = "expiresAt"
)

// Event is one published message as seen by consumers.
type Event struct {
	TopicID       string            `json:"topicId"`
	Partition     int               `json:"partition"`
	Offset        string            `json:"offset"`
	Payload       string            `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	PublishedAtMs int64             `json:"publishedAtMs"`
	ExpiresAtMs   int64             `json:"expiresAtMs,omitempty"`
}

// Service handles the data plane: publish, consume, group delivery with
// acknowledgement tracking, and the visibility-timeout sweep.
type Service struct {
	ledger *ledger.Store
	log    *eventlog.Store
	met    *metrics.Set
	logger logpkg.Logger
	hub    *hub

	// visibilityMs is the default claim window on group deliveries.
	visibilityMs int64

	// nowMs is swappable for tests.
	nowMs func() int64
}

// New builds the event service.
func New(ld *ledger.Store, log *eventlog.Store, visibilityMs int64, met *metrics.Set, logger logpkg.Logger) *Service {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("events"))
	}
	return &Service{
		ledger:       ld,
		log:          log,
		met:          met,
		logger:       logger,
		hub:          newHub(),
		visibilityMs: visibilityMs,
		nowMs:        func() int64 { return time.Now().UnixMilli() },
	}
}

// PublishParams are the caller-supplied fields of one publish.
type PublishParams struct {
	TopicID   string
	Partition int
	Payload   string
	Metadata  map[string]string
	// TTLMs stamps an advisory expiry on the entry. Expired entries are
	// only physically removed by retention.
	TTLMs int64
}

// Publish appends an event to one topic partition and offers it to live
// subscribers.
func (s *Service) Publish(ctx context.Context, p PublishParams) (*Event, error) {
	if p.Payload == "" {
		return nil, fault.InvalidArgument("payload is required")
	}
	t, err := s.ledger.GetTopic(p.TopicID)
	if err != nil {
		return nil, err
	}
	if p.Partition < 0 || p.Partition >= t.Partitions {
		return nil, fault.InvalidArgument("partition %d out of range [0, %d)", p.Partition, t.Partitions)
	}

	now := s.nowMs()
	fields := map[string]string{
		fieldPayload:     p.Payload,
		fieldPublishedAt: strconv.FormatInt(now, 10),
	}
	if p.TTLMs > 0 {
		fields[fieldExpiresAt] = strconv.FormatInt(now+p.TTLMs, 10)
	}
	if len(p.Metadata) > 0 {
		md, err := json.Marshal(p.Metadata)
		if err != nil {
			return nil, fault.InvalidArgument("metadata not serializable: %v", err)
		}
		fields[fieldMetadata] = string(md)
	}

	id, err := s.log.Append(ctx, topicsvc.StreamKey(p.TopicID, p.Partition), fields)
	if err != nil {
		return nil, fault.Unavailable(err, "append")
	}
	e := &Event{
		TopicID:       p.TopicID,
		Partition:     p.Partition,
		Offset:        id.String(),
		Payload:       p.Payload,
		Metadata:      p.Metadata,
		PublishedAtMs: now,
	}
	if p.TTLMs > 0 {
		e.ExpiresAtMs = now + p.TTLMs
	}
	if s.met != nil {
		s.met.EventsPublished.WithLabelValues(t.Name).Inc()
	}
	s.hub.broadcast(p.TopicID, e)
	return e, nil
}

// decode maps a raw log entry back to an Event.
func decode(topicID string, partition int, le eventlog.Entry) *Event {
	e := &Event{
		TopicID:   topicID,
		Partition: partition,
		Offset:    le.ID.String(),
		Payload:   le.Fields[fieldPayload],
	}
	if v := le.Fields[fieldPublishedAt]; v != "" {
		e.PublishedAtMs, _ = strconv.ParseInt(v, 10, 64)
	} else {
		e.PublishedAtMs = le.ID.Ms
	}
	if v := le.Fields[fieldExpiresAt]; v != "" {
		e.ExpiresAtMs, _ = strconv.ParseInt(v, 10, 64)
	}
	if md := le.Fields[fieldMetadata]; md != "" {
		_ = json.Unmarshal([]byte(md), &e.Metadata)
	}
	return e
}

// ConsumeParams select a plain (group-less) read.
type ConsumeParams struct {
	TopicID   string
	Partition int
	// After is the exclusive lower bound; empty reads from the start.
	After string
	Limit int
	// Filter is an optional CEL expression applied after the read.
	Filter string
}

// Consume reads events from one partition without touching any cursor.
func (s *Service) Consume(p ConsumeParams) ([]*Event, error) {
	t, err := s.ledger.GetTopic(p.TopicID)
	if err != nil {
		return nil, err
	}
	if p.Partition < 0 || p.Partition >= t.Partitions {
		return nil, fault.InvalidArgument("partition %d out of range [0, %d)", p.Partition, t.Partitions)
	}
	after, err := eventlog.ParseID(p.After)
	if err != nil {
		return nil, fault.InvalidArgument("malformed offset %q", p.After)
	}
	filter, err := newCELFilter(p.Filter)
	if err != nil {
		return nil, fault.InvalidArgument("bad filter: %v", err)
	}

	entries, err := s.log.ReadAfter(topicsvc.StreamKey(p.TopicID, p.Partition), after, p.Limit)
	if err != nil {
		if errors.Is(err, eventlog.ErrNoStream) {
			return nil, nil
		}
		return nil, fault.Unavailable(err, "read")
	}
	out := make([]*Event, 0, len(entries))
	for _, le := range entries {
		e := decode(p.TopicID, p.Partition, le)
		if filter.Eval(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// GroupConsumeParams select a group delivery.
type GroupConsumeParams struct {
	GroupID    string
	ConsumerID string
	Partition  int
	Limit      int
	// AutoCommit commits the last delivered offset immediately instead of
	// waiting for explicit acknowledgements.
	AutoCommit bool
}

// ConsumeFromGroup delivers unread events of one assigned partition to a
// registered consumer, tracking each delivery for acknowledgement.
func (s *Service) ConsumeFromGroup(ctx context.Context, p GroupConsumeParams) ([]*Event, error) {
	g, err := s.ledger.GetGroup(p.GroupID)
	if err != nil {
		return nil, err
	}
	c, err := s.ledger.GetConsumer(p.GroupID, p.ConsumerID)
	if err != nil {
		return nil, err
	}
	if c.Status != ledger.ConsumerActive {
		return nil, fault.Conflict("consumer %q is not active", p.ConsumerID)
	}
	assigned := false
	for _, part := range c.AssignedPartitions {
		if part == p.Partition {
			assigned = true
			break
		}
	}
	if !assigned {
		return nil, fault.InvalidArgument("partition %d is not assigned to consumer %q", p.Partition, p.ConsumerID)
	}

	stream := topicsvc.StreamKey(g.TopicID, p.Partition)
	entries, err := s.log.ReadAsGroup(stream, p.GroupID, p.ConsumerID, eventlog.CursorFrom, p.Limit)
	if err != nil {
		if errors.Is(err, eventlog.ErrNoGroup) {
			return nil, fault.NotFound("group cursor missing on partition %d", p.Partition)
		}
		return nil, fault.Unavailable(err, "group read")
	}
	if len(entries) == 0 {
		return nil, nil
	}

	now := s.nowMs()
	out := make([]*Event, 0, len(entries))
	for _, le := range entries {
		e := decode(g.TopicID, p.Partition, le)
		ack := &ledger.MessageAck{
			ID:          uuid.NewString(),
			GroupID:     p.GroupID,
			ConsumerID:  p.ConsumerID,
			Partition:   p.Partition,
			Offset:      e.Offset,
			ExpiresAtMs: now + s.visibilityMs,
			CreatedAtMs: now,
		}
		if err := s.ledger.RecordDelivery(ack); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if p.AutoCommit {
		last := out[len(out)-1].Offset
		if err := s.ledger.CommitOffset(p.GroupID, p.Partition, last); err != nil {
			return nil, err
		}
	}
	if s.met != nil {
		if t, err := s.ledger.GetTopic(g.TopicID); err == nil {
			s.met.EventsConsumed.WithLabelValues(t.Name, g.Name).Add(float64(len(out)))
		}
	}
	return out, nil
}

// Acknowledge marks delivered offsets as processed and advances each
// partition's committed offset to the highest id acked on it. The
// partition comes from the tracked delivery row, not the caller.
// Offsets without a tracked delivery are skipped; the count of applied
// acks is returned.
func (s *Service) Acknowledge(groupID, consumerID string, offsets []string) (int, error) {
	if _, err := s.ledger.GetGroup(groupID); err != nil {
		return 0, err
	}
	now := s.nowMs()
	acked := 0
	highest := map[int]eventlog.EntryID{}
	for _, off := range offsets {
		a, err := s.ledger.FindAck(groupID, consumerID, off)
		if err != nil {
			return acked, err
		}
		if a == nil || a.Acknowledged {
			continue
		}
		a.Acknowledged = true
		a.AckAtMs = now
		if err := s.ledger.UpdateAck(a); err != nil {
			return acked, err
		}
		acked++
		if id, err := eventlog.ParseID(off); err == nil && highest[a.Partition].Less(id) {
			highest[a.Partition] = id
		}
	}
	for part, id := range highest {
		if err := s.ledger.CommitOffset(groupID, part, id.String()); err != nil {
			return acked, err
		}
	}
	if acked > 0 && s.met != nil {
		s.met.EventsAcked.WithLabelValues(groupID).Add(float64(acked))
	}
	return acked, nil
}

// Nack rejects one delivery. With requeue the row is re-armed for a fresh
// visibility window and redelivered on expiry; without it the row keeps its
// rejection mark and original deadline until the sweep drops it.
func (s *Service) Nack(groupID, consumerID, offset, reason string, requeue bool) error {
	a, err := s.ledger.FindAck(groupID, consumerID, offset)
	if err != nil {
		return err
	}
	if a == nil || a.Acknowledged {
		return fault.NotFound("no unacknowledged delivery for offset %q", offset)
	}
	now := s.nowMs()
	a.NackAtMs = now
	a.NackReason = reason
	if requeue {
		a.NackAtMs = 0
		a.ExpiresAtMs = now + nackRequeueMs
	}
	if err := s.ledger.UpdateAck(a); err != nil {
		return err
	}
	if s.met != nil {
		s.met.EventsNacked.WithLabelValues(groupID).Inc()
	}
	return nil
}

// PendingAcks lists a group's deliveries still waiting for an ack.
func (s *Service) PendingAcks(groupID string) ([]*ledger.MessageAck, error) {
	if _, err := s.ledger.GetGroup(groupID); err != nil {
		return nil, err
	}
	return s.ledger.ListUnacked(groupID)
}

// Subscribe attaches a live listener to a topic's publishes.
func (s *Service) Subscribe(topicID string, buf int) (<-chan *Event, func(), error) {
	if _, err := s.ledger.GetTopic(topicID); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.hub.subscribe(topicID, buf)
	return ch, cancel, nil
}

// CleanupExpired sweeps delivery records past their visibility deadline
// and returns how many were removed. Swept entries are redelivered on the
// next group read because the cursor rewinds below them.
func (s *Service) CleanupExpired(ctx context.Context) int {
	expired, err := s.ledger.DeleteExpiredAcks(ctx, s.nowMs())
	if err != nil {
		s.logger.Error("ack sweep failed", logpkg.Err(err))
		return 0
	}
	if len(expired) == 0 {
		return 0
	}
	// Expired deliveries rewind the group cursor so unacked entries come
	// around again.
	type slot struct {
		groupID   string
		partition int
	}
	lowest := map[slot]eventlog.EntryID{}
	for _, a := range expired {
		if s.met != nil {
			s.met.EventsExpired.WithLabelValues(a.GroupID).Inc()
		}
		id, err := eventlog.ParseID(a.Offset)
		if err != nil {
			continue
		}
		k := slot{a.GroupID, a.Partition}
		cur, ok := lowest[k]
		if !ok || id.Less(cur) {
			lowest[k] = id
		}
	}
	for k, id := range lowest {
		g, err := s.ledger.GetGroup(k.groupID)
		if err != nil {
			continue
		}
		stream := topicsvc.StreamKey(g.TopicID, k.partition)
		if err := s.log.RewindBefore(stream, k.groupID, id); err != nil {
			s.logger.Warn("redelivery rewind failed",
				logpkg.Str("group", k.groupID), logpkg.Int("partition", k.partition), logpkg.Err(err))
			continue
		}
		s.logger.Info("redelivery scheduled",
			logpkg.Str("group", k.groupID), logpkg.Int("partition", k.partition), logpkg.Str("offset", id.String()))
	}
	return len(expired)
}
