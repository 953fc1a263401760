package topicsvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aman1205/StreamForge/internal/config"
	"github.com/aman1205/StreamForge/internal/eventlog"
	"github.com/aman1205/StreamForge/internal/ledger"
	"github.com/aman1205/StreamForge/internal/metrics"
	"github.com/aman1205/StreamForge/pkg/fault"
	logpkg "github.com/aman1205/StreamForge/pkg/log"
)

// DefaultGroup is the cursor created on every partition at topic creation
// so that the stream exists before the first registered consumer group.
const DefaultGroup = "default-group"

const maxPartitions = 64

// Service manages the topic registry and partition-stream lifecycle.
type Service struct {
	ledger *ledger.Store
	log    *eventlog.Store
	cfg    config.TopicConfig
	met    *metrics.Set
	logger logpkg.Logger
}

// New builds the topic service.
func New(ld *ledger.Store, log *eventlog.Store, cfg config.TopicConfig, met *metrics.Set, logger logpkg.Logger) *Service {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("topics"))
	}
	return &Service{ledger: ld, log: log, cfg: cfg, met: met, logger: logger}
}

// StreamKey returns the log-stream key of one topic partition.
func StreamKey(topicID string, partition int) string {
	return fmt.Sprintf("topic:%s:partition:%d", topicID, partition)
}

// CreateParams are the caller-supplied fields for a new topic.
type CreateParams struct {
	WorkspaceID string
	Name        string
	Partitions  int
	RetentionMs int64
	Schema      string
}

// Create validates, registers, and bootstraps a topic: one log stream per
// partition with the default group cursor at the log start.
func (s *Service) Create(ctx context.Context, p CreateParams) (*ledger.Topic, error) {
	if p.WorkspaceID == "" {
		return nil, fault.InvalidArgument("workspaceId is required")
	}
	if !ledger.ValidTopicName(p.Name) {
		return nil, fault.InvalidArgument("topic name %q must be lowercase alphanumeric with hyphens", p.Name)
	}
	if p.Partitions == 0 {
		p.Partitions = s.cfg.DefaultPartitions
	}
	if p.Partitions < 1 || p.Partitions > maxPartitions {
		return nil, fault.InvalidArgument("partitions must be between 1 and %d, got %d", maxPartitions, p.Partitions)
	}
	if p.RetentionMs == 0 {
		p.RetentionMs = s.cfg.DefaultRetentionMs
	}
	if p.RetentionMs < s.cfg.MinRetentionMs {
		return nil, fault.InvalidArgument("retention %dms is below the %dms floor", p.RetentionMs, s.cfg.MinRetentionMs)
	}

	t := &ledger.Topic{
		ID:          uuid.NewString(),
		WorkspaceID: p.WorkspaceID,
		Name:        p.Name,
		Partitions:  p.Partitions,
		RetentionMs: p.RetentionMs,
		Schema:      p.Schema,
	}
	if err := s.ledger.CreateTopic(ctx, t); err != nil {
		return nil, err
	}
	for part := 0; part < t.Partitions; part++ {
		if err := s.log.CreateGroup(StreamKey(t.ID, part), DefaultGroup, eventlog.ZeroID); err != nil {
			return nil, fault.Unavailable(err, "bootstrap partition %d", part)
		}
	}
	s.logger.Info("topic created",
		logpkg.Str("topic", t.ID), logpkg.Str("name", t.Name), logpkg.Int("partitions", t.Partitions))
	return t, nil
}

// Get returns a topic by id.
func (s *Service) Get(id string) (*ledger.Topic, error) {
	return s.ledger.GetTopic(id)
}

// GetByName resolves a topic by workspace-scoped name.
func (s *Service) GetByName(workspaceID, name string) (*ledger.Topic, error) {
	return s.ledger.GetTopicByName(workspaceID, name)
}

// List returns topics of a workspace; empty workspaceID lists all.
func (s *Service) List(workspaceID string) ([]*ledger.Topic, error) {
	return s.ledger.ListTopics(workspaceID)
}

// Delete removes the registry row and its name index. The partition
// streams and any group cursors stay behind until retention trims them or
// PurgeData is invoked.
func (s *Service) Delete(ctx context.Context, id string) error {
	t, err := s.ledger.GetTopic(id)
	if err != nil {
		return err
	}
	if err := s.ledger.DeleteTopic(ctx, id); err != nil {
		return err
	}
	s.logger.Info("topic deleted", logpkg.Str("topic", id), logpkg.Str("name", t.Name))
	return nil
}

// PurgeData drops every partition stream of a topic, cursors included.
// The registry row survives; a purged topic reads as empty. This is the
// sweep counterpart to Delete for reclaiming orphaned log data.
func (s *Service) PurgeData(ctx context.Context, id string) error {
	t, err := s.ledger.GetTopic(id)
	if err != nil {
		return err
	}
	for part := 0; part < t.Partitions; part++ {
		if err := s.log.DropStream(ctx, StreamKey(id, part)); err != nil && !errors.Is(err, eventlog.ErrNoStream) {
			return fault.Unavailable(err, "drop partition %d", part)
		}
	}
	s.logger.Info("topic data purged", logpkg.Str("topic", id), logpkg.Int("partitions", t.Partitions))
	return nil
}

// Stats aggregates partition boundaries for one topic.
type Stats struct {
	TopicID    string           `json:"topicId"`
	Length     int64            `json:"length"`
	Partitions []PartitionStats `json:"partitions"`
}

// PartitionStats reports one partition's boundaries.
type PartitionStats struct {
	Partition int    `json:"partition"`
	Length    int64  `json:"length"`
	FirstID   string `json:"firstId,omitempty"`
	LastID    string `json:"lastId,omitempty"`
}

// TopicStats sums entry counts and boundary ids across partitions. A
// partition that was never written to reports zero length.
func (s *Service) TopicStats(id string) (*Stats, error) {
	t, err := s.ledger.GetTopic(id)
	if err != nil {
		return nil, err
	}
	out := &Stats{TopicID: id}
	for part := 0; part < t.Partitions; part++ {
		ps := PartitionStats{Partition: part}
		info, err := s.log.Info(StreamKey(id, part))
		if err == nil {
			ps.Length = info.Length
			ps.FirstID = info.FirstID.String()
			ps.LastID = info.LastID.String()
		} else if !errors.Is(err, eventlog.ErrNoStream) {
			return nil, fault.Unavailable(err, "partition %d info", part)
		}
		out.Length += ps.Length
		out.Partitions = append(out.Partitions, ps)
	}
	return out, nil
}

// EnforceForTopic trims every partition of one topic to its retention
// window and returns how many entries were removed.
func (s *Service) EnforceForTopic(ctx context.Context, t *ledger.Topic, nowMs int64) (int, error) {
	cutoff := eventlog.FromMs(nowMs - t.RetentionMs)
	removed := 0
	for part := 0; part < t.Partitions; part++ {
		n, err := s.log.TrimBefore(ctx, StreamKey(t.ID, part), cutoff)
		if err != nil {
			return removed, fault.Unavailable(err, "trim partition %d", part)
		}
		removed += n
	}
	if removed > 0 && s.met != nil {
		s.met.RetentionTrimmed.WithLabelValues(t.Name).Add(float64(removed))
	}
	return removed, nil
}

// EnforceRetention walks every topic and trims entries older than each
// topic's retention window. Per-topic failures are logged and skipped so
// one bad topic does not stall the sweep.
func (s *Service) EnforceRetention(ctx context.Context) {
	topics, err := s.ledger.ListTopics("")
	if err != nil {
		s.logger.Error("retention: list topics", logpkg.Err(err))
		return
	}
	now := time.Now().UnixMilli()
	for _, t := range topics {
		removed, err := s.EnforceForTopic(ctx, t, now)
		if err != nil {
			s.logger.Warn("retention: trim failed", logpkg.Str("topic", t.ID), logpkg.Err(err))
			continue
		}
		if removed > 0 {
			s.logger.Info("retention: trimmed",
				logpkg.Str("topic", t.ID), logpkg.Int("removed", removed))
		}
	}
}
