package dlqsvc

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aman1205/StreamForge/internal/ledger"
	"github.com/aman1205/StreamForge/internal/metrics"
	eventsvc "github.com/aman1205/StreamForge/internal/services/events"
	"github.com/aman1205/StreamForge/pkg/fault"
	logpkg "github.com/aman1205/StreamForge/pkg/log"
)

const (
	// defaultMaxRetries caps automatic redelivery attempts per entry.
	defaultMaxRetries = 3
	// initialRetryDelay is the wait before the first retry of a fresh entry.
	initialRetryDelay = time.Minute
)

// Publisher is the slice of the event service the DLQ needs to republish
// messages.
type Publisher interface {
	Publish(ctx context.Context, p eventsvc.PublishParams) (*eventsvc.Event, error)
}

// Service parks failed deliveries and drives their retry lifecycle:
// PENDING -> RETRYING -> (PENDING | FAILED) and PENDING/RETRYING -> RESOLVED.
type Service struct {
	ledger *ledger.Store
	pub    Publisher
	met    *metrics.Set
	logger logpkg.Logger

	// nowMs is swappable for tests.
	nowMs func() int64
}

// New builds the DLQ service.
func New(ld *ledger.Store, pub Publisher, met *metrics.Set, logger logpkg.Logger) *Service {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("dlq"))
	}
	return &Service{
		ledger: ld,
		pub:    pub,
		met:    met,
		logger: logger,
		nowMs:  func() int64 { return time.Now().UnixMilli() },
	}
}

// SendParams describe one failed delivery to park.
type SendParams struct {
	TopicID        string
	GroupID        string
	Partition      int
	OriginalOffset string
	Payload        string
	Metadata       string
	ErrorMessage   string
	ErrorStack     string
	FailureReason  ledger.FailureReason
	MaxRetries     int
}

// Send parks a failed delivery as PENDING with the first retry scheduled
// one minute out.
func (s *Service) Send(ctx context.Context, p SendParams) (*ledger.DLQEntry, error) {
	if p.OriginalOffset == "" {
		return nil, fault.InvalidArgument("originalOffset is required")
	}
	t, err := s.ledger.GetTopic(p.TopicID)
	if err != nil {
		return nil, err
	}
	if p.FailureReason == "" {
		p.FailureReason = ledger.FailureUnknown
	}
	if p.MaxRetries <= 0 {
		p.MaxRetries = defaultMaxRetries
	}
	now := s.nowMs()
	e := &ledger.DLQEntry{
		ID:             uuid.NewString(),
		TopicID:        p.TopicID,
		GroupID:        p.GroupID,
		Partition:      p.Partition,
		OriginalOffset: p.OriginalOffset,
		Payload:        p.Payload,
		Metadata:       p.Metadata,
		ErrorMessage:   p.ErrorMessage,
		ErrorStack:     p.ErrorStack,
		FailureReason:  p.FailureReason,
		Status:         ledger.DLQPending,
		MaxRetries:     p.MaxRetries,
		NextRetryAtMs:  now + initialRetryDelay.Milliseconds(),
		CreatedAtMs:    now,
	}
	if err := s.ledger.CreateDLQEntry(ctx, e); err != nil {
		return nil, err
	}
	if s.met != nil {
		s.met.DLQEntries.WithLabelValues(t.Name, string(e.FailureReason)).Inc()
	}
	s.logger.Info("message dead-lettered",
		logpkg.Str("dlq", e.ID), logpkg.Str("topic", p.TopicID),
		logpkg.Str("offset", p.OriginalOffset), logpkg.Str("reason", string(e.FailureReason)))
	return e, nil
}

// Get returns one entry with its retry history attached.
func (s *Service) Get(id string) (*ledger.DLQEntry, []*ledger.RetryAttempt, error) {
	e, err := s.ledger.GetDLQEntry(id)
	if err != nil {
		return nil, nil, err
	}
	attempts, err := s.ledger.ListRetryAttempts(id)
	if err != nil {
		return nil, nil, err
	}
	return e, attempts, nil
}

// ListByTopic pages a topic's entries, optionally filtered by status.
func (s *Service) ListByTopic(topicID string, status ledger.DLQStatus) ([]*ledger.DLQEntry, error) {
	return s.ledger.ListDLQByTopic(topicID, status)
}

// ListByGroup pages a group's entries.
func (s *Service) ListByGroup(groupID string, status ledger.DLQStatus) ([]*ledger.DLQEntry, error) {
	return s.ledger.ListDLQByGroup(groupID, status)
}

// backoffAfter computes the wait before the next automatic retry from
// the number of retries already burned: 2^count minutes. A fresh entry
// waits 1m; after its first failed retry, 2m, then 4m, 8m.
func backoffAfter(count int) time.Duration {
	if count < 0 {
		count = 0
	}
	return time.Duration(1<<count) * time.Minute
}

// Retry republishes one entry to the destination topic (or the original
// when empty) at the original partition. Resolved and out-of-budget
// entries reject the attempt. On publish failure the attempt is recorded,
// the next retry scheduled, and the error re-raised.
func (s *Service) Retry(ctx context.Context, id, destinationTopicID string) (*ledger.DLQEntry, error) {
	e, err := s.ledger.GetDLQEntry(id)
	if err != nil {
		return nil, err
	}
	if e.Status == ledger.DLQResolved {
		return nil, fault.InvalidArgument("dlq entry %q is already resolved", id)
	}
	if e.RetryCount >= e.MaxRetries {
		return nil, fault.InvalidArgument("dlq entry %q exhausted its %d retries", id, e.MaxRetries)
	}

	e.Status = ledger.DLQRetrying
	if err := s.ledger.UpdateDLQEntry(e); err != nil {
		return nil, err
	}

	target := e.TopicID
	if destinationTopicID != "" {
		target = destinationTopicID
	}
	topicName := target
	if t, terr := s.ledger.GetTopic(target); terr == nil {
		topicName = t.Name
	}
	attempt := &ledger.RetryAttempt{DLQID: e.ID, AttemptNumber: e.RetryCount + 1}
	_, pubErr := s.pub.Publish(ctx, eventsvc.PublishParams{
		TopicID:   target,
		Partition: e.Partition,
		Payload:   e.Payload,
		Metadata: map[string]string{
			"dlq_retry":       "true",
			"dlq_id":          e.ID,
			"original_offset": e.OriginalOffset,
		},
	})
	if pubErr != nil {
		attempt.ErrorMessage = pubErr.Error()
		if err := s.ledger.AddRetryAttempt(attempt); err != nil {
			return nil, err
		}
		e.RetryCount++
		if e.RetryCount >= e.MaxRetries {
			e.Status = ledger.DLQFailed
		} else {
			e.Status = ledger.DLQPending
			e.NextRetryAtMs = s.nowMs() + backoffAfter(e.RetryCount).Milliseconds()
		}
		if err := s.ledger.UpdateDLQEntry(e); err != nil {
			return nil, err
		}
		if s.met != nil {
			s.met.DLQRetries.WithLabelValues(topicName, "failure").Inc()
		}
		return nil, fault.Wrap(fault.KindUnavailable, pubErr, "republish dlq entry %q", id)
	}

	attempt.Success = true
	if err := s.ledger.AddRetryAttempt(attempt); err != nil {
		return nil, err
	}
	e.RetryCount++
	e.Status = ledger.DLQResolved
	e.ResolvedAtMs = s.nowMs()
	if err := s.ledger.UpdateDLQEntry(e); err != nil {
		return nil, err
	}
	if s.met != nil {
		s.met.DLQRetries.WithLabelValues(topicName, "success").Inc()
	}
	s.logger.Info("dlq entry retried",
		logpkg.Str("dlq", e.ID), logpkg.Int("attempt", e.RetryCount))
	return e, nil
}

// RetryResult is the per-entry outcome of a bulk retry.
type RetryResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RetryAll retries every PENDING entry of a topic, isolating failures so
// one bad entry never aborts the sweep.
func (s *Service) RetryAll(ctx context.Context, topicID string) ([]*RetryResult, error) {
	entries, err := s.ledger.ListDLQByTopic(topicID, ledger.DLQPending)
	if err != nil {
		return nil, err
	}
	out := make([]*RetryResult, 0, len(entries))
	for _, e := range entries {
		r := &RetryResult{ID: e.ID}
		if _, err := s.Retry(ctx, e.ID, ""); err != nil {
			r.Error = err.Error()
		} else {
			r.Success = true
		}
		out = append(out, r)
	}
	return out, nil
}

// Resolve closes out an entry, recording when.
func (s *Service) Resolve(id string) (*ledger.DLQEntry, error) {
	e, err := s.ledger.GetDLQEntry(id)
	if err != nil {
		return nil, err
	}
	if e.Status == ledger.DLQResolved {
		return nil, fault.Conflict("dlq entry %q is already resolved", id)
	}
	e.Status = ledger.DLQResolved
	e.ResolvedAtMs = s.nowMs()
	if err := s.ledger.UpdateDLQEntry(e); err != nil {
		return nil, err
	}
	if s.met != nil {
		topicName := e.TopicID
		if t, terr := s.ledger.GetTopic(e.TopicID); terr == nil {
			topicName = t.Name
		}
		s.met.DLQResolved.WithLabelValues(topicName).Inc()
	}
	return e, nil
}

// Delete removes one entry and its history.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.ledger.DeleteDLQEntry(ctx, id)
}

// Purge removes a topic's RESOLVED entries older than the given age and
// returns how many were dropped.
func (s *Service) Purge(ctx context.Context, topicID string, olderThan time.Duration) (int, error) {
	return s.ledger.PurgeResolvedDLQ(ctx, topicID, s.nowMs()-olderThan.Milliseconds())
}

// Stats aggregates a topic's entries by status and failure reason.
func (s *Service) Stats(topicID string) (*ledger.DLQStats, error) {
	if _, err := s.ledger.GetTopic(topicID); err != nil {
		return nil, err
	}
	return s.ledger.CountDLQ(topicID)
}

// SweepDue retries every entry whose scheduled retry time has passed.
// Runs on a maintenance ticker.
func (s *Service) SweepDue(ctx context.Context) {
	due, err := s.ledger.ListDLQDue(s.nowMs())
	if err != nil {
		s.logger.Error("dlq sweep: list due", logpkg.Err(err))
		return
	}
	for _, e := range due {
		if _, err := s.Retry(ctx, e.ID, ""); err != nil {
			s.logger.Warn("dlq sweep: retry failed",
				logpkg.Str("dlq", e.ID), logpkg.Err(err))
		}
	}
}
