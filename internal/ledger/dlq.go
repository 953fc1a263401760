package ledger

import (
	"context"
	"sort"

	"github.com/aman1205/StreamForge/pkg/fault"
)

// CreateDLQEntry persists a dead-letter entry with its topic and group
// listing indexes.
func (s *Store) CreateDLQEntry(ctx context.Context, e *DLQEntry) error {
	now := s.nowMs()
	if e.CreatedAtMs == 0 {
		e.CreatedAtMs = now
	}
	e.UpdatedAtMs = now
	indexes := [][]byte{keyDLQTopic(e.TopicID, e.ID)}
	if e.GroupID != "" {
		indexes = append(indexes, keyDLQGroup(e.GroupID, e.ID))
	}
	return s.setJSONBatch(ctx, keyDLQ(e.ID), e, indexes...)
}

// GetDLQEntry returns a dead-letter entry by id.
func (s *Store) GetDLQEntry(id string) (*DLQEntry, error) {
	var e DLQEntry
	ok, err := s.getJSON(keyDLQ(id), &e)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fault.NotFound("dlq entry %q not found", id)
	}
	return &e, nil
}

// UpdateDLQEntry rewrites an entry row, bumping its update timestamp.
func (s *Store) UpdateDLQEntry(e *DLQEntry) error {
	e.UpdatedAtMs = s.nowMs()
	return s.setJSON(keyDLQ(e.ID), e)
}

func (s *Store) listDLQByIndex(prefix []byte, status DLQStatus) ([]*DLQEntry, error) {
	var ids []string
	err := s.db.ScanPrefix(prefix, func(key, _ []byte) bool {
		ids = append(ids, string(key[len(prefix):]))
		return true
	})
	if err != nil {
		return nil, fault.Unavailable(err, "dlq scan")
	}
	out := make([]*DLQEntry, 0, len(ids))
	for _, id := range ids {
		e, err := s.GetDLQEntry(id)
		if err != nil {
			if fault.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if status != "" && e.Status != status {
			continue
		}
		out = append(out, e)
	}
	// Newest first, matching how operators page through failures.
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAtMs > out[j].CreatedAtMs })
	return out, nil
}

// ListDLQByTopic returns a topic's dead-letter entries, optionally
// filtered by status (empty means all), newest first.
func (s *Store) ListDLQByTopic(topicID string, status DLQStatus) ([]*DLQEntry, error) {
	return s.listDLQByIndex(keyDLQTopicPrefix(topicID), status)
}

// ListDLQByGroup returns a group's dead-letter entries, newest first.
func (s *Store) ListDLQByGroup(groupID string, status DLQStatus) ([]*DLQEntry, error) {
	return s.listDLQByIndex(keyDLQGroupPrefix(groupID), status)
}

// ListDLQDue returns PENDING entries whose next retry time has passed.
func (s *Store) ListDLQDue(nowMs int64) ([]*DLQEntry, error) {
	var out []*DLQEntry
	err := s.db.ScanPrefix(keyDLQEntryPrefix(), func(_, value []byte) bool {
		var e DLQEntry
		if unmarshalRow(value, &e) && e.Status == DLQPending && e.NextRetryAtMs > 0 && e.NextRetryAtMs <= nowMs {
			out = append(out, &e)
		}
		return true
	})
	if err != nil {
		return nil, fault.Unavailable(err, "dlq due scan")
	}
	return out, nil
}

// DeleteDLQEntry removes an entry, its indexes, and its attempt history.
func (s *Store) DeleteDLQEntry(ctx context.Context, id string) error {
	e, err := s.GetDLQEntry(id)
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete(keyDLQ(id), nil); err != nil {
		return err
	}
	if err := batch.Delete(keyDLQTopic(e.TopicID, id), nil); err != nil {
		return err
	}
	if e.GroupID != "" {
		if err := batch.Delete(keyDLQGroup(e.GroupID, id), nil); err != nil {
			return err
		}
	}
	err = s.db.ScanPrefix(keyAttemptPrefix(id), func(key, _ []byte) bool {
		_ = batch.Delete(append([]byte(nil), key...), nil)
		return true
	})
	if err != nil {
		return fault.Unavailable(err, "dlq attempt scan")
	}
	if err := s.db.CommitBatch(ctx, batch); err != nil {
		return fault.Unavailable(err, "dlq delete")
	}
	return nil
}

// PurgeResolvedDLQ deletes a topic's RESOLVED entries last updated before
// cutoffMs and returns how many were removed.
func (s *Store) PurgeResolvedDLQ(ctx context.Context, topicID string, cutoffMs int64) (int, error) {
	entries, err := s.ListDLQByTopic(topicID, DLQResolved)
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, e := range entries {
		if e.UpdatedAtMs >= cutoffMs {
			continue
		}
		if err := s.DeleteDLQEntry(ctx, e.ID); err != nil {
			return purged, err
		}
		purged++
	}
	return purged, nil
}

// DLQStats aggregates a topic's dead-letter entries by status and reason.
type DLQStats struct {
	Total    int                   `json:"total"`
	ByStatus map[DLQStatus]int     `json:"byStatus"`
	ByReason map[FailureReason]int `json:"byReason"`
}

// CountDLQ builds status/reason histograms for one topic.
func (s *Store) CountDLQ(topicID string) (*DLQStats, error) {
	entries, err := s.ListDLQByTopic(topicID, "")
	if err != nil {
		return nil, err
	}
	stats := &DLQStats{
		ByStatus: map[DLQStatus]int{},
		ByReason: map[FailureReason]int{},
	}
	for _, e := range entries {
		stats.Total++
		stats.ByStatus[e.Status]++
		stats.ByReason[e.FailureReason]++
	}
	return stats, nil
}

// AddRetryAttempt appends one attempt record to an entry's history.
func (s *Store) AddRetryAttempt(a *RetryAttempt) error {
	if a.RetriedAtMs == 0 {
		a.RetriedAtMs = s.nowMs()
	}
	return s.setJSON(keyAttempt(a.DLQID, a.AttemptNumber), a)
}

// ListRetryAttempts returns an entry's attempt history in order.
func (s *Store) ListRetryAttempts(dlqID string) ([]*RetryAttempt, error) {
	var out []*RetryAttempt
	err := s.db.ScanPrefix(keyAttemptPrefix(dlqID), func(_, value []byte) bool {
		var a RetryAttempt
		if unmarshalRow(value, &a) {
			out = append(out, &a)
		}
		return true
	})
	if err != nil {
		return nil, fault.Unavailable(err, "attempt scan")
	}
	return out, nil
}
