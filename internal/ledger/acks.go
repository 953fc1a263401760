package ledger

import (
	"context"

	"github.com/aman1205/StreamForge/pkg/fault"
)

// RecordDelivery upserts a pending MessageAck for a delivered message.
// Redelivery of the same (group, consumer, offset) refreshes the deadline.
func (s *Store) RecordDelivery(a *MessageAck) error {
	if a.CreatedAtMs == 0 {
		a.CreatedAtMs = s.nowMs()
	}
	return s.setJSON(keyAck(a.GroupID, a.ConsumerID, a.Offset), a)
}

// FindAck returns the ack row for one delivered offset, or nil when the
// delivery was never tracked or already swept.
func (s *Store) FindAck(groupID, consumerID, offset string) (*MessageAck, error) {
	var a MessageAck
	ok, err := s.getJSON(keyAck(groupID, consumerID, offset), &a)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// UpdateAck rewrites an ack row in place.
func (s *Store) UpdateAck(a *MessageAck) error {
	return s.setJSON(keyAck(a.GroupID, a.ConsumerID, a.Offset), a)
}

// ListUnacked returns a group's pending (unacknowledged) deliveries.
func (s *Store) ListUnacked(groupID string) ([]*MessageAck, error) {
	var out []*MessageAck
	err := s.db.ScanPrefix(keyAckGroupPrefix(groupID), func(_, value []byte) bool {
		var a MessageAck
		if unmarshalRow(value, &a) && !a.Acknowledged {
			out = append(out, &a)
		}
		return true
	})
	if err != nil {
		return nil, fault.Unavailable(err, "ack scan")
	}
	return out, nil
}

// DeleteExpiredAcks removes acknowledged rows and pending rows whose
// visibility deadline passed before nowMs. Expired pending rows are
// returned so the caller can requeue them. Deletions go through batches
// of at most ackSweepBatch keys.
const ackSweepBatch = 512

func (s *Store) DeleteExpiredAcks(ctx context.Context, nowMs int64) ([]*MessageAck, error) {
	type doomed struct {
		key []byte
		row *MessageAck
	}
	var hits []doomed
	err := s.db.ScanPrefix(keyAckPrefix(), func(key, value []byte) bool {
		var a MessageAck
		if !unmarshalRow(value, &a) {
			return true
		}
		if a.Acknowledged || a.ExpiresAtMs <= nowMs {
			hits = append(hits, doomed{key: append([]byte(nil), key...), row: &a})
		}
		return true
	})
	if err != nil {
		return nil, fault.Unavailable(err, "ack sweep scan")
	}

	var expired []*MessageAck
	for start := 0; start < len(hits); start += ackSweepBatch {
		end := start + ackSweepBatch
		if end > len(hits) {
			end = len(hits)
		}
		batch := s.db.NewBatch()
		for _, h := range hits[start:end] {
			if err := batch.Delete(h.key, nil); err != nil {
				batch.Close()
				return expired, err
			}
		}
		if err := s.db.CommitBatch(ctx, batch); err != nil {
			batch.Close()
			return expired, fault.Unavailable(err, "ack sweep")
		}
		batch.Close()
		for _, h := range hits[start:end] {
			if !h.row.Acknowledged {
				expired = append(expired, h.row)
			}
		}
	}
	return expired, nil
}
