package eventlog

import (
	"encoding/json"
	"errors"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/aman1205/StreamForge/internal/storage/pebble"
)

// ErrNoGroup is returned when reading as a group that was never created.
var ErrNoGroup = errors.New("eventlog: consumer group not found")

// CursorFrom is the sentinel "read past the cursor" position, mirroring the
// ">" id of Redis XREADGROUP.
const CursorFrom = ">"

// groupCursor is the persisted per-(stream, group) read position.
type groupCursor struct {
	LastDelivered string `json:"lastDelivered"`
	LastConsumer  string `json:"lastConsumer,omitempty"`
	CreatedAtMs   int64  `json:"createdAtMs"`
	UpdatedAtMs   int64  `json:"updatedAtMs"`
}

// CreateGroup registers a durable cursor for group on stream, starting at
// start. Idempotent: an existing cursor is left untouched.
func (s *Store) CreateGroup(stream, group string, start EntryID) error {
	key := keyGroup(stream, group)
	if ok, err := s.db.Has(key); err != nil {
		return err
	} else if ok {
		return nil
	}
	now := s.nowMs()
	cur := groupCursor{LastDelivered: start.String(), CreatedAtMs: now, UpdatedAtMs: now}
	b, err := json.Marshal(cur)
	if err != nil {
		return err
	}
	return s.db.Set(key, b)
}

// GroupCursor returns the last-delivered id for a group, or ErrNoGroup.
func (s *Store) GroupCursor(stream, group string) (EntryID, error) {
	cur, err := s.loadCursor(stream, group)
	if err != nil {
		return ZeroID, err
	}
	id, err := ParseID(cur.LastDelivered)
	if err != nil {
		return ZeroID, err
	}
	return id, nil
}

// ReadAsGroup reads up to limit entries for a consumer of a group.
//
// from == CursorFrom delivers entries past the group's cursor and advances
// the cursor to the last delivered id. Any explicit id re-reads entries
// strictly after it without touching the cursor.
func (s *Store) ReadAsGroup(stream, group, consumer, from string, limit int) ([]Entry, error) {
	if from != CursorFrom {
		start, err := ParseID(from)
		if err != nil {
			return nil, err
		}
		return s.ReadAfter(stream, start, limit)
	}

	cur, err := s.loadCursor(stream, group)
	if err != nil {
		return nil, err
	}
	start, err := ParseID(cur.LastDelivered)
	if err != nil {
		return nil, err
	}
	entries, err := s.ReadAfter(stream, start, limit)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		cur.LastDelivered = entries[len(entries)-1].ID.String()
		cur.LastConsumer = consumer
		cur.UpdatedAtMs = s.nowMs()
		b, err := json.Marshal(cur)
		if err != nil {
			return nil, err
		}
		if err := s.db.Set(keyGroup(stream, group), b); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// SetGroupCursor force-positions an existing group cursor, used by offset
// resets. Returns ErrNoGroup when the cursor was never created.
func (s *Store) SetGroupCursor(stream, group string, id EntryID) error {
	cur, err := s.loadCursor(stream, group)
	if err != nil {
		return err
	}
	cur.LastDelivered = id.String()
	cur.UpdatedAtMs = s.nowMs()
	b, err := json.Marshal(cur)
	if err != nil {
		return err
	}
	return s.db.Set(keyGroup(stream, group), b)
}

// RewindBefore moves a group cursor so the next cursor read delivers id
// again: the cursor lands on the entry immediately preceding id, or at the
// log start when id is the first entry. No-op when the cursor is already
// behind id.
func (s *Store) RewindBefore(stream, group string, id EntryID) error {
	cur, err := s.GroupCursor(stream, group)
	if err != nil {
		return err
	}
	if cur.Less(id) {
		return nil
	}
	prev := ZeroID
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: keyEntryPrefix(stream),
		UpperBound: keyEntry(stream, id),
	})
	if err != nil {
		return err
	}
	if iter.Last() {
		if p, ok := idFromEntryKey(iter.Key()); ok {
			prev = p
		}
	}
	if err := iter.Close(); err != nil {
		return err
	}
	return s.SetGroupCursor(stream, group, prev)
}

func (s *Store) loadCursor(stream, group string) (groupCursor, error) {
	b, err := s.db.Get(keyGroup(stream, group))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return groupCursor{}, ErrNoGroup
		}
		return groupCursor{}, err
	}
	var cur groupCursor
	if err := json.Unmarshal(b, &cur); err != nil {
		return groupCursor{}, err
	}
	return cur, nil
}
