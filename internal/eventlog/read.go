package eventlog

import (
	"github.com/cockroachdb/pebble"

	pebblestore "github.com/aman1205/StreamForge/internal/storage/pebble"
)

// ReadAfter returns up to limit entries with ids strictly greater than
// after. A zero after reads from the start of the stream. limit <= 0 means
// no limit.
func (s *Store) ReadAfter(stream string, after EntryID, limit int) ([]Entry, error) {
	prefix := keyEntryPrefix(stream)
	low := prefix
	if !after.IsZero() {
		// First key strictly past `after`: bump the seq component.
		low = keyEntry(stream, EntryID{Ms: after.Ms, Seq: after.Seq + 1})
	}
	return s.scan(low, pebblestore.PrefixUpperBound(prefix), limit)
}

// RangeLookup returns up to limit entries with from <= id <= to (XRANGE
// semantics, both bounds inclusive). A zero `to` means no upper bound.
func (s *Store) RangeLookup(stream string, from, to EntryID, limit int) ([]Entry, error) {
	prefix := keyEntryPrefix(stream)
	low := keyEntry(stream, from)
	var hi []byte
	if to.IsZero() {
		hi = pebblestore.PrefixUpperBound(prefix)
	} else {
		hi = keyEntry(stream, EntryID{Ms: to.Ms, Seq: to.Seq + 1})
	}
	return s.scan(low, hi, limit)
}

func (s *Store) scan(low, hi []byte, limit int) ([]Entry, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Entry
	for ok := iter.First(); ok; ok = iter.Next() {
		id, ok2 := idFromEntryKey(iter.Key())
		if !ok2 {
			continue
		}
		if e, ok3 := decodeEntry(id, iter.Value()); ok3 {
			out = append(out, e)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Error()
}

// CountAfter counts entries with ids strictly greater than after. Streams
// that were never appended to report ErrNoStream.
func (s *Store) CountAfter(stream string, after EntryID) (int64, error) {
	if _, err := s.Info(stream); err != nil {
		return 0, err
	}
	prefix := keyEntryPrefix(stream)
	low := prefix
	if !after.IsZero() {
		low = keyEntry(stream, EntryID{Ms: after.Ms, Seq: after.Seq + 1})
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: pebblestore.PrefixUpperBound(prefix)})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	var n int64
	for ok := iter.First(); ok; ok = iter.Next() {
		n++
	}
	return n, iter.Error()
}

// StreamInfo reports a stream's length and boundary ids.
type StreamInfo struct {
	Length  int64
	FirstID EntryID
	LastID  EntryID
}

// Info returns metadata for a stream. Streams that were never appended to
// report ErrNoStream; callers treat that as an empty log.
func (s *Store) Info(stream string) (StreamInfo, error) {
	st, err := s.state(stream)
	if err != nil {
		return StreamInfo{}, err
	}
	st.mu.Lock()
	meta := st.meta
	st.mu.Unlock()

	if meta.LastMs == 0 && meta.LastSeq == 0 && meta.Length == 0 {
		return StreamInfo{}, ErrNoStream
	}

	info := StreamInfo{Length: meta.Length, LastID: EntryID{Ms: meta.LastMs, Seq: meta.LastSeq}}
	// First id comes from the head of the entry range (trim moves it).
	first, err := s.scan(keyEntryPrefix(stream), pebblestore.PrefixUpperBound(keyEntryPrefix(stream)), 1)
	if err != nil {
		return StreamInfo{}, err
	}
	if len(first) > 0 {
		info.FirstID = first[0].ID
	}
	return info, nil
}
