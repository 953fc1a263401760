package eventlog

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/aman1205/StreamForge/internal/storage/pebble"
)

const trimBatchLimit = 1024

// TrimBefore deletes entries with id strictly less than minID (XTRIM MINID
// semantics) and returns how many were removed. Deletes are committed in
// batches so large trims do not build one giant batch.
func (s *Store) TrimBefore(ctx context.Context, stream string, minID EntryID) (int, error) {
	st, err := s.state(stream)
	if err != nil {
		return 0, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	prefix := keyEntryPrefix(stream)
	hi := keyEntry(stream, minID) // exclusive: everything below minID
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: hi})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	removed := 0
	ok := iter.First()
	for ok {
		b := s.db.NewBatch()
		n := 0
		for ok && n < trimBatchLimit {
			if err := b.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
				b.Close()
				return removed, err
			}
			n++
			ok = iter.Next()
		}
		if n == 0 {
			b.Close()
			break
		}
		meta := st.meta
		meta.Length -= int64(n)
		if meta.Length < 0 {
			meta.Length = 0
		}
		mb, err := json.Marshal(meta)
		if err != nil {
			b.Close()
			return removed, err
		}
		if err := b.Set(keyMeta(stream), mb, nil); err != nil {
			b.Close()
			return removed, err
		}
		if err := s.db.CommitBatch(ctx, b); err != nil {
			b.Close()
			return removed, err
		}
		b.Close()
		st.meta = meta
		removed += n
	}
	if removed >= trimBatchLimit {
		_ = s.db.CompactRange(prefix, pebblestore.PrefixUpperBound(prefix))
	}
	return removed, nil
}

// DropStream removes a stream entirely: entries, metadata, and every group
// cursor. Dropping a stream that never existed reports ErrNoStream.
func (s *Store) DropStream(ctx context.Context, stream string) error {
	st, err := s.state(stream)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	prefix := keyStreamPrefix(stream)
	hasMeta, err := s.db.Has(keyMeta(stream))
	if err != nil {
		return err
	}
	hasCursor := false
	if !hasMeta {
		// A cursor-only stream (created but never appended to) still drops.
		_ = s.db.ScanPrefix(prefix, func([]byte, []byte) bool {
			hasCursor = true
			return false
		})
		if !hasCursor {
			return ErrNoStream
		}
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: pebblestore.PrefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	b := s.db.NewBatch()
	defer b.Close()
	for ok := iter.First(); ok; ok = iter.Next() {
		if err := b.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
			return err
		}
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.streams, stream)
	s.mu.Unlock()
	return nil
}
