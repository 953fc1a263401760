package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	pebblestore "github.com/aman1205/StreamForge/internal/storage/pebble"
)

// ErrNoStream is returned when reading a stream that has never been
// appended to and has no metadata.
var ErrNoStream = errors.New("eventlog: stream not found")

// Entry is a single stored event.
type Entry struct {
	ID     EntryID
	Fields map[string]string
}

// streamMeta is the persisted per-stream record.
type streamMeta struct {
	LastMs  int64  `json:"lastMs"`
	LastSeq uint64 `json:"lastSeq"`
	Length  int64  `json:"length"`
}

// streamState is the in-memory append state for one stream.
type streamState struct {
	mu   sync.Mutex
	meta streamMeta
}

// Store is the append-only log store. Streams are addressed by opaque
// string keys; each stream is an independently ordered partition log.
type Store struct {
	db *pebblestore.DB

	mu      sync.Mutex
	streams map[string]*streamState

	// nowMs is swappable for tests.
	nowMs func() int64
}

// NewStore builds a Store over the shared Pebble database.
func NewStore(db *pebblestore.DB) *Store {
	return &Store{db: db, streams: map[string]*streamState{}, nowMs: func() int64 { return time.Now().UnixMilli() }}
}

// SetNowFunc overrides the id-allocation clock. Test hook.
func (s *Store) SetNowFunc(f func() int64) { s.nowMs = f }

// state loads (or lazily restores from metadata) the append state of a stream.
func (s *Store) state(stream string) (*streamState, error) {
	s.mu.Lock()
	st, ok := s.streams[stream]
	if !ok {
		st = &streamState{}
		if b, err := s.db.Get(keyMeta(stream)); err == nil && len(b) > 0 {
			_ = json.Unmarshal(b, &st.meta)
		}
		s.streams[stream] = st
	}
	s.mu.Unlock()
	return st, nil
}

// Append stores fields under a newly allocated id and returns it.
//
// IDs are monotonic per stream: same-millisecond appends increment the
// sequence, and a backwards clock reuses the last seen millisecond.
func (s *Store) Append(ctx context.Context, stream string, fields map[string]string) (EntryID, error) {
	st, err := s.state(stream)
	if err != nil {
		return ZeroID, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	ms := s.nowMs()
	if ms < st.meta.LastMs {
		ms = st.meta.LastMs
	}
	var seq uint64
	if ms == st.meta.LastMs {
		seq = st.meta.LastSeq + 1
	}
	id := EntryID{Ms: ms, Seq: seq}

	val, err := json.Marshal(fields)
	if err != nil {
		return ZeroID, err
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(keyEntry(stream, id), val, nil); err != nil {
		return ZeroID, err
	}
	meta := streamMeta{LastMs: ms, LastSeq: seq, Length: st.meta.Length + 1}
	mb, err := json.Marshal(meta)
	if err != nil {
		return ZeroID, err
	}
	if err := b.Set(keyMeta(stream), mb, nil); err != nil {
		return ZeroID, err
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return ZeroID, err
	}
	st.meta = meta
	return id, nil
}

// decodeEntry unmarshals a stored entry value.
func decodeEntry(id EntryID, val []byte) (Entry, bool) {
	var fields map[string]string
	if err := json.Unmarshal(val, &fields); err != nil {
		return Entry{}, false
	}
	return Entry{ID: id, Fields: fields}, true
}
