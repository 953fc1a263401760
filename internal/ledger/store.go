package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	pebblestore "github.com/aman1205/StreamForge/internal/storage/pebble"
	"github.com/aman1205/StreamForge/pkg/fault"
)

// Store is the relational ledger: JSON rows plus explicit index keys over
// the shared Pebble database. Writes that touch a row and its indexes go
// through a single batch.
type Store struct {
	db *pebblestore.DB

	// nowMs is swappable for tests.
	nowMs func() int64
}

// NewStore builds a ledger Store.
func NewStore(db *pebblestore.DB) *Store {
	return &Store{db: db, nowMs: func() int64 { return time.Now().UnixMilli() }}
}

// unmarshalRow decodes a scanned row value, skipping undecodable rows.
func unmarshalRow(value []byte, out any) bool {
	return json.Unmarshal(value, out) == nil
}

func (s *Store) getJSON(key []byte, out any) (bool, error) {
	b, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return false, nil
		}
		return false, fault.Unavailable(err, "ledger read")
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) setJSON(key []byte, row any) error {
	b, err := json.Marshal(row)
	if err != nil {
		return err
	}
	if err := s.db.Set(key, b); err != nil {
		return fault.Unavailable(err, "ledger write")
	}
	return nil
}

// setJSONBatch writes a row plus index keys atomically.
func (s *Store) setJSONBatch(ctx context.Context, rowKey []byte, row any, indexKeys ...[]byte) error {
	b, err := json.Marshal(row)
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(rowKey, b, nil); err != nil {
		return err
	}
	for _, ik := range indexKeys {
		if err := batch.Set(ik, nil, nil); err != nil {
			return err
		}
	}
	if err := s.db.CommitBatch(ctx, batch); err != nil {
		return fault.Unavailable(err, "ledger write")
	}
	return nil
}
