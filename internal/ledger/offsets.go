package ledger

import (
	"sort"

	"github.com/aman1205/StreamForge/pkg/fault"
)

// CommitOffset blindly upserts a group's committed cursor on one partition.
// Regressive commits are allowed: the committed value is the caller's
// statement of position, not a high-water mark.
func (s *Store) CommitOffset(groupID string, partition int, offset string) error {
	row := ConsumerOffset{
		GroupID:       groupID,
		Partition:     partition,
		Offset:        offset,
		CommittedAtMs: s.nowMs(),
	}
	return s.setJSON(keyOffset(groupID, partition), &row)
}

// GetOffset returns a group's committed cursor on one partition, or nil
// when nothing has been committed yet.
func (s *Store) GetOffset(groupID string, partition int) (*ConsumerOffset, error) {
	var row ConsumerOffset
	ok, err := s.getJSON(keyOffset(groupID, partition), &row)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &row, nil
}

// ListOffsets returns all committed cursors of a group sorted by partition.
func (s *Store) ListOffsets(groupID string) ([]*ConsumerOffset, error) {
	var out []*ConsumerOffset
	err := s.db.ScanPrefix(keyOffsetPrefix(groupID), func(_, value []byte) bool {
		var row ConsumerOffset
		if unmarshalRow(value, &row) {
			out = append(out, &row)
		}
		return true
	})
	if err != nil {
		return nil, fault.Unavailable(err, "offset scan")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Partition < out[j].Partition })
	return out, nil
}
