package ledger

import (
	"bytes"
	"context"
	"sort"

	"github.com/aman1205/StreamForge/pkg/fault"
)

// CreateGroup persists a consumer-group row with its (topic, name) unique
// index and a topic listing index.
func (s *Store) CreateGroup(ctx context.Context, g *ConsumerGroup) error {
	nameKey := keyGroupName(g.TopicID, g.Name)
	exists, err := s.db.Has(nameKey)
	if err != nil {
		return fault.Unavailable(err, "group index read")
	}
	if exists {
		return fault.Conflict("consumer group %q already exists on topic %q", g.Name, g.TopicID)
	}
	if g.CreatedAtMs == 0 {
		g.CreatedAtMs = s.nowMs()
	}
	return s.setJSONBatch(ctx, keyGroupRow(g.ID), g, nameKey, keyGroupTopic(g.TopicID, g.ID))
}

// GetGroup returns the consumer-group row by id.
func (s *Store) GetGroup(id string) (*ConsumerGroup, error) {
	var g ConsumerGroup
	ok, err := s.getJSON(keyGroupRow(id), &g)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fault.NotFound("consumer group %q not found", id)
	}
	return &g, nil
}

// ListGroupsByTopic returns all consumer groups on a topic via the listing
// index.
func (s *Store) ListGroupsByTopic(topicID string) ([]*ConsumerGroup, error) {
	prefix := keyGroupTopicPrefix(topicID)
	var ids []string
	err := s.db.ScanPrefix(prefix, func(key, _ []byte) bool {
		ids = append(ids, string(bytes.TrimPrefix(key, prefix)))
		return true
	})
	if err != nil {
		return nil, fault.Unavailable(err, "group scan")
	}
	out := make([]*ConsumerGroup, 0, len(ids))
	for _, id := range ids {
		g, err := s.GetGroup(id)
		if err != nil {
			if fault.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// DeleteGroup removes the group row, its indexes, and all dependent rows
// (consumers, offsets, acks) in one batch.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	g, err := s.GetGroup(id)
	if err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete(keyGroupRow(id), nil); err != nil {
		return err
	}
	if err := batch.Delete(keyGroupName(g.TopicID, g.Name), nil); err != nil {
		return err
	}
	if err := batch.Delete(keyGroupTopic(g.TopicID, id), nil); err != nil {
		return err
	}
	for _, prefix := range [][]byte{keyConsumerPrefix(id), keyOffsetPrefix(id), keyAckGroupPrefix(id)} {
		err := s.db.ScanPrefix(prefix, func(key, _ []byte) bool {
			// Keys are stable; collect into the batch directly.
			_ = batch.Delete(append([]byte(nil), key...), nil)
			return true
		})
		if err != nil {
			return fault.Unavailable(err, "group cascade scan")
		}
	}
	if err := s.db.CommitBatch(ctx, batch); err != nil {
		return fault.Unavailable(err, "group delete")
	}
	return nil
}

// UpsertConsumer writes a consumer row keyed by (group, consumerId).
func (s *Store) UpsertConsumer(c *Consumer) error {
	return s.setJSON(keyConsumer(c.GroupID, c.ConsumerID), c)
}

// GetConsumer returns one consumer row of a group.
func (s *Store) GetConsumer(groupID, consumerID string) (*Consumer, error) {
	var c Consumer
	ok, err := s.getJSON(keyConsumer(groupID, consumerID), &c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fault.NotFound("consumer %q not found in group %q", consumerID, groupID)
	}
	return &c, nil
}

// ListConsumers returns a group's consumers sorted by registration order,
// oldest first, ties broken by consumer id.
func (s *Store) ListConsumers(groupID string) ([]*Consumer, error) {
	var out []*Consumer
	err := s.db.ScanPrefix(keyConsumerPrefix(groupID), func(_, value []byte) bool {
		var c Consumer
		if unmarshalRow(value, &c) {
			out = append(out, &c)
		}
		return true
	})
	if err != nil {
		return nil, fault.Unavailable(err, "consumer scan")
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAtMs != out[j].CreatedAtMs {
			return out[i].CreatedAtMs < out[j].CreatedAtMs
		}
		return out[i].ConsumerID < out[j].ConsumerID
	})
	return out, nil
}

// DeleteConsumer removes one consumer row.
func (s *Store) DeleteConsumer(groupID, consumerID string) error {
	if err := s.db.Delete(keyConsumer(groupID, consumerID)); err != nil {
		return fault.Unavailable(err, "consumer delete")
	}
	return nil
}
