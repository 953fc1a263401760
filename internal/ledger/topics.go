package ledger

import (
	"context"
	"strings"

	"github.com/aman1205/StreamForge/pkg/fault"
)

// CreateTopic persists a topic row and its (workspace, name) unique index.
// A name collision within the workspace is a Conflict.
func (s *Store) CreateTopic(ctx context.Context, t *Topic) error {
	nameKey := keyTopicName(t.WorkspaceID, t.Name)
	exists, err := s.db.Has(nameKey)
	if err != nil {
		return fault.Unavailable(err, "topic index read")
	}
	if exists {
		return fault.Conflict("topic %q already exists in workspace %q", t.Name, t.WorkspaceID)
	}
	if t.CreatedAtMs == 0 {
		t.CreatedAtMs = s.nowMs()
	}
	return s.setJSONBatch(ctx, keyTopic(t.ID), t, nameKey)
}

// GetTopic returns the topic row by id.
func (s *Store) GetTopic(id string) (*Topic, error) {
	var t Topic
	ok, err := s.getJSON(keyTopic(id), &t)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fault.NotFound("topic %q not found", id)
	}
	return &t, nil
}

// GetTopicByName resolves a topic by its workspace-scoped name.
func (s *Store) GetTopicByName(workspaceID, name string) (*Topic, error) {
	topics, err := s.ListTopics(workspaceID)
	if err != nil {
		return nil, err
	}
	for _, t := range topics {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, fault.NotFound("topic %q not found in workspace %q", name, workspaceID)
}

// ListTopics returns all topics in a workspace, or every topic when
// workspaceID is empty.
func (s *Store) ListTopics(workspaceID string) ([]*Topic, error) {
	var out []*Topic
	err := s.db.ScanPrefix(keyTopicPrefix(), func(_, value []byte) bool {
		var t Topic
		if unmarshalRow(value, &t) && (workspaceID == "" || t.WorkspaceID == workspaceID) {
			out = append(out, &t)
		}
		return true
	})
	if err != nil {
		return nil, fault.Unavailable(err, "topic scan")
	}
	return out, nil
}

// UpdateTopic rewrites a topic row in place. The (workspace, name) pair is
// immutable; callers change retention or schema only.
func (s *Store) UpdateTopic(t *Topic) error {
	return s.setJSON(keyTopic(t.ID), t)
}

// DeleteTopic removes the topic row and its name index.
func (s *Store) DeleteTopic(ctx context.Context, id string) error {
	t, err := s.GetTopic(id)
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete(keyTopic(id), nil); err != nil {
		return err
	}
	if err := batch.Delete(keyTopicName(t.WorkspaceID, t.Name), nil); err != nil {
		return err
	}
	if err := s.db.CommitBatch(ctx, batch); err != nil {
		return fault.Unavailable(err, "topic delete")
	}
	return nil
}

// ValidTopicName reports whether a name is non-empty lowercase
// alphanumeric with hyphens.
func ValidTopicName(name string) bool {
	if name == "" || len(name) > 255 {
		return false
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return false
		}
	}
	return !strings.HasPrefix(name, "-") && !strings.HasSuffix(name, "-")
}
