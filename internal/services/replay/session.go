package replaysvc

import (
	"sync"
)

// Status is a replay session's lifecycle position.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Mode selects what slice of the log a session replays.
type Mode string

const (
	// FromOffset replays entries strictly after a given offset, until the
	// log end.
	FromOffset Mode = "FROM_OFFSET"
	// FromTimestamp replays entries at or after a wall-clock time,
	// open-ended. The start id is synthesized as "<ms>-0".
	FromTimestamp Mode = "FROM_TIMESTAMP"
	// TimeRange replays between two wall-clock times, both synthesized as
	// "<ms>-0" ids.
	TimeRange Mode = "TIME_RANGE"
	// OffsetRange replays (start, end]: after start, through end.
	OffsetRange Mode = "OFFSET_RANGE"
)

// Session is one replay run. All mutable fields are guarded by mu; the
// cond wakes the worker out of a pause.
type Session struct {
	ID      string `json:"id"`
	TopicID string `json:"topicId"`
	// DestinationTopicID remaps re-published entries onto another topic.
	// Empty means the source topic.
	DestinationTopicID string  `json:"destinationTopicId,omitempty"`
	Mode               Mode    `json:"mode"`
	StartOffset        string  `json:"startOffset,omitempty"`
	EndOffset          string  `json:"endOffset,omitempty"`
	FromTimestamp      int64   `json:"fromTimestampMs,omitempty"`
	ToTimestamp        int64   `json:"toTimestampMs,omitempty"`
	Speed              float64 `json:"speed"`

	mu   sync.Mutex
	cond *sync.Cond

	status      Status
	replayed    int64
	total       int64
	lastOffset  string
	errMsg      string
	startedAtMs int64
	endedAtMs   int64
}

// Snapshot is the externally visible state of a session.
type Snapshot struct {
	ID                 string  `json:"id"`
	TopicID            string  `json:"topicId"`
	DestinationTopicID string  `json:"destinationTopicId,omitempty"`
	Mode               Mode    `json:"mode"`
	StartOffset        string  `json:"startOffset,omitempty"`
	EndOffset          string  `json:"endOffset,omitempty"`
	FromTimestamp      int64   `json:"fromTimestampMs,omitempty"`
	ToTimestamp        int64   `json:"toTimestampMs,omitempty"`
	Speed              float64 `json:"speed"`
	Status        Status  `json:"status"`
	Replayed      int64   `json:"replayed"`
	Total         int64   `json:"total"`
	LastOffset    string  `json:"lastOffset,omitempty"`
	Error         string  `json:"error,omitempty"`
	StartedAtMs   int64   `json:"startedAtMs"`
	EndedAtMs     int64   `json:"endedAtMs,omitempty"`
}

// Snapshot copies the session state under its lock.
func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Snapshot{
		ID:                 s.ID,
		TopicID:            s.TopicID,
		DestinationTopicID: s.DestinationTopicID,
		Mode:               s.Mode,
		StartOffset:        s.StartOffset,
		EndOffset:          s.EndOffset,
		FromTimestamp:      s.FromTimestamp,
		ToTimestamp:        s.ToTimestamp,
		Speed:              s.Speed,
		Status:        s.status,
		Replayed:      s.replayed,
		Total:         s.total,
		LastOffset:    s.lastOffset,
		Error:         s.errMsg,
		StartedAtMs:   s.startedAtMs,
		EndedAtMs:     s.endedAtMs,
	}
}

// awaitRunnable blocks while the session is paused. Returns false once the
// session left the RUNNING/PAUSED states.
func (s *Session) awaitRunnable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.status == StatusPaused {
		s.cond.Wait()
	}
	return s.status == StatusRunning
}

func (s *Session) terminal() bool {
	switch s.status {
	case StatusCompleted, StatusFailed:
		return true
	}
	return false
}
