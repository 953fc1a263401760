package replaysvc

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aman1205/StreamForge/internal/eventlog"
	"github.com/aman1205/StreamForge/internal/ledger"
	"github.com/aman1205/StreamForge/internal/metrics"
	topicsvc "github.com/aman1205/StreamForge/internal/services/topics"
	"github.com/aman1205/StreamForge/pkg/fault"
	logpkg "github.com/aman1205/StreamForge/pkg/log"
)

const (
	// replayPartition is the only partition sessions replay from.
	replayPartition = 0
	// batchSize bounds one read per loop turn.
	batchSize = 100
	// interBatchDelay paces batches so replays never saturate the node.
	interBatchDelay = 10 * time.Millisecond
	// maxGapDelay caps the simulated gap between two replayed events.
	maxGapDelay = 10 * time.Second
	// sessionMaxAge is how long finished sessions stay listable.
	sessionMaxAge = time.Hour
)

// fieldReplayed and fieldOriginalTS tag re-published entries.
const (
	fieldReplayed   = "replayed"
	fieldOriginalTS = "originalTimestamp"
)

// Service runs replay sessions: re-publishing historical entries of a
// topic's partition 0 back onto the stream at a configurable speed. It
// also holds point-in-time topic snapshots.
type Service struct {
	ledger *ledger.Store
	log    *eventlog.Store
	met    *metrics.Set
	logger logpkg.Logger

	mu        sync.Mutex
	sessions  map[string]*Session
	snapshots map[string]*TopicSnapshot
}

// New builds the replay service.
func New(ld *ledger.Store, log *eventlog.Store, met *metrics.Set, logger logpkg.Logger) *Service {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("replay"))
	}
	return &Service{
		ledger:    ld,
		log:       log,
		met:       met,
		logger:    logger,
		sessions:  map[string]*Session{},
		snapshots: map[string]*TopicSnapshot{},
	}
}

// StartParams configure a new replay session.
type StartParams struct {
	TopicID string
	// DestinationTopicID re-publishes onto another topic's partition 0
	// instead of back onto the source. Empty means the source topic.
	DestinationTopicID string
	Mode               Mode
	StartOffset        string
	EndOffset          string
	// FromTimestampMs and ToTimestampMs bound the timestamp modes.
	FromTimestampMs int64
	ToTimestampMs   int64
	// Speed is the time-compression factor: 2 replays twice as fast as the
	// original arrival rhythm, 0 means as fast as possible.
	Speed float64
}

// Start validates the mode parameters, registers a session, and launches
// its worker.
func (s *Service) Start(p StartParams) (*Snapshot, error) {
	if _, err := s.ledger.GetTopic(p.TopicID); err != nil {
		return nil, err
	}
	if p.DestinationTopicID != "" && p.DestinationTopicID != p.TopicID {
		if _, err := s.ledger.GetTopic(p.DestinationTopicID); err != nil {
			return nil, err
		}
	}
	if p.Speed < 0 {
		return nil, fault.InvalidArgument("speed must be >= 0")
	}

	var start, end eventlog.EntryID
	var err error
	inclusiveFirst := false
	switch p.Mode {
	case FromOffset:
		if p.StartOffset == "" {
			return nil, fault.InvalidArgument("mode %s requires a startOffset", p.Mode)
		}
		if start, err = eventlog.ParseID(p.StartOffset); err != nil {
			return nil, fault.InvalidArgument("malformed startOffset %q", p.StartOffset)
		}
	case FromTimestamp:
		if p.FromTimestampMs <= 0 {
			return nil, fault.InvalidArgument("mode %s requires a fromTimestamp", p.Mode)
		}
		start = eventlog.FromMs(p.FromTimestampMs)
		inclusiveFirst = true
	case TimeRange:
		if p.FromTimestampMs <= 0 || p.ToTimestampMs <= 0 {
			return nil, fault.InvalidArgument("mode %s requires both timestamps", p.Mode)
		}
		if p.ToTimestampMs <= p.FromTimestampMs {
			return nil, fault.InvalidArgument("toTimestamp must be greater than fromTimestamp")
		}
		start = eventlog.FromMs(p.FromTimestampMs)
		end = eventlog.FromMs(p.ToTimestampMs)
		inclusiveFirst = true
	case OffsetRange:
		if start, err = eventlog.ParseID(p.StartOffset); err != nil {
			return nil, fault.InvalidArgument("mode %s requires a valid startOffset", p.Mode)
		}
		if end, err = eventlog.ParseID(p.EndOffset); err != nil || end.IsZero() {
			return nil, fault.InvalidArgument("mode %s requires a valid endOffset", p.Mode)
		}
		if !start.Less(end) {
			return nil, fault.InvalidArgument("endOffset must be greater than startOffset")
		}
	default:
		return nil, fault.InvalidArgument("unknown replay mode %q", p.Mode)
	}

	sess := &Session{
		ID:                 "replay-" + uuid.NewString(),
		TopicID:            p.TopicID,
		DestinationTopicID: p.DestinationTopicID,
		Mode:               p.Mode,
		StartOffset:        p.StartOffset,
		EndOffset:          p.EndOffset,
		FromTimestamp:      p.FromTimestampMs,
		ToTimestamp:        p.ToTimestampMs,
		Speed:              p.Speed,
		status:             StatusRunning,
		startedAtMs:        time.Now().UnixMilli(),
	}
	sess.cond = sync.NewCond(&sess.mu)
	// Without a destination override a replay appends to the stream it
	// reads. Cap open-ended modes at the tail observed now so a session
	// never chases its own output.
	if end.IsZero() {
		if info, err := s.log.Info(topicsvc.StreamKey(p.TopicID, replayPartition)); err == nil {
			end = info.LastID
		}
	}
	if total, err := s.countRange(p.TopicID, start, end, inclusiveFirst); err == nil {
		sess.total = total
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	if s.met != nil {
		s.met.ReplaysActive.Inc()
	}
	go s.run(sess, start, end, inclusiveFirst)
	s.logger.Info("replay started",
		logpkg.Str("session", sess.ID), logpkg.Str("topic", p.TopicID), logpkg.Str("mode", string(p.Mode)))
	return sess.Snapshot(), nil
}

// EventCount counts entries strictly after fromOffset, bounded by
// toOffset when given. Paginated full scan; an O(n) progress estimator,
// not a fast path.
func (s *Service) EventCount(topicID, fromOffset, toOffset string) (int64, error) {
	if _, err := s.ledger.GetTopic(topicID); err != nil {
		return 0, err
	}
	from := eventlog.ZeroID
	if fromOffset != "" {
		var err error
		if from, err = eventlog.ParseID(fromOffset); err != nil {
			return 0, fault.InvalidArgument("malformed fromOffset %q", fromOffset)
		}
	}
	to := eventlog.ZeroID
	if toOffset != "" {
		var err error
		if to, err = eventlog.ParseID(toOffset); err != nil {
			return 0, fault.InvalidArgument("malformed toOffset %q", toOffset)
		}
	}
	return s.countRange(topicID, from, to, false)
}

// countRange walks partition 0 in batches counting entries in the range.
func (s *Service) countRange(topicID string, from, to eventlog.EntryID, inclusiveFirst bool) (int64, error) {
	stream := topicsvc.StreamKey(topicID, replayPartition)
	cursor := from
	var count int64
	for {
		var entries []eventlog.Entry
		var err error
		if inclusiveFirst {
			entries, err = s.log.RangeLookup(stream, cursor, to, batchSize)
			inclusiveFirst = false
		} else {
			entries, err = s.log.ReadAfter(stream, cursor, batchSize)
		}
		if err != nil {
			if errors.Is(err, eventlog.ErrNoStream) {
				return 0, nil
			}
			return 0, err
		}
		for _, le := range entries {
			if !to.IsZero() && to.Less(le.ID) {
				return count, nil
			}
			count++
			cursor = le.ID
		}
		if len(entries) < batchSize {
			return count, nil
		}
	}
}

// run is the session worker: batched reads, paced re-publishes, cursor in
// hand until the slice is exhausted or the session is stopped.
func (s *Service) run(sess *Session, start, end eventlog.EntryID, inclusiveFirst bool) {
	stream := topicsvc.StreamKey(sess.TopicID, replayPartition)
	dest := stream
	if sess.DestinationTopicID != "" {
		dest = topicsvc.StreamKey(sess.DestinationTopicID, replayPartition)
	}
	ctx := context.Background()
	cursor := start
	var prevTs int64

	for {
		if !sess.awaitRunnable() {
			s.finish(sess, sess.statusLocked(), "")
			return
		}

		var entries []eventlog.Entry
		var err error
		if inclusiveFirst {
			entries, err = s.log.RangeLookup(stream, cursor, end, batchSize)
			inclusiveFirst = false
		} else {
			entries, err = s.log.ReadAfter(stream, cursor, batchSize)
		}
		if errors.Is(err, eventlog.ErrNoStream) {
			s.finish(sess, StatusCompleted, "")
			return
		}
		if err != nil {
			s.finish(sess, StatusFailed, err.Error())
			return
		}

		done := false
		for _, le := range entries {
			if !end.IsZero() && end.Less(le.ID) {
				done = true
				break
			}
			if !sess.awaitRunnable() {
				s.finish(sess, sess.statusLocked(), "")
				return
			}
			if sess.Speed > 0 && prevTs > 0 && le.ID.Ms > prevTs {
				gap := time.Duration(float64(le.ID.Ms-prevTs)/sess.Speed) * time.Millisecond
				if gap > maxGapDelay {
					gap = maxGapDelay
				}
				time.Sleep(gap)
			}
			prevTs = le.ID.Ms

			fields := make(map[string]string, len(le.Fields)+2)
			for k, v := range le.Fields {
				fields[k] = v
			}
			fields[fieldReplayed] = "true"
			fields[fieldOriginalTS] = le.ID.String()
			if _, err := s.log.Append(ctx, dest, fields); err != nil {
				s.finish(sess, StatusFailed, err.Error())
				return
			}
			cursor = le.ID
			sess.mu.Lock()
			sess.replayed++
			sess.lastOffset = le.ID.String()
			sess.mu.Unlock()
			if s.met != nil {
				s.met.ReplayedEntries.Inc()
			}
		}
		if done || len(entries) < batchSize {
			s.finish(sess, StatusCompleted, "")
			return
		}
		time.Sleep(interBatchDelay)
	}
}

func (sess *Session) statusLocked() Status {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.status
}

func (s *Service) finish(sess *Session, st Status, errMsg string) {
	sess.mu.Lock()
	if st == StatusRunning || st == StatusPaused {
		st = StatusCompleted
	}
	sess.status = st
	sess.errMsg = errMsg
	sess.endedAtMs = time.Now().UnixMilli()
	replayed := sess.replayed
	sess.mu.Unlock()
	if s.met != nil {
		s.met.ReplaysActive.Dec()
	}
	s.logger.Info("replay finished",
		logpkg.Str("session", sess.ID), logpkg.Str("status", string(st)), logpkg.Int64("replayed", replayed))
}

func (s *Service) session(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fault.NotFound("replay session %q not found", id)
	}
	return sess, nil
}

// Get returns a session snapshot.
func (s *Service) Get(id string) (*Snapshot, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	return sess.Snapshot(), nil
}

// List snapshots every known session.
func (s *Service) List() []*Snapshot {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	out := make([]*Snapshot, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Snapshot())
	}
	return out
}

// Pause suspends a RUNNING session.
func (s *Service) Pause(id string) (*Snapshot, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	if sess.status != StatusRunning {
		st := sess.status
		sess.mu.Unlock()
		return nil, fault.InvalidArgument("cannot pause a %s session", st)
	}
	sess.status = StatusPaused
	sess.mu.Unlock()
	sess.cond.Broadcast()
	return sess.Snapshot(), nil
}

// Resume continues a PAUSED session.
func (s *Service) Resume(id string) (*Snapshot, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	if sess.status != StatusPaused {
		st := sess.status
		sess.mu.Unlock()
		return nil, fault.InvalidArgument("cannot resume a %s session", st)
	}
	sess.status = StatusRunning
	sess.mu.Unlock()
	sess.cond.Broadcast()
	return sess.Snapshot(), nil
}

// Stop ends a session unconditionally; a running or paused worker
// observes the change and exits, leaving the session COMPLETED.
func (s *Service) Stop(id string) (*Snapshot, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	if !sess.terminal() {
		sess.status = StatusCompleted
		sess.endedAtMs = time.Now().UnixMilli()
	}
	sess.mu.Unlock()
	sess.cond.Broadcast()
	return sess.Snapshot(), nil
}

// Cleanup drops terminal sessions older than the retention window. Runs
// on a maintenance ticker.
func (s *Service) Cleanup() int {
	cutoff := time.Now().Add(-sessionMaxAge).UnixMilli()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		sess.mu.Lock()
		drop := sess.terminal() && sess.endedAtMs > 0 && sess.endedAtMs < cutoff
		sess.mu.Unlock()
		if drop {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// PartitionRange is one partition's extent at snapshot time.
type PartitionRange struct {
	Partition   int    `json:"partition"`
	FirstOffset string `json:"firstOffset,omitempty"`
	LastOffset  string `json:"lastOffset,omitempty"`
	Length      int64  `json:"length"`
}

// TopicSnapshot is a named, point-in-time capture of a topic's offsets
// and entry counts. Metadata only; no entries are copied.
type TopicSnapshot struct {
	ID          string           `json:"id"`
	TopicID     string           `json:"topicId"`
	Name        string           `json:"name"`
	Partitions  []PartitionRange `json:"partitions"`
	TotalLength int64            `json:"totalLength"`
	CreatedAtMs int64            `json:"createdAtMs"`
}

// CreateSnapshot captures first/last offsets and lengths of every
// partition of a topic at this moment.
func (s *Service) CreateSnapshot(topicID, name string) (*TopicSnapshot, error) {
	if name == "" {
		return nil, fault.InvalidArgument("snapshot name is required")
	}
	t, err := s.ledger.GetTopic(topicID)
	if err != nil {
		return nil, err
	}
	snap := &TopicSnapshot{
		ID:          "snapshot-" + uuid.NewString(),
		TopicID:     topicID,
		Name:        name,
		CreatedAtMs: time.Now().UnixMilli(),
	}
	for p := 0; p < t.Partitions; p++ {
		pr := PartitionRange{Partition: p}
		if info, err := s.log.Info(topicsvc.StreamKey(topicID, p)); err == nil {
			pr.Length = info.Length
			if !info.FirstID.IsZero() {
				pr.FirstOffset = info.FirstID.String()
			}
			if !info.LastID.IsZero() {
				pr.LastOffset = info.LastID.String()
			}
		}
		snap.TotalLength += pr.Length
		snap.Partitions = append(snap.Partitions, pr)
	}
	s.mu.Lock()
	s.snapshots[snap.ID] = snap
	s.mu.Unlock()
	return snap, nil
}

// GetSnapshot returns one stored snapshot.
func (s *Service) GetSnapshot(id string) (*TopicSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[id]
	if !ok {
		return nil, fault.NotFound("snapshot %q not found", id)
	}
	return snap, nil
}

// ListSnapshots returns stored snapshots, newest first, optionally
// filtered by topic.
func (s *Service) ListSnapshots(topicID string) []*TopicSnapshot {
	s.mu.Lock()
	out := make([]*TopicSnapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		if topicID == "" || snap.TopicID == topicID {
			out = append(out, snap)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAtMs > out[j].CreatedAtMs })
	return out
}
