// Package eventlog implements StreamForge's append-only log store.
//
// # Overview
//
// Streams are addressed by opaque string keys (the topic registry computes
// "topic:{id}:partition:{n}") and persisted in Pebble. Keys are
// lexicographically ordered for efficient range scans:
//   - log/{stream}/m                    (stream metadata: last id, length)
//   - log/{stream}/e/{ms_be8}{seq_be8}  (entries)
//   - log/{stream}/g/{group}            (durable group cursors)
//
// Entry ids are "<ms>-<seq>" with a per-stream monotonic allocator: appends
// in the same millisecond bump the sequence, and a backwards clock reuses
// the last observed millisecond. Lexical order of the storage keys equals
// numeric id order, so every "after/before" comparison is a plain range
// scan.
//
// API surface (internal)
//
//	st := eventlog.NewStore(db)
//	id, _ := st.Append(ctx, stream, map[string]string{"payload": "..."})
//
//	// Strictly-after reads (XREAD) and inclusive ranges (XRANGE)
//	entries, _ := st.ReadAfter(stream, id, 100)
//	entries, _ = st.RangeLookup(stream, from, to, 100)
//
//	// Durable group cursors (XGROUP/XREADGROUP)
//	_ = st.CreateGroup(stream, "workers", eventlog.ZeroID)
//	entries, _ = st.ReadAsGroup(stream, "workers", "c1", eventlog.CursorFrom, 100)
//
//	// Retention
//	removed, _ := st.TrimBefore(ctx, stream, eventlog.FromMs(cutoffMs))
//	info, _ := st.Info(stream)
package eventlog
