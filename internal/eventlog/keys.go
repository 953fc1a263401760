package eventlog

import (
	"encoding/binary"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
//   - log/{stream}/m                       (stream metadata: last id, length)
//   - log/{stream}/e/{ms_be8}{seq_be8}     (entries)
//   - log/{stream}/g/{group}               (durable group cursors)
//
// Stream keys are the registry-computed "topic:{id}:partition:{n}" strings;
// they never contain '/'.

var (
	logPrefix  = []byte("log/")
	metaSuffix = []byte("/m")
	entrySeg   = []byte("/e/")
	groupSeg   = []byte("/g/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// keyMeta builds the stream metadata key.
func keyMeta(stream string) []byte {
	k := make([]byte, 0, len(logPrefix)+len(stream)+len(metaSuffix))
	k = append(k, logPrefix...)
	k = append(k, stream...)
	k = append(k, metaSuffix...)
	return k
}

// keyEntry builds an entry key with big-endian (ms, seq) for proper ordering.
func keyEntry(stream string, id EntryID) []byte {
	k := make([]byte, 0, len(logPrefix)+len(stream)+len(entrySeg)+16)
	k = append(k, logPrefix...)
	k = append(k, stream...)
	k = append(k, entrySeg...)
	k = appendBE8(k, uint64(id.Ms))
	k = appendBE8(k, id.Seq)
	return k
}

// keyEntryPrefix returns the range prefix covering all entries of a stream.
func keyEntryPrefix(stream string) []byte {
	k := make([]byte, 0, len(logPrefix)+len(stream)+len(entrySeg))
	k = append(k, logPrefix...)
	k = append(k, stream...)
	k = append(k, entrySeg...)
	return k
}

// keyGroup builds the durable cursor key for a consumer group.
func keyGroup(stream, group string) []byte {
	k := make([]byte, 0, len(logPrefix)+len(stream)+len(groupSeg)+len(group))
	k = append(k, logPrefix...)
	k = append(k, stream...)
	k = append(k, groupSeg...)
	k = append(k, group...)
	return k
}

// keyStreamPrefix covers every key of one stream: meta, entries, cursors.
func keyStreamPrefix(stream string) []byte {
	k := make([]byte, 0, len(logPrefix)+len(stream)+1)
	k = append(k, logPrefix...)
	k = append(k, stream...)
	k = append(k, '/')
	return k
}

// idFromEntryKey recovers the EntryID from the trailing 16 key bytes.
func idFromEntryKey(key []byte) (EntryID, bool) {
	if len(key) < 16 {
		return ZeroID, false
	}
	tail := key[len(key)-16:]
	return EntryID{
		Ms:  int64(binary.BigEndian.Uint64(tail[:8])),
		Seq: binary.BigEndian.Uint64(tail[8:]),
	}, true
}
