package eventlog

import (
	"fmt"
	"strconv"
	"strings"
)

// EntryID identifies a log entry within one stream. The wire form is
// "<ms>-<seq>", ordered first by the millisecond timestamp and then by the
// per-millisecond sequence. Numeric order and the order of the encoded
// storage keys are identical.
type EntryID struct {
	Ms  int64
	Seq uint64
}

// ZeroID is the position before the first entry of any stream.
var ZeroID = EntryID{}

// String returns the canonical "<ms>-<seq>" form.
func (id EntryID) String() string {
	return strconv.FormatInt(id.Ms, 10) + "-" + strconv.FormatUint(id.Seq, 10)
}

// IsZero reports whether id is the zero position.
func (id EntryID) IsZero() bool { return id.Ms == 0 && id.Seq == 0 }

// Compare returns -1, 0, or 1 ordering ids by (Ms, Seq).
func (id EntryID) Compare(other EntryID) int {
	if id.Ms != other.Ms {
		if id.Ms < other.Ms {
			return -1
		}
		return 1
	}
	if id.Seq != other.Seq {
		if id.Seq < other.Seq {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports id < other.
func (id EntryID) Less(other EntryID) bool { return id.Compare(other) < 0 }

// After reports id > other.
func (id EntryID) After(other EntryID) bool { return id.Compare(other) > 0 }

// FromMs synthesizes the smallest id at the given millisecond ("<ms>-0"),
// used for timestamp-based replay starts and retention cutoffs.
func FromMs(ms int64) EntryID { return EntryID{Ms: ms} }

// ParseID parses "<ms>-<seq>". The bare strings "0" and "" parse to ZeroID,
// mirroring the "start of stream" convention of callers.
func ParseID(s string) (EntryID, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return ZeroID, nil
	}
	dash := strings.IndexByte(s, '-')
	if dash <= 0 || dash == len(s)-1 {
		return ZeroID, fmt.Errorf("eventlog: malformed id %q", s)
	}
	ms, err := strconv.ParseInt(s[:dash], 10, 64)
	if err != nil || ms < 0 {
		return ZeroID, fmt.Errorf("eventlog: malformed id %q", s)
	}
	seq, err := strconv.ParseUint(s[dash+1:], 10, 64)
	if err != nil {
		return ZeroID, fmt.Errorf("eventlog: malformed id %q", s)
	}
	return EntryID{Ms: ms, Seq: seq}, nil
}
