package execution

import (
	"encoding/binary"
	"hash/fnv"
	"time"
)

// BatchBlock is an opaque unit of ingested data belonging to one spec.
// The coordinator never inspects Payload; it only needs the block's
// size (for memory accounting), the time window it covers (for range
// pruning by a query engine), and a stable hash (for dedup). Start and
// End are zero for a block backing a non-time-partitioned spec.
type BatchBlock struct {
	SpecID  string
	Table   string
	Start   time.Time
	End     time.Time
	Payload []byte
}

// RawBytes returns the block's footprint in memory.
func (b *BatchBlock) RawBytes() int64 {
	return int64(len(b.Payload))
}

// Hash returns a stable hash of the block's identity and content,
// used to dedup blocks carrying the same spec ID.
func (b *BatchBlock) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(b.Table))
	h.Write([]byte{0})
	h.Write([]byte(b.SpecID))
	h.Write([]byte{0})
	var ts [16]byte
	binary.BigEndian.PutUint64(ts[:8], uint64(b.Start.UnixNano()))
	binary.BigEndian.PutUint64(ts[8:], uint64(b.End.UnixNano()))
	h.Write(ts[:])
	h.Write(b.Payload)
	return h.Sum64()
}

// Equal reports whether two blocks have the same identity and
// content.
func (b *BatchBlock) Equal(other *BatchBlock) bool {
	if other == nil {
		return false
	}
	return b.Hash() == other.Hash()
}
