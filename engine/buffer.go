package engine

import (
	"cmp"
	"slices"
	"time"

	"github.com/pithecene-io/mediasync/types"
)

// scheduledPacket is an accepted packet waiting in the reorder buffer.
type scheduledPacket struct {
	pkt             *types.MediaPacket
	receivedAt      time.Time
	scheduledPlayAt time.Time
}

// reorderBuffer holds scheduled packets in ascending seq order.
// Depths are single digits to low tens, so a sorted slice is enough.
// Not safe for concurrent use; guarded by the engine mutex.
type reorderBuffer struct {
	items []*scheduledPacket
}

func compareSeq(sp *scheduledPacket, seq int64) int {
	return cmp.Compare(sp.pkt.Seq, seq)
}

// insert adds sp in seq order. Returns false if the seq is already held.
func (b *reorderBuffer) insert(sp *scheduledPacket) bool {
	i, found := slices.BinarySearchFunc(b.items, sp.pkt.Seq, compareSeq)
	if found {
		return false
	}
	b.items = slices.Insert(b.items, i, sp)
	return true
}

func (b *reorderBuffer) contains(seq int64) bool {
	_, found := slices.BinarySearchFunc(b.items, seq, compareSeq)
	return found
}

// peek returns the lowest-seq packet, or nil.
func (b *reorderBuffer) peek() *scheduledPacket {
	if len(b.items) == 0 {
		return nil
	}
	return b.items[0]
}

func (b *reorderBuffer) pop() *scheduledPacket {
	sp := b.peek()
	if sp == nil {
		return nil
	}
	b.items[0] = nil
	b.items = b.items[1:]
	return sp
}

func (b *reorderBuffer) len() int {
	return len(b.items)
}

func (b *reorderBuffer) clear() {
	b.items = nil
}
