// Package page implements the on-disk and in-memory representation of a
// heap page: a bitmap occupancy header followed by fixed-size tuple slots.
package page

import (
	"bytes"

	"tuplestore/dberr"
	"tuplestore/transaction"
	"tuplestore/types"
)

// Store is the narrow interface HeapFile and the execution operators use to
// fetch a page without importing bufferpool directly, avoiding an import
// cycle between storage/heapfile and bufferpool.
type Store interface {
	GetPage(tid transaction.ID, pid types.PageID, perm types.Permission) (*HeapPage, error)
}

// HeapPage is a single fixed-size page of a HeapFile: a bitmap header
// tracking which slots are occupied, followed by numSlots fixed-width tuple
// slots. See NumSlots for the slot-count derivation.
type HeapPage struct {
	id       types.PageID
	desc     *types.TupleDesc
	pageSize int
	numSlots int

	header []byte // ceil(numSlots/8) bytes, bit i set iff slot i occupied
	slots  [][]byte

	dirtyBy     *transaction.ID
	beforeImage []byte
}

// NumSlots returns how many fixed-size tuple slots fit in a page of the
// given size for the given schema, accounting for one header bit per slot.
func NumSlots(pageSize int, desc *types.TupleDesc) int {
	tupleSize := desc.Size()
	// pageSize*8 bits total budget; each slot costs schemaSize*8 body bits
	// plus 1 header bit.
	return (pageSize * 8) / (tupleSize*8 + 1)
}

func headerBytes(numSlots int) int {
	return (numSlots + 7) / 8
}

// New parses pageSize bytes of raw page data into a HeapPage matching desc.
// The raw bytes become the page's initial before-image.
func New(id types.PageID, raw []byte, desc *types.TupleDesc, pageSize int) (*HeapPage, error) {
	if len(raw) != pageSize {
		return nil, dberr.Wrapf(dberr.ErrIO, "page %s: expected %d bytes, got %d", id, pageSize, len(raw))
	}
	numSlots := NumSlots(pageSize, desc)
	hlen := headerBytes(numSlots)
	tupleSize := desc.Size()

	p := &HeapPage{
		id:       id,
		desc:     desc,
		pageSize: pageSize,
		numSlots: numSlots,
		header:   append([]byte(nil), raw[:hlen]...),
		slots:    make([][]byte, numSlots),
	}
	off := hlen
	for i := 0; i < numSlots; i++ {
		p.slots[i] = append([]byte(nil), raw[off:off+tupleSize]...)
		off += tupleSize
	}
	p.beforeImage = append([]byte(nil), raw...)
	return p, nil
}

// ID returns the page's identifier.
func (p *HeapPage) ID() types.PageID {
	return p.id
}

// Schema returns the page's tuple schema.
func (p *HeapPage) Schema() *types.TupleDesc {
	return p.desc
}

// Serialize produces exactly pageSize bytes: header bitmap followed by every
// slot's raw bytes (occupied or not), padded with zeros to pageSize.
func (p *HeapPage) Serialize() []byte {
	buf := make([]byte, p.pageSize)
	copy(buf, p.header)
	off := len(p.header)
	tupleSize := p.desc.Size()
	for i := 0; i < p.numSlots; i++ {
		copy(buf[off:off+tupleSize], p.slots[i])
		off += tupleSize
	}
	return buf
}

func (p *HeapPage) isBitSet(i int) bool {
	byteIdx, bitIdx := i/8, uint(i%8)
	return p.header[byteIdx]&(1<<bitIdx) != 0
}

func (p *HeapPage) setBit(i int, v bool) {
	byteIdx, bitIdx := i/8, uint(i%8)
	if v {
		p.header[byteIdx] |= 1 << bitIdx
	} else {
		p.header[byteIdx] &^= 1 << bitIdx
	}
}

// IsSlotUsed reports whether slot i is occupied.
func (p *HeapPage) IsSlotUsed(i int) bool {
	return p.isBitSet(i)
}

// MarkSlotUsed sets or clears the occupancy bit for slot i.
func (p *HeapPage) MarkSlotUsed(i int, used bool) {
	p.setBit(i, used)
}

// NumSlotsTotal returns the total slot count computed at construction.
func (p *HeapPage) NumSlotsTotal() int {
	return p.numSlots
}

// GetNumEmptySlots counts unoccupied slots.
func (p *HeapPage) GetNumEmptySlots() int {
	n := 0
	for i := 0; i < p.numSlots; i++ {
		if !p.isBitSet(i) {
			n++
		}
	}
	return n
}

// InsertTuple assigns the lowest-indexed free slot to t, writes it, sets the
// occupancy bit, and stamps t's RecordID.
func (p *HeapPage) InsertTuple(t *types.Tuple) error {
	if !t.Desc().Equal(p.desc) {
		return dberr.Wrapf(dberr.ErrSchemaMismatch, "tuple schema does not match page %s", p.id)
	}
	slot := -1
	for i := 0; i < p.numSlots; i++ {
		if !p.isBitSet(i) {
			slot = i
			break
		}
	}
	if slot == -1 {
		return dberr.Wrapf(dberr.ErrPageFull, "page %s has no free slot", p.id)
	}
	var buf bytes.Buffer
	if err := t.WriteTo(&buf); err != nil {
		return dberr.Wrap(err, "serialize tuple")
	}
	body := buf.Bytes()
	tupleSize := p.desc.Size()
	slotBytes := make([]byte, tupleSize)
	copy(slotBytes, body)
	p.slots[slot] = slotBytes
	p.setBit(slot, true)
	t.SetRecordID(types.RecordID{Page: p.id, Slot: slot})
	return nil
}

// DeleteTuple clears the occupancy bit for t's slot. t must have been read
// from this page.
func (p *HeapPage) DeleteTuple(t *types.Tuple) error {
	rid := t.RecordID()
	if rid == nil || rid.Page != p.id {
		return dberr.Wrapf(dberr.ErrNotOnThisPage, "tuple not on page %s", p.id)
	}
	if rid.Slot < 0 || rid.Slot >= p.numSlots || !p.isBitSet(rid.Slot) {
		return dberr.Wrapf(dberr.ErrSlotEmpty, "slot %d on page %s is empty", rid.Slot, p.id)
	}
	p.setBit(rid.Slot, false)
	return nil
}

// Iterator returns a lazy, non-restartable sequence of the page's live
// tuples in slot-index order. Call Iterator again to restart.
func (p *HeapPage) Iterator() *Iterator {
	return &Iterator{page: p, next: 0}
}

// Iterator walks a HeapPage's occupied slots in order. Not safe for use
// after the page it was created from is mutated concurrently.
type Iterator struct {
	page *HeapPage
	next int
}

// HasNext reports whether another live tuple remains.
func (it *Iterator) HasNext() bool {
	for i := it.next; i < it.page.numSlots; i++ {
		if it.page.isBitSet(i) {
			return true
		}
	}
	return false
}

// Next returns the next live tuple, advancing the cursor past it.
func (it *Iterator) Next() (*types.Tuple, error) {
	for it.next < it.page.numSlots {
		i := it.next
		it.next++
		if it.page.isBitSet(i) {
			t, err := types.ReadTuple(it.page.desc, it.page.slots[i])
			if err != nil {
				return nil, dberr.Wrap(err, "decode tuple")
			}
			t.SetRecordID(types.RecordID{Page: it.page.id, Slot: i})
			return t, nil
		}
	}
	return nil, dberr.Wrapf(dberr.ErrNoSuchElement, "no more tuples on page %s", it.page.id)
}

// MarkDirty sets or clears the dirtying transaction. Clearing (flag=false)
// always sets dirtyBy to nil, matching the original's "clean" semantics.
func (p *HeapPage) MarkDirty(flag bool, tid transaction.ID) {
	if flag {
		id := tid
		p.dirtyBy = &id
	} else {
		p.dirtyBy = nil
	}
}

// IsDirty returns the dirtying transaction id, or nil if the page is clean.
func (p *HeapPage) IsDirty() *transaction.ID {
	return p.dirtyBy
}

// GetBeforeImage returns a HeapPage constructed from the stored byte
// snapshot, matching the original's semantics of returning a Page, not raw
// bytes.
func (p *HeapPage) GetBeforeImage() (*HeapPage, error) {
	return New(p.id, p.beforeImage, p.desc, p.pageSize)
}

// SetBeforeImage overwrites the snapshot with the page's current bytes.
func (p *HeapPage) SetBeforeImage() {
	p.beforeImage = p.Serialize()
}
