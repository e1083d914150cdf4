// Package storage implements the slotted-page record layout and the
// disk manager that serves fixed-size pages to it.
package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/novakernel/bufkernel/internal/storage/common"
)

// byte offsets of the fixed header fields within a page buffer.
const (
	offCurPage   = 0
	offPrevPage  = 4
	offNextPage  = 8
	offSlotCnt   = 12
	offUsedPtr   = 14
	offFreeSpace = 16
)

// SlottedPage is an in-memory view over one pinned frame's bytes. It owns
// no memory of its own: Init/InsertRecord/DeleteRecord and friends mutate
// the underlying buffer directly, so record bytes live only in the buffer
// manager's frame pool. GetRecord returns a newly allocated copy;
// ReturnRecord returns a slice of the buffer itself.
type SlottedPage struct {
	buf []byte
}

// NewSlottedPage wraps an existing, already-allocated page-sized buffer.
// It does not initialize the header; call Init for a fresh page.
func NewSlottedPage(buf []byte) *SlottedPage {
	if len(buf) != common.PageSize {
		panic(fmt.Sprintf("storage: slotted page buffer must be %d bytes, got %d", common.PageSize, len(buf)))
	}
	return &SlottedPage{buf: buf}
}

// Bytes returns the page's backing buffer.
func (p *SlottedPage) Bytes() []byte { return p.buf }

// Init resets the header for a freshly allocated or freshly evicted page.
func (p *SlottedPage) Init(pageNo common.PageID) {
	p.setCurPage(pageNo)
	p.setPrevPage(common.InvalidPageID)
	p.setNextPage(common.InvalidPageID)
	p.setSlotCnt(0)
	p.setUsedPtr(int16(common.PageSize - common.DPFIXED))
	p.setFreeSpace(int16(common.PageSize - common.DPFIXED + common.SlotEntrySize))
}

// PageID returns the page's own id.
func (p *SlottedPage) PageID() common.PageID { return p.curPage() }

// PrevPage/SetPrevPage and NextPage/SetNextPage are doubly-linked-list
// hooks owned by higher layers; the page only stores and returns them.
func (p *SlottedPage) PrevPage() common.PageID      { return p.prevPage() }
func (p *SlottedPage) SetPrevPage(id common.PageID) { p.setPrevPage(id) }
func (p *SlottedPage) NextPage() common.PageID      { return p.nextPage() }
func (p *SlottedPage) SetNextPage(id common.PageID) { p.setNextPage(id) }

// SlotCount returns the number of slot-directory entries, tombstones
// included up to the last live one.
func (p *SlottedPage) SlotCount() int { return int(p.slotCnt()) }

// AvailableSpace returns the number of free payload bytes an insert of
// a brand-new record (i.e. one that needs a fresh slot entry) could use.
func (p *SlottedPage) AvailableSpace() int16 {
	cnt := p.slotCnt()
	if cnt == 0 {
		return p.freeSpace() - common.SlotEntrySize
	}
	return p.freeSpace() - cnt*common.SlotEntrySize
}

// Empty reports whether the page has no live records.
func (p *SlottedPage) Empty() bool {
	cnt := int(p.slotCnt())
	for i := 0; i < cnt; i++ {
		if p.slotAt(i).Length != common.EmptySlot {
			return false
		}
	}
	return true
}

// InsertRecord copies rec into the page and returns its RID, or ErrDone
// if there isn't enough available space.
func (p *SlottedPage) InsertRecord(rec []byte) (common.RID, error) {
	recLen := int16(len(rec))
	if p.AvailableSpace() < recLen {
		return common.RID{}, common.ErrDone
	}

	cnt := int(p.slotCnt())
	slotNum := cnt
	for i := 0; i < cnt; i++ {
		if p.slotAt(i).Length == common.EmptySlot {
			slotNum = i
			break
		}
	}

	newUsed := p.usedPtr() - recLen
	p.setUsedPtr(newUsed)
	p.setSlotAt(slotNum, common.Slot{Offset: newUsed, Length: recLen})
	if slotNum == cnt {
		p.setSlotCnt(int16(cnt + 1))
	}

	start := common.HeaderSize + int(newUsed)
	copy(p.buf[start:start+len(rec)], rec)

	p.setFreeSpace(p.freeSpace() - recLen)

	return common.RID{PageNo: p.curPage(), SlotNo: int32(slotNum)}, nil
}

// DeleteRecord removes the record named by rid, compacting the data
// region and the slot directory's offsets. Returns ErrFail if rid names
// a missing or already-tombstoned slot.
func (p *SlottedPage) DeleteRecord(rid common.RID) error {
	cnt := int(p.slotCnt())
	if cnt == 0 || rid.SlotNo < 0 || int(rid.SlotNo) >= cnt {
		return common.ErrFail
	}
	s := p.slotAt(int(rid.SlotNo))
	if s.Length == common.EmptySlot {
		return common.ErrFail
	}

	off, length := s.Offset, s.Length
	used := p.usedPtr()

	// Shift the live data block [used, off) up by length bytes, toward
	// the high end of the page, tolerating overlap (copy is memmove-safe
	// for slices sharing a backing array).
	dst := common.HeaderSize + int(used) + int(length)
	src := common.HeaderSize + int(used)
	n := int(off - used)
	copy(p.buf[dst:dst+n], p.buf[src:src+n])

	p.setUsedPtr(used + length)
	p.setSlotAt(int(rid.SlotNo), common.Slot{Offset: 0, Length: common.EmptySlot})

	// Trim trailing tombstones.
	newCnt := cnt
	for newCnt > 0 && p.slotAt(newCnt-1).Length == common.EmptySlot {
		newCnt--
	}
	p.setSlotCnt(int16(newCnt))

	// Every live slot whose record lay below the deleted one's offset
	// moved up by length bytes; fix up its directory entry to match.
	for i := 0; i < newCnt; i++ {
		si := p.slotAt(i)
		if si.Length != common.EmptySlot && si.Offset < off {
			si.Offset += length
			p.setSlotAt(i, si)
		}
	}

	p.setFreeSpace(p.freeSpace() + length)
	return nil
}

// GetRecord copies out the record named by rid.
func (p *SlottedPage) GetRecord(rid common.RID) ([]byte, error) {
	s, err := p.validSlot(rid)
	if err != nil {
		return nil, err
	}
	start := common.HeaderSize + int(s.Offset)
	out := make([]byte, s.Length)
	copy(out, p.buf[start:start+int(s.Length)])
	return out, nil
}

// ReturnRecord returns an in-place view of the record named by rid,
// aliasing the page buffer rather than copying it out.
func (p *SlottedPage) ReturnRecord(rid common.RID) ([]byte, error) {
	s, err := p.validSlot(rid)
	if err != nil {
		return nil, err
	}
	start := common.HeaderSize + int(s.Offset)
	return p.buf[start : start+int(s.Length)], nil
}

// FirstRecord returns the RID of the first live slot, or ErrDone if the
// page is empty.
func (p *SlottedPage) FirstRecord() (common.RID, error) {
	if p.Empty() {
		return common.RID{}, common.ErrDone
	}
	cnt := int(p.slotCnt())
	for i := 0; i < cnt; i++ {
		if p.slotAt(i).Length != common.EmptySlot {
			return common.RID{PageNo: p.curPage(), SlotNo: int32(i)}, nil
		}
	}
	return common.RID{}, common.ErrDone
}

// NextRecord returns the RID of the next live slot after cur, in
// ascending slot-index order.
func (p *SlottedPage) NextRecord(cur common.RID) (common.RID, error) {
	if cur.PageNo != p.curPage() {
		return common.RID{}, common.ErrFail
	}
	if p.Empty() {
		return common.RID{}, common.ErrFail
	}
	cnt := int(p.slotCnt())
	for i := int(cur.SlotNo) + 1; i < cnt; i++ {
		if p.slotAt(i).Length != common.EmptySlot {
			return common.RID{PageNo: p.curPage(), SlotNo: int32(i)}, nil
		}
	}
	return common.RID{}, common.ErrDone
}

func (p *SlottedPage) validSlot(rid common.RID) (common.Slot, error) {
	cnt := int(p.slotCnt())
	if rid.PageNo != p.curPage() || cnt == 0 || rid.SlotNo < 0 || int(rid.SlotNo) >= cnt {
		return common.Slot{}, common.ErrFail
	}
	s := p.slotAt(int(rid.SlotNo))
	if s.Length == common.EmptySlot {
		return common.Slot{}, common.ErrFail
	}
	return s, nil
}

// ---- raw header/slot accessors ----

func (p *SlottedPage) curPage() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(p.buf[offCurPage:])))
}

func (p *SlottedPage) setCurPage(id common.PageID) {
	binary.LittleEndian.PutUint32(p.buf[offCurPage:], uint32(int32(id)))
}

func (p *SlottedPage) prevPage() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(p.buf[offPrevPage:])))
}

func (p *SlottedPage) setPrevPage(id common.PageID) {
	binary.LittleEndian.PutUint32(p.buf[offPrevPage:], uint32(int32(id)))
}

func (p *SlottedPage) nextPage() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(p.buf[offNextPage:])))
}

func (p *SlottedPage) setNextPage(id common.PageID) {
	binary.LittleEndian.PutUint32(p.buf[offNextPage:], uint32(int32(id)))
}

func (p *SlottedPage) slotCnt() int16 {
	return int16(binary.LittleEndian.Uint16(p.buf[offSlotCnt:]))
}

func (p *SlottedPage) setSlotCnt(n int16) {
	binary.LittleEndian.PutUint16(p.buf[offSlotCnt:], uint16(n))
}

func (p *SlottedPage) usedPtr() int16 {
	return int16(binary.LittleEndian.Uint16(p.buf[offUsedPtr:]))
}

func (p *SlottedPage) setUsedPtr(v int16) {
	binary.LittleEndian.PutUint16(p.buf[offUsedPtr:], uint16(v))
}

func (p *SlottedPage) freeSpace() int16 {
	return int16(binary.LittleEndian.Uint16(p.buf[offFreeSpace:]))
}

func (p *SlottedPage) setFreeSpace(v int16) {
	binary.LittleEndian.PutUint16(p.buf[offFreeSpace:], uint16(v))
}

func (p *SlottedPage) slotAt(i int) common.Slot {
	off := common.HeaderSize + i*common.SlotEntrySize
	return common.Slot{
		Offset: int16(binary.LittleEndian.Uint16(p.buf[off:])),
		Length: int16(binary.LittleEndian.Uint16(p.buf[off+2:])),
	}
}

func (p *SlottedPage) setSlotAt(i int, s common.Slot) {
	off := common.HeaderSize + i*common.SlotEntrySize
	binary.LittleEndian.PutUint16(p.buf[off:], uint16(s.Offset))
	binary.LittleEndian.PutUint16(p.buf[off+2:], uint16(s.Length))
}
