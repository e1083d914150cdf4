// Package buffer implements the buffer manager: a fixed-size pool of
// page frames fronting a disk manager, arbitrated by a Clock replacer.
package buffer

import (
	"errors"
	"fmt"
	"log/slog"

	lock "github.com/novakernel/bufkernel/internal/lock"
	"github.com/novakernel/bufkernel/internal/replacer"
	"github.com/novakernel/bufkernel/internal/storage"
	"github.com/novakernel/bufkernel/internal/storage/common"
)

const logPrefix = "buffer: "

type descriptor struct {
	pageNo common.PageID
	pin    *lock.RefCount
	page   *storage.SlottedPage // view over this frame's bytes, reused across pins
}

// Manager owns the frame pool and descriptor table, drives the Clock
// replacer, and delegates page I/O to a DiskManager. Operations assume
// a single-threaded caller; wrap a Manager in its own coarse mutex for
// concurrent use.
type Manager struct {
	disk     storage.DiskManager
	replacer *replacer.Clock

	frames   []descriptor
	pool     []byte
	pageSize int
}

// NewManager builds a Manager with numFrames frames of pageSize bytes
// each, all initially empty and Available.
func NewManager(disk storage.DiskManager, numFrames, pageSize int) *Manager {
	m := &Manager{
		disk:     disk,
		frames:   make([]descriptor, numFrames),
		pool:     make([]byte, numFrames*pageSize),
		pageSize: pageSize,
	}
	for i := range m.frames {
		m.frames[i] = descriptor{pageNo: common.InvalidPageID, pin: lock.NewRefCountAt(0), page: storage.NewSlottedPage(m.frameBuf(i))}
	}
	m.replacer = replacer.NewClock(numFrames, m)
	return m
}

// IncPinCount, DecPinCount, and PinCount implement replacer.PinCounts,
// the Clock's non-owning back-reference into this table.
func (m *Manager) IncPinCount(frame int) { m.frames[frame].pin.Inc() }

func (m *Manager) DecPinCount(frame int) uint32 {
	if m.frames[frame].pin.Dec() {
		return 0
	}
	return uint32(m.frames[frame].pin.Get())
}

func (m *Manager) PinCount(frame int) uint32 { return uint32(m.frames[frame].pin.Get()) }

func (m *Manager) frameBuf(i int) []byte {
	return m.pool[i*m.pageSize : (i+1)*m.pageSize]
}

func (m *Manager) findFrame(pageID common.PageID) (int, bool) {
	for i := range m.frames {
		if m.frames[i].pageNo == pageID {
			return i, true
		}
	}
	return -1, false
}

// PinPage returns the page named by pageID, loading it from disk on a
// miss. emptyHint skips the disk read for a page about to be
// overwritten wholesale (e.g. freshly allocated by NewPage).
func (m *Manager) PinPage(pageID common.PageID, emptyHint bool) (*storage.SlottedPage, error) {
	if idx, ok := m.findFrame(pageID); ok {
		if err := m.replacer.Pin(idx); err != nil {
			return nil, fmt.Errorf("buffer: pin page %d: %w", pageID, err)
		}
		slog.Debug(logPrefix+"pin hit", "pageID", pageID, "frame", idx)
		return m.frames[idx].page, nil
	}

	victim, err := m.replacer.PickVictim()
	if err != nil {
		slog.Debug(logPrefix+"pin miss, no victim available", "pageID", pageID)
		return nil, fmt.Errorf("buffer: pin page %d: %w: %w", pageID, common.ErrReplacerError, err)
	}

	oldPage := m.frames[victim].pageNo
	m.frames[victim].pageNo = pageID

	if oldPage != common.InvalidPageID {
		if err := m.disk.WritePage(oldPage, m.frameBuf(victim)); err != nil {
			// Roll back: restore the evicted occupant and release the
			// pin PickVictim took, so a retry finds consistent state.
			m.frames[victim].pageNo = oldPage
			_ = m.replacer.Unpin(victim)
			return nil, fmt.Errorf("buffer: writeback old page %d from frame %d: %w", oldPage, victim, err)
		}
	}

	if !emptyHint {
		if err := m.disk.ReadPage(pageID, m.frameBuf(victim)); err != nil {
			m.frames[victim].pageNo = common.InvalidPageID
			_ = m.replacer.Unpin(victim)
			return nil, fmt.Errorf("buffer: read page %d: %w", pageID, err)
		}
	}

	slog.Debug(logPrefix+"pin miss, loaded", "pageID", pageID, "frame", victim, "emptyHint", emptyHint)
	return m.frames[victim].page, nil
}

// UnpinPage releases one pin on pageID. dirtyHint is accepted but not
// consulted: writeback on eviction and flush is unconditional, and no
// dirty bit is tracked per frame.
func (m *Manager) UnpinPage(pageID common.PageID, dirtyHint bool) error {
	idx, ok := m.findFrame(pageID)
	if !ok {
		return fmt.Errorf("buffer: unpin page %d: %w", pageID, common.ErrHashNotFound)
	}
	if m.frames[idx].pageNo == common.InvalidPageID {
		return fmt.Errorf("buffer: unpin page %d: %w", pageID, common.ErrPageNotPinned)
	}
	_ = dirtyHint

	if err := m.replacer.Unpin(idx); err != nil {
		return fmt.Errorf("buffer: unpin page %d: %w", pageID, err)
	}
	slog.Debug(logPrefix+"unpin", "pageID", pageID, "frame", idx)
	return nil
}

// NewPage allocates count contiguous pages from the disk manager and
// pins+initializes the first one. On failure to pin, the freshly
// allocated run is deallocated before the error is returned.
func (m *Manager) NewPage(count int) (common.PageID, *storage.SlottedPage, error) {
	firstID, err := m.disk.AllocatePage(count)
	if err != nil {
		return common.InvalidPageID, nil, fmt.Errorf("buffer: allocate %d pages: %w", count, err)
	}

	page, err := m.PinPage(firstID, true)
	if err != nil {
		for i := 0; i < count; i++ {
			_ = m.disk.DeallocatePage(firstID + common.PageID(i))
		}
		return common.InvalidPageID, nil, fmt.Errorf("buffer: %w: pin freshly allocated page %d: %w", common.ErrBufferExceeded, firstID, err)
	}
	page.Init(firstID)

	slog.Debug(logPrefix+"new page", "firstID", firstID, "count", count)
	return firstID, page, nil
}

// FreePage releases pageID back to the disk manager. If the page is
// resident, it must have at most the caller's own pin outstanding.
func (m *Manager) FreePage(pageID common.PageID) error {
	idx, ok := m.findFrame(pageID)
	if !ok {
		if err := m.disk.DeallocatePage(pageID); err != nil {
			return fmt.Errorf("buffer: free page %d: %w", pageID, err)
		}
		return nil
	}

	if err := m.replacer.Free(idx); err != nil {
		return fmt.Errorf("buffer: free page %d: %w", pageID, err)
	}
	m.frames[idx].pageNo = common.InvalidPageID

	if err := m.disk.DeallocatePage(pageID); err != nil {
		return fmt.Errorf("buffer: free page %d: %w", pageID, err)
	}
	slog.Debug(logPrefix+"free page", "pageID", pageID, "frame", idx)
	return nil
}

// FlushPage writes pageID back to disk if resident.
func (m *Manager) FlushPage(pageID common.PageID) error {
	return m.flush(&pageID)
}

// FlushAllPages writes every resident page back to disk.
func (m *Manager) FlushAllPages() error {
	return m.flush(nil)
}

// flush walks the frame table, flushing everything matching only (or
// every occupied frame if only is nil). It never stops early on a
// pinned frame: every resident page is written and cleared, and
// PAGE_PINNED is reported only after the full walk, matching the
// original's privFlushPages best-effort-durability-on-shutdown shape.
func (m *Manager) flush(only *common.PageID) error {
	found := false
	anyPinned := false

	for i := range m.frames {
		f := &m.frames[i]
		if f.pageNo == common.InvalidPageID {
			continue
		}
		if only != nil && f.pageNo != *only {
			continue
		}
		found = true

		if m.PinCount(i) > 0 {
			anyPinned = true
		}

		if err := m.disk.WritePage(f.pageNo, m.frameBuf(i)); err != nil {
			return fmt.Errorf("buffer: flush page %d: %w", f.pageNo, err)
		}
		slog.Debug(logPrefix+"flushed frame", "pageID", f.pageNo, "frame", i)

		f.pageNo = common.InvalidPageID
		f.pin = lock.NewRefCountAt(0)
		m.replacer.Reset(i)
	}

	if only != nil && !found {
		return fmt.Errorf("buffer: flush page %d: %w", *only, common.ErrPageNotFound)
	}
	if anyPinned {
		slog.Debug(logPrefix+"flush completed with pinned frames still resident")
		return common.ErrPagePinned
	}
	return nil
}

// NumUnpinnedFrames reports how many frames currently carry no pins.
func (m *Manager) NumUnpinnedFrames() int {
	return m.replacer.NumUnpinnedFrames()
}

// Close flushes every resident page and closes the disk manager.
// A PAGE_PINNED result from the flush is not treated as fatal: shutdown
// proceeds best-effort, matching the original's destructor behavior.
func (m *Manager) Close() error {
	if err := m.FlushAllPages(); err != nil && !errors.Is(err, common.ErrPagePinned) {
		return fmt.Errorf("buffer: close: %w", err)
	}
	return m.disk.Close()
}
