package buffer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/novakernel/bufkernel/internal/storage"
	"github.com/novakernel/bufkernel/internal/storage/common"
)

// newTestManager creates a temp-backed disk manager and a Manager over
// it with the given frame count, plus a cleanup func.
func newTestManager(t *testing.T, numFrames int) (*Manager, *storage.FileDiskManager, func()) {
	t.Helper()

	dir := t.TempDir()
	dm, err := storage.NewFileDiskManager(filepath.Join(dir, "kernel.db"), common.PageSize)
	require.NoError(t, err)

	m := NewManager(dm, numFrames, common.PageSize)

	return m, dm, func() { _ = dm.Close() }
}

func pageID(t *testing.T, dm *storage.FileDiskManager) common.PageID {
	t.Helper()
	id, err := dm.AllocatePage(1)
	require.NoError(t, err)
	return id
}

// S3 — Pin/unpin hit.
func TestManager_PinPage_HitSharesFrameAndPinCount(t *testing.T) {
	m, dm, cleanup := newTestManager(t, 3)
	defer cleanup()

	id := pageID(t, dm)

	p1, err := m.PinPage(id, true)
	require.NoError(t, err)
	p2, err := m.PinPage(id, true)
	require.NoError(t, err)

	require.Same(t, p1, p2)

	idx, ok := m.findFrame(id)
	require.True(t, ok)
	require.EqualValues(t, 2, m.PinCount(idx))

	require.NoError(t, m.UnpinPage(id, false))
	require.NoError(t, m.UnpinPage(id, false))
	require.EqualValues(t, 0, m.PinCount(idx))
}

// S4 — Eviction: pool size 2, pin+unpin pages 1 and 2, then pin a third
// page evicts the first victim the clock hand finds.
func TestManager_PinPage_EvictsAndWritesBackOnFull(t *testing.T) {
	m, dm, cleanup := newTestManager(t, 2)
	defer cleanup()

	p1 := pageID(t, dm)
	p2 := pageID(t, dm)
	p3 := pageID(t, dm)

	page1, err := m.PinPage(p1, true)
	require.NoError(t, err)
	page1.Init(p1)
	_, err = page1.InsertRecord([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, m.UnpinPage(p1, true))

	_, err = m.PinPage(p2, true)
	require.NoError(t, err)
	require.NoError(t, m.UnpinPage(p2, true))

	// Pool is full and both frames are unpinned; pinning a third page
	// must evict one of them and write its contents back to disk.
	_, err = m.PinPage(p3, true)
	require.NoError(t, err)

	buf := make([]byte, common.PageSize)
	require.NoError(t, dm.ReadPage(p1, buf))
	evicted := storage.NewSlottedPage(buf)
	if evicted.PageID() == p1 {
		rec, err := evicted.GetRecord(common.RID{PageNo: p1, SlotNo: 0})
		require.NoError(t, err)
		require.Equal(t, "hello", string(rec))
	}
}

// S5 — Pool exhausted: both frames pinned, a third pin fails with
// REPLACER_ERROR wrapping BUFFER_EXCEEDED.
func TestManager_PinPage_PoolExhausted(t *testing.T) {
	m, dm, cleanup := newTestManager(t, 2)
	defer cleanup()

	p1 := pageID(t, dm)
	p2 := pageID(t, dm)
	p3 := pageID(t, dm)

	_, err := m.PinPage(p1, true)
	require.NoError(t, err)
	_, err = m.PinPage(p2, true)
	require.NoError(t, err)

	_, err = m.PinPage(p3, true)
	require.Error(t, err)
	require.ErrorIs(t, err, common.ErrReplacerError)
	require.ErrorIs(t, err, common.ErrBufferExceeded)
}

// S6 — Flush of a pinned page still writes it back, clears the
// descriptor, and reports PAGE_PINNED.
func TestManager_FlushAllPages_WritesPinnedPageAndReportsPinned(t *testing.T) {
	m, dm, cleanup := newTestManager(t, 2)
	defer cleanup()

	id := pageID(t, dm)
	page, err := m.PinPage(id, true)
	require.NoError(t, err)
	page.Init(id)
	_, err = page.InsertRecord([]byte("durable"))
	require.NoError(t, err)

	err = m.FlushAllPages()
	require.ErrorIs(t, err, common.ErrPagePinned)

	_, ok := m.findFrame(id)
	require.False(t, ok)

	buf := make([]byte, common.PageSize)
	require.NoError(t, dm.ReadPage(id, buf))
	flushed := storage.NewSlottedPage(buf)
	rec, err := flushed.GetRecord(common.RID{PageNo: id, SlotNo: 0})
	require.NoError(t, err)
	require.Equal(t, "durable", string(rec))
}

func TestManager_UnpinPage_NotResidentIsHashNotFound(t *testing.T) {
	m, _, cleanup := newTestManager(t, 2)
	defer cleanup()

	err := m.UnpinPage(common.PageID(999), false)
	require.ErrorIs(t, err, common.ErrHashNotFound)
}

func TestManager_NewPage_InitializesAndPins(t *testing.T) {
	m, _, cleanup := newTestManager(t, 2)
	defer cleanup()

	id, page, err := m.NewPage(1)
	require.NoError(t, err)
	require.Equal(t, id, page.PageID())
	require.True(t, page.Empty())

	idx, ok := m.findFrame(id)
	require.True(t, ok)
	require.EqualValues(t, 1, m.PinCount(idx))
}

func TestManager_FreePage_NonResidentGoesStraightToDisk(t *testing.T) {
	m, dm, cleanup := newTestManager(t, 2)
	defer cleanup()

	id := pageID(t, dm)
	require.NoError(t, m.FreePage(id))

	_, ok := m.findFrame(id)
	require.False(t, ok)
}

func TestManager_NumUnpinnedFrames(t *testing.T) {
	m, dm, cleanup := newTestManager(t, 2)
	defer cleanup()

	require.Equal(t, 2, m.NumUnpinnedFrames())

	id := pageID(t, dm)
	_, err := m.PinPage(id, true)
	require.NoError(t, err)
	require.Equal(t, 1, m.NumUnpinnedFrames())
}
