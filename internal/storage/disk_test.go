package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/novakernel/bufkernel/internal/storage/common"
)

func newTestDiskManager(t *testing.T) *FileDiskManager {
	t.Helper()
	dir := t.TempDir()
	dm, err := NewFileDiskManager(filepath.Join(dir, "kernel.db"), common.PageSize)
	require.NoError(t, err)
	return dm
}

func TestFileDiskManager_AllocateIsContiguousAndSkipsMetadataPage(t *testing.T) {
	dm := newTestDiskManager(t)

	first, err := dm.AllocatePage(3)
	require.NoError(t, err)
	require.Greater(t, first, metadataPageID)

	next, err := dm.AllocatePage(1)
	require.NoError(t, err)
	require.Equal(t, first+3, next)
}

func TestFileDiskManager_WriteThenReadRoundTrips(t *testing.T) {
	dm := newTestDiskManager(t)

	id, err := dm.AllocatePage(1)
	require.NoError(t, err)

	buf := make([]byte, common.PageSize)
	buf[0] = 0xAB
	buf[common.PageSize-1] = 0xCD
	require.NoError(t, dm.WritePage(id, buf))

	got := make([]byte, common.PageSize)
	require.NoError(t, dm.ReadPage(id, got))
	require.Equal(t, buf, got)
}

func TestFileDiskManager_ReadUnwrittenPageIsZeroFilled(t *testing.T) {
	dm := newTestDiskManager(t)

	id, err := dm.AllocatePage(1)
	require.NoError(t, err)

	got := make([]byte, common.PageSize)
	for i := range got {
		got[i] = 1
	}
	require.NoError(t, dm.ReadPage(id, got))

	for _, b := range got {
		require.Zero(t, b)
	}
}

func TestFileDiskManager_DeallocateThenAllocateReusesFreedPage(t *testing.T) {
	dm := newTestDiskManager(t)

	id, err := dm.AllocatePage(1)
	require.NoError(t, err)
	require.NoError(t, dm.DeallocatePage(id))

	reused, err := dm.AllocatePage(1)
	require.NoError(t, err)
	require.Equal(t, id, reused)
}

func TestFileDiskManager_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kernel.db")

	dm1, err := NewFileDiskManager(path, common.PageSize)
	require.NoError(t, err)
	id, err := dm1.AllocatePage(1)
	require.NoError(t, err)
	buf := make([]byte, common.PageSize)
	buf[5] = 42
	require.NoError(t, dm1.WritePage(id, buf))
	require.NoError(t, dm1.Close())

	dm2, err := NewFileDiskManager(path, common.PageSize)
	require.NoError(t, err)
	defer dm2.Close()

	got := make([]byte, common.PageSize)
	require.NoError(t, dm2.ReadPage(id, got))
	require.Equal(t, byte(42), got[5])

	next, err := dm2.AllocatePage(1)
	require.NoError(t, err)
	require.Equal(t, id+1, next)
}
