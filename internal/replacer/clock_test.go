package replacer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/novakernel/bufkernel/internal/storage/common"
)

// fakePins is a minimal PinCounts backing store for testing the Clock in
// isolation from the buffer manager.
type fakePins struct {
	counts []uint32
}

func newFakePins(n int) *fakePins {
	return &fakePins{counts: make([]uint32, n)}
}

func (f *fakePins) IncPinCount(frame int) { f.counts[frame]++ }

func (f *fakePins) DecPinCount(frame int) uint32 {
	f.counts[frame]--
	return f.counts[frame]
}

func (f *fakePins) PinCount(frame int) uint32 { return f.counts[frame] }

func TestClock_PinThenUnpin_BecomesReferenced(t *testing.T) {
	pins := newFakePins(3)
	c := NewClock(3, pins)

	require.NoError(t, c.Pin(0))
	require.Equal(t, Pinned, c.State(0))
	require.EqualValues(t, 1, pins.PinCount(0))

	require.NoError(t, c.Unpin(0))
	require.Equal(t, Referenced, c.State(0))
	require.EqualValues(t, 0, pins.PinCount(0))
}

func TestClock_Unpin_NotPinnedIsError(t *testing.T) {
	pins := newFakePins(1)
	c := NewClock(1, pins)

	require.ErrorIs(t, c.Unpin(0), common.ErrPageNotPinned)
}

func TestClock_PickVictim_FirstCallClaimsFrameZero(t *testing.T) {
	pins := newFakePins(3)
	c := NewClock(3, pins)

	// All three start Available (zero value), so the first call should
	// claim frame 0 as the hand advances from -1.
	victim, err := c.PickVictim()
	require.NoError(t, err)
	require.Equal(t, 0, victim)
	require.Equal(t, Pinned, c.State(0))
	require.EqualValues(t, 1, pins.PinCount(0))
}

func TestClock_PickVictim_GivesReferencedASecondChance(t *testing.T) {
	pins := newFakePins(2)
	c := NewClock(2, pins)

	// Pin both, then unpin to make them Referenced.
	require.NoError(t, c.Pin(0))
	require.NoError(t, c.Pin(1))
	require.NoError(t, c.Unpin(0))
	require.NoError(t, c.Unpin(1))

	// First sweep demotes both Referenced -> Available; the second sweep
	// (within the 2*n bound) claims frame 0 first.
	victim, err := c.PickVictim()
	require.NoError(t, err)
	require.Equal(t, 0, victim)
}

func TestClock_PickVictim_AllPinnedFails(t *testing.T) {
	pins := newFakePins(2)
	c := NewClock(2, pins)

	require.NoError(t, c.Pin(0))
	require.NoError(t, c.Pin(1))

	_, err := c.PickVictim()
	require.ErrorIs(t, err, common.ErrBufferExceeded)
}

func TestClock_Free_RequiresAtMostOnePin(t *testing.T) {
	pins := newFakePins(1)
	c := NewClock(1, pins)

	require.NoError(t, c.Pin(0))
	pins.IncPinCount(0) // simulate a second outstanding pin

	require.ErrorIs(t, c.Free(0), common.ErrPagePinned)

	pins.DecPinCount(0)
	require.NoError(t, c.Free(0))
	require.Equal(t, Available, c.State(0))
}

func TestClock_NumUnpinnedFrames(t *testing.T) {
	pins := newFakePins(3)
	c := NewClock(3, pins)

	require.Equal(t, 3, c.NumUnpinnedFrames())

	require.NoError(t, c.Pin(0))
	require.Equal(t, 2, c.NumUnpinnedFrames())
}

func TestClock_Reset_ForcesAvailableEvenWhenPinned(t *testing.T) {
	pins := newFakePins(1)
	c := NewClock(1, pins)

	require.NoError(t, c.Pin(0))
	c.Reset(0)
	require.Equal(t, Available, c.State(0))
}

func TestClock_BadFrameNumber(t *testing.T) {
	pins := newFakePins(2)
	c := NewClock(2, pins)

	require.ErrorIs(t, c.Pin(-1), common.ErrBadBufFrameNo)
	require.ErrorIs(t, c.Pin(2), common.ErrBadBufFrameNo)
	require.ErrorIs(t, c.Unpin(5), common.ErrBadBufFrameNo)
	require.ErrorIs(t, c.Free(5), common.ErrBadBufFrameNo)
}
