// Package replacer implements the buffer manager's page-replacement
// policy: Clock (second-chance) over a fixed number of frames.
package replacer

import (
	"log/slog"

	"github.com/novakernel/bufkernel/internal/storage/common"
)

const logPrefix = "replacer: "

// FrameState is a frame's replacement-eligibility state.
type FrameState int

const (
	Available FrameState = iota
	Referenced
	Pinned
)

func (s FrameState) String() string {
	switch s {
	case Available:
		return "available"
	case Referenced:
		return "referenced"
	case Pinned:
		return "pinned"
	default:
		return "unknown"
	}
}

// PinCounts is the back-reference the Clock holds into the buffer
// manager's frame-descriptor table, for pin-count bookkeeping only. It
// is implemented by the buffer manager and passed in at construction as
// a plain interface value, not an owning pointer, so the two types never
// form an ownership cycle.
type PinCounts interface {
	IncPinCount(frame int)
	DecPinCount(frame int) uint32
	PinCount(frame int) uint32
}

// Clock tracks per-frame replacement state and selects victims with the
// second-chance algorithm: a single rotating hand demotes Referenced
// frames to Available on its way past them, and evicts the first
// Available frame it finds, bounded at two full sweeps.
type Clock struct {
	pins  PinCounts
	state []FrameState
	hand  int
}

// NewClock builds a Clock over n frames, all initially Available.
func NewClock(n int, pins PinCounts) *Clock {
	return &Clock{
		pins:  pins,
		state: make([]FrameState, n),
		hand:  -1,
	}
}

func (c *Clock) inRange(frame int) bool {
	return frame >= 0 && frame < len(c.state)
}

func (c *Clock) badFrame(op string, frame int) error {
	// A caller handing the replacer a frame index outside the pool is a
	// bug in the buffer manager, not an expected runtime condition.
	slog.Error(logPrefix+"frame index out of range", "op", op, "frame", frame, "numFrames", len(c.state))
	return common.ErrBadBufFrameNo
}

// Pin marks frame as Pinned and increments its pin count.
func (c *Clock) Pin(frame int) error {
	if !c.inRange(frame) {
		return c.badFrame("pin", frame)
	}
	c.pins.IncPinCount(frame)
	c.state[frame] = Pinned
	slog.Debug(logPrefix+"pin", "frame", frame, "pinCount", c.pins.PinCount(frame))
	return nil
}

// Unpin decrements frame's pin count; once it reaches zero the frame
// becomes Referenced (eligible for a second-chance demotion, not
// immediate eviction).
func (c *Clock) Unpin(frame int) error {
	if !c.inRange(frame) {
		return c.badFrame("unpin", frame)
	}
	if c.pins.PinCount(frame) == 0 {
		return common.ErrPageNotPinned
	}
	if c.pins.DecPinCount(frame) == 0 {
		c.state[frame] = Referenced
	}
	slog.Debug(logPrefix+"unpin", "frame", frame, "pinCount", c.pins.PinCount(frame), "state", c.state[frame])
	return nil
}

// Free marks frame Available outright, for callers (freePage) that are
// dropping the frame's content rather than just releasing one pin.
// Requires at most one outstanding pin (the caller's own).
func (c *Clock) Free(frame int) error {
	if !c.inRange(frame) {
		return c.badFrame("free", frame)
	}
	if c.pins.PinCount(frame) > 1 {
		return common.ErrPagePinned
	}
	if c.pins.PinCount(frame) > 0 {
		c.pins.DecPinCount(frame)
	}
	c.state[frame] = Available
	slog.Debug(logPrefix+"free", "frame", frame)
	return nil
}

// Reset forces frame to Available regardless of its current state or
// pin count. Used by flushAllPages, which clears even pinned frames on
// an unconditional shutdown-style flush.
func (c *Clock) Reset(frame int) {
	if !c.inRange(frame) {
		_ = c.badFrame("reset", frame)
		return
	}
	c.state[frame] = Available
}

// PickVictim advances the clock hand, demoting Referenced frames to
// Available as it passes them, and returns the first Available frame it
// finds, newly Pinned with a pin count of one. Fails with
// ErrBufferExceeded after two full sweeps with no Available frame —
// every Referenced frame gets exactly one demotion chance before
// eviction is refused.
func (c *Clock) PickVictim() (int, error) {
	n := len(c.state)
	if n == 0 {
		return -1, common.ErrBufferExceeded
	}

	for steps := 0; steps < 2*n; steps++ {
		c.hand = (c.hand + 1) % n
		switch c.state[c.hand] {
		case Available:
			c.state[c.hand] = Pinned
			c.pins.IncPinCount(c.hand)
			slog.Debug(logPrefix+"picked victim", "frame", c.hand, "steps", steps+1)
			return c.hand, nil
		case Referenced:
			c.state[c.hand] = Available
		case Pinned:
			// no second chance for pinned frames; keep sweeping.
		}
	}

	slog.Debug(logPrefix+"no victim available", "numFrames", n)
	return -1, common.ErrBufferExceeded
}

// State returns frame's current replacement state.
func (c *Clock) State(frame int) FrameState {
	if !c.inRange(frame) {
		return Pinned
	}
	return c.state[frame]
}

// NumUnpinnedFrames returns the count of frames not currently Pinned.
func (c *Clock) NumUnpinnedFrames() int {
	n := 0
	for _, s := range c.state {
		if s != Pinned {
			n++
		}
	}
	return n
}
