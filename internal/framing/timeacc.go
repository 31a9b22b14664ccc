package framing

// TimeAccumulator counts cycles since the last emitted record.
//
// Requests made during a cycle (Consume, ClearOverflow) take effect when the
// cycle is committed with Tick, mirroring a clocked register.
type TimeAccumulator struct {
	diff     uint32
	overflow bool

	consume bool
	clear   bool
}

// Delta returns the current elapsed count.
func (a *TimeAccumulator) Delta() uint32 { return a.diff }

// Len returns the minimal timestamp length for the current count.
func (a *TimeAccumulator) Len() uint8 { return EncodedLength(a.diff) }

// Overflow reports whether the counter has saturated since the last
// consume or clear.
func (a *TimeAccumulator) Overflow() bool { return a.overflow }

// Consume snapshots the counter and requests a reset at the end of the cycle.
// The reset also drops any pending overflow.
func (a *TimeAccumulator) Consume() (delta uint32, length uint8) {
	a.consume = true
	return a.diff, EncodedLength(a.diff)
}

// ClearOverflow requests the overflow flag be dropped at the end of the cycle.
// A saturation in the same cycle wins over the clear.
func (a *TimeAccumulator) ClearOverflow() {
	a.clear = true
}

// Tick commits one cycle.
func (a *TimeAccumulator) Tick() {
	switch {
	case a.consume:
		a.diff = 0
		a.overflow = false
	case a.diff == MaxDelta:
		a.overflow = true
		a.diff = 0
	default:
		a.diff++
		if a.clear {
			a.overflow = false
		}
	}
	a.consume = false
	a.clear = false
}

// TicksUntilOverflow returns how many further idle ticks raise the overflow
// flag.
func (a *TimeAccumulator) TicksUntilOverflow() uint64 {
	return uint64(MaxDelta-a.diff) + 1
}

// Advance commits n cycles. Requests made before the call apply to the first
// of them only; the remainder are idle ticks.
func (a *TimeAccumulator) Advance(n uint64) {
	if n == 0 {
		return
	}
	a.Tick()
	n--
	if n == 0 {
		return
	}
	if n >= a.TicksUntilOverflow() {
		a.overflow = true
	}
	// the counter wraps to zero on the saturating tick
	a.diff = uint32((uint64(a.diff) + n) & uint64(MaxDelta))
}

// Reset returns the accumulator to power-on state.
func (a *TimeAccumulator) Reset() {
	*a = TimeAccumulator{}
}
