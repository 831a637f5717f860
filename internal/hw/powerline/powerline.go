// Package powerline watches the supply-voltage comparator line and turns its
// falling edge into a software flag the rest of the daemon can poll.
// The real implementation uses the Linux GPIO character device; the fake
// implementation allows testing without hardware.
package powerline

import "sync/atomic"

// Line is the hardware abstraction for the power-loss input.
type Line interface {
	// Asserted returns true while the line reads "power absent".
	Asserted() (bool, error)

	// Subscribe registers fn to run on every power-loss edge. fn executes in
	// interrupt context: it must only flip flags, never perform I/O or block.
	Subscribe(fn func()) error

	// Close releases the line.
	Close() error
}

// Monitor owns the power-loss flag. The edge handler is the flag's only
// writer; Acknowledge is the only way to clear it and belongs to the
// power-down sequencer once it has acted on the observation.
type Monitor struct {
	line Line
	flag atomic.Bool
}

// NewMonitor wraps a line and subscribes its edge handler.
func NewMonitor(line Line) (*Monitor, error) {
	m := &Monitor{line: line}
	if err := line.Subscribe(m.onEdge); err != nil {
		return nil, err
	}
	return m, nil
}

// onEdge runs in interrupt context and does nothing but set the flag.
func (m *Monitor) onEdge() {
	m.flag.Store(true)
}

// Triggered reports whether a power-loss edge has been observed and not yet
// acknowledged. Safe to call from any checkpoint.
func (m *Monitor) Triggered() bool {
	return m.flag.Load()
}

// Acknowledge clears the flag. Only the power-down sequencer calls this, and
// only after it has completed the action the flag demanded.
func (m *Monitor) Acknowledge() {
	m.flag.Store(false)
}

// CheckMissedEdge reads the raw line level once. A line already asserted at
// boot means the edge fired before the handler was attached; treat that
// identically to receiving the interrupt.
func (m *Monitor) CheckMissedEdge() error {
	asserted, err := m.line.Asserted()
	if err != nil {
		return err
	}
	if asserted {
		m.flag.Store(true)
	}
	return nil
}

// LineAsserted exposes the raw level for the watchdog decision and for the
// wait-for-power-return path.
func (m *Monitor) LineAsserted() (bool, error) {
	return m.line.Asserted()
}

// Close releases the underlying line.
func (m *Monitor) Close() error {
	return m.line.Close()
}
