// Package logfile owns the open data file: its name, its handle, and the
// guarantee that it is flushed and closed before storage ever loses power.
// It is the only code in the daemon that touches the log file. Mutating
// operations belong to the sequencer's control thread; the read-only status
// accessors are safe to call from the HTTP handlers.
package logfile

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/cobbett/gnsslogger/internal/rtc"
)

var (
	// ErrStorageUnavailable means the storage backend is absent or offline.
	// Logging is disabled for the session; everything else keeps running.
	ErrStorageUnavailable = errors.New("logfile: storage unavailable")

	// ErrFileOpenFailed means the open call itself failed (directory full,
	// filesystem error). Reported once, never retried in a tight loop.
	ErrFileOpenFailed = errors.New("logfile: file open failed")
)

// namePattern yields names under the 30-byte path limit that 8.3-era
// storage stacks impose.
const namePattern = "gnsslog_%05d.ubx"

// Handle describes the currently (or last) open log file.
type Handle struct {
	Name string
	Open bool

	file File
}

// Manager drives the log file lifecycle.
type Manager struct {
	store Storage
	clock *rtc.Clock
	log   *log.Logger

	mu           sync.Mutex
	handle       *Handle
	online       bool
	reportedFail bool
	bytesWritten int64
	rotations    int
}

// NewManager creates a manager over the given storage backend.
func NewManager(store Storage, clock *rtc.Clock, logger *log.Logger) *Manager {
	return &Manager{store: store, clock: clock, log: logger}
}

// EnsureOpen returns an open handle, creating or rotating the file as needed.
// With rotate true, or when no file has ever been opened, the next unused
// name in sequence is allocated (a directory scan, rare by construction).
// Otherwise the previously recorded name is reopened in append mode, leaving
// earlier bytes intact.
func (m *Manager) EnsureOpen(rotate bool) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.store.Available() {
		m.online = false
		m.reportFailure(ErrStorageUnavailable, "")
		return nil, ErrStorageUnavailable
	}

	if m.handle != nil && m.handle.Open && !rotate {
		return m.handle, nil
	}

	fresh := rotate || m.handle == nil
	var name string
	if fresh {
		n, err := m.nextSequenceName()
		if err != nil {
			m.online = false
			m.reportFailure(err, "")
			return nil, err
		}
		name = n
	} else {
		name = m.handle.Name
	}

	f, err := m.store.OpenAppend(name)
	if err != nil {
		m.online = false
		wrapped := fmt.Errorf("%w: %s: %v", ErrFileOpenFailed, name, err)
		m.reportFailure(ErrFileOpenFailed, wrapped.Error())
		return nil, wrapped
	}

	if rotate && m.handle != nil {
		m.rotations++
	}
	m.handle = &Handle{Name: name, Open: true, file: f}
	m.online = true
	m.reportedFail = false

	m.stampLocked()
	return m.handle, nil
}

// Write appends a record to the open file. The caller must hold an open
// handle from EnsureOpen.
func (m *Manager) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle == nil || !m.handle.Open {
		return 0, ErrStorageUnavailable
	}
	n, err := m.handle.file.Write(p)
	m.bytesWritten += int64(n)
	if err != nil {
		return n, fmt.Errorf("append %s: %w", m.handle.Name, err)
	}
	return n, nil
}

// CloseForSleep flushes pending writes, stamps the write time, and closes
// the file, retaining its name for reopen after wake. The sequencer must not
// de-power storage until this returns.
func (m *Manager) CloseForSleep() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle == nil || !m.handle.Open {
		return nil
	}

	if err := m.handle.file.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", m.handle.Name, err)
	}
	m.stampLocked()
	if err := m.handle.file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", m.handle.Name, err)
	}
	m.handle.Open = false
	m.handle.file = nil
	return nil
}

// RecordCreateTime stamps file times after creation. Timestamps are written
// only when the clock is synced; unsynchronized times are worse than the
// filesystem defaults they would overwrite.
func (m *Manager) RecordCreateTime() { m.stamp() }

// RecordAccessTime stamps file times after a reopen or clock sync.
func (m *Manager) RecordAccessTime() { m.stamp() }

// RecordWriteTime stamps file times after the final flush.
func (m *Manager) RecordWriteTime() { m.stamp() }

func (m *Manager) stamp() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stampLocked()
}

func (m *Manager) stampLocked() {
	if m.handle == nil {
		return
	}
	wall, ok := m.clock.Wall()
	if !ok {
		return
	}
	if err := m.store.Chtimes(m.handle.Name, wall, wall); err != nil && m.log != nil {
		m.log.Printf("logfile: stamp %s: %v", m.handle.Name, err)
	}
}

// Online reports whether logging is currently possible. False after a
// storage or open failure until a later EnsureOpen succeeds.
func (m *Manager) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online && m.handle != nil && m.handle.Open
}

// CurrentName returns the active (or retained) file name, empty if none.
func (m *Manager) CurrentName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == nil {
		return ""
	}
	return m.handle.Name
}

// BytesWritten returns the total bytes appended this session.
func (m *Manager) BytesWritten() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bytesWritten
}

// Rotations returns how many times a new file replaced an old one.
func (m *Manager) Rotations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rotations
}

// nextSequenceName scans existing files for the highest sequence number and
// returns the next one. O(existing files), run only on create or rotate.
// Called with mu held.
func (m *Manager) nextSequenceName() (string, error) {
	names, err := m.store.List()
	if err != nil {
		return "", fmt.Errorf("%w: list: %v", ErrStorageUnavailable, err)
	}

	max := 0
	for _, name := range names {
		var n int
		if _, err := fmt.Sscanf(name, namePattern, &n); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf(namePattern, max+1), nil
}

// reportFailure logs a failure once per outage rather than on every retry.
// Called with mu held.
func (m *Manager) reportFailure(err error, detail string) {
	if m.reportedFail || m.log == nil {
		return
	}
	m.reportedFail = true
	if detail != "" {
		m.log.Printf("logfile: logging disabled: %s", detail)
		return
	}
	m.log.Printf("logfile: logging disabled: %v", err)
}
