package logfile

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// FakeStorage is an in-memory Storage that records every call in order, so
// tests can assert sequencing (sync-before-close, close-before-power-down).
type FakeStorage struct {
	mu sync.Mutex

	files   map[string]*bytes.Buffer
	offline bool

	// OpenError, if set, is returned by OpenAppend.
	OpenError error

	// Ops is the ordered trace of storage calls, entries like
	// "open gnsslog_00001.ubx", "sync", "close", "chtimes".
	Ops []string
}

// NewFakeStorage returns an empty, online fake store.
func NewFakeStorage() *FakeStorage {
	return &FakeStorage{files: map[string]*bytes.Buffer{}}
}

// SetOffline scripts storage presence.
func (s *FakeStorage) SetOffline(v bool) {
	s.mu.Lock()
	s.offline = v
	s.mu.Unlock()
}

// Seed pre-creates a file with contents, for sequence-scan tests.
func (s *FakeStorage) Seed(name string, contents []byte) {
	s.mu.Lock()
	s.files[name] = bytes.NewBuffer(append([]byte(nil), contents...))
	s.mu.Unlock()
}

// Contents returns a copy of a file's bytes.
func (s *FakeStorage) Contents(name string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[name]
	if !ok {
		return nil
	}
	return append([]byte(nil), b.Bytes()...)
}

func (s *FakeStorage) record(op string) {
	s.Ops = append(s.Ops, op)
}

// OpsTrace returns a copy of the recorded call order.
func (s *FakeStorage) OpsTrace() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Ops...)
}

// Available reports the scripted presence.
func (s *FakeStorage) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.offline
}

// OpenAppend opens or creates an in-memory buffer file.
func (s *FakeStorage) OpenAppend(name string) (File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OpenError != nil {
		return nil, s.OpenError
	}
	if s.offline {
		return nil, errors.New("storage offline")
	}
	buf, ok := s.files[name]
	if !ok {
		buf = &bytes.Buffer{}
		s.files[name] = buf
	}
	s.record("open " + name)
	return &fakeFile{store: s, name: name, buf: buf}, nil
}

// List returns the names of seeded and created files.
func (s *FakeStorage) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return nil, errors.New("storage offline")
	}
	names := make([]string, 0, len(s.files))
	for n := range s.files {
		names = append(names, n)
	}
	return names, nil
}

// Chtimes records the stamp call and the times applied.
func (s *FakeStorage) Chtimes(name string, _, mtime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("chtimes " + name + " " + mtime.UTC().Format(time.RFC3339))
	return nil
}

type fakeFile struct {
	store  *FakeStorage
	name   string
	buf    *bytes.Buffer
	closed bool
}

func (f *fakeFile) Write(p []byte) (int, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if f.closed {
		return 0, errors.New("write to closed file")
	}
	f.store.record("write " + f.name)
	return f.buf.Write(p)
}

func (f *fakeFile) Sync() error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if f.closed {
		return errors.New("sync on closed file")
	}
	f.store.record("sync " + f.name)
	return nil
}

func (f *fakeFile) Close() error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if f.closed {
		return errors.New("double close")
	}
	f.closed = true
	f.store.record("close " + f.name)
	return nil
}
