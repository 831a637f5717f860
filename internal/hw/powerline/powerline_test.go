package powerline

import (
	"errors"
	"testing"
)

func TestEdgeSetsFlag(t *testing.T) {
	line := NewFakeLine()
	m, err := NewMonitor(line)
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}

	if m.Triggered() {
		t.Fatal("flag set before any edge")
	}

	line.Drop()
	if !m.Triggered() {
		t.Fatal("flag not set after edge")
	}

	// The flag survives the supply returning; only Acknowledge clears it.
	line.Restore()
	if !m.Triggered() {
		t.Fatal("flag cleared by level change, must persist until acknowledged")
	}

	m.Acknowledge()
	if m.Triggered() {
		t.Fatal("flag still set after Acknowledge")
	}
}

func TestMissedEdgeGuard(t *testing.T) {
	line := NewFakeLine()
	// Level already asserted before the handler was attached: no edge fires.
	line.SetAsserted(true)

	m, err := NewMonitor(line)
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	if m.Triggered() {
		t.Fatal("no edge fired yet, flag should be clear")
	}

	if err := m.CheckMissedEdge(); err != nil {
		t.Fatalf("CheckMissedEdge: %v", err)
	}
	if !m.Triggered() {
		t.Fatal("asserted level at boot must be treated as a received edge")
	}
}

func TestMissedEdgeGuardHealthySupply(t *testing.T) {
	line := NewFakeLine()
	m, _ := NewMonitor(line)

	if err := m.CheckMissedEdge(); err != nil {
		t.Fatalf("CheckMissedEdge: %v", err)
	}
	if m.Triggered() {
		t.Fatal("healthy level must not set the flag")
	}
}

func TestMissedEdgeGuardReadError(t *testing.T) {
	line := NewFakeLine()
	m, _ := NewMonitor(line)

	line.ReadError = errors.New("line read failed")
	if err := m.CheckMissedEdge(); err == nil {
		t.Fatal("expected read error to propagate")
	}
	if m.Triggered() {
		t.Fatal("flag must not be set on a failed read")
	}
}

func TestLineAsserted(t *testing.T) {
	line := NewFakeLine()
	m, _ := NewMonitor(line)

	if v, _ := m.LineAsserted(); v {
		t.Fatal("line asserted while supply healthy")
	}
	line.SetAsserted(true)
	if v, _ := m.LineAsserted(); !v {
		t.Fatal("line not asserted after SetAsserted")
	}
}
