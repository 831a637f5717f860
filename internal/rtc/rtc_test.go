package rtc

import (
	"testing"
	"time"
)

func TestNewClockStartsUnsynced(t *testing.T) {
	c := NewWithSource(func() uint64 { return 0 })

	if c.Synced() {
		t.Error("new clock should not be synced")
	}
	if !c.NeedsSync() {
		t.Error("new clock should need a sync")
	}
	if _, ok := c.Wall(); ok {
		t.Error("Wall must report not-ok before any sync")
	}
}

func TestNowMillisFollowsSource(t *testing.T) {
	var ms uint64
	c := NewWithSource(func() uint64 { return ms })

	for _, v := range []uint64{0, 1, 500, 12345} {
		ms = v
		if got := c.NowMillis(); got != v {
			t.Errorf("NowMillis = %d, want %d", got, v)
		}
	}
}

func TestSetFromUTC(t *testing.T) {
	ms := uint64(5000)
	c := NewWithSource(func() uint64 { return ms })

	ref := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	c.SetFromUTC(ref)

	if !c.Synced() {
		t.Fatal("clock should be synced after SetFromUTC")
	}
	if c.NeedsSync() {
		t.Fatal("clock should not need sync after SetFromUTC")
	}

	w, ok := c.Wall()
	if !ok {
		t.Fatal("Wall not ok after sync")
	}
	if !w.Equal(ref) {
		t.Errorf("Wall = %v, want %v", w, ref)
	}

	// Ten seconds of monotonic time pass; wall time tracks.
	ms += 10000
	w, _ = c.Wall()
	if want := ref.Add(10 * time.Second); !w.Equal(want) {
		t.Errorf("Wall after 10s = %v, want %v", w, want)
	}
}

func TestMarkNeedsSyncInvalidatesWall(t *testing.T) {
	c := NewWithSource(func() uint64 { return 0 })
	c.SetFromUTC(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))

	c.MarkNeedsSync()

	if c.Synced() {
		t.Error("MarkNeedsSync must clear synced")
	}
	if !c.NeedsSync() {
		t.Error("MarkNeedsSync must set needsSync")
	}
	if _, ok := c.Wall(); ok {
		t.Error("Wall must report not-ok after MarkNeedsSync")
	}
}
