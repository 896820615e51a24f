package radiostate

import "testing"

func strp(s string) *string   { return &s }
func intp(i int) *int         { return &i }
func boolp(b bool) *bool      { return &b }
func f64p(f float64) *float64 { return &f }

func TestWriteFallsBackToPreviousFields(t *testing.T) {
	tbl := New(700, func(string) bool { return true })

	if !tbl.Write("alice", Patch{TrackName: strp("song-a"), IsPlaying: boolp(true)}, 0) {
		t.Fatal("first write should succeed")
	}
	// Advance past the min gap so the second write is not ignored.
	if !tbl.Write("alice", Patch{PositionAt: f64p(10)}, 1000) {
		t.Fatal("second write should succeed")
	}

	listeners := tbl.Active(1000)
	if len(listeners) != 1 {
		t.Fatalf("Active returned %d, want 1", len(listeners))
	}
	if listeners[0].TrackName != "song-a" {
		t.Fatalf("TrackName = %q, want fallback to previous value", listeners[0].TrackName)
	}
}

func TestWriteIgnoredWithinMinGap(t *testing.T) {
	tbl := New(700, func(string) bool { return true })
	tbl.Write("alice", Patch{TrackIndex: intp(1)}, 0)

	if tbl.Write("alice", Patch{TrackIndex: intp(2)}, 500) {
		t.Fatal("write within min gap should be ignored")
	}
}

func TestPositionClampedToZero(t *testing.T) {
	tbl := New(700, func(string) bool { return true })
	tbl.Write("alice", Patch{PositionAt: f64p(-5)}, 0)

	listeners := tbl.Active(0)
	if listeners[0].PositionAt != 0 {
		t.Fatalf("PositionAt = %v, want clamped to 0", listeners[0].PositionAt)
	}
}

func TestActiveSkipsNotInGame(t *testing.T) {
	inGame := map[string]bool{"alice": true, "bob": false}
	tbl := New(700, func(u string) bool { return inGame[u] })

	tbl.Write("alice", Patch{}, 0)
	tbl.Write("bob", Patch{}, 0)

	listeners := tbl.Active(0)
	if len(listeners) != 1 || listeners[0].Username != "alice" {
		t.Fatalf("unexpected listeners: %+v", listeners)
	}
}

func TestActiveSortsByLastSeenAscending(t *testing.T) {
	tbl := New(0, func(string) bool { return true })
	tbl.Write("alice", Patch{}, 0)
	tbl.Write("bob", Patch{}, 5000)

	listeners := tbl.Active(5000)
	if len(listeners) != 2 || listeners[0].Username != "bob" || listeners[1].Username != "alice" {
		t.Fatalf("unexpected order: %+v", listeners)
	}
}

func TestActiveComputesLivePositionWhilePlaying(t *testing.T) {
	tbl := New(0, func(string) bool { return true })
	tbl.Write("alice", Patch{PositionAt: f64p(10), IsPlaying: boolp(true)}, 0)

	listeners := tbl.Active(3000)
	if listeners[0].PositionAt != 13 {
		t.Fatalf("PositionAt = %v, want 13 (10 + 3s elapsed)", listeners[0].PositionAt)
	}
}

func TestGCDropsStaleSnapshots(t *testing.T) {
	tbl := New(0, func(string) bool { return true })
	tbl.Write("alice", Patch{}, 0)

	removed := tbl.GC(30_000, 25_000)
	if removed != 1 {
		t.Fatalf("GC removed %d, want 1", removed)
	}
	if len(tbl.Active(30_000)) != 0 {
		t.Fatal("expected no listeners after GC")
	}
}

func TestDeleteRemovesSnapshot(t *testing.T) {
	tbl := New(0, func(string) bool { return true })
	tbl.Write("alice", Patch{}, 0)
	tbl.Delete("alice")

	if len(tbl.Active(0)) != 0 {
		t.Fatal("expected snapshot to be gone after Delete")
	}
}
