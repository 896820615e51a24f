// Package radiostate holds the per-user last-known playback snapshot,
// including the "who's currently listening" read view.
package radiostate

import (
	"math"
	"sort"
	"sync"
)

// Snapshot is one user's last reported playback state.
type Snapshot struct {
	TrackIndex int
	TrackName  string
	PositionAt float64 // seconds
	IsPlaying  bool
	Muted      bool
	ServerTS   int64 // ms, wall time of the snapshot
	UpdatedAt  int64 // ms, last mutation
}

// Table is the concurrency-safe username -> Snapshot map.
type Table struct {
	mu        sync.Mutex
	snapshots map[string]Snapshot
	inGame    func(username string) bool
	minGapMS  int64
}

// New builds a Table. inGame is consulted by Active() to skip users who
// have left their session even though their snapshot has not yet expired.
func New(minGapMS int64, inGame func(username string) bool) *Table {
	return &Table{
		snapshots: make(map[string]Snapshot),
		inGame:    inGame,
		minGapMS:  minGapMS,
	}
}

// Delete removes username's snapshot entirely; called when a pairing code
// is re-issued for the user, since a fresh pairing invalidates stale
// playback state left over from the previous session.
func (t *Table) Delete(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.snapshots, username)
}

// Write applies an update for username. Missing or non-finite fields fall
// back to the previous snapshot's value (zero/empty on an initial write);
// PositionAt is clamped to >= 0. If less than minGapMS has elapsed since
// the last mutation, the write is ignored and Write returns ok=false.
func (t *Table) Write(username string, in Patch, nowMS int64) (ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, existed := t.snapshots[username]
	if existed && nowMS-prev.UpdatedAt < t.minGapMS {
		return false
	}

	next := prev
	if in.TrackIndex != nil {
		next.TrackIndex = *in.TrackIndex
	}
	if in.TrackName != nil {
		next.TrackName = *in.TrackName
	}
	if in.PositionAt != nil && !math.IsNaN(*in.PositionAt) && !math.IsInf(*in.PositionAt, 0) {
		pos := *in.PositionAt
		if pos < 0 {
			pos = 0
		}
		next.PositionAt = pos
	}
	if in.IsPlaying != nil {
		next.IsPlaying = *in.IsPlaying
	}
	if in.Muted != nil {
		next.Muted = *in.Muted
	}
	next.ServerTS = nowMS
	next.UpdatedAt = nowMS

	t.snapshots[username] = next
	return true
}

// Patch carries only the fields a caller supplied; nil means "keep the
// previous value."
type Patch struct {
	TrackIndex *int
	TrackName  *string
	PositionAt *float64
	IsPlaying  *bool
	Muted      *bool
}

// Listener is one row of the Active() view.
type Listener struct {
	Username   string
	TrackIndex int
	TrackName  string
	PositionAt float64
	IsPlaying  bool
	Muted      bool
	LastSeenMS int64
}

// Active returns every in-game user's live listening state, sorted
// ascending by LastSeenMS.
func (t *Table) Active(nowMS int64) []Listener {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Listener, 0, len(t.snapshots))
	for username, snap := range t.snapshots {
		if t.inGame != nil && !t.inGame(username) {
			continue
		}

		pos := snap.PositionAt
		if snap.IsPlaying {
			elapsed := float64(nowMS-snap.ServerTS) / 1000
			if elapsed < 0 {
				elapsed = 0
			}
			pos += elapsed
		}

		out = append(out, Listener{
			Username:   username,
			TrackIndex: snap.TrackIndex,
			TrackName:  snap.TrackName,
			PositionAt: pos,
			IsPlaying:  snap.IsPlaying,
			Muted:      snap.Muted,
			LastSeenMS: nowMS - snap.UpdatedAt,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].LastSeenMS < out[j].LastSeenMS })
	return out
}

// GC drops snapshots whose last mutation is older than ttlMS.
func (t *Table) GC(nowMS, ttlMS int64) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for username, snap := range t.snapshots {
		if nowMS-snap.UpdatedAt > ttlMS {
			delete(t.snapshots, username)
			removed++
		}
	}
	return removed
}
