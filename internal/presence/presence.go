// Package presence holds the game server's latest assertion of whether a
// user is currently in a session.
package presence

import "sync"

// Record is one user's presence state. It has no intrinsic TTL.
type Record struct {
	InGame    bool
	HavePass  bool
	UpdatedAt int64
}

// Registry is a concurrency-safe username -> Record map.
type Registry struct {
	mu      sync.RWMutex
	records map[string]Record
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{records: make(map[string]Record)}
}

// Set overwrites (or creates) the record for username.
func (r *Registry) Set(username string, inGame, havePass bool, nowMS int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[username] = Record{InGame: inGame, HavePass: havePass, UpdatedAt: nowMS}
}

// Get returns the record for username and whether it exists.
func (r *Registry) Get(username string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[username]
	return rec, ok
}

// InGame reports whether username currently has inGame=true. Missing users
// are treated as not in-game.
func (r *Registry) InGame(username string) bool {
	rec, ok := r.Get(username)
	return ok && rec.InGame
}
