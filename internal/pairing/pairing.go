// Package pairing implements a one-shot pairing-code state machine: a code
// is issued for a user, redeemed at most once, and pre-empted by a fresh
// issue for the same user.
//
// Grounded in lobby/internal/auth/magic_code.go (crypto/rand-backed,
// fixed-format one-time code) and lobby/internal/db/magic_codes.go (expiry +
// single-use semantics), translated from SQL rows to an in-memory map pair —
// this registry has no persistence requirement.
package pairing

import (
	"errors"
	"sync"

	"lobby/internal/codegen"
)

// ErrCodeGenerationFailed is returned when every generation attempt
// collided with a live code.
var ErrCodeGenerationFailed = errors.New("code generation failed")

// Record is the pairing state stored for one live code.
type Record struct {
	Username string
	HavePass bool
	Exp      int64
}

// MaxGenerationAttempts bounds retries on alphabet collisions.
const MaxGenerationAttempts = 12

// Registry holds the two-way code<->username mapping. It is its own unit of
// synchronization; callers that need issue/redeem to appear atomic with
// respect to other maps (revocation epoch, radio state, push hub) must
// additionally serialize at a higher level — see internal/state.
type Registry struct {
	mu     sync.Mutex
	byCode map[string]Record
	byUser map[string]string
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byCode: make(map[string]Record),
		byUser: make(map[string]string),
	}
}

// Issue deletes any existing code for username, generates a fresh one, and
// stores it with the given expiry. It returns the new code and the
// previous code if one was pre-empted (so the caller can react, e.g. by
// notifying the displaced session).
func (r *Registry) Issue(username string, havePass bool, expMS int64) (newCode string, preempted string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byUser[username]; ok {
		delete(r.byCode, old)
		preempted = old
	}

	for attempt := 0; attempt < MaxGenerationAttempts; attempt++ {
		code, genErr := codegen.Code()
		if genErr != nil {
			return "", preempted, genErr
		}
		if _, collides := r.byCode[code]; collides {
			continue
		}
		r.byCode[code] = Record{Username: username, HavePass: havePass, Exp: expMS}
		r.byUser[username] = code
		return code, preempted, nil
	}

	return "", preempted, ErrCodeGenerationFailed
}

// Redeem deletes the code (whether or not it is valid) and reports the
// record if the code existed and had not expired as of nowMS.
func (r *Registry) Redeem(code string, nowMS int64) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byCode[code]
	if !ok {
		return Record{}, false
	}

	delete(r.byCode, code)
	if r.byUser[rec.Username] == code {
		delete(r.byUser, rec.Username)
	}

	if rec.Exp <= nowMS {
		return Record{}, false
	}
	return rec, true
}

// CodeForUser returns the live code for username, if any.
func (r *Registry) CodeForUser(username string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.byUser[username]
	return code, ok
}

// GC drops codes whose expiry is at or before nowMS, keeping the secondary
// index consistent with the primary table.
func (r *Registry) GC(nowMS int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for code, rec := range r.byCode {
		if rec.Exp <= nowMS {
			delete(r.byCode, code)
			if r.byUser[rec.Username] == code {
				delete(r.byUser, rec.Username)
			}
			removed++
		}
	}
	return removed
}
