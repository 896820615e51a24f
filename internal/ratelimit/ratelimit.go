// Package ratelimit implements fixed-window (scope, principal) counters.
//
// Grounded in fazt-sh-fazt's internal/middleware/ratelimit.go (map of
// per-principal state behind one mutex, evicted by a periodic sweep) with
// the token-bucket replaced by a fixed window: an exact "count > max within
// this window" semantic is simpler to reason about and test than a token
// bucket, which smooths bursts away.
package ratelimit

import (
	"sync"
)

// Scope names the endpoint or endpoint family a quota applies to.
type Scope string

const (
	ScopeVerify     Scope = "verify"
	ScopeSSEOpenIP  Scope = "sseOpenIp"
	ScopeSSEOpenUsr Scope = "sseOpenUser"
	ScopeJoinIP     Scope = "joinIp"
	ScopeMuteIP     Scope = "muteIp"
	ScopeSyncIP     Scope = "syncIp"
	ScopeStateIP    Scope = "stateIp"
	ScopeActiveIP   Scope = "activeIp"
	ScopePollIP     Scope = "pollIp"
	ScopePresenceIP Scope = "presenceIp"
)

// Quota is the {windowMs, max} configuration for one scope.
type Quota struct {
	WindowMS int64
	Max      int
}

// DefaultQuotas returns the service's default scope table.
func DefaultQuotas() map[Scope]Quota {
	return map[Scope]Quota{
		ScopeVerify:     {WindowMS: 15_000, Max: 12},
		ScopeSSEOpenIP:  {WindowMS: 60_000, Max: 60},
		ScopeSSEOpenUsr: {WindowMS: 60_000, Max: 60},
		ScopeJoinIP:     {WindowMS: 10_000, Max: 25},
		ScopeMuteIP:     {WindowMS: 10_000, Max: 25},
		ScopeSyncIP:     {WindowMS: 10_000, Max: 40},
		ScopeStateIP:    {WindowMS: 10_000, Max: 80},
		ScopeActiveIP:   {WindowMS: 10_000, Max: 40},
		ScopePollIP:     {WindowMS: 10_000, Max: 80},
		ScopePresenceIP: {WindowMS: 10_000, Max: 200},
	}
}

// maxSweepDeletions bounds the pause time of one GC pass.
const maxSweepDeletions = 5000

type key struct {
	scope     Scope
	principal string
}

type window struct {
	count   int
	resetAt int64
}

// Limiter is a fixed-window counter store shared across all scopes.
type Limiter struct {
	mu      sync.Mutex
	quotas  map[Scope]Quota
	windows map[key]*window
}

// New builds a Limiter from a scope->quota table. Pass DefaultQuotas() for
// the built-in defaults, or a caller-supplied table to override any subset.
func New(quotas map[Scope]Quota) *Limiter {
	return &Limiter{
		quotas:  quotas,
		windows: make(map[key]*window),
	}
}

// Allow records one hit for (scope, principal) at nowMS and reports whether
// it is within quota. Scopes with no configured quota always allow.
func (l *Limiter) Allow(scope Scope, principal string, nowMS int64) bool {
	quota, ok := l.quotas[scope]
	if !ok {
		return true
	}

	k := key{scope: scope, principal: principal}

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[k]
	if !ok || w.resetAt <= nowMS {
		w = &window{count: 0, resetAt: nowMS + quota.WindowMS}
		l.windows[k] = w
	}

	w.count++
	return w.count <= quota.Max
}

// Sweep evicts windows whose reset time has passed, capped at
// maxSweepDeletions entries per call, and reports how many it removed.
func (l *Limiter) Sweep(nowMS int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	deleted := 0
	for k, w := range l.windows {
		if deleted >= maxSweepDeletions {
			break
		}
		if w.resetAt <= nowMS {
			delete(l.windows, k)
			deleted++
		}
	}
	return deleted
}
