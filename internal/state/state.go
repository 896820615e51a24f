// Package state composes the domain packages into a single process-owned
// value — shared mutable maps held as one State value rather than scattered
// process-wide singletons — and implements the two operations, issue and
// redeem, that must appear atomic across multiple underlying maps.
//
// Grounded in lobby/cmd/server/main.go's wiring style (construct every
// collaborator, pass the aggregate into the HTTP layer) generalized from a
// DB-repository aggregate to an in-memory one.
package state

import (
	"strings"
	"sync"
	"time"

	"lobby/internal/clock"
	"lobby/internal/events"
	"lobby/internal/pairing"
	"lobby/internal/presence"
	"lobby/internal/pushhub"
	"lobby/internal/radiostate"
	"lobby/internal/ratelimit"
	"lobby/internal/revocation"
	"lobby/internal/token"
)

// Config carries the numeric constants State needs at construction time.
type Config struct {
	SessionTTLMS    int64
	RadioTTLMS      int64
	StateTTLMS      int64
	StateMinGapMS   int64
	WebTokenTTLMS   int64
	JoinDedupMS     int64
	MuteDedupMS     int64
	PushHeartbeatMS int64
	MaxSSEPerUser   int
	MaxSSEPerIP     int
}

// State is the single aggregate every request handler and scheduler task
// operates against. Each field is its own unit of synchronization; IssueCode
// and RedeemCode additionally serialize the cross-map sequences with
// issueMu, acquired in a fixed order: pairing -> revocation -> radio state
// -> push hub.
type State struct {
	cfg Config

	Clock      clock.Clock
	Presence   *presence.Registry
	Pairing    *pairing.Registry
	Revocation *revocation.Epochs
	Events     *events.Store
	PushHub    *pushhub.Hub
	RadioState *radiostate.Table
	RateLimit  *ratelimit.Limiter
	Token      *token.Service

	issueMu sync.Mutex
}

// New builds a State from its collaborators and config. tokenSecret may be
// empty, in which case token minting/verification is disabled throughout.
func New(cfg Config, c clock.Clock, tokenSecret string, quotas map[ratelimit.Scope]ratelimit.Quota) *State {
	pres := presence.New()
	s := &State{
		cfg:        cfg,
		Clock:      c,
		Presence:   pres,
		Pairing:    pairing.New(),
		Revocation: revocation.New(),
		Events:     events.New(cfg.JoinDedupMS, cfg.MuteDedupMS),
		PushHub:    pushhub.New(cfg.MaxSSEPerUser, cfg.MaxSSEPerIP, time.Duration(cfg.PushHeartbeatMS)*time.Millisecond),
		Token:      token.New(tokenSecret, cfg.WebTokenTTLMS),
		RateLimit:  ratelimit.New(quotas),
	}
	s.RadioState = radiostate.New(cfg.StateMinGapMS, pres.InGame)
	return s
}

// RevokedAt is the revocation-watermark accessor internal/token.Verify
// expects; it exists so handlers can pass s.RevokedAt directly without
// reaching into s.Revocation.
func (s *State) RevokedAt(username string) int64 {
	return s.Revocation.Get(username)
}

// IssueResult carries everything the /session/create handler needs to
// render its response and side effects.
type IssueResult struct {
	Code      string
	Exp       int64
	Preempted bool
}

// IssueCode runs the issue transition: replaces any existing code for
// username with a freshly generated one, then bumps the revocation epoch,
// drops the radio-state snapshot, and pushes a KICK event. The whole
// sequence holds issueMu, which RedeemCode also takes, so a concurrent
// redeem cannot observe it half-applied.
func (s *State) IssueCode(username string, havePass bool, nowMS int64) (IssueResult, error) {
	username = NormalizeUsername(username)

	s.issueMu.Lock()
	defer s.issueMu.Unlock()

	expMS := nowMS + s.cfg.SessionTTLMS
	code, preempted, err := s.Pairing.Issue(username, havePass, expMS)
	if err != nil {
		return IssueResult{}, err
	}

	s.Revocation.Bump(username, nowMS)
	s.RadioState.Delete(username)
	s.PushHub.Publish(username, "radio", events.Event{
		Kind:   events.KindKick,
		TS:     nowMS,
		Reason: "new_code",
	}.ToJSON())

	return IssueResult{Code: code, Exp: expMS, Preempted: preempted != ""}, nil
}

// RedeemResult carries what /session/verify needs once a code has redeemed
// successfully.
type RedeemResult struct {
	Username string
	HavePass bool
	Token    string
	TokenExp int64
}

// RedeemOutcome enumerates why RedeemCode did not return a token.
type RedeemOutcome string

const (
	RedeemOK               RedeemOutcome = "ok"
	RedeemInvalidOrExpired RedeemOutcome = "invalid_or_expired"
	RedeemNotInGame        RedeemOutcome = "not_in_game"
)

// RedeemCode runs the redeem transition: the pairing record is deleted
// whether or not the in-game precondition holds, so a stale or rejected
// code can never be retried.
func (s *State) RedeemCode(code string, nowMS int64) (RedeemResult, RedeemOutcome) {
	code = NormalizeCode(code)

	s.issueMu.Lock()
	defer s.issueMu.Unlock()

	rec, ok := s.Pairing.Redeem(code, nowMS)
	if !ok {
		return RedeemResult{}, RedeemInvalidOrExpired
	}

	if !s.Presence.InGame(rec.Username) {
		return RedeemResult{}, RedeemNotInGame
	}

	tok, kind := s.Token.Mint(rec.Username, nowMS)
	if kind != "" {
		// Only reachable when the token secret is unconfigured — treated
		// as a degraded mode, not a redemption failure, so the caller
		// decides how to report an empty token.
		return RedeemResult{Username: rec.Username, HavePass: rec.HavePass}, RedeemOK
	}

	return RedeemResult{
		Username: rec.Username,
		HavePass: rec.HavePass,
		Token:    tok,
		TokenExp: nowMS + s.cfg.WebTokenTTLMS,
	}, RedeemOK
}

// NormalizeUsername lowercases and trims a username for use as a map key.
func NormalizeUsername(u string) string {
	return strings.ToLower(strings.TrimSpace(u))
}

// NormalizeCode uppercases and trims a pairing code for lookup.
func NormalizeCode(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}
