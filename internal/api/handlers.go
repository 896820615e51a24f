package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"lobby/internal/constants"
	"lobby/internal/events"
	"lobby/internal/pushhub"
	"lobby/internal/radiostate"
	"lobby/internal/ratelimit"
	"lobby/internal/state"
)

var sanitizer = bluemonday.StrictPolicy()

// Handlers holds the dependencies every route needs: the aggregate State
// and the shared-key secret gating game-server routes. Grounded in lobby's
// handler-struct-per-concern shape (AuthHandler, UserHandler, ...),
// collapsed to one struct since this request dispatcher is a single
// cohesive surface, not several independently evolving feature areas.
type Handlers struct {
	state      *state.State
	serverKey  string
	ipResolver *ClientIPResolver
}

// NewHandlers builds the request dispatcher over s.
func NewHandlers(s *state.State, serverKey string, ipResolver *ClientIPResolver) *Handlers {
	return &Handlers{state: s, serverKey: serverKey, ipResolver: ipResolver}
}

func (h *Handlers) limit(scope ratelimit.Scope, principal string) bool {
	return h.state.RateLimit.Allow(scope, principal, h.state.Clock.NowMS())
}

// Banner handles GET /.
func (h *Handlers) Banner(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintln(w, "radio coordination service")
}

type presenceRequest struct {
	Username string `json:"username" validate:"required"`
	InGame   *bool  `json:"inGame" validate:"required"`
	HavePass bool   `json:"havePass"`
}

// PostPresence handles POST /presence.
func (h *Handlers) PostPresence(w http.ResponseWriter, r *http.Request) {
	ip := h.ipResolver.Resolve(r)
	if !h.limit(ratelimit.ScopePresenceIP, ip) {
		writeErr(w, http.StatusTooManyRequests, constants.ErrRateLimited)
		return
	}

	var req presenceRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	username := state.NormalizeUsername(req.Username)
	h.state.Presence.Set(username, *req.InGame, req.HavePass, h.state.Clock.NowMS())
	writeOK(w, http.StatusOK, nil)
}

// GetPresence handles GET /presence/:u.
func (h *Handlers) GetPresence(w http.ResponseWriter, r *http.Request) {
	username := state.NormalizeUsername(chi.URLParam(r, "u"))
	rec, exists := h.state.Presence.Get(username)
	writeOK(w, http.StatusOK, map[string]any{
		"exists":   exists,
		"inGame":   rec.InGame,
		"havePass": rec.HavePass,
	})
}

type sessionCreateRequest struct {
	Username string `json:"username" validate:"required"`
	HavePass bool   `json:"havePass"`
}

// PostSessionCreate handles POST /session/create.
func (h *Handlers) PostSessionCreate(w http.ResponseWriter, r *http.Request) {
	if !requireServerKey(h.serverKey, w, r) {
		return
	}

	var req sessionCreateRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	username := state.NormalizeUsername(req.Username)
	if !h.state.Presence.InGame(username) {
		writeErr(w, http.StatusForbidden, constants.ErrNotInGame)
		return
	}

	res, err := h.state.IssueCode(username, req.HavePass, h.state.Clock.NowMS())
	if err != nil {
		slog.Error("issuing pairing code failed", "error", err)
		writeErr(w, http.StatusInternalServerError, constants.ErrCodeGenerationFailed)
		return
	}

	writeOK(w, http.StatusOK, map[string]any{"code": res.Code, "exp": res.Exp})
}

type sessionVerifyRequest struct {
	Code string `json:"code" validate:"required"`
}

// PostSessionVerify handles POST /session/verify.
func (h *Handlers) PostSessionVerify(w http.ResponseWriter, r *http.Request) {
	ip := h.ipResolver.Resolve(r)
	if !h.limit(ratelimit.ScopeVerify, ip) {
		writeErr(w, http.StatusTooManyRequests, constants.ErrRateLimited)
		return
	}

	var req sessionVerifyRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	res, outcome := h.state.RedeemCode(req.Code, h.state.Clock.NowMS())
	switch outcome {
	case state.RedeemInvalidOrExpired:
		writeFail(w, constants.ErrInvalidOrExpired)
	case state.RedeemNotInGame:
		writeFail(w, constants.ErrNotInGame)
	default:
		writeOK(w, http.StatusOK, map[string]any{
			"username": res.Username,
			"havePass": res.HavePass,
			"token":    res.Token,
			"tokenExp": res.TokenExp,
		})
	}
}

// GetEvents handles GET /events/:u, the SSE push subscription.
func (h *Handlers) GetEvents(w http.ResponseWriter, r *http.Request) {
	pathUser := chi.URLParam(r, "u")
	ip := h.ipResolver.Resolve(r)

	if !h.limit(ratelimit.ScopeSSEOpenIP, ip) {
		writeErr(w, http.StatusTooManyRequests, constants.ErrRateLimited)
		return
	}

	username, ok := requireToken(h.state, pathUser, "", w, r)
	if !ok {
		return
	}

	if !h.limit(ratelimit.ScopeSSEOpenUsr, username) {
		writeErr(w, http.StatusTooManyRequests, constants.ErrRateLimited)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		slog.Error("response writer does not support flushing", "path", r.URL.Path)
		writeErr(w, http.StatusInternalServerError, constants.ErrCodeGenerationFailed)
		return
	}

	sub, ok := h.state.PushHub.Register(uuid.NewString(), username, ip)
	if !ok {
		writeErr(w, http.StatusTooManyRequests, constants.ErrRateLimited)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	hello, err := pushhub.SendHello(username)
	if err == nil {
		w.Write(hello)
		flusher.Flush()
	}

	h.state.PushHub.Run(r.Context(), sub, func(frame []byte) error {
		if _, err := w.Write(frame); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
}

type radioJoinRequest struct {
	Username string `json:"username" validate:"required"`
}

// PostRadioJoin handles POST /radio/join.
func (h *Handlers) PostRadioJoin(w http.ResponseWriter, r *http.Request) {
	ip := h.ipResolver.Resolve(r)
	if !h.limit(ratelimit.ScopeJoinIP, ip) {
		writeErr(w, http.StatusTooManyRequests, constants.ErrRateLimited)
		return
	}

	var req radioJoinRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	username, ok := requireToken(h.state, req.Username, "", w, r)
	if !ok {
		return
	}

	if !h.state.Presence.InGame(username) {
		writeErr(w, http.StatusForbidden, constants.ErrNotInGame)
		return
	}

	now := h.state.Clock.NowMS()
	ev := events.Event{Kind: events.KindRadioJoin, Audience: events.AudienceRoblox, TS: now}
	if !h.state.Events.Append(username, ev) {
		writeIgnored(w)
		return
	}
	h.state.PushHub.Publish(username, "radio", ev.ToJSON())
	writeOK(w, http.StatusOK, nil)
}

type radioMuteRequest struct {
	Username string `json:"username" validate:"required"`
	Muted    *bool  `json:"muted" validate:"required"`
}

// PostRadioMute handles POST /radio/mute (token auth).
func (h *Handlers) PostRadioMute(w http.ResponseWriter, r *http.Request) {
	h.handleMute(w, r, ratelimit.ScopeMuteIP, func(req radioMuteRequest) (string, bool) {
		username, ok := requireToken(h.state, req.Username, "", w, r)
		return username, ok
	})
}

// PostRadioMuteServer handles POST /radio/mute/server (shared-key auth).
func (h *Handlers) PostRadioMuteServer(w http.ResponseWriter, r *http.Request) {
	h.handleMute(w, r, ratelimit.ScopeMuteIP, func(req radioMuteRequest) (string, bool) {
		if !requireServerKey(h.serverKey, w, r) {
			return "", false
		}
		return state.NormalizeUsername(req.Username), true
	})
}

func (h *Handlers) handleMute(w http.ResponseWriter, r *http.Request, scope ratelimit.Scope, resolveUser func(radioMuteRequest) (string, bool)) {
	ip := h.ipResolver.Resolve(r)
	if !h.limit(scope, ip) {
		writeErr(w, http.StatusTooManyRequests, constants.ErrRateLimited)
		return
	}

	var req radioMuteRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	username, ok := resolveUser(req)
	if !ok {
		return
	}

	if !h.state.Presence.InGame(username) {
		writeErr(w, http.StatusForbidden, constants.ErrNotInGame)
		return
	}

	now := h.state.Clock.NowMS()
	kind := events.KindRadioMute
	if !*req.Muted {
		kind = events.KindRadioUnmute
	}
	ev := events.Event{Kind: kind, Audience: events.AudienceWeb, TS: now, Muted: *req.Muted}
	stored := h.state.Events.Append(username, ev)
	if !stored {
		writeIgnored(w)
		return
	}

	// A mute event is appended to the pull queue regardless of whether a
	// live push subscriber exists, and is also pushed when one does.
	h.state.PushHub.Publish(username, "radio", ev.ToJSON())
	writeOK(w, http.StatusOK, map[string]any{"pushed": true})
}

// GetRadioSync handles GET /radio/sync/:u (browser pull).
func (h *Handlers) GetRadioSync(w http.ResponseWriter, r *http.Request) {
	pathUser := chi.URLParam(r, "u")
	ip := h.ipResolver.Resolve(r)
	if !h.limit(ratelimit.ScopeSyncIP, ip) {
		writeErr(w, http.StatusTooManyRequests, constants.ErrRateLimited)
		return
	}

	username, ok := requireToken(h.state, pathUser, "", w, r)
	if !ok {
		return
	}

	drained := h.state.Events.DrainWeb(username)
	writeOK(w, http.StatusOK, map[string]any{"events": renderEvents(drained)})
}

// GetRadioPoll handles GET /radio/poll/:u (game-server pull).
func (h *Handlers) GetRadioPoll(w http.ResponseWriter, r *http.Request) {
	ip := h.ipResolver.Resolve(r)
	if !h.limit(ratelimit.ScopePollIP, ip) {
		writeErr(w, http.StatusTooManyRequests, constants.ErrRateLimited)
		return
	}

	if !requireServerKey(h.serverKey, w, r) {
		return
	}

	username := state.NormalizeUsername(chi.URLParam(r, "u"))
	drained := h.state.Events.DrainRoblox(username)
	writeOK(w, http.StatusOK, map[string]any{"events": renderEvents(drained)})
}

type radioStateRequest struct {
	Username    string   `json:"username" validate:"required"`
	TrackIndex  *int     `json:"trackIndex"`
	TrackName   *string  `json:"trackName"`
	PositionSec *float64 `json:"positionSec"`
	IsPlaying   *bool    `json:"isPlaying"`
	Muted       *bool    `json:"muted"`
}

// PostRadioState handles POST /radio/state.
func (h *Handlers) PostRadioState(w http.ResponseWriter, r *http.Request) {
	ip := h.ipResolver.Resolve(r)
	if !h.limit(ratelimit.ScopeStateIP, ip) {
		writeErr(w, http.StatusTooManyRequests, constants.ErrRateLimited)
		return
	}

	var req radioStateRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	username, ok := requireToken(h.state, req.Username, "", w, r)
	if !ok {
		return
	}

	if !h.state.Presence.InGame(username) {
		writeErr(w, http.StatusForbidden, constants.ErrNotInGame)
		return
	}

	patch := radiostatePatch(req)
	if !h.state.RadioState.Write(username, patch, h.state.Clock.NowMS()) {
		writeIgnored(w)
		return
	}
	writeOK(w, http.StatusOK, nil)
}

// GetRadioActive handles GET /radio/active.
func (h *Handlers) GetRadioActive(w http.ResponseWriter, r *http.Request) {
	ip := h.ipResolver.Resolve(r)
	if !h.limit(ratelimit.ScopeActiveIP, ip) {
		writeErr(w, http.StatusTooManyRequests, constants.ErrRateLimited)
		return
	}

	listeners := h.state.RadioState.Active(h.state.Clock.NowMS())
	out := make([]map[string]any, 0, len(listeners))
	for _, l := range listeners {
		out = append(out, map[string]any{
			"username":   l.Username,
			"trackIndex": l.TrackIndex,
			"trackName":  l.TrackName,
			"positionAt": l.PositionAt,
			"isPlaying":  l.IsPlaying,
			"muted":      l.Muted,
			"lastSeenMs": l.LastSeenMS,
		})
	}
	writeOK(w, http.StatusOK, map[string]any{"listeners": out})
}

func renderEvents(evs []events.Event) []map[string]any {
	out := make([]map[string]any, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.ToJSON())
	}
	return out
}

// radiostatePatch builds a radiostate.Patch from the wire request,
// sanitizing the free-text track name before it is stored and later
// fanned out to other browser clients via /radio/active.
func radiostatePatch(req radioStateRequest) radiostate.Patch {
	p := radiostate.Patch{
		TrackIndex: req.TrackIndex,
		IsPlaying:  req.IsPlaying,
		Muted:      req.Muted,
		PositionAt: req.PositionSec,
	}
	if req.TrackName != nil {
		clean := sanitizer.Sanitize(*req.TrackName)
		p.TrackName = &clean
	}
	return p
}
