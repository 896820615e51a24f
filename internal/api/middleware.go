package api

import (
	"net/http"

	"lobby/internal/constants"
	"lobby/internal/state"
)

// extractToken reads the capability token from the x-radio-token header,
// the token query parameter, or a body field, checked in that order.
func extractToken(r *http.Request, bodyToken string) string {
	if v := r.Header.Get("x-radio-token"); v != "" {
		return v
	}
	if v := r.URL.Query().Get("token"); v != "" {
		return v
	}
	return bodyToken
}

// requireToken validates the capability token against s and, on success,
// returns the token's username. pathUsername, when non-empty, must match
// the token's username, failing with token_user_mismatch otherwise; pass ""
// to skip that check. On failure it writes the error response itself and
// returns ok=false.
func requireToken(s *state.State, pathUsername, bodyToken string, w http.ResponseWriter, r *http.Request) (username string, ok bool) {
	tok := extractToken(r, bodyToken)
	claims, kind := s.Token.Verify(tok, s.Clock.NowMS(), s.RevokedAt)
	if kind != "" {
		writeErr(w, http.StatusUnauthorized, string(kind))
		return "", false
	}

	if pathUsername != "" && state.NormalizeUsername(pathUsername) != claims.Username {
		writeErr(w, http.StatusForbidden, constants.ErrTokenUserMismatch)
		return "", false
	}

	return claims.Username, true
}

// requireServerKey checks the x-roblox-key header against the configured
// shared secret used to authenticate game-server-originated calls. An
// empty configured key means every such call fails unauthorized.
func requireServerKey(configuredKey string, w http.ResponseWriter, r *http.Request) bool {
	if configuredKey == "" || r.Header.Get("x-roblox-key") != configuredKey {
		writeErr(w, http.StatusUnauthorized, constants.ErrUnauthorized)
		return false
	}
	return true
}
