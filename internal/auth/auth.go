// Package auth checks the bearer tokens of the admin and team identities.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

type Tokens struct {
	Admin string
	// Teams maps team id to token. When empty every caller may act for any team.
	Teams map[string]string
}

// Bearer extracts the token from an Authorization header, falling back to the
// token query parameter that browser websocket clients can set.
func Bearer(r *http.Request) string {
	if tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return tok
	}
	return r.URL.Query().Get("token")
}

func (t Tokens) IsAdmin(token string) bool {
	return t.Admin != "" && equal(token, t.Admin)
}

// TeamsOpen reports whether team actions are unauthenticated.
func (t Tokens) TeamsOpen() bool { return len(t.Teams) == 0 }

// MayActFor reports whether token may act as teamID.
func (t Tokens) MayActFor(teamID, token string) bool {
	if t.TeamsOpen() {
		return true
	}
	want, ok := t.Teams[teamID]
	return ok && equal(token, want)
}

// TeamOf returns the team whose token this is.
func (t Tokens) TeamOf(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	for id, want := range t.Teams {
		if equal(token, want) {
			return id, true
		}
	}
	return "", false
}

func equal(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
