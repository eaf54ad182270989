package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/DoyleJ11/auction-backend/internal/auction"
	"github.com/DoyleJ11/auction-backend/internal/auth"
	"github.com/DoyleJ11/auction-backend/internal/engine"
)

type actionRequest struct {
	TeamID    string          `json:"team_id"`
	PlayerID  string          `json:"player_id"`
	Increment decimal.Decimal `json:"increment"`
	Price     decimal.Decimal `json:"price"`
	Accept    bool            `json:"accept"`
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

type api struct {
	auction *auction.Auction
	tokens  auth.Tokens
	logger  *zap.Logger
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *api) state(w http.ResponseWriter, r *http.Request) {
	v, err := a.auction.View(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, auction.Snapshot(v.State, v.Version, v.SettleFailed))
}

func (a *api) players(w http.ResponseWriter, r *http.Request) {
	v, err := a.auction.View(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, auction.Players(v.State))
}

func (a *api) teams(w http.ResponseWriter, r *http.Request) {
	v, err := a.auction.View(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, auction.Snapshot(v.State, v.Version, v.SettleFailed).Teams)
}

// command builds a handler that decodes an actionRequest, maps it to a
// command and submits it.
func (a *api) command(admin bool, build func(actionRequest) engine.Command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req actionRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, string(engine.CodeInvalidRequest), "bad json")
				return
			}
		}
		cmd := build(req)
		cmd.Admin = admin
		if !admin && !a.tokens.MayActFor(cmd.Team, auth.Bearer(r)) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "token does not belong to team "+cmd.Team)
			return
		}
		a.submit(w, r, cmd)
	}
}

func (a *api) submit(w http.ResponseWriter, r *http.Request, cmd engine.Command) {
	if err := a.auction.Submit(r.Context(), cmd); err != nil {
		a.fail(w, r, err)
		return
	}
	a.state(w, r)
}

func (a *api) retrySettlement(w http.ResponseWriter, r *http.Request) {
	if err := a.auction.Retry(r.Context()); err != nil {
		a.fail(w, r, err)
		return
	}
	a.state(w, r)
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	var rej *engine.RejectError
	if errors.As(err, &rej) {
		writeError(w, statusFor(rej.Code), string(rej.Code), rej.Reason)
		return
	}
	a.logger.Error("submit failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
}

func statusFor(code engine.Code) int {
	switch code {
	case engine.CodePreconditionFailed, engine.CodeRTMIneligible:
		return http.StatusConflict
	case engine.CodeNotYourTurn:
		return http.StatusForbidden
	case engine.CodeInsufficientBudget, engine.CodeSquadFull, engine.CodePositionRestricted, engine.CodeOverseasQuotaExceeded:
		return http.StatusUnprocessableEntity
	case engine.CodePersistenceFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Code: code, Error: msg})
}
