package httpapi

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/auction-backend/internal/auction"
	"github.com/DoyleJ11/auction-backend/internal/auth"
	"github.com/DoyleJ11/auction-backend/internal/engine"
	"github.com/DoyleJ11/auction-backend/internal/hub"
	"github.com/DoyleJ11/auction-backend/internal/ws"
)

func SetupRoutes(a *auction.Auction, h *hub.Hub, tokens auth.Tokens, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	api := &api{auction: a, tokens: tokens, logger: logger}

	r := chi.NewRouter()
	r.Use(requestLogger(logger))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/state", api.state)
	r.Get("/players", api.players)
	r.Get("/teams", api.teams)
	r.Get("/ws", ws.Handler(a, h, tokens, logger.Named("ws")))

	// Team actions
	r.Route("/auction", func(r chi.Router) {
		r.Post("/nominate", api.command(false, nominate))
		r.Post("/bid", api.command(false, bid))
		r.Post("/mark-out", api.command(false, markOut))
		r.Post("/rtm", api.command(false, rtm))
	})

	// Administrative identity
	r.Route("/admin", func(r chi.Router) {
		r.Use(requireAdmin(tokens))
		r.Post("/initialize", api.command(true, func(actionRequest) engine.Command {
			return engine.Command{Type: engine.CmdInitialize}
		}))
		r.Post("/nominate", api.command(true, nominate))
		r.Post("/complete", api.command(true, func(req actionRequest) engine.Command {
			return engine.Command{Type: engine.CmdCompleteLot, Team: req.TeamID, Amount: req.Price}
		}))
		r.Post("/mark-out", api.command(true, markOut))
		r.Post("/unmark-out", api.command(true, func(req actionRequest) engine.Command {
			return engine.Command{Type: engine.CmdUnmarkOut, Team: req.TeamID}
		}))
		r.Post("/reset-lot", api.command(true, func(actionRequest) engine.Command {
			return engine.Command{Type: engine.CmdResetLot}
		}))
		r.Post("/full-reset", api.command(true, func(actionRequest) engine.Command {
			return engine.Command{Type: engine.CmdFullReset}
		}))
		r.Post("/retry-settlement", api.retrySettlement)
	})
	return r
}

func nominate(req actionRequest) engine.Command {
	return engine.Command{Type: engine.CmdNominate, Team: req.TeamID, PlayerID: req.PlayerID}
}

func bid(req actionRequest) engine.Command {
	return engine.Command{Type: engine.CmdBid, Team: req.TeamID, Amount: req.Increment}
}

func markOut(req actionRequest) engine.Command {
	return engine.Command{Type: engine.CmdMarkOut, Team: req.TeamID}
}

func rtm(req actionRequest) engine.Command {
	return engine.Command{Type: engine.CmdRTMDecision, Team: req.TeamID, Accept: req.Accept}
}

func requireAdmin(tokens auth.Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !tokens.IsAdmin(auth.Bearer(r)) {
				writeError(w, http.StatusUnauthorized, "unauthorized", "admin token required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// Hijack passes the websocket upgrade through to the server connection.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer cannot hijack")
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-Id")
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-Id", id)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)
			logger.Debug("request",
				zap.String("id", id),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("took", time.Since(start)),
			)
		})
	}
}
