package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/auction-backend/internal/auction"
	"github.com/DoyleJ11/auction-backend/internal/auth"
	"github.com/DoyleJ11/auction-backend/internal/engine"
	"github.com/DoyleJ11/auction-backend/internal/hub"
	"github.com/DoyleJ11/auction-backend/internal/types"
	pubtypes "github.com/DoyleJ11/auction-backend/pkg/types"
)

const (
	writeTimeout = 3 * time.Second
	outboxSize   = 64

	codeUnauthorized = "unauthorized"
)

// Handler upgrades to a websocket, streams the snapshot and every later event,
// and turns client messages into auction commands. Rejections go back to the
// sending connection only. When team tokens are configured a connection acts
// only for the team its token names; without a token it may only watch.
func Handler(a *auction.Auction, h *hub.Hub, tokens auth.Tokens, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			logger.Info("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		bound := ""
		if !tokens.TeamsOpen() {
			bound, _ = tokens.TeamOf(auth.Bearer(r))
		}
		log := logger.With(zap.String("client", clientID), zap.String("team", bound))
		out := make(chan pubtypes.ServerMessage, outboxSize)

		if err := send(r.Context(), a, auction.Join{ClientID: clientID, Outbox: out}); err != nil {
			conn.Close(websocket.StatusTryAgainLater, "auction unavailable")
			return
		}
		defer func() { _ = send(context.Background(), a, auction.Leave{ClientID: clientID}) }()
		log.Debug("client joined")

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for msg := range out {
				payload, err := json.Marshal(msg)
				if err != nil {
					log.Error("encode server message", zap.Error(err))
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				err = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
				if err != nil {
					writeCancel()
					return
				}
			}
			// Outbox closed by the hub: slow consumer or shutdown.
			conn.Close(websocket.StatusPolicyViolation, "too slow")
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(writeCtx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if !errors.Is(err, context.Canceled) {
						log.Debug("read failed", zap.Error(err))
					}
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				replyError(h, clientID, string(engine.CodeInvalidRequest), "bad json")
				continue
			}
			cmd, ok := toEngineCommand(cm)
			if !ok {
				replyError(h, clientID, string(engine.CodeInvalidRequest), "unsupported message type "+cm.Type+" or missing team_id")
				continue
			}
			if !tokens.TeamsOpen() && cmd.Team != bound {
				replyError(h, clientID, codeUnauthorized, "connection may not act for team "+cmd.Team)
				continue
			}

			if err := a.Submit(r.Context(), cmd); err != nil {
				var rej *engine.RejectError
				if errors.As(err, &rej) {
					replyError(h, clientID, string(rej.Code), rej.Reason)
					continue
				}
				return
			}
		}
	}
}

func send(ctx context.Context, a *auction.Auction, m auction.Msg) error {
	select {
	case a.Inbox() <- m:
		return nil
	case <-a.Done():
		return auction.ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func replyError(h *hub.Hub, clientID, code, reason string) {
	h.Send(hub.Direct{ClientID: clientID, Msg: pubtypes.ServerMessage{
		Type:  pubtypes.MsgError,
		Code:  code,
		Error: reason,
	}})
}

func toEngineCommand(m types.ClientMessage) (engine.Command, bool) {
	if m.TeamID == "" {
		return engine.Command{}, false
	}
	switch m.Type {
	case "nominate":
		return engine.Command{Type: engine.CmdNominate, Team: m.TeamID, PlayerID: m.PlayerID}, true
	case "bid":
		return engine.Command{Type: engine.CmdBid, Team: m.TeamID, Amount: m.Increment}, true
	case "mark_out":
		return engine.Command{Type: engine.CmdMarkOut, Team: m.TeamID}, true
	case "rtm":
		return engine.Command{Type: engine.CmdRTMDecision, Team: m.TeamID, Accept: m.Accept}, true
	default:
		return engine.Command{}, false
	}
}
