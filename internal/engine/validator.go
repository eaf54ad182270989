package engine

import (
	"github.com/shopspring/decimal"

	"github.com/DoyleJ11/auction-backend/internal/roster"
)

// Validate decides whether cmd is legal in s. It never mutates s. Checks run in
// a fixed order and the first failure wins: lot precondition, turn ownership,
// exclusion, bid amount and budget, overseas quota, position restriction,
// squad size.
func Validate(s State, cmd Command) error {
	switch cmd.Type {
	case CmdInitialize:
		return validateInitialize(s)
	case CmdNominate:
		return validateNominate(s, cmd)
	case CmdBid:
		return validateBid(s, cmd)
	case CmdMarkOut:
		return validateMarkOut(s, cmd)
	case CmdUnmarkOut:
		return validateUnmarkOut(s, cmd)
	case CmdRTMDecision:
		return validateRTMDecision(s, cmd)
	case CmdTimerTick:
		if s.Timer.Kind == TimerNone || s.Timer.Gen != cmd.Gen || s.Timer.Remaining <= 0 {
			return ErrStaleTimer
		}
		return nil
	case CmdTimerExpired:
		if s.Timer.Kind == TimerNone || s.Timer.Gen != cmd.Gen || s.Timer.Remaining > 0 {
			return ErrStaleTimer
		}
		return nil
	case CmdCompleteLot:
		return validateCompleteLot(s, cmd)
	case CmdResetLot:
		if !cmd.Admin {
			return reject(CodeInvalidRequest, "reset lot is an admin action")
		}
		if s.Lot == nil {
			return reject(CodePreconditionFailed, "no lot in progress")
		}
		return nil
	case CmdFullReset:
		if !cmd.Admin {
			return reject(CodeInvalidRequest, "full reset is an admin action")
		}
		return nil
	default:
		return reject(CodeInvalidRequest, "unsupported command %q", cmd.Type)
	}
}

func validateInitialize(s State) error {
	if s.Phase.Active() {
		return reject(CodePreconditionFailed, "auction already active")
	}
	if !s.anyUnsold() {
		return reject(CodePreconditionFailed, "every player is sold")
	}
	for _, id := range s.Catalog.TeamIDs() {
		if s.canNominate(id) {
			return nil
		}
	}
	return reject(CodePreconditionFailed, "no team is eligible to nominate")
}

func validateNominate(s State, cmd Command) error {
	switch {
	case s.Phase.Active():
		return reject(CodePreconditionFailed, "auction already active")
	case s.Phase == PhaseRoundComplete:
		return reject(CodePreconditionFailed, "round complete, initialize a new round")
	case !cmd.Admin && s.Turn < 0:
		return reject(CodePreconditionFailed, "nomination order not initialized")
	}

	team, err := lookupTeam(s, cmd.Team)
	if err != nil {
		return err
	}
	player, ok := s.Catalog.Player(cmd.PlayerID)
	if !ok {
		return reject(CodeInvalidRequest, "unknown player %q", cmd.PlayerID)
	}
	if owner, sold := s.Sold[player.ID]; sold {
		return reject(CodePreconditionFailed, "player %s already sold to %s", player.ID, owner)
	}

	if !cmd.Admin && s.Order[s.Turn] != team.ID {
		return reject(CodeNotYourTurn, "it is %s's turn to nominate", s.Order[s.Turn])
	}
	if team.Budget.LessThan(player.BasePrice) {
		return reject(CodeInsufficientBudget, "budget %s below base price %s", team.Budget, player.BasePrice)
	}
	if player.Overseas && s.overseasFull(team.ID) {
		return reject(CodeOverseasQuotaExceeded, "%s already holds %d overseas players", team.ID, s.Catalog.Limits.MaxOverseas)
	}
	if restricted, allowed := s.PositionRestriction(team.ID); restricted && !allowed[player.Position] {
		return reject(CodePositionRestricted, "%s must nominate one of %v", team.ID, positionsOf(allowed))
	}
	if s.squadFull(team.ID) {
		return reject(CodeSquadFull, "%s squad is full", team.ID)
	}
	return nil
}

func validateBid(s State, cmd Command) error {
	if err := biddingOpen(s); err != nil {
		return err
	}
	team, err := lookupTeam(s, cmd.Team)
	if err != nil {
		return err
	}
	lot := s.Lot
	// A team marked out may bid again; acceptance re-admits it.
	if lot.Leader == team.ID {
		return reject(CodePreconditionFailed, "%s already leads at %s", team.ID, lot.Bid)
	}

	if !cmd.Amount.IsPositive() {
		return reject(CodeInvalidRequest, "increment must be positive")
	}
	if !roster.IsMoney(cmd.Amount) {
		return reject(CodeInvalidRequest, "increment %s has more than two decimal places", cmd.Amount)
	}
	if minInc := s.Catalog.Limits.MinIncrement; cmd.Amount.LessThan(minInc) {
		return reject(CodeInvalidRequest, "increment %s below minimum %s", cmd.Amount, minInc)
	}
	if next := lot.Bid.Add(cmd.Amount); team.Budget.LessThan(next) {
		return reject(CodeInsufficientBudget, "bid %s exceeds budget %s", next, team.Budget)
	}

	player, _ := s.Catalog.Player(lot.PlayerID)
	if player.Overseas && s.overseasFull(team.ID) {
		return reject(CodeOverseasQuotaExceeded, "%s already holds %d overseas players", team.ID, s.Catalog.Limits.MaxOverseas)
	}
	if s.squadFull(team.ID) {
		return reject(CodeSquadFull, "%s squad is full", team.ID)
	}
	return nil
}

func validateMarkOut(s State, cmd Command) error {
	if err := biddingOpen(s); err != nil {
		return err
	}
	if _, err := lookupTeam(s, cmd.Team); err != nil {
		return err
	}
	switch {
	case s.Lot.Out[cmd.Team]:
		return reject(CodePreconditionFailed, "%s already out of this lot", cmd.Team)
	case s.Lot.Leader == cmd.Team:
		return reject(CodePreconditionFailed, "%s leads the lot and cannot mark out", cmd.Team)
	}
	return nil
}

func validateUnmarkOut(s State, cmd Command) error {
	if !cmd.Admin {
		return reject(CodeInvalidRequest, "unmark out is an admin action")
	}
	if err := biddingOpen(s); err != nil {
		return err
	}
	if _, err := lookupTeam(s, cmd.Team); err != nil {
		return err
	}
	if !s.Lot.Out[cmd.Team] {
		return reject(CodePreconditionFailed, "%s is not out of this lot", cmd.Team)
	}
	return nil
}

func validateRTMDecision(s State, cmd Command) error {
	if s.Phase != PhaseRTMDeciding {
		return reject(CodePreconditionFailed, "no right-to-match decision pending")
	}
	if cmd.Team != s.Lot.RTMTeam {
		return reject(CodeRTMIneligible, "%s does not hold the match right for this lot", cmd.Team)
	}
	return nil
}

func validateCompleteLot(s State, cmd Command) error {
	if !cmd.Admin {
		return reject(CodeInvalidRequest, "complete lot is an admin action")
	}
	switch s.Phase {
	case PhaseBidding, PhaseSoleBidder, PhaseRTMDeciding:
	default:
		return reject(CodePreconditionFailed, "no open lot to complete")
	}
	team, err := lookupTeam(s, cmd.Team)
	if err != nil {
		return err
	}
	if cmd.Amount.IsNegative() {
		return reject(CodeInvalidRequest, "price must not be negative")
	}
	if !roster.IsMoney(cmd.Amount) {
		return reject(CodeInvalidRequest, "price %s has more than two decimal places", cmd.Amount)
	}
	if team.Budget.LessThan(cmd.Amount) {
		return reject(CodeInsufficientBudget, "price %s exceeds budget %s", cmd.Amount, team.Budget)
	}
	player, _ := s.Catalog.Player(s.Lot.PlayerID)
	if player.Overseas && s.overseasFull(team.ID) {
		return reject(CodeOverseasQuotaExceeded, "%s already holds %d overseas players", team.ID, s.Catalog.Limits.MaxOverseas)
	}
	if s.squadFull(team.ID) {
		return reject(CodeSquadFull, "%s squad is full", team.ID)
	}
	return nil
}

func biddingOpen(s State) error {
	switch s.Phase {
	case PhaseBidding, PhaseSoleBidder:
		return nil
	case PhaseRTMDeciding, PhaseSettling:
		return reject(CodePreconditionFailed, "lot is being resolved")
	}
	return reject(CodePreconditionFailed, "no auction in progress")
}

func lookupTeam(s State, id string) (*TeamState, error) {
	t, ok := s.Teams[id]
	if !ok {
		return nil, reject(CodeInvalidRequest, "unknown team %q", id)
	}
	return t, nil
}

func (s *State) squadFull(teamID string) bool {
	return len(s.Teams[teamID].Squad) >= s.Catalog.Limits.MaxSquad
}

// overseasFull reports whether the team is at the overseas cap. A cap of zero
// means no limit.
func (s *State) overseasFull(teamID string) bool {
	limit := s.Catalog.Limits.MaxOverseas
	if limit <= 0 {
		return false
	}
	n := 0
	for _, pid := range s.Teams[teamID].Squad {
		if p, ok := s.Catalog.Player(pid); ok && p.Overseas {
			n++
		}
	}
	return n >= limit
}

// PositionRestriction reports whether the team must fill unmet per-position
// minimums with its remaining slots, and if so which positions it may nominate.
func (s *State) PositionRestriction(teamID string) (bool, map[roster.Position]bool) {
	t, ok := s.Teams[teamID]
	if !ok {
		return false, nil
	}
	have := map[roster.Position]int{}
	for _, pid := range t.Squad {
		if p, ok := s.Catalog.Player(pid); ok {
			have[p.Position]++
		}
	}

	unmet := 0
	allowed := map[roster.Position]bool{}
	for pos, need := range s.Catalog.Limits.MinPerPosition {
		if d := need - have[pos]; d > 0 {
			unmet += d
			allowed[pos] = true
		}
	}
	slots := s.Catalog.Limits.MaxSquad - len(t.Squad)
	if unmet == 0 || slots > unmet {
		return false, nil
	}
	return true, allowed
}

func positionsOf(set map[roster.Position]bool) []roster.Position {
	var out []roster.Position
	for _, p := range roster.Positions {
		if set[p] {
			out = append(out, p)
		}
	}
	return out
}

// minimumRaise is the smallest bid a new contender could place on the lot.
func (s *State) minimumRaise() decimal.Decimal {
	return s.Lot.Bid.Add(s.Catalog.Limits.MinIncrement)
}
