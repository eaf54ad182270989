package engine

import "fmt"

// Code classifies why a command was rejected.
type Code string

const (
	CodePreconditionFailed    Code = "precondition_failed"
	CodeNotYourTurn           Code = "not_your_turn"
	CodeInsufficientBudget    Code = "insufficient_budget"
	CodeSquadFull             Code = "squad_full"
	CodePositionRestricted    Code = "position_restricted"
	CodeOverseasQuotaExceeded Code = "overseas_quota_exceeded"
	CodeRTMIneligible         Code = "rtm_ineligible"
	CodePersistenceFailure    Code = "persistence_failure"
	CodeInvalidRequest        Code = "invalid_request"
	CodeStaleTimer            Code = "stale_timer"
)

// RejectError is returned for every refused command. Rejections never mutate state.
type RejectError struct {
	Code   Code
	Reason string
}

func (e *RejectError) Error() string {
	if e.Reason == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// Is matches on Code so the sentinels below compare equal to any reason.
func (e *RejectError) Is(target error) bool {
	t, ok := target.(*RejectError)
	return ok && t.Code == e.Code
}

var ErrPreconditionFailed = &RejectError{Code: CodePreconditionFailed}
var ErrNotYourTurn = &RejectError{Code: CodeNotYourTurn}
var ErrInsufficientBudget = &RejectError{Code: CodeInsufficientBudget}
var ErrSquadFull = &RejectError{Code: CodeSquadFull}
var ErrPositionRestricted = &RejectError{Code: CodePositionRestricted}
var ErrOverseasQuotaExceeded = &RejectError{Code: CodeOverseasQuotaExceeded}
var ErrRTMIneligible = &RejectError{Code: CodeRTMIneligible}
var ErrPersistenceFailure = &RejectError{Code: CodePersistenceFailure}
var ErrInvalidRequest = &RejectError{Code: CodeInvalidRequest}

// ErrStaleTimer marks a tick from a countdown that has since been disarmed.
var ErrStaleTimer = &RejectError{Code: CodeStaleTimer}

func reject(code Code, format string, args ...any) error {
	return &RejectError{Code: code, Reason: fmt.Sprintf(format, args...)}
}
