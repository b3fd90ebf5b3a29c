package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every rejection or failure on the trading path unwraps to one of these.
var (
	// ErrAdmissionRejected: a gate failed or the score fell below the cutoff.
	// Terminal for the candidate epoch; never retried automatically.
	ErrAdmissionRejected = errors.New("admission rejected")

	// ErrBudgetRejected: sizing or reservation failed on exposure, concurrency
	// or daily-loss limits. A later candidate epoch may be reconsidered.
	ErrBudgetRejected = errors.New("budget rejected")

	// ErrExecutionFailed: routing failed, timed out or filled partially.
	// Capital is released and the event is surfaced for manual review.
	ErrExecutionFailed = errors.New("execution failed")

	// ErrConfiguration: malformed thresholds or weights. Fatal at load time.
	ErrConfiguration = errors.New("configuration error")
)

// Budget rejection reasons.
const (
	ReasonDailyLossBreaker   = "DAILY_LOSS_CIRCUIT_BREAKER"
	ReasonMaxConcurrent      = "MAX_CONCURRENT_POSITIONS"
	ReasonGlobalExposureCap  = "GLOBAL_EXPOSURE_CAP"
	ReasonInvalidAmount      = "INVALID_AMOUNT"
	ReasonNoEdge             = "NO_EDGE"
	ReasonNoHeadroom         = "NO_HEADROOM"
	ReasonBelowMinOrder      = "BELOW_MIN_ORDER"
	ReasonScoreBelowCutoff   = "SCORE_BELOW_CUTOFF"
	ReasonPositionExists     = "POSITION_EXISTS"
	ReasonDuplicateExecution = "DUPLICATE_EXECUTION"
	ReasonPartialFill        = "PARTIAL_FILL"
	ReasonTimeout            = "TIMEOUT"
	ReasonRouteError         = "ROUTE_ERROR"
)

// RejectionError is a typed rejection carrying a reason code.
// It unwraps to its Kind so callers can use errors.Is.
type RejectionError struct {
	Kind   error
	Reason string
	Detail string
}

// Error implements error.
func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", e.Kind, e.Reason, e.Detail)
}

// Unwrap returns the error kind.
func (e *RejectionError) Unwrap() error {
	return e.Kind
}

// Reject builds a RejectionError.
func Reject(kind error, reason, detail string) *RejectionError {
	return &RejectionError{Kind: kind, Reason: reason, Detail: detail}
}

// ReasonOf extracts the reason code from err, or "" if err is not a RejectionError.
func ReasonOf(err error) string {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return ""
}
