package apperr

import (
	"errors"
	"fmt"
)

const (
	MetaReason     = "reason"
	MetaStage      = "stage"
	MetaField      = "field"
	MetaSessionID  = "session_id"
	MetaStepIndex  = "step_index"
	MetaSelector   = "selector"
	MetaURL        = "url"
	MetaStatusCode = "status_code"
	MetaCommand    = "command"

	StageBrowser    = "browser"
	StageSnapshot   = "snapshot"
	StageAI         = "ai"
	StageNormalize  = "normalize"
	StageMatch      = "match"
	StageReconcile  = "reconcile"
	StageRender     = "render"
	StageTracking   = "tracking"
	StageSession    = "session"
	StageNavigation = "navigation"

	CodeInternal          = "internal"
	CodeInvalidArgument   = "invalid_argument"
	CodeNotFound          = "not_found"
	CodeUnavailable       = "unavailable"
	CodeTimeout           = "timeout"
	CodeRateLimited       = "rate_limited"
	CodeMalformedProposal = "malformed_proposal"
	CodeUnresolved        = "unresolved"
	CodeBusy              = "busy"
	CodeInvalidState      = "invalid_state"
	CodeStaleAnchor       = "stale_anchor"
	CodeBrowserNotReady   = "browser_not_ready"
	CodeAIError           = "ai_error"
)

type Error struct {
	Op       string
	Code     string
	Err      error
	Metadata map[string]any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}

	return e.Op
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Wrap(op, code string, err error, metadata map[string]any) error {
	if metadata == nil {
		metadata = make(map[string]any)
	}

	return &Error{
		Op:       op,
		Code:     code,
		Err:      err,
		Metadata: metadata,
	}
}

func WrapWithReason(op, code string, err error, reason string) error {
	return Wrap(op, code, err, map[string]any{
		MetaReason: reason,
	})
}

func WrapErrorWithReason(op, code, reason string) error {
	return Wrap(op, code, errors.New(reason), map[string]any{
		MetaReason: reason,
	})
}

func InvalidReqError(op, field string, err error) error {
	return Wrap(op, CodeInvalidArgument, err, map[string]any{
		MetaField:  field,
		MetaReason: "invalid_request",
	})
}

func NotFoundError(op string, err error) error {
	return Wrap(op, CodeNotFound, err, map[string]any{
		MetaReason: "not_found",
	})
}

// CodeOf returns the code of the outermost *Error in the chain, or "" if
// err carries none.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}

	return ""
}

// IsCode reports whether any *Error in the chain carries code.
func IsCode(err error, code string) bool {
	for err != nil {
		var appErr *Error
		if !errors.As(err, &appErr) {
			return false
		}

		if appErr.Code == code {
			return true
		}

		err = appErr.Err
	}

	return false
}

// Retryable reports whether the failure is worth one more attempt against
// the instruction source.
func Retryable(err error) bool {
	return IsCode(err, CodeRateLimited) || IsCode(err, CodeUnavailable) || IsCode(err, CodeTimeout)
}
