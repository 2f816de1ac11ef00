package errors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation     Kind = "VALIDATION"
	KindAuthentication Kind = "AUTHENTICATION"
	KindNotFound       Kind = "NOT_FOUND"
	KindRateLimit      Kind = "RATE_LIMIT"
	KindServer         Kind = "SERVER"
	KindNetwork        Kind = "NETWORK"
	KindStorage        Kind = "STORAGE"
)

// Error is the single error shape used across the pipeline. The remote API's
// two response error formats are resolved into this tagged form once, at the
// API boundary; downstream code only ever inspects Kind and Retryable.
type Error struct {
	Kind      Kind   `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`

	FileKey string `json:"file_key,omitempty"`
	NodeID  string `json:"node_id,omitempty"`

	// Rate-limit metadata, populated only when Kind == KindRateLimit.
	RetryAfterSec int    `json:"retry_after_sec,omitempty"`
	PlanTier      string `json:"plan_tier,omitempty"`
	RateLimitType string `json:"rate_limit_type,omitempty"`
	UpgradeLink   string `json:"upgrade_link,omitempty"`

	Err error `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}

	switch e.Kind {
	case KindRateLimit:
		msg = fmt.Sprintf("rate limited: %s. Waiting %ds before retry", msg, e.RetryAfterSec)
		if e.PlanTier != "" {
			msg += fmt.Sprintf(" (plan: %s)", e.PlanTier)
		}
		if e.UpgradeLink != "" {
			msg += fmt.Sprintf(", upgrade: %s", e.UpgradeLink)
		}
	case KindAuthentication:
		msg = "authentication failed: " + msg
	case KindNotFound:
		msg = "not found: " + msg
	case KindStorage:
		msg = "storage: " + msg
	}

	if e.FileKey != "" || e.NodeID != "" {
		msg = fmt.Sprintf("%s [file=%s node=%s]", msg, e.FileKey, e.NodeID)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithNode attaches node context to the error and returns it.
func (e *Error) WithNode(fileKey, nodeID string) *Error {
	e.FileKey = fileKey
	e.NodeID = nodeID
	return e
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func Authentication(message string) *Error {
	return &Error{Kind: KindAuthentication, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func RateLimited(message string, retryAfterSec int) *Error {
	return &Error{
		Kind:          KindRateLimit,
		Message:       message,
		Retryable:     true,
		RetryAfterSec: retryAfterSec,
	}
}

func Server(status int, message string) *Error {
	return &Error{
		Kind:      KindServer,
		Message:   fmt.Sprintf("server error (%d): %s", status, message),
		Retryable: true,
	}
}

func Network(err error) *Error {
	return &Error{Kind: KindNetwork, Message: "network failure", Retryable: true, Err: err}
}

func Storage(message string, err error) *Error {
	return &Error{Kind: KindStorage, Message: message, Err: err}
}

// IsRetryable reports whether err (or anything it wraps) is a retryable
// pipeline error. Unknown error types are treated as not retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// KindOf extracts the taxonomy kind from err, or "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
