// Package xerrors declares the closed taxonomy of error kinds spec.md §7
// enumerates, replacing the source's exception-as-control-flow pattern with
// a sum-type-like *Error that callers pattern-match on via Kind.
package xerrors

import (
	"errors"
	"fmt"
)

// Kind is one of the named failure categories from spec.md §7.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindTransientRPC  Kind = "transient_rpc"
	KindFilterStale   Kind = "filter_stale"
	KindRateLimited   Kind = "rate_limited"
	KindOracleStale   Kind = "oracle_stale"
	KindSequencerDown Kind = "sequencer_down"
	KindPolicyReject  Kind = "policy_reject"
	KindContractRevert Kind = "contract_revert"
	KindDatabaseError Kind = "database_error"
	KindKillSwitch    Kind = "kill_switch"
	KindSessionCap    Kind = "session_cap"
)

// RevertKind distinguishes the one contract revert that demotes a candidate
// from the generic "other" bucket, per spec.md §4.E step 7 and §7.
type RevertKind string

const (
	RevertHealthFactorRecovered RevertKind = "health_factor_recovered"
	RevertOther                 RevertKind = "other"
)

// HealthFactorNotBelowThresholdSelector is the 4-byte ABI error selector
// spec.md §4.E names explicitly.
const HealthFactorNotBelowThresholdSelector = "0x930bb771"

// Error wraps an underlying cause with the taxonomy kind, a retryability
// hint, and an optional revert sub-classification.
type Error struct {
	Kind      Kind
	Retryable bool
	Detail    string
	Revert    RevertKind
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap builds an *Error of the given kind around an existing cause.
func Wrap(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Cause: cause}
}

// WithRetryable sets e's retryability hint and returns it, for fluent
// construction.
func (e *Error) WithRetryable(v bool) *Error {
	e.Retryable = v
	return e
}

// AsError extracts an *Error from err via errors.As, reporting ok=false if
// err does not wrap one.
func AsError(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// IsKind reports whether err wraps an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}

// ClassifyRPCMessage maps a raw RPC error string to the matching kind per
// spec.md §4.C's classification rules. Returns ok=false when nothing
// matches, in which case the caller should treat it as a generic transient
// error.
func ClassifyRPCMessage(msg string) (Kind, bool) {
	lower := toLower(msg)
	switch {
	case contains(lower, "429"), contains(lower, "too many requests"), contains(lower, "rate limit"), isServerErrorCode(lower):
		return KindRateLimited, true
	case contains(lower, "filter not found"):
		return KindFilterStale, true
	case contains(lower, "closed"):
		return KindTransientRPC, true
	case contains(lower, "resource not found"):
		return KindTransientRPC, true
	default:
		return "", false
	}
}

func isServerErrorCode(lower string) bool {
	for _, code := range []string{"500", "502", "503", "504"} {
		if contains(lower, code) {
			return true
		}
	}
	return false
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func contains(haystack, needle string) bool {
	if len(needle) == 0 {
		return true
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
