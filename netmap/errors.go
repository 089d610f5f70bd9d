package netmap

import "errors"

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind/RuleID rather than matching error strings.
// Use errors.As to extract *Error for structured handling.
type Kind string

const (
	// KindMalformed: bytes do not parse as the expected envelope, certificate or payload schema.
	KindMalformed Kind = "MalformedInput"
	// KindInvalidSignature: input parses but a signature or chain link does not verify.
	KindInvalidSignature Kind = "InvalidSignature"
	// KindUntrustedRoot: the chain is internally consistent but does not end at a trusted root.
	KindUntrustedRoot Kind = "UntrustedRoot"
	KindNotFound      Kind = "NotFound"
	// KindAuthorityUnavailable: no usable authority keypair/certificate. Fatal for signing.
	KindAuthorityUnavailable Kind = "AuthorityUnavailable"
	// KindConflict: a different byte sequence is already stored under the same hash.
	KindConflict Kind = "Conflict"
	KindStorage  Kind = "Storage"
	KindInternal Kind = "Internal"
)

// Error is the structured error type shared by the protocol packages.
//
// RuleID is a stable identifier (e.g. NM-ENV-001, NM-CERT-004) naming the
// violated rule. Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewError returns a structured error without a cause.
func NewError(kind Kind, ruleID, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

// WrapError returns a structured error carrying cause.
func WrapError(kind Kind, ruleID, msg string, cause error) error {
	if cause == nil {
		return NewError(kind, ruleID, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) an *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the Kind of a structured error, or "" if err is not one.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}
