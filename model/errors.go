package model

import (
	"errors"
	"fmt"
	"net/http"

	"xdao.co/netmap/netmap"
)

type ErrorCode string

const (
	ErrInvalidRequest       ErrorCode = "INVALID_REQUEST"
	ErrInvalidHash          ErrorCode = "INVALID_HASH"
	ErrMalformed            ErrorCode = "MALFORMED"
	ErrInvalidSignature     ErrorCode = "INVALID_SIGNATURE"
	ErrUntrustedRoot        ErrorCode = "UNTRUSTED_ROOT"
	ErrNotFound             ErrorCode = "NOT_FOUND"
	ErrConflict             ErrorCode = "CONFLICT"
	ErrAuthorityUnavailable ErrorCode = "AUTHORITY_UNAVAILABLE"
	ErrStorage              ErrorCode = "STORAGE"
	ErrInternal             ErrorCode = "INTERNAL"
)

// CodedError is a stable error with a machine-readable code and a human message.
type CodedError struct {
	Code    ErrorCode `json:"code"`
	Rule    string    `json:"rule,omitempty"`
	Message string    `json:"message"`
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code ErrorCode, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

var kindCodes = map[netmap.Kind]ErrorCode{
	netmap.KindMalformed:            ErrMalformed,
	netmap.KindInvalidSignature:     ErrInvalidSignature,
	netmap.KindUntrustedRoot:        ErrUntrustedRoot,
	netmap.KindNotFound:             ErrNotFound,
	netmap.KindAuthorityUnavailable: ErrAuthorityUnavailable,
	netmap.KindConflict:             ErrConflict,
	netmap.KindStorage:              ErrStorage,
	netmap.KindInternal:             ErrInternal,
}

// FromError projects err onto a CodedError. Errors that are not
// *netmap.Error become INTERNAL.
func FromError(err error) *CodedError {
	if err == nil {
		return nil
	}
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce
	}
	var ne *netmap.Error
	if !errors.As(err, &ne) {
		return &CodedError{Code: ErrInternal, Message: err.Error()}
	}
	code, ok := kindCodes[ne.Kind]
	if !ok {
		code = ErrInternal
	}
	return &CodedError{Code: code, Rule: ne.RuleID, Message: ne.Error()}
}

// HTTPStatus is the response status for the error code.
func (e *CodedError) HTTPStatus() int {
	switch e.Code {
	case ErrInvalidRequest, ErrInvalidHash, ErrMalformed:
		return http.StatusBadRequest
	case ErrInvalidSignature, ErrUntrustedRoot:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	case ErrAuthorityUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
