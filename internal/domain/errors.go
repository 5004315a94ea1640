// Package domain provides the closed error taxonomy shared by every layer of the client.
package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind is the closed classification of every failure the client can return.
type ErrorKind string

const (
	// KindTransport is a connection-level failure before any response bytes were interpreted.
	KindTransport ErrorKind = "transport"

	// KindRemote is a well-formed error payload reported by the remote service.
	KindRemote ErrorKind = "remote"

	// KindMalformed is a frame or body that could not be parsed as JSON at all.
	KindMalformed ErrorKind = "malformed"

	// KindUnknownVariant is parseable JSON whose discriminator is not in the known set.
	KindUnknownVariant ErrorKind = "unknown_variant"

	// KindAmbiguous is parseable JSON carrying fields of more than one variant.
	KindAmbiguous ErrorKind = "ambiguous"

	// KindTruncated is a feed that closed before its terminator was observed.
	KindTruncated ErrorKind = "truncated"

	// KindFile is a local precondition failure unrelated to the network.
	KindFile ErrorKind = "file"
)

// Sentinels for errors.Is branching. A *ClientError matches the sentinel of its Kind.
var (
	ErrTransport      = errors.New("transport error")
	ErrRemote         = errors.New("remote error")
	ErrMalformed      = errors.New("malformed payload")
	ErrUnknownVariant = errors.New("unknown variant")
	ErrAmbiguous      = errors.New("ambiguous payload")
	ErrTruncated      = errors.New("truncated stream")
	ErrFile           = errors.New("file error")
)

func sentinelFor(kind ErrorKind) error {
	switch kind {
	case KindTransport:
		return ErrTransport
	case KindRemote:
		return ErrRemote
	case KindMalformed:
		return ErrMalformed
	case KindUnknownVariant:
		return ErrUnknownVariant
	case KindAmbiguous:
		return ErrAmbiguous
	case KindTruncated:
		return ErrTruncated
	case KindFile:
		return ErrFile
	}
	return nil
}

// ClientError is the uniform error value returned by every client operation.
type ClientError struct {
	// Kind is the closed classification.
	Kind ErrorKind

	// Message is a human-readable description.
	Message string

	// Discriminator is the offending discriminator value for KindUnknownVariant.
	Discriminator string

	// Fields lists the conflicting fields for KindAmbiguous.
	Fields []string

	// Raw holds the offending frame or body, when one exists.
	Raw []byte

	// StatusCode is the HTTP status of the response, when one exists.
	StatusCode int

	// Remote is the decoded error payload for KindRemote.
	Remote *RemoteError

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	switch {
	case e.Remote != nil:
		b.WriteString(": ")
		b.WriteString(e.Remote.Error())
	case e.Message != "":
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil && e.Remote == nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *ClientError) Is(target error) bool {
	s := sentinelFor(e.Kind)
	return s != nil && s == target
}

// Terminal reports whether the error ends a stream. Malformed, unknown and
// ambiguous frames are isolated to the element that carried them.
func (e *ClientError) Terminal() bool {
	switch e.Kind {
	case KindMalformed, KindUnknownVariant, KindAmbiguous:
		return false
	}
	return true
}

// KindOf returns the kind of err, or "" when err is not a *ClientError.
func KindOf(err error) ErrorKind {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// NewTransportError wraps a connection-level failure.
func NewTransportError(message string, err error) *ClientError {
	return &ClientError{Kind: KindTransport, Message: message, Err: err}
}

// NewRemoteError wraps a decoded remote error payload.
func NewRemoteError(remote *RemoteError) *ClientError {
	return &ClientError{Kind: KindRemote, Remote: remote, StatusCode: remote.StatusCode}
}

// NewMalformedError reports a payload that is not valid JSON.
func NewMalformedError(raw []byte, err error) *ClientError {
	return &ClientError{Kind: KindMalformed, Message: "payload is not valid JSON", Raw: raw, Err: err}
}

// NewUnknownVariantError reports a discriminator value outside the known set.
func NewUnknownVariantError(field, value string, raw []byte) *ClientError {
	msg := fmt.Sprintf("unknown %s %q", field, value)
	if value == "" {
		msg = fmt.Sprintf("missing %s discriminator", field)
	}
	return &ClientError{Kind: KindUnknownVariant, Message: msg, Discriminator: value, Raw: raw}
}

// NewAmbiguousError reports fields from more than one variant on a single payload.
func NewAmbiguousError(raw []byte, fields ...string) *ClientError {
	return &ClientError{
		Kind:    KindAmbiguous,
		Message: "payload carries fields of more than one variant: " + strings.Join(fields, ", "),
		Fields:  fields,
		Raw:     raw,
	}
}

// NewTruncatedError reports a feed that closed before its terminator.
func NewTruncatedError(pending []byte, err error) *ClientError {
	return &ClientError{Kind: KindTruncated, Message: "stream closed before terminator", Raw: pending, Err: err}
}

// NewFileError reports a local file precondition failure.
func NewFileError(path string, err error) *ClientError {
	return &ClientError{Kind: KindFile, Message: path, Err: err}
}

// ErrorType represents the category of a remote error.
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates a malformed or invalid request.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"

	// ErrorTypeAuthentication indicates an authentication failure.
	ErrorTypeAuthentication ErrorType = "authentication"

	// ErrorTypePermission indicates a permission/authorization failure.
	ErrorTypePermission ErrorType = "permission"

	// ErrorTypeNotFound indicates a resource was not found.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeRateLimit indicates rate limiting was triggered.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeOverloaded indicates the service is overloaded.
	ErrorTypeOverloaded ErrorType = "overloaded"

	// ErrorTypeServer indicates an internal server error.
	ErrorTypeServer ErrorType = "server"

	// ErrorTypeContextLength indicates the context length was exceeded.
	ErrorTypeContextLength ErrorType = "context_length"

	// ErrorTypeMaxTokens indicates a max_tokens limit issue.
	ErrorTypeMaxTokens ErrorType = "max_tokens"
)

// ErrorCode provides additional specificity beyond the error type.
type ErrorCode string

const (
	ErrorCodeContextLengthExceeded ErrorCode = "context_length_exceeded"
	ErrorCodeRateLimitExceeded     ErrorCode = "rate_limit_exceeded"
	ErrorCodeInvalidAPIKey         ErrorCode = "invalid_api_key"
	ErrorCodeModelNotFound         ErrorCode = "model_not_found"
	ErrorCodeMaxTokensExceeded     ErrorCode = "max_tokens_exceeded"
	ErrorCodeOutputTruncated       ErrorCode = "output_truncated"
)

// RemoteError is an error payload reported by the remote service, kept
// field-for-field alongside its canonical category.
type RemoteError struct {
	// Category is the canonical category derived from the wire fields.
	Category ErrorType

	// Code is the canonical code, when one could be derived.
	Code ErrorCode

	// Type is the wire "type" value.
	Type string

	// WireCode is the wire "code" value; nil when absent.
	WireCode *string

	// Message is the human-readable error message.
	Message string

	// Param is the parameter that caused the error; nil when absent.
	Param *string

	// EventID is the client event that caused a realtime error; nil when absent.
	EventID *string

	// StatusCode is the HTTP status that carried the error, 0 on streams.
	StatusCode int
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Category, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// HTTPStatusCode returns the HTTP status that best represents this error.
func (e *RemoteError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Category {
	case ErrorTypeInvalidRequest, ErrorTypeContextLength, ErrorTypeMaxTokens:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypePermission:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeOverloaded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
