// Package codec maps transport results and wire payloads onto the client's
// error taxonomy and typed events.
package codec

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/tjfontaine/aiwire/internal/domain"
	"github.com/tjfontaine/aiwire/internal/model"
)

// ToClientError converts any error to a *domain.ClientError. Client errors pass
// through unchanged; anything else is a transport failure.
func ToClientError(err error) *domain.ClientError {
	if err == nil {
		return nil
	}
	var ce *domain.ClientError
	if errors.As(err, &ce) {
		return ce
	}
	return FromTransport(err)
}

// FromTransport classifies a failure to obtain a response at all.
func FromTransport(err error) *domain.ClientError {
	var ce *domain.ClientError
	if errors.As(err, &ce) {
		return ce
	}
	switch {
	case errors.Is(err, context.Canceled):
		return domain.NewTransportError("request canceled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return domain.NewTransportError("request timed out", err)
	}
	return domain.NewTransportError("send request", err)
}

// FromHTTPResponse maps a non-2xx response to a remote error. The wire error
// payload is kept field for field when one is recognized; otherwise the error
// is classified from the status alone.
func FromHTTPResponse(status int, body []byte) *domain.ClientError {
	var remote *domain.RemoteError
	if payload, ok := model.ParseErrorPayload(body); ok {
		remote = ToRemoteError(payload, status)
	} else {
		msg := http.StatusText(status)
		if text := strings.TrimSpace(string(body)); text != "" && !json.Valid(body) && len(text) <= 200 {
			msg = text
		}
		remote = &domain.RemoteError{
			Category:   categoryFromStatus(status),
			Message:    msg,
			StatusCode: status,
		}
	}

	ce := domain.NewRemoteError(remote)
	ce.Raw = body
	return ce
}

// ToRemoteError derives the canonical category of a wire error payload. status
// is the carrying HTTP status, or 0 on streams.
func ToRemoteError(payload *model.RealtimeError, status int) *domain.RemoteError {
	var wireCode string
	if payload.Code != nil {
		wireCode = *payload.Code
	}

	category, code := mapWireError(payload.Type, wireCode, payload.Message)
	if category == "" && status != 0 {
		category = categoryFromStatus(status)
	}
	if category == "" {
		category = domain.ErrorTypeServer
	}

	return &domain.RemoteError{
		Category:   category,
		Code:       code,
		Type:       payload.Type,
		WireCode:   payload.Code,
		Message:    payload.Message,
		Param:      payload.Param,
		EventID:    payload.EventID,
		StatusCode: status,
	}
}

// mapWireError maps wire type, code, and message to a canonical category. It
// returns an empty category when nothing matches.
func mapWireError(errType, errCode, message string) (domain.ErrorType, domain.ErrorCode) {
	switch errCode {
	case "context_length_exceeded":
		return domain.ErrorTypeContextLength, domain.ErrorCodeContextLengthExceeded
	case "rate_limit_exceeded":
		return domain.ErrorTypeRateLimit, domain.ErrorCodeRateLimitExceeded
	case "invalid_api_key":
		return domain.ErrorTypeAuthentication, domain.ErrorCodeInvalidAPIKey
	case "model_not_found":
		return domain.ErrorTypeNotFound, domain.ErrorCodeModelNotFound
	case "max_tokens_exceeded":
		return domain.ErrorTypeMaxTokens, domain.ErrorCodeMaxTokensExceeded
	}

	if t, c := detectErrorTypeFromMessage(message); t != "" {
		return t, c
	}

	switch errType {
	case "invalid_request_error":
		return domain.ErrorTypeInvalidRequest, ""
	case "authentication_error":
		return domain.ErrorTypeAuthentication, domain.ErrorCodeInvalidAPIKey
	case "permission_denied", "permission_error":
		return domain.ErrorTypePermission, ""
	case "not_found", "not_found_error":
		return domain.ErrorTypeNotFound, ""
	case "rate_limit_error", "rate_limit_exceeded", "insufficient_quota":
		return domain.ErrorTypeRateLimit, domain.ErrorCodeRateLimitExceeded
	case "service_unavailable", "overloaded_error":
		return domain.ErrorTypeOverloaded, ""
	case "server_error", "api_error":
		return domain.ErrorTypeServer, ""
	}
	return "", ""
}

// detectErrorTypeFromMessage attempts to detect the error type from the message content.
func detectErrorTypeFromMessage(message string) (domain.ErrorType, domain.ErrorCode) {
	msgLower := strings.ToLower(message)

	switch {
	case strings.Contains(msgLower, "context length") ||
		strings.Contains(msgLower, "context window") ||
		strings.Contains(msgLower, "too many tokens"):
		return domain.ErrorTypeContextLength, domain.ErrorCodeContextLengthExceeded

	case strings.Contains(msgLower, "could not finish") ||
		strings.Contains(msgLower, "output limit"):
		return domain.ErrorTypeMaxTokens, domain.ErrorCodeOutputTruncated

	case strings.Contains(msgLower, "max_tokens") ||
		strings.Contains(msgLower, "maximum tokens"):
		return domain.ErrorTypeMaxTokens, domain.ErrorCodeMaxTokensExceeded

	case strings.Contains(msgLower, "rate limit"):
		return domain.ErrorTypeRateLimit, domain.ErrorCodeRateLimitExceeded

	case strings.Contains(msgLower, "api key") ||
		strings.Contains(msgLower, "authentication") ||
		strings.Contains(msgLower, "unauthorized"):
		return domain.ErrorTypeAuthentication, domain.ErrorCodeInvalidAPIKey

	case strings.Contains(msgLower, "model not found") ||
		strings.Contains(msgLower, "does not exist"):
		return domain.ErrorTypeNotFound, domain.ErrorCodeModelNotFound
	}

	return "", ""
}

func categoryFromStatus(status int) domain.ErrorType {
	switch {
	case status == http.StatusUnauthorized:
		return domain.ErrorTypeAuthentication
	case status == http.StatusForbidden:
		return domain.ErrorTypePermission
	case status == http.StatusNotFound:
		return domain.ErrorTypeNotFound
	case status == http.StatusTooManyRequests:
		return domain.ErrorTypeRateLimit
	case status == http.StatusServiceUnavailable || status == 529:
		return domain.ErrorTypeOverloaded
	case status >= 500:
		return domain.ErrorTypeServer
	case status >= 400:
		return domain.ErrorTypeInvalidRequest
	}
	return ""
}

// WriteError writes remote as an OpenAI-style error body with its HTTP status.
func WriteError(w http.ResponseWriter, remote *domain.RemoteError) {
	errObj := map[string]any{
		"message": remote.Message,
		"type":    wireErrorType(remote),
		"param":   remote.Param,
		"code":    wireErrorCode(remote),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(remote.HTTPStatusCode())
	json.NewEncoder(w).Encode(map[string]any{"error": errObj})
}

func wireErrorType(remote *domain.RemoteError) string {
	if remote.Type != "" {
		return remote.Type
	}
	switch remote.Category {
	case domain.ErrorTypeInvalidRequest, domain.ErrorTypeContextLength, domain.ErrorTypeMaxTokens:
		return "invalid_request_error"
	case domain.ErrorTypeAuthentication:
		return "authentication_error"
	case domain.ErrorTypePermission:
		return "permission_denied"
	case domain.ErrorTypeNotFound:
		return "not_found"
	case domain.ErrorTypeRateLimit:
		return "rate_limit_error"
	case domain.ErrorTypeOverloaded:
		return "service_unavailable"
	default:
		return "server_error"
	}
}

func wireErrorCode(remote *domain.RemoteError) *string {
	if remote.WireCode != nil {
		return remote.WireCode
	}
	var code string
	switch remote.Code {
	case "":
		return nil
	case domain.ErrorCodeMaxTokensExceeded, domain.ErrorCodeOutputTruncated:
		code = "max_tokens_exceeded"
	default:
		code = string(remote.Code)
	}
	return &code
}
