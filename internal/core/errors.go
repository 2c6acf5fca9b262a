package core

import "errors"

// Error codes for domain errors. They are part of the wire protocol.
const (
	ErrCodeAuthenticationFailed = "authentication_failed"
	ErrCodeNotAuthenticated     = "not_authenticated"
	ErrCodeConversationNotFound = "conversation_not_found"
	ErrCodeUserNotFound         = "user_not_found"
	ErrCodeNotParticipant       = "not_a_participant"
	ErrCodeInvalidInput         = "invalid_input"
	ErrCodeEmptyContent         = "empty_content"
	ErrCodeInvalidParticipants  = "invalid_participants"
	ErrCodeRateLimited          = "rate_limited"
	ErrCodeUnknownType          = "unknown_type"
	ErrCodeInternal             = "internal_error"
)

var (
	ErrAuthenticationFailed = coreError(ErrCodeAuthenticationFailed, "authentication failed")
	ErrNotAuthenticated     = coreError(ErrCodeNotAuthenticated, "not authenticated")
	ErrConversationNotFound = coreError(ErrCodeConversationNotFound, "conversation not found")
	ErrUserNotFound         = coreError(ErrCodeUserNotFound, "user not found")
	ErrNotAParticipant      = coreError(ErrCodeNotParticipant, "not a participant of this conversation")
	ErrInvalidInput         = coreError(ErrCodeInvalidInput, "invalid input")
	ErrEmptyContent         = coreError(ErrCodeEmptyContent, "message content is empty")
	ErrInvalidParticipants  = coreError(ErrCodeInvalidParticipants, "invalid participants")
	ErrRateLimited          = coreError(ErrCodeRateLimited, "too many commands")
	ErrUnknownType          = coreError(ErrCodeUnknownType, "unknown command type")

	errInternal = coreError(ErrCodeInternal, "internal error")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// toCoreError maps any error to its wire form. Errors that are not domain
// errors become internal_error; their details stay in the server log.
func toCoreError(err error) (*CoreError, bool) {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce, true
	}
	return errInternal, false
}
