package protocol

import (
	apperrors "pagesync/pkg/errors"
)

// ErrorCode is the wire-level error code carried by error envelopes.
type ErrorCode string

const (
	CodeValidationError ErrorCode = "VALIDATION_ERROR"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeJoinRequired    ErrorCode = "JOIN_REQUIRED"
	CodeProcessError    ErrorCode = "PROCESS_ERROR"
	CodeRateLimited     ErrorCode = "RATE_LIMITED"
)

// ErrorPayload is the body of an error envelope. When the envelope carries a
// requestId the error settles that pending request; otherwise it is delivered
// to the generic error callback.
type ErrorPayload struct {
	Code    ErrorCode `json:"code" validate:"required"`
	Message string    `json:"message"`
}

// AsError converts a wire error payload into the application error taxonomy.
func (p ErrorPayload) AsError() error {
	switch p.Code {
	case CodeValidationError:
		return apperrors.NewValidation(p.Message)
	case CodeNotFound:
		return apperrors.NewNotFound(p.Message)
	case CodeJoinRequired:
		return apperrors.NewJoinRequired(p.Message)
	case CodeRateLimited:
		return apperrors.NewRateLimited(p.Message)
	default:
		return apperrors.NewProcess(p.Message, nil)
	}
}

// CodeForError maps an application error onto its wire code.
func CodeForError(err error) ErrorCode {
	switch {
	case apperrors.IsValidation(err):
		return CodeValidationError
	case apperrors.IsNotFound(err):
		return CodeNotFound
	case apperrors.IsJoinRequired(err):
		return CodeJoinRequired
	case apperrors.IsRateLimited(err):
		return CodeRateLimited
	default:
		return CodeProcessError
	}
}
