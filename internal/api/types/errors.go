package types

import appErr "github.com/caseforge/engine/pkg/errors"

// FromAppError converts an error into the wire error shape. Internal detail
// stays out of the payload; only the code and message cross the boundary.
func FromAppError(err error) *APIError {
	if err == nil {
		return nil
	}
	if e, ok := err.(*appErr.AppError); ok {
		return &APIError{Code: string(e.Code), Message: e.Message}
	}
	return &APIError{Code: string(appErr.CodeUnknown), Message: err.Error()}
}
