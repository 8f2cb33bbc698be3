// Package errors provides unified error handling with structured error codes.
// Codes are grouped by pipeline stage so callers can decide between local
// recovery (detection, translation) and ending the session (capture, overlay).
package errors

import (
	stderrors "errors"
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode identifies a failure class.
type ErrorCode string

const (
	Unknown         ErrorCode = "UNKNOWN"
	Internal        ErrorCode = "INTERNAL"
	InvalidArgument ErrorCode = "INVALID_ARGUMENT"
	NotFound        ErrorCode = "NOT_FOUND"
	Unavailable     ErrorCode = "UNAVAILABLE"
	Timeout         ErrorCode = "TIMEOUT"
	Cancelled       ErrorCode = "CANCELLED"

	// Capture faults end the current run.
	CaptureUnavailable ErrorCode = "CAPTURE_UNAVAILABLE"
	CaptureLost        ErrorCode = "CAPTURE_LOST"

	// Detection faults are recovered per frame.
	DetectionFailed ErrorCode = "DETECTION_FAILED"

	// Translation faults fall back to the original text.
	TranslationFailed          ErrorCode = "TRANSLATION_FAILED"
	TranslationTimeout         ErrorCode = "TRANSLATION_TIMEOUT"
	TranslationInvalidResponse ErrorCode = "TRANSLATION_INVALID_RESPONSE"

	// Overlay faults end the session.
	OverlayAttachFailed ErrorCode = "OVERLAY_ATTACH_FAILED"

	SessionActive   ErrorCode = "SESSION_ACTIVE"
	SessionInactive ErrorCode = "SESSION_INACTIVE"

	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	ConfigMissing ErrorCode = "CONFIG_MISSING"
)

// ErrorDomain is reported in gRPC ErrorInfo details.
const ErrorDomain = "screen-translator"

// grpcCodeMap maps ErrorCode to gRPC status codes.
var grpcCodeMap = map[ErrorCode]codes.Code{
	Unknown:                    codes.Unknown,
	Internal:                   codes.Internal,
	InvalidArgument:            codes.InvalidArgument,
	NotFound:                   codes.NotFound,
	Unavailable:                codes.Unavailable,
	Timeout:                    codes.DeadlineExceeded,
	Cancelled:                  codes.Canceled,
	CaptureUnavailable:         codes.Unavailable,
	CaptureLost:                codes.Aborted,
	DetectionFailed:            codes.Internal,
	TranslationFailed:          codes.Unavailable,
	TranslationTimeout:         codes.DeadlineExceeded,
	TranslationInvalidResponse: codes.Internal,
	OverlayAttachFailed:        codes.FailedPrecondition,
	SessionActive:              codes.FailedPrecondition,
	SessionInactive:            codes.FailedPrecondition,
	ConfigInvalid:              codes.InvalidArgument,
	ConfigMissing:              codes.FailedPrecondition,
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     ErrorCode
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// ToProto converts to an ErrorInfo detail message.
func (e *AppError) ToProto() *errdetails.ErrorInfo {
	info := &errdetails.ErrorInfo{Reason: string(e.Code), Domain: ErrorDomain}
	if len(e.Metadata) > 0 {
		info.Metadata = e.Metadata
	}
	return info
}

// GRPCStatus returns a gRPC status with the ErrorInfo attached.
func (e *AppError) GRPCStatus() *status.Status {
	st := status.New(e.GRPCCode(), e.Message)
	if withDetails, err := st.WithDetails(e.ToProto()); err == nil {
		return withDetails
	}
	return st
}

// New creates a new AppError with the given code and message.
func New(code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// FromGRPCError extracts AppError from a gRPC error if present.
func FromGRPCError(err error) *AppError {
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: Unknown, Message: err.Error(), Cause: err}
	}

	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok && info.Domain == ErrorDomain {
			return &AppError{
				Code:     ErrorCode(info.Reason),
				Message:  st.Message(),
				Metadata: info.Metadata,
				Cause:    err,
			}
		}
	}

	return &AppError{Code: grpcToErrorCode(st.Code()), Message: st.Message(), Cause: err}
}

// grpcToErrorCode maps gRPC codes back to our error codes (best effort).
func grpcToErrorCode(c codes.Code) ErrorCode {
	switch c {
	case codes.InvalidArgument:
		return InvalidArgument
	case codes.NotFound:
		return NotFound
	case codes.Unavailable:
		return Unavailable
	case codes.DeadlineExceeded:
		return Timeout
	case codes.Canceled:
		return Cancelled
	case codes.Internal:
		return Internal
	case codes.FailedPrecondition:
		return ConfigMissing
	default:
		return Unknown
	}
}

// CodeOf returns the code of the first AppError in err's chain, or Unknown.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return Unknown
}

// IsCode checks if an error chain carries a specific error code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsRetryable returns true if the error is potentially retryable.
func IsRetryable(err error) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case Unavailable, Timeout, TranslationFailed, TranslationTimeout:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the error ends the current session.
func IsTerminal(err error) bool {
	switch CodeOf(err) {
	case CaptureUnavailable, CaptureLost, OverlayAttachFailed:
		return true
	default:
		return false
	}
}
