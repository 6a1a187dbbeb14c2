package errors

import (
	"errors"

	"github.com/mezonai/mvnode/jsonx"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NetworkErrorCode classifies the failure sent back to whoever asked the
// node to process something.
type NetworkErrorCode string

const (
	// General errors
	ErrCodeFailed NetworkErrorCode = "failed"

	// The request is well formed but the node is missing what it needs,
	// a parent block for instance.
	ErrCodeFailedPrecondition NetworkErrorCode = "failed_precondition"

	// The request itself is wrong and retrying will not help.
	ErrCodeInvalidArgument NetworkErrorCode = "invalid_argument"
)

// NetworkError represents a standardized network error
type NetworkError struct {
	Code    NetworkErrorCode `json:"code"`
	Message string           `json:"message"`
	cause   error
}

// Error implements the error interface
func (e *NetworkError) Error() string {
	err, _ := jsonx.Marshal(struct {
		Code    NetworkErrorCode `json:"code"`
		Message string           `json:"message"`
	}{e.Code, e.Message})
	return string(err)
}

func (e *NetworkError) Unwrap() error {
	return e.cause
}

// GRPCStatus lets status.FromError and status.Code understand the error.
func (e *NetworkError) GRPCStatus() *status.Status {
	var code codes.Code
	switch e.Code {
	case ErrCodeFailedPrecondition:
		code = codes.FailedPrecondition
	case ErrCodeInvalidArgument:
		code = codes.InvalidArgument
	default:
		code = codes.Unknown
	}
	return status.New(code, e.Message)
}

// Error message constants - user-friendly and concise
const (
	ErrMsgMissingParent      = "Parent block is not known to this node"
	ErrMsgInvalidHeader      = "Block header is invalid"
	ErrMsgInvalidBlock       = "Block contents are invalid"
	ErrMsgStorage            = "Server storage error, please try again"
	ErrMsgInternal           = "Server error, please try again"
	ErrMsgEmptyHeaderStream  = "Header stream is empty"
	ErrMsgRequestCancelled   = "Request was cancelled"
	ErrMsgUnknownBlockHeader = "Requested block is not known to this node"
)

// NewError creates a new NetworkError and returns it as error interface
func NewError(code NetworkErrorCode, message string) error {
	return &NetworkError{
		Code:    code,
		Message: message,
	}
}

// Wrap keeps cause reachable through errors.Is and errors.As.
func Wrap(code NetworkErrorCode, message string, cause error) error {
	return &NetworkError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// CodeOf returns ErrCodeFailed for anything that is not a NetworkError.
func CodeOf(err error) NetworkErrorCode {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Code
	}
	return ErrCodeFailed
}
