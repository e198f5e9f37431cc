package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Code codes.Code

const (
	CodeInvalidArgument    = Code(codes.InvalidArgument)
	CodeNotFound           = Code(codes.NotFound)
	CodeAlreadyExists      = Code(codes.AlreadyExists)
	CodeFailedPrecondition = Code(codes.FailedPrecondition)
	CodeInternal           = Code(codes.Internal)
	CodeUnauthenticated    = Code(codes.Unauthenticated)
)

// Reason tells callers which part of the system rejected the request.
// Several reasons share a Code, e.g. artifact and payment failures are both Internal.
type Reason string

const (
	ReasonValidation       Reason = "VALIDATION"
	ReasonNotFound         Reason = "NOT_FOUND"
	ReasonAlreadyExists    Reason = "ALREADY_EXISTS"
	ReasonArtifact         Reason = "ARTIFACT"
	ReasonPayment          Reason = "PAYMENT"
	ReasonAuthenticity     Reason = "AUTHENTICITY"
	ReasonInvalidOperation Reason = "INVALID_OPERATION"
	ReasonUnauthenticated  Reason = "UNAUTHENTICATED"
	ReasonInternal         Reason = "INTERNAL"
)

var code2http = map[Code]int{
	CodeInvalidArgument:    http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeAlreadyExists:      http.StatusConflict,
	CodeFailedPrecondition: http.StatusBadRequest,
	CodeInternal:           http.StatusInternalServerError,
	CodeUnauthenticated:    http.StatusUnauthorized,
}

var code2reason = map[Code]Reason{
	CodeInvalidArgument:    ReasonValidation,
	CodeNotFound:           ReasonNotFound,
	CodeAlreadyExists:      ReasonAlreadyExists,
	CodeFailedPrecondition: ReasonInvalidOperation,
	CodeInternal:           ReasonInternal,
	CodeUnauthenticated:    ReasonUnauthenticated,
}

type Error struct {
	Code    Code   `json:"code"`
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Reason:  code2reason[code],
		Message: codes.Code(code).String(),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %d, reason: %s, message: %s", e.Code, e.Reason, e.Message)
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

// Is matches errors by Code and Reason so callers can compare against the
// sentinel-like values returned by the constructors below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}

	return e.Code == t.Code && e.Reason == t.Reason
}

func (e *Error) GRPCStatus() *status.Status {
	return status.New(codes.Code(e.Code), e.Message)
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

// ReasonOf returns the Reason of err, or ReasonInternal when err is not an *Error.
func ReasonOf(err error) Reason {
	if err == nil {
		return ""
	}

	return Convert(err).Reason
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

func Validation(opts ...Option) *Error {
	return New(CodeInvalidArgument, opts...)
}

func NotFound(opts ...Option) *Error {
	return New(CodeNotFound, opts...)
}

func AlreadyExists(opts ...Option) *Error {
	return New(CodeAlreadyExists, opts...)
}

func InvalidOperation(opts ...Option) *Error {
	return New(CodeFailedPrecondition, opts...)
}

func Unauthenticated(opts ...Option) *Error {
	return New(CodeUnauthenticated, opts...)
}

// Artifact reports a failure of the QR image provider.
func Artifact(opts ...Option) *Error {
	return New(CodeInternal, append([]Option{WithReason(ReasonArtifact)}, opts...)...)
}

// Payment reports a failure of the payment provider.
func Payment(opts ...Option) *Error {
	return New(CodeInternal, append([]Option{WithReason(ReasonPayment)}, opts...)...)
}

// Authenticity reports a provider notification whose signature could not be verified.
func Authenticity(opts ...Option) *Error {
	return New(CodeInvalidArgument, append([]Option{WithReason(ReasonAuthenticity)}, opts...)...)
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}

func WithReason(r Reason) Option {
	return optionFunc(func(e *Error) {
		e.Reason = r
	})
}
