package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorClass separates completion failures that are worth retrying from
// those that are not.
type ErrorClass int

const (
	// ClassUnknown covers errors the provider could not classify. Treated
	// as permanent so an unclassified failure never loops the retrier.
	ClassUnknown ErrorClass = iota
	// ClassTransient covers timeouts, rate limits and 5xx responses.
	ClassTransient
	// ClassPermanent covers malformed input and other client-side faults.
	ClassPermanent
)

// ServiceError wraps a provider failure with its retry classification.
type ServiceError struct {
	Class ErrorClass
	Op    string
	Err   error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable service error.
func Transient(op string, err error) error {
	return &ServiceError{Class: ClassTransient, Op: op, Err: err}
}

// Permanent wraps err as a non-retryable service error.
func Permanent(op string, err error) error {
	return &ServiceError{Class: ClassPermanent, Op: op, Err: err}
}

// Classify reports the retry class of err. Context cancellation is
// permanent from the caller's point of view: retrying a dead context is
// pointless. Deadline expiry and network timeouts are transient.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Class
	}
	if errors.Is(err, context.Canceled) {
		return ClassPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ClassTransient
	}
	return ClassUnknown
}

// FromStatus wraps a provider SDK error according to its HTTP status.
func FromStatus(op string, status int, err error) error {
	if ClassifyStatus(status) == ClassTransient {
		return Transient(op, err)
	}
	return Permanent(op, err)
}

// ClassifyStatus maps an HTTP status code from a provider SDK onto an
// error class. 429 and all 5xx are transient; everything else in the
// 4xx range is permanent.
func ClassifyStatus(status int) ErrorClass {
	switch {
	case status == 429:
		return ClassTransient
	case status >= 500:
		return ClassTransient
	case status >= 400:
		return ClassPermanent
	default:
		return ClassUnknown
	}
}
