// Package xerr carries the error taxonomy used across the pipeline: a
// small set of tagged categories the scheduler switches on to decide
// whether to skip a symbol, abort a trade, or treat the error as fatal.
package xerr

import "fmt"

// Category tags an error with the policy that should be applied to it.
type Category string

const (
	// Transient covers network timeouts, 5xx responses and connection
	// resets. The gateway counts these toward its circuit breaker; the
	// scheduler skips the affected symbol for the current cycle.
	Transient Category = "transient"

	// RateLimited names an HTTP 429 response. The gateway does not emit
	// this category: a 429 surfaces as Transient like any other error
	// status, and nothing adjusts rate-limiter pacing from it.
	RateLimited Category = "rate_limited"

	// ExchangeRejection is a rejection carrying an exchange status code
	// (e.g. insufficient balance, symbol restricted). Aborts the trade
	// but not the cycle.
	ExchangeRejection Category = "exchange_rejection"

	// DataQuality marks missing or impossible data (e.g. high < low).
	// The producing component returns a zero value plus this error; the
	// caller skips the unit of work.
	DataQuality Category = "data_quality"

	// Invariant marks an internal consistency violation. Fatal: the
	// process logs and exits rather than continuing with corrupt state.
	Invariant Category = "invariant"
)

// Error is a categorized error value.
type Error struct {
	Category Category
	Code     string // exchange sCode, when applicable
	Op       string // operation that produced the error
	Err      error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s [%s]: %v", e.Op, e.Category, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Category, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether err is an *Error of the given category.
func Is(err error, cat Category) bool {
	var xe *Error
	for err != nil {
		if x, ok := err.(*Error); ok {
			xe = x
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return xe != nil && xe.Category == cat
}

func New(op string, cat Category, err error) *Error {
	return &Error{Op: op, Category: cat, Err: err}
}

func Rejection(op, code string, err error) *Error {
	return &Error{Op: op, Category: ExchangeRejection, Code: code, Err: err}
}

func Transientf(op string, format string, args ...any) *Error {
	return &Error{Op: op, Category: Transient, Err: fmt.Errorf(format, args...)}
}

func DataQualityf(op string, format string, args ...any) *Error {
	return &Error{Op: op, Category: DataQuality, Err: fmt.Errorf(format, args...)}
}

func Invariantf(op string, format string, args ...any) *Error {
	return &Error{Op: op, Category: Invariant, Err: fmt.Errorf(format, args...)}
}
