package utils

import "errors"

// Error taxonomy. Callers wrap these with fmt.Errorf("%w: ...") so that
// handlers can classify with errors.Is while keeping actionable messages.
var (
	// ErrorRecordNotFound: missing company/order/report. Terminal for the call.
	ErrorRecordNotFound = errors.New("record not found")

	// ErrorValidation: bad input (invalid period, non-positive id). Rejected
	// before any write; safe to retry with corrected input.
	ErrorValidation = errors.New("validation error")

	// ErrorMissingContext: a business entity lacks the data needed to
	// classify or quantify it. Never silently substituted with zero values,
	// since that would misstate a regulatory filing.
	ErrorMissingContext = errors.New("missing context")

	// ErrorStateConflict: illegal workflow transition, role check failure, or
	// lost optimistic-version race.
	ErrorStateConflict = errors.New("state conflict")
)

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
