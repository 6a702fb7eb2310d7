package utils

import (
	"time"

	"github.com/go-playground/validator/v10"
)

func DereferencePtr[T any](ptr *T, defaults ...T) T {
	if ptr != nil {
		return *ptr
	}
	if len(defaults) > 0 {
		return defaults[0]
	}
	var zero T
	return zero
}

func Ptr[T any](v T) *T {
	return &v
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDayExclusive returns midnight of the following day, i.e. the exclusive
// upper bound of t's calendar day.
func EndOfDayExclusive(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1)
}

// MonthBounds returns [start, end) of the given month in UTC.
func MonthBounds(year int, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// ProcessValidationErrors flattens binding validation failures into a
// field -> failed-rule map for the error response body.
func ProcessValidationErrors(err error) map[string]string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"request": err.Error()}
	}
	errorResponse := make(map[string]string, len(validationErrors))
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}
	return errorResponse
}
