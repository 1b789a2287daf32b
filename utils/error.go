package utils

import (
	"errors"
	"fmt"
	"strings"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var ErrorRecordNotFound = errors.New("record not found")

// Error codes surfaced to callers. Every business-rule failure carries exactly one.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeValidation        = "VALIDATION_ERROR"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
)

// AppError is a user-facing business-rule error. Handlers map Code to an HTTP status.
type AppError struct {
	Code    string
	Message string
	Details map[string]any
}

func (e *AppError) Error() string {
	return e.Message
}

// Is lets errors.Is match on code alone.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound          = &AppError{Code: CodeNotFound}
	ErrConflict          = &AppError{Code: CodeConflict}
	ErrValidation        = &AppError{Code: CodeValidation}
	ErrInsufficientStock = &AppError{Code: CodeInsufficientStock}
)

func NotFound(format string, args ...any) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *AppError {
	return &AppError{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *AppError {
	return &AppError{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationFields is a validation error that names the offending fields.
func ValidationFields(message string, fields map[string]string) *AppError {
	details := make(map[string]any, len(fields))
	for k, v := range fields {
		details[k] = v
	}
	return &AppError{Code: CodeValidation, Message: message, Details: details}
}

// ErrorCode returns the AppError code in err's chain, or "" for internal errors.
// The generic ErrorRecordNotFound of the fetch helpers counts as NOT_FOUND.
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	if errors.Is(err, ErrorRecordNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
		return CodeNotFound
	}
	return ""
}

// IsDuplicateKey reports a unique-constraint violation from MySQL or SQLite.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var me *mysqlDriver.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry")
}
