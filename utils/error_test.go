package utils

import (
	"errors"
	"fmt"
	"testing"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{NotFound("job %s not found", "x"), CodeNotFound},
		{fmt.Errorf("wrapped: %w", Conflict("busy")), CodeConflict},
		{Validation("bad"), CodeValidation},
		{ErrorRecordNotFound, CodeNotFound},
		{gorm.ErrRecordNotFound, CodeNotFound},
		{errors.New("disk on fire"), ""},
	}
	for _, tc := range cases {
		if got := ErrorCode(tc.err); got != tc.want {
			t.Errorf("ErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestAppErrorIsMatchesCode(t *testing.T) {
	err := fmt.Errorf("approve: %w", NotFound("report not found"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected NOT_FOUND to match")
	}
	if errors.Is(err, ErrConflict) {
		t.Fatalf("NOT_FOUND must not match CONFLICT")
	}
	if !errors.Is(err, NotFound("report not found")) || errors.Is(err, NotFound("job not found")) {
		t.Fatalf("a target with a message must match the message too")
	}
}

func TestValidationFieldsCarriesDetails(t *testing.T) {
	err := ValidationFields("missing required fields", map[string]string{"shift_id": "required"})
	if err.Code != CodeValidation || err.Details["shift_id"] != "required" {
		t.Fatalf("unexpected error: %+v", err)
	}
}

func TestIsDuplicateKey(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{gorm.ErrDuplicatedKey, true},
		{&mysqlDriver.MySQLError{Number: 1062, Message: "Duplicate entry 'active'"}, true},
		{&mysqlDriver.MySQLError{Number: 1213, Message: "Deadlock found"}, false},
		{errors.New("constraint failed: UNIQUE constraint failed: shifts.active_slot (2067)"), true},
		{errors.New("no such table: shifts"), false},
	}
	for _, tc := range cases {
		if got := IsDuplicateKey(tc.err); got != tc.want {
			t.Errorf("IsDuplicateKey(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestClampLimit(t *testing.T) {
	if ClampLimit(0, 50, 500) != 50 || ClampLimit(-3, 50, 500) != 50 {
		t.Fatalf("non-positive limit must use the default")
	}
	if ClampLimit(900, 50, 500) != 500 || ClampLimit(20, 50, 500) != 20 {
		t.Fatalf("limit not clamped")
	}
}
