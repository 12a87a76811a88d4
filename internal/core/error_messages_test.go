package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"invalid date", errors.New(`row 3: invalid date "not-a-date"`), "VAL001"},
		{"empty name", errors.New("name is empty"), "VAL003"},
		{"header count", errors.New("header column count is 4, expected 3"), "VAL004"},
		{"identifier column", errors.New("header contains identifier column \"Id\""), "VAL007"},
		{"header locale", errors.New("header locale mismatch"), "VAL005"},
		{"too large", fmt.Errorf("read upload: %w", ErrTooLarge), "FILE001"},
		{"empty file", errors.New("no data"), "FILE005"},
		{"busy", ErrTooManyImports, "IMP001"},
		{"not found", fmt.Errorf("remove 7: %w", ErrNotFound), "NF001"},
		{"case insensitive", errors.New("FILE TOO LARGE"), "FILE001"},
		{"unknown", errors.New("something odd"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError(%v).Code = %q, want %q", tt.err, got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	got := FormatUserError(ErrTooManyImports)
	want := "System is busy processing other imports (Code: IMP001). Please wait a moment and try again"
	if got != want {
		t.Errorf("FormatUserError = %q, want %q", got, want)
	}
	if FormatUserError(nil) != "" {
		t.Error("FormatUserError(nil) should be empty")
	}
}

func TestUserError_Unwrap(t *testing.T) {
	wrapped := fmt.Errorf("update 4: %w", ErrNotFound)
	ue := NewUserError(wrapped)

	if !errors.Is(ue, ErrNotFound) {
		t.Error("UserError should unwrap to ErrNotFound")
	}
	if ue.Error() != "Employee not found" {
		t.Errorf("Error() = %q", ue.Error())
	}
	if !IsUserFacing(wrapped) {
		t.Error("IsUserFacing should be true for known pattern")
	}
	if NewUserError(nil) != nil {
		t.Error("NewUserError(nil) should be nil")
	}
}
