package core

// error_messages.go maps technical errors to user-facing messages with a
// support code.
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid date: a join date could not be parsed
//	         Patterns: "invalid date", "unparsable date"
//	VAL003 - Empty name: a row has no name
//	         Patterns: "name is empty"
//	VAL004 - Column count: the header does not have exactly 3 columns
//	         Patterns: "header column count"
//	VAL005 - Header locale: the header is neither the English nor the Korean set
//	         Patterns: "header locale"
//	VAL007 - Identifier column: the file carries an Id column (likely an export)
//	         Patterns: "identifier column"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large     Patterns: "file too large"
//	FILE002 - Invalid CSV        Patterns: "invalid csv", "parse error"
//	FILE003 - Encoding error     Patterns: "encoding error"
//	FILE004 - No file            Patterns: "no file provided"
//	FILE005 - Empty file         Patterns: "empty file", "no data"
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Busy                Patterns: "too many imports"
//	IMP002 - Cancelled           Patterns: "context canceled"
//	IMP003 - Timed out           Patterns: "context deadline exceeded"
//
// # Other
//
//	NF001   - Unknown employee       Patterns: "employee not found"
//	DLG001  - Dialog closed          Patterns: "dialog is closed"
//	VIEW001 - View not ready         Patterns: "view not ready"
//	VIEW002 - View not live          Patterns: "view not live"
//	VIEW003 - Unknown view           Patterns: "unknown view"
//	RATE001 - Rate limited           Patterns: "rate limit"
//	REQ001  - Malformed request      Patterns: "invalid employee id", "decode request"
//	ERR000  - Anything else; check the logs for the technical error.
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Validation
	{"invalid date", UserMessage{"Invalid date format detected", "Use YYYY-MM-DD, e.g. 2024-01-01", "VAL001"}},
	{"unparsable date", UserMessage{"Invalid date format detected", "Use YYYY-MM-DD, e.g. 2024-01-01", "VAL001"}},
	{"name is empty", UserMessage{"Name is empty", "Fill in a name for every row", "VAL003"}},
	{"header column count", UserMessage{"The header must have exactly 3 columns", "Download the template and keep its header row", "VAL004"}},
	{"identifier column", UserMessage{"The file contains an Id column", "Ids are assigned automatically; upload the template format, not an export", "VAL007"}},
	{"header locale", UserMessage{"Header columns are not recognized", "Use Name,Department,JoinDate or 이름,부서,입사일", "VAL005"}},

	// File
	{"file too large", UserMessage{"File exceeds the maximum size limit (10MB)", "Split the file into smaller files", "FILE001"}},
	{"invalid csv", UserMessage{"File is not a valid CSV", "Ensure the file is comma-separated text", "FILE002"}},
	{"parse error", UserMessage{"File is not a valid CSV", "Ensure the file is comma-separated text", "FILE002"}},
	{"encoding error", UserMessage{"File contains invalid characters", "Save the file as UTF-8", "FILE003"}},
	{"no file provided", UserMessage{"No file was selected", "Please select a CSV file to upload", "FILE004"}},
	{"empty file", UserMessage{"The uploaded file is empty", "Please upload a CSV file with data rows", "FILE005"}},
	{"no data", UserMessage{"The uploaded file is empty", "Please upload a CSV file with data rows", "FILE005"}},

	// Import scheduling
	{"too many imports", UserMessage{"System is busy processing other imports", "Please wait a moment and try again", "IMP001"}},
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "IMP002"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Try a smaller file or check your connection", "IMP003"}},

	// Records, dialog and views
	{"employee not found", UserMessage{"Employee not found", "Refresh the list; the record may have been deleted", "NF001"}},
	{"dialog is closed", UserMessage{"No dialog is open", "Open the create or edit dialog first", "DLG001"}},
	{"view not ready", UserMessage{"The table is not ready yet", "Wait a moment and try again", "VIEW001"}},
	{"view not live", UserMessage{"The table is not active", "Open the tab that shows it", "VIEW002"}},
	{"unknown view", UserMessage{"Unknown table", "Check the table name", "VIEW003"}},

	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
	{"invalid employee id", UserMessage{"Malformed request", "Ids are positive whole numbers", "REQ001"}},
	{"decode request", UserMessage{"Malformed request", "Send a JSON object body", "REQ001"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Unknown errors map to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error (for logs) with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}
