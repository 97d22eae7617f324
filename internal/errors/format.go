package errors

import (
	"fmt"
	"strings"
)

// FormatForUser returns a user-friendly error message.
// If debug is true, includes additional technical details.
func FormatForUser(err error, debug bool) string {
	if err == nil {
		return ""
	}

	se, ok := err.(*StudyError)
	if !ok {
		return err.Error()
	}

	var sb strings.Builder

	sb.WriteString("Error: ")
	sb.WriteString(se.Message)
	sb.WriteString("\n")

	if se.Suggestion != "" {
		sb.WriteString("\nSuggestion: ")
		sb.WriteString(se.Suggestion)
		sb.WriteString("\n")
	}

	if debug {
		if se.Cause != nil {
			sb.WriteString(fmt.Sprintf("\nCause: %v\n", se.Cause))
		}
		for k, v := range se.Details {
			sb.WriteString(fmt.Sprintf("  %s: %s\n", k, v))
		}
	}

	sb.WriteString(fmt.Sprintf("\n[%s]", se.Code))

	return sb.String()
}

// FormatForCLI formats an error for CLI output.
// Uses a concise format suitable for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	se, ok := err.(*StudyError)
	if !ok {
		return "error: " + err.Error()
	}

	if se.Suggestion != "" {
		return fmt.Sprintf("error: %s (%s)\nhint: %s", se.Message, se.Code, se.Suggestion)
	}
	return fmt.Sprintf("error: %s (%s)", se.Message, se.Code)
}
