// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// UsageError reports a caller or environment problem: malformed identifiers,
// ambiguous format selection, a missing converter tool, or a missing parent
// entity. It is fatal to the current operation and its message names the
// offending input.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return e.Msg }

// Usagef builds a UsageError with fmt.Sprintf semantics.
func Usagef(format string, args ...any) *UsageError {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// LookupError reports that a concrete archive path does not exist or is not
// accessible to the authenticated user.
type LookupError struct {
	Path string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("could not find asset corresponding to %q (please make sure you have access to it if it exists)", e.Path)
}
