// Package qerr provides the structured warning and error types spec §4.7
// describes: a Warning record carrying enough context (filename, object
// description, byte offset, message) to explain where in a PDF something
// went wrong, a DamageError for faults that abort the current operation,
// and a LogicError for internal-invariant violations (re-entrant parsing,
// copying a Reserved value) that indicate a caller misuse rather than a
// malformed file.
//
// Grounded on original_source/libqpdf/QPDF.cc's warn/stopOnError/
// damagedPDF factory family. Teacher never introduces a custom error
// library in core/resolver/reader — every error is a plain fmt.Errorf
// wrapping chain — so this package follows suit: qerr's types satisfy the
// standard error interface and nothing more.
package qerr

import "fmt"

// Warning is a single structured diagnostic, ordered by occurrence in a
// document context's warning list.
type Warning struct {
	Code       string
	Filename   string
	ObjectDesc string
	Offset     int64
	Message    string
}

func (w *Warning) Error() string {
	return fmt.Sprintf("%s: %s at %s (offset %d): %s", w.Filename, w.Code, w.ObjectDesc, w.Offset, w.Message)
}

// NewWarning constructs a Warning. code is a short machine-stable label
// ("xref/damaged-trailer", "stream/bad-length", ...); the rest give a
// human context for wherever the diagnostic occurred.
func NewWarning(code, filename, objectDesc string, offset int64, message string) *Warning {
	return &Warning{Code: code, Filename: filename, ObjectDesc: objectDesc, Offset: offset, Message: message}
}

// DamageError is a fault severe enough to abort the operation in
// progress: a Warning promoted to a hard failure.
type DamageError struct {
	*Warning
}

func (d *DamageError) Error() string { return "damaged PDF: " + d.Warning.Error() }

// Damage builds a DamageError, matching QPDF.cc's damagedPDF factory:
// callers supply only what they know and leave the rest as zero values
// (an empty ObjectDesc or a zero Offset are both meaningful "unknown").
func Damage(code, filename, objectDesc string, offset int64, message string) *DamageError {
	return &DamageError{Warning: NewWarning(code, filename, objectDesc, offset, message)}
}

// TooManyWarnings is the specific DamageError warn() raises once the
// configured max_warnings budget is exhausted.
func TooManyWarnings(filename string, count int) *DamageError {
	return Damage("too-many-warnings", filename, "", 0, fmt.Sprintf("exceeded %d warnings", count))
}

// LogicError signals a caller-side invariant violation (re-entrant
// parsing, copying a Reserved slot, mutating a released document) rather
// than a defect in the PDF being read.
type LogicError struct {
	Message string
}

func (e *LogicError) Error() string { return "logic error: " + e.Message }

// Logic constructs a LogicError from a format string.
func Logic(format string, args ...any) error {
	return &LogicError{Message: fmt.Sprintf(format, args...)}
}
