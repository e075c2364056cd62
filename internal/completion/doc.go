// Package completion turns a cursor position into at most one inline
// suggestion.
//
// A Session guards when a suggestion may be requested, a Gate limits how
// often the backend is called, and a Pipeline builds the prompt, calls the
// backend, normalizes the answer and runs it through a Cascade of
// duplication and quality filters. A rejected answer schedules exactly one
// shorter retry whose result is parked in the Gate until the cursor
// returns to the same position.
//
// None of the failure paths are shown to the user. They surface as
// abstains, recorded in Metrics and the log.
package completion
