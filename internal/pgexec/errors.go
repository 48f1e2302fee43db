package pgexec

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxStderrLen = 512

var (
	// ErrReservedSchema is returned for attempts to drop or restore a
	// system schema.
	ErrReservedSchema = errors.New("refusing to touch reserved schema")
	// ErrSchemaEmpty is returned by VerifySchema when the schema has no tables.
	ErrSchemaEmpty = errors.New("schema has no tables")
)

// ExecutionError describes a failed pg_dump, pg_restore or psql run.
type ExecutionError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecutionError) Error() string {
	msg := e.Stderr
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s failed (exit %d): %s", e.Command, e.ExitCode, msg)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// sanitizeStderr flattens stderr onto one line and caps it so it fits in a
// job's error_message. The result is always valid UTF-8; the cap never
// splits a rune.
func sanitizeStderr(stderr []byte) string {
	out := strings.ToValidUTF8(strings.TrimSpace(string(stderr)), "\uFFFD")
	out = strings.ReplaceAll(out, "\r", " ")
	out = strings.ReplaceAll(out, "\n", " ")
	if len(out) > maxStderrLen {
		cut := maxStderrLen
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut] + "..."
	}
	return out
}

var ignorableRestoreErrors = []string{
	"already exists",
	"does not exist, skipping",
}

// restoreErrorsIgnorable reports whether every error line pg_restore printed
// belongs to the ignorable class. Output with no recognizable error line is
// not ignorable.
func restoreErrorsIgnorable(stderr []byte) bool {
	found := false
	for _, line := range strings.Split(string(stderr), "\n") {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "error:") || strings.Contains(lower, "errors ignored on restore") {
			continue
		}
		found = true
		ignorable := false
		for _, pattern := range ignorableRestoreErrors {
			if strings.Contains(lower, pattern) {
				ignorable = true
				break
			}
		}
		if !ignorable {
			return false
		}
	}
	return found
}
