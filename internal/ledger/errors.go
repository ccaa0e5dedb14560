package ledger

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrNotFound = errors.New("ledger record not found")
	ErrConflict = errors.New("ledger record conflict")
)

var duplicatePattern = regexp.MustCompile(`(?i)duplicate|already exists|conflict`)

// Error is a structured failure surfaced by the ledger API.
type Error struct {
	Status int
	Reason string
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("ledger: %s (status=%d reason=%s)", e.Detail, e.Status, e.Reason)
	}
	return fmt.Sprintf("ledger: request failed (status=%d reason=%s)", e.Status, e.Reason)
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == 404 || e.Reason == "record.not-found"
	case ErrConflict:
		return e.Status == 409 || e.Reason == "CONFLICT"
	}
	return false
}

// IsDuplicate reports whether an intent-create failure means the record
// already exists: a conflict status, a conflict reason code, or a message
// matching a duplicate/already-exists pattern.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConflict) {
		return true
	}
	var lerr *Error
	if errors.As(err, &lerr) {
		if lerr.Status == 409 || lerr.Reason == "CONFLICT" {
			return true
		}
	}
	return duplicatePattern.MatchString(err.Error())
}
