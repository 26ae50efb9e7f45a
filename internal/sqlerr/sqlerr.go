// Package sqlerr classifies sqlite driver errors and converts them into
// client facing HTTP errors.
package sqlerr

import (
	"context"
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kind is the category of a storage failure.
type Kind int

const (
	// Other is anything the caller cannot act on.
	Other Kind = iota
	// Transient failures are expected to succeed when retried later.
	Transient
	// Constraint failures are caused by the data the caller sent.
	Constraint
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Constraint:
		return "constraint"
	default:
		return "other"
	}
}

// Classify reports the Kind of err by walking its chain for a sqlite3.Error.
func Classify(err error) Kind {
	if err == nil {
		return Other
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}

	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return Other
	}
	switch sqliteErr.Code {
	case sqlite3.ErrBusy,
		sqlite3.ErrLocked,
		sqlite3.ErrIoErr,
		sqlite3.ErrCantOpen,
		sqlite3.ErrFull,
		sqlite3.ErrProtocol:
		return Transient
	case sqlite3.ErrConstraint:
		return Constraint
	default:
		return Other
	}
}

// constraintColumn extracts "name" from a message such as
// "NOT NULL constraint failed: dreams.name".
func constraintColumn(message string) string {
	_, target, found := strings.Cut(message, "constraint failed: ")
	if !found {
		return ""
	}
	target = strings.SplitN(target, ",", 2)[0]
	if i := strings.LastIndex(target, "."); i >= 0 {
		target = target[i+1:]
	}
	return strings.TrimSpace(target)
}

func humanizeText(text string) string {
	if text == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ReplaceAll(text, "_", " "))
}
