package sqlerr

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mattn/go-sqlite3"

	"github.com/at-ishikawa/dreamjournal/internal/dream"
	"github.com/at-ishikawa/dreamjournal/internal/errs"
	"github.com/at-ishikawa/dreamjournal/internal/validation"
)

// BusyMessage is returned with every 503 response.
const BusyMessage = "Database is busy or not ready. Try again shortly."

// HandleError converts a repository error into an *errs.HTTPError.
// An *errs.HTTPError anywhere in the chain is returned unchanged.
func HandleError(err error) *errs.HTTPError {
	var httpErr *errs.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}

	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		return validation.NewError(validationErrors)
	case errors.Is(err, dream.ErrNotFound):
		return errs.NewNotFoundError("Dream not found")
	case errors.Is(err, dream.ErrInvalidMonth):
		return errs.NewBadRequestError("Invalid month", []errs.FieldError{
			{Field: "month", Error: "must be between 1 and 12"},
		})
	}

	switch Classify(err) {
	case Transient:
		return errs.NewServiceUnavailableError(BusyMessage)
	case Constraint:
		return constraintError(err)
	default:
		return errs.NewInternalServerError(fmt.Sprintf("Unexpected error: %v", err))
	}
}

func constraintError(err error) *errs.HTTPError {
	var sqliteErr sqlite3.Error
	errors.As(err, &sqliteErr)

	column := constraintColumn(sqliteErr.Error())
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintNotNull:
		return errs.NewBadRequestError(fmt.Sprintf("The %s is required", humanizeText(column)), []errs.FieldError{
			{Field: column, Error: "is required"},
		})
	case sqlite3.ErrConstraintForeignKey:
		return errs.NewBadRequestError("The referenced dream does not exist", nil)
	default:
		return errs.NewBadRequestError("One or more values do not meet required conditions", nil)
	}
}
