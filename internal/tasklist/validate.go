package tasklist

import "unicode/utf8"

// MinFieldRunes is the minimum length for both the title and the description
// of a new task.
const MinFieldRunes = 5

// Field error messages shown inline next to the create form. These are
// product strings; tests assert on them verbatim.
const (
	MsgTitleTooShort       = "Title Minimal 5 karakter"
	MsgDescriptionTooShort = "Description Minimal 5 karakter"
)

// Draft is the transient, client-only state of the create form. It resets to
// the zero value after a successful submission.
type Draft struct {
	Title       string
	Description string
}

// FieldErrors holds one message slot per form field. An empty slot means the
// field satisfies its constraint.
type FieldErrors struct {
	Title       string
	Description string
}

// OK reports whether every slot is clear.
func (e FieldErrors) OK() bool {
	return e.Title == "" && e.Description == ""
}

// Validate recomputes both message slots for a draft. The rules are
// evaluated independently: an invalid title does not suppress the
// description message, and each slot clears on its own once the
// corresponding field is long enough.
func Validate(d Draft) FieldErrors {
	var errs FieldErrors
	if utf8.RuneCountInString(d.Title) < MinFieldRunes {
		errs.Title = MsgTitleTooShort
	}
	if utf8.RuneCountInString(d.Description) < MinFieldRunes {
		errs.Description = MsgDescriptionTooShort
	}
	return errs
}
