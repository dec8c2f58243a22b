package catalog

import (
	"context"
	"errors"
	"fmt"

	"brucewnd/api/internal/store"
)

type Kind string

const (
	KindNotFound               Kind = "NOT_FOUND"
	KindForbidden              Kind = "FORBIDDEN"
	KindUnauthorized           Kind = "UNAUTHORIZED"
	KindDuplicateName          Kind = "DUPLICATE_NAME"
	KindDuplicateChapterNumber Kind = "DUPLICATE_CHAPTER_NUMBER"
	KindTagCreationConflict    Kind = "TAG_CREATION_CONFLICT"
	KindInvalidChapterNumber   Kind = "INVALID_CHAPTER_NUMBER"
	KindInvalidMove            Kind = "INVALID_MOVE"
	KindValidation             Kind = "VALIDATION_ERROR"
	KindConflict               Kind = "CONFLICT"
)

// Error is the typed failure every catalog operation returns. Two errors
// match under errors.Is when their kinds match.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNotFound               = &Error{Kind: KindNotFound, Message: "not found"}
	ErrForbidden              = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrUnauthorized           = &Error{Kind: KindUnauthorized, Message: "authentication required"}
	ErrDuplicateName          = &Error{Kind: KindDuplicateName, Message: "name already taken"}
	ErrDuplicateChapterNumber = &Error{Kind: KindDuplicateChapterNumber, Message: "chapter number already used"}
	ErrTagCreationConflict    = &Error{Kind: KindTagCreationConflict, Message: "tag creation conflicted with a concurrent writer"}
	ErrInvalidChapterNumber   = &Error{Kind: KindInvalidChapterNumber, Message: "chapter number must be positive"}
	ErrInvalidMove            = &Error{Kind: KindInvalidMove, Message: "chapter cannot move past the end of the list"}
	ErrValidation             = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrConflict               = &Error{Kind: KindConflict, Message: "conflict"}
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the catalog kind of err, or "" for anything unclassified.
func KindOf(err error) Kind {
	var catalogErr *Error
	if errors.As(err, &catalogErr) {
		return catalogErr.Kind
	}
	return ""
}

// errAutoNumberTaken marks a unique violation on a chapter number the engine
// picked itself. It is retried; an explicit number is not.
var errAutoNumberTaken = errors.New("auto-assigned chapter number taken")

func retryable(err error) bool {
	switch {
	case errors.Is(err, store.ErrSerialization),
		errors.Is(err, store.ErrDuplicateTag),
		errors.Is(err, store.ErrDuplicateRole),
		errors.Is(err, ErrTagCreationConflict),
		errors.Is(err, errAutoNumberTaken):
		return true
	default:
		return false
	}
}

// classify turns storage failures into catalog errors. Errors that are
// already classified, context errors and unknown failures pass through.
func classify(err error) error {
	if err == nil || KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	wrap := func(kind Kind, message string) error {
		return &Error{Kind: kind, Message: message, Err: err}
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return wrap(KindNotFound, "not found")
	case errors.Is(err, store.ErrDuplicateComicName):
		return wrap(KindDuplicateName, "comic name already taken")
	case errors.Is(err, store.ErrDuplicateUsername):
		return wrap(KindDuplicateName, "username already taken")
	case errors.Is(err, store.ErrDuplicateChapterNumber):
		return wrap(KindDuplicateChapterNumber, "chapter number already used in this comic")
	case errors.Is(err, store.ErrInvalidChapterNumber):
		return wrap(KindInvalidChapterNumber, "chapter number must be positive")
	case errors.Is(err, store.ErrDuplicateTag):
		return wrap(KindTagCreationConflict, "tag creation conflicted with a concurrent writer")
	case errors.Is(err, store.ErrDuplicateRole):
		return wrap(KindConflict, "role creation conflicted with a concurrent writer")
	case errors.Is(err, store.ErrAuthorHasComics):
		return wrap(KindConflict, "user still authors comics")
	case errors.Is(err, store.ErrSerialization):
		return wrap(KindConflict, "concurrent update, try again")
	default:
		return err
	}
}
