package store

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Storage-boundary outcomes. Callers translate these into domain errors.
var (
	ErrNotFound               = errors.New("record not found")
	ErrDuplicateComicName     = errors.New("comic name already exists")
	ErrDuplicateChapterNumber = errors.New("chapter number already used in comic")
	ErrInvalidChapterNumber   = errors.New("chapter number must be positive")
	ErrDuplicateTag           = errors.New("tag already exists")
	ErrDuplicateUsername      = errors.New("username already exists")
	ErrDuplicateRole          = errors.New("role already exists")
	ErrAuthorHasComics        = errors.New("user still authors comics")
	ErrSerialization          = errors.New("transaction serialization failure")
)

const (
	sqlStateUniqueViolation      = "23505"
	sqlStateCheckViolation       = "23514"
	sqlStateForeignKeyViolation  = "23503"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

var uniqueConstraints = map[string]error{
	"comics_name_key":                      ErrDuplicateComicName,
	"chapters_comic_id_chapter_number_key": ErrDuplicateChapterNumber,
	"tags_name_key":                        ErrDuplicateTag,
	"tags_name_lower_key":                  ErrDuplicateTag,
	"users_username_key":                   ErrDuplicateUsername,
	"roles_name_key":                       ErrDuplicateRole,
}

// translate maps driver errors onto the sentinels above. Unknown errors pass
// through untouched so callers still see the original cause.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case sqlStateUniqueViolation:
		if mapped, ok := uniqueConstraints[pgErr.ConstraintName]; ok {
			return mapped
		}
	case sqlStateCheckViolation:
		if pgErr.ConstraintName == "chapters_chapter_number_check" {
			return ErrInvalidChapterNumber
		}
	case sqlStateForeignKeyViolation:
		if pgErr.ConstraintName != "comics_author_id_fkey" {
			break
		}
		// Deleting the user reports the referenced table; inserting a comic
		// for a missing author reports the referencing one.
		if pgErr.TableName == "users" {
			return ErrAuthorHasComics
		}
		return ErrNotFound
	case sqlStateSerializationFailure, sqlStateDeadlockDetected:
		return ErrSerialization
	}
	return err
}
