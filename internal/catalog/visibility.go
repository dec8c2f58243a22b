package catalog

import (
	"brucewnd/api/internal/rbac"
	"brucewnd/api/internal/store"
)

// Caller is the identity an operation runs on behalf of. The zero value is
// the anonymous caller.
type Caller struct {
	UserID   int64
	Username string
	Roles    rbac.Set
}

func (c Caller) Authenticated() bool {
	return c.UserID != 0
}

// seesUnpublished is the single capability check for unpublished content.
func (c Caller) seesUnpublished() bool {
	return c.Roles.IsAdmin()
}

// checkVisible hides an unpublished comic from callers without the
// capability. A missing comic has already failed with NotFound by now.
func checkVisible(caller Caller, comic store.Comic) error {
	if comic.IsPublished || caller.seesUnpublished() {
		return nil
	}
	return newError(KindForbidden, "comic is not published")
}

func checkChapterVisible(caller Caller, comic store.Comic, chapter store.Chapter) error {
	if err := checkVisible(caller, comic); err != nil {
		return err
	}
	if chapter.IsPublished || caller.seesUnpublished() {
		return nil
	}
	return newError(KindForbidden, "chapter is not published")
}

// checkManage allows the comic's author and moderators to change it.
func checkManage(caller Caller, comic store.Comic) error {
	if !caller.Authenticated() {
		return ErrUnauthorized
	}
	if caller.Roles.Can(rbac.ActionModerate) {
		return nil
	}
	if caller.UserID == comic.AuthorID && caller.Roles.Can(rbac.ActionWrite) {
		return nil
	}
	return newError(KindForbidden, "only the author or a moderator may change this comic")
}

func checkAdmin(caller Caller) error {
	if !caller.Authenticated() {
		return ErrUnauthorized
	}
	if !caller.Roles.Can(rbac.ActionAdmin) {
		return newError(KindForbidden, "administrator role required")
	}
	return nil
}

func checkAdminOrSelf(caller Caller, userID int64) error {
	if !caller.Authenticated() {
		return ErrUnauthorized
	}
	if caller.UserID == userID || caller.Roles.Can(rbac.ActionAdmin) {
		return nil
	}
	return newError(KindForbidden, "administrator role required")
}
