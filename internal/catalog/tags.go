package catalog

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"brucewnd/api/internal/store"
)

const maxTagLength = 64

// NormalizeTagNames trims, lower-cases and deduplicates raw tag names,
// dropping blanks. First occurrence order is kept.
func NormalizeTagNames(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	names := make([]string, 0, len(raw))
	for _, name := range raw {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

func validateTagNames(names []string) error {
	for _, name := range names {
		if utf8.RuneCountInString(name) > maxTagLength {
			return newError(KindValidation, "tag %q is longer than %d characters", name, maxTagLength)
		}
	}
	return nil
}

// resolveTags maps normalized names to tag rows, creating the missing ones.
// A name that another writer created after this transaction began is neither
// visible nor insertable here; that surfaces as ErrTagCreationConflict and the
// whole unit of work is retried.
func resolveTags(ctx context.Context, tx Tx, names []string) ([]store.Tag, error) {
	if len(names) == 0 {
		return []store.Tag{}, nil
	}

	existing, err := tx.FindTagsByName(ctx, names)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]store.Tag, len(names))
	for _, tag := range existing {
		byName[tag.Name] = tag
	}

	missing := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := byName[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		created, err := tx.InsertTags(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, tag := range created {
			byName[tag.Name] = tag
		}
	}

	resolved := make([]store.Tag, 0, len(names))
	for _, name := range names {
		tag, ok := byName[name]
		if !ok {
			return nil, &Error{
				Kind:    KindTagCreationConflict,
				Message: fmt.Sprintf("tag %q was created concurrently", name),
			}
		}
		resolved = append(resolved, tag)
	}
	return resolved, nil
}

func tagIDs(tags []store.Tag) []int64 {
	ids := make([]int64, len(tags))
	for i, tag := range tags {
		ids[i] = tag.ID
	}
	return ids
}

// AttachTags resolves raw names and links them to the comic. Tags already on
// the comic are left as they are. It returns the comic's full tag set.
func (s *Service) AttachTags(ctx context.Context, caller Caller, comicID int64, raw []string) ([]string, error) {
	if !caller.Authenticated() {
		return nil, ErrUnauthorized
	}
	names := NormalizeTagNames(raw)
	if err := validateTagNames(names); err != nil {
		return nil, err
	}

	var comic store.Comic
	err := s.unitOfWork(ctx, "attach_tags", func(ctx context.Context, tx Tx) error {
		current, err := tx.LockComic(ctx, comicID)
		if err != nil {
			return err
		}
		if err := checkManage(caller, current); err != nil {
			return err
		}
		tags, err := resolveTags(ctx, tx, names)
		if err != nil {
			return err
		}
		if err := tx.AttachTags(ctx, comicID, tagIDs(tags)); err != nil {
			return err
		}
		comic, err = tx.GetComic(ctx, comicID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.index.IndexComic(searchDocument(comic))
	return nonNilStrings(comic.Tags), nil
}

// DetachTag unlinks one tag from the comic. The tag row itself stays.
func (s *Service) DetachTag(ctx context.Context, caller Caller, comicID int64, rawName string) error {
	if !caller.Authenticated() {
		return ErrUnauthorized
	}
	names := NormalizeTagNames([]string{rawName})
	if len(names) == 0 {
		return newError(KindValidation, "tag name is required")
	}

	var comic store.Comic
	err := s.unitOfWork(ctx, "detach_tag", func(ctx context.Context, tx Tx) error {
		current, err := tx.LockComic(ctx, comicID)
		if err != nil {
			return err
		}
		if err := checkManage(caller, current); err != nil {
			return err
		}
		found, err := tx.FindTagsByName(ctx, names)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return newError(KindNotFound, "tag %q does not exist", names[0])
		}
		if err := tx.DetachTag(ctx, comicID, found[0].ID); err != nil {
			return err
		}
		comic, err = tx.GetComic(ctx, comicID)
		return err
	})
	if err != nil {
		return err
	}

	s.index.IndexComic(searchDocument(comic))
	return nil
}

func (s *Service) ListTags(ctx context.Context) ([]TagView, error) {
	var tags []store.Tag
	err := s.unitOfWork(ctx, "list_tags", func(ctx context.Context, tx Tx) error {
		var err error
		tags, err = tx.ListTags(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	views := make([]TagView, len(tags))
	for i, tag := range tags {
		views[i] = TagView{ID: tag.ID, Name: tag.Name}
	}
	return views, nil
}
