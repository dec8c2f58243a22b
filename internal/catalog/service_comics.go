package catalog

import (
	"context"
	"strings"
	"unicode/utf8"

	"brucewnd/api/internal/rbac"
	"brucewnd/api/internal/store"
)

const (
	maxComicNameLength = 200
	maxSynopsisLength  = 10000
)

type ComicInput struct {
	Name        string
	Synopsis    string
	CoverImage  *string
	IsPublished bool
	Tags        []string
}

// ComicUpdate replaces the comic's fields. Tags is applied only when SetTags
// is true; an empty list then clears every tag.
type ComicUpdate struct {
	Name        string
	Synopsis    string
	CoverImage  *string
	IsPublished bool
	SetTags     bool
	Tags        []string
}

type comicFields struct {
	name     string
	synopsis string
	cover    *string
	tags     []string
}

func normalizeComic(name, synopsis string, cover *string, tags []string) (comicFields, error) {
	fields := comicFields{
		name:     strings.TrimSpace(name),
		synopsis: strings.TrimSpace(synopsis),
		tags:     NormalizeTagNames(tags),
	}
	if fields.name == "" {
		return comicFields{}, newError(KindValidation, "comic name is required")
	}
	if utf8.RuneCountInString(fields.name) > maxComicNameLength {
		return comicFields{}, newError(KindValidation, "comic name must be at most %d characters", maxComicNameLength)
	}
	if utf8.RuneCountInString(fields.synopsis) > maxSynopsisLength {
		return comicFields{}, newError(KindValidation, "synopsis must be at most %d characters", maxSynopsisLength)
	}
	if cover != nil {
		if trimmed := strings.TrimSpace(*cover); trimmed != "" {
			fields.cover = &trimmed
		}
	}
	if err := validateTagNames(fields.tags); err != nil {
		return comicFields{}, err
	}
	return fields, nil
}

func (s *Service) CreateComic(ctx context.Context, caller Caller, input ComicInput) (ComicDetail, error) {
	if !caller.Authenticated() {
		return ComicDetail{}, ErrUnauthorized
	}
	if !caller.Roles.Can(rbac.ActionWrite) {
		return ComicDetail{}, newError(KindForbidden, "creating comics requires the user role")
	}
	fields, err := normalizeComic(input.Name, input.Synopsis, input.CoverImage, input.Tags)
	if err != nil {
		return ComicDetail{}, err
	}

	var comic store.Comic
	err = s.unitOfWork(ctx, "create_comic", func(ctx context.Context, tx Tx) error {
		inserted, err := tx.InsertComic(ctx, store.Comic{
			Name:        fields.name,
			Synopsis:    fields.synopsis,
			CoverImage:  fields.cover,
			IsPublished: input.IsPublished,
			AuthorID:    caller.UserID,
		})
		if err != nil {
			return err
		}
		tags, err := resolveTags(ctx, tx, fields.tags)
		if err != nil {
			return err
		}
		if err := tx.AttachTags(ctx, inserted.ID, tagIDs(tags)); err != nil {
			return err
		}
		comic, err = tx.GetComic(ctx, inserted.ID)
		return err
	})
	if err != nil {
		return ComicDetail{}, err
	}

	s.index.IndexComic(searchDocument(comic))
	s.logger.InfoContext(ctx, "comic created", "comic_id", comic.ID, "author_id", comic.AuthorID)
	return comicDetail(comic, nil), nil
}

func (s *Service) UpdateComic(ctx context.Context, caller Caller, comicID int64, update ComicUpdate) (ComicDetail, error) {
	if !caller.Authenticated() {
		return ComicDetail{}, ErrUnauthorized
	}
	fields, err := normalizeComic(update.Name, update.Synopsis, update.CoverImage, update.Tags)
	if err != nil {
		return ComicDetail{}, err
	}

	var (
		comic    store.Comic
		chapters []store.Chapter
	)
	err = s.unitOfWork(ctx, "update_comic", func(ctx context.Context, tx Tx) error {
		current, err := tx.LockComic(ctx, comicID)
		if err != nil {
			return err
		}
		if err := checkManage(caller, current); err != nil {
			return err
		}

		current.Name = fields.name
		current.Synopsis = fields.synopsis
		current.CoverImage = fields.cover
		current.IsPublished = update.IsPublished
		if err := tx.UpdateComic(ctx, current); err != nil {
			return err
		}
		if update.SetTags {
			tags, err := resolveTags(ctx, tx, fields.tags)
			if err != nil {
				return err
			}
			if err := tx.ReplaceComicTags(ctx, comicID, tagIDs(tags)); err != nil {
				return err
			}
		}

		if comic, err = tx.GetComic(ctx, comicID); err != nil {
			return err
		}
		chapters, err = tx.ListChapters(ctx, comicID, false)
		return err
	})
	if err != nil {
		return ComicDetail{}, err
	}

	s.index.IndexComic(searchDocument(comic))
	return comicDetail(comic, chapters), nil
}

// DeleteComic removes the comic together with its chapters and tag links.
func (s *Service) DeleteComic(ctx context.Context, caller Caller, comicID int64) error {
	if !caller.Authenticated() {
		return ErrUnauthorized
	}
	err := s.unitOfWork(ctx, "delete_comic", func(ctx context.Context, tx Tx) error {
		comic, err := tx.LockComic(ctx, comicID)
		if err != nil {
			return err
		}
		if err := checkManage(caller, comic); err != nil {
			return err
		}
		return tx.DeleteComic(ctx, comicID)
	})
	if err != nil {
		return err
	}

	s.index.RemoveComic(comicID)
	s.logger.InfoContext(ctx, "comic deleted", "comic_id", comicID, "by", caller.UserID)
	return nil
}

// ListComics returns the comics the caller may see. Unpublished comics are
// left out for everyone but administrators.
func (s *Service) ListComics(ctx context.Context, caller Caller) ([]ComicSummary, error) {
	var comics []store.Comic
	err := s.unitOfWork(ctx, "list_comics", func(ctx context.Context, tx Tx) error {
		var err error
		comics, err = tx.ListComics(ctx, !caller.seesUnpublished())
		return err
	})
	if err != nil {
		return nil, err
	}

	summaries := make([]ComicSummary, 0, len(comics))
	for _, comic := range comics {
		if checkVisible(caller, comic) != nil {
			continue
		}
		summaries = append(summaries, comicSummary(comic))
	}
	return summaries, nil
}

func (s *Service) GetComic(ctx context.Context, caller Caller, comicID int64) (ComicDetail, error) {
	return s.loadDetail(ctx, caller, "get_comic", func(ctx context.Context, tx Tx) (store.Comic, error) {
		return tx.GetComic(ctx, comicID)
	})
}

func (s *Service) GetComicByName(ctx context.Context, caller Caller, name string) (ComicDetail, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ComicDetail{}, newError(KindValidation, "comic name is required")
	}
	return s.loadDetail(ctx, caller, "get_comic_by_name", func(ctx context.Context, tx Tx) (store.Comic, error) {
		return tx.GetComicByName(ctx, name)
	})
}

// loadDetail loads one comic through load and projects it for caller: a
// missing comic is NotFound, an unpublished one Forbidden for non-admins.
func (s *Service) loadDetail(ctx context.Context, caller Caller, op string, load func(context.Context, Tx) (store.Comic, error)) (ComicDetail, error) {
	var detail ComicDetail
	err := s.unitOfWork(ctx, op, func(ctx context.Context, tx Tx) error {
		comic, err := load(ctx, tx)
		if err != nil {
			return err
		}
		if err := checkVisible(caller, comic); err != nil {
			return err
		}
		chapters, err := tx.ListChapters(ctx, comic.ID, !caller.seesUnpublished())
		if err != nil {
			return err
		}
		detail = comicDetail(comic, chapters)
		return nil
	})
	return detail, err
}
