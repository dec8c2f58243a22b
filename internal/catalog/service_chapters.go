package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"brucewnd/api/internal/store"
)

const maxChapterTitleLength = 200

// ChapterInput creates a chapter. A nil Number takes the next free position.
type ChapterInput struct {
	Title       string
	Number      *int
	IsPublished bool
}

type ChapterUpdate struct {
	Title       string
	IsPublished bool
}

func normalizeTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", newError(KindValidation, "chapter title is required")
	}
	if utf8.RuneCountInString(title) > maxChapterTitleLength {
		return "", newError(KindValidation, "chapter title must be at most %d characters", maxChapterTitleLength)
	}
	return title, nil
}

func (s *Service) ListChapters(ctx context.Context, caller Caller, comicID int64) ([]ChapterView, error) {
	var chapters []store.Chapter
	err := s.unitOfWork(ctx, "list_chapters", func(ctx context.Context, tx Tx) error {
		comic, err := tx.GetComic(ctx, comicID)
		if err != nil {
			return err
		}
		if err := checkVisible(caller, comic); err != nil {
			return err
		}
		chapters, err = tx.ListChapters(ctx, comicID, !caller.seesUnpublished())
		return err
	})
	if err != nil {
		return nil, err
	}
	return chapterViews(chapters), nil
}

func (s *Service) GetChapter(ctx context.Context, caller Caller, chapterID int64) (ChapterView, error) {
	var chapter store.Chapter
	err := s.unitOfWork(ctx, "get_chapter", func(ctx context.Context, tx Tx) error {
		var err error
		if chapter, err = tx.GetChapter(ctx, chapterID); err != nil {
			return err
		}
		comic, err := tx.GetComic(ctx, chapter.ComicID)
		if err != nil {
			return err
		}
		return checkChapterVisible(caller, comic, chapter)
	})
	if err != nil {
		return ChapterView{}, err
	}
	return chapterView(chapter), nil
}

// CreateChapter adds a chapter to a comic. Without an explicit number the
// chapter goes after the current last one; losing that race to a concurrent
// writer re-runs the whole unit with a fresh maximum.
func (s *Service) CreateChapter(ctx context.Context, caller Caller, comicID int64, input ChapterInput) (ChapterView, error) {
	if !caller.Authenticated() {
		return ChapterView{}, ErrUnauthorized
	}
	title, err := normalizeTitle(input.Title)
	if err != nil {
		return ChapterView{}, err
	}
	if input.Number != nil && *input.Number <= 0 {
		return ChapterView{}, ErrInvalidChapterNumber
	}

	var chapter store.Chapter
	err = s.unitOfWork(ctx, "create_chapter", func(ctx context.Context, tx Tx) error {
		comic, err := tx.LockComic(ctx, comicID)
		if err != nil {
			return err
		}
		if err := checkManage(caller, comic); err != nil {
			return err
		}

		number := 0
		if input.Number != nil {
			number = *input.Number
		} else {
			highest, err := tx.MaxChapterNumber(ctx, comicID)
			if err != nil {
				return err
			}
			number = nextChapterNumber(highest)
		}

		chapter, err = tx.InsertChapter(ctx, store.Chapter{
			ComicID:       comicID,
			Title:         title,
			ChapterNumber: number,
			IsPublished:   input.IsPublished,
		})
		if err != nil && input.Number == nil && errors.Is(err, store.ErrDuplicateChapterNumber) {
			return fmt.Errorf("%w: %w", errAutoNumberTaken, err)
		}
		return err
	})
	if err != nil {
		return ChapterView{}, err
	}
	return chapterView(chapter), nil
}

func (s *Service) UpdateChapter(ctx context.Context, caller Caller, chapterID int64, update ChapterUpdate) (ChapterView, error) {
	if !caller.Authenticated() {
		return ChapterView{}, ErrUnauthorized
	}
	title, err := normalizeTitle(update.Title)
	if err != nil {
		return ChapterView{}, err
	}

	var chapter store.Chapter
	err = s.unitOfWork(ctx, "update_chapter", func(ctx context.Context, tx Tx) error {
		current, err := s.lockChapter(ctx, tx, caller, chapterID)
		if err != nil {
			return err
		}
		current.Title = title
		current.IsPublished = update.IsPublished
		if err := tx.UpdateChapter(ctx, current); err != nil {
			return err
		}
		chapter = current
		return nil
	})
	if err != nil {
		return ChapterView{}, err
	}
	return chapterView(chapter), nil
}

// DeleteChapter removes one chapter. The remaining chapters keep their
// numbers; gaps are allowed.
func (s *Service) DeleteChapter(ctx context.Context, caller Caller, chapterID int64) error {
	if !caller.Authenticated() {
		return ErrUnauthorized
	}
	return s.unitOfWork(ctx, "delete_chapter", func(ctx context.Context, tx Tx) error {
		if _, err := s.lockChapter(ctx, tx, caller, chapterID); err != nil {
			return err
		}
		return tx.DeleteChapter(ctx, chapterID)
	})
}

// MoveChapter swaps a chapter's number with its neighbour in direction and
// returns the comic's chapters in their new order. Moving past either end is
// InvalidMove and changes nothing.
func (s *Service) MoveChapter(ctx context.Context, caller Caller, chapterID int64, direction Direction) ([]ChapterView, error) {
	if !caller.Authenticated() {
		return nil, ErrUnauthorized
	}
	if direction != DirectionUp && direction != DirectionDown {
		return nil, newError(KindValidation, "direction must be %q or %q", DirectionUp, DirectionDown)
	}

	var ordered []store.Chapter
	err := s.unitOfWork(ctx, "move_chapter", func(ctx context.Context, tx Tx) error {
		chapter, err := s.lockChapter(ctx, tx, caller, chapterID)
		if err != nil {
			return err
		}
		chapters, err := tx.ListChapters(ctx, chapter.ComicID, false)
		if err != nil {
			return err
		}
		moving, neighbour, err := neighbours(chapters, chapterID, direction)
		if err != nil {
			return err
		}
		if err := tx.SwapChapterNumbers(ctx, moving, neighbour); err != nil {
			return err
		}
		ordered, err = tx.ListChapters(ctx, chapter.ComicID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return chapterViews(ordered), nil
}

// lockChapter loads the chapter, locks its comic and checks the caller may
// manage it.
func (s *Service) lockChapter(ctx context.Context, tx Tx, caller Caller, chapterID int64) (store.Chapter, error) {
	chapter, err := tx.GetChapter(ctx, chapterID)
	if err != nil {
		return store.Chapter{}, err
	}
	comic, err := tx.LockComic(ctx, chapter.ComicID)
	if err != nil {
		return store.Chapter{}, err
	}
	if err := checkManage(caller, comic); err != nil {
		return store.Chapter{}, err
	}
	return chapter, nil
}
