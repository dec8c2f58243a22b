package catalog

import (
	"strings"

	"brucewnd/api/internal/store"
)

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

func ParseDirection(raw string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(raw))); d {
	case DirectionUp, DirectionDown:
		return d, nil
	default:
		return "", newError(KindValidation, "direction must be %q or %q", DirectionUp, DirectionDown)
	}
}

// nextChapterNumber is the number given to a chapter created without one.
func nextChapterNumber(currentMax int) int {
	return currentMax + 1
}

// neighbours returns the chapter and its adjacent sibling in direction. The
// list must be ordered by chapter number ascending. Up means toward the
// smaller number.
func neighbours(chapters []store.Chapter, chapterID int64, direction Direction) (store.Chapter, store.Chapter, error) {
	index := -1
	for i, chapter := range chapters {
		if chapter.ID == chapterID {
			index = i
			break
		}
	}
	if index < 0 {
		return store.Chapter{}, store.Chapter{}, ErrNotFound
	}

	target := index + 1
	if direction == DirectionUp {
		target = index - 1
	}
	if target < 0 || target >= len(chapters) {
		return store.Chapter{}, store.Chapter{}, ErrInvalidMove
	}
	return chapters[index], chapters[target], nil
}
