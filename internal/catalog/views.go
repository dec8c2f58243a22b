package catalog

import (
	"time"

	"brucewnd/api/internal/search"
	"brucewnd/api/internal/store"
)

type UserView struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"createdAt"`
}

// ComicSummary is the list projection of a comic.
type ComicSummary struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	CoverImage  *string  `json:"coverImage"`
	IsPublished bool     `json:"isPublished"`
	Tags        []string `json:"tags"`
}

type ComicDetail struct {
	ID             int64         `json:"id"`
	Name           string        `json:"name"`
	Synopsis       string        `json:"synopsis"`
	CoverImage     *string       `json:"coverImage"`
	IsPublished    bool          `json:"isPublished"`
	CreatedAt      time.Time     `json:"createdAt"`
	AuthorID       int64         `json:"authorId"`
	AuthorUsername string        `json:"authorUsername"`
	Tags           []string      `json:"tags"`
	Chapters       []ChapterView `json:"chapters"`
}

type ChapterView struct {
	ID            int64     `json:"id"`
	ComicID       int64     `json:"comicId"`
	Title         string    `json:"title"`
	ChapterNumber int       `json:"chapterNumber"`
	IsPublished   bool      `json:"isPublished"`
	CreatedAt     time.Time `json:"createdAt"`
}

type TagView struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func userView(user store.User) UserView {
	roles := user.Roles
	if roles == nil {
		roles = []string{}
	}
	return UserView{ID: user.ID, Username: user.Username, Roles: roles, CreatedAt: user.CreatedAt}
}

func comicSummary(comic store.Comic) ComicSummary {
	return ComicSummary{
		ID:          comic.ID,
		Name:        comic.Name,
		CoverImage:  comic.CoverImage,
		IsPublished: comic.IsPublished,
		Tags:        nonNilStrings(comic.Tags),
	}
}

func comicDetail(comic store.Comic, chapters []store.Chapter) ComicDetail {
	views := make([]ChapterView, len(chapters))
	for i, chapter := range chapters {
		views[i] = chapterView(chapter)
	}
	return ComicDetail{
		ID:             comic.ID,
		Name:           comic.Name,
		Synopsis:       comic.Synopsis,
		CoverImage:     comic.CoverImage,
		IsPublished:    comic.IsPublished,
		CreatedAt:      comic.CreatedAt,
		AuthorID:       comic.AuthorID,
		AuthorUsername: comic.AuthorUsername,
		Tags:           nonNilStrings(comic.Tags),
		Chapters:       views,
	}
}

func chapterView(chapter store.Chapter) ChapterView {
	return ChapterView{
		ID:            chapter.ID,
		ComicID:       chapter.ComicID,
		Title:         chapter.Title,
		ChapterNumber: chapter.ChapterNumber,
		IsPublished:   chapter.IsPublished,
		CreatedAt:     chapter.CreatedAt,
	}
}

func chapterViews(chapters []store.Chapter) []ChapterView {
	views := make([]ChapterView, len(chapters))
	for i, chapter := range chapters {
		views[i] = chapterView(chapter)
	}
	return views
}

func searchDocument(comic store.Comic) search.Document {
	return search.Document{
		ID:             comic.ID,
		Name:           comic.Name,
		Synopsis:       comic.Synopsis,
		CoverImage:     comic.CoverImage,
		IsPublished:    comic.IsPublished,
		AuthorUsername: comic.AuthorUsername,
		Tags:           nonNilStrings(comic.Tags),
	}
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
