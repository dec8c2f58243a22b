package store

import "time"

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
}

type Role struct {
	ID   int64
	Name string
}

type Comic struct {
	ID             int64
	Name           string
	Synopsis       string
	CoverImage     *string
	IsPublished    bool
	CreatedAt      time.Time
	AuthorID       int64
	AuthorUsername string
	// Tags holds tag names when the query joined them; nil otherwise.
	Tags []string
}

type Chapter struct {
	ID            int64
	ComicID       int64
	Title         string
	ChapterNumber int
	IsPublished   bool
	CreatedAt     time.Time
}

type Tag struct {
	ID   int64
	Name string
}
