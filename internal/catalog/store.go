package catalog

import (
	"context"

	"brucewnd/api/internal/store"
)

// Tx is one open unit of work. Every method runs inside the same
// transaction; nothing is visible to other callers until it commits.
type Tx interface {
	LockBootstrap(ctx context.Context) error
	CountUsers(ctx context.Context) (int, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	InsertUser(ctx context.Context, username, passwordHash string) (store.User, error)
	DeleteUser(ctx context.Context, userID int64) error
	EnsureRoles(ctx context.Context, names []string) ([]store.Role, error)
	AssignRoles(ctx context.Context, userID int64, roleIDs []int64) error
	GetUserByID(ctx context.Context, userID int64) (store.User, error)
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	ListUsers(ctx context.Context) ([]store.User, error)

	InsertComic(ctx context.Context, comic store.Comic) (store.Comic, error)
	UpdateComic(ctx context.Context, comic store.Comic) error
	DeleteComic(ctx context.Context, comicID int64) error
	GetComic(ctx context.Context, comicID int64) (store.Comic, error)
	GetComicByName(ctx context.Context, name string) (store.Comic, error)
	LockComic(ctx context.Context, comicID int64) (store.Comic, error)
	ListComics(ctx context.Context, publishedOnly bool) ([]store.Comic, error)

	MaxChapterNumber(ctx context.Context, comicID int64) (int, error)
	InsertChapter(ctx context.Context, chapter store.Chapter) (store.Chapter, error)
	GetChapter(ctx context.Context, chapterID int64) (store.Chapter, error)
	UpdateChapter(ctx context.Context, chapter store.Chapter) error
	DeleteChapter(ctx context.Context, chapterID int64) error
	ListChapters(ctx context.Context, comicID int64, publishedOnly bool) ([]store.Chapter, error)
	SwapChapterNumbers(ctx context.Context, a, b store.Chapter) error

	FindTagsByName(ctx context.Context, names []string) ([]store.Tag, error)
	InsertTags(ctx context.Context, names []string) ([]store.Tag, error)
	ListTags(ctx context.Context) ([]store.Tag, error)
	ListComicTags(ctx context.Context, comicID int64) ([]store.Tag, error)
	AttachTags(ctx context.Context, comicID int64, tagIDs []int64) error
	ReplaceComicTags(ctx context.Context, comicID int64, tagIDs []int64) error
	DetachTag(ctx context.Context, comicID, tagID int64) error
}

type Store interface {
	InTx(ctx context.Context, fn func(context.Context, Tx) error) error
	Ping(ctx context.Context) error
}

type postgresStore struct {
	pg *store.PostgresStore
}

// NewPostgresStore adapts the Postgres store to the catalog unit of work.
func NewPostgresStore(pg *store.PostgresStore) Store {
	return postgresStore{pg: pg}
}

func (s postgresStore) InTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	return s.pg.InTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		return fn(ctx, tx)
	})
}

func (s postgresStore) Ping(ctx context.Context) error {
	return s.pg.Ping(ctx)
}
