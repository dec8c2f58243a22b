package store

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestStore starts a throwaway Postgres, applies the migrations and
// returns a store on it.
func newTestStore(t *testing.T) (*PostgresStore, *sql.DB) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("brucewnd"),
		postgres.WithUsername("brucewnd"),
		postgres.WithPassword("brucewnd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := Open(ctx, dsn, DefaultPoolOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, ApplyMigrations(ctx, db, migrationsDir, logger))
	return NewPostgresStore(db), db
}

func seedAuthor(t *testing.T, s *PostgresStore, username string) User {
	t.Helper()
	var user User
	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx *Tx) error {
		var err error
		user, err = tx.InsertUser(ctx, username, "hash")
		return err
	}))
	return user
}

func seedComic(t *testing.T, s *PostgresStore, authorID int64, name string) Comic {
	t.Helper()
	var comic Comic
	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx *Tx) error {
		var err error
		comic, err = tx.InsertComic(ctx, Comic{Name: name, AuthorID: authorID, IsPublished: true})
		return err
	}))
	return comic
}

func TestPostgresStoreIntegration(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	author := seedAuthor(t, s, "avery")
	comic := seedComic(t, s, author.ID, "Moonfall")

	t.Run("migrations are idempotent", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		require.NoError(t, ApplyMigrations(ctx, db, migrationsDir, logger))
	})

	t.Run("bootstrap roles", func(t *testing.T) {
		err := s.InTx(ctx, func(ctx context.Context, tx *Tx) error {
			require.NoError(t, tx.LockBootstrap(ctx))
			count, err := tx.CountUsers(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, count)

			roles, err := tx.EnsureRoles(ctx, []string{"user", "mod", "admin", "user"})
			require.NoError(t, err)
			require.Len(t, roles, 3)
			ids := make([]int64, len(roles))
			for i, role := range roles {
				ids[i] = role.ID
			}
			require.NoError(t, tx.AssignRoles(ctx, author.ID, ids))

			loaded, err := tx.GetUserByID(ctx, author.ID)
			require.NoError(t, err)
			assert.Equal(t, []string{"admin", "mod", "user"}, loaded.Roles)

			again, err := tx.EnsureRoles(ctx, []string{"user"})
			require.NoError(t, err)
			assert.Len(t, again, 1)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("duplicate comic name", func(t *testing.T) {
		err := s.InTx(ctx, func(ctx context.Context, tx *Tx) error {
			_, err := tx.InsertComic(ctx, Comic{Name: "Moonfall", AuthorID: author.ID})
			return err
		})
		assert.ErrorIs(t, err, ErrDuplicateComicName)
	})

	t.Run("duplicate username", func(t *testing.T) {
		err := s.InTx(ctx, func(ctx context.Context, tx *Tx) error {
			_, err := tx.InsertUser(ctx, "avery", "other")
			return err
		})
		assert.ErrorIs(t, err, ErrDuplicateUsername)
	})

	t.Run("chapter numbers", func(t *testing.T) {
		var first, second Chapter
		require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx *Tx) error {
			_, err := tx.LockComic(ctx, comic.ID)
			require.NoError(t, err)
			highest, err := tx.MaxChapterNumber(ctx, comic.ID)
			require.NoError(t, err)
			assert.Equal(t, 0, highest)

			first, err = tx.InsertChapter(ctx, Chapter{ComicID: comic.ID, Title: "One", ChapterNumber: 1, IsPublished: true})
			require.NoError(t, err)
			second, err = tx.InsertChapter(ctx, Chapter{ComicID: comic.ID, Title: "Two", ChapterNumber: 2})
			return err
		}))

		err := s.InTx(ctx, func(ctx context.Context, tx *Tx) error {
			_, err := tx.InsertChapter(ctx, Chapter{ComicID: comic.ID, Title: "Again", ChapterNumber: 2})
			return err
		})
		assert.ErrorIs(t, err, ErrDuplicateChapterNumber)

		err = s.InTx(ctx, func(ctx context.Context, tx *Tx) error {
			_, err := tx.InsertChapter(ctx, Chapter{ComicID: comic.ID, Title: "Zero", ChapterNumber: 0})
			return err
		})
		assert.ErrorIs(t, err, ErrInvalidChapterNumber)

		require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx *Tx) error {
			return tx.SwapChapterNumbers(ctx, first, second)
		}))

		require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx *Tx) error {
			all, err := tx.ListChapters(ctx, comic.ID, false)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, second.ID, all[0].ID)
			assert.Equal(t, 1, all[0].ChapterNumber)
			assert.Equal(t, first.ID, all[1].ID)
			assert.Equal(t, 2, all[1].ChapterNumber)

			published, err := tx.ListChapters(ctx, comic.ID, true)
			require.NoError(t, err)
			require.Len(t, published, 1)
			assert.Equal(t, first.ID, published[0].ID)
			return nil
		}))
	})

	t.Run("tags", func(t *testing.T) {
		require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx *Tx) error {
			created, err := tx.InsertTags(ctx, []string{"action", "drama"})
			require.NoError(t, err)
			require.Len(t, created, 2)

			none, err := tx.InsertTags(ctx, []string{"action"})
			require.NoError(t, err)
			assert.Empty(t, none)

			found, err := tx.FindTagsByName(ctx, []string{"action", "drama", "missing"})
			require.NoError(t, err)
			require.Len(t, found, 2)

			require.NoError(t, tx.AttachTags(ctx, comic.ID, []int64{found[0].ID, found[1].ID}))
			require.NoError(t, tx.AttachTags(ctx, comic.ID, []int64{found[0].ID}))
			require.NoError(t, tx.ReplaceComicTags(ctx, comic.ID, []int64{found[1].ID}))

			linked, err := tx.ListComicTags(ctx, comic.ID)
			require.NoError(t, err)
			require.Len(t, linked, 1)
			assert.Equal(t, "drama", linked[0].Name)

			loaded, err := tx.GetComic(ctx, comic.ID)
			require.NoError(t, err)
			assert.Equal(t, []string{"drama"}, loaded.Tags)
			assert.Equal(t, "avery", loaded.AuthorUsername)

			assert.ErrorIs(t, tx.DetachTag(ctx, comic.ID, found[0].ID), ErrNotFound)
			return nil
		}))

		err := s.InTx(ctx, func(ctx context.Context, tx *Tx) error {
			_, err := tx.tx.ExecContext(ctx, `INSERT INTO tags (name) VALUES ('ACTION')`)
			return translate(err)
		})
		assert.ErrorIs(t, err, ErrDuplicateTag)
	})

	t.Run("author restriction and cascade", func(t *testing.T) {
		err := s.InTx(ctx, func(ctx context.Context, tx *Tx) error {
			return tx.DeleteUser(ctx, author.ID)
		})
		assert.ErrorIs(t, err, ErrAuthorHasComics)

		require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx *Tx) error {
			return tx.DeleteComic(ctx, comic.ID)
		}))

		var chapters, links int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chapters WHERE comic_id=$1`, comic.ID).Scan(&chapters))
		require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM comic_tags WHERE comic_id=$1`, comic.ID).Scan(&links))
		assert.Zero(t, chapters)
		assert.Zero(t, links)

		require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx *Tx) error {
			return tx.DeleteUser(ctx, author.ID)
		}))
	})

	t.Run("failed unit rolls back", func(t *testing.T) {
		err := s.InTx(ctx, func(ctx context.Context, tx *Tx) error {
			if _, err := tx.InsertUser(ctx, "ghost", "hash"); err != nil {
				return err
			}
			_, err := tx.InsertUser(ctx, "ghost", "hash")
			return err
		})
		require.ErrorIs(t, err, ErrDuplicateUsername)

		require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx *Tx) error {
			exists, err := tx.UsernameExists(ctx, "ghost")
			require.NoError(t, err)
			assert.False(t, exists)
			return nil
		}))
	})

	t.Run("rollback migrations", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		require.NoError(t, RollbackMigrations(ctx, db, migrationsDir, 2, logger))
		var tables int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM information_schema.tables WHERE table_name='comics'`).Scan(&tables))
		assert.Zero(t, tables)
	})
}
