package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn inside one SERIALIZABLE transaction. The transaction commits
// only when fn returns nil; any error, panic or cancelled context rolls the
// whole unit back.
func (s *PostgresStore) InTx(ctx context.Context, fn func(context.Context, *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", translate(err))
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &Tx{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", translate(err))
	}
	return nil
}

// Tx exposes the catalog queries bound to one open transaction.
type Tx struct {
	tx *sql.Tx
}

// bootstrapLockKey scopes the advisory lock guarding the first-user decision.
const bootstrapLockKey int64 = 0x62727563_00000001

func (t *Tx) LockBootstrap(ctx context.Context) error {
	if _, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, bootstrapLockKey); err != nil {
		return fmt.Errorf("lock bootstrap: %w", translate(err))
	}
	return nil
}

func (t *Tx) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", translate(err))
	}
	return count, nil
}

func (t *Tx) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username=$1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check username: %w", translate(err))
	}
	return exists, nil
}

func (t *Tx) InsertUser(ctx context.Context, username, passwordHash string) (User, error) {
	user := User{Username: username, PasswordHash: passwordHash}
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, username, passwordHash).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", translate(err))
	}
	return user, nil
}

func (t *Tx) DeleteUser(ctx context.Context, userID int64) error {
	return t.execAffecting(ctx, "delete user", `DELETE FROM users WHERE id=$1`, userID)
}

// EnsureRoles returns the role rows for names, inserting the missing ones.
// A name created by a concurrent transaction that is not yet visible here
// yields ErrDuplicateRole so the caller can retry the unit.
func (t *Tx) EnsureRoles(ctx context.Context, names []string) ([]Role, error) {
	if len(names) == 0 {
		return nil, nil
	}
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO roles (name)
		SELECT unnest($1::text[])
		ON CONFLICT DO NOTHING
	`, names); err != nil {
		return nil, fmt.Errorf("insert roles: %w", translate(err))
	}

	rows, err := t.tx.QueryContext(ctx, `SELECT id, name FROM roles WHERE name = ANY($1) ORDER BY name`, names)
	if err != nil {
		return nil, fmt.Errorf("select roles: %w", translate(err))
	}
	defer rows.Close()

	roles := make([]Role, 0, len(names))
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", translate(err))
	}
	if len(roles) != len(distinct(names)) {
		return nil, fmt.Errorf("ensure roles: %w", ErrDuplicateRole)
	}
	return roles, nil
}

func (t *Tx) AssignRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	if len(roleIDs) == 0 {
		return nil
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING
	`, userID, roleIDs)
	if err != nil {
		return fmt.Errorf("assign roles: %w", translate(err))
	}
	return nil
}

const selectUser = `
	SELECT u.id, u.username, u.password_hash, u.created_at,
		COALESCE((
			SELECT json_agg(r.name ORDER BY r.name)
			FROM user_roles ur JOIN roles r ON r.id = ur.role_id
			WHERE ur.user_id = u.id
		), '[]'::json)::text
	FROM users u
`

func (t *Tx) GetUserByID(ctx context.Context, userID int64) (User, error) {
	return t.getUser(ctx, selectUser+` WHERE u.id=$1`, userID)
}

func (t *Tx) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return t.getUser(ctx, selectUser+` WHERE u.username=$1`, username)
}

func (t *Tx) getUser(ctx context.Context, query string, arg any) (User, error) {
	var (
		user  User
		roles string
	)
	err := t.tx.QueryRowContext(ctx, query, arg).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt, &roles)
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", translate(err))
	}
	if user.Roles, err = decodeList(roles); err != nil {
		return User{}, fmt.Errorf("decode user roles: %w", err)
	}
	return user, nil
}

func (t *Tx) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := t.tx.QueryContext(ctx, selectUser+` ORDER BY u.id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", translate(err))
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var (
			user  User
			roles string
		)
		if err := rows.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt, &roles); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		var err error
		if user.Roles, err = decodeList(roles); err != nil {
			return nil, fmt.Errorf("decode user roles: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", translate(err))
	}
	return users, nil
}

const selectComic = `
	SELECT c.id, c.name, c.synopsis, c.cover_image, c.is_published, c.created_at, c.author_id, u.username,
		COALESCE((
			SELECT json_agg(t.name ORDER BY t.name)
			FROM comic_tags ct JOIN tags t ON t.id = ct.tag_id
			WHERE ct.comic_id = c.id
		), '[]'::json)::text
	FROM comics c
	JOIN users u ON u.id = c.author_id
`

func (t *Tx) InsertComic(ctx context.Context, comic Comic) (Comic, error) {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO comics (name, synopsis, cover_image, is_published, author_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, comic.Name, comic.Synopsis, comic.CoverImage, comic.IsPublished, comic.AuthorID).Scan(&comic.ID, &comic.CreatedAt)
	if err != nil {
		return Comic{}, fmt.Errorf("insert comic: %w", translate(err))
	}
	return comic, nil
}

func (t *Tx) UpdateComic(ctx context.Context, comic Comic) error {
	return t.execAffecting(ctx, "update comic", `
		UPDATE comics
		SET name=$2, synopsis=$3, cover_image=$4, is_published=$5
		WHERE id=$1
	`, comic.ID, comic.Name, comic.Synopsis, comic.CoverImage, comic.IsPublished)
}

// DeleteComic removes the comic; chapters and tag links go with it through
// ON DELETE CASCADE inside the same statement.
func (t *Tx) DeleteComic(ctx context.Context, comicID int64) error {
	return t.execAffecting(ctx, "delete comic", `DELETE FROM comics WHERE id=$1`, comicID)
}

func (t *Tx) GetComic(ctx context.Context, comicID int64) (Comic, error) {
	return t.getComic(ctx, selectComic+` WHERE c.id=$1`, comicID)
}

func (t *Tx) GetComicByName(ctx context.Context, name string) (Comic, error) {
	return t.getComic(ctx, selectComic+` WHERE c.name=$1`, name)
}

// LockComic reads the comic and holds its row lock until the transaction
// ends, serializing chapter writers for that comic.
func (t *Tx) LockComic(ctx context.Context, comicID int64) (Comic, error) {
	return t.getComic(ctx, selectComic+` WHERE c.id=$1 FOR UPDATE OF c`, comicID)
}

func (t *Tx) getComic(ctx context.Context, query string, arg any) (Comic, error) {
	comic, err := scanComic(t.tx.QueryRowContext(ctx, query, arg))
	if err != nil {
		return Comic{}, fmt.Errorf("get comic: %w", translate(err))
	}
	return comic, nil
}

func (t *Tx) ListComics(ctx context.Context, publishedOnly bool) ([]Comic, error) {
	query := selectComic
	if publishedOnly {
		query += ` WHERE c.is_published`
	}
	query += ` ORDER BY c.created_at DESC, c.id DESC`

	rows, err := t.tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list comics: %w", translate(err))
	}
	defer rows.Close()

	comics := make([]Comic, 0)
	for rows.Next() {
		comic, err := scanComic(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comic: %w", err)
		}
		comics = append(comics, comic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comics: %w", translate(err))
	}
	return comics, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComic(row rowScanner) (Comic, error) {
	var (
		comic Comic
		cover sql.NullString
		tags  string
	)
	if err := row.Scan(&comic.ID, &comic.Name, &comic.Synopsis, &cover, &comic.IsPublished, &comic.CreatedAt, &comic.AuthorID, &comic.AuthorUsername, &tags); err != nil {
		return Comic{}, err
	}
	if cover.Valid {
		comic.CoverImage = &cover.String
	}
	var err error
	if comic.Tags, err = decodeList(tags); err != nil {
		return Comic{}, fmt.Errorf("decode comic tags: %w", err)
	}
	return comic, nil
}

func (t *Tx) MaxChapterNumber(ctx context.Context, comicID int64) (int, error) {
	var highest int
	err := t.tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(chapter_number), 0) FROM chapters WHERE comic_id=$1`, comicID).Scan(&highest)
	if err != nil {
		return 0, fmt.Errorf("max chapter number: %w", translate(err))
	}
	return highest, nil
}

func (t *Tx) InsertChapter(ctx context.Context, chapter Chapter) (Chapter, error) {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO chapters (comic_id, title, chapter_number, is_published)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, chapter.ComicID, chapter.Title, chapter.ChapterNumber, chapter.IsPublished).Scan(&chapter.ID, &chapter.CreatedAt)
	if err != nil {
		return Chapter{}, fmt.Errorf("insert chapter: %w", translate(err))
	}
	return chapter, nil
}

func (t *Tx) GetChapter(ctx context.Context, chapterID int64) (Chapter, error) {
	var chapter Chapter
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, comic_id, title, chapter_number, is_published, created_at
		FROM chapters
		WHERE id=$1
	`, chapterID).Scan(&chapter.ID, &chapter.ComicID, &chapter.Title, &chapter.ChapterNumber, &chapter.IsPublished, &chapter.CreatedAt)
	if err != nil {
		return Chapter{}, fmt.Errorf("get chapter: %w", translate(err))
	}
	return chapter, nil
}

func (t *Tx) UpdateChapter(ctx context.Context, chapter Chapter) error {
	return t.execAffecting(ctx, "update chapter", `
		UPDATE chapters SET title=$2, is_published=$3 WHERE id=$1
	`, chapter.ID, chapter.Title, chapter.IsPublished)
}

func (t *Tx) DeleteChapter(ctx context.Context, chapterID int64) error {
	return t.execAffecting(ctx, "delete chapter", `DELETE FROM chapters WHERE id=$1`, chapterID)
}

func (t *Tx) ListChapters(ctx context.Context, comicID int64, publishedOnly bool) ([]Chapter, error) {
	query := `
		SELECT id, comic_id, title, chapter_number, is_published, created_at
		FROM chapters
		WHERE comic_id=$1`
	if publishedOnly {
		query += ` AND is_published`
	}
	query += ` ORDER BY chapter_number ASC`

	rows, err := t.tx.QueryContext(ctx, query, comicID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", translate(err))
	}
	defer rows.Close()

	chapters := make([]Chapter, 0)
	for rows.Next() {
		var chapter Chapter
		if err := rows.Scan(&chapter.ID, &chapter.ComicID, &chapter.Title, &chapter.ChapterNumber, &chapter.IsPublished, &chapter.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		chapters = append(chapters, chapter)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chapters: %w", translate(err))
	}
	return chapters, nil
}

// SwapChapterNumbers exchanges the numbers of a and b in one statement. The
// (comic_id, chapter_number) constraint is deferrable, so it is checked once
// both rows carry their new values.
func (t *Tx) SwapChapterNumbers(ctx context.Context, a, b Chapter) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE chapters
		SET chapter_number = CASE id WHEN $1 THEN $3::integer WHEN $2 THEN $4::integer END
		WHERE id IN ($1, $2) AND comic_id = $5
	`, a.ID, b.ID, b.ChapterNumber, a.ChapterNumber, a.ComicID)
	if err != nil {
		return fmt.Errorf("swap chapters: %w", translate(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("swap chapters rows: %w", err)
	}
	if affected != 2 {
		return fmt.Errorf("swap chapters: %w", ErrNotFound)
	}
	return nil
}

func (t *Tx) FindTagsByName(ctx context.Context, names []string) ([]Tag, error) {
	if len(names) == 0 {
		return nil, nil
	}
	return t.queryTags(ctx, "find tags", `SELECT id, name FROM tags WHERE name = ANY($1) ORDER BY name`, names)
}

// InsertTags inserts the given names, skipping any that already exist, and
// returns only the rows this transaction created.
func (t *Tx) InsertTags(ctx context.Context, names []string) ([]Tag, error) {
	if len(names) == 0 {
		return nil, nil
	}
	return t.queryTags(ctx, "insert tags", `
		INSERT INTO tags (name)
		SELECT unnest($1::text[])
		ON CONFLICT DO NOTHING
		RETURNING id, name
	`, names)
}

func (t *Tx) ListTags(ctx context.Context) ([]Tag, error) {
	return t.queryTags(ctx, "list tags", `SELECT id, name FROM tags ORDER BY name`)
}

func (t *Tx) ListComicTags(ctx context.Context, comicID int64) ([]Tag, error) {
	return t.queryTags(ctx, "list comic tags", `
		SELECT t.id, t.name
		FROM comic_tags ct JOIN tags t ON t.id = ct.tag_id
		WHERE ct.comic_id=$1
		ORDER BY t.name
	`, comicID)
}

func (t *Tx) queryTags(ctx context.Context, op, query string, args ...any) ([]Tag, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translate(err))
	}
	defer rows.Close()

	tags := make([]Tag, 0)
	for rows.Next() {
		var tag Tag
		if err := rows.Scan(&tag.ID, &tag.Name); err != nil {
			return nil, fmt.Errorf("%s scan: %w", op, err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, translate(err))
	}
	return tags, nil
}

func (t *Tx) AttachTags(ctx context.Context, comicID int64, tagIDs []int64) error {
	if len(tagIDs) == 0 {
		return nil
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO comic_tags (comic_id, tag_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING
	`, comicID, tagIDs)
	if err != nil {
		return fmt.Errorf("attach tags: %w", translate(err))
	}
	return nil
}

// ReplaceComicTags makes tagIDs the exact tag set of the comic.
func (t *Tx) ReplaceComicTags(ctx context.Context, comicID int64, tagIDs []int64) error {
	if tagIDs == nil {
		tagIDs = []int64{}
	}
	if _, err := t.tx.ExecContext(ctx, `
		DELETE FROM comic_tags WHERE comic_id=$1 AND NOT (tag_id = ANY($2::bigint[]))
	`, comicID, tagIDs); err != nil {
		return fmt.Errorf("prune comic tags: %w", translate(err))
	}
	return t.AttachTags(ctx, comicID, tagIDs)
}

func (t *Tx) DetachTag(ctx context.Context, comicID, tagID int64) error {
	return t.execAffecting(ctx, "detach tag", `DELETE FROM comic_tags WHERE comic_id=$1 AND tag_id=$2`, comicID, tagID)
}

func (t *Tx) execAffecting(ctx context.Context, op, query string, args ...any) error {
	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, translate(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// decodeList reads the json_agg arrays the select helpers produce.
func decodeList(raw string) ([]string, error) {
	values := []string{}
	if raw == "" {
		return values, nil
	}
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, err
	}
	return values, nil
}

func distinct(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
