package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"brucewnd/api/internal/store"
)

type pair [2]int64

// fakeState is the committed content of the fake database.
type fakeState struct {
	nextID    int64
	users     map[int64]store.User
	roles     map[int64]store.Role
	userRoles map[pair]bool
	comics    map[int64]store.Comic
	chapters  map[int64]store.Chapter
	tags      map[int64]store.Tag
	comicTags map[pair]bool
}

func newFakeState() *fakeState {
	return &fakeState{
		users:     map[int64]store.User{},
		roles:     map[int64]store.Role{},
		userRoles: map[pair]bool{},
		comics:    map[int64]store.Comic{},
		chapters:  map[int64]store.Chapter{},
		tags:      map[int64]store.Tag{},
		comicTags: map[pair]bool{},
	}
}

func (s *fakeState) clone() *fakeState {
	c := newFakeState()
	c.nextID = s.nextID
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.roles {
		c.roles[k] = v
	}
	for k, v := range s.userRoles {
		c.userRoles[k] = v
	}
	for k, v := range s.comics {
		c.comics[k] = v
	}
	for k, v := range s.chapters {
		c.chapters[k] = v
	}
	for k, v := range s.tags {
		c.tags[k] = v
	}
	for k, v := range s.comicTags {
		c.comicTags[k] = v
	}
	return c
}

func (s *fakeState) id() int64 {
	s.nextID++
	return s.nextID
}

// fakeStore runs each unit of work against a private copy of the committed
// state and swaps it in only on success. Unique checks also consult the
// committed state, the way a database index sees rows committed by another
// transaction after this one's snapshot was taken.
type fakeStore struct {
	mu        sync.Mutex
	committed *fakeState
	txCount   int
	// hook runs at the start of every Tx method; a non-nil error is returned
	// from that method.
	hook    func(op string, committed *fakeState) error
	pingErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{committed: newFakeState()}
}

func (f *fakeStore) InTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txCount++

	tx := &fakeTx{store: f, state: f.committed.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.committed = tx.state
	return nil
}

func (f *fakeStore) Ping(context.Context) error {
	return f.pingErr
}

func (f *fakeStore) snapshot() *fakeState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.committed.clone()
}

type fakeTx struct {
	store *fakeStore
	state *fakeState
}

var fakeNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func (t *fakeTx) before(op string) error {
	if t.store.hook == nil {
		return nil
	}
	return t.store.hook(op, t.store.committed)
}

func (t *fakeTx) LockBootstrap(context.Context) error {
	return t.before("LockBootstrap")
}

func (t *fakeTx) CountUsers(context.Context) (int, error) {
	if err := t.before("CountUsers"); err != nil {
		return 0, err
	}
	return len(t.state.users), nil
}

func (t *fakeTx) UsernameExists(_ context.Context, username string) (bool, error) {
	if err := t.before("UsernameExists"); err != nil {
		return false, err
	}
	for _, user := range t.state.users {
		if user.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (t *fakeTx) InsertUser(_ context.Context, username, hash string) (store.User, error) {
	if err := t.before("InsertUser"); err != nil {
		return store.User{}, err
	}
	for _, state := range []*fakeState{t.state, t.store.committed} {
		for _, user := range state.users {
			if user.Username == username {
				return store.User{}, store.ErrDuplicateUsername
			}
		}
	}
	user := store.User{ID: t.state.id(), Username: username, PasswordHash: hash, CreatedAt: fakeNow}
	t.state.users[user.ID] = user
	return user, nil
}

func (t *fakeTx) DeleteUser(_ context.Context, userID int64) error {
	if err := t.before("DeleteUser"); err != nil {
		return err
	}
	if _, ok := t.state.users[userID]; !ok {
		return store.ErrNotFound
	}
	for _, comic := range t.state.comics {
		if comic.AuthorID == userID {
			return store.ErrAuthorHasComics
		}
	}
	delete(t.state.users, userID)
	for key := range t.state.userRoles {
		if key[0] == userID {
			delete(t.state.userRoles, key)
		}
	}
	return nil
}

func (t *fakeTx) EnsureRoles(_ context.Context, names []string) ([]store.Role, error) {
	if err := t.before("EnsureRoles"); err != nil {
		return nil, err
	}
	roles := make([]store.Role, 0, len(names))
	for _, name := range names {
		var found *store.Role
		for _, role := range t.state.roles {
			if role.Name == name {
				r := role
				found = &r
			}
		}
		if found == nil {
			for _, role := range t.store.committed.roles {
				if role.Name == name {
					return nil, store.ErrDuplicateRole
				}
			}
			role := store.Role{ID: t.state.id(), Name: name}
			t.state.roles[role.ID] = role
			found = &role
		}
		roles = append(roles, *found)
	}
	return roles, nil
}

func (t *fakeTx) AssignRoles(_ context.Context, userID int64, roleIDs []int64) error {
	if err := t.before("AssignRoles"); err != nil {
		return err
	}
	for _, id := range roleIDs {
		t.state.userRoles[pair{userID, id}] = true
	}
	return nil
}

func (t *fakeTx) withRoles(user store.User) store.User {
	user.Roles = []string{}
	for key := range t.state.userRoles {
		if key[0] == user.ID {
			user.Roles = append(user.Roles, t.state.roles[key[1]].Name)
		}
	}
	sort.Strings(user.Roles)
	return user
}

func (t *fakeTx) GetUserByID(_ context.Context, userID int64) (store.User, error) {
	if err := t.before("GetUserByID"); err != nil {
		return store.User{}, err
	}
	user, ok := t.state.users[userID]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return t.withRoles(user), nil
}

func (t *fakeTx) GetUserByUsername(_ context.Context, username string) (store.User, error) {
	if err := t.before("GetUserByUsername"); err != nil {
		return store.User{}, err
	}
	for _, user := range t.state.users {
		if user.Username == username {
			return t.withRoles(user), nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (t *fakeTx) ListUsers(context.Context) ([]store.User, error) {
	if err := t.before("ListUsers"); err != nil {
		return nil, err
	}
	users := make([]store.User, 0, len(t.state.users))
	for _, user := range t.state.users {
		users = append(users, t.withRoles(user))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (t *fakeTx) comicNameTaken(name string, except int64) bool {
	for _, state := range []*fakeState{t.state, t.store.committed} {
		for _, comic := range state.comics {
			if comic.Name == name && comic.ID != except {
				return true
			}
		}
	}
	return false
}

func (t *fakeTx) InsertComic(_ context.Context, comic store.Comic) (store.Comic, error) {
	if err := t.before("InsertComic"); err != nil {
		return store.Comic{}, err
	}
	if _, ok := t.state.users[comic.AuthorID]; !ok {
		return store.Comic{}, store.ErrNotFound
	}
	if t.comicNameTaken(comic.Name, 0) {
		return store.Comic{}, store.ErrDuplicateComicName
	}
	comic.ID = t.state.id()
	comic.CreatedAt = fakeNow
	comic.Tags = nil
	t.state.comics[comic.ID] = comic
	return comic, nil
}

func (t *fakeTx) UpdateComic(_ context.Context, comic store.Comic) error {
	if err := t.before("UpdateComic"); err != nil {
		return err
	}
	current, ok := t.state.comics[comic.ID]
	if !ok {
		return store.ErrNotFound
	}
	if t.comicNameTaken(comic.Name, comic.ID) {
		return store.ErrDuplicateComicName
	}
	current.Name = comic.Name
	current.Synopsis = comic.Synopsis
	current.CoverImage = comic.CoverImage
	current.IsPublished = comic.IsPublished
	t.state.comics[comic.ID] = current
	return nil
}

func (t *fakeTx) DeleteComic(_ context.Context, comicID int64) error {
	if err := t.before("DeleteComic"); err != nil {
		return err
	}
	if _, ok := t.state.comics[comicID]; !ok {
		return store.ErrNotFound
	}
	delete(t.state.comics, comicID)
	for id, chapter := range t.state.chapters {
		if chapter.ComicID == comicID {
			delete(t.state.chapters, id)
		}
	}
	for key := range t.state.comicTags {
		if key[0] == comicID {
			delete(t.state.comicTags, key)
		}
	}
	return nil
}

func (t *fakeTx) hydrate(comic store.Comic) store.Comic {
	comic.AuthorUsername = t.state.users[comic.AuthorID].Username
	comic.Tags = []string{}
	for key := range t.state.comicTags {
		if key[0] == comic.ID {
			comic.Tags = append(comic.Tags, t.state.tags[key[1]].Name)
		}
	}
	sort.Strings(comic.Tags)
	return comic
}

func (t *fakeTx) GetComic(_ context.Context, comicID int64) (store.Comic, error) {
	if err := t.before("GetComic"); err != nil {
		return store.Comic{}, err
	}
	comic, ok := t.state.comics[comicID]
	if !ok {
		return store.Comic{}, store.ErrNotFound
	}
	return t.hydrate(comic), nil
}

func (t *fakeTx) GetComicByName(_ context.Context, name string) (store.Comic, error) {
	if err := t.before("GetComicByName"); err != nil {
		return store.Comic{}, err
	}
	for _, comic := range t.state.comics {
		if comic.Name == name {
			return t.hydrate(comic), nil
		}
	}
	return store.Comic{}, store.ErrNotFound
}

func (t *fakeTx) LockComic(ctx context.Context, comicID int64) (store.Comic, error) {
	if err := t.before("LockComic"); err != nil {
		return store.Comic{}, err
	}
	return t.GetComic(ctx, comicID)
}

func (t *fakeTx) ListComics(_ context.Context, publishedOnly bool) ([]store.Comic, error) {
	if err := t.before("ListComics"); err != nil {
		return nil, err
	}
	comics := make([]store.Comic, 0, len(t.state.comics))
	for _, comic := range t.state.comics {
		if publishedOnly && !comic.IsPublished {
			continue
		}
		comics = append(comics, t.hydrate(comic))
	}
	sort.Slice(comics, func(i, j int) bool { return comics[i].ID > comics[j].ID })
	return comics, nil
}

func (t *fakeTx) MaxChapterNumber(_ context.Context, comicID int64) (int, error) {
	if err := t.before("MaxChapterNumber"); err != nil {
		return 0, err
	}
	highest := 0
	for _, chapter := range t.state.chapters {
		if chapter.ComicID == comicID && chapter.ChapterNumber > highest {
			highest = chapter.ChapterNumber
		}
	}
	return highest, nil
}

func (t *fakeTx) chapterNumberTaken(comicID int64, number int, except int64) bool {
	for _, state := range []*fakeState{t.state, t.store.committed} {
		for _, chapter := range state.chapters {
			if chapter.ComicID == comicID && chapter.ChapterNumber == number && chapter.ID != except {
				return true
			}
		}
	}
	return false
}

func (t *fakeTx) InsertChapter(_ context.Context, chapter store.Chapter) (store.Chapter, error) {
	if err := t.before("InsertChapter"); err != nil {
		return store.Chapter{}, err
	}
	if _, ok := t.state.comics[chapter.ComicID]; !ok {
		return store.Chapter{}, store.ErrNotFound
	}
	if chapter.ChapterNumber <= 0 {
		return store.Chapter{}, store.ErrInvalidChapterNumber
	}
	if t.chapterNumberTaken(chapter.ComicID, chapter.ChapterNumber, 0) {
		return store.Chapter{}, store.ErrDuplicateChapterNumber
	}
	chapter.ID = t.state.id()
	chapter.CreatedAt = fakeNow
	t.state.chapters[chapter.ID] = chapter
	return chapter, nil
}

func (t *fakeTx) GetChapter(_ context.Context, chapterID int64) (store.Chapter, error) {
	if err := t.before("GetChapter"); err != nil {
		return store.Chapter{}, err
	}
	chapter, ok := t.state.chapters[chapterID]
	if !ok {
		return store.Chapter{}, store.ErrNotFound
	}
	return chapter, nil
}

func (t *fakeTx) UpdateChapter(_ context.Context, chapter store.Chapter) error {
	if err := t.before("UpdateChapter"); err != nil {
		return err
	}
	current, ok := t.state.chapters[chapter.ID]
	if !ok {
		return store.ErrNotFound
	}
	current.Title = chapter.Title
	current.IsPublished = chapter.IsPublished
	t.state.chapters[chapter.ID] = current
	return nil
}

func (t *fakeTx) DeleteChapter(_ context.Context, chapterID int64) error {
	if err := t.before("DeleteChapter"); err != nil {
		return err
	}
	if _, ok := t.state.chapters[chapterID]; !ok {
		return store.ErrNotFound
	}
	delete(t.state.chapters, chapterID)
	return nil
}

func (t *fakeTx) ListChapters(_ context.Context, comicID int64, publishedOnly bool) ([]store.Chapter, error) {
	if err := t.before("ListChapters"); err != nil {
		return nil, err
	}
	chapters := make([]store.Chapter, 0)
	for _, chapter := range t.state.chapters {
		if chapter.ComicID != comicID || (publishedOnly && !chapter.IsPublished) {
			continue
		}
		chapters = append(chapters, chapter)
	}
	sort.Slice(chapters, func(i, j int) bool { return chapters[i].ChapterNumber < chapters[j].ChapterNumber })
	return chapters, nil
}

func (t *fakeTx) SwapChapterNumbers(_ context.Context, a, b store.Chapter) error {
	if err := t.before("SwapChapterNumbers"); err != nil {
		return err
	}
	first, okA := t.state.chapters[a.ID]
	second, okB := t.state.chapters[b.ID]
	if !okA || !okB || first.ComicID != second.ComicID {
		return store.ErrNotFound
	}
	first.ChapterNumber, second.ChapterNumber = b.ChapterNumber, a.ChapterNumber
	t.state.chapters[a.ID] = first
	t.state.chapters[b.ID] = second
	return nil
}

func (t *fakeTx) FindTagsByName(_ context.Context, names []string) ([]store.Tag, error) {
	if err := t.before("FindTagsByName"); err != nil {
		return nil, err
	}
	wanted := map[string]bool{}
	for _, name := range names {
		wanted[name] = true
	}
	tags := make([]store.Tag, 0)
	for _, tag := range t.state.tags {
		if wanted[tag.Name] {
			tags = append(tags, tag)
		}
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

// InsertTags mirrors ON CONFLICT DO NOTHING: names that exist in this
// transaction or were committed by someone else are skipped silently.
func (t *fakeTx) InsertTags(_ context.Context, names []string) ([]store.Tag, error) {
	if err := t.before("InsertTags"); err != nil {
		return nil, err
	}
	created := make([]store.Tag, 0, len(names))
	for _, name := range names {
		if t.tagExists(name) {
			continue
		}
		tag := store.Tag{ID: t.state.id(), Name: name}
		t.state.tags[tag.ID] = tag
		created = append(created, tag)
	}
	return created, nil
}

func (t *fakeTx) tagExists(name string) bool {
	for _, state := range []*fakeState{t.state, t.store.committed} {
		for _, tag := range state.tags {
			if tag.Name == name {
				return true
			}
		}
	}
	return false
}

func (t *fakeTx) ListTags(context.Context) ([]store.Tag, error) {
	if err := t.before("ListTags"); err != nil {
		return nil, err
	}
	tags := make([]store.Tag, 0, len(t.state.tags))
	for _, tag := range t.state.tags {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

func (t *fakeTx) ListComicTags(_ context.Context, comicID int64) ([]store.Tag, error) {
	if err := t.before("ListComicTags"); err != nil {
		return nil, err
	}
	tags := make([]store.Tag, 0)
	for key := range t.state.comicTags {
		if key[0] == comicID {
			tags = append(tags, t.state.tags[key[1]])
		}
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

func (t *fakeTx) AttachTags(_ context.Context, comicID int64, tagIDs []int64) error {
	if err := t.before("AttachTags"); err != nil {
		return err
	}
	if _, ok := t.state.comics[comicID]; !ok {
		return store.ErrNotFound
	}
	for _, id := range tagIDs {
		if _, ok := t.state.tags[id]; !ok {
			return fmt.Errorf("attach unknown tag %d: %w", id, store.ErrNotFound)
		}
		t.state.comicTags[pair{comicID, id}] = true
	}
	return nil
}

func (t *fakeTx) ReplaceComicTags(ctx context.Context, comicID int64, tagIDs []int64) error {
	if err := t.before("ReplaceComicTags"); err != nil {
		return err
	}
	for key := range t.state.comicTags {
		if key[0] == comicID {
			delete(t.state.comicTags, key)
		}
	}
	return t.AttachTags(ctx, comicID, tagIDs)
}

func (t *fakeTx) DetachTag(_ context.Context, comicID, tagID int64) error {
	if err := t.before("DetachTag"); err != nil {
		return err
	}
	key := pair{comicID, tagID}
	if !t.state.comicTags[key] {
		return store.ErrNotFound
	}
	delete(t.state.comicTags, key)
	return nil
}
