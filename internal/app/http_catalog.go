package app

import (
	"net/http"

	"brucewnd/api/internal/catalog"
	"brucewnd/api/internal/search"
)

type createComicRequest struct {
	Name        string   `json:"name" validate:"required,max=200"`
	Synopsis    string   `json:"synopsis" validate:"max=10000"`
	CoverImage  *string  `json:"coverImage" validate:"omitempty,max=2048"`
	IsPublished bool     `json:"isPublished"`
	Tags        []string `json:"tags" validate:"max=50,dive,max=64"`
}

// updateComicRequest distinguishes an absent tags field, which leaves the tag
// set alone, from an empty one, which clears it.
type updateComicRequest struct {
	Name        string    `json:"name" validate:"required,max=200"`
	Synopsis    string    `json:"synopsis" validate:"max=10000"`
	CoverImage  *string   `json:"coverImage" validate:"omitempty,max=2048"`
	IsPublished bool      `json:"isPublished"`
	Tags        *[]string `json:"tags"`
}

type createChapterRequest struct {
	Title         string `json:"title" validate:"required,max=200"`
	ChapterNumber *int   `json:"chapterNumber"`
	IsPublished   bool   `json:"isPublished"`
}

type updateChapterRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	IsPublished bool   `json:"isPublished"`
}

type moveChapterRequest struct {
	Direction string `json:"direction" validate:"required"`
}

type tagsRequest struct {
	Tags []string `json:"tags" validate:"required,min=1,max=50,dive,max=64"`
}

type coverUploadRequest struct {
	FileName    string `json:"fileName" validate:"required,max=255"`
	ContentType string `json:"contentType" validate:"required"`
}

func (s *HTTPServer) handleListComics(w http.ResponseWriter, r *http.Request) {
	comics, err := s.catalog.ListComics(r.Context(), callerFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comics": comics})
}

func (s *HTTPServer) handleCreateComic(w http.ResponseWriter, r *http.Request) {
	var body createComicRequest
	if err := s.decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	comic, err := s.catalog.CreateComic(r.Context(), callerFrom(r), catalog.ComicInput{
		Name:        body.Name,
		Synopsis:    body.Synopsis,
		CoverImage:  body.CoverImage,
		IsPublished: body.IsPublished,
		Tags:        body.Tags,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comic)
}

func (s *HTTPServer) handleGetComic(w http.ResponseWriter, r *http.Request) {
	comicID, err := pathID(r, "comicID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	comic, err := s.catalog.GetComic(r.Context(), callerFrom(r), comicID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comic)
}

func (s *HTTPServer) handleGetComicByName(w http.ResponseWriter, r *http.Request) {
	name, err := pathText(r, "name")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	comic, err := s.catalog.GetComicByName(r.Context(), callerFrom(r), name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comic)
}

func (s *HTTPServer) handleUpdateComic(w http.ResponseWriter, r *http.Request) {
	comicID, err := pathID(r, "comicID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body updateComicRequest
	if err := s.decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	update := catalog.ComicUpdate{
		Name:        body.Name,
		Synopsis:    body.Synopsis,
		CoverImage:  body.CoverImage,
		IsPublished: body.IsPublished,
	}
	if body.Tags != nil {
		update.SetTags = true
		update.Tags = *body.Tags
	}
	comic, err := s.catalog.UpdateComic(r.Context(), callerFrom(r), comicID, update)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comic)
}

func (s *HTTPServer) handleDeleteComic(w http.ResponseWriter, r *http.Request) {
	comicID, err := pathID(r, "comicID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.catalog.DeleteComic(r.Context(), callerFrom(r), comicID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleListChapters(w http.ResponseWriter, r *http.Request) {
	comicID, err := pathID(r, "comicID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	chapters, err := s.catalog.ListChapters(r.Context(), callerFrom(r), comicID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chapters": chapters})
}

func (s *HTTPServer) handleCreateChapter(w http.ResponseWriter, r *http.Request) {
	comicID, err := pathID(r, "comicID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body createChapterRequest
	if err := s.decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	chapter, err := s.catalog.CreateChapter(r.Context(), callerFrom(r), comicID, catalog.ChapterInput{
		Title:       body.Title,
		Number:      body.ChapterNumber,
		IsPublished: body.IsPublished,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, chapter)
}

func (s *HTTPServer) handleGetChapter(w http.ResponseWriter, r *http.Request) {
	chapterID, err := pathID(r, "chapterID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	chapter, err := s.catalog.GetChapter(r.Context(), callerFrom(r), chapterID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chapter)
}

func (s *HTTPServer) handleUpdateChapter(w http.ResponseWriter, r *http.Request) {
	chapterID, err := pathID(r, "chapterID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body updateChapterRequest
	if err := s.decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	chapter, err := s.catalog.UpdateChapter(r.Context(), callerFrom(r), chapterID, catalog.ChapterUpdate{
		Title:       body.Title,
		IsPublished: body.IsPublished,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chapter)
}

func (s *HTTPServer) handleDeleteChapter(w http.ResponseWriter, r *http.Request) {
	chapterID, err := pathID(r, "chapterID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.catalog.DeleteChapter(r.Context(), callerFrom(r), chapterID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleMoveChapter(w http.ResponseWriter, r *http.Request) {
	chapterID, err := pathID(r, "chapterID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body moveChapterRequest
	if err := s.decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	direction, err := catalog.ParseDirection(body.Direction)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	chapters, err := s.catalog.MoveChapter(r.Context(), callerFrom(r), chapterID, direction)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chapters": chapters})
}

func (s *HTTPServer) handleAttachTags(w http.ResponseWriter, r *http.Request) {
	comicID, err := pathID(r, "comicID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body tagsRequest
	if err := s.decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	tags, err := s.catalog.AttachTags(r.Context(), callerFrom(r), comicID, body.Tags)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

func (s *HTTPServer) handleDetachTag(w http.ResponseWriter, r *http.Request) {
	comicID, err := pathID(r, "comicID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tagName, err := pathText(r, "tagName")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.catalog.DetachTag(r.Context(), callerFrom(r), comicID, tagName); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.catalog.ListTags(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resp, err := s.catalog.Search(r.Context(), callerFrom(r), search.Query{
		Text:   query.Get("q"),
		Tag:    query.Get("tag"),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleCoverUpload(w http.ResponseWriter, r *http.Request) {
	if s.uploads == nil {
		writeError(w, http.StatusServiceUnavailable, "UPLOADS_UNAVAILABLE", "Object storage is not configured", nil)
		return
	}
	if !callerFrom(r).Authenticated() {
		s.fail(w, r, catalog.ErrUnauthorized)
		return
	}
	var body coverUploadRequest
	if err := s.decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	upload, err := s.uploads.PresignUpload(r.Context(), body.FileName, body.ContentType)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, upload)
}
