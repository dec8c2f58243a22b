package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"brucewnd/api/internal/auth"
	"brucewnd/api/internal/catalog"
	"brucewnd/api/internal/objectstore"
	"brucewnd/api/internal/session"
	"brucewnd/api/internal/validation"
)

const maxBodyBytes = 1 << 20

var kindStatus = map[catalog.Kind]int{
	catalog.KindNotFound:               http.StatusNotFound,
	catalog.KindForbidden:              http.StatusForbidden,
	catalog.KindUnauthorized:           http.StatusUnauthorized,
	catalog.KindDuplicateName:          http.StatusConflict,
	catalog.KindDuplicateChapterNumber: http.StatusConflict,
	catalog.KindTagCreationConflict:    http.StatusConflict,
	catalog.KindConflict:               http.StatusConflict,
	catalog.KindInvalidChapterNumber:   http.StatusUnprocessableEntity,
	catalog.KindInvalidMove:            http.StatusUnprocessableEntity,
	catalog.KindValidation:             http.StatusUnprocessableEntity,
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// fail writes the error response for err and logs failures the client did not
// cause.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, code, message, details)
}

func mapError(err error) (status int, code, message string, details any) {
	var fieldErr *validation.Error
	if errors.As(err, &fieldErr) {
		return http.StatusUnprocessableEntity, string(catalog.KindValidation), "Invalid request", fieldErr.Fields
	}
	var catalogErr *catalog.Error
	if errors.As(err, &catalogErr) {
		if status, ok := kindStatus[catalogErr.Kind]; ok {
			return status, string(catalogErr.Kind), catalogErr.Message, nil
		}
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, session.ErrSessionNotFound) {
		return http.StatusUnauthorized, string(catalog.KindUnauthorized), "Unauthorized", nil
	}
	if errors.Is(err, objectstore.ErrUnsupportedType) {
		return http.StatusUnprocessableEntity, string(catalog.KindValidation), err.Error(), nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

// decodeBody reads one JSON object into target and runs struct validation.
func (s *HTTPServer) decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return errInvalidBody
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		return errInvalidBody
	}
	return s.validator.Validate(target)
}

var errInvalidBody = &catalog.Error{Kind: catalog.KindValidation, Message: "invalid JSON body"}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// pathID parses a positive numeric path parameter. Malformed ids name no
// record, so they read as not found.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, &catalog.Error{Kind: catalog.KindNotFound, Message: fmt.Sprintf("%s not found", strings.TrimSuffix(name, "ID"))}
	}
	return id, nil
}

// pathText returns a decoded text path parameter. chi matches on the raw
// path, so escaped segments such as %2F arrive still encoded.
func pathText(r *http.Request, name string) (string, error) {
	value, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil {
		return "", &catalog.Error{Kind: catalog.KindValidation, Message: fmt.Sprintf("malformed %s in path", name)}
	}
	return value, nil
}

func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}
