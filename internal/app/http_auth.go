package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"brucewnd/api/internal/auth"
	"brucewnd/api/internal/catalog"
	"brucewnd/api/internal/rbac"
	"brucewnd/api/internal/util"
)

type callerKey struct{}

// authenticate resolves the bearer token, when present, into the request's
// caller. Requests without a token proceed as anonymous; a bad token is
// rejected outright.
func (s *HTTPServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := s.tokens.ParseToken(token)
		if err != nil {
			code := "INVALID_TOKEN"
			if errors.Is(err, auth.ErrExpiredToken) {
				code = "TOKEN_EXPIRED"
			}
			writeError(w, http.StatusUnauthorized, code, "Unauthorized", nil)
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Unauthorized", nil)
			return
		}
		caller := catalog.Caller{
			UserID:   userID,
			Username: claims.Name,
			Roles:    rbac.NewSet(claims.Roles...),
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	})
}

func callerFrom(r *http.Request) catalog.Caller {
	caller, _ := r.Context().Value(callerKey{}).(catalog.Caller)
	return caller
}

type credentialsRequest struct {
	Username string `json:"username" validate:"required,max=32"`
	Password string `json:"password" validate:"required,max=72"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type sessionResponse struct {
	Token        string           `json:"token"`
	TokenType    string           `json:"tokenType"`
	ExpiresAt    time.Time        `json:"expiresAt"`
	RefreshToken string           `json:"refreshToken,omitempty"`
	User         catalog.UserView `json:"user"`
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if err := s.decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.catalog.Register(r.Context(), catalog.RegisterInput{Username: body.Username, Password: body.Password})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp, err := s.issueSession(r.Context(), user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if err := s.decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.catalog.Authenticate(r.Context(), body.Username, body.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp, err := s.issueSession(r.Context(), user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh rotates a refresh token. The user is re-read so the new access
// token carries current roles. The old token is consumed only once the user
// has loaded, so a failed read leaves the session usable.
func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "SESSIONS_UNAVAILABLE", "Refresh sessions are not configured", nil)
		return
	}
	var body refreshRequest
	if err := s.decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	tokenHash := auth.HashToken(body.RefreshToken)
	data, err := s.sessions.LookupRefreshSession(r.Context(), tokenHash)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.catalog.LoadUser(r.Context(), data.UserID)
	if errors.Is(err, catalog.ErrNotFound) {
		_ = s.sessions.RevokeRefreshSession(r.Context(), tokenHash)
		writeError(w, http.StatusUnauthorized, string(catalog.KindUnauthorized), "Unauthorized", nil)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	// A concurrent refresh may have won the token between lookup and here.
	if _, err := s.sessions.ConsumeRefreshSession(r.Context(), tokenHash); err != nil {
		s.fail(w, r, err)
		return
	}
	resp, err := s.issueSession(r.Context(), user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if err := s.decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if s.sessions != nil {
		if err := s.sessions.RevokeRefreshSession(r.Context(), auth.HashToken(body.RefreshToken)); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	if !caller.Authenticated() {
		s.fail(w, r, catalog.ErrUnauthorized)
		return
	}
	user, err := s.catalog.LoadUser(r.Context(), caller.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) issueSession(ctx context.Context, user catalog.UserView) (sessionResponse, error) {
	token, claims, err := s.tokens.IssueToken(user.ID, user.Username, user.Roles)
	if err != nil {
		return sessionResponse{}, err
	}
	resp := sessionResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: claims.ExpiresAt.Time,
		User:      user,
	}
	if s.sessions != nil {
		refresh, err := util.NewID("rt")
		if err != nil {
			return sessionResponse{}, err
		}
		if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, user.Username, s.now().Add(s.refreshTTL)); err != nil {
			return sessionResponse{}, err
		}
		resp.RefreshToken = refresh
	}
	return resp, nil
}

func (s *HTTPServer) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.catalog.ListUsers(r.Context(), callerFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *HTTPServer) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.catalog.GetUser(r.Context(), callerFrom(r), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.catalog.DeleteUser(r.Context(), callerFrom(r), userID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
