package catalog

import (
	"context"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"brucewnd/api/internal/authpw"
	"brucewnd/api/internal/rbac"
	"brucewnd/api/internal/store"
)

const maxUsernameLength = 32

var errBadCredentials = newError(KindUnauthorized, "invalid username or password")

type RegisterInput struct {
	Username string
	Password string
}

func normalizeUsername(raw string) (string, error) {
	username := strings.TrimSpace(raw)
	if username == "" {
		return "", newError(KindValidation, "username is required")
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return "", newError(KindValidation, "username must be at most %d characters", maxUsernameLength)
	}
	if strings.IndexFunc(username, unicode.IsSpace) >= 0 {
		return "", newError(KindValidation, "username must not contain whitespace")
	}
	return username, nil
}

// Register creates an account and its role memberships in one unit of work.
// The first account ever created also receives the elevated roles.
func (s *Service) Register(ctx context.Context, input RegisterInput) (UserView, error) {
	username, err := normalizeUsername(input.Username)
	if err != nil {
		return UserView{}, err
	}
	if err := authpw.ValidatePassword(input.Password); err != nil {
		return UserView{}, &Error{Kind: KindValidation, Message: err.Error(), Err: err}
	}
	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return UserView{}, err
	}

	var created store.User
	err = s.unitOfWork(ctx, "register", func(ctx context.Context, tx Tx) error {
		// The advisory lock serializes the first-account decision; anything
		// it cannot order comes back as a serialization failure and retries.
		if err := tx.LockBootstrap(ctx); err != nil {
			return err
		}
		exists, err := tx.UsernameExists(ctx, username)
		if err != nil {
			return err
		}
		if exists {
			return newError(KindDuplicateName, "username already taken")
		}
		count, err := tx.CountUsers(ctx)
		if err != nil {
			return err
		}

		user, err := tx.InsertUser(ctx, username, hash)
		if err != nil {
			return err
		}
		names := rbac.Names(rbac.RolesForNewAccount(count == 0))
		roles, err := tx.EnsureRoles(ctx, names)
		if err != nil {
			return err
		}
		ids := make([]int64, len(roles))
		for i, role := range roles {
			ids[i] = role.ID
		}
		if err := tx.AssignRoles(ctx, user.ID, ids); err != nil {
			return err
		}

		user.Roles = rbac.NewSet(names...).Names()
		created = user
		return nil
	})
	if err != nil {
		return UserView{}, err
	}
	s.logger.InfoContext(ctx, "account registered", "user_id", created.ID, "roles", created.Roles)
	return userView(created), nil
}

// Authenticate checks a username and password pair. Unknown users and wrong
// passwords fail the same way.
func (s *Service) Authenticate(ctx context.Context, username, password string) (UserView, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return UserView{}, errBadCredentials
	}

	var user store.User
	err := s.unitOfWork(ctx, "authenticate", func(ctx context.Context, tx Tx) error {
		var err error
		user, err = tx.GetUserByUsername(ctx, username)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return UserView{}, errBadCredentials
	}
	if err != nil {
		return UserView{}, err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return UserView{}, errBadCredentials
	}
	return userView(user), nil
}

// LoadUser reads an account without an authorization check. It backs session
// refresh, where the caller is the token holder itself.
func (s *Service) LoadUser(ctx context.Context, userID int64) (UserView, error) {
	var user store.User
	err := s.unitOfWork(ctx, "load_user", func(ctx context.Context, tx Tx) error {
		var err error
		user, err = tx.GetUserByID(ctx, userID)
		return err
	})
	if err != nil {
		return UserView{}, err
	}
	return userView(user), nil
}

func (s *Service) GetUser(ctx context.Context, caller Caller, userID int64) (UserView, error) {
	if err := checkAdminOrSelf(caller, userID); err != nil {
		return UserView{}, err
	}
	return s.LoadUser(ctx, userID)
}

func (s *Service) ListUsers(ctx context.Context, caller Caller) ([]UserView, error) {
	if err := checkAdmin(caller); err != nil {
		return nil, err
	}
	var users []store.User
	err := s.unitOfWork(ctx, "list_users", func(ctx context.Context, tx Tx) error {
		var err error
		users, err = tx.ListUsers(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	views := make([]UserView, len(users))
	for i, user := range users {
		views[i] = userView(user)
	}
	return views, nil
}

// DeleteUser removes an account that no longer authors any comic.
func (s *Service) DeleteUser(ctx context.Context, caller Caller, userID int64) error {
	if err := checkAdmin(caller); err != nil {
		return err
	}
	return s.unitOfWork(ctx, "delete_user", func(ctx context.Context, tx Tx) error {
		return tx.DeleteUser(ctx, userID)
	})
}
