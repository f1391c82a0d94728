package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/storage"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/validate"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// hash validates the pair. A new account with a username needs a password;
// on update an empty password keeps the stored one.
func (c *credentials) hash(creating bool) (string, string) {
	c.Username = strings.TrimSpace(c.Username)
	if err := validate.Username(c.Username); err != nil {
		return "", err.Error()
	}
	if c.Password == "" {
		if creating && c.Username != "" {
			return "", "password is required with username"
		}
		return "", ""
	}
	if err := validate.Password(c.Password); err != nil {
		return "", err.Error()
	}
	h, err := validate.HashPassword(c.Password)
	if err != nil {
		return "", "failed to hash password"
	}
	return h, ""
}

// checkUsername must run inside the transaction that writes the account.
func checkUsername(ctx context.Context, tx *storage.Store, username string, role model.Role, id int64) error {
	taken, err := tx.UsernameTaken(ctx, username, role, id)
	if err != nil {
		return err
	}
	if taken {
		return errUsernameTaken
	}
	return nil
}

func organisationExists(ctx context.Context, tx *storage.Store, id int64) error {
	_, err := tx.GetOrganisation(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.ErrInvalidReference
	}
	return err
}
