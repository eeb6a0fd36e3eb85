// Package repository declares the storage contracts the service layer depends on.
package repository

import (
	"context"

	"github.com/sakif/job-portal/internal/model"
)

// UserRepository is the credential store: one record per email.
//
// Emails are compared after model.NormalizeEmail. Save is a full-document
// overwrite with last-writer-wins semantics; there is no revision check.
type UserRepository interface {
	// GetByEmail returns apperror.ErrNotFound when no record has the email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// GetByID returns apperror.ErrNotFound when the record does not exist.
	GetByID(ctx context.Context, id string) (*model.User, error)
	// Create assigns ID and timestamps. It returns apperror.ErrDuplicateIdentity
	// when the email is taken.
	Create(ctx context.Context, user *model.User) error
	// Save overwrites the stored record with user. It returns
	// apperror.ErrNotFound if the record vanished and
	// apperror.ErrDuplicateIdentity if the new email is taken.
	Save(ctx context.Context, user *model.User) error
	Close() error
}
