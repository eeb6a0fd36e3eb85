// Package service holds the account workflows: registration, password and
// Google login, and profile updates.
//
//	Handler (HTTP) → UserService → UserRepository (store)
//	                             ↘ PasswordService, TokenService
//	                             ↘ IdentityVerifier (Google)
//	                             ↘ media.Gateway (uploads)
//
// Every workflow is linear: no retries, no background work. Failures are
// returned as *apperror.AppError values, possibly wrapped, and the handler maps
// them to one response.
//
// KEY RESPONSIBILITIES:
//   - Normalize and validate input before touching the store
//   - Keep login failures indistinguishable: unknown email, Google-only account
//     and wrong password all return InvalidCredentials after a bcrypt compare
//   - Upload files before saving, and never save a record whose upload failed
//   - Issue the session token; setting the cookie is the handler's job
//
// ORDERING:
//
//	Register       validate → duplicate check → assign ID → photo upload → hash → Create
//	Login          validate → lookup → bcrypt → role check → token
//	GoogleLogin    verify token → verified email? → find-or-create → token
//	UpdateProfile  validate → load → email conflict → uploads → apply → Save
//
// CONCURRENCY:
// Records are read, modified and saved without a lock or version check, so two
// concurrent updates to one account resolve as last writer wins. Creates are
// protected by the store's unique email constraint.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator"
	"github.com/rs/xid"

	"github.com/sakif/job-portal/internal/apperror"
	"github.com/sakif/job-portal/internal/auth"
	"github.com/sakif/job-portal/internal/media"
	"github.com/sakif/job-portal/internal/model"
	"github.com/sakif/job-portal/internal/repository"
)

// IdentityVerifier checks a federated ID token. *auth.GoogleProvider satisfies it.
type IdentityVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*auth.Identity, error)
}

// UserService implements the account workflows.
//
// DEPENDENCIES (injected via NewUserService):
//   - users      repository.UserRepository  → sqlite or mongo
//   - passwords  *auth.PasswordService      → bcrypt hash/verify
//   - tokens     *auth.TokenService         → session JWTs
//   - google     IdentityVerifier           → Google ID tokens (may be nil)
//   - media      media.Gateway              → cloudinary or s3
//   - logger     *slog.Logger               → structured logging
type UserService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	tokens    *auth.TokenService
	google    IdentityVerifier
	media     media.Gateway
	validate  *validator.Validate
	logger    *slog.Logger

	// dummyHash is compared against when the email is unknown so that a
	// missing account costs as much time as a wrong password.
	dummyHash string
}

// NewUserService wires the workflows. google may be nil, in which case
// federated login always fails.
func NewUserService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	tokens *auth.TokenService,
	google IdentityVerifier,
	gateway media.Gateway,
	logger *slog.Logger,
) *UserService {
	dummy, _ := passwords.Hash("portal-timing-equalizer")
	return &UserService{
		users:     users,
		passwords: passwords,
		tokens:    tokens,
		google:    google,
		media:     gateway,
		validate:  newValidator(),
		logger:    logger,
		dummyHash: dummy,
	}
}

// AuthResult bundles the user and the session token so the handler can set
// the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// RegisterInput is a local sign-up request.
type RegisterInput struct {
	FullName     string `json:"fullName" validate:"required,max=100"`
	Email        string `json:"email" validate:"required,email"`
	PhoneNumber  string `json:"phoneNumber" validate:"required,numeric,max=20"`
	Password     string `json:"password" validate:"required,max=72"`
	Role         string `json:"role" validate:"required"`
	ProfilePhoto *media.File `json:"-"`
}

// Register creates a local account. It does not start a session.
//
// The account ID is assigned before the photo upload so the photo is keyed to
// this account alone. A sign-up that loses a race for the email leaves an
// unreferenced object behind, never a replaced one.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Email = model.NormalizeEmail(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	if err := s.validateInput(in); err != nil {
		return nil, err
	}
	role, ok := model.ParseRole(in.Role)
	if !ok {
		return nil, apperror.ValidationFailed("role", "role must be candidate or recruiter")
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, apperror.DuplicateIdentity()
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/user: checking email: %w", err)
	}

	user := &model.User{
		ID:          xid.New().String(),
		FullName:    in.FullName,
		Email:       in.Email,
		PhoneNumber: in.PhoneNumber,
		Role:        role,
		Profile:     model.Profile{Skills: []string{}},
	}

	if in.ProfilePhoto != nil {
		res, err := s.media.Upload(ctx, media.Upload{
			Kind:    media.KindProfilePhoto,
			File:    *in.ProfilePhoto,
			OwnerID: user.ID,
		})
		if err != nil {
			s.logger.Warn("profile photo upload failed", slog.String("email", in.Email), slog.Any("error", err))
			return nil, apperror.UploadFailed("profile photo", err)
		}
		user.Profile.ProfilePictureURL = res.URL
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, apperror.ValidationFailed("password", "password is too long")
		}
		return nil, fmt.Errorf("service/user: hashing password: %w", err)
	}
	user.PasswordHash = hash

	// A concurrent registration can still win between the lookup and here;
	// the store reports that as DuplicateIdentity.
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/user: creating user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("role", string(user.Role)),
	)
	return user, nil
}

// LoginInput is a password login request.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"required"`
}

// Login checks local credentials and issues a session token.
//
// An unknown email, an account without a password and a wrong password all
// produce the same InvalidCredentials error. A correct password with the
// wrong role produces RoleMismatch.
func (s *UserService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	in.Email = model.NormalizeEmail(in.Email)
	if err := s.validateInput(in); err != nil {
		return nil, err
	}
	role, ok := model.ParseRole(in.Role)
	if !ok {
		return nil, apperror.ValidationFailed("role", "role must be candidate or recruiter")
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			_ = s.passwords.Verify(s.dummyHash, in.Password)
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/user: looking up %s: %w", in.Email, err)
	}

	if !user.HasPassword() {
		_ = s.passwords.Verify(s.dummyHash, in.Password)
		return nil, apperror.InvalidCredentials()
	}
	if err := s.passwords.Verify(user.PasswordHash, in.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/user: verifying password: %w", err)
	}

	if user.Role != role {
		return nil, apperror.RoleMismatch()
	}

	return s.issue(user, "password")
}

// GoogleLogin verifies a Google ID token and signs the user in, creating the
// account on first use. role only applies to a new account; an empty role
// means candidate.
func (s *UserService) GoogleLogin(ctx context.Context, idToken, role string) (*AuthResult, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, apperror.ValidationFailed("idToken", "idToken is required")
	}

	r := model.RoleCandidate
	if role != "" {
		parsed, ok := model.ParseRole(role)
		if !ok {
			return nil, apperror.ValidationFailed("role", "role must be candidate or recruiter")
		}
		r = parsed
	}

	if s.google == nil {
		s.logger.Warn("google login attempted but not configured")
		return nil, apperror.FederatedAuthFailed()
	}

	identity, err := s.google.Verify(ctx, idToken)
	if err != nil {
		s.logger.Warn("google token rejected", slog.Any("error", err))
		return nil, apperror.FederatedAuthFailed()
	}

	return s.LoginWithIdentity(ctx, identity, r)
}

// LoginWithIdentity runs find-or-create for an already verified identity.
// It is shared by the ID token endpoint and the redirect callback.
//
// An existing record is authoritative: neither its role nor its profile
// picture is touched.
func (s *UserService) LoginWithIdentity(ctx context.Context, identity *auth.Identity, role model.Role) (*AuthResult, error) {
	if identity == nil || identity.Email == "" {
		return nil, apperror.FederatedAuthFailed()
	}
	// Binding an unverified address would hand its local account to whoever
	// controls the Google account.
	if !identity.EmailVerified {
		s.logger.Warn("google identity has unverified email")
		return nil, apperror.FederatedAuthFailed()
	}
	if role == "" {
		role = model.RoleCandidate
	}

	email := model.NormalizeEmail(identity.Email)
	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return s.issue(user, "google")
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/user: looking up %s: %w", email, err)
	}

	user = &model.User{
		FullName: displayName(identity),
		Email:    email,
		Role:     role,
		Profile: model.Profile{
			Skills:            []string{},
			ProfilePictureURL: identity.Picture,
		},
	}
	if err := s.users.Create(ctx, user); err != nil {
		if !errors.Is(err, apperror.ErrDuplicateIdentity) {
			return nil, fmt.Errorf("service/user: provisioning %s: %w", email, err)
		}
		// Lost a race with a concurrent first login; use the winner's record.
		if user, err = s.users.GetByEmail(ctx, email); err != nil {
			return nil, fmt.Errorf("service/user: reloading %s: %w", email, err)
		}
	} else {
		s.logger.Info("user provisioned from google",
			slog.String("userID", user.ID),
			slog.String("role", string(user.Role)),
		)
	}

	return s.issue(user, "google")
}

// UpdateProfileInput is a profile update. Empty optional fields are treated as
// not supplied and keep their stored values.
type UpdateProfileInput struct {
	FullName     string      `json:"fullName" validate:"required,max=100"`
	Email        string      `json:"email" validate:"required,email"`
	PhoneNumber  string      `json:"phoneNumber" validate:"omitempty,numeric,max=20"`
	Bio          string      `json:"bio" validate:"max=2000"`
	Skills       string      `json:"skills"`
	Resume       *media.File `json:"-"`
	ProfilePhoto *media.File `json:"-"`
}

// UpdateProfile applies a partial update to the user's own record.
//
// Files are uploaded before the record is saved. A failed upload aborts
// without writing; a failed save after a successful upload leaves an
// unreferenced object behind. The profile photo key follows the account ID, so
// changing the email keeps the same photo object.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*model.User, error) {
	in.Email = model.NormalizeEmail(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/user: loading %s: %w", userID, err)
	}

	if in.Email != user.Email {
		other, err := s.users.GetByEmail(ctx, in.Email)
		switch {
		case err == nil && other.ID != user.ID:
			return nil, apperror.DuplicateIdentity()
		case err != nil && !errors.Is(err, apperror.ErrNotFound):
			return nil, fmt.Errorf("service/user: checking email: %w", err)
		}
	}

	if in.Resume != nil {
		res, err := s.media.Upload(ctx, media.Upload{Kind: media.KindResume, File: *in.Resume})
		if err != nil {
			s.logger.Warn("resume upload failed", slog.String("userID", user.ID), slog.Any("error", err))
			return nil, apperror.UploadFailed("resume", err)
		}
		user.Profile.ResumeURL = res.URL
		user.Profile.ResumeOriginalName = in.Resume.Filename
	}

	if in.ProfilePhoto != nil {
		res, err := s.media.Upload(ctx, media.Upload{
			Kind:    media.KindProfilePhoto,
			File:    *in.ProfilePhoto,
			OwnerID: user.ID,
		})
		if err != nil {
			s.logger.Warn("profile photo upload failed", slog.String("userID", user.ID), slog.Any("error", err))
			return nil, apperror.UploadFailed("profile photo", err)
		}
		user.Profile.ProfilePictureURL = res.URL
	}

	user.FullName = in.FullName
	user.Email = in.Email
	if in.PhoneNumber != "" {
		user.PhoneNumber = in.PhoneNumber
	}
	if in.Bio != "" {
		user.Profile.Bio = in.Bio
	}
	if skills := ParseSkills(in.Skills); len(skills) > 0 {
		user.Profile.Skills = skills
	}

	if err := s.users.Save(ctx, user); err != nil {
		return nil, fmt.Errorf("service/user: saving %s: %w", user.ID, err)
	}

	s.logger.Info("profile updated", slog.String("userID", user.ID))
	return user, nil
}

// GetUser returns the record for an authenticated subject.
func (s *UserService) GetUser(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.Unauthenticated()
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/user: fetching %s: %w", id, err)
	}
	return user, nil
}

func (s *UserService) issue(user *model.User, method string) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/user: generating token for %s: %w", user.ID, err)
	}

	s.logger.Info("user logged in",
		slog.String("userID", user.ID),
		slog.String("method", method),
	)
	return &AuthResult{User: user, Token: token}, nil
}

// displayName falls back to the email's local part when Google sends no name.
func displayName(id *auth.Identity) string {
	if name := strings.TrimSpace(id.Name); name != "" {
		return name
	}
	local, _, _ := strings.Cut(id.Email, "@")
	return local
}
