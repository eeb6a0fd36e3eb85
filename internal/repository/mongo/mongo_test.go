package mongo

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/rs/xid"

	"github.com/sakif/job-portal/internal/apperror"
	"github.com/sakif/job-portal/internal/model"
)

// newTestStore connects to MONGO_TEST_URI and uses a throwaway database.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	dbName := "portal_test_" + xid.New().String()
	s, err := New(context.Background(), uri, dbName)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = s.client.Database(dbName).Drop(context.Background())
		s.Close()
	})
	return s
}

func TestDocumentConversion(t *testing.T) {
	u := &model.User{
		ID:       "abc",
		FullName: "Ada",
		Email:    "ada@example.com",
		Role:     model.RoleRecruiter,
		Profile:  model.Profile{Skills: []string{"a", "b"}, ResumeURL: "r", ProfilePictureURL: "p"},
	}

	got := toDocument(u).toModel()
	if got.ID != u.ID || got.Role != u.Role || got.Profile.ResumeURL != "r" || len(got.Profile.Skills) != 2 {
		t.Errorf("conversion lost data: %+v", got)
	}
}

func TestStore_CreateAndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &model.User{FullName: "Ada", Email: "Ada@Example.com", PasswordHash: "h", Role: model.RoleCandidate}
	if err := s.Create(ctx, u); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	byEmail, err := s.GetByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if byEmail.ID != u.ID {
		t.Errorf("GetByEmail() ID = %q, want %q", byEmail.ID, u.ID)
	}

	err = s.Create(ctx, &model.User{FullName: "Other", Email: "ADA@example.com", Role: model.RoleRecruiter})
	if !errors.Is(err, apperror.ErrDuplicateIdentity) {
		t.Errorf("second Create() error = %v, want ErrDuplicateIdentity", err)
	}
}

func TestStore_SaveAndNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &model.User{FullName: "Ada", Email: "ada@example.com", Role: model.RoleCandidate}
	if err := s.Create(ctx, u); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	u.Profile.Bio = "updated"
	if err := s.Save(ctx, u); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := s.GetByID(ctx, u.ID)
	if err != nil || got.Profile.Bio != "updated" {
		t.Fatalf("GetByID() = %+v, %v", got, err)
	}

	if _, err := s.GetByID(ctx, "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.Save(ctx, &model.User{ID: "missing", Email: "m@example.com", Role: model.RoleCandidate}); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Save(missing) error = %v, want ErrNotFound", err)
	}
}
