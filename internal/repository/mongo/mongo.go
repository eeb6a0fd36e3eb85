// Package mongo implements repository.UserRepository on MongoDB.
//
// Each user is one document in the users collection with the profile embedded
// as a sub-document. A unique index on email enforces one record per address.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/sakif/job-portal/internal/apperror"
	"github.com/sakif/job-portal/internal/model"
	"github.com/sakif/job-portal/internal/repository"
)

const (
	usersCollection = "users"
	connectTimeout  = 10 * time.Second
)

var _ repository.UserRepository = (*Store)(nil)

// Store holds the client and the users collection.
type Store struct {
	client *mongo.Client
	users  *mongo.Collection
}

// userDocument is the stored shape. It is kept apart from model.User so bson
// tags do not leak into the domain package.
type userDocument struct {
	ID           string          `bson:"_id"`
	FullName     string          `bson:"fullName"`
	Email        string          `bson:"email"`
	PhoneNumber  string          `bson:"phoneNumber,omitempty"`
	PasswordHash string          `bson:"passwordHash,omitempty"`
	Role         string          `bson:"role"`
	Profile      profileDocument `bson:"profile"`
	CreatedAt    time.Time       `bson:"createdAt"`
	UpdatedAt    time.Time       `bson:"updatedAt"`
}

type profileDocument struct {
	Bio                string   `bson:"bio,omitempty"`
	Skills             []string `bson:"skills"`
	ResumeURL          string   `bson:"resume,omitempty"`
	ResumeOriginalName string   `bson:"resumeOriginalName,omitempty"`
	ProfilePictureURL  string   `bson:"profilePhoto"`
	CompanyID          string   `bson:"company,omitempty"`
}

// New connects to uri, pings the server and makes sure the email index exists.
func New(ctx context.Context, uri, database string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connecting: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: pinging server: %w", err)
	}

	s := &Store{
		client: client,
		users:  client.Database(database).Collection(usersCollection),
	}

	_, err = s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_unique"),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: creating email index: %w", err)
	}

	return s, nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = xid.New().String()
	}
	user.Email = model.NormalizeEmail(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now

	if _, err := s.users.InsertOne(ctx, toDocument(user)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.DuplicateIdentity()
		}
		return fmt.Errorf("mongo: inserting user %s: %w", user.Email, err)
	}
	return nil
}

// Save replaces the whole document. CreatedAt is taken from user as loaded.
func (s *Store) Save(ctx context.Context, user *model.User) error {
	user.Email = model.NormalizeEmail(user.Email)
	user.UpdatedAt = time.Now().UTC()

	res, err := s.users.ReplaceOne(ctx, bson.D{{Key: "_id", Value: user.ID}}, toDocument(user))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.DuplicateIdentity()
		}
		return fmt.Errorf("mongo: replacing user %s: %w", user.ID, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("user")
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*model.User, error) {
	return s.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findOne(ctx, bson.D{{Key: "email", Value: model.NormalizeEmail(email)}})
}

func (s *Store) findOne(ctx context.Context, filter bson.D) (*model.User, error) {
	var doc userDocument
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("user")
		}
		return nil, fmt.Errorf("mongo: finding user: %w", err)
	}
	return doc.toModel(), nil
}

func toDocument(u *model.User) *userDocument {
	return &userDocument{
		ID:           u.ID,
		FullName:     u.FullName,
		Email:        u.Email,
		PhoneNumber:  u.PhoneNumber,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		Profile: profileDocument{
			Bio:                u.Profile.Bio,
			Skills:             u.Profile.Skills,
			ResumeURL:          u.Profile.ResumeURL,
			ResumeOriginalName: u.Profile.ResumeOriginalName,
			ProfilePictureURL:  u.Profile.ProfilePictureURL,
			CompanyID:          u.Profile.CompanyID,
		},
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (d *userDocument) toModel() *model.User {
	return &model.User{
		ID:           d.ID,
		FullName:     d.FullName,
		Email:        d.Email,
		PhoneNumber:  d.PhoneNumber,
		PasswordHash: d.PasswordHash,
		Role:         model.Role(d.Role),
		Profile: model.Profile{
			Bio:                d.Profile.Bio,
			Skills:             d.Profile.Skills,
			ResumeURL:          d.Profile.ResumeURL,
			ResumeOriginalName: d.Profile.ResumeOriginalName,
			ProfilePictureURL:  d.Profile.ProfilePictureURL,
			CompanyID:          d.Profile.CompanyID,
		},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
