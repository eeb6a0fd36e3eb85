// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"
)

// Role is the account type chosen at registration. It never changes afterwards.
type Role string

const (
	RoleCandidate Role = "candidate"
	RoleRecruiter Role = "recruiter"
)

// ParseRole accepts the canonical role names plus "student", the name older
// frontend builds still send for candidates.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(RoleCandidate), "student":
		return RoleCandidate, true
	case string(RoleRecruiter):
		return RoleRecruiter, true
	}
	return "", false
}

// User is the identity record: one per person, keyed by email.
//
// Local accounts carry a PasswordHash; accounts created through Google sign-in
// have neither a hash nor a phone number. PasswordHash is tagged json:"-" so an
// accidental encode of a User can never leak it, but responses should still go
// through Sanitize.
type User struct {
	ID           string    `json:"id"`
	FullName     string    `json:"fullName"`
	Email        string    `json:"email"`
	PhoneNumber  string    `json:"phoneNumber,omitempty"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Profile      Profile   `json:"profile"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Profile is always present on a User. A zero Profile is a valid, empty profile.
type Profile struct {
	Bio                string   `json:"bio,omitempty"`
	Skills             []string `json:"skills"`
	ResumeURL          string   `json:"resumeUrl,omitempty"`
	ResumeOriginalName string   `json:"resumeOriginalName,omitempty"`
	ProfilePictureURL  string   `json:"profilePictureUrl"`
	CompanyID          string   `json:"companyRef,omitempty"` // owned by the company records
}

// HasPassword reports whether the account can log in with a local password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// PublicUser is the sanitized view of a User sent to clients.
type PublicUser struct {
	ID          string  `json:"id"`
	FullName    string  `json:"fullName"`
	Email       string  `json:"email"`
	PhoneNumber string  `json:"phoneNumber,omitempty"`
	Role        Role    `json:"role"`
	Profile     Profile `json:"profile"`
}

// Sanitize strips secrets. Skills is normalised to an empty list so clients
// always receive an array.
func (u *User) Sanitize() *PublicUser {
	p := u.Profile
	if p.Skills == nil {
		p.Skills = []string{}
	}
	return &PublicUser{
		ID:          u.ID,
		FullName:    u.FullName,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
		Role:        u.Role,
		Profile:     p,
	}
}

// NormalizeEmail is the single case policy for emails: trimmed, lower-cased.
// It is applied on every write and every lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
