// Package media forwards uploaded files to a remote object store and returns
// the URL clients should use to fetch them.
//
// Two gateways exist: Cloudinary, which resizes profile photos server-side,
// and any S3-compatible bucket, where photos are resized in-process before the
// write. Both treat resumes as opaque bytes.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/xid"
)

// Kind selects the storage treatment of an upload.
type Kind string

const (
	KindResume       Kind = "resume"
	KindProfilePhoto Kind = "profilePhoto"
)

const (
	// MaxFileSize is the per-file limit, enforced before any network call.
	MaxFileSize = 5 << 20

	// UploadTimeout bounds a single upload including retries inside the SDK.
	UploadTimeout = 30 * time.Second

	// PhotoBounds is the edge of the square profile photos are fitted into.
	PhotoBounds = 500

	ProfilePhotoFolder = "profile-photos"
	ResumeFolder       = "resumes"
)

var (
	ErrEmptyFile    = errors.New("media: file is empty")
	ErrFileTooLarge = fmt.Errorf("media: file exceeds %d bytes", MaxFileSize)
	ErrNotAnImage   = errors.New("media: profile photo is not an image")
	ErrUnknownKind  = errors.New("media: unknown upload kind")
)

// File is an uploaded payload read fully into memory.
type File struct {
	Data     []byte
	Filename string
}

// Upload describes one object to store. OwnerID names the account a profile
// photo belongs to and is ignored for resumes.
type Upload struct {
	Kind    Kind
	File    File
	OwnerID string
}

// Result is where the object ended up.
type Result struct {
	URL string
	Key string
}

// Gateway stores files remotely. Implementations must be safe for concurrent use.
type Gateway interface {
	Upload(ctx context.Context, up Upload) (*Result, error)
}

// ProfilePhotoKey derives the object name of an account's profile photo.
//
// The key depends only on the account ID: it survives email changes, a new
// photo overwrites the previous one, and two accounts never share a key even
// when one reuses an address the other gave up.
func ProfilePhotoKey(ownerID string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(ownerID) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return "profile_" + b.String()
}

// resumeKey names a resume object. Resumes are never overwritten.
func resumeKey(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 8 {
		ext = ""
	}
	return "resume_" + xid.New().String() + ext
}

// check rejects payloads no gateway should accept.
func check(up Upload) error {
	switch up.Kind {
	case KindResume, KindProfilePhoto:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, up.Kind)
	}

	if len(up.File.Data) == 0 {
		return ErrEmptyFile
	}
	if len(up.File.Data) > MaxFileSize {
		return ErrFileTooLarge
	}

	if up.Kind == KindProfilePhoto {
		if up.OwnerID == "" {
			return errors.New("media: profile photo upload without owner id")
		}
		if !strings.HasPrefix(http.DetectContentType(up.File.Data), "image/") {
			return ErrNotAnImage
		}
	}
	return nil
}
