package media

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/rs/xid"
)

// pngBytes encodes a solid w×h image.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return buf.Bytes()
}

func TestProfilePhotoKey(t *testing.T) {
	tests := []struct {
		ownerID string
		want    string
	}{
		{"d1ufpf3ks6g8mu7gbcd0", "profile_d1ufpf3ks6g8mu7gbcd0"},
		{"user-1", "profile_user_1"},
		{"65F0c2A1e4", "profile_65f0c2a1e4"},
	}

	for _, tt := range tests {
		t.Run(tt.ownerID, func(t *testing.T) {
			if got := ProfilePhotoKey(tt.ownerID); got != tt.want {
				t.Errorf("ProfilePhotoKey(%q) = %q, want %q", tt.ownerID, got, tt.want)
			}
		})
	}
}

func TestProfilePhotoKey_DistinctPerAccount(t *testing.T) {
	a, b := xid.New().String(), xid.New().String()
	if ProfilePhotoKey(a) == ProfilePhotoKey(b) {
		t.Errorf("accounts %s and %s share a photo key", a, b)
	}
}

func TestCheck(t *testing.T) {
	photo := pngBytes(t, 4, 4)

	tests := []struct {
		name    string
		up      Upload
		wantErr error
	}{
		{"valid photo", Upload{Kind: KindProfilePhoto, File: File{Data: photo}, OwnerID: "u1"}, nil},
		{"valid resume", Upload{Kind: KindResume, File: File{Data: []byte("%PDF-1.4"), Filename: "cv.pdf"}}, nil},
		{"empty", Upload{Kind: KindResume, File: File{}}, ErrEmptyFile},
		{"too large", Upload{Kind: KindResume, File: File{Data: make([]byte, MaxFileSize+1)}}, ErrFileTooLarge},
		{"photo not an image", Upload{Kind: KindProfilePhoto, File: File{Data: []byte("hello")}, OwnerID: "u1"}, ErrNotAnImage},
		{"unknown kind", Upload{Kind: "video", File: File{Data: []byte("x")}}, ErrUnknownKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := check(tt.up)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("check() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("check() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestResumeKey(t *testing.T) {
	a, b := resumeKey("CV.PDF"), resumeKey("CV.PDF")
	if a == b {
		t.Error("resume keys must be unique")
	}
	if !strings.HasPrefix(a, "resume_") || !strings.HasSuffix(a, ".pdf") {
		t.Errorf("resumeKey() = %q", a)
	}
}
