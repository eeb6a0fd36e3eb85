package media

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// fakeUploader records the last call and returns a canned response.
type fakeUploader struct {
	params uploader.UploadParams
	body   []byte
	resp   *uploader.UploadResult
	err    error
}

func (f *fakeUploader) Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error) {
	f.params = params
	if r, ok := file.(io.Reader); ok {
		f.body, _ = io.ReadAll(r)
	}
	return f.resp, f.err
}

func TestCloudinary_ProfilePhoto(t *testing.T) {
	fake := &fakeUploader{resp: &uploader.UploadResult{
		SecureURL: "https://res.cloudinary.com/demo/image/upload/v1/profile-photos/p.jpg",
		PublicID:  "profile-photos/p",
	}}
	gw := &Cloudinary{api: fake}
	data := pngBytes(t, 10, 10)

	res, err := gw.Upload(context.Background(), Upload{
		Kind:    KindProfilePhoto,
		File:    File{Data: data, Filename: "me.png"},
		OwnerID: "d1ufpf3ks6g8mu7gbcd0",
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if res.URL != fake.resp.SecureURL {
		t.Errorf("URL = %q, want %q", res.URL, fake.resp.SecureURL)
	}
	if fake.params.PublicID != ProfilePhotoKey("d1ufpf3ks6g8mu7gbcd0") {
		t.Errorf("PublicID = %q, want derived key", fake.params.PublicID)
	}
	if fake.params.Folder != ProfilePhotoFolder || fake.params.ResourceType != "image" {
		t.Errorf("unexpected params: folder=%q type=%q", fake.params.Folder, fake.params.ResourceType)
	}
	if fake.params.Transformation != photoTransformation {
		t.Errorf("Transformation = %q", fake.params.Transformation)
	}
	if fake.params.Overwrite == nil || !*fake.params.Overwrite {
		t.Error("profile photos must overwrite")
	}
	if len(fake.body) != len(data) {
		t.Errorf("uploaded %d bytes, want %d", len(fake.body), len(data))
	}
}

func TestCloudinary_Resume(t *testing.T) {
	fake := &fakeUploader{resp: &uploader.UploadResult{SecureURL: "https://res.cloudinary.com/demo/raw/upload/v1/resumes/r.pdf"}}
	gw := &Cloudinary{api: fake}

	_, err := gw.Upload(context.Background(), Upload{
		Kind: KindResume,
		File: File{Data: []byte("%PDF-1.4 ..."), Filename: "cv.pdf"},
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if fake.params.ResourceType != "raw" || fake.params.Folder != ResumeFolder {
		t.Errorf("unexpected params: %+v", fake.params)
	}
	if fake.params.Transformation != "" {
		t.Error("resumes must not be transformed")
	}
}

func TestCloudinary_Failures(t *testing.T) {
	upload := Upload{Kind: KindResume, File: File{Data: []byte("x"), Filename: "a.txt"}}

	tests := []struct {
		name string
		fake *fakeUploader
	}{
		{"transport error", &fakeUploader{err: errors.New("connection reset")}},
		{"api error", &fakeUploader{resp: &uploader.UploadResult{Error: api.ErrorResp{Message: "quota exceeded"}}}},
		{"no url", &fakeUploader{resp: &uploader.UploadResult{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &Cloudinary{api: tt.fake}
			if _, err := gw.Upload(context.Background(), upload); err == nil {
				t.Error("Upload() should fail")
			}
		})
	}
}

func TestCloudinary_RejectsBeforeNetwork(t *testing.T) {
	fake := &fakeUploader{}
	gw := &Cloudinary{api: fake}

	_, err := gw.Upload(context.Background(), Upload{Kind: KindResume})
	if !errors.Is(err, ErrEmptyFile) {
		t.Errorf("Upload() error = %v, want ErrEmptyFile", err)
	}
	if fake.params.Folder != "" {
		t.Error("uploader should not have been called")
	}
}
