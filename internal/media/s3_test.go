package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory objectStore.
type memStore struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
	err          error
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte), contentTypes: make(map[string]string)}
}

func (m *memStore) Put(ctx context.Context, key string, val []byte, contentType string) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("upload without deadline")
	}
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = val
	m.contentTypes[key] = contentType
	return nil
}

func TestS3_ProfilePhotoIsResizedAndOverwritten(t *testing.T) {
	store := newMemStore()
	gw := newS3(store, "https://cdn.example.com/")

	first, err := gw.Upload(context.Background(), Upload{
		Kind:    KindProfilePhoto,
		File:    File{Data: pngBytes(t, 1000, 800)},
		OwnerID: "d1ufpf3ks6g8mu7gbcd0",
	})
	require.NoError(t, err)

	wantKey := ProfilePhotoFolder + "/" + ProfilePhotoKey("d1ufpf3ks6g8mu7gbcd0") + ".jpg"
	assert.Equal(t, wantKey, first.Key)
	assert.True(t, strings.HasPrefix(first.URL, "https://cdn.example.com/"+wantKey+"?v="))

	img, format, err := image.Decode(bytes.NewReader(store.objects[wantKey]))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, "image/jpeg", store.contentTypes[wantKey])
	assert.LessOrEqual(t, img.Bounds().Dx(), PhotoBounds)
	assert.LessOrEqual(t, img.Bounds().Dy(), PhotoBounds)

	second, err := gw.Upload(context.Background(), Upload{
		Kind:    KindProfilePhoto,
		File:    File{Data: pngBytes(t, 20, 20)},
		OwnerID: "d1ufpf3ks6g8mu7gbcd0",
	})
	require.NoError(t, err)

	assert.Equal(t, first.Key, second.Key)
	assert.NotEqual(t, first.URL, second.URL, "URL must change so caches refetch")
	assert.Len(t, store.objects, 1)
}

func TestS3_ResumeStoredVerbatim(t *testing.T) {
	store := newMemStore()
	gw := newS3(store, "https://cdn.example.com")
	data := []byte("%PDF-1.4 resume")

	res, err := gw.Upload(context.Background(), Upload{Kind: KindResume, File: File{Data: data, Filename: "cv.pdf"}})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.Key, ResumeFolder+"/resume_"))
	assert.Equal(t, "https://cdn.example.com/"+res.Key, res.URL)
	assert.Equal(t, data, store.objects[res.Key])
	assert.Equal(t, "application/pdf", store.contentTypes[res.Key])
}

func TestResumeContentType(t *testing.T) {
	tests := []struct {
		name string
		file File
		want string
	}{
		{"pdf by extension", File{Filename: "CV.PDF", Data: []byte("x")}, "application/pdf"},
		{"sniffed pdf", File{Filename: "cv", Data: []byte("%PDF-1.4 body")}, "application/pdf"},
		{"unknown bytes", File{Filename: "cv", Data: []byte{0x00, 0x01, 0x02}}, "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resumeContentType(tt.file))
		})
	}
}

func TestS3_Failures(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("access denied")
	gw := newS3(store, "https://cdn.example.com")

	_, err := gw.Upload(context.Background(), Upload{Kind: KindResume, File: File{Data: []byte("x")}})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newS3(newMemStore(), "https://cdn.example.com").Upload(ctx, Upload{Kind: KindResume, File: File{Data: []byte("x")}})
	assert.ErrorIs(t, err, context.Canceled)
}
