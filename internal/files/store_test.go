package files

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "blobstore_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	st, err := NewStore(tmpDir)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return st, tmpDir
}

func TestStore_PutOpenDeleteList(t *testing.T) {
	st, tmpDir := newTestStore(t)
	ctx := context.Background()
	content := []byte("fake png bytes")

	blob, err := st.Put(ctx, "profileimages", "image/png", bytes.NewReader(content), "avatar.png")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !strings.HasSuffix(blob.Name, ".png") {
		t.Errorf("blob name = %q, want .png suffix", blob.Name)
	}
	if blob.Size != int64(len(content)) {
		t.Errorf("blob size = %d, want %d", blob.Size, len(content))
	}
	if blob.ContentType != "image/png" {
		t.Errorf("content type = %q, want image/png", blob.ContentType)
	}

	// Stored inside the bucket directory.
	if _, err := os.Stat(filepath.Join(tmpDir, "profileimages", blob.Name)); err != nil {
		t.Errorf("blob file should exist: %v", err)
	}

	t.Run("open", func(t *testing.T) {
		f, _, err := st.Open(ctx, "profileimages", blob.Name)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			t.Fatalf("ReadAll failed: %v", err)
		}
		if !bytes.Equal(data, content) {
			t.Errorf("blob content = %q, want %q", data, content)
		}
	})

	t.Run("list", func(t *testing.T) {
		blobs, err := st.List(ctx, "profileimages")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(blobs) != 1 {
			t.Fatalf("List returned %d blobs, want 1", len(blobs))
		}
		if blobs[0].Name != blob.Name || blobs[0].Size != blob.Size {
			t.Errorf("listed blob = %+v, want name %q size %d", blobs[0], blob.Name, blob.Size)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := st.Delete(ctx, "profileimages", blob.Name); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, _, err := st.Open(ctx, "profileimages", blob.Name); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := st.Delete(ctx, "profileimages", blob.Name); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
	})
}

func TestStore_BucketPolicy(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name        string
		bucket      string
		contentType string
		wantErr     error
	}{
		{"png to profileimages", "profileimages", "image/png", nil},
		{"jpeg to profileimages", "profileimages", "image/jpeg", nil},
		{"pdf to profileimages", "profileimages", "application/pdf", ErrUnsupportedType},
		{"pdf to resumes", "resumes", "application/pdf", nil},
		{"png to resumes", "resumes", "image/png", nil},
		{"text to resumes", "resumes", "text/plain", ErrUnsupportedType},
		{"content type with params", "resumes", "Application/PDF; name=cv", nil},
		{"empty content type", "profileimages", "", ErrUnsupportedType},
		{"unknown bucket", "documents", "image/png", ErrInvalidBucket},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := st.Put(ctx, tc.bucket, tc.contentType, strings.NewReader("data"), "file.bin")
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Put(%s, %q) error = %v, want %v", tc.bucket, tc.contentType, err, tc.wantErr)
			}
		})
	}
}

func TestStore_InvalidBucket(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	if _, _, err := st.Open(ctx, "documents", "x.png"); !errors.Is(err, ErrInvalidBucket) {
		t.Errorf("Open: expected ErrInvalidBucket, got %v", err)
	}
	if err := st.Delete(ctx, "documents", "x.png"); !errors.Is(err, ErrInvalidBucket) {
		t.Errorf("Delete: expected ErrInvalidBucket, got %v", err)
	}
	if _, err := st.List(ctx, "documents"); !errors.Is(err, ErrInvalidBucket) {
		t.Errorf("List: expected ErrInvalidBucket, got %v", err)
	}
}

func TestStore_TooLarge(t *testing.T) {
	st, tmpDir := newTestStore(t)
	ctx := context.Background()

	over := bytes.Repeat([]byte("a"), MaxBlobSize+1)
	_, err := st.Put(ctx, "resumes", "application/pdf", bytes.NewReader(over), "big.pdf")
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}

	// The rejected upload must not leave anything behind, temp files
	// included.
	entries, err := os.ReadDir(filepath.Join(tmpDir, "resumes"))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("bucket not empty after rejected upload: %d entries", len(entries))
	}

	exact := bytes.Repeat([]byte("a"), MaxBlobSize)
	blob, err := st.Put(ctx, "resumes", "application/pdf", bytes.NewReader(exact), "max.pdf")
	if err != nil {
		t.Fatalf("Put at exact ceiling failed: %v", err)
	}
	if blob.Size != MaxBlobSize {
		t.Errorf("blob size = %d, want %d", blob.Size, MaxBlobSize)
	}
}

func TestStore_TraversalNames(t *testing.T) {
	st, tmpDir := newTestStore(t)
	ctx := context.Background()

	// A real file outside the bucket that a traversal would reach.
	secret := filepath.Join(tmpDir, "questions", "q1.json")
	if err := os.MkdirAll(filepath.Dir(secret), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(secret, []byte(`{"_id":"q1"}`), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	tests := []struct {
		name     string
		supplied string
		wantErr  error
	}{
		{"relative traversal", "../questions/q1.json", ErrNotFound},
		{"deep traversal", "../../../../etc/passwd", ErrNotFound},
		{"backslash traversal", "..\\questions\\q1.json", ErrNotFound},
		{"bare dotdot", "..", ErrInvalidName},
		{"hidden file", ".env", ErrInvalidName},
		{"empty", "", ErrInvalidName},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := st.Open(ctx, "resumes", tc.supplied); !errors.Is(err, tc.wantErr) {
				t.Errorf("Open(%q) error = %v, want %v", tc.supplied, err, tc.wantErr)
			}
			if err := st.Delete(ctx, "resumes", tc.supplied); !errors.Is(err, tc.wantErr) {
				t.Errorf("Delete(%q) error = %v, want %v", tc.supplied, err, tc.wantErr)
			}
		})
	}

	// The file outside the bucket must be untouched.
	if _, err := os.Stat(secret); err != nil {
		t.Errorf("file outside bucket should still exist: %v", err)
	}
}

func TestStore_CleansOrphanedTemps(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "blobstore_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	bucketDir := filepath.Join(tmpDir, "resumes")
	if err := os.MkdirAll(bucketDir, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(bucketDir, ".up-stale.tmp"), []byte("partial"), 0644); err != nil {
		t.Fatalf("failed to write stale temp: %v", err)
	}
	if err := os.WriteFile(filepath.Join(bucketDir, "kept.pdf"), []byte("%PDF-1.4"), 0644); err != nil {
		t.Fatalf("failed to write blob: %v", err)
	}

	st, err := NewStore(tmpDir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(bucketDir, ".up-stale.tmp")); !errors.Is(err, os.ErrNotExist) {
		t.Error("stale temp should have been removed")
	}

	blobs, err := st.List(context.Background(), "resumes")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(blobs) != 1 || blobs[0].Name != "kept.pdf" {
		t.Errorf("List = %+v, want only kept.pdf", blobs)
	}
}

func TestStore_GeneratedNames(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	a, err := st.Put(ctx, "profileimages", "image/png", strings.NewReader("one"), "same.png")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	b, err := st.Put(ctx, "profileimages", "image/png", strings.NewReader("two"), "same.png")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if a.Name == b.Name {
		t.Errorf("two uploads of the same filename got the same stored name %q", a.Name)
	}

	// The caller's filename must not leak into the stored name.
	if strings.Contains(a.Name, "same") {
		t.Errorf("stored name %q leaks the original filename", a.Name)
	}

	blobs, err := st.List(ctx, "profileimages")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(blobs) != 2 {
		t.Errorf("List returned %d blobs, want 2", len(blobs))
	}
}
