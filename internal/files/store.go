package files

import (
	"context"
	"errors"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"questionbank/internal/ident"
	"questionbank/internal/logging"
)

// MaxBlobSize is the upload size ceiling.
const MaxBlobSize = 5 << 20 // 5 MiB

const tempPattern = ".up-*.tmp"

var (
	ErrInvalidBucket   = errors.New("invalid bucket")
	ErrUnsupportedType = errors.New("unsupported content type")
	ErrTooLarge        = errors.New("file too large")
	ErrInvalidName     = errors.New("invalid file name")
	ErrNotFound        = errors.New("file not found")
)

// policy describes what content types a bucket accepts.
type policy struct {
	prefixes []string
	exact    []string
}

func (p policy) accepts(mediaType string) bool {
	for _, pre := range p.prefixes {
		if strings.HasPrefix(mediaType, pre) {
			return true
		}
	}
	for _, e := range p.exact {
		if mediaType == e {
			return true
		}
	}
	return false
}

// buckets is the fixed set of upload folders.
var buckets = map[string]policy{
	"profileimages": {prefixes: []string{"image/"}},
	"resumes":       {prefixes: []string{"image/"}, exact: []string{"application/pdf"}},
}

// Blob describes one stored file.
type Blob struct {
	Name        string
	Size        int64
	ContentType string
}

// Store keeps uploaded blobs on the local filesystem, one directory per
// bucket. Stored names are always generated server-side; caller-supplied
// names are only used to locate existing blobs, after sanitizing.
type Store struct {
	baseDir string
}

// NewStore creates the bucket directories under baseDir and returns the
// store. Temp files orphaned by a crashed upload are removed; they were
// never visible as blobs.
func NewStore(baseDir string) (*Store, error) {
	for name := range buckets {
		dir := filepath.Join(baseDir, name)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		stale, err := filepath.Glob(filepath.Join(dir, tempPattern))
		if err == nil && len(stale) > 0 {
			for _, p := range stale {
				os.Remove(p)
			}
			logging.Files.Printf("removed %d orphaned temp files from %s", len(stale), dir)
		}
	}
	return &Store{baseDir: baseDir}, nil
}

func (s *Store) bucketDir(bucket string) (string, error) {
	if _, ok := buckets[bucket]; !ok {
		return "", ErrInvalidBucket
	}
	return filepath.Join(s.baseDir, bucket), nil
}

func (s *Store) blobPath(bucket, suppliedName string) (string, error) {
	dir, err := s.bucketDir(bucket)
	if err != nil {
		return "", err
	}
	name, ok := ident.CleanFilename(suppliedName)
	if !ok {
		return "", ErrInvalidName
	}
	return filepath.Join(dir, name), nil
}

// mediaType normalizes a declared content type to its bare media type.
func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

// Put stores content under a freshly generated name in bucket. The write
// goes to a temp file in the bucket directory first and is renamed into
// place, so a failed or oversized upload never leaves a served blob.
func (s *Store) Put(ctx context.Context, bucket, contentType string, content io.Reader, originalFilename string) (*Blob, error) {
	dir, err := s.bucketDir(bucket)
	if err != nil {
		return nil, err
	}
	mt := mediaType(contentType)
	if !buckets[bucket].accepts(mt) {
		return nil, ErrUnsupportedType
	}

	name, err := ident.BlobName(originalFilename)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return nil, err
	}
	// Copy one byte past the ceiling so oversized content is detectable.
	size, err := io.Copy(tmp, io.LimitReader(content, MaxBlobSize+1))
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, err
	}
	if size > MaxBlobSize {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, ErrTooLarge
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}

	return &Blob{Name: name, Size: size, ContentType: mt}, nil
}

// Open returns a read handle to a stored blob plus its modification time,
// for the transport to stream.
func (s *Store) Open(ctx context.Context, bucket, name string) (*os.File, time.Time, error) {
	path, err := s.blobPath(bucket, name)
	if err != nil {
		return nil, time.Time{}, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, time.Time{}, err
	}
	return f, info.ModTime(), nil
}

// Delete removes a stored blob.
func (s *Store) Delete(ctx context.Context, bucket, name string) error {
	path, err := s.blobPath(bucket, name)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

// List returns each stored blob's generated name and byte size. Partial
// uploads (dot-prefixed temp files) are excluded.
func (s *Store) List(ctx context.Context, bucket string) ([]Blob, error) {
	dir, err := s.bucketDir(bucket)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	blobs := make([]Blob, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			logging.Files.Printf("skipping unreadable blob %s/%s: %v", bucket, e.Name(), err)
			continue
		}
		blobs = append(blobs, Blob{Name: e.Name(), Size: info.Size()})
	}
	return blobs, nil
}
