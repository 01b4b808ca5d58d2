package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"questionbank/internal/ident"
	"questionbank/internal/logging"
)

const (
	recordExt   = ".json"
	tempPattern = ".rec-*.tmp"
)

// FSStore implements Store over a directory holding one pretty-printed
// JSON file per record. The files are the only representation: there is
// no index, and every listing re-reads the directory.
type FSStore struct {
	dir   string
	locks idLocks
}

// NewFSStore creates the record directory if needed and returns a store
// rooted at it. Temp files orphaned by a crashed write are removed; they
// were never visible as records.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if n := removeStaleTemps(dir, tempPattern); n > 0 {
		logging.Store.Printf("removed %d orphaned temp files from %s", n, dir)
	}
	return &FSStore{dir: dir}, nil
}

// removeStaleTemps deletes leftover write temps matching pattern in dir
// and returns how many were removed.
func removeStaleTemps(dir, pattern string) int {
	stale, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return 0
	}
	n := 0
	for _, p := range stale {
		if os.Remove(p) == nil {
			n++
		}
	}
	return n
}

func (s *FSStore) path(id string) string {
	return filepath.Join(s.dir, id+recordExt)
}

func (s *FSStore) Get(ctx context.Context, id string) (Document, error) {
	if !ident.Valid(id) {
		return nil, ErrInvalidID
	}
	return s.read(s.path(id))
}

// Create writes a new document, failing with ErrExists when a record file
// for id is already present. The exists check and the write happen under
// the id's lock, so two concurrent creates cannot both succeed.
func (s *FSStore) Create(ctx context.Context, id string, doc Document) error {
	if !ident.Valid(id) {
		return ErrInvalidID
	}
	unlock := s.locks.lock(id)
	defer unlock()

	if _, err := os.Stat(s.path(id)); err == nil {
		return ErrExists
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return s.write(id, doc)
}

// Update shallow-merges patch over the stored document: patch fields
// overwrite, fields absent from the patch are preserved. The identifier
// and the original creation timestamp survive any patch. Returns the
// merged document.
func (s *FSStore) Update(ctx context.Context, id string, patch Document) (Document, error) {
	if !ident.Valid(id) {
		return nil, ErrInvalidID
	}
	unlock := s.locks.lock(id)
	defer unlock()

	doc, err := s.read(s.path(id))
	if err != nil {
		return nil, err
	}
	createdAt, hadCreatedAt := doc[FieldCreatedAt]

	for k, v := range patch {
		doc[k] = v
	}
	doc[FieldID] = id
	if hadCreatedAt {
		doc[FieldCreatedAt] = createdAt
	} else {
		delete(doc, FieldCreatedAt)
	}

	if err := s.write(id, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *FSStore) Delete(ctx context.Context, id string) error {
	if !ident.Valid(id) {
		return ErrInvalidID
	}
	unlock := s.locks.lock(id)
	defer unlock()

	err := os.Remove(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

// List reads every record file in the directory. A file that fails to
// parse is skipped and logged rather than aborting the whole listing.
func (s *FSStore) List(ctx context.Context) ([]Document, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordExt) {
			continue
		}
		doc, err := s.read(filepath.Join(s.dir, e.Name()))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Removed between ReadDir and read.
				continue
			}
			logging.Store.Printf("skipping unreadable record %s: %v", e.Name(), err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Count returns the number of record files without parsing them.
func (s *FSStore) Count(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), recordExt) {
			n++
		}
	}
	return n, nil
}

func (s *FSStore) read(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse record %s: %w", filepath.Base(path), err)
	}
	return doc, nil
}

// write serializes doc to a temp file in the record directory and renames
// it onto the record path. A reader racing the write observes either the
// previous document or the new one, never a partial file.
func (s *FSStore) write(id string, doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, tempPattern)
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path(id)); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
