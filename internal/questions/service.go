package questions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"questionbank/internal/ident"
	"questionbank/internal/logging"
	"questionbank/internal/store"
)

// timeLayout is RFC 3339 with millisecond precision; createdAt and
// updatedAt are stored as strings in this form.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// summaryFields is the metadata subset exposed by listings. Large fields,
// testCases above all, never appear in a summary.
var summaryFields = []string{
	store.FieldID, "title", "slug", "difficulty", "tags", "companies",
	store.FieldCreatedAt, store.FieldUpdatedAt,
}

// Service implements question semantics over a record store: identifier
// assignment, timestamp management, listing projections and slug lookup.
type Service struct {
	store store.Store
}

// NewService creates a new question service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

func now() string {
	return time.Now().UTC().Format(timeLayout)
}

// ListSummaries returns the metadata projection of every stored question.
func (s *Service) ListSummaries(ctx context.Context) ([]store.Document, error) {
	docs, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	summaries := make([]store.Document, 0, len(docs))
	for _, doc := range docs {
		summaries = append(summaries, summarize(doc))
	}
	return summaries, nil
}

func summarize(doc store.Document) store.Document {
	sum := make(store.Document, len(summaryFields))
	for _, k := range summaryFields {
		if v, ok := doc[k]; ok {
			sum[k] = v
		}
	}
	return sum
}

// GetByID returns the full record.
func (s *Service) GetByID(ctx context.Context, id string) (store.Document, error) {
	return s.store.Get(ctx, id)
}

// GetBySlug scans all records and returns the first whose slug equals the
// query. Slugs are not unique; first match wins.
func (s *Service) GetBySlug(ctx context.Context, slug string) (store.Document, error) {
	if slug == "" {
		return nil, store.ErrNotFound
	}
	docs, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan questions: %w", err)
	}
	for _, doc := range docs {
		if doc.Str("slug") == slug {
			return doc, nil
		}
	}
	return nil, store.ErrNotFound
}

// GetTestCases returns the judge-facing projection of one question:
// testCases (an empty sequence when the record has none) plus timeLimit
// and memoryLimit when present.
func (s *Service) GetTestCases(ctx context.Context, id string) (store.Document, error) {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	out := store.Document{"testCases": []any{}}
	if v, ok := doc["testCases"]; ok {
		out["testCases"] = v
	}
	if v, ok := doc["timeLimit"]; ok {
		out["timeLimit"] = v
	}
	if v, ok := doc["memoryLimit"]; ok {
		out["memoryLimit"] = v
	}
	return out, nil
}

// Create stores a new question, generating the identifier when the caller
// did not supply one and stamping both timestamps. Returns the document as
// stored.
func (s *Service) Create(ctx context.Context, doc store.Document) (store.Document, error) {
	doc = doc.Clone()

	id := doc.Str(store.FieldID)
	if raw, ok := doc[store.FieldID]; ok && id == "" && raw != nil {
		// Present but not a usable string.
		if _, isStr := raw.(string); !isStr {
			return nil, store.ErrInvalidID
		}
	}
	if id == "" {
		var err error
		id, err = ident.New()
		if err != nil {
			return nil, fmt.Errorf("generate id: %w", err)
		}
	}

	ts := now()
	doc[store.FieldID] = id
	doc[store.FieldCreatedAt] = ts
	doc[store.FieldUpdatedAt] = ts

	if err := s.store.Create(ctx, id, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Update stamps updatedAt into the patch and merges it over the stored
// record; the store keeps _id and createdAt intact whatever the patch
// says. Returns the merged document.
func (s *Service) Update(ctx context.Context, id string, patch store.Document) (store.Document, error) {
	patch = patch.Clone()
	patch[store.FieldUpdatedAt] = now()
	return s.store.Update(ctx, id, patch)
}

// Delete removes the record.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// Count returns the number of stored questions.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

// BulkResult reports the outcome of a bulk import. Failed counts records
// that hit a real write error, never the intentional skips.
type BulkResult struct {
	Created int
	Skipped int
	Failed  int
}

// BulkImport creates each record in order. Records without a usable
// identifier and records whose identifier already exists are skipped
// without overwriting; write errors are counted separately and surfaced
// through the returned error rather than folded into the skip count.
func (s *Service) BulkImport(ctx context.Context, docs []store.Document) (*BulkResult, error) {
	res := &BulkResult{}
	var firstErr error

	for _, doc := range docs {
		id := doc.Str(store.FieldID)
		if id == "" {
			res.Skipped++
			continue
		}

		doc = doc.Clone()
		doc[store.FieldUpdatedAt] = now()

		err := s.store.Create(ctx, id, doc)
		switch {
		case err == nil:
			res.Created++
		case errors.Is(err, store.ErrExists), errors.Is(err, store.ErrInvalidID):
			res.Skipped++
		default:
			res.Failed++
			logging.Internal.Printf("bulk import: create %s failed: %v", id, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr != nil {
		return res, fmt.Errorf("bulk import: %d record(s) failed: %w", res.Failed, firstErr)
	}
	return res, nil
}
