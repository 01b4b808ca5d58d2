package store

import (
	"context"
	"errors"
)

// Reserved document fields managed by the store and the service layer.
// Everything else in a document is caller-supplied and passed through
// verbatim.
const (
	FieldID        = "_id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrExists    = errors.New("record already exists")
	ErrInvalidID = errors.New("invalid record id")
)

// Document is one stored record: an open JSON object with a few reserved
// fields, not a fixed schema.
type Document map[string]any

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	c := make(Document, len(d))
	for k, v := range d {
		c[k] = v
	}
	return c
}

// Str returns the value of key when it holds a string, else "".
func (d Document) Str(key string) string {
	s, _ := d[key].(string)
	return s
}

// Store defines the interface for record persistence: one JSON document
// per identifier.
type Store interface {
	List(ctx context.Context) ([]Document, error)
	Get(ctx context.Context, id string) (Document, error)
	Create(ctx context.Context, id string, doc Document) error
	Update(ctx context.Context, id string, patch Document) (Document, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}
