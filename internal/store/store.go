// Package store is the keyed, schema-less persistence used for settings and documents.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrPermissionDenied = errors.New("permission denied")
)

type Mode int

const (
	ModeOverwrite Mode = iota
	ModeMerge
)

func (m Mode) String() string {
	if m == ModeMerge {
		return "merge"
	}
	return "overwrite"
}

// Record is one stored document. Values are JSON-compatible.
type Record map[string]any

type RemoteStore interface {
	// Get returns ErrNotFound when no record exists under key.
	Get(ctx context.Context, collection, key string) (Record, error)
	Set(ctx context.Context, collection, key string, rec Record, mode Mode) error
	// Create writes rec only if key is absent and reports whether it did.
	Create(ctx context.Context, collection, key string, rec Record) (bool, error)
	Delete(ctx context.Context, collection, key string) error
	// List returns every record of the collection ordered by key.
	List(ctx context.Context, collection string) ([]Record, error)
}

// Encode turns a typed value into a Record through its JSON form.
func Encode(v any) (Record, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	rec, err := unmarshalRecord(raw)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return rec, nil
}

func Decode(rec Record, v any) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

// merge overlays the top-level fields of patch onto base.
func merge(base, patch Record) Record {
	out := make(Record, len(base)+len(patch))
	maps.Copy(out, base)
	maps.Copy(out, patch)
	return out
}

// clone copies a record through JSON so callers never share nested maps or slices with the store.
func clone(rec Record) Record {
	if rec == nil {
		return nil
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return maps.Clone(rec)
	}
	out, err := unmarshalRecord(raw)
	if err != nil {
		return maps.Clone(rec)
	}
	return out
}

// unmarshalRecord keeps numbers as json.Number so amounts survive without float rounding.
func unmarshalRecord(raw []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}
