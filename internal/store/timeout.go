package store

import (
	"context"
	"time"
)

// timeoutStore bounds every call to the wrapped store.
type timeoutStore struct {
	next    RemoteStore
	timeout time.Duration
}

// WithTimeout returns s unchanged when timeout is not positive.
func WithTimeout(s RemoteStore, timeout time.Duration) RemoteStore {
	if timeout <= 0 {
		return s
	}
	return &timeoutStore{next: s, timeout: timeout}
}

func (t *timeoutStore) Get(ctx context.Context, collection, key string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Get(ctx, collection, key)
}

func (t *timeoutStore) Set(ctx context.Context, collection, key string, rec Record, mode Mode) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Set(ctx, collection, key, rec, mode)
}

func (t *timeoutStore) Create(ctx context.Context, collection, key string, rec Record) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Create(ctx, collection, key, rec)
}

func (t *timeoutStore) Delete(ctx context.Context, collection, key string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Delete(ctx, collection, key)
}

func (t *timeoutStore) List(ctx context.Context, collection string) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.List(ctx, collection)
}
