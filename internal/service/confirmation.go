package service

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type PendingConfirmation struct {
	ID          uuid.UUID `json:"id"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	RequestedAt time.Time `json:"requested_at"`
}

type pendingEntry struct {
	info   PendingConfirmation
	effect func(ctx context.Context) error
}

// ConfirmationGate holds destructive actions until the operator confirms or cancels them.
type ConfirmationGate struct {
	mu      sync.Mutex
	pending map[uuid.UUID]pendingEntry
	now     func() time.Time
}

func NewConfirmationGate() *ConfirmationGate {
	return &ConfirmationGate{
		pending: make(map[uuid.UUID]pendingEntry),
		now:     time.Now,
	}
}

func (g *ConfirmationGate) Request(action, description string, effect func(ctx context.Context) error) PendingConfirmation {
	info := PendingConfirmation{
		ID:          uuid.New(),
		Action:      action,
		Description: description,
		RequestedAt: g.now().UTC(),
	}
	g.mu.Lock()
	g.pending[info.ID] = pendingEntry{info: info, effect: effect}
	g.mu.Unlock()
	return info
}

// Confirm runs the effect at most once. The confirmation is consumed even if the effect fails.
func (g *ConfirmationGate) Confirm(ctx context.Context, id uuid.UUID) error {
	entry, ok := g.take(id)
	if !ok {
		return ErrConfirmationNotFound
	}
	return entry.effect(ctx)
}

func (g *ConfirmationGate) Cancel(id uuid.UUID) error {
	if _, ok := g.take(id); !ok {
		return ErrConfirmationNotFound
	}
	return nil
}

func (g *ConfirmationGate) Pending() []PendingConfirmation {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]PendingConfirmation, 0, len(g.pending))
	for _, entry := range g.pending {
		out = append(out, entry.info)
	}
	slices.SortFunc(out, func(a, b PendingConfirmation) int {
		return a.RequestedAt.Compare(b.RequestedAt)
	})
	return out
}

func (g *ConfirmationGate) Reset() {
	g.mu.Lock()
	g.pending = make(map[uuid.UUID]pendingEntry)
	g.mu.Unlock()
}

func (g *ConfirmationGate) take(id uuid.UUID) (pendingEntry, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.pending[id]
	if ok {
		delete(g.pending, id)
	}
	return entry, ok
}
