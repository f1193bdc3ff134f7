// Package sessionstore implements the durable, append-only-per-turn Session
// Store from spec.md §4.1: get-or-create with (owner, country, service_type)
// duplicate prevention, monotonic per-session message ordering, and a
// background lifecycle sweep. Adapted from manifold's
// internal/persistence/databases chat-store pair (Postgres + in-memory).
package sessionstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"manifold/internal/discovery"
)

// Store is the Session Store contract (spec.md §4.1).
type Store interface {
	// GetOrCreate returns the session for sessionID if supplied and it exists
	// (after an ownership check when ownerID is non-nil), else the active
	// session matching (ownerID, country, serviceType) if one exists, else a
	// freshly created session. The bool reports whether a new row was
	// inserted.
	GetOrCreate(ctx context.Context, sessionID *uuid.UUID, ownerID *int64, country, serviceType string) (discovery.Session, bool, error)
	Get(ctx context.Context, sessionID uuid.UUID) (discovery.Session, error)
	AppendMessage(ctx context.Context, sessionID uuid.UUID, role discovery.Role, content string) (discovery.Message, error)
	History(ctx context.Context, sessionID uuid.UUID, limit int) ([]discovery.Message, error)
	HistoryAsTurns(ctx context.Context, sessionID uuid.UUID, limit int) ([]discovery.Turn, error)
	ListForOwner(ctx context.Context, ownerID int64, activeOnly bool) ([]discovery.Session, error)
	Touch(ctx context.Context, sessionID uuid.UUID) error
	DeactivateOlderThan(ctx context.Context, age time.Duration) (int, error)
}

// HistoryAsTurnsFromMessages groups consecutive user/assistant message pairs
// in order, dropping a trailing unmatched user message (spec.md §4.1). It is
// shared by every Store implementation so the pairing rule only lives once.
func HistoryAsTurnsFromMessages(msgs []discovery.Message) []discovery.Turn {
	turns := make([]discovery.Turn, 0, len(msgs)/2)
	for i := 0; i+1 < len(msgs); i++ {
		if msgs[i].Role == discovery.RoleUser && msgs[i+1].Role == discovery.RoleAssistant {
			turns = append(turns, discovery.Turn{User: msgs[i], Assistant: msgs[i+1]})
			i++
		}
	}
	return turns
}

// DeriveTitle produces the default session title: the first user message
// trimmed to 60 runes, or "<service_type> in <country>" when no message is
// available yet.
func DeriveTitle(firstUserMessage, country, serviceType string) string {
	msg := firstUserMessage
	if msg == "" {
		return serviceType + " in " + country
	}
	r := []rune(msg)
	if len(r) > 60 {
		return string(r[:60])
	}
	return msg
}
