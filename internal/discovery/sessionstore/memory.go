package sessionstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"manifold/internal/discovery"
)

// MemoryStore is an in-process Session Store, adapted from
// chat_store_memory.go, used by tests and local/dev runs without Postgres.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]discovery.Session
	messages map[uuid.UUID][]discovery.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[uuid.UUID]discovery.Session{},
		messages: map[uuid.UUID][]discovery.Message{},
	}
}

func (s *MemoryStore) tupleMatch(sess discovery.Session, ownerID *int64, country, serviceType string) bool {
	if !sess.Active || sess.Country != country || sess.ServiceType != serviceType {
		return false
	}
	if ownerID == nil && sess.OwnerID == nil {
		return true
	}
	if ownerID == nil || sess.OwnerID == nil {
		return false
	}
	return *ownerID == *sess.OwnerID
}

func (s *MemoryStore) GetOrCreate(ctx context.Context, sessionID *uuid.UUID, ownerID *int64, country, serviceType string) (discovery.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessionID != nil {
		if sess, ok := s.sessions[*sessionID]; ok {
			if !hasAccess(ownerID, sess.OwnerID) {
				return discovery.Session{}, false, discovery.ErrForbidden
			}
			return sess, false, nil
		}
	}

	for _, sess := range s.sessions {
		if s.tupleMatch(sess, ownerID, country, serviceType) {
			return sess, false, nil
		}
	}

	now := time.Now().UTC()
	owner := ownerID
	if owner != nil {
		v := *owner
		owner = &v
	}
	sess := discovery.Session{
		SessionID:    uuid.New(),
		OwnerID:      owner,
		Country:      country,
		ServiceType:  serviceType,
		Title:        DeriveTitle("", country, serviceType),
		CreatedAt:    now,
		LastActivity: now,
		Active:       true,
	}
	s.sessions[sess.SessionID] = sess
	s.messages[sess.SessionID] = nil
	return sess, true, nil
}

func (s *MemoryStore) Get(ctx context.Context, sessionID uuid.UUID) (discovery.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return discovery.Session{}, discovery.ErrNotFound
	}
	return sess, nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, sessionID uuid.UUID, role discovery.Role, content string) (discovery.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return discovery.Message{}, discovery.ErrNotFound
	}
	if !sess.Active {
		return discovery.Message{}, discovery.ErrClosed
	}
	existing := s.messages[sessionID]
	var nextSeq int64
	if len(existing) > 0 {
		nextSeq = existing[len(existing)-1].Seq + 1
	}
	now := time.Now().UTC()
	msg := discovery.Message{SessionID: sessionID, Seq: nextSeq, Role: role, Content: content, CreatedAt: now}
	s.messages[sessionID] = append(existing, msg)
	sess.LastActivity = now
	s.sessions[sessionID] = sess
	return msg, nil
}

func (s *MemoryStore) History(ctx context.Context, sessionID uuid.UUID, limit int) ([]discovery.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, discovery.ErrNotFound
	}
	msgs := s.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]discovery.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) HistoryAsTurns(ctx context.Context, sessionID uuid.UUID, limit int) ([]discovery.Turn, error) {
	msgs, err := s.History(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	return HistoryAsTurnsFromMessages(msgs), nil
}

func (s *MemoryStore) ListForOwner(ctx context.Context, ownerID int64, activeOnly bool) ([]discovery.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]discovery.Session, 0)
	for _, sess := range s.sessions {
		if sess.OwnerID == nil || *sess.OwnerID != ownerID {
			continue
		}
		if activeOnly && !sess.Active {
			continue
		}
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	return out, nil
}

func (s *MemoryStore) Touch(ctx context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return discovery.ErrNotFound
	}
	sess.LastActivity = time.Now().UTC()
	s.sessions[sessionID] = sess
	return nil
}

func (s *MemoryStore) DeactivateOlderThan(ctx context.Context, age time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-age)
	n := 0
	for id, sess := range s.sessions {
		if sess.Active && sess.LastActivity.Before(cutoff) {
			sess.Active = false
			s.sessions[id] = sess
			n++
		}
	}
	return n, nil
}
