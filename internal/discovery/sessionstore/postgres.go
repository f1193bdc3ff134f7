package sessionstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"manifold/internal/discovery"
	"manifold/internal/observability"
)

// PostgresStore is a pgx-backed Session Store, adapted from
// chat_store_postgres.go's transactional get-or-create CTE idiom and
// extended with the (owner_id, country, service_type) duplicate-prevention
// tuple and the deactivate-by-age sweep.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool. Init must be called once before use.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Init creates the sessions/messages tables from spec.md §6's persisted
// state layout, plus the partial unique index that enforces duplicate
// prevention on active rows (spec.md §9 design note).
func (s *PostgresStore) Init(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("postgres session store requires a pool")
	}
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS sessions (
    session_id UUID PRIMARY KEY,
    owner_id BIGINT,
    country TEXT NOT NULL,
    service_type TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_activity TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE UNIQUE INDEX IF NOT EXISTS sessions_active_owner_tuple_idx
    ON sessions (owner_id, country, service_type)
    WHERE active;

CREATE TABLE IF NOT EXISTS messages (
    session_id UUID NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
    seq BIGINT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (session_id, seq)
);
`)
	return err
}

func scanSession(row pgx.Row) (discovery.Session, error) {
	var sess discovery.Session
	var owner *int64
	if err := row.Scan(&sess.SessionID, &owner, &sess.Country, &sess.ServiceType, &sess.Title, &sess.CreatedAt, &sess.LastActivity, &sess.Active); err != nil {
		return discovery.Session{}, err
	}
	sess.OwnerID = owner
	return sess, nil
}

const sessionCols = "session_id, owner_id, country, service_type, title, created_at, last_activity, active"

func hasAccess(ownerID *int64, owner *int64) bool {
	if ownerID == nil {
		return true
	}
	if owner == nil {
		return false
	}
	return *ownerID == *owner
}

// GetOrCreate implements the three-way lookup from spec.md §4.1: explicit
// session id, then the active (owner, country, service_type) tuple, then a
// fresh insert. The active-tuple lookup and the insert both run inside one
// transaction with SELECT ... FOR UPDATE, per spec.md §9's design note,
// rather than relying solely on the partial unique index to race-proof it.
func (s *PostgresStore) GetOrCreate(ctx context.Context, sessionID *uuid.UUID, ownerID *int64, country, serviceType string) (discovery.Session, bool, error) {
	if sessionID != nil {
		sess, err := s.Get(ctx, *sessionID)
		if err == nil {
			if !hasAccess(ownerID, sess.OwnerID) {
				return discovery.Session{}, false, discovery.ErrForbidden
			}
			return sess, false, nil
		}
		if !errors.Is(err, discovery.ErrNotFound) {
			return discovery.Session{}, false, err
		}
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return discovery.Session{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var owner any
	if ownerID != nil {
		owner = *ownerID
	}
	row := tx.QueryRow(ctx, `SELECT `+sessionCols+` FROM sessions
WHERE country = $1 AND service_type = $2 AND active
  AND owner_id IS NOT DISTINCT FROM $3
FOR UPDATE`, country, serviceType, owner)
	if sess, err := scanSession(row); err == nil {
		if cerr := tx.Commit(ctx); cerr != nil {
			return discovery.Session{}, false, cerr
		}
		return sess, false, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return discovery.Session{}, false, err
	}

	id := uuid.New()
	title := DeriveTitle("", country, serviceType)
	row = tx.QueryRow(ctx, `
INSERT INTO sessions (session_id, owner_id, country, service_type, title, active)
VALUES ($1, $2, $3, $4, $5, TRUE)
RETURNING `+sessionCols, id, owner, country, serviceType, title)
	sess, err := scanSession(row)
	if err != nil {
		return discovery.Session{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return discovery.Session{}, false, err
	}
	return sess, true, nil
}

func (s *PostgresStore) Get(ctx context.Context, sessionID uuid.UUID) (discovery.Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionCols+` FROM sessions WHERE session_id = $1`, sessionID)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return discovery.Session{}, discovery.ErrNotFound
		}
		return discovery.Session{}, err
	}
	return sess, nil
}

// AppendMessage assigns the next seq transactionally, matching
// chat_store_postgres.go's AppendMessages pattern: bounded context, a single
// transaction, and an UPDATE of last_activity on the session row.
func (s *PostgresStore) AppendMessage(ctx context.Context, sessionID uuid.UUID, role discovery.Role, content string) (discovery.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return discovery.Message{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var active bool
	row := tx.QueryRow(ctx, `SELECT active FROM sessions WHERE session_id = $1 FOR UPDATE`, sessionID)
	if err := row.Scan(&active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return discovery.Message{}, discovery.ErrNotFound
		}
		return discovery.Message{}, err
	}
	if !active {
		return discovery.Message{}, discovery.ErrClosed
	}

	var nextSeq int64
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), -1) + 1 FROM messages WHERE session_id = $1`, sessionID).Scan(&nextSeq); err != nil {
		return discovery.Message{}, err
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `INSERT INTO messages (session_id, seq, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		sessionID, nextSeq, string(role), content, now); err != nil {
		return discovery.Message{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE sessions SET last_activity = $2 WHERE session_id = $1`, sessionID, now); err != nil {
		return discovery.Message{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return discovery.Message{}, err
	}
	return discovery.Message{SessionID: sessionID, Seq: nextSeq, Role: role, Content: content, CreatedAt: now}, nil
}

// History returns the last `limit` messages in ascending seq order, using
// the DESC-subquery-then-ASC-reorder trick from chat_store_postgres.go's
// ListMessages so a LIMIT still returns the most recent tail.
func (s *PostgresStore) History(ctx context.Context, sessionID uuid.UUID, limit int) ([]discovery.Message, error) {
	query := `SELECT session_id, seq, role, content, created_at FROM messages WHERE session_id = $1 ORDER BY seq ASC`
	args := []any{sessionID}
	if limit > 0 {
		query = `
SELECT session_id, seq, role, content, created_at FROM (
    SELECT session_id, seq, role, content, created_at
    FROM messages WHERE session_id = $1
    ORDER BY seq DESC
    LIMIT $2
) sub
ORDER BY seq ASC`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []discovery.Message
	for rows.Next() {
		var m discovery.Message
		var role string
		if err := rows.Scan(&m.SessionID, &m.Seq, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = discovery.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) HistoryAsTurns(ctx context.Context, sessionID uuid.UUID, limit int) ([]discovery.Turn, error) {
	msgs, err := s.History(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	return HistoryAsTurnsFromMessages(msgs), nil
}

func (s *PostgresStore) ListForOwner(ctx context.Context, ownerID int64, activeOnly bool) ([]discovery.Session, error) {
	query := `SELECT ` + sessionCols + ` FROM sessions WHERE owner_id = $1`
	if activeOnly {
		query += ` AND active`
	}
	query += ` ORDER BY last_activity DESC`
	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []discovery.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Touch(ctx context.Context, sessionID uuid.UUID) error {
	cmd, err := s.pool.Exec(ctx, `UPDATE sessions SET last_activity = NOW() WHERE session_id = $1`, sessionID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return discovery.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeactivateOlderThan(ctx context.Context, age time.Duration) (int, error) {
	log := observability.LoggerWithTrace(ctx)
	cutoff := time.Now().Add(-age)
	cmd, err := s.pool.Exec(ctx, `UPDATE sessions SET active = FALSE WHERE active AND last_activity < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	n := int(cmd.RowsAffected())
	log.Info().Int("deactivated", n).Dur("age", age).Msg("session_store_deactivate_swept")
	return n, nil
}
