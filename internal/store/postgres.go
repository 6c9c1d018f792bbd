package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/synapsefold/cognition-core/pkg/models"
)

// PostgresStore is the optional durable backing for sessions, checkpoints,
// and council notes when COGCORE_POSTGRES_URL is set (SPEC_FULL DOMAIN
// STACK: jackc/pgx/v5). Rows hold a JSONB blob per entity, following the
// teacher's pgvector.go idiom of a thin typed wrapper over pgxpool with a
// migrate() that runs idempotent CREATE TABLE IF NOT EXISTS statements.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to connURL and ensures the cognition-core
// tables exist.
func NewPostgresStore(ctx context.Context, connURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	log.Info().Msg("postgres store initialized")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS cogcore_sessions (
			id TEXT PRIMARY KEY,
			body JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS cogcore_checkpoints (
			model TEXT PRIMARY KEY,
			body JSONB NOT NULL,
			written_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS cogcore_council_notes (
			ts TEXT PRIMARY KEY,
			body JSONB NOT NULL,
			archived BOOLEAN NOT NULL DEFAULT FALSE
		);
		CREATE TABLE IF NOT EXISTS cogcore_gpu_status (
			id INT PRIMARY KEY DEFAULT 1,
			body JSONB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS cogcore_delivered_packets (
			packet_id TEXT PRIMARY KEY,
			delivered_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }
func (s *PostgresStore) Close() error                   { s.pool.Close(); return nil }

// ── Sessions ────────────────────────────────────────────────

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM cogcore_sessions WHERE id = $1`, id).Scan(&body)
	if err != nil {
		return nil, &ErrNotFound{Entity: "session", Key: id}
	}
	var sess models.Session
	if err := json.Unmarshal(body, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, session *models.Session) error {
	return s.upsertSession(ctx, session)
}

func (s *PostgresStore) UpdateSession(ctx context.Context, session *models.Session) error {
	return s.upsertSession(ctx, session)
}

func (s *PostgresStore) upsertSession(ctx context.Context, session *models.Session) error {
	body, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", session.ID, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO cogcore_sessions (id, body, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()`,
		session.ID, body)
	return err
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM cogcore_sessions WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) ListSessions(ctx context.Context) ([]models.Session, error) {
	rows, err := s.pool.Query(ctx, `SELECT body FROM cogcore_sessions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Session
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var sess models.Session
		if err := json.Unmarshal(body, &sess); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// ── Checkpoints ─────────────────────────────────────────────

func (s *PostgresStore) WriteCheckpoint(ctx context.Context, ckpt *models.CognitiveCheckpoint) error {
	body, err := json.Marshal(ckpt)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO cogcore_checkpoints (model, body, written_at) VALUES ($1, $2, NOW())
		ON CONFLICT (model) DO UPDATE SET body = EXCLUDED.body, written_at = NOW()`,
		ckpt.Model, body)
	return err
}

func (s *PostgresStore) ReadCheckpoint(ctx context.Context, model string) (*models.CognitiveCheckpoint, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM cogcore_checkpoints WHERE model = $1`, model).Scan(&body)
	if err != nil {
		return nil, &ErrNotFound{Entity: "checkpoint", Key: model}
	}
	var ckpt models.CognitiveCheckpoint
	if err := json.Unmarshal(body, &ckpt); err != nil {
		return nil, err
	}
	return &ckpt, nil
}

// ── Council notes ───────────────────────────────────────────

func (s *PostgresStore) WriteCouncilNote(ctx context.Context, note *models.CouncilNote) error {
	body, err := json.Marshal(note)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO cogcore_council_notes (ts, body, archived) VALUES ($1, $2, FALSE)
		ON CONFLICT (ts) DO UPDATE SET body = EXCLUDED.body`,
		noteKey(note.Timestamp), body)
	return err
}

func (s *PostgresStore) ListPendingCouncilNotes(ctx context.Context, since time.Time) ([]models.CouncilNote, error) {
	rows, err := s.pool.Query(ctx, `SELECT body FROM cogcore_council_notes WHERE archived = FALSE AND ts > $1`, noteKey(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.CouncilNote
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var n models.CouncilNote
		if err := json.Unmarshal(body, &n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ArchiveCouncilNote(ctx context.Context, timestamp time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE cogcore_council_notes SET archived = TRUE WHERE ts = $1`, noteKey(timestamp))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "council_note", Key: noteKey(timestamp)}
	}
	return nil
}

func (s *PostgresStore) EvictExpiredCouncilNotes(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := noteKey(time.Now().Add(-ttl))
	tag, err := s.pool.Exec(ctx, `DELETE FROM cogcore_council_notes WHERE archived = FALSE AND ts < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ── GPU state ───────────────────────────────────────────────

func (s *PostgresStore) GetGPUStatus(ctx context.Context) (*models.GPUStatus, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM cogcore_gpu_status WHERE id = 1`).Scan(&body)
	if err != nil {
		return &models.GPUStatus{Owner: models.GPUUnclaimed}, nil
	}
	var st models.GPUStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *PostgresStore) SetGPUStatus(ctx context.Context, status *models.GPUStatus) error {
	body, err := json.Marshal(status)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO cogcore_gpu_status (id, body) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body`, body)
	return err
}

// ── Packet idempotence ──────────────────────────────────────

func (s *PostgresStore) MarkDelivered(ctx context.Context, packetID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO cogcore_delivered_packets (packet_id) VALUES ($1)
		ON CONFLICT (packet_id) DO NOTHING`, packetID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 0, nil
}
